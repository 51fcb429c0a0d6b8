package handler

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"plate-bidding/internal/fanout"
	model "plate-bidding/internal/models"
	"plate-bidding/services/bidding/helpers"
	"plate-bidding/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	errConnClosed     = errors.New("connection closed")
	errSendBufferFull = errors.New("send buffer full")
)

const maxInboundMessage = 1024

// Subscriptions registers live connections for a listing
type Subscriptions interface {
	Subscribe(listingID string, sub fanout.Subscriber)
	Unsubscribe(listingID string, sub fanout.Subscriber)
}

// LiveOptions tunes the per-connection writer
type LiveOptions struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
}

// LiveHandler streams listing events over WebSocket
type LiveHandler struct {
	listings ListingServiceInterface
	subs     Subscriptions
	opts     LiveOptions
	upgrader websocket.Upgrader
}

func NewLiveHandler(listings ListingServiceInterface, subs Subscriptions, opts LiveOptions) *LiveHandler {
	if opts.SendBuffer < 1 {
		opts.SendBuffer = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	return &LiveHandler{
		listings: listings,
		subs:     subs,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// StreamListingHandler handles GET /ws/listings/:listing_id
func (h *LiveHandler) StreamListingHandler(c *gin.Context) {
	listingID := c.Param("listing_id")
	if _, err := h.listings.GetListing(c.Request.Context(), listingID); err != nil {
		helpers.HandleServiceError(c, "StreamListingHandler", err, map[string]any{"listing_id": listingID})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		utils.Warn("StreamListingHandler: upgrade failed", map[string]any{"listing_id": listingID, "error": err.Error()})
		return
	}

	sub := newConnSubscriber(conn, h.opts.SendBuffer)
	h.subs.Subscribe(listingID, sub)
	utils.Info("StreamListingHandler: subscriber connected", map[string]any{"listing_id": listingID, "subscriber_id": sub.ID()})

	go sub.writeLoop(h.opts)
	sub.readLoop(h.opts)

	h.subs.Unsubscribe(listingID, sub)
	sub.close()
	utils.Info("StreamListingHandler: subscriber disconnected", map[string]any{"listing_id": listingID, "subscriber_id": sub.ID()})
}

// connSubscriber adapts a WebSocket connection to fanout.Subscriber. Send only
// queues; a dedicated writer goroutine owns every write on the connection.
type connSubscriber struct {
	id        string
	conn      *websocket.Conn
	send      chan model.BidEvent
	done      chan struct{}
	closeOnce sync.Once
}

func newConnSubscriber(conn *websocket.Conn, buffer int) *connSubscriber {
	return &connSubscriber{
		id:   utils.GenerateID(),
		conn: conn,
		send: make(chan model.BidEvent, buffer),
		done: make(chan struct{}),
	}
}

func (s *connSubscriber) ID() string { return s.id }

// Send queues event without blocking. A full buffer closes the connection.
func (s *connSubscriber) Send(event model.BidEvent) error {
	select {
	case <-s.done:
		return errConnClosed
	default:
	}

	select {
	case s.send <- event:
		return nil
	default:
		s.close()
		return errSendBufferFull
	}
}

func (s *connSubscriber) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *connSubscriber) writeLoop(opts LiveOptions) {
	ticker := time.NewTicker(opts.PingInterval)
	defer func() {
		ticker.Stop()
		s.close()
		_ = s.conn.Close()
	}()

	for {
		select {
		case event := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(opts.WriteTimeout))
			if err := s.conn.WriteJSON(event); err != nil {
				utils.Debug("live: write failed", map[string]any{"subscriber_id": s.id, "error": err.Error()})
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(opts.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(opts.WriteTimeout))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// readLoop discards inbound frames and returns on the first read error
func (s *connSubscriber) readLoop(opts LiveOptions) {
	pongWait := 2 * opts.PingInterval
	s.conn.SetReadLimit(maxInboundMessage)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}
