package fanout

import (
	"fmt"
	"sync"
	"time"

	"plate-bidding/internal/metrics"
	"plate-bidding/internal/models"
	"plate-bidding/utils"
)

const (
	defaultQueueSize   = 256
	defaultIdleTimeout = time.Minute
)

// Options tunes the per-listing event queues
type Options struct {
	// QueueSize bounds the number of undelivered events per listing. When the
	// queue is full a new event is dropped (counted and logged at warn) and
	// subscribers never see it, so size it for the burst a single listing may take.
	QueueSize int
	// IdleTimeout is how long an empty queue and its worker live before being reclaimed
	IdleTimeout time.Duration
}

// Broadcaster delivers events to the subscribers of a listing. Each listing
// gets a bounded FIFO queue drained by a single worker, so subscribers see
// events in publish order and a slow delivery never blocks the publisher.
type Broadcaster struct {
	registry *Registry
	metrics  *metrics.Metrics
	opts     Options

	mu     sync.Mutex
	queues map[string]chan models.BidEvent
	closed bool
	wg     sync.WaitGroup
}

// NewBroadcaster creates a broadcaster delivering through registry
func NewBroadcaster(registry *Registry, m *metrics.Metrics, opts Options) *Broadcaster {
	if opts.QueueSize < 1 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	return &Broadcaster{
		registry: registry,
		metrics:  m,
		opts:     opts,
		queues:   make(map[string]chan models.BidEvent),
	}
}

// Subscribe registers sub for events of listingID
func (b *Broadcaster) Subscribe(listingID string, sub Subscriber) {
	if b.registry.Subscribe(listingID, sub) {
		utils.Debug("fanout: subscriber added", map[string]any{"listing_id": listingID, "subscriber_id": sub.ID()})
	}
}

// Unsubscribe removes sub from listingID
func (b *Broadcaster) Unsubscribe(listingID string, sub Subscriber) {
	if b.registry.Unsubscribe(listingID, sub) {
		utils.Debug("fanout: subscriber removed", map[string]any{"listing_id": listingID, "subscriber_id": sub.ID()})
	}
}

// Publish enqueues event for delivery to every subscriber of listingID.
// It never blocks and never fails: when the listing queue is full or the
// broadcaster is closed the event is dropped and logged.
func (b *Broadcaster) Publish(listingID string, event models.BidEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		utils.Warn("fanout: publish after close", map[string]any{"listing_id": listingID, "action": event.Action})
		b.metrics.EventDropped()
		return
	}

	q, ok := b.queues[listingID]
	if !ok {
		q = make(chan models.BidEvent, b.opts.QueueSize)
		b.queues[listingID] = q
		b.metrics.QueuesChanged(1)
		b.wg.Add(1)
		go b.run(listingID, q)
	}

	select {
	case q <- event:
		b.metrics.EventPublished(string(event.Action))
	default:
		b.metrics.EventDropped()
		utils.Warn("fanout: listing queue full, event dropped", map[string]any{
			"listing_id": listingID,
			"action":     event.Action,
			"queue_size": b.opts.QueueSize,
		})
	}
}

// Close stops accepting events, delivers what is already queued and waits
// for every worker to exit.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, q := range b.queues {
		close(q)
	}
	b.mu.Unlock()

	b.wg.Wait()
}

// Queues returns the number of live listing queues
func (b *Broadcaster) Queues() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues)
}

func (b *Broadcaster) run(listingID string, q chan models.BidEvent) {
	defer b.wg.Done()

	idle := time.NewTimer(b.opts.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case event, ok := <-q:
			if !ok {
				b.reclaim(listingID, q)
				return
			}
			b.deliver(listingID, event)
			idle.Reset(b.opts.IdleTimeout)

		case <-idle.C:
			// Publish holds b.mu while enqueueing, so an empty queue seen
			// under the lock stays empty until it is removed from the table.
			b.mu.Lock()
			if len(q) == 0 && !b.closed {
				delete(b.queues, listingID)
				b.mu.Unlock()
				b.metrics.QueuesChanged(-1)
				return
			}
			b.mu.Unlock()
			idle.Reset(b.opts.IdleTimeout)
		}
	}
}

func (b *Broadcaster) reclaim(listingID string, q chan models.BidEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if current, ok := b.queues[listingID]; ok && current == q {
		delete(b.queues, listingID)
		b.metrics.QueuesChanged(-1)
	}
}

func (b *Broadcaster) deliver(listingID string, event models.BidEvent) {
	for _, sub := range b.registry.Subscribers(listingID) {
		if err := safeSend(sub, event); err != nil {
			b.registry.Unsubscribe(listingID, sub)
			b.metrics.DeliveryFailed()
			utils.Warn("fanout: delivery failed, subscriber removed", map[string]any{
				"listing_id":    listingID,
				"subscriber_id": sub.ID(),
				"action":        event.Action,
				"error":         err.Error(),
			})
		}
	}
}

func safeSend(sub Subscriber, event models.BidEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panicked: %v", r)
		}
	}()
	return sub.Send(event)
}
