package server

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"plate-bidding/internal/auth"
	"plate-bidding/internal/biddingerrors"
	"plate-bidding/services/bidding/helpers"
	"plate-bidding/utils"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RequestLoggerMiddleware logs incoming requests with timing
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next() // process request

	fields := map[string]any{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"status":  c.Writer.Status(),
		"latency": time.Since(start).String(),
	}
	if bidderID := c.GetString(helpers.ContextBidderID); bidderID != "" {
		fields["bidder_id"] = bidderID
	}
	utils.Info("HTTP Request", fields)
}

// AuthMiddleware resolves the bearer token to a bidder identity. The token is
// read from the Authorization header or, for browsers opening a WebSocket,
// from the token query parameter.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			utils.AbortJSONError(c, http.StatusUnauthorized, biddingerrors.ErrUnauthorized, "missing bearer token")
			return
		}

		claims, err := auth.ValidateJWT(token, secret)
		if err != nil {
			utils.AbortJSONError(c, http.StatusUnauthorized, err, "invalid or expired token")
			utils.Warn("AuthMiddleware: rejected token", map[string]any{"path": c.Request.URL.Path, "error": err.Error()})
			return
		}

		c.Set(helpers.ContextBidderID, claims.UserID)
		c.Set(helpers.ContextBidderName, claims.Username)
		c.Set(helpers.ContextIsOperator, claims.IsOperator)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return c.Query("token")
}

// OperatorMiddleware lets only operator identities through. It runs after AuthMiddleware.
func OperatorMiddleware(c *gin.Context) {
	if !helpers.IsOperator(c) {
		utils.AbortJSONError(c, http.StatusForbidden, biddingerrors.ErrForbidden, "operator access required")
		return
	}
	c.Next()
}

// clientLimiter is the token bucket of one bidder
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// BidRateLimiter throttles bid submissions per bidder
type BidRateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	limit     rate.Limit
	burst     int
	idleAfter time.Duration
	lastSweep time.Time
}

// NewBidRateLimiter allows perSecond bids per bidder with the given burst
func NewBidRateLimiter(perSecond float64, burst int) *BidRateLimiter {
	return &BidRateLimiter{
		clients:   make(map[string]*clientLimiter),
		limit:     rate.Limit(perSecond),
		burst:     burst,
		idleAfter: 10 * time.Minute,
		lastSweep: time.Now(),
	}
}

// Allow reports whether key may proceed now
func (l *BidRateLimiter) Allow(key string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.idleAfter {
		for k, cl := range l.clients {
			if now.Sub(cl.lastSeen) > l.idleAfter {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	cl, ok := l.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

// Limit creates the Gin middleware. Requests are keyed by bidder id, falling back to client IP.
func (l *BidRateLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString(helpers.ContextBidderID)
		if key == "" {
			key = c.ClientIP()
		}

		if !l.Allow(key) {
			utils.AbortJSONError(c, http.StatusTooManyRequests, nil, "too many bid requests, slow down")
			utils.Warn("BidRateLimiter: request throttled", map[string]any{"key": key, "path": c.Request.URL.Path})
			return
		}
		c.Next()
	}
}
