package fanout

import (
	"sync"

	"plate-bidding/internal/metrics"
	"plate-bidding/internal/models"
)

// Subscriber is a live connection that receives events for a listing.
// Send must not block on network I/O for long; a returned error removes the
// subscriber from the listing.
type Subscriber interface {
	ID() string
	Send(event models.BidEvent) error
}

// Registry indexes subscribers by listing. It holds no lifecycle authority
// over the connections it references.
type Registry struct {
	mu        sync.RWMutex
	byListing map[string]map[string]Subscriber
	metrics   *metrics.Metrics
}

// NewRegistry creates an empty registry
func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{
		byListing: make(map[string]map[string]Subscriber),
		metrics:   m,
	}
}

// Subscribe adds sub to the listing's subscriber set. Calling it twice for
// the same pair is a no-op; the return value reports whether sub was added.
func (r *Registry) Subscribe(listingID string, sub Subscriber) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.byListing[listingID]
	if !ok {
		subs = make(map[string]Subscriber)
		r.byListing[listingID] = subs
	}
	if _, exists := subs[sub.ID()]; exists {
		return false
	}
	subs[sub.ID()] = sub
	r.metrics.SubscribersChanged(1)
	return true
}

// Unsubscribe removes sub from the listing and prunes the listing entry once
// its set is empty. The return value reports whether sub was present.
func (r *Registry) Unsubscribe(listingID string, sub Subscriber) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.byListing[listingID]
	if !ok {
		return false
	}
	if _, exists := subs[sub.ID()]; !exists {
		return false
	}
	delete(subs, sub.ID())
	if len(subs) == 0 {
		delete(r.byListing, listingID)
	}
	r.metrics.SubscribersChanged(-1)
	return true
}

// Subscribers returns a snapshot of the listing's current subscribers
func (r *Registry) Subscribers(listingID string) []Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := r.byListing[listingID]
	out := make([]Subscriber, 0, len(subs))
	for _, s := range subs {
		out = append(out, s)
	}
	return out
}

// Count returns the number of subscribers of a listing
func (r *Registry) Count(listingID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byListing[listingID])
}

// Listings returns the number of listings with at least one subscriber
func (r *Registry) Listings() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byListing)
}
