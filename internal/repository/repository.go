package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"plate-bidding/internal/biddingerrors"
	model "plate-bidding/internal/models"
)

// ListingStore defines listing persistence for the auction system
type ListingStore interface {
	CreateListing(ctx context.Context, listing model.Listing) error
	GetListing(ctx context.Context, listingID string) (model.Listing, error)
	ListListings(ctx context.Context, filter model.ListingFilter) ([]model.Listing, error)
	UpdateListing(ctx context.Context, listing model.Listing) error
	DeleteListing(ctx context.Context, listingID string) error
}

// BidLedger defines bid persistence. At most one row exists per (listing, bidder).
type BidLedger interface {
	CreateBid(ctx context.Context, bid model.Bid) error
	UpdateBid(ctx context.Context, bid model.Bid) error
	DeleteBid(ctx context.Context, bidID string) error
	GetBid(ctx context.Context, bidID string) (model.Bid, error)
	GetBidsByListing(ctx context.Context, listingID string) ([]model.Bid, error)
	GetBidsByBidder(ctx context.Context, bidderID string) ([]model.Bid, error)
	FindBidderBid(ctx context.Context, listingID, bidderID string) (model.Bid, error)
	Highest(ctx context.Context, listingID string) (model.Bid, error)
	CountBids(ctx context.Context, listingID string) (int, error)
}

// AuctionDB is the full persistence collaborator consumed by the engine
type AuctionDB interface {
	ListingStore
	BidLedger
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB
type MemoryRepo struct {
	mu        sync.RWMutex
	listings  map[string]model.Listing
	plates    map[string]string    // key: plate number -> value: listingID
	bids      map[string]model.Bid // key: bidID -> value: bid
	byListing map[string][]string  // key: listingID -> value: bidIDs in recording order
	byBidder  map[bidderKey]string // key: (listingID, bidderID) -> value: bidID
}

type bidderKey struct {
	listingID string
	bidderID  string
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		listings:  make(map[string]model.Listing),
		plates:    make(map[string]string),
		bids:      make(map[string]model.Bid),
		byListing: make(map[string][]string),
		byBidder:  make(map[bidderKey]string),
	}
}

// CreateListing stores a new listing. Plate numbers are unique.
func (r *MemoryRepo) CreateListing(_ context.Context, listing model.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.listings[listing.ListingID]; ok {
		return fmt.Errorf("create listing %s: %w - duplicate id", listing.ListingID, biddingerrors.ErrInvalidListing)
	}
	if _, ok := r.plates[listing.PlateNumber]; ok {
		return fmt.Errorf("create listing %s: %w", listing.PlateNumber, biddingerrors.ErrPlateNumberTaken)
	}

	r.listings[listing.ListingID] = listing
	r.plates[listing.PlateNumber] = listing.ListingID
	return nil
}

// GetListing returns a listing by id
func (r *MemoryRepo) GetListing(_ context.Context, listingID string) (model.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	listing, ok := r.listings[listingID]
	if !ok {
		return model.Listing{}, fmt.Errorf("get listing %s: %w", listingID, biddingerrors.ErrListingNotFound)
	}
	return listing, nil
}

// ListListings returns listings matching the filter ordered by deadline
func (r *MemoryRepo) ListListings(_ context.Context, filter model.ListingFilter) ([]model.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.ToLower(filter.PlateContains)
	listings := make([]model.Listing, 0, len(r.listings))
	for _, l := range r.listings {
		if !filter.IncludeInactive && !l.IsActive {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(l.PlateNumber), needle) {
			continue
		}
		listings = append(listings, l)
	}

	sort.Slice(listings, func(i, j int) bool {
		a, b := listings[i], listings[j]
		if !a.Deadline.Equal(b.Deadline) {
			if filter.DeadlineDesc {
				return a.Deadline.After(b.Deadline)
			}
			return a.Deadline.Before(b.Deadline)
		}
		return a.ListingID < b.ListingID
	})
	return listings, nil
}

// UpdateListing overwrites a stored listing
func (r *MemoryRepo) UpdateListing(_ context.Context, listing model.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.listings[listing.ListingID]
	if !ok {
		return fmt.Errorf("update listing %s: %w", listing.ListingID, biddingerrors.ErrListingNotFound)
	}
	if owner, taken := r.plates[listing.PlateNumber]; taken && owner != listing.ListingID {
		return fmt.Errorf("update listing %s: %w", listing.ListingID, biddingerrors.ErrPlateNumberTaken)
	}

	delete(r.plates, current.PlateNumber)
	r.plates[listing.PlateNumber] = listing.ListingID
	r.listings[listing.ListingID] = listing
	return nil
}

// DeleteListing removes a listing that has no bids
func (r *MemoryRepo) DeleteListing(_ context.Context, listingID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	listing, ok := r.listings[listingID]
	if !ok {
		return fmt.Errorf("delete listing %s: %w", listingID, biddingerrors.ErrListingNotFound)
	}
	if len(r.byListing[listingID]) > 0 {
		return fmt.Errorf("delete listing %s: %w", listingID, biddingerrors.ErrListingHasBids)
	}

	delete(r.plates, listing.PlateNumber)
	delete(r.listings, listingID)
	return nil
}

// CreateBid records a bidder's first bid on a listing
func (r *MemoryRepo) CreateBid(_ context.Context, bid model.Bid) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.listings[bid.ListingID]; !ok {
		return fmt.Errorf("create bid for listing %s: %w", bid.ListingID, biddingerrors.ErrListingNotFound)
	}
	key := bidderKey{listingID: bid.ListingID, bidderID: bid.BidderID}
	if _, ok := r.byBidder[key]; ok {
		return fmt.Errorf("create bid for listing %s: %w", bid.ListingID, biddingerrors.ErrDuplicateBid)
	}

	r.bids[bid.BidID] = bid
	r.byListing[bid.ListingID] = append(r.byListing[bid.ListingID], bid.BidID)
	r.byBidder[key] = bid.BidID
	return nil
}

// UpdateBid overwrites amount, timestamp and display name of an existing bid in place
func (r *MemoryRepo) UpdateBid(_ context.Context, bid model.Bid) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.bids[bid.BidID]
	if !ok {
		return fmt.Errorf("update bid %s: %w", bid.BidID, biddingerrors.ErrBidNotFound)
	}

	current.Amount = bid.Amount
	current.CreatedAt = bid.CreatedAt
	current.BidderName = bid.BidderName
	r.bids[bid.BidID] = current
	return nil
}

// DeleteBid removes a bid row
func (r *MemoryRepo) DeleteBid(_ context.Context, bidID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	bid, ok := r.bids[bidID]
	if !ok {
		return fmt.Errorf("delete bid %s: %w", bidID, biddingerrors.ErrBidNotFound)
	}

	delete(r.bids, bidID)
	delete(r.byBidder, bidderKey{listingID: bid.ListingID, bidderID: bid.BidderID})

	ids := r.byListing[bid.ListingID]
	for i, id := range ids {
		if id == bidID {
			ids = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(r.byListing, bid.ListingID)
	} else {
		r.byListing[bid.ListingID] = ids
	}
	return nil
}

// GetBid returns a bid by id
func (r *MemoryRepo) GetBid(_ context.Context, bidID string) (model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bid, ok := r.bids[bidID]
	if !ok {
		return model.Bid{}, fmt.Errorf("get bid %s: %w", bidID, biddingerrors.ErrBidNotFound)
	}
	return bid, nil
}

// GetBidsByListing returns all live bids for a listing in recording order
func (r *MemoryRepo) GetBidsByListing(_ context.Context, listingID string) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.listings[listingID]; !ok {
		return nil, fmt.Errorf("get bids for listing %s: %w", listingID, biddingerrors.ErrListingNotFound)
	}

	ids := r.byListing[listingID]
	bids := make([]model.Bid, 0, len(ids))
	for _, id := range ids {
		bids = append(bids, r.bids[id])
	}
	return bids, nil
}

// GetBidsByBidder returns every live bid placed by a bidder
func (r *MemoryRepo) GetBidsByBidder(_ context.Context, bidderID string) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bids := make([]model.Bid, 0)
	for key, id := range r.byBidder {
		if key.bidderID == bidderID {
			bids = append(bids, r.bids[id])
		}
	}
	sort.Slice(bids, func(i, j int) bool {
		if !bids[i].CreatedAt.Equal(bids[j].CreatedAt) {
			return bids[i].CreatedAt.Before(bids[j].CreatedAt)
		}
		return bids[i].BidID < bids[j].BidID
	})
	return bids, nil
}

// FindBidderBid returns the live bid of a bidder on a listing
func (r *MemoryRepo) FindBidderBid(_ context.Context, listingID, bidderID string) (model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byBidder[bidderKey{listingID: listingID, bidderID: bidderID}]
	if !ok {
		return model.Bid{}, fmt.Errorf("find bid of %s on listing %s: %w", bidderID, listingID, biddingerrors.ErrBidNotFound)
	}
	return r.bids[id], nil
}

// Highest returns the maximum live bid for a listing.
// Equal amounts resolve to the earlier recorded bid.
func (r *MemoryRepo) Highest(_ context.Context, listingID string) (model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byListing[listingID]
	if len(ids) == 0 {
		return model.Bid{}, fmt.Errorf("get highest bid for listing %s: %w", listingID, biddingerrors.ErrNoBids)
	}

	winning := r.bids[ids[0]]
	for _, id := range ids[1:] {
		b := r.bids[id]
		cmp := b.Amount.Cmp(winning.Amount)
		if cmp > 0 || (cmp == 0 && b.CreatedAt.Before(winning.CreatedAt)) {
			winning = b
		}
	}
	return winning, nil
}

// CountBids returns the number of live bid rows on a listing
func (r *MemoryRepo) CountBids(_ context.Context, listingID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byListing[listingID]), nil
}

// AddListing stores a listing without validation. Used for seeding and tests.
func (r *MemoryRepo) AddListing(listing model.Listing) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listings[listing.ListingID] = listing
	r.plates[listing.PlateNumber] = listing.ListingID
}
