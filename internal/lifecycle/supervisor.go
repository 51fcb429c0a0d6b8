package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"plate-bidding/internal/biddingerrors"
	"plate-bidding/internal/clock"
	"plate-bidding/internal/keylock"
	"plate-bidding/internal/models"
	"plate-bidding/internal/repository"
	"plate-bidding/utils"
)

// State is the derived lifecycle state of a listing
type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
)

const defaultPrecision = 2

// Publisher accepts events for delivery to a listing's subscribers.
// Publish must not block.
type Publisher interface {
	Publish(listingID string, event models.BidEvent)
}

// ListingView is a listing together with its derived state and current leader
type ListingView struct {
	models.Listing
	State      State       `json:"state"`
	HighestBid *models.Bid `json:"highest_bid,omitempty"`
	BidCount   int         `json:"bid_count"`
}

// Supervisor owns the open/closed decision for listings and every operator
// mutation of a listing. It also owns the per-listing lock table shared with
// the bidding engine.
type Supervisor struct {
	store     repository.AuctionDB
	locks     *keylock.Table
	clock     clock.Clock
	publisher Publisher
	precision int32
}

// Option configures a Supervisor
type Option func(*Supervisor)

// WithAmountPrecision sets the number of fractional digits accepted for prices
func WithAmountPrecision(places int32) Option {
	return func(s *Supervisor) {
		s.precision = places
	}
}

// NewSupervisor creates a Supervisor. A nil clock uses the system clock.
func NewSupervisor(store repository.AuctionDB, publisher Publisher, clk clock.Clock, opts ...Option) *Supervisor {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	s := &Supervisor{
		store:     store,
		locks:     keylock.New(),
		clock:     clk,
		publisher: publisher,
		precision: defaultPrecision,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StateOf derives the state of l at instant now. A listing is open only while
// it is active and its deadline lies strictly in the future.
func StateOf(l models.Listing, now time.Time) State {
	if l.IsActive && now.Before(l.Deadline) {
		return StateOpen
	}
	return StateClosed
}

// Lock acquires the mutual exclusion lock of a listing
func (s *Supervisor) Lock(listingID string) (unlock func()) {
	return s.locks.Lock(listingID)
}

// Now returns the supervisor's notion of the current time
func (s *Supervisor) Now() time.Time {
	return s.clock.Now()
}

// EnsureOpen loads a listing and fails unless it is open right now.
// Callers hold the listing lock.
func (s *Supervisor) EnsureOpen(ctx context.Context, listingID string) (models.Listing, error) {
	listing, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return models.Listing{}, fmt.Errorf("lifecycle: failed to load listing %s: %w", listingID, biddingerrors.Classify(err))
	}
	if StateOf(listing, s.clock.Now()) != StateOpen {
		return listing, fmt.Errorf("lifecycle: %w - listing %s", biddingerrors.ErrListingClosed, listingID)
	}
	return listing, nil
}

// CreateListing validates and stores a new active listing owned by ownerID
func (s *Supervisor) CreateListing(ctx context.Context, in models.NewListing, ownerID string) (models.Listing, error) {
	now := s.clock.Now()
	listing := models.Listing{
		ListingID:     utils.GenerateID(),
		PlateNumber:   strings.TrimSpace(in.PlateNumber),
		Description:   in.Description,
		StartingPrice: in.StartingPrice,
		Deadline:      in.Deadline.UTC(),
		IsActive:      true,
		OwnerID:       ownerID,
		CreatedAt:     now,
	}

	if err := s.validate(listing); err != nil {
		return models.Listing{}, err
	}
	if !listing.Deadline.After(now) {
		return models.Listing{}, fmt.Errorf("lifecycle: %w - deadline must be in the future", biddingerrors.ErrInvalidListing)
	}

	if err := s.store.CreateListing(ctx, listing); err != nil {
		return models.Listing{}, fmt.Errorf("lifecycle: failed to create listing %s: %w", listing.PlateNumber, biddingerrors.Classify(err))
	}

	utils.Info("listing created", map[string]any{
		"listing_id":   listing.ListingID,
		"plate_number": listing.PlateNumber,
		"deadline":     listing.Deadline,
	})
	return listing, nil
}

// UpdateListing applies the whitelisted fields of upd and notifies subscribers
func (s *Supervisor) UpdateListing(ctx context.Context, listingID string, upd models.ListingUpdate) (models.Listing, error) {
	if upd.Empty() {
		return models.Listing{}, fmt.Errorf("lifecycle: %w - no fields to update", biddingerrors.ErrInvalidListing)
	}
	if upd.PlateNumber != nil {
		trimmed := strings.TrimSpace(*upd.PlateNumber)
		upd.PlateNumber = &trimmed
	}

	unlock := s.Lock(listingID)
	defer unlock()

	current, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return models.Listing{}, fmt.Errorf("lifecycle: failed to load listing %s: %w", listingID, biddingerrors.Classify(err))
	}

	next := upd.Apply(current)
	if err := s.validate(next); err != nil {
		return models.Listing{}, err
	}
	if upd.Deadline != nil {
		next.Deadline = next.Deadline.UTC()
		if !next.Deadline.After(s.clock.Now()) {
			return models.Listing{}, fmt.Errorf("lifecycle: %w - deadline must be in the future", biddingerrors.ErrInvalidListing)
		}
	}

	if err := s.store.UpdateListing(ctx, next); err != nil {
		return models.Listing{}, fmt.Errorf("lifecycle: failed to update listing %s: %w", listingID, biddingerrors.Classify(err))
	}

	s.announce(ctx, next)
	return next, nil
}

// SetActive flips the manual active flag. Setting the current value is a no-op.
func (s *Supervisor) SetActive(ctx context.Context, listingID string, active bool) (models.Listing, error) {
	unlock := s.Lock(listingID)
	defer unlock()

	listing, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return models.Listing{}, fmt.Errorf("lifecycle: failed to load listing %s: %w", listingID, biddingerrors.Classify(err))
	}
	if listing.IsActive == active {
		return listing, nil
	}

	listing.IsActive = active
	if err := s.store.UpdateListing(ctx, listing); err != nil {
		return models.Listing{}, fmt.Errorf("lifecycle: failed to toggle listing %s: %w", listingID, biddingerrors.Classify(err))
	}

	utils.Info("listing active flag changed", map[string]any{"listing_id": listingID, "is_active": active})
	s.announce(ctx, listing)
	return listing, nil
}

// DeleteListing removes a listing that never received a bid
func (s *Supervisor) DeleteListing(ctx context.Context, listingID string) error {
	unlock := s.Lock(listingID)
	defer unlock()

	if err := s.store.DeleteListing(ctx, listingID); err != nil {
		return fmt.Errorf("lifecycle: failed to delete listing %s: %w", listingID, biddingerrors.Classify(err))
	}

	utils.Info("listing deleted", map[string]any{"listing_id": listingID})
	return nil
}

// GetListing returns a listing with its derived state
func (s *Supervisor) GetListing(ctx context.Context, listingID string) (ListingView, error) {
	listing, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return ListingView{}, fmt.Errorf("lifecycle: failed to get listing %s: %w", listingID, biddingerrors.Classify(err))
	}
	return s.view(ctx, listing, s.clock.Now())
}

// ListListings returns listings matching filter with their derived state
func (s *Supervisor) ListListings(ctx context.Context, filter models.ListingFilter) ([]ListingView, error) {
	listings, err := s.store.ListListings(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: failed to list listings: %w", biddingerrors.Classify(err))
	}

	now := s.clock.Now()
	views := make([]ListingView, 0, len(listings))
	for _, l := range listings {
		v, err := s.view(ctx, l, now)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

func (s *Supervisor) view(ctx context.Context, l models.Listing, now time.Time) (ListingView, error) {
	v := ListingView{Listing: l, State: StateOf(l, now)}

	count, err := s.store.CountBids(ctx, l.ListingID)
	if err != nil {
		return ListingView{}, fmt.Errorf("lifecycle: failed to count bids for %s: %w", l.ListingID, biddingerrors.Classify(err))
	}
	v.BidCount = count
	if count == 0 {
		return v, nil
	}

	highest, err := s.store.Highest(ctx, l.ListingID)
	switch {
	case err == nil:
		v.HighestBid = &highest
	case errors.Is(err, biddingerrors.ErrNoBids):
	default:
		return ListingView{}, fmt.Errorf("lifecycle: failed to get highest bid for %s: %w", l.ListingID, biddingerrors.Classify(err))
	}
	return v, nil
}

func (s *Supervisor) validate(l models.Listing) error {
	if l.PlateNumber == "" {
		return fmt.Errorf("lifecycle: %w - plate number is required", biddingerrors.ErrInvalidListing)
	}
	if !l.StartingPrice.IsPositive() {
		return fmt.Errorf("lifecycle: %w - starting price must be positive", biddingerrors.ErrInvalidListing)
	}
	if !models.HasPrecision(l.StartingPrice, s.precision) {
		return fmt.Errorf("lifecycle: %w - starting price allows at most %d decimal places", biddingerrors.ErrInvalidListing, s.precision)
	}
	if !models.WithinBounds(l.StartingPrice) {
		return fmt.Errorf("lifecycle: %w - starting price must be below 1e%d", biddingerrors.ErrInvalidListing, models.MaxAmountDigits)
	}
	return nil
}

// announce publishes a listing_updated event. Callers hold the listing lock.
func (s *Supervisor) announce(ctx context.Context, l models.Listing) {
	if s.publisher == nil {
		return
	}

	amount := l.StartingPrice
	if highest, err := s.store.Highest(ctx, l.ListingID); err == nil {
		amount = highest.Amount
	}

	snapshot := l
	s.publisher.Publish(l.ListingID, models.BidEvent{
		Action:    models.ActionListingUpdated,
		ListingID: l.ListingID,
		Amount:    amount,
		Timestamp: s.clock.Now(),
		Listing:   &snapshot,
	})
}
