package bidding

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"plate-bidding/internal/biddingerrors"
	"plate-bidding/internal/lifecycle"
	"plate-bidding/internal/metrics"
	"plate-bidding/internal/models"
	"plate-bidding/internal/repository"
	"plate-bidding/utils"

	"github.com/shopspring/decimal"
)

// Duplicate bid policies
const (
	PolicyOverwrite = "overwrite"
	PolicyReject    = "reject"
)

// Options carries the bid acceptance policy
type Options struct {
	// DuplicatePolicy decides what a second bid from the same bidder does
	DuplicatePolicy string
	// MinIncrement is the smallest step over the current highest bid. Zero means strict-greater only.
	MinIncrement decimal.Decimal
	// AmountPrecision is the number of fractional digits an amount may carry; 0 means whole units
	AmountPrecision int32
	// EnforceStartingPrice rejects a first bid below the listing's starting price
	EnforceStartingPrice bool
}

// DefaultOptions returns the overwrite, strict-greater, two-decimal policy
func DefaultOptions() Options {
	return Options{
		DuplicatePolicy: PolicyOverwrite,
		MinIncrement:    decimal.Zero,
		AmountPrecision: 2,
	}
}

// BiddingService is the auction engine. It decides bid acceptance atomically
// per listing and reports every accepted mutation to the publisher.
type BiddingService struct {
	repo       repository.AuctionDB
	supervisor *lifecycle.Supervisor
	publisher  lifecycle.Publisher
	metrics    *metrics.Metrics
	opts       Options
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(repo repository.AuctionDB, supervisor *lifecycle.Supervisor, publisher lifecycle.Publisher, m *metrics.Metrics, opts Options) *BiddingService {
	if opts.DuplicatePolicy == "" {
		opts.DuplicatePolicy = PolicyOverwrite
	}
	if opts.AmountPrecision < 0 {
		opts.AmountPrecision = 2
	}
	return &BiddingService{
		repo:       repo,
		supervisor: supervisor,
		publisher:  publisher,
		metrics:    m,
		opts:       opts,
	}
}

// SubmitBid places or raises a bidder's bid on a listing. The whole
// read-compare-write runs under the listing lock, and the resulting event is
// queued for subscribers before the lock is released.
func (s *BiddingService) SubmitBid(ctx context.Context, listingID string, bidder models.Bidder, amount decimal.Decimal) (models.Bid, models.EventAction, error) {
	bid, action, err := s.submitBid(ctx, listingID, bidder, amount)
	if err != nil {
		s.metrics.BidRejected(biddingerrors.Reason(err))
		return models.Bid{}, "", err
	}

	s.metrics.BidAccepted(string(action))
	utils.Info("bid accepted", map[string]any{
		"listing_id": listingID,
		"bid_id":     bid.BidID,
		"bidder_id":  bidder.BidderID,
		"amount":     bid.Amount.String(),
		"action":     action,
	})
	return bid, action, nil
}

func (s *BiddingService) submitBid(ctx context.Context, listingID string, bidder models.Bidder, amount decimal.Decimal) (models.Bid, models.EventAction, error) {
	if listingID == "" {
		return models.Bid{}, "", fmt.Errorf("service: %w - empty listing ID", biddingerrors.ErrListingNotFound)
	}
	if bidder.BidderID == "" {
		return models.Bid{}, "", fmt.Errorf("service: %w - missing bidder identity", biddingerrors.ErrUnauthorized)
	}

	// shape checks run before the lock; a closed listing still reports first
	amountErr := s.validateAmount(amount)

	unlock := s.supervisor.Lock(listingID)
	defer unlock()

	listing, err := s.supervisor.EnsureOpen(ctx, listingID)
	if err != nil {
		return models.Bid{}, "", fmt.Errorf("service: %w", err)
	}
	if amountErr != nil {
		return models.Bid{}, "", amountErr
	}
	if err := s.checkAgainstHighest(ctx, listing, amount); err != nil {
		return models.Bid{}, "", err
	}

	now := s.supervisor.Now()
	existing, err := s.repo.FindBidderBid(ctx, listingID, bidder.BidderID)
	var (
		bid    models.Bid
		action models.EventAction
	)
	switch {
	case err == nil:
		if s.opts.DuplicatePolicy == PolicyReject {
			return models.Bid{}, "", fmt.Errorf("service: %w - bid %s", biddingerrors.ErrDuplicateBid, existing.BidID)
		}
		bid = existing
		bid.Amount = amount
		bid.CreatedAt = now
		bid.BidderName = bidder.DisplayName
		if err := s.repo.UpdateBid(ctx, bid); err != nil {
			return models.Bid{}, "", fmt.Errorf("service: failed to update bid %s: %w", bid.BidID, biddingerrors.Classify(err))
		}
		action = models.ActionUpdated

	case errors.Is(err, biddingerrors.ErrBidNotFound):
		bid = models.Bid{
			BidID:      utils.GenerateID(),
			ListingID:  listingID,
			BidderID:   bidder.BidderID,
			BidderName: bidder.DisplayName,
			Amount:     amount,
			CreatedAt:  now,
		}
		if err := s.repo.CreateBid(ctx, bid); err != nil {
			return models.Bid{}, "", fmt.Errorf("service: failed to record bid for listing %s by bidder %s: %w", listingID, bidder.BidderID, biddingerrors.Classify(err))
		}
		action = models.ActionNew

	default:
		return models.Bid{}, "", fmt.Errorf("service: failed to look up bid of %s: %w", bidder.BidderID, biddingerrors.Classify(err))
	}

	s.publish(action, bid)
	return bid, action, nil
}

// validateAmount checks sign, precision and magnitude of a submitted amount.
// None of the checks rescale the amount.
func (s *BiddingService) validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("service: %w - non-positive bid amount", biddingerrors.ErrInvalidAmount)
	}
	if !models.HasPrecision(amount, s.opts.AmountPrecision) {
		return fmt.Errorf("service: %w - at most %d decimal places", biddingerrors.ErrInvalidAmount, s.opts.AmountPrecision)
	}
	if !models.WithinBounds(amount) {
		return fmt.Errorf("service: %w - amount must be below 1e%d", biddingerrors.ErrInvalidAmount, models.MaxAmountDigits)
	}
	return nil
}

// checkAgainstHighest enforces the strict-greater rule and the optional
// increment and starting price policies. Callers hold the listing lock.
func (s *BiddingService) checkAgainstHighest(ctx context.Context, listing models.Listing, amount decimal.Decimal) error {
	highest, err := s.repo.Highest(ctx, listing.ListingID)
	switch {
	case err == nil:
		if amount.LessThanOrEqual(highest.Amount) {
			return fmt.Errorf("service: %w - current highest bid is %s", biddingerrors.ErrBidTooLow, highest.Amount.StringFixed(s.opts.AmountPrecision))
		}
		if s.opts.MinIncrement.IsPositive() {
			floor := highest.Amount.Add(s.opts.MinIncrement)
			if amount.LessThan(floor) {
				return fmt.Errorf("service: %w - next bid must be at least %s", biddingerrors.ErrBidTooLow, floor.StringFixed(s.opts.AmountPrecision))
			}
		}
	case errors.Is(err, biddingerrors.ErrNoBids):
		if s.opts.EnforceStartingPrice && amount.LessThan(listing.StartingPrice) {
			return fmt.Errorf("service: %w - starting price is %s", biddingerrors.ErrBidTooLow, listing.StartingPrice.StringFixed(s.opts.AmountPrecision))
		}
	default:
		return fmt.Errorf("service: failed to check highest bid: %w", biddingerrors.Classify(err))
	}
	return nil
}

// WithdrawBid removes a bid on behalf of its owner while the listing is open
func (s *BiddingService) WithdrawBid(ctx context.Context, bidID, requesterID string) (models.Bid, error) {
	bid, err := s.withdrawBid(ctx, bidID, requesterID)
	if err != nil {
		s.metrics.BidRejected(biddingerrors.Reason(err))
		return models.Bid{}, err
	}

	s.metrics.BidAccepted(string(models.ActionDeleted))
	utils.Info("bid withdrawn", map[string]any{
		"listing_id": bid.ListingID,
		"bid_id":     bid.BidID,
		"bidder_id":  bid.BidderID,
	})
	return bid, nil
}

func (s *BiddingService) withdrawBid(ctx context.Context, bidID, requesterID string) (models.Bid, error) {
	if bidID == "" {
		return models.Bid{}, fmt.Errorf("service: %w - empty bid ID", biddingerrors.ErrBidNotFound)
	}

	// the listing is only known after a first read; the bid is re-read under the lock
	bid, err := s.repo.GetBid(ctx, bidID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to get bid %s: %w", bidID, biddingerrors.Classify(err))
	}

	unlock := s.supervisor.Lock(bid.ListingID)
	defer unlock()

	bid, err = s.repo.GetBid(ctx, bidID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to get bid %s: %w", bidID, biddingerrors.Classify(err))
	}
	if bid.BidderID != requesterID {
		return models.Bid{}, fmt.Errorf("service: %w - bid %s", biddingerrors.ErrNotOwner, bidID)
	}
	if _, err := s.supervisor.EnsureOpen(ctx, bid.ListingID); err != nil {
		return models.Bid{}, fmt.Errorf("service: %w", err)
	}

	if err := s.repo.DeleteBid(ctx, bidID); err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to delete bid %s: %w", bidID, biddingerrors.Classify(err))
	}

	s.publish(models.ActionDeleted, bid)
	return bid, nil
}

// publish queues the event of an accepted mutation. Callers hold the listing lock.
func (s *BiddingService) publish(action models.EventAction, bid models.Bid) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(bid.ListingID, models.BidEvent{
		Action:            action,
		ListingID:         bid.ListingID,
		BidID:             bid.BidID,
		Amount:            bid.Amount,
		BidderID:          bid.BidderID,
		BidderDisplayName: bid.BidderName,
		Timestamp:         s.supervisor.Now(),
	})
}

// GetBid returns a bid visible to its owner or an operator
func (s *BiddingService) GetBid(ctx context.Context, bidID, requesterID string, isOperator bool) (models.Bid, error) {
	bid, err := s.repo.GetBid(ctx, bidID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to get bid %s: %w", bidID, biddingerrors.Classify(err))
	}
	if !isOperator && bid.BidderID != requesterID {
		return models.Bid{}, fmt.Errorf("service: %w - bid %s", biddingerrors.ErrNotOwner, bidID)
	}
	return bid, nil
}

// GetBidsForListing returns the live bids of a listing, highest first
func (s *BiddingService) GetBidsForListing(ctx context.Context, listingID string) ([]models.Bid, error) {
	if listingID == "" {
		return nil, fmt.Errorf("service: %w - empty listing ID", biddingerrors.ErrListingNotFound)
	}

	bids, err := s.repo.GetBidsByListing(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for listing %s: %w", listingID, biddingerrors.Classify(err))
	}

	sort.SliceStable(bids, func(i, j int) bool {
		if c := bids[i].Amount.Cmp(bids[j].Amount); c != 0 {
			return c > 0
		}
		return bids[i].CreatedAt.Before(bids[j].CreatedAt)
	})
	return bids, nil
}

// GetBidsByBidder returns every live bid of a bidder
func (s *BiddingService) GetBidsByBidder(ctx context.Context, bidderID string) ([]models.Bid, error) {
	if bidderID == "" {
		return nil, fmt.Errorf("service: %w - missing bidder identity", biddingerrors.ErrUnauthorized)
	}

	bids, err := s.repo.GetBidsByBidder(ctx, bidderID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for bidder %s: %w", bidderID, biddingerrors.Classify(err))
	}
	return bids, nil
}

// Highest returns the current leading bid of a listing, ErrNoBids when there is none
func (s *BiddingService) Highest(ctx context.Context, listingID string) (models.Bid, error) {
	if _, err := s.repo.GetListing(ctx, listingID); err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to get listing %s: %w", listingID, biddingerrors.Classify(err))
	}

	highest, err := s.repo.Highest(ctx, listingID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to get highest bid for listing %s: %w", listingID, biddingerrors.Classify(err))
	}
	return highest, nil
}

// CreateListing creates an active listing owned by ownerID
func (s *BiddingService) CreateListing(ctx context.Context, in models.NewListing, ownerID string) (models.Listing, error) {
	return s.supervisor.CreateListing(ctx, in, ownerID)
}

// UpdateListing applies an operator edit to a listing
func (s *BiddingService) UpdateListing(ctx context.Context, listingID string, upd models.ListingUpdate) (models.Listing, error) {
	return s.supervisor.UpdateListing(ctx, listingID, upd)
}

// SetListingActive toggles the manual active flag of a listing
func (s *BiddingService) SetListingActive(ctx context.Context, listingID string, active bool) (models.Listing, error) {
	return s.supervisor.SetActive(ctx, listingID, active)
}

// DeleteListing removes a listing without bids
func (s *BiddingService) DeleteListing(ctx context.Context, listingID string) error {
	return s.supervisor.DeleteListing(ctx, listingID)
}

// GetListing returns a listing with its state and leading bid
func (s *BiddingService) GetListing(ctx context.Context, listingID string) (lifecycle.ListingView, error) {
	return s.supervisor.GetListing(ctx, listingID)
}

// ListListings returns listings matching filter
func (s *BiddingService) ListListings(ctx context.Context, filter models.ListingFilter) ([]lifecycle.ListingView, error) {
	return s.supervisor.ListListings(ctx, filter)
}
