package biddingerrors

import (
	"errors"
	"fmt"
)

// Repository-level errors
var (
	ErrListingNotFound  = errors.New("listing not found")
	ErrBidNotFound      = errors.New("bid not found")
	ErrNoBids           = errors.New("no bids found for listing")
	ErrPlateNumberTaken = errors.New("plate number already exists")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// business logic errors
var (
	ErrListingClosed  = errors.New("listing is closed")
	ErrInvalidAmount  = errors.New("invalid bid amount")
	ErrBidTooLow      = errors.New("bid amount too low")
	ErrNotOwner       = errors.New("requester does not own the bid")
	ErrDuplicateBid   = errors.New("bidder already has a bid on this listing")
	ErrInvalidListing = errors.New("invalid listing")
	ErrListingHasBids = errors.New("listing has bids")
)

// identity errors
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// reasons maps every rejection a caller can act on to a short label
var reasons = []struct {
	err    error
	reason string
}{
	{ErrListingNotFound, "listing_not_found"},
	{ErrBidNotFound, "bid_not_found"},
	{ErrNoBids, "no_bids"},
	{ErrPlateNumberTaken, "plate_number_taken"},
	{ErrListingClosed, "listing_closed"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrBidTooLow, "bid_too_low"},
	{ErrNotOwner, "not_owner"},
	{ErrDuplicateBid, "duplicate_bid"},
	{ErrInvalidListing, "invalid_listing"},
	{ErrListingHasBids, "listing_has_bids"},
	{ErrUnauthorized, "unauthorized"},
	{ErrForbidden, "forbidden"},
	{ErrStoreUnavailable, "store_unavailable"},
}

// Reason returns a stable label for err, "internal" when it is not a known error
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "internal"
}

// Classify returns err unchanged when it is a known error and otherwise
// marks it as a store fault, so callers never leak raw driver errors as
// anything other than ErrStoreUnavailable.
func Classify(err error) error {
	if err == nil || Reason(err) != "internal" {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
