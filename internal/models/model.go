package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bidder is an authenticated participant resolved by the identity layer
type Bidder struct {
	BidderID    string `json:"bidder_id"`
	DisplayName string `json:"display_name"`
}

// Listing represents a plate put up for auction
type Listing struct {
	ListingID     string          `json:"listing_id"`
	PlateNumber   string          `json:"plate_number"`
	Description   string          `json:"description"`
	StartingPrice decimal.Decimal `json:"starting_price"`
	Deadline      time.Time       `json:"deadline"`
	IsActive      bool            `json:"is_active"`
	OwnerID       string          `json:"owner_id"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Bid represents a bidder's live offer on a listing
type Bid struct {
	BidID      string          `json:"bid_id"`
	ListingID  string          `json:"listing_id"`
	BidderID   string          `json:"bidder_id"`
	BidderName string          `json:"bidder_name"`
	Amount     decimal.Decimal `json:"amount"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NewListing carries the operator supplied fields of a listing about to be created
type NewListing struct {
	PlateNumber   string
	Description   string
	StartingPrice decimal.Decimal
	Deadline      time.Time
}

// ListingUpdate is the whitelist of listing fields an operator may change.
// Nil fields are left untouched.
type ListingUpdate struct {
	PlateNumber   *string
	Description   *string
	StartingPrice *decimal.Decimal
	Deadline      *time.Time
	IsActive      *bool
}

// Empty reports whether the update changes nothing.
func (u ListingUpdate) Empty() bool {
	return u.PlateNumber == nil && u.Description == nil && u.StartingPrice == nil &&
		u.Deadline == nil && u.IsActive == nil
}

// Apply returns a copy of l with the non-nil fields of u written over it
func (u ListingUpdate) Apply(l Listing) Listing {
	if u.PlateNumber != nil {
		l.PlateNumber = *u.PlateNumber
	}
	if u.Description != nil {
		l.Description = *u.Description
	}
	if u.StartingPrice != nil {
		l.StartingPrice = *u.StartingPrice
	}
	if u.Deadline != nil {
		l.Deadline = *u.Deadline
	}
	if u.IsActive != nil {
		l.IsActive = *u.IsActive
	}
	return l
}

// ListingFilter narrows a listing query
type ListingFilter struct {
	IncludeInactive bool
	PlateContains   string
	DeadlineDesc    bool
}

// EventAction names the kind of mutation a BidEvent reports
type EventAction string

const (
	ActionNew            EventAction = "new"
	ActionUpdated        EventAction = "updated"
	ActionDeleted        EventAction = "deleted"
	ActionListingUpdated EventAction = "listing_updated"
)

// BidEvent is an immutable fact pushed to every observer of a listing
type BidEvent struct {
	Action            EventAction     `json:"action"`
	ListingID         string          `json:"listing_id"`
	BidID             string          `json:"bid_id,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	BidderID          string          `json:"bidder_id,omitempty"`
	BidderDisplayName string          `json:"bidder_display_name,omitempty"`
	Timestamp         time.Time       `json:"timestamp"`
	Listing           *Listing        `json:"listing,omitempty"`
}
