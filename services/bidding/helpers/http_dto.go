package helpers

import (
	"time"

	model "plate-bidding/internal/models"

	"github.com/shopspring/decimal"
)

// Request/Response DTOs
type PlaceBidRequest struct {
	ListingID string           `json:"listing_id" binding:"required"`
	Amount    *decimal.Decimal `json:"amount" binding:"required"`
}

type BidResponse struct {
	BidID      string          `json:"bid_id"`
	ListingID  string          `json:"listing_id"`
	BidderID   string          `json:"bidder_id"`
	BidderName string          `json:"bidder_name"`
	Amount     decimal.Decimal `json:"amount"`
	CreatedAt  string          `json:"created_at"`
	Action     string          `json:"action,omitempty"`
}

// NewBidResponse converts a bid for the wire
func NewBidResponse(bid model.Bid) BidResponse {
	return BidResponse{
		BidID:      bid.BidID,
		ListingID:  bid.ListingID,
		BidderID:   bid.BidderID,
		BidderName: bid.BidderName,
		Amount:     bid.Amount,
		CreatedAt:  bid.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// NewBidResponses converts a list of bids, never returning nil
func NewBidResponses(bids []model.Bid) []BidResponse {
	out := make([]BidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, NewBidResponse(b))
	}
	return out
}

type CreateListingRequest struct {
	PlateNumber   string           `json:"plate_number" binding:"required"`
	Description   string           `json:"description"`
	StartingPrice *decimal.Decimal `json:"starting_price" binding:"required"`
	Deadline      *time.Time       `json:"deadline" binding:"required"`
}

// ToModel converts the request to the lifecycle input
func (r CreateListingRequest) ToModel() model.NewListing {
	return model.NewListing{
		PlateNumber:   r.PlateNumber,
		Description:   r.Description,
		StartingPrice: *r.StartingPrice,
		Deadline:      *r.Deadline,
	}
}

// UpdateListingRequest lists the only listing fields an operator may edit
type UpdateListingRequest struct {
	PlateNumber   *string          `json:"plate_number"`
	Description   *string          `json:"description"`
	StartingPrice *decimal.Decimal `json:"starting_price"`
	Deadline      *time.Time       `json:"deadline"`
	IsActive      *bool            `json:"is_active"`
}

func (r UpdateListingRequest) ToModel() model.ListingUpdate {
	return model.ListingUpdate{
		PlateNumber:   r.PlateNumber,
		Description:   r.Description,
		StartingPrice: r.StartingPrice,
		Deadline:      r.Deadline,
		IsActive:      r.IsActive,
	}
}

type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// ListingQuery holds the GET /listings query parameters
type ListingQuery struct {
	IncludeInactive bool   `form:"include_inactive"`
	PlateNumber     string `form:"plate_number"`
	Ordering        string `form:"ordering" binding:"omitempty,oneof=deadline -deadline"`
}

func (q ListingQuery) ToFilter() model.ListingFilter {
	return model.ListingFilter{
		IncludeInactive: q.IncludeInactive,
		PlateContains:   q.PlateNumber,
		DeadlineDesc:    q.Ordering == "-deadline",
	}
}
