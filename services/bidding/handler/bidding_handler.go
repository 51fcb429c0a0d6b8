package handler

import (
	"context"
	"errors"
	"net/http"

	"plate-bidding/internal/biddingerrors"
	model "plate-bidding/internal/models"
	"plate-bidding/services/bidding/helpers"
	"plate-bidding/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type BiddingServiceInterface interface {
	SubmitBid(ctx context.Context, listingID string, bidder model.Bidder, amount decimal.Decimal) (model.Bid, model.EventAction, error)
	WithdrawBid(ctx context.Context, bidID, requesterID string) (model.Bid, error)
	GetBid(ctx context.Context, bidID, requesterID string, isOperator bool) (model.Bid, error)
	GetBidsForListing(ctx context.Context, listingID string) ([]model.Bid, error)
	GetBidsByBidder(ctx context.Context, bidderID string) ([]model.Bid, error)
	Highest(ctx context.Context, listingID string) (model.Bid, error)
}

type BiddingHandler struct {
	service BiddingServiceInterface
}

func NewBiddingHandler(service BiddingServiceInterface) *BiddingHandler {
	return &BiddingHandler{service: service}
}

// SubmitBidHandler handles POST /bids
func (h *BiddingHandler) SubmitBidHandler(c *gin.Context) {
	bidder, ok := requireBidder(c)
	if !ok {
		return
	}

	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "SubmitBidHandler", err)
		return
	}

	bid, action, err := h.service.SubmitBid(c.Request.Context(), req.ListingID, bidder, *req.Amount)
	if err != nil {
		helpers.HandleServiceError(c, "SubmitBidHandler", err, map[string]any{
			"listing_id": req.ListingID,
			"bidder_id":  bidder.BidderID,
			"amount":     model.FormatAmount(*req.Amount),
		})
		return
	}

	resp := helpers.NewBidResponse(bid)
	resp.Action = string(action)

	status, message := http.StatusCreated, "bid recorded successfully"
	if action == model.ActionUpdated {
		status, message = http.StatusOK, "bid updated successfully"
	}
	utils.JSONResponse(c, status, resp, message)
	helpers.LogSuccess("SubmitBidHandler", message, map[string]any{
		"bid_id":     bid.BidID,
		"listing_id": bid.ListingID,
		"bidder_id":  bid.BidderID,
		"amount":     bid.Amount.String(),
	})
}

// WithdrawBidHandler handles DELETE /bids/:bid_id
func (h *BiddingHandler) WithdrawBidHandler(c *gin.Context) {
	bidder, ok := requireBidder(c)
	if !ok {
		return
	}

	bidID := c.Param("bid_id")
	bid, err := h.service.WithdrawBid(c.Request.Context(), bidID, bidder.BidderID)
	if err != nil {
		helpers.HandleServiceError(c, "WithdrawBidHandler", err, map[string]any{"bid_id": bidID, "bidder_id": bidder.BidderID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewBidResponse(bid), "bid withdrawn successfully")
	helpers.LogSuccess("WithdrawBidHandler", "bid withdrawn successfully", map[string]any{
		"bid_id":     bid.BidID,
		"listing_id": bid.ListingID,
	})
}

// GetBidHandler handles GET /bids/:bid_id
func (h *BiddingHandler) GetBidHandler(c *gin.Context) {
	bidder, ok := requireBidder(c)
	if !ok {
		return
	}

	bidID := c.Param("bid_id")
	bid, err := h.service.GetBid(c.Request.Context(), bidID, bidder.BidderID, helpers.IsOperator(c))
	if err != nil {
		helpers.HandleServiceError(c, "GetBidHandler", err, map[string]any{"bid_id": bidID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewBidResponse(bid), "bid retrieved successfully")
}

// GetMyBidsHandler handles GET /bidders/me/bids
func (h *BiddingHandler) GetMyBidsHandler(c *gin.Context) {
	bidder, ok := requireBidder(c)
	if !ok {
		return
	}

	bids, err := h.service.GetBidsByBidder(c.Request.Context(), bidder.BidderID)
	if err != nil {
		helpers.HandleServiceError(c, "GetMyBidsHandler", err, map[string]any{"bidder_id": bidder.BidderID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewBidResponses(bids), "bids retrieved successfully")
	helpers.LogSuccess("GetMyBidsHandler", "bids retrieved successfully", map[string]any{
		"bidder_id": bidder.BidderID,
		"count":     len(bids),
	})
}

// GetBidsByListingHandler handles GET /listings/:listing_id/bids
func (h *BiddingHandler) GetBidsByListingHandler(c *gin.Context) {
	listingID := c.Param("listing_id")
	bids, err := h.service.GetBidsForListing(c.Request.Context(), listingID)
	if err != nil {
		helpers.HandleServiceError(c, "GetBidsByListingHandler", err, map[string]any{"listing_id": listingID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewBidResponses(bids), "bids retrieved successfully")
	helpers.LogSuccess("GetBidsByListingHandler", "bids retrieved successfully", map[string]any{
		"listing_id": listingID,
		"count":      len(bids),
	})
}

// GetHighestBidHandler handles GET /listings/:listing_id/highest
func (h *BiddingHandler) GetHighestBidHandler(c *gin.Context) {
	listingID := c.Param("listing_id")
	bid, err := h.service.Highest(c.Request.Context(), listingID)
	if err != nil {
		if errors.Is(err, biddingerrors.ErrNoBids) {
			utils.JSONError(c, http.StatusNotFound, err, "no bids found for listing")
			utils.Info("GetHighestBidHandler: no bids yet", map[string]any{"listing_id": listingID})
			return
		}
		helpers.HandleServiceError(c, "GetHighestBidHandler", err, map[string]any{"listing_id": listingID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewBidResponse(bid), "highest bid retrieved successfully")
}

// requireBidder writes a 401 when the request carries no bidder identity
func requireBidder(c *gin.Context) (model.Bidder, bool) {
	bidder, ok := helpers.BidderFromContext(c)
	if !ok {
		utils.JSONError(c, http.StatusUnauthorized, biddingerrors.ErrUnauthorized, "unauthorized")
		return model.Bidder{}, false
	}
	return bidder, true
}
