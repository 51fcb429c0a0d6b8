package handler

import (
	"context"
	"net/http"

	"plate-bidding/internal/lifecycle"
	model "plate-bidding/internal/models"
	"plate-bidding/services/bidding/helpers"
	"plate-bidding/utils"

	"github.com/gin-gonic/gin"
)

type ListingServiceInterface interface {
	CreateListing(ctx context.Context, in model.NewListing, ownerID string) (model.Listing, error)
	UpdateListing(ctx context.Context, listingID string, upd model.ListingUpdate) (model.Listing, error)
	SetListingActive(ctx context.Context, listingID string, active bool) (model.Listing, error)
	DeleteListing(ctx context.Context, listingID string) error
	GetListing(ctx context.Context, listingID string) (lifecycle.ListingView, error)
	ListListings(ctx context.Context, filter model.ListingFilter) ([]lifecycle.ListingView, error)
}

type ListingHandler struct {
	service ListingServiceInterface
}

func NewListingHandler(service ListingServiceInterface) *ListingHandler {
	return &ListingHandler{service: service}
}

// ListListingsHandler handles GET /listings
func (h *ListingHandler) ListListingsHandler(c *gin.Context) {
	var q helpers.ListingQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		helpers.HandleBindError(c, "ListListingsHandler", err)
		return
	}

	listings, err := h.service.ListListings(c.Request.Context(), q.ToFilter())
	if err != nil {
		helpers.HandleServiceError(c, "ListListingsHandler", err, nil)
		return
	}
	if listings == nil {
		listings = []lifecycle.ListingView{}
	}

	utils.JSONResponse(c, http.StatusOK, listings, "listings retrieved successfully")
}

// GetListingHandler handles GET /listings/:listing_id
func (h *ListingHandler) GetListingHandler(c *gin.Context) {
	listingID := c.Param("listing_id")
	view, err := h.service.GetListing(c.Request.Context(), listingID)
	if err != nil {
		helpers.HandleServiceError(c, "GetListingHandler", err, map[string]any{"listing_id": listingID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, view, "listing retrieved successfully")
}

// CreateListingHandler handles POST /listings
func (h *ListingHandler) CreateListingHandler(c *gin.Context) {
	operator, ok := requireBidder(c)
	if !ok {
		return
	}

	var req helpers.CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateListingHandler", err)
		return
	}

	listing, err := h.service.CreateListing(c.Request.Context(), req.ToModel(), operator.BidderID)
	if err != nil {
		helpers.HandleServiceError(c, "CreateListingHandler", err, map[string]any{"plate_number": req.PlateNumber})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, listing, "listing created successfully")
	helpers.LogSuccess("CreateListingHandler", "listing created successfully", map[string]any{
		"listing_id":   listing.ListingID,
		"plate_number": listing.PlateNumber,
		"owner_id":     listing.OwnerID,
	})
}

// UpdateListingHandler handles PATCH /listings/:listing_id
func (h *ListingHandler) UpdateListingHandler(c *gin.Context) {
	listingID := c.Param("listing_id")

	var req helpers.UpdateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "UpdateListingHandler", err)
		return
	}

	listing, err := h.service.UpdateListing(c.Request.Context(), listingID, req.ToModel())
	if err != nil {
		helpers.HandleServiceError(c, "UpdateListingHandler", err, map[string]any{"listing_id": listingID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, listing, "listing updated successfully")
	helpers.LogSuccess("UpdateListingHandler", "listing updated successfully", map[string]any{"listing_id": listingID})
}

// SetActiveHandler handles POST /listings/:listing_id/active
func (h *ListingHandler) SetActiveHandler(c *gin.Context) {
	listingID := c.Param("listing_id")

	var req helpers.SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "SetActiveHandler", err)
		return
	}

	listing, err := h.service.SetListingActive(c.Request.Context(), listingID, *req.Active)
	if err != nil {
		helpers.HandleServiceError(c, "SetActiveHandler", err, map[string]any{"listing_id": listingID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, listing, "listing status updated successfully")
	helpers.LogSuccess("SetActiveHandler", "listing status updated successfully", map[string]any{
		"listing_id": listingID,
		"is_active":  listing.IsActive,
	})
}

// DeleteListingHandler handles DELETE /listings/:listing_id
func (h *ListingHandler) DeleteListingHandler(c *gin.Context) {
	listingID := c.Param("listing_id")

	if err := h.service.DeleteListing(c.Request.Context(), listingID); err != nil {
		helpers.HandleServiceError(c, "DeleteListingHandler", err, map[string]any{"listing_id": listingID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, gin.H{"listing_id": listingID}, "listing deleted successfully")
	helpers.LogSuccess("DeleteListingHandler", "listing deleted successfully", map[string]any{"listing_id": listingID})
}
