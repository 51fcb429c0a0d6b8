package helpers

import (
	"errors"
	"fmt"
	"net/http"

	"plate-bidding/internal/biddingerrors"
	model "plate-bidding/internal/models"
	"plate-bidding/utils"

	"github.com/gin-gonic/gin"
)

// Context keys set by the authentication middleware
const (
	ContextBidderID   = "bidder_id"
	ContextBidderName = "bidder_name"
	ContextIsOperator = "is_operator"
)

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// HandleServiceError maps err to a status, writes the error envelope and logs it.
// Client errors log at warn, server faults at error.
func HandleServiceError(c *gin.Context, handlerName string, err error, fields map[string]any) {
	status, message := MapErrorToHTTP(err)
	utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)

	if fields == nil {
		fields = map[string]any{}
	}
	fields["handler"] = handlerName
	fields["error"] = err.Error()
	fields["status"] = status
	if status >= http.StatusInternalServerError {
		utils.Error(handlerName+": request failed", fields)
		return
	}
	utils.Warn(handlerName+": request rejected", fields)
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, biddingerrors.ErrListingNotFound):
		return http.StatusNotFound, "listing not found"
	case errors.Is(err, biddingerrors.ErrBidNotFound):
		return http.StatusNotFound, "bid not found"
	case errors.Is(err, biddingerrors.ErrNoBids):
		return http.StatusNotFound, "no bids found for listing"
	case errors.Is(err, biddingerrors.ErrListingClosed):
		return http.StatusConflict, "listing is closed"
	case errors.Is(err, biddingerrors.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid bid amount"
	case errors.Is(err, biddingerrors.ErrInvalidListing):
		return http.StatusBadRequest, "invalid listing details"
	case errors.Is(err, biddingerrors.ErrBidTooLow):
		return http.StatusConflict, "bid amount too low"
	case errors.Is(err, biddingerrors.ErrDuplicateBid):
		return http.StatusConflict, "bidder already has a bid on this listing"
	case errors.Is(err, biddingerrors.ErrPlateNumberTaken):
		return http.StatusConflict, "plate number already exists"
	case errors.Is(err, biddingerrors.ErrListingHasBids):
		return http.StatusConflict, "listing has bids"
	case errors.Is(err, biddingerrors.ErrNotOwner):
		return http.StatusForbidden, "not the owner of this bid"
	case errors.Is(err, biddingerrors.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, biddingerrors.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, biddingerrors.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store unavailable, retry later"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// BidderFromContext returns the authenticated bidder set by the auth middleware
func BidderFromContext(c *gin.Context) (model.Bidder, bool) {
	id := c.GetString(ContextBidderID)
	if id == "" {
		return model.Bidder{}, false
	}
	return model.Bidder{BidderID: id, DisplayName: c.GetString(ContextBidderName)}, true
}

// IsOperator reports whether the caller authenticated as an operator
func IsOperator(c *gin.Context) bool {
	return c.GetBool(ContextIsOperator)
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
