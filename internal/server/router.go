package server

import (
	"net/http"

	bidding "plate-bidding/internal/biddingService"
	"plate-bidding/internal/config"
	handler "plate-bidding/services/bidding/handler"
	"plate-bidding/utils"

	"github.com/gin-gonic/gin"
)

// Dependencies are the collaborators the HTTP layer is wired to
type Dependencies struct {
	Service       *bidding.BiddingService
	Subscriptions handler.Subscriptions
	Config        *config.Config
	// MetricsHandler serves the Prometheus scrape endpoint; nil disables it
	MetricsHandler http.Handler
}

// SetupRouter configures all Gin routes for the application
func SetupRouter(deps Dependencies) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging

	cfg := deps.Config
	biddingHandler := handler.NewBiddingHandler(deps.Service)
	listingHandler := handler.NewListingHandler(deps.Service)
	liveHandler := handler.NewLiveHandler(deps.Service, deps.Subscriptions, handler.LiveOptions{
		SendBuffer:   cfg.Fanout.SendBuffer,
		WriteTimeout: cfg.Fanout.WriteTimeout,
		PingInterval: cfg.Fanout.PingInterval,
	})

	router.GET("/healthz", func(c *gin.Context) {
		utils.JSONResponse(c, http.StatusOK, gin.H{"store": cfg.Store.Driver}, "ok")
	})
	if deps.MetricsHandler != nil && cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(deps.MetricsHandler))
	}

	listings := router.Group("/listings")
	{
		listings.GET("", listingHandler.ListListingsHandler)
		listings.GET("/:listing_id", listingHandler.GetListingHandler)
		listings.GET("/:listing_id/bids", biddingHandler.GetBidsByListingHandler)
		listings.GET("/:listing_id/highest", biddingHandler.GetHighestBidHandler)
	}

	router.GET("/ws/listings/:listing_id", liveHandler.StreamListingHandler)

	authed := router.Group("", AuthMiddleware(cfg.Auth.JwtSecret))

	limiter := NewBidRateLimiter(cfg.Auth.BidRatePerSecond, cfg.Auth.BidRateBurst)
	bids := authed.Group("/bids")
	{
		bids.POST("", limiter.Limit(), biddingHandler.SubmitBidHandler)
		bids.GET("/:bid_id", biddingHandler.GetBidHandler)
		bids.DELETE("/:bid_id", biddingHandler.WithdrawBidHandler)
	}

	bidders := authed.Group("/bidders")
	{
		bidders.GET("/me/bids", biddingHandler.GetMyBidsHandler)
	}

	operator := authed.Group("/listings", OperatorMiddleware)
	{
		operator.POST("", listingHandler.CreateListingHandler)
		operator.PATCH("/:listing_id", listingHandler.UpdateListingHandler)
		operator.POST("/:listing_id/active", listingHandler.SetActiveHandler)
		operator.DELETE("/:listing_id", listingHandler.DeleteListingHandler)
	}

	return router
}
