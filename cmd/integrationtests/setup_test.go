package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"plate-bidding/internal/auth"
	bidding "plate-bidding/internal/biddingService"
	"plate-bidding/internal/config"
	"plate-bidding/internal/fanout"
	"plate-bidding/internal/lifecycle"
	model "plate-bidding/internal/models"
	"plate-bidding/internal/repository"
	"plate-bidding/internal/server"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testSecret = "integration-secret"

// testConfig returns a config with limits loose enough for scripted flows
func testConfig(driver string) *config.Config {
	return &config.Config{
		Store: config.StoreConfig{Driver: driver},
		Auth: config.AuthConfig{
			JwtSecret:        testSecret,
			JwtTTL:           time.Hour,
			BidRatePerSecond: 1000,
			BidRateBurst:     1000,
		},
		Fanout: config.FanoutConfig{
			QueueSize:    64,
			SendBuffer:   16,
			WriteTimeout: time.Second,
			PingInterval: time.Second,
		},
	}
}

// SetupTestRouter initializes the router with in-memory repository for integration testing.
func SetupTestRouter(t *testing.T) *gin.Engine {
	return SetupTestRouterWithListings(t)
}

// SetupTestRouterWithListings initializes the router and seeds the in-memory repo with listings.
func SetupTestRouterWithListings(t *testing.T, listings ...model.Listing) *gin.Engine {
	return SetupTestRouterWithStore(t, config.StoreMemory, repository.NewMemoryRepo(), listings...)
}

// SetupTestRouterWithSQLite runs the same wiring over a throwaway sqlite database.
func SetupTestRouterWithSQLite(t *testing.T, listings ...model.Listing) *gin.Engine {
	t.Helper()
	repo, err := repository.NewSQLiteRepo(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return SetupTestRouterWithStore(t, config.StoreSQLite, repo, listings...)
}

// SetupTestRouterWithStore wires the full service stack over store and seeds it.
func SetupTestRouterWithStore(t *testing.T, driver string, store repository.AuctionDB, listings ...model.Listing) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	for _, l := range listings {
		require.NoError(t, store.CreateListing(context.Background(), l))
	}

	broadcaster := fanout.NewBroadcaster(fanout.NewRegistry(nil), nil, fanout.Options{QueueSize: 64})
	t.Cleanup(broadcaster.Close)

	supervisor := lifecycle.NewSupervisor(store, broadcaster, nil)
	service := bidding.NewBiddingService(store, supervisor, broadcaster, nil, bidding.DefaultOptions())

	return server.SetupRouter(server.Dependencies{
		Service:       service,
		Subscriptions: broadcaster,
		Config:        testConfig(driver),
	})
}

// NewListing builds an active listing closing a week from now
func NewListing(id, plate string, startingPrice int64) model.Listing {
	now := time.Now().UTC()
	return model.Listing{
		ListingID:     id,
		PlateNumber:   plate,
		Description:   "plate " + plate,
		StartingPrice: decimal.NewFromInt(startingPrice),
		Deadline:      now.Add(7 * 24 * time.Hour),
		IsActive:      true,
		OwnerID:       "operator",
		CreatedAt:     now,
	}
}

// BidderToken issues a bearer token for a plain bidder
func BidderToken(t *testing.T, bidderID, name string) string {
	t.Helper()
	token, err := auth.GenerateJWT(bidderID, name, false, testSecret, time.Hour)
	require.NoError(t, err)
	return token
}

// OperatorToken issues a bearer token carrying operator rights
func OperatorToken(t *testing.T) string {
	t.Helper()
	token, err := auth.GenerateJWT("operator", "Operator", true, testSecret, time.Hour)
	require.NoError(t, err)
	return token
}

// ExecuteRequest executes an HTTP request and returns the response recorder.
func ExecuteRequest(t *testing.T, router *gin.Engine, method, url, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ExecuteRequestAndParse executes an HTTP request on the given router and parses the response
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url, token string, body any) (map[string]any, *httptest.ResponseRecorder) {
	var reqBody []byte
	var err error

	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	case string:
		reqBody = []byte(v)
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := ExecuteRequest(t, router, method, url, token, reqBody)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		err := json.Unmarshal(w.Body.Bytes(), &resp)
		if err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}

		if w.Code == 201 {
			resp = resp["data"].(map[string]any)
		}
	}

	return resp, w
}

// PlaceBid submits a bid and returns the unwrapped bid body on success
func PlaceBid(t *testing.T, router *gin.Engine, token, listingID, amount string) (map[string]any, int) {
	t.Helper()
	resp, w := ExecuteRequestAndParse(t, router, "POST", "/bids", token, map[string]any{
		"listing_id": listingID,
		"amount":     amount,
	})
	if w.Code == 200 {
		resp = resp["data"].(map[string]any)
	}
	return resp, w.Code
}
