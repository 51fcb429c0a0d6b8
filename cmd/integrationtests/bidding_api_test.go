package integrationtests

import (
	"net/http"
	"testing"
	"time"

	model "plate-bidding/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

// SubmitBidHandler Tests
func TestSubmitBidHandler(t *testing.T) {
	tests := []struct {
		name       string
		listing    model.Listing
		noToken    bool
		request    any
		wantStatus int
	}{
		{
			name:    "Valid_Bid",
			listing: NewListing("listing1", "DXB A 12", 1000),
			request: map[string]any{
				"listing_id": "listing1",
				"amount":     "1500",
			},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "Invalid_JSON",
			listing:    NewListing("listing1", "DXB A 12", 1000),
			request:    "{listing_id: 'missing quotes', amount: 100}", // invalid JSON
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Missing_Amount",
			listing:    NewListing("listing1", "DXB A 12", 1000),
			request:    map[string]any{"listing_id": "listing1"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "No_Token",
			listing:    NewListing("listing1", "DXB A 12", 1000),
			noToken:    true,
			request:    map[string]any{"listing_id": "listing1", "amount": "1500"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "Listing_Not_Found",
			listing:    NewListing("listing1", "DXB A 12", 1000),
			request:    map[string]any{"listing_id": "nonexistent", "amount": "1500"},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "Zero_Amount",
			listing:    NewListing("listing1", "DXB A 12", 1000),
			request:    map[string]any{"listing_id": "listing1", "amount": "0"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Too_Many_Decimals",
			listing:    NewListing("listing1", "DXB A 12", 1000),
			request:    map[string]any{"listing_id": "listing1", "amount": "1500.125"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "Deadline_Passed",
			listing: func() model.Listing {
				l := NewListing("listing1", "DXB A 12", 1000)
				l.Deadline = time.Now().Add(-time.Minute)
				return l
			}(),
			request:    map[string]any{"listing_id": "listing1", "amount": "1000000"},
			wantStatus: http.StatusConflict,
		},
		{
			name: "Inactive_Listing",
			listing: func() model.Listing {
				l := NewListing("listing1", "DXB A 12", 1000)
				l.IsActive = false
				return l
			}(),
			request:    map[string]any{"listing_id": "listing1", "amount": "1500"},
			wantStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := SetupTestRouterWithListings(t, tt.listing)

			token := BidderToken(t, "user1", "Alice")
			if tt.noToken {
				token = ""
			}

			resp, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/bids", token, tt.request)
			require.Equal(t, tt.wantStatus, w.Code)

			if tt.wantStatus == http.StatusCreated {
				require.Equal(t, "listing1", resp["listing_id"])
				require.Equal(t, "user1", resp["bidder_id"])
				require.Equal(t, "Alice", resp["bidder_name"])
				require.Equal(t, "1500", resp["amount"])
				require.Equal(t, "new", resp["action"])
				require.NotEmpty(t, resp["bid_id"])

				_, err := time.Parse(time.RFC3339Nano, resp["created_at"].(string))
				require.NoError(t, err)
			}
		})
	}
}

// A full auction round trip, run over both store drivers
func TestBiddingScenario(t *testing.T) {
	setups := map[string]func(*testing.T, ...model.Listing) *gin.Engine{
		"Memory": SetupTestRouterWithListings,
		"SQLite": SetupTestRouterWithSQLite,
	}

	for name, setup := range setups {
		t.Run(name, func(t *testing.T) {
			router := setup(t, NewListing("listing1", "AUH 777", 1000))
			alice := BidderToken(t, "alice", "Alice")
			bob := BidderToken(t, "bob", "Bob")

			first, status := PlaceBid(t, router, alice, "listing1", "1500")
			require.Equal(t, http.StatusCreated, status)
			require.Equal(t, "new", first["action"])

			_, status = PlaceBid(t, router, bob, "listing1", "1400")
			require.Equal(t, http.StatusConflict, status)

			_, status = PlaceBid(t, router, bob, "listing1", "1500")
			require.Equal(t, http.StatusConflict, status, "ties lose")

			_, status = PlaceBid(t, router, bob, "listing1", "1600")
			require.Equal(t, http.StatusCreated, status)

			raised, status := PlaceBid(t, router, alice, "listing1", "1700")
			require.Equal(t, http.StatusOK, status)
			require.Equal(t, "updated", raised["action"])
			require.Equal(t, first["bid_id"], raised["bid_id"], "resubmission keeps the bid id")

			resp, w := ExecuteRequestAndParse(t, router, http.MethodGet, "/listings/listing1/highest", "", nil)
			require.Equal(t, http.StatusOK, w.Code)
			highest := resp["data"].(map[string]any)
			require.Equal(t, "alice", highest["bidder_id"])
			require.Equal(t, "1700", highest["amount"])

			resp, w = ExecuteRequestAndParse(t, router, http.MethodGet, "/listings/listing1/bids", "", nil)
			require.Equal(t, http.StatusOK, w.Code)
			bids := resp["data"].([]any)
			require.Len(t, bids, 2)
			require.Equal(t, "1700", bids[0].(map[string]any)["amount"])
			require.Equal(t, "1600", bids[1].(map[string]any)["amount"])

			resp, w = ExecuteRequestAndParse(t, router, http.MethodGet, "/listings/listing1", "", nil)
			require.Equal(t, http.StatusOK, w.Code)
			view := resp["data"].(map[string]any)
			require.Equal(t, "open", view["state"])
			require.EqualValues(t, 2, view["bid_count"])
		})
	}
}

// GetBidsByListingHandler Tests
func TestGetBidsByListingHandler(t *testing.T) {
	tests := []struct {
		name       string
		listings   []model.Listing
		seedBids   map[string]string // bidder -> amount
		listingID  string
		wantCount  int
		wantStatus int
	}{
		{
			name:       "With_Bids",
			listings:   []model.Listing{NewListing("listing1", "SHJ 1", 50)},
			seedBids:   map[string]string{"user1": "100"},
			listingID:  "listing1",
			wantCount:  1,
			wantStatus: http.StatusOK,
		},
		{
			name:       "No_Bids",
			listings:   []model.Listing{NewListing("listing2", "SHJ 2", 30)},
			listingID:  "listing2",
			wantCount:  0,
			wantStatus: http.StatusOK,
		},
		{
			name:       "Listing_Not_Found",
			listingID:  "nonexistent",
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := SetupTestRouterWithListings(t, tt.listings...)
			for bidder, amount := range tt.seedBids {
				_, status := PlaceBid(t, router, BidderToken(t, bidder, bidder), tt.listingID, amount)
				require.Equal(t, http.StatusCreated, status)
			}

			resp, w := ExecuteRequestAndParse(t, router, http.MethodGet, "/listings/"+tt.listingID+"/bids", "", nil)
			require.Equal(t, tt.wantStatus, w.Code)

			if tt.wantStatus == http.StatusOK {
				bids := resp["data"].([]any)
				require.Len(t, bids, tt.wantCount)
			}
		})
	}
}

// GetHighestBidHandler Tests
func TestGetHighestBidHandler(t *testing.T) {
	type seed struct {
		bidder string
		amount string
	}

	tests := []struct {
		name       string
		listings   []model.Listing
		seedBids   []seed
		listingID  string
		wantBidder string
		wantAmount string
		wantStatus int
	}{
		{
			name:     "With_Bids",
			listings: []model.Listing{NewListing("listing1", "RAK 5", 50)},
			seedBids: []seed{
				{"user1", "100"},
				{"user3", "120"},
				{"user2", "150"},
			},
			listingID:  "listing1",
			wantBidder: "user2",
			wantAmount: "150",
			wantStatus: http.StatusOK,
		},
		{
			name:       "No_Bids",
			listings:   []model.Listing{NewListing("listing2", "RAK 6", 30)},
			listingID:  "listing2",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "Listing_Not_Found",
			listingID:  "nonexistent",
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := SetupTestRouterWithListings(t, tt.listings...)
			for _, bid := range tt.seedBids {
				_, status := PlaceBid(t, router, BidderToken(t, bid.bidder, bid.bidder), tt.listingID, bid.amount)
				require.Equal(t, http.StatusCreated, status)
			}

			resp, w := ExecuteRequestAndParse(t, router, http.MethodGet, "/listings/"+tt.listingID+"/highest", "", nil)
			require.Equal(t, tt.wantStatus, w.Code)

			if tt.wantStatus == http.StatusOK {
				data := resp["data"].(map[string]any)
				require.Equal(t, tt.listingID, data["listing_id"])
				require.Equal(t, tt.wantBidder, data["bidder_id"])
				require.Equal(t, tt.wantAmount, data["amount"])
				_, err := time.Parse(time.RFC3339Nano, data["created_at"].(string))
				require.NoError(t, err)
			}
		})
	}
}

// GetMyBidsHandler Tests
func TestGetMyBidsHandler(t *testing.T) {
	router := SetupTestRouterWithListings(t,
		NewListing("listing1", "DXB 1", 50),
		NewListing("listing2", "DXB 2", 30),
	)

	user1 := BidderToken(t, "user1", "User One")
	for _, listingID := range []string{"listing1", "listing2"} {
		_, status := PlaceBid(t, router, user1, listingID, "100")
		require.Equal(t, http.StatusCreated, status)
	}

	tests := []struct {
		name               string
		bidderID           string
		expectedListingIDs []string
	}{
		{
			name:               "Bidder_With_Bids",
			bidderID:           "user1",
			expectedListingIDs: []string{"listing1", "listing2"},
		},
		{
			name:               "Bidder_Without_Bids",
			bidderID:           "user2",
			expectedListingIDs: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := BidderToken(t, tt.bidderID, tt.bidderID)
			resp, w := ExecuteRequestAndParse(t, router, http.MethodGet, "/bidders/me/bids", token, nil)
			require.Equal(t, http.StatusOK, w.Code)

			bids := resp["data"].([]any)
			require.Len(t, bids, len(tt.expectedListingIDs))

			listingIDs := map[string]bool{}
			for _, b := range bids {
				listingIDs[b.(map[string]any)["listing_id"].(string)] = true
			}
			for _, id := range tt.expectedListingIDs {
				require.True(t, listingIDs[id])
			}
		})
	}

	t.Run("No_Token", func(t *testing.T) {
		_, w := ExecuteRequestAndParse(t, router, http.MethodGet, "/bidders/me/bids", "", nil)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestWithdrawBid(t *testing.T) {
	router := SetupTestRouterWithListings(t, NewListing("listing1", "FUJ 9", 100))
	alice := BidderToken(t, "alice", "Alice")
	bob := BidderToken(t, "bob", "Bob")

	bid, status := PlaceBid(t, router, alice, "listing1", "500")
	require.Equal(t, http.StatusCreated, status)
	bidURL := "/bids/" + bid["bid_id"].(string)

	_, w := ExecuteRequestAndParse(t, router, http.MethodGet, bidURL, bob, nil)
	require.Equal(t, http.StatusForbidden, w.Code, "other bidders cannot read the bid")

	_, w = ExecuteRequestAndParse(t, router, http.MethodGet, bidURL, OperatorToken(t), nil)
	require.Equal(t, http.StatusOK, w.Code, "operators can read any bid")

	_, w = ExecuteRequestAndParse(t, router, http.MethodDelete, bidURL, bob, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	_, w = ExecuteRequestAndParse(t, router, http.MethodDelete, bidURL, alice, nil)
	require.Equal(t, http.StatusOK, w.Code)

	_, w = ExecuteRequestAndParse(t, router, http.MethodDelete, bidURL, alice, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	_, w = ExecuteRequestAndParse(t, router, http.MethodGet, "/listings/listing1/highest", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	// a withdrawn bidder may bid again, below the previous amount
	_, status = PlaceBid(t, router, alice, "listing1", "200")
	require.Equal(t, http.StatusCreated, status)
}

func TestListingAdministration(t *testing.T) {
	router := SetupTestRouter(t)
	operator := OperatorToken(t)
	bidder := BidderToken(t, "user1", "User One")

	create := map[string]any{
		"plate_number":   "DXB Q 55",
		"description":    "two digit plate",
		"starting_price": "25000",
		"deadline":       time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
	}

	_, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/listings", bidder, create)
	require.Equal(t, http.StatusForbidden, w.Code, "bidders cannot create listings")

	listing, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/listings", operator, create)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "DXB Q 55", listing["plate_number"])
	require.Equal(t, true, listing["is_active"])
	listingID := listing["listing_id"].(string)
	listingURL := "/listings/" + listingID

	_, w = ExecuteRequestAndParse(t, router, http.MethodPost, "/listings", operator, create)
	require.Equal(t, http.StatusConflict, w.Code, "plate numbers are unique")

	past := map[string]any{
		"plate_number":   "DXB Q 56",
		"starting_price": "25000",
		"deadline":       time.Now().Add(-time.Hour).UTC().Format(time.RFC3339),
	}
	_, w = ExecuteRequestAndParse(t, router, http.MethodPost, "/listings", operator, past)
	require.Equal(t, http.StatusBadRequest, w.Code)

	resp, w := ExecuteRequestAndParse(t, router, http.MethodPatch, listingURL, operator, map[string]any{
		"description": "updated description",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "updated description", resp["data"].(map[string]any)["description"])

	_, status := PlaceBid(t, router, bidder, listingID, "30000")
	require.Equal(t, http.StatusCreated, status)

	_, w = ExecuteRequestAndParse(t, router, http.MethodDelete, listingURL, operator, nil)
	require.Equal(t, http.StatusConflict, w.Code, "listings with bids cannot be deleted")

	_, w = ExecuteRequestAndParse(t, router, http.MethodPost, listingURL+"/active", operator, map[string]any{"active": false})
	require.Equal(t, http.StatusOK, w.Code)

	_, status = PlaceBid(t, router, bidder, listingID, "40000")
	require.Equal(t, http.StatusConflict, status, "inactive listings are closed")

	resp, w = ExecuteRequestAndParse(t, router, http.MethodGet, listingURL, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "closed", resp["data"].(map[string]any)["state"])

	resp, w = ExecuteRequestAndParse(t, router, http.MethodGet, "/listings", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, resp["data"], "inactive listings are hidden by default")

	resp, w = ExecuteRequestAndParse(t, router, http.MethodGet, "/listings?include_inactive=true", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, resp["data"], 1)
}
