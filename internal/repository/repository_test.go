package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"plate-bidding/internal/biddingerrors"
	model "plate-bidding/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// Helper to create a new Listing
func newListing(listingID, plate string, startingPrice string, active bool) model.Listing {
	return model.Listing{
		ListingID:     listingID,
		PlateNumber:   plate,
		Description:   fmt.Sprintf("%s description", plate),
		StartingPrice: decimal.RequireFromString(startingPrice),
		Deadline:      baseTime.Add(7 * 24 * time.Hour),
		IsActive:      active,
		OwnerID:       "operator",
		CreatedAt:     baseTime,
	}
}

// Helper to create a new Bid
func newBid(bidID, listingID, bidderID string, amount string, createdAt time.Time) model.Bid {
	return model.Bid{
		BidID:      bidID,
		ListingID:  listingID,
		BidderID:   bidderID,
		BidderName: bidderID + "-name",
		Amount:     decimal.RequireFromString(amount),
		CreatedAt:  createdAt,
	}
}

func requireSameBid(t *testing.T, want, got model.Bid) {
	t.Helper()
	require.Equal(t, want.BidID, got.BidID)
	require.Equal(t, want.ListingID, got.ListingID)
	require.Equal(t, want.BidderID, got.BidderID)
	require.Equal(t, want.BidderName, got.BidderName)
	require.True(t, want.Amount.Equal(got.Amount), "amount: want %s, got %s", want.Amount, got.Amount)
	require.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at: want %s, got %s", want.CreatedAt, got.CreatedAt)
}

func bidIDs(bids []model.Bid) []string {
	ids := make([]string, 0, len(bids))
	for _, b := range bids {
		ids = append(ids, b.BidID)
	}
	return ids
}

// forEachStore runs fn against a fresh MemoryRepo and a fresh in-memory SQLiteRepo
func forEachStore(t *testing.T, fn func(t *testing.T, repo AuctionDB)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		t.Parallel()
		fn(t, NewMemoryRepo())
	})

	t.Run("sqlite", func(t *testing.T) {
		t.Parallel()
		repo, err := NewSQLiteRepo(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = repo.Close() })
		fn(t, repo)
	})
}

func TestStore_CreateAndGetListing(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, repo AuctionDB) {
		ctx := context.Background()
		listing := newListing("l1", "01A777AA", "1000", true)
		require.NoError(t, repo.CreateListing(ctx, listing))

		got, err := repo.GetListing(ctx, "l1")
		require.NoError(t, err)
		require.Equal(t, listing.PlateNumber, got.PlateNumber)
		require.Equal(t, listing.Description, got.Description)
		require.True(t, listing.StartingPrice.Equal(got.StartingPrice))
		require.True(t, listing.Deadline.Equal(got.Deadline))
		require.True(t, got.IsActive)
		require.Equal(t, "operator", got.OwnerID)

		t.Run("duplicate_plate", func(t *testing.T) {
			err := repo.CreateListing(ctx, newListing("l2", "01A777AA", "500", true))
			require.ErrorIs(t, err, biddingerrors.ErrPlateNumberTaken)
		})

		t.Run("unknown_listing", func(t *testing.T) {
			_, err := repo.GetListing(ctx, "missing")
			require.ErrorIs(t, err, biddingerrors.ErrListingNotFound)
		})
	})
}

func TestStore_ListListings(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, repo AuctionDB) {
		ctx := context.Background()
		early := newListing("l-early", "01A111AA", "100", true)
		early.Deadline = baseTime.Add(time.Hour)
		late := newListing("l-late", "01B222BB", "100", true)
		late.Deadline = baseTime.Add(48 * time.Hour)
		hidden := newListing("l-hidden", "01A333AA", "100", false)
		for _, l := range []model.Listing{late, hidden, early} {
			require.NoError(t, repo.CreateListing(ctx, l))
		}

		tests := []struct {
			name   string
			filter model.ListingFilter
			want   []string
		}{
			{name: "active_by_deadline", filter: model.ListingFilter{}, want: []string{"l-early", "l-late"}},
			{name: "deadline_desc", filter: model.ListingFilter{DeadlineDesc: true}, want: []string{"l-late", "l-early"}},
			{name: "plate_filter_case_insensitive", filter: model.ListingFilter{PlateContains: "b222"}, want: []string{"l-late"}},
			{name: "include_inactive", filter: model.ListingFilter{IncludeInactive: true, PlateContains: "01A"}, want: []string{"l-early", "l-hidden"}},
			{name: "no_match", filter: model.ListingFilter{PlateContains: "zzz"}, want: []string{}},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				listings, err := repo.ListListings(ctx, tc.filter)
				require.NoError(t, err)
				got := make([]string, 0, len(listings))
				for _, l := range listings {
					got = append(got, l.ListingID)
				}
				require.Equal(t, tc.want, got)
			})
		}
	})
}

func TestStore_UpdateAndDeleteListing(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, repo AuctionDB) {
		ctx := context.Background()
		require.NoError(t, repo.CreateListing(ctx, newListing("l1", "PLATE-1", "100", true)))
		require.NoError(t, repo.CreateListing(ctx, newListing("l2", "PLATE-2", "100", true)))

		updated := newListing("l1", "PLATE-1B", "250", false)
		require.NoError(t, repo.UpdateListing(ctx, updated))

		got, err := repo.GetListing(ctx, "l1")
		require.NoError(t, err)
		require.Equal(t, "PLATE-1B", got.PlateNumber)
		require.False(t, got.IsActive)
		require.True(t, decimal.NewFromInt(250).Equal(got.StartingPrice))

		// the old plate number is free again
		require.NoError(t, repo.CreateListing(ctx, newListing("l3", "PLATE-1", "100", true)))

		err = repo.UpdateListing(ctx, newListing("l1", "PLATE-2", "100", true))
		require.ErrorIs(t, err, biddingerrors.ErrPlateNumberTaken)

		err = repo.UpdateListing(ctx, newListing("missing", "PLATE-X", "100", true))
		require.ErrorIs(t, err, biddingerrors.ErrListingNotFound)

		require.NoError(t, repo.CreateBid(ctx, newBid("b1", "l2", "alice", "150", baseTime)))
		require.ErrorIs(t, repo.DeleteListing(ctx, "l2"), biddingerrors.ErrListingHasBids)

		require.NoError(t, repo.DeleteListing(ctx, "l1"))
		_, err = repo.GetListing(ctx, "l1")
		require.ErrorIs(t, err, biddingerrors.ErrListingNotFound)
		require.ErrorIs(t, repo.DeleteListing(ctx, "l1"), biddingerrors.ErrListingNotFound)
	})
}

func TestStore_CreateBid(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, repo AuctionDB) {
		ctx := context.Background()
		require.NoError(t, repo.CreateListing(ctx, newListing("l1", "PLATE-1", "50", true)))

		tests := []struct {
			name    string
			bid     model.Bid
			wantErr error
		}{
			{name: "valid_bid", bid: newBid("bid1", "l1", "user1", "100", baseTime)},
			{name: "fractional_amount", bid: newBid("bid2", "l1", "user2", "100.25", baseTime)},
			{name: "listing_not_found", bid: newBid("bid3", "lX", "user1", "50", baseTime), wantErr: biddingerrors.ErrListingNotFound},
			{name: "second_row_same_bidder", bid: newBid("bid4", "l1", "user1", "300", baseTime), wantErr: biddingerrors.ErrDuplicateBid},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				err := repo.CreateBid(ctx, tc.bid)
				if tc.wantErr != nil {
					require.ErrorIs(t, err, tc.wantErr)
					return
				}
				require.NoError(t, err)
				got, err := repo.GetBid(ctx, tc.bid.BidID)
				require.NoError(t, err)
				requireSameBid(t, tc.bid, got)
			})
		}

		count, err := repo.CountBids(ctx, "l1")
		require.NoError(t, err)
		require.Equal(t, 2, count)
	})
}

func TestStore_UpdateBidInPlace(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, repo AuctionDB) {
		ctx := context.Background()
		require.NoError(t, repo.CreateListing(ctx, newListing("l1", "PLATE-1", "50", true)))
		original := newBid("bid1", "l1", "user1", "100", baseTime)
		require.NoError(t, repo.CreateBid(ctx, original))

		changed := original
		changed.Amount = decimal.RequireFromString("175.50")
		changed.CreatedAt = baseTime.Add(time.Minute)
		changed.ListingID = "ignored"
		changed.BidderID = "ignored"
		require.NoError(t, repo.UpdateBid(ctx, changed))

		got, err := repo.FindBidderBid(ctx, "l1", "user1")
		require.NoError(t, err)
		require.Equal(t, "bid1", got.BidID)
		require.Equal(t, "l1", got.ListingID)
		require.Equal(t, "user1", got.BidderID)
		require.True(t, changed.Amount.Equal(got.Amount))
		require.True(t, changed.CreatedAt.Equal(got.CreatedAt))

		count, err := repo.CountBids(ctx, "l1")
		require.NoError(t, err)
		require.Equal(t, 1, count)

		err = repo.UpdateBid(ctx, newBid("missing", "l1", "user1", "1", baseTime))
		require.ErrorIs(t, err, biddingerrors.ErrBidNotFound)
	})
}

func TestStore_Highest(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, repo AuctionDB) {
		ctx := context.Background()
		for _, l := range []model.Listing{
			newListing("l1", "P1", "50", true),
			newListing("l2", "P2", "75", true),
			newListing("l3", "P3", "100", true),
			newListing("l4", "P4", "150", true),
		} {
			require.NoError(t, repo.CreateListing(ctx, l))
		}

		bid1 := newBid("bid1", "l1", "user1", "100", baseTime)
		bid2 := newBid("bid2", "l1", "user2", "150", baseTime.Add(time.Second))
		require.NoError(t, repo.CreateBid(ctx, bid1))
		require.NoError(t, repo.CreateBid(ctx, bid2))

		var many []model.Bid
		for i := 0; i < 200; i++ {
			b := newBid(fmt.Sprintf("bid-many-%d", i), "l3", fmt.Sprintf("user-%d", i), fmt.Sprintf("%d.%02d", 100+i, i%100), baseTime)
			require.NoError(t, repo.CreateBid(ctx, b))
			many = append(many, b)
		}

		tieFirst := newBid("bid-tie1", "l4", "userA", "200", baseTime)
		tieSecond := newBid("bid-tie2", "l4", "userB", "200", baseTime)
		require.NoError(t, repo.CreateBid(ctx, tieFirst))
		require.NoError(t, repo.CreateBid(ctx, tieSecond))

		tests := []struct {
			name      string
			listingID string
			want      model.Bid
			wantErr   error
		}{
			{name: "listing_with_bids", listingID: "l1", want: bid2},
			{name: "listing_without_bids", listingID: "l2", wantErr: biddingerrors.ErrNoBids},
			{name: "unknown_listing", listingID: "lX", wantErr: biddingerrors.ErrNoBids},
			{name: "many_bids", listingID: "l3", want: many[len(many)-1]},
			{name: "tie_first_recorded_wins", listingID: "l4", want: tieFirst},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				got, err := repo.Highest(ctx, tc.listingID)
				if tc.wantErr != nil {
					require.ErrorIs(t, err, tc.wantErr)
					return
				}
				require.NoError(t, err)
				requireSameBid(t, tc.want, got)
			})
		}
	})
}

func TestStore_HighestAfterWithdrawal(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, repo AuctionDB) {
		ctx := context.Background()
		require.NoError(t, repo.CreateListing(ctx, newListing("l1", "P1", "50", true)))

		low := newBid("low", "l1", "alice", "100", baseTime)
		high := newBid("high", "l1", "bob", "200", baseTime.Add(time.Second))
		require.NoError(t, repo.CreateBid(ctx, low))
		require.NoError(t, repo.CreateBid(ctx, high))

		require.NoError(t, repo.DeleteBid(ctx, "high"))
		got, err := repo.Highest(ctx, "l1")
		require.NoError(t, err)
		requireSameBid(t, low, got)

		require.NoError(t, repo.DeleteBid(ctx, "low"))
		_, err = repo.Highest(ctx, "l1")
		require.ErrorIs(t, err, biddingerrors.ErrNoBids)

		require.ErrorIs(t, repo.DeleteBid(ctx, "low"), biddingerrors.ErrBidNotFound)

		// a withdrawn bidder may bid again as a fresh row
		require.NoError(t, repo.CreateBid(ctx, newBid("again", "l1", "bob", "120", baseTime.Add(time.Minute))))
		_, err = repo.FindBidderBid(ctx, "l1", "alice")
		require.ErrorIs(t, err, biddingerrors.ErrBidNotFound)
	})
}

func TestStore_BidQueries(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, repo AuctionDB) {
		ctx := context.Background()
		require.NoError(t, repo.CreateListing(ctx, newListing("l1", "P1", "50", true)))
		require.NoError(t, repo.CreateListing(ctx, newListing("l2", "P2", "50", true)))
		require.NoError(t, repo.CreateListing(ctx, newListing("l3", "P3", "50", true)))

		require.NoError(t, repo.CreateBid(ctx, newBid("a1", "l1", "alice", "100", baseTime)))
		require.NoError(t, repo.CreateBid(ctx, newBid("b1", "l1", "bob", "110", baseTime.Add(time.Second))))
		require.NoError(t, repo.CreateBid(ctx, newBid("a2", "l2", "alice", "300", baseTime.Add(2*time.Second))))

		bids, err := repo.GetBidsByListing(ctx, "l1")
		require.NoError(t, err)
		require.Equal(t, []string{"a1", "b1"}, bidIDs(bids))

		bids, err = repo.GetBidsByListing(ctx, "l3")
		require.NoError(t, err)
		require.Empty(t, bids)

		_, err = repo.GetBidsByListing(ctx, "missing")
		require.ErrorIs(t, err, biddingerrors.ErrListingNotFound)

		bids, err = repo.GetBidsByBidder(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, []string{"a1", "a2"}, bidIDs(bids))

		bids, err = repo.GetBidsByBidder(ctx, "nobody")
		require.NoError(t, err)
		require.Empty(t, bids)

		_, err = repo.GetBid(ctx, "missing")
		require.ErrorIs(t, err, biddingerrors.ErrBidNotFound)
	})
}

// concurrency test
func TestMemoryRepo_ConcurrentBids(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepo()
	repo.AddListing(newListing("l1", "P1", "50", true))
	ctx := context.Background()

	var wg sync.WaitGroup
	concurrentCount := 50

	for i := 0; i < concurrentCount; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			b := newBid(fmt.Sprintf("bid-%d", i), "l1", fmt.Sprintf("user-%d", i), fmt.Sprintf("%d", 100+i), baseTime)
			require.NoError(t, repo.CreateBid(ctx, b))
		}()
	}

	wg.Wait()

	bids, err := repo.GetBidsByListing(ctx, "l1")
	require.NoError(t, err)
	require.Len(t, bids, concurrentCount)

	highest, err := repo.Highest(ctx, "l1")
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(149).Equal(highest.Amount))
}

func TestSQLiteRepo_StoreUnavailableAfterClose(t *testing.T) {
	t.Parallel()

	repo, err := NewSQLiteRepo(":memory:")
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	_, err = repo.Highest(context.Background(), "l1")
	require.Error(t, err)
	require.True(t, errors.Is(err, biddingerrors.ErrStoreUnavailable), "got %v", err)
}

func TestSQLiteRepo_RejectsAmountsBeyondColumnRange(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo, err := NewSQLiteRepo(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	require.NoError(t, repo.CreateListing(ctx, newListing("l1", "01A777AA", "1000", true)))

	huge := newBid("b1", "l1", "alice", "1000000000000000", baseTime)
	err = repo.CreateBid(ctx, huge)
	require.ErrorIs(t, err, biddingerrors.ErrInvalidAmount)

	_, err = repo.Highest(ctx, "l1")
	require.ErrorIs(t, err, biddingerrors.ErrNoBids, "a rejected amount leaves no row behind")

	require.NoError(t, repo.CreateBid(ctx, newBid("b2", "l1", "bob", "999999999999.99", baseTime)))
	err = repo.UpdateBid(ctx, newBid("b2", "l1", "bob", "1e15", baseTime.Add(time.Second)))
	require.ErrorIs(t, err, biddingerrors.ErrInvalidAmount)

	highest, err := repo.Highest(ctx, "l1")
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("999999999999.99").Equal(highest.Amount), "got %s", highest.Amount)

	err = repo.CreateListing(ctx, newListing("l2", "01B777AA", "1e13", true))
	require.ErrorIs(t, err, biddingerrors.ErrInvalidListing)
}
