package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"plate-bidding/internal/biddingerrors"
	model "plate-bidding/internal/models"

	_ "github.com/glebarez/go-sqlite"
	"github.com/shopspring/decimal"
)

// amountScale is the number of fractional digits kept by the integer amount columns
const amountScale = 4

const schema = `
CREATE TABLE IF NOT EXISTS listings (
	listing_id     TEXT PRIMARY KEY,
	plate_number   TEXT NOT NULL UNIQUE,
	description    TEXT NOT NULL DEFAULT '',
	starting_price INTEGER NOT NULL,
	deadline       INTEGER NOT NULL,
	is_active      INTEGER NOT NULL DEFAULT 1,
	owner_id       TEXT NOT NULL DEFAULT '',
	created_at     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS bids (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	bid_id      TEXT NOT NULL UNIQUE,
	listing_id  TEXT NOT NULL REFERENCES listings(listing_id),
	bidder_id   TEXT NOT NULL,
	bidder_name TEXT NOT NULL DEFAULT '',
	amount      INTEGER NOT NULL,
	created_at  INTEGER NOT NULL,
	UNIQUE (listing_id, bidder_id)
);

CREATE INDEX IF NOT EXISTS idx_bids_listing_amount ON bids (listing_id, amount DESC);
CREATE INDEX IF NOT EXISTS idx_bids_bidder ON bids (bidder_id);
`

const (
	listingColumns = `listing_id, plate_number, description, starting_price, deadline, is_active, owner_id, created_at`
	bidColumns     = `bid_id, listing_id, bidder_id, bidder_name, amount, created_at`
)

// SQLiteRepo implements AuctionDB on an embedded SQLite database
type SQLiteRepo struct {
	db *sql.DB
}

// NewSQLiteRepo opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func NewSQLiteRepo(path string) (*SQLiteRepo, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

// Close releases the underlying database handle
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// toUnits converts d to integer minor units, rejecting amounts the column cannot hold
func toUnits(d decimal.Decimal) (int64, error) {
	if !model.WithinBounds(d) {
		return 0, fmt.Errorf("%w - %s is out of the storable range", biddingerrors.ErrInvalidAmount, model.FormatAmount(d))
	}
	return d.Shift(amountScale).IntPart(), nil
}

func fromUnits(units int64) decimal.Decimal {
	return decimal.New(units, -amountScale)
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func unavailable(op string, err error) error {
	return fmt.Errorf("sqlite: %s: %w: %w", op, biddingerrors.ErrStoreUnavailable, err)
}

func isUniqueViolation(err error, columns string) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") &&
		strings.Contains(err.Error(), columns)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (model.Listing, error) {
	var (
		l                   model.Listing
		price               int64
		deadline, createdAt int64
		active              int
	)
	if err := row.Scan(&l.ListingID, &l.PlateNumber, &l.Description, &price, &deadline, &active, &l.OwnerID, &createdAt); err != nil {
		return model.Listing{}, err
	}
	l.StartingPrice = fromUnits(price)
	l.Deadline = fromNanos(deadline)
	l.IsActive = active != 0
	l.CreatedAt = fromNanos(createdAt)
	return l, nil
}

func scanBid(row rowScanner) (model.Bid, error) {
	var (
		b         model.Bid
		amount    int64
		createdAt int64
	)
	if err := row.Scan(&b.BidID, &b.ListingID, &b.BidderID, &b.BidderName, &amount, &createdAt); err != nil {
		return model.Bid{}, err
	}
	b.Amount = fromUnits(amount)
	b.CreatedAt = fromNanos(createdAt)
	return b, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// CreateListing inserts a listing. Plate numbers are unique.
func (r *SQLiteRepo) CreateListing(ctx context.Context, listing model.Listing) error {
	price, err := toUnits(listing.StartingPrice)
	if err != nil {
		return fmt.Errorf("create listing %s: %w: %w", listing.ListingID, biddingerrors.ErrInvalidListing, err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO listings (`+listingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		listing.ListingID, listing.PlateNumber, listing.Description, price,
		toNanos(listing.Deadline), boolToInt(listing.IsActive), listing.OwnerID, toNanos(listing.CreatedAt),
	)
	switch {
	case isUniqueViolation(err, "listings.plate_number"):
		return fmt.Errorf("create listing %s: %w", listing.PlateNumber, biddingerrors.ErrPlateNumberTaken)
	case isUniqueViolation(err, "listings.listing_id"):
		return fmt.Errorf("create listing %s: %w - duplicate id", listing.ListingID, biddingerrors.ErrInvalidListing)
	case err != nil:
		return unavailable("create listing", err)
	}
	return nil
}

// GetListing returns a listing by id
func (r *SQLiteRepo) GetListing(ctx context.Context, listingID string) (model.Listing, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE listing_id = ?`, listingID)
	listing, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Listing{}, fmt.Errorf("get listing %s: %w", listingID, biddingerrors.ErrListingNotFound)
	}
	if err != nil {
		return model.Listing{}, unavailable("get listing", err)
	}
	return listing, nil
}

// ListListings returns listings matching the filter ordered by deadline
func (r *SQLiteRepo) ListListings(ctx context.Context, filter model.ListingFilter) ([]model.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE 1 = 1`
	var args []any
	if !filter.IncludeInactive {
		query += ` AND is_active = 1`
	}
	if filter.PlateContains != "" {
		query += ` AND instr(lower(plate_number), lower(?)) > 0`
		args = append(args, filter.PlateContains)
	}
	if filter.DeadlineDesc {
		query += ` ORDER BY deadline DESC, listing_id ASC`
	} else {
		query += ` ORDER BY deadline ASC, listing_id ASC`
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("list listings", err)
	}
	defer rows.Close()

	listings := make([]model.Listing, 0)
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, unavailable("list listings", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list listings", err)
	}
	return listings, nil
}

// UpdateListing overwrites the mutable columns of a listing
func (r *SQLiteRepo) UpdateListing(ctx context.Context, listing model.Listing) error {
	price, err := toUnits(listing.StartingPrice)
	if err != nil {
		return fmt.Errorf("update listing %s: %w: %w", listing.ListingID, biddingerrors.ErrInvalidListing, err)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE listings SET plate_number = ?, description = ?, starting_price = ?, deadline = ?, is_active = ?
		 WHERE listing_id = ?`,
		listing.PlateNumber, listing.Description, price,
		toNanos(listing.Deadline), boolToInt(listing.IsActive), listing.ListingID,
	)
	if isUniqueViolation(err, "listings.plate_number") {
		return fmt.Errorf("update listing %s: %w", listing.ListingID, biddingerrors.ErrPlateNumberTaken)
	}
	if err != nil {
		return unavailable("update listing", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return unavailable("update listing", err)
	} else if n == 0 {
		return fmt.Errorf("update listing %s: %w", listing.ListingID, biddingerrors.ErrListingNotFound)
	}
	return nil
}

// DeleteListing removes a listing that has no bids
func (r *SQLiteRepo) DeleteListing(ctx context.Context, listingID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("delete listing", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM bids WHERE listing_id = ?`, listingID).Scan(&count); err != nil {
		return unavailable("delete listing", err)
	}
	if count > 0 {
		return fmt.Errorf("delete listing %s: %w", listingID, biddingerrors.ErrListingHasBids)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM listings WHERE listing_id = ?`, listingID)
	if err != nil {
		return unavailable("delete listing", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return unavailable("delete listing", err)
	} else if n == 0 {
		return fmt.Errorf("delete listing %s: %w", listingID, biddingerrors.ErrListingNotFound)
	}

	if err := tx.Commit(); err != nil {
		return unavailable("delete listing", err)
	}
	return nil
}

// CreateBid records a bidder's first bid on a listing
func (r *SQLiteRepo) CreateBid(ctx context.Context, bid model.Bid) error {
	amount, err := toUnits(bid.Amount)
	if err != nil {
		return fmt.Errorf("create bid for listing %s: %w", bid.ListingID, err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("create bid", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM listings WHERE listing_id = ?`, bid.ListingID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("create bid for listing %s: %w", bid.ListingID, biddingerrors.ErrListingNotFound)
	}
	if err != nil {
		return unavailable("create bid", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO bids (`+bidColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		bid.BidID, bid.ListingID, bid.BidderID, bid.BidderName, amount, toNanos(bid.CreatedAt),
	)
	if isUniqueViolation(err, "bids.listing_id") {
		return fmt.Errorf("create bid for listing %s: %w", bid.ListingID, biddingerrors.ErrDuplicateBid)
	}
	if err != nil {
		return unavailable("create bid", err)
	}

	if err := tx.Commit(); err != nil {
		return unavailable("create bid", err)
	}
	return nil
}

// UpdateBid overwrites amount, timestamp and display name of an existing bid in place
func (r *SQLiteRepo) UpdateBid(ctx context.Context, bid model.Bid) error {
	amount, err := toUnits(bid.Amount)
	if err != nil {
		return fmt.Errorf("update bid %s: %w", bid.BidID, err)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE bids SET amount = ?, created_at = ?, bidder_name = ? WHERE bid_id = ?`,
		amount, toNanos(bid.CreatedAt), bid.BidderName, bid.BidID,
	)
	if err != nil {
		return unavailable("update bid", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return unavailable("update bid", err)
	} else if n == 0 {
		return fmt.Errorf("update bid %s: %w", bid.BidID, biddingerrors.ErrBidNotFound)
	}
	return nil
}

// DeleteBid removes a bid row
func (r *SQLiteRepo) DeleteBid(ctx context.Context, bidID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bids WHERE bid_id = ?`, bidID)
	if err != nil {
		return unavailable("delete bid", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return unavailable("delete bid", err)
	} else if n == 0 {
		return fmt.Errorf("delete bid %s: %w", bidID, biddingerrors.ErrBidNotFound)
	}
	return nil
}

// GetBid returns a bid by id
func (r *SQLiteRepo) GetBid(ctx context.Context, bidID string) (model.Bid, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+bidColumns+` FROM bids WHERE bid_id = ?`, bidID)
	bid, err := scanBid(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Bid{}, fmt.Errorf("get bid %s: %w", bidID, biddingerrors.ErrBidNotFound)
	}
	if err != nil {
		return model.Bid{}, unavailable("get bid", err)
	}
	return bid, nil
}

func (r *SQLiteRepo) queryBids(ctx context.Context, op, query string, args ...any) ([]model.Bid, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()

	bids := make([]model.Bid, 0)
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, unavailable(op, err)
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return bids, nil
}

// GetBidsByListing returns all live bids for a listing in recording order
func (r *SQLiteRepo) GetBidsByListing(ctx context.Context, listingID string) ([]model.Bid, error) {
	if _, err := r.GetListing(ctx, listingID); err != nil {
		return nil, fmt.Errorf("get bids for listing: %w", err)
	}
	return r.queryBids(ctx, "get bids by listing",
		`SELECT `+bidColumns+` FROM bids WHERE listing_id = ? ORDER BY seq ASC`, listingID)
}

// GetBidsByBidder returns every live bid placed by a bidder
func (r *SQLiteRepo) GetBidsByBidder(ctx context.Context, bidderID string) ([]model.Bid, error) {
	return r.queryBids(ctx, "get bids by bidder",
		`SELECT `+bidColumns+` FROM bids WHERE bidder_id = ? ORDER BY created_at ASC, bid_id ASC`, bidderID)
}

// FindBidderBid returns the live bid of a bidder on a listing
func (r *SQLiteRepo) FindBidderBid(ctx context.Context, listingID, bidderID string) (model.Bid, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE listing_id = ? AND bidder_id = ?`, listingID, bidderID)
	bid, err := scanBid(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Bid{}, fmt.Errorf("find bid of %s on listing %s: %w", bidderID, listingID, biddingerrors.ErrBidNotFound)
	}
	if err != nil {
		return model.Bid{}, unavailable("find bidder bid", err)
	}
	return bid, nil
}

// Highest returns the maximum live bid for a listing.
// Equal amounts resolve to the earlier recorded bid.
func (r *SQLiteRepo) Highest(ctx context.Context, listingID string) (model.Bid, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE listing_id = ?
		 ORDER BY amount DESC, created_at ASC, seq ASC LIMIT 1`, listingID)
	bid, err := scanBid(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Bid{}, fmt.Errorf("get highest bid for listing %s: %w", listingID, biddingerrors.ErrNoBids)
	}
	if err != nil {
		return model.Bid{}, unavailable("highest", err)
	}
	return bid, nil
}

// CountBids returns the number of live bid rows on a listing
func (r *SQLiteRepo) CountBids(ctx context.Context, listingID string) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bids WHERE listing_id = ?`, listingID).Scan(&count); err != nil {
		return 0, unavailable("count bids", err)
	}
	return count, nil
}
