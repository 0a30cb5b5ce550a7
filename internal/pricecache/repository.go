// Package pricecache persists oracle quotes so that repeated lookups and
// oracle outages do not block the trading path.
package pricecache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

// Schema creates the cache table. Quotes are stored as msgpack blobs with an
// expiry so stale rows can still serve as a fallback.
const Schema = `
CREATE TABLE IF NOT EXISTS price_cache (
	symbol     TEXT    NOT NULL,
	day        TEXT    NOT NULL,
	data       BLOB    NOT NULL,
	expires_at INTEGER NOT NULL,
	PRIMARY KEY (symbol, day)
);
CREATE INDEX IF NOT EXISTS idx_price_cache_expires ON price_cache (expires_at);
`

// LatestDay is the day key used for "current price" quotes.
const LatestDay = "latest"

// Quote is one cached price.
type Quote struct {
	Symbol    string `msgpack:"s"`
	Day       string `msgpack:"d"`
	Price     string `msgpack:"p"` // decimal string, exact
	FetchedAt int64  `msgpack:"f"`
}

// Repository provides cache operations over a SQLite handle.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a new price cache repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Migrate creates the table if needed.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create price cache schema: %w", err)
	}
	return nil
}

// DayKey maps an optional date to its cache key.
func DayKey(date *time.Time) string {
	if date == nil {
		return LatestDay
	}
	return date.UTC().Format("2006-01-02")
}

// Store upserts a quote that expires after ttl.
func (r *Repository) Store(ctx context.Context, symbol, day string, price decimal.Decimal, ttl time.Duration) error {
	now := r.now()
	blob, err := msgpack.Marshal(Quote{Symbol: symbol, Day: day, Price: price.String(), FetchedAt: now.Unix()})
	if err != nil {
		return fmt.Errorf("failed to encode quote: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO price_cache (symbol, day, data, expires_at) VALUES (?, ?, ?, ?)`,
		symbol, day, blob, now.Add(ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store quote %s/%s: %w", symbol, day, err)
	}
	return nil
}

// GetIfFresh returns the quote only while it has not expired.
func (r *Repository) GetIfFresh(ctx context.Context, symbol, day string) (decimal.Decimal, bool, error) {
	return r.get(ctx,
		`SELECT data FROM price_cache WHERE symbol = ? AND day = ? AND expires_at > ?`,
		symbol, day, r.now().Unix(),
	)
}

// Get returns the quote regardless of expiry. Stale data beats no data when
// the oracle is down.
func (r *Repository) Get(ctx context.Context, symbol, day string) (decimal.Decimal, bool, error) {
	return r.get(ctx, `SELECT data FROM price_cache WHERE symbol = ? AND day = ?`, symbol, day)
}

func (r *Repository) get(ctx context.Context, query string, args ...any) (decimal.Decimal, bool, error) {
	var blob []byte
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to read quote: %w", err)
	}

	var q Quote
	if err := msgpack.Unmarshal(blob, &q); err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to decode quote: %w", err)
	}
	price, err := decimal.NewFromString(q.Price)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("corrupt cached price %q: %w", q.Price, err)
	}
	return price, true, nil
}

// DeleteExpired removes rows past their expiry and reports how many went.
func (r *Repository) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM price_cache WHERE expires_at < ?`, r.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired quotes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted quotes: %w", err)
	}
	return n, nil
}
