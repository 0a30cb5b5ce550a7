package oracle

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	interfaces "github.com/sheikh-saqib/trading-ledger/internal/interfaces"
	"github.com/sheikh-saqib/trading-ledger/internal/pricecache"
)

// QuoteCache is the subset of pricecache.Repository the decorator needs.
type QuoteCache interface {
	GetIfFresh(ctx context.Context, symbol, day string) (decimal.Decimal, bool, error)
	Get(ctx context.Context, symbol, day string) (decimal.Decimal, bool, error)
	Store(ctx context.Context, symbol, day string, price decimal.Decimal, ttl time.Duration) error
}

// historicalTTL applies to quotes for a past day, which do not change.
const historicalTTL = 30 * 24 * time.Hour

// Cached serves quotes from a cache first and falls back to a stale quote when
// the upstream oracle fails.
type Cached struct {
	upstream interfaces.PriceOracle
	cache    QuoteCache
	ttl      time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

func NewCached(upstream interfaces.PriceOracle, cache QuoteCache, ttl time.Duration, log zerolog.Logger) *Cached {
	return &Cached{
		upstream: upstream,
		cache:    cache,
		ttl:      ttl,
		now:      time.Now,
		log:      log.With().Str("client", "price-cache").Logger(),
	}
}

func (c *Cached) GetPrice(ctx context.Context, symbol string, date *time.Time) (decimal.Decimal, error) {
	day := pricecache.DayKey(date)

	if price, ok, err := c.cache.GetIfFresh(ctx, symbol, day); err == nil && ok {
		c.log.Debug().Str("symbol", symbol).Str("day", day).Msg("Cache hit")
		return price, nil
	} else if err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("Price cache read failed")
	}

	price, err := c.upstream.GetPrice(ctx, symbol, date)
	if err != nil {
		if stale, ok, cacheErr := c.cache.Get(ctx, symbol, day); cacheErr == nil && ok {
			c.log.Warn().
				Err(err).
				Str("symbol", symbol).
				Str("day", day).
				Str("price", stale.String()).
				Msg("Oracle failed, using stale cached price")
			return stale, nil
		}
		return decimal.Zero, err
	}

	if err := c.cache.Store(ctx, symbol, day, price, c.ttlFor(date)); err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache price")
	}
	return price, nil
}

func (c *Cached) ttlFor(date *time.Time) time.Duration {
	if date != nil && pricecache.DayKey(date) < c.now().UTC().Format("2006-01-02") {
		return historicalTTL
	}
	return c.ttl
}

var _ interfaces.PriceOracle = (*Cached)(nil)
