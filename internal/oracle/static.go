// Package oracle provides PriceOracle implementations and decorators.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	interfaces "github.com/sheikh-saqib/trading-ledger/internal/interfaces"
	"github.com/sheikh-saqib/trading-ledger/internal/models"
)

// ErrNoPrice is returned when an oracle has no quote for a symbol.
var ErrNoPrice = errors.New("no price for symbol")

// Static is a fixed price table. Dates are ignored. It backs tests and local
// runs without a market data key.
type Static struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

func NewStatic(prices map[string]decimal.Decimal) *Static {
	s := &Static{prices: make(map[string]decimal.Decimal, len(prices))}
	for sym, p := range prices {
		s.prices[models.NormalizeSymbol(sym)] = p
	}
	return s
}

// ParseStaticPrices reads SYMBOL=PRICE pairs such as "AAPL=187.5".
func ParseStaticPrices(pairs []string) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal, len(pairs))
	for _, pair := range pairs {
		sym, raw, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(sym) == "" {
			return nil, fmt.Errorf("invalid price pair %q, want SYMBOL=PRICE", pair)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil || !price.IsPositive() {
			return nil, fmt.Errorf("invalid price for %s: %q", sym, raw)
		}
		prices[models.NormalizeSymbol(sym)] = price
	}
	return prices, nil
}

// Set changes or adds a quote.
func (s *Static) Set(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[models.NormalizeSymbol(symbol)] = price
}

// Remove drops a quote so lookups fail.
func (s *Static) Remove(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.prices, models.NormalizeSymbol(symbol))
}

func (s *Static) GetPrice(ctx context.Context, symbol string, date *time.Time) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prices[models.NormalizeSymbol(symbol)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoPrice, symbol)
	}
	return p, nil
}

var _ interfaces.PriceOracle = (*Static)(nil)
