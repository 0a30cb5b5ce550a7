package interfaces

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceOracle resolves a trade price for a symbol. A nil date means the latest
// available price. Implementations report a missing price as an error.
type PriceOracle interface {
	GetPrice(ctx context.Context, symbol string, date *time.Time) (decimal.Decimal, error)
}
