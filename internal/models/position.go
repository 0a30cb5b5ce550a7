package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the derived holding of one symbol. It is rebuilt from the trade
// log and may be cached, but the log stays authoritative.
type Position struct {
	AccountID   string          `json:"account_id"`
	Symbol      string          `json:"symbol"`
	Quantity    decimal.Decimal `json:"quantity"`
	AverageCost decimal.Decimal `json:"average_cost"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Open reports whether any shares are held.
func (p Position) Open() bool {
	return p.Quantity.IsPositive()
}

// CostBasis is quantity * average cost.
func (p Position) CostBasis() decimal.Decimal {
	return p.Quantity.Mul(p.AverageCost)
}

// Equal compares positions by value, ignoring decimal representation.
func (p Position) Equal(o Position) bool {
	return p.AccountID == o.AccountID &&
		p.Symbol == o.Symbol &&
		p.Quantity.Equal(o.Quantity) &&
		p.AverageCost.Equal(o.AverageCost) &&
		p.UpdatedAt.Equal(o.UpdatedAt)
}
