package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is the cash side of a user's ledger.
// CashBalance never goes below zero; RealizedProfit is signed and unbounded.
type Account struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	CashBalance    decimal.Decimal `json:"cash_balance"`
	RealizedProfit decimal.Decimal `json:"realized_profit"`
	Version        int64           `json:"version"` // bumped on every committed mutation, also the log sequence
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NextSeq returns the sequence number the next committed record will carry.
func (a Account) NextSeq() int64 {
	return a.Version + 1
}
