package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementKind distinguishes deposits from withdrawals
type MovementKind string

const (
	MovementDeposit    MovementKind = "DEPOSIT"
	MovementWithdrawal MovementKind = "WITHDRAWAL"
)

// CashMovement is an append-only record of cash entering or leaving an account.
// Together with the trade log it is enough to rebuild the Account.
type CashMovement struct {
	ID        string          `json:"id"`
	AccountID string          `json:"account_id"`
	Seq       int64           `json:"seq"`
	Kind      MovementKind    `json:"kind"`
	Amount    decimal.Decimal `json:"amount"` // always positive; Kind carries the sign
	Timestamp time.Time       `json:"timestamp"`
}

// Signed returns the movement's effect on the cash balance.
func (m CashMovement) Signed() decimal.Decimal {
	if m.Kind == MovementWithdrawal {
		return m.Amount.Neg()
	}
	return m.Amount
}
