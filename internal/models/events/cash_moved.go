package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// CashMoved is published after a deposit or withdrawal is committed
type CashMoved struct {
	MovementID  string          `json:"movement_id"`
	AccountID   string          `json:"account_id"`
	Kind        string          `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	CashBalance decimal.Decimal `json:"cash_balance"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

func (CashMoved) Type() string { return "cash.moved" }
