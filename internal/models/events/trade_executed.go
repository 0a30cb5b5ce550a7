package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeExecuted is published after a buy or sell is committed
type TradeExecuted struct {
	TradeID        string          `json:"trade_id"`
	AccountID      string          `json:"account_id"`
	Symbol         string          `json:"symbol"`
	Side           string          `json:"side"`
	Quantity       decimal.Decimal `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
	RealizedProfit decimal.Decimal `json:"realized_profit"`
	CashBalance    decimal.Decimal `json:"cash_balance"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

func (TradeExecuted) Type() string { return "trade.executed" }
