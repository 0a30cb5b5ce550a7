package models

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade fill
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether s is one of the known sides.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// ParseSide accepts "buy"/"sell" in any case.
func ParseSide(s string) (Side, bool) {
	side := Side(strings.ToUpper(strings.TrimSpace(s)))
	return side, side.Valid()
}

// TradeRecord is one immutable fill in an account's trade log.
// Records are only ever appended; ordering is (Timestamp, Seq).
type TradeRecord struct {
	ID        string          `json:"id"`
	AccountID string          `json:"account_id"`
	Seq       int64           `json:"seq"`
	Symbol    string          `json:"symbol"`
	Side      Side            `json:"side"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	// RealizedProfit is booked on sells only and is zero for buys.
	RealizedProfit decimal.Decimal `json:"realized_profit"`
	PriceDate      *time.Time      `json:"price_date,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Notional is quantity * price.
func (t TradeRecord) Notional() decimal.Decimal {
	return t.Quantity.Mul(t.Price)
}

// Before orders records by timestamp, breaking ties by insertion sequence.
func (t TradeRecord) Before(o TradeRecord) bool {
	if !t.Timestamp.Equal(o.Timestamp) {
		return t.Timestamp.Before(o.Timestamp)
	}
	return t.Seq < o.Seq
}

// SortTrades sorts records in log order, in place.
func SortTrades(trades []TradeRecord) {
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Before(trades[j])
	})
}

// NormalizeSymbol upper-cases and trims a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
