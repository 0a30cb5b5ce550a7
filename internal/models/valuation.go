package models

import "github.com/shopspring/decimal"

// Valuation is a mark-to-market view of one position.
type Valuation struct {
	Symbol            string          `json:"symbol"`
	Quantity          decimal.Decimal `json:"quantity"`
	AverageCost       decimal.Decimal `json:"average_cost"`
	CurrentPrice      decimal.Decimal `json:"current_price"`
	TotalValue        decimal.Decimal `json:"total_value"`
	UnrealizedGain    decimal.Decimal `json:"unrealized_gain"`
	UnrealizedGainPct decimal.Decimal `json:"unrealized_gain_pct"`
	// Priced is false when no price could be obtained; market fields are then zero.
	Priced bool `json:"priced"`
}

// PortfolioSummary aggregates an account's cash and valued holdings.
type PortfolioSummary struct {
	AccountID      string          `json:"account_id"`
	CashBalance    decimal.Decimal `json:"cash_balance"`
	RealizedProfit decimal.Decimal `json:"realized_profit"`
	MarketValue    decimal.Decimal `json:"market_value"`
	TotalValue     decimal.Decimal `json:"total_value"`
	UnrealizedGain decimal.Decimal `json:"unrealized_gain"`
	Holdings       []Valuation     `json:"holdings"`
}
