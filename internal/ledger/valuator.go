package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/trading-ledger/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Valuate marks a position to market. Gain percentage is relative to cost basis
// and is zero when the position has no cost.
func Valuate(position models.Position, currentPrice decimal.Decimal) models.Valuation {
	v := models.Valuation{
		Symbol:       position.Symbol,
		Quantity:     position.Quantity,
		AverageCost:  position.AverageCost,
		CurrentPrice: currentPrice,
		TotalValue:   position.Quantity.Mul(currentPrice),
		Priced:       true,
	}
	v.UnrealizedGain = currentPrice.Sub(position.AverageCost).Mul(position.Quantity)
	v.UnrealizedGainPct = decimal.Zero
	if basis := position.CostBasis(); position.AverageCost.IsPositive() && !basis.IsZero() {
		v.UnrealizedGainPct = v.UnrealizedGain.Div(basis).Mul(hundred)
	}
	return v
}

// unpriced is the listing entry for a position whose price could not be fetched.
func unpriced(position models.Position) models.Valuation {
	return models.Valuation{
		Symbol:            position.Symbol,
		Quantity:          position.Quantity,
		AverageCost:       position.AverageCost,
		CurrentPrice:      decimal.Zero,
		TotalValue:        decimal.Zero,
		UnrealizedGain:    decimal.Zero,
		UnrealizedGainPct: decimal.Zero,
	}
}

// Summarize totals an account's cash and valued holdings.
func Summarize(account models.Account, holdings []models.Valuation) models.PortfolioSummary {
	s := models.PortfolioSummary{
		AccountID:      account.ID,
		CashBalance:    account.CashBalance,
		RealizedProfit: account.RealizedProfit,
		MarketValue:    decimal.Zero,
		UnrealizedGain: decimal.Zero,
		Holdings:       holdings,
	}
	for _, h := range holdings {
		s.MarketValue = s.MarketValue.Add(h.TotalValue)
		s.UnrealizedGain = s.UnrealizedGain.Add(h.UnrealizedGain)
	}
	s.TotalValue = s.CashBalance.Add(s.MarketValue)
	return s
}
