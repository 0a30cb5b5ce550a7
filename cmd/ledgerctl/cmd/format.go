package cmd

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/trading-ledger/internal/models"
)

// formatMoney renders an amount in the currency's display form, rounded to its
// minor unit.
func formatMoney(amount decimal.Decimal, code string) string {
	c := money.GetCurrency(code)
	if c == nil {
		return amount.StringFixed(2) + " " + code
	}
	minor := amount.Shift(int32(c.Fraction)).Round(0).IntPart()
	return money.New(minor, c.Code).Display()
}

func describe(p *models.Position) string {
	if p == nil {
		return "-"
	}
	return p.Quantity.String() + " @ " + p.AverageCost.String()
}
