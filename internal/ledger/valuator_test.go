package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sheikh-saqib/trading-ledger/internal/models"
)

func TestValuate(t *testing.T) {
	testCases := []struct {
		name     string
		qty, avg string
		price    string
		value    string
		gain     string
		gainPct  string
	}{
		{name: "gain", qty: "10", avg: "100", price: "120", value: "1200", gain: "200", gainPct: "20"},
		{name: "loss", qty: "4", avg: "50", price: "35", value: "140", gain: "-60", gainPct: "-30"},
		{name: "flat", qty: "1", avg: "10", price: "10", value: "10", gain: "0", gainPct: "0"},
		{name: "fractional pct", qty: "4", avg: "8", price: "9", value: "36", gain: "4", gainPct: "12.5"},
		{name: "unrounded pct", qty: "1", avg: "8", price: "8.0001", value: "8.0001", gain: "0.0001", gainPct: "0.00125"},
		{name: "zero cost", qty: "5", avg: "0", price: "2", value: "10", gain: "10", gainPct: "0"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pos := models.Position{Symbol: "X", Quantity: d(tc.qty), AverageCost: d(tc.avg)}
			v := Valuate(pos, d(tc.price))

			assert.True(t, v.Priced)
			assert.Equal(t, "X", v.Symbol)
			assertDecimal(t, tc.value, v.TotalValue)
			assertDecimal(t, tc.gain, v.UnrealizedGain)
			assertDecimal(t, tc.gainPct, v.UnrealizedGainPct)
		})
	}
}

func TestSummarize(t *testing.T) {
	acct := models.Account{ID: "a", CashBalance: d("500"), RealizedProfit: d("-20")}
	holdings := []models.Valuation{
		Valuate(models.Position{Symbol: "A", Quantity: d("2"), AverageCost: d("10")}, d("15")),
		unpriced(models.Position{Symbol: "B", Quantity: d("1"), AverageCost: d("99")}),
	}

	s := Summarize(acct, holdings)
	assert.Equal(t, "a", s.AccountID)
	assertDecimal(t, "30", s.MarketValue)
	assertDecimal(t, "530", s.TotalValue)
	assertDecimal(t, "10", s.UnrealizedGain)
	assertDecimal(t, "-20", s.RealizedProfit)
	assert.Len(t, s.Holdings, 2)
	assert.False(t, s.Holdings[1].Priced)
}
