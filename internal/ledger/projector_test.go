package ledger

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/trading-ledger/internal/models"
)

func trade(seq int64, symbol string, side models.Side, qty, price string) models.TradeRecord {
	return models.TradeRecord{
		ID:        "t" + symbol + string(side) + qty,
		AccountID: "a",
		Seq:       seq,
		Symbol:    symbol,
		Side:      side,
		Quantity:  d(qty),
		Price:     d(price),
		Timestamp: t0.Add(time.Duration(seq) * time.Minute),
	}
}

func TestProject_WeightedAverageAndSells(t *testing.T) {
	log := []models.TradeRecord{
		trade(1, "AAPL", models.SideBuy, "10", "100"),
		trade(2, "AAPL", models.SideBuy, "10", "200"),
		trade(3, "MSFT", models.SideBuy, "3", "10"),
		trade(4, "AAPL", models.SideSell, "5", "300"),
	}

	positions, err := Project(log)
	require.NoError(t, err)
	require.Len(t, positions, 2)

	assert.Equal(t, "AAPL", positions[0].Symbol)
	assertDecimal(t, "15", positions[0].Quantity)
	assertDecimal(t, "150", positions[0].AverageCost)
	assert.True(t, log[3].Timestamp.Equal(positions[0].UpdatedAt))

	assert.Equal(t, "MSFT", positions[1].Symbol)
	assertDecimal(t, "3", positions[1].Quantity)
}

func TestProject_ReplayIsIdempotent(t *testing.T) {
	log := []models.TradeRecord{
		trade(1, "AAPL", models.SideBuy, "3", "101.37"),
		trade(2, "AAPL", models.SideBuy, "7", "99.01"),
		trade(3, "AAPL", models.SideSell, "4", "120"),
		trade(4, "TSLA", models.SideBuy, "1.5", "250"),
	}
	snapshot := append([]models.TradeRecord(nil), log...)

	first, err := Project(log)
	require.NoError(t, err)
	second, err := Project(log)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.True(t, first[i].Equal(second[i]))
	}
	assert.Equal(t, snapshot, log, "projection must not reorder or modify its input")
}

func TestProject_UsesLogOrderNotSliceOrder(t *testing.T) {
	inOrder := []models.TradeRecord{
		trade(1, "AAPL", models.SideBuy, "10", "100"),
		trade(2, "AAPL", models.SideSell, "10", "100"),
		trade(3, "AAPL", models.SideBuy, "1", "40"),
	}
	shuffled := []models.TradeRecord{inOrder[2], inOrder[0], inOrder[1]}

	a, err := Project(inOrder)
	require.NoError(t, err)
	b, err := Project(shuffled)
	require.NoError(t, err)
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.True(t, a[0].Equal(b[0]))
	assertDecimal(t, "40", a[0].AverageCost)
}

func TestProject_SameTimestampFallsBackToSeq(t *testing.T) {
	buy := trade(1, "AAPL", models.SideBuy, "1", "10")
	sell := trade(2, "AAPL", models.SideSell, "1", "10")
	sell.Timestamp = buy.Timestamp

	positions, err := Project([]models.TradeRecord{sell, buy})
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestProject_ClosedPositionsExcluded(t *testing.T) {
	positions, err := Project([]models.TradeRecord{
		trade(1, "AAPL", models.SideBuy, "2", "10"),
		trade(2, "AAPL", models.SideSell, "2", "12"),
	})
	require.NoError(t, err)
	assert.Empty(t, positions)

	positions, err = Project(nil)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestProject_OversellInLogIsInvariantViolation(t *testing.T) {
	_, err := Project([]models.TradeRecord{
		trade(1, "AAPL", models.SideBuy, "1", "10"),
		trade(2, "AAPL", models.SideSell, "2", "10"),
	})
	assert.ErrorIs(t, err, ErrInvariantViolation)

	bad := trade(1, "AAPL", models.Side("HOLD"), "1", "10")
	_, err = Project([]models.TradeRecord{bad})
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

func TestProjectAccount(t *testing.T) {
	base := models.Account{ID: "a", Name: "n", CreatedAt: t0}
	movements := []models.CashMovement{
		{Seq: 1, Kind: models.MovementDeposit, Amount: d("1000"), Timestamp: t0},
		{Seq: 4, Kind: models.MovementWithdrawal, Amount: d("100"), Timestamp: t0.Add(4 * time.Minute)},
	}
	trades := []models.TradeRecord{
		trade(2, "AAPL", models.SideBuy, "5", "100"),
		trade(3, "AAPL", models.SideSell, "5", "120"),
	}

	acct, err := ProjectAccount(base, movements, trades)
	require.NoError(t, err)
	assertDecimal(t, "1000", acct.CashBalance)
	assertDecimal(t, "100", acct.RealizedProfit)
	assert.Equal(t, int64(4), acct.Version)
	assert.Equal(t, "n", acct.Name)

	// a buy that the cash log cannot have paid for
	_, err = ProjectAccount(base, movements[:1], []models.TradeRecord{trade(2, "AAPL", models.SideBuy, "11", "100")})
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

// The position cache written by the write path and the projection of the
// trade log must agree after any sequence of operations.
func TestCacheAgreesWithProjection_RandomOperations(t *testing.T) {
	f := newFixture(t, Policy{})
	id := f.account(t, "5000")
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	symbols := []string{"AAPL", "MSFT", "TSLA"}
	for _, s := range symbols {
		f.prices.Set(s, d("100"))
	}

	for i := 0; i < 300; i++ {
		sym := symbols[rng.Intn(len(symbols))]
		f.prices.Set(sym, decimal.NewFromInt(int64(90+rng.Intn(21))))
		qty := decimal.NewFromInt(int64(1 + rng.Intn(6))).Div(decimal.NewFromInt(2))

		switch rng.Intn(4) {
		case 0, 1:
			f.ledger.Buy(ctx, Order{AccountID: id, Symbol: sym, Quantity: qty})
		case 2:
			f.ledger.Sell(ctx, Order{AccountID: id, Symbol: sym, Quantity: qty})
		case 3:
			f.ledger.Deposit(ctx, id, d("25"))
		}

		projected, err := f.ledger.GetHoldings(ctx, id)
		require.NoError(t, err)
		cached, err := f.store.GetPositions(ctx, id)
		require.NoError(t, err)
		require.Equal(t, len(projected), len(cached), "step %d", i)
		for j := range projected {
			require.True(t, projected[j].Equal(cached[j]), "step %d: cache %+v projection %+v", i, cached[j], projected[j])
		}

		acct, err := f.ledger.GetAccount(ctx, id)
		require.NoError(t, err)
		require.False(t, acct.CashBalance.IsNegative())
	}

	report, err := f.ledger.Reconcile(ctx, id)
	require.NoError(t, err)
	assert.True(t, report.Consistent(), "%+v", report)
	assertDecimal(t, report.Stored.RealizedProfit.String(), report.Projected.RealizedProfit)
}
