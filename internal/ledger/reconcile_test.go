package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/trading-ledger/internal/models"
)

func TestReconcile_Consistent(t *testing.T) {
	f := newFixture(t, Policy{})
	id := f.account(t, "1000")
	f.buy(t, id, "AAPL", "3")

	report, err := f.ledger.Reconcile(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
	assert.False(t, report.Repaired)
	assert.Equal(t, report.Stored.Version, report.Projected.Version)
	assertDecimal(t, "700", report.Projected.CashBalance)
}

func TestRebuild_RepairsDriftedCache(t *testing.T) {
	f := newFixture(t, Policy{})
	ctx := context.Background()
	id := f.account(t, "1000")
	f.buy(t, id, "AAPL", "3")

	// Corrupt the cache: wrong quantity for AAPL and a phantom MSFT holding.
	require.NoError(t, f.store.ReplacePositions(ctx, id, []models.Position{
		{AccountID: id, Symbol: "AAPL", Quantity: d("30"), AverageCost: d("100")},
		{AccountID: id, Symbol: "MSFT", Quantity: d("1"), AverageCost: d("1")},
	}))

	report, err := f.ledger.Reconcile(ctx, id)
	require.NoError(t, err)
	assert.False(t, report.Consistent())
	assert.False(t, report.AccountDrift)
	require.Len(t, report.PositionDrift, 2)
	assert.Equal(t, "AAPL", report.PositionDrift[0].Symbol)
	require.NotNil(t, report.PositionDrift[0].Cached)
	require.NotNil(t, report.PositionDrift[0].Projected)
	assert.Equal(t, "MSFT", report.PositionDrift[1].Symbol)
	assert.Nil(t, report.PositionDrift[1].Projected)

	// Holdings are read from the log, so the corrupt cache never leaked out.
	holdings, err := f.ledger.GetHoldings(ctx, id)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assertDecimal(t, "3", holdings[0].Quantity)

	report, err = f.ledger.Rebuild(ctx, id)
	require.NoError(t, err)
	assert.True(t, report.Repaired)

	report, err = f.ledger.Reconcile(ctx, id)
	require.NoError(t, err)
	assert.True(t, report.Consistent())

	// Trading continues from the repaired cache.
	res := f.sell(t, id, "AAPL", "3")
	assert.True(t, res.Position.Quantity.IsZero())
}

func TestReconcileAll(t *testing.T) {
	f := newFixture(t, Policy{})
	ctx := context.Background()
	a := f.account(t, "100")
	b := f.account(t, "100")
	f.buy(t, b, "AAPL", "1")
	require.NoError(t, f.store.ReplacePositions(ctx, b, nil))

	reports, err := f.ledger.ReconcileAll(ctx, true)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, a, reports[0].AccountID)
	assert.True(t, reports[0].Consistent())
	assert.Equal(t, b, reports[1].AccountID)
	assert.True(t, reports[1].Repaired)

	positions, err := f.store.GetPositions(ctx, b)
	require.NoError(t, err)
	assert.Len(t, positions, 1)
}

func TestReconcile_UnknownAccount(t *testing.T) {
	f := newFixture(t, Policy{})
	_, err := f.ledger.Reconcile(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNoSuchAccount)
}
