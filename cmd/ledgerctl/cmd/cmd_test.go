package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/trading-ledger/internal/ledger"
	"github.com/sheikh-saqib/trading-ledger/internal/models"
	"github.com/sheikh-saqib/trading-ledger/internal/oracle"
	"github.com/sheikh-saqib/trading-ledger/internal/storage/backend"
	"github.com/sheikh-saqib/trading-ledger/pkg/logger"
)

func TestFormatMoney(t *testing.T) {
	testCases := []struct {
		amount string
		code   string
		want   string
	}{
		{"1234.5", "USD", "$1,234.50"},
		{"0", "USD", "$0.00"},
		{"-20", "USD", "-$20.00"},
		{"10.005", "USD", "$10.01"},
		{"7", "ZZZ", "7.00 ZZZ"},
	}
	for _, tc := range testCases {
		t.Run(tc.amount+tc.code, func(t *testing.T) {
			assert.Equal(t, tc.want, formatMoney(decimal.RequireFromString(tc.amount), tc.code))
		})
	}
}

// seedLedger writes one funded account with a trade into a fresh SQLite file.
func seedLedger(t *testing.T) (path, accountID string) {
	t.Helper()
	ctx := context.Background()
	path = filepath.Join(t.TempDir(), "ledger.db")

	store, closeFn, err := backend.Open(ctx, backend.Options{Driver: backend.SQLite, SQLitePath: path})
	require.NoError(t, err)
	defer closeFn()

	prices := oracle.NewStatic(map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(100)})
	l := ledger.NewLedger(store, prices, ledger.NewGuard(ledger.Policy{}), logger.Nop())

	acct, err := l.CreateAccount(ctx, "alice")
	require.NoError(t, err)
	_, _, err = l.Deposit(ctx, acct.ID, decimal.NewFromInt(1000))
	require.NoError(t, err)
	_, err = l.Buy(ctx, ledger.Order{AccountID: acct.ID, Symbol: "AAPL", Quantity: decimal.NewFromInt(3)})
	require.NoError(t, err)

	// Drop the cached position so reconcile has something to find.
	require.NoError(t, store.ReplacePositions(ctx, acct.ID, []models.Position{}))
	return path, acct.ID
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	reconcileRepair = false
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	path, id := seedLedger(t)

	out, err := run(t, "accounts", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "$700.00")

	out, err = run(t, "balance", id, "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Cash:     $700.00")

	out, err = run(t, "trades", id, "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "BUY")
	assert.Contains(t, out, "AAPL")

	out, err = run(t, "holdings", id, "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "$300.00")

	out, err = run(t, "reconcile", id, "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "position drift on 1 symbol(s)")

	out, err = run(t, "reconcile", "--repair", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "repaired 1 position(s)")

	out, err = run(t, "rebuild", id, "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, id+"  ok")

	_, err = run(t, "balance", "ghost", "--db", path)
	assert.ErrorIs(t, err, ledger.ErrNoSuchAccount)
}
