package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/trading-ledger/internal/models"
	"github.com/sheikh-saqib/trading-ledger/internal/storage/memory"
	"github.com/sheikh-saqib/trading-ledger/internal/storage/sqlite"
)

func TestOpen_Memory(t *testing.T) {
	store, closeFn, err := Open(context.Background(), Options{Driver: Memory})
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &memory.MemoryLedgerStore{}, store)
}

func TestOpen_SQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")
	opts := Options{Driver: SQLite, SQLitePath: path}

	store, closeFn, err := Open(ctx, opts)
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, store)

	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, store.CreateAccount(ctx, models.Account{
		ID: "acct-1", CashBalance: decimal.Zero, RealizedProfit: decimal.Zero, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, closeFn())

	store, closeFn, err = Open(ctx, opts)
	require.NoError(t, err)
	defer closeFn()

	acct, err := store.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", acct.ID)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, _, err := Open(context.Background(), Options{Driver: "oracle"})
	assert.Error(t, err)
}
