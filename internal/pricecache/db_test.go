package pricecache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_PersistsAcrossHandles(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache", "prices.db")

	db, err := Open(path)
	require.NoError(t, err)
	repo := NewRepository(db)
	require.NoError(t, repo.Migrate(ctx))
	require.NoError(t, repo.Store(ctx, "AAPL", "2025-03-14", decimal.RequireFromString("213.49"), time.Hour))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	repo = NewRepository(db)
	require.NoError(t, repo.Migrate(ctx))

	price, ok, err := repo.Get(ctx, "AAPL", "2025-03-14")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "213.49", price.String())
}
