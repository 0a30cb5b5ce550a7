// Package storetest is a behavioural test suite every LedgerStore must pass.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	interfaces "github.com/sheikh-saqib/trading-ledger/internal/interfaces"
	"github.com/sheikh-saqib/trading-ledger/internal/models"
	"github.com/sheikh-saqib/trading-ledger/internal/storage"
)

var epoch = time.Date(2025, 1, 2, 14, 30, 0, 123456000, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newAccount(id string, at time.Time) models.Account {
	return models.Account{
		ID:             id,
		Name:           "acct " + id,
		CashBalance:    decimal.Zero,
		RealizedProfit: decimal.Zero,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}

// deposit builds the mutation a deposit of amount would stage.
func deposit(acct models.Account, id string, amount decimal.Decimal, at time.Time) models.Mutation {
	acct.CashBalance = acct.CashBalance.Add(amount)
	acct.Version++
	acct.UpdatedAt = at
	return models.Mutation{
		Account: acct,
		Movement: &models.CashMovement{
			ID: id, AccountID: acct.ID, Seq: acct.Version,
			Kind: models.MovementDeposit, Amount: amount, Timestamp: at,
		},
	}
}

// buy builds the mutation for a buy into an empty position.
func buy(acct models.Account, id, symbol string, qty, price decimal.Decimal, at time.Time) models.Mutation {
	acct.CashBalance = acct.CashBalance.Sub(qty.Mul(price))
	acct.Version++
	acct.UpdatedAt = at
	return models.Mutation{
		Account: acct,
		Position: &models.Position{
			AccountID: acct.ID, Symbol: symbol, Quantity: qty, AverageCost: price, UpdatedAt: at,
		},
		Trade: &models.TradeRecord{
			ID: id, AccountID: acct.ID, Seq: acct.Version, Symbol: symbol, Side: models.SideBuy,
			Quantity: qty, Price: price, RealizedProfit: decimal.Zero, Timestamp: at,
		},
	}
}

func commit(t *testing.T, s interfaces.LedgerStore, accountID string, build func(models.Account) models.Mutation) models.Mutation {
	t.Helper()
	var m models.Mutation
	err := s.WithAccountTx(context.Background(), accountID, func(ctx context.Context, tx interfaces.AccountTx) error {
		m = build(tx.Account())
		tx.Stage(m)
		return nil
	})
	require.NoError(t, err)
	return m
}

// Run exercises newStore against the LedgerStore contract. newStore must
// return an empty store each time it is called.
func Run(t *testing.T, newStore func(t *testing.T) interfaces.LedgerStore) {
	ctx := context.Background()

	t.Run("create and get account", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateAccount(ctx, newAccount("a1", epoch)))

		got, err := s.GetAccount(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, "a1", got.ID)
		assert.Equal(t, "acct a1", got.Name)
		assert.True(t, got.CashBalance.IsZero())
		assert.Equal(t, int64(0), got.Version)
		assert.True(t, epoch.Equal(got.CreatedAt))

		err = s.CreateAccount(ctx, newAccount("a1", epoch))
		assert.ErrorIs(t, err, storage.ErrAccountExists)
	})

	t.Run("unknown account", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetAccount(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrAccountNotFound)
		_, err = s.GetTrades(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrAccountNotFound)
		_, err = s.GetPositions(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrAccountNotFound)
		_, _, err = s.GetPosition(ctx, "missing", "AAPL")
		assert.ErrorIs(t, err, storage.ErrAccountNotFound)
		err = s.WithAccountTx(ctx, "missing", func(ctx context.Context, tx interfaces.AccountTx) error { return nil })
		assert.ErrorIs(t, err, storage.ErrAccountNotFound)
	})

	t.Run("list accounts in creation order", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateAccount(ctx, newAccount("b", epoch)))
		require.NoError(t, s.CreateAccount(ctx, newAccount("a", epoch.Add(time.Second))))

		ids, err := s.ListAccountIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "a"}, ids)
	})

	t.Run("commit applies every part of a mutation", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateAccount(ctx, newAccount("a1", epoch)))

		t1 := epoch.Add(time.Minute)
		commit(t, s, "a1", func(a models.Account) models.Mutation { return deposit(a, "m1", d("1000"), t1) })
		t2 := epoch.Add(2 * time.Minute)
		commit(t, s, "a1", func(a models.Account) models.Mutation {
			return buy(a, "t1", "AAPL", d("10"), d("50.25"), t2)
		})

		acct, err := s.GetAccount(ctx, "a1")
		require.NoError(t, err)
		assert.True(t, acct.CashBalance.Equal(d("497.5")), acct.CashBalance.String())
		assert.Equal(t, int64(2), acct.Version)
		assert.True(t, t2.Equal(acct.UpdatedAt))

		movements, err := s.GetCashMovements(ctx, "a1")
		require.NoError(t, err)
		require.Len(t, movements, 1)
		assert.Equal(t, models.MovementDeposit, movements[0].Kind)
		assert.Equal(t, int64(1), movements[0].Seq)

		trades, err := s.GetTrades(ctx, "a1")
		require.NoError(t, err)
		require.Len(t, trades, 1)
		assert.Equal(t, "t1", trades[0].ID)
		assert.Equal(t, models.SideBuy, trades[0].Side)
		assert.Equal(t, int64(2), trades[0].Seq)
		assert.True(t, trades[0].Price.Equal(d("50.25")))
		assert.True(t, t2.Equal(trades[0].Timestamp))
		assert.Nil(t, trades[0].PriceDate)

		one, err := s.GetTrade(ctx, "a1", "t1")
		require.NoError(t, err)
		assert.Equal(t, trades[0].ID, one.ID)
		_, err = s.GetTrade(ctx, "a1", "nope")
		assert.ErrorIs(t, err, storage.ErrTradeNotFound)

		pos, ok, err := s.GetPosition(ctx, "a1", "AAPL")
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, pos.Quantity.Equal(d("10")))
		assert.True(t, pos.AverageCost.Equal(d("50.25")))
	})

	t.Run("price date round trips", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateAccount(ctx, newAccount("a1", epoch)))
		day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
		commit(t, s, "a1", func(a models.Account) models.Mutation {
			a.CashBalance = d("100")
			m := buy(a, "t1", "MSFT", d("1"), d("10"), epoch)
			m.Trade.PriceDate = &day
			return m
		})

		got, err := s.GetTrade(ctx, "a1", "t1")
		require.NoError(t, err)
		require.NotNil(t, got.PriceDate)
		assert.True(t, day.Equal(*got.PriceDate))
	})

	t.Run("callback error discards staged mutations", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateAccount(ctx, newAccount("a1", epoch)))
		boom := errors.New("boom")

		err := s.WithAccountTx(ctx, "a1", func(ctx context.Context, tx interfaces.AccountTx) error {
			tx.Stage(deposit(tx.Account(), "m1", d("10"), epoch))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		acct, err := s.GetAccount(ctx, "a1")
		require.NoError(t, err)
		assert.True(t, acct.CashBalance.IsZero())
		assert.Equal(t, int64(0), acct.Version)
		movements, err := s.GetCashMovements(ctx, "a1")
		require.NoError(t, err)
		assert.Empty(t, movements)
	})

	t.Run("stale version is rejected", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateAccount(ctx, newAccount("a1", epoch)))
		stale := newAccount("a1", epoch)
		stale.Version = 5

		err := s.WithAccountTx(ctx, "a1", func(ctx context.Context, tx interfaces.AccountTx) error {
			tx.Stage(deposit(stale, "m1", d("10"), epoch))
			return nil
		})
		assert.ErrorIs(t, err, storage.ErrVersionConflict)

		movements, err := s.GetCashMovements(ctx, "a1")
		require.NoError(t, err)
		assert.Empty(t, movements)
	})

	t.Run("zero quantity closes the cached position", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateAccount(ctx, newAccount("a1", epoch)))
		commit(t, s, "a1", func(a models.Account) models.Mutation {
			a.CashBalance = d("100")
			return buy(a, "t1", "AAPL", d("2"), d("10"), epoch)
		})

		commit(t, s, "a1", func(a models.Account) models.Mutation {
			a.Version++
			return models.Mutation{
				Account:  a,
				Position: &models.Position{AccountID: "a1", Symbol: "AAPL", Quantity: decimal.Zero, UpdatedAt: epoch},
			}
		})

		_, ok, err := s.GetPosition(ctx, "a1", "AAPL")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("transaction sees its own account's positions", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateAccount(ctx, newAccount("a1", epoch)))
		commit(t, s, "a1", func(a models.Account) models.Mutation {
			a.CashBalance = d("100")
			return buy(a, "t1", "AAPL", d("2"), d("10"), epoch)
		})

		err := s.WithAccountTx(ctx, "a1", func(ctx context.Context, tx interfaces.AccountTx) error {
			pos, ok, err := tx.Position(ctx, "AAPL")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.True(t, pos.Quantity.Equal(d("2")))
			_, ok, err = tx.Position(ctx, "MSFT")
			require.NoError(t, err)
			assert.False(t, ok)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("replace positions", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateAccount(ctx, newAccount("a1", epoch)))
		commit(t, s, "a1", func(a models.Account) models.Mutation {
			a.CashBalance = d("100")
			return buy(a, "t1", "AAPL", d("2"), d("10"), epoch)
		})

		err := s.ReplacePositions(ctx, "a1", []models.Position{
			{AccountID: "a1", Symbol: "MSFT", Quantity: d("3"), AverageCost: d("7"), UpdatedAt: epoch},
			{AccountID: "a1", Symbol: "TSLA", Quantity: decimal.Zero, UpdatedAt: epoch},
		})
		require.NoError(t, err)

		positions, err := s.GetPositions(ctx, "a1")
		require.NoError(t, err)
		require.Len(t, positions, 1)
		assert.Equal(t, "MSFT", positions[0].Symbol)
		assert.True(t, positions[0].AverageCost.Equal(d("7")))
	})
}
