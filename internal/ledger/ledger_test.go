package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/trading-ledger/internal/models"
	"github.com/sheikh-saqib/trading-ledger/internal/models/events"
	"github.com/sheikh-saqib/trading-ledger/internal/oracle"
	"github.com/sheikh-saqib/trading-ledger/internal/storage/memory"
)

var t0 = time.Date(2025, 3, 3, 14, 30, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func nopLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

// tickingClock advances one second per reading and is safe for concurrent use.
func tickingClock() func() time.Time {
	var n atomic.Int64
	return func() time.Time {
		return t0.Add(time.Duration(n.Add(1)) * time.Second)
	}
}

type fixture struct {
	ledger *Ledger
	store  *memory.MemoryLedgerStore
	prices *oracle.Static
}

func newFixture(t *testing.T, policy Policy, opts ...Option) *fixture {
	t.Helper()
	store := memory.NewMemoryLedgerStore()
	prices := oracle.NewStatic(map[string]decimal.Decimal{"AAPL": d("100")})
	opts = append([]Option{WithClock(tickingClock())}, opts...)
	return &fixture{
		ledger: NewLedger(store, prices, NewGuard(policy), nopLogger(), opts...),
		store:  store,
		prices: prices,
	}
}

// account opens an account holding cash.
func (f *fixture) account(t *testing.T, cash string) string {
	t.Helper()
	ctx := context.Background()
	acct, err := f.ledger.CreateAccount(ctx, "test")
	require.NoError(t, err)
	if c := d(cash); c.IsPositive() {
		_, _, err = f.ledger.Deposit(ctx, acct.ID, c)
		require.NoError(t, err)
	}
	return acct.ID
}

func (f *fixture) buy(t *testing.T, accountID, symbol, qty string) BuyResult {
	t.Helper()
	res, err := f.ledger.Buy(context.Background(), Order{AccountID: accountID, Symbol: symbol, Quantity: d(qty)})
	require.NoError(t, err)
	return res
}

func (f *fixture) sell(t *testing.T, accountID, symbol, qty string) SellResult {
	t.Helper()
	res, err := f.ledger.Sell(context.Background(), Order{AccountID: accountID, Symbol: symbol, Quantity: d(qty)})
	require.NoError(t, err)
	return res
}

func (f *fixture) cash(t *testing.T, accountID string) decimal.Decimal {
	t.Helper()
	c, err := f.ledger.GetCashBalance(context.Background(), accountID)
	require.NoError(t, err)
	return c
}

func (f *fixture) profit(t *testing.T, accountID string) decimal.Decimal {
	t.Helper()
	p, err := f.ledger.GetProfit(context.Background(), accountID)
	require.NoError(t, err)
	return p
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Truef(t, d(want).Equal(got), "want %s, got %s %v", want, got, msgAndArgs)
}

func TestCreateAccount_StartsEmpty(t *testing.T) {
	f := newFixture(t, Policy{})
	acct, err := f.ledger.CreateAccount(context.Background(), "  alice ")
	require.NoError(t, err)

	assert.NotEmpty(t, acct.ID)
	assert.Equal(t, "alice", acct.Name)
	assert.True(t, acct.CashBalance.IsZero())
	assert.True(t, acct.RealizedProfit.IsZero())
	assert.Equal(t, int64(0), acct.Version)
}

func TestListAccounts(t *testing.T) {
	f := newFixture(t, Policy{})
	a := f.account(t, "5")
	b := f.account(t, "0")

	accounts, err := f.ledger.ListAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, a, accounts[0].ID)
	assertDecimal(t, "5", accounts[0].CashBalance)
	assert.Equal(t, b, accounts[1].ID)
}

func TestBuy_DebitsCashAndOpensPosition(t *testing.T) {
	f := newFixture(t, Policy{}, WithTradeIDs(func() string { return "trade-1" }))
	id := f.account(t, "5000")

	res := f.buy(t, id, " aapl ", "10")

	assert.Equal(t, "trade-1", res.Trade.ID)
	assert.Equal(t, "AAPL", res.Trade.Symbol)
	assert.Equal(t, models.SideBuy, res.Trade.Side)
	assertDecimal(t, "100", res.Trade.Price)
	assertDecimal(t, "0", res.Trade.RealizedProfit)
	assertDecimal(t, "10", res.Position.Quantity)
	assertDecimal(t, "100", res.Position.AverageCost)
	assertDecimal(t, "4000", res.Account.CashBalance)
	assertDecimal(t, "4000", f.cash(t, id))
	assert.Equal(t, res.Account.Version, res.Trade.Seq)
}

func TestRoundTrip_LeavesCashAndProfitUnchanged(t *testing.T) {
	f := newFixture(t, Policy{})
	id := f.account(t, "1000")

	f.buy(t, id, "AAPL", "10")
	res := f.sell(t, id, "AAPL", "10")

	assertDecimal(t, "0", res.RealizedProfit)
	assertDecimal(t, "1000", f.cash(t, id))
	assertDecimal(t, "0", f.profit(t, id))
	assert.True(t, res.Position.Quantity.IsZero())

	holdings, err := f.ledger.GetHoldings(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, holdings)
}

func TestWeightedAverage(t *testing.T) {
	f := newFixture(t, Policy{})
	id := f.account(t, "3000")

	f.buy(t, id, "AAPL", "10")
	f.prices.Set("AAPL", d("200"))
	res := f.buy(t, id, "AAPL", "10")

	assertDecimal(t, "20", res.Position.Quantity)
	assertDecimal(t, "150", res.Position.AverageCost)

	pos, err := f.ledger.GetHolding(context.Background(), id, "AAPL")
	require.NoError(t, err)
	assertDecimal(t, "150", pos.AverageCost)
}

func TestSell_DoesNotChangeAverageCost(t *testing.T) {
	f := newFixture(t, Policy{})
	id := f.account(t, "3000")

	f.buy(t, id, "AAPL", "10")
	f.prices.Set("AAPL", d("130"))
	res := f.sell(t, id, "AAPL", "4")

	assertDecimal(t, "6", res.Position.Quantity)
	assertDecimal(t, "100", res.Position.AverageCost)
}

func TestRealizedProfit(t *testing.T) {
	f := newFixture(t, Policy{})
	id := f.account(t, "500")

	f.buy(t, id, "AAPL", "5")
	cashBefore := f.cash(t, id)
	f.prices.Set("AAPL", d("120"))

	res := f.sell(t, id, "AAPL", "5")

	assertDecimal(t, "100", res.RealizedProfit)
	assertDecimal(t, "100", res.Trade.RealizedProfit)
	assertDecimal(t, "100", f.profit(t, id))
	assertDecimal(t, "600", f.cash(t, id).Sub(cashBefore))
}

func TestRealizedLoss(t *testing.T) {
	f := newFixture(t, Policy{})
	id := f.account(t, "1000")

	f.buy(t, id, "AAPL", "2")
	f.prices.Set("AAPL", d("70.5"))
	res := f.sell(t, id, "AAPL", "2")

	assertDecimal(t, "-59", res.RealizedProfit)
	assertDecimal(t, "-59", f.profit(t, id))
}

func TestCloseAndReopen_RestartsAverage(t *testing.T) {
	f := newFixture(t, Policy{})
	id := f.account(t, "2000")

	f.buy(t, id, "AAPL", "10")
	f.sell(t, id, "AAPL", "10")
	f.prices.Set("AAPL", d("50"))
	res := f.buy(t, id, "AAPL", "2")

	assertDecimal(t, "2", res.Position.Quantity)
	assertDecimal(t, "50", res.Position.AverageCost)
}

func TestFractionalShares(t *testing.T) {
	f := newFixture(t, Policy{})
	id := f.account(t, "100")

	res := f.buy(t, id, "AAPL", "0.25")
	assertDecimal(t, "0.25", res.Position.Quantity)
	assertDecimal(t, "75", f.cash(t, id))

	whole := newFixture(t, Policy{WholeSharesOnly: true})
	wid := whole.account(t, "100")
	_, err := whole.ledger.Buy(context.Background(), Order{AccountID: wid, Symbol: "AAPL", Quantity: d("0.5")})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestOversellRejected_StateUnchanged(t *testing.T) {
	f := newFixture(t, Policy{})
	id := f.account(t, "1000")
	f.buy(t, id, "AAPL", "5")
	cashBefore := f.cash(t, id)

	_, err := f.ledger.Sell(context.Background(), Order{AccountID: id, Symbol: "AAPL", Quantity: d("6")})
	require.ErrorIs(t, err, ErrInsufficientShares)
	assert.Equal(t, KindBusiness, KindOf(err))

	pos, err := f.ledger.GetHolding(context.Background(), id, "AAPL")
	require.NoError(t, err)
	assertDecimal(t, "5", pos.Quantity)
	assertDecimal(t, cashBefore.String(), f.cash(t, id))
	trades, err := f.ledger.GetTrades(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestInsufficientFundsRejected_NoTradeAppended(t *testing.T) {
	f := newFixture(t, Policy{})
	f.prices.Set("AAPL", d("60"))
	id := f.account(t, "100")

	_, err := f.ledger.Buy(context.Background(), Order{AccountID: id, Symbol: "AAPL", Quantity: d("2")})
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.False(t, IsRetryable(err))

	assertDecimal(t, "100", f.cash(t, id))
	trades, err := f.ledger.GetTrades(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, trades)
	positions, err := f.store.GetPositions(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestBuy_SpendsEntireBalance(t *testing.T) {
	f := newFixture(t, Policy{})
	id := f.account(t, "200")

	res := f.buy(t, id, "AAPL", "2")
	assert.True(t, res.Account.CashBalance.IsZero())
}

func TestSell_NoSuchPosition(t *testing.T) {
	f := newFixture(t, Policy{})
	id := f.account(t, "1000")

	_, err := f.ledger.Sell(context.Background(), Order{AccountID: id, Symbol: "AAPL", Quantity: d("1")})
	assert.ErrorIs(t, err, ErrNoSuchPosition)
	assert.Equal(t, KindNotFound, KindOf(err))

	f.buy(t, id, "AAPL", "1")
	f.sell(t, id, "AAPL", "1")
	_, err = f.ledger.Sell(context.Background(), Order{AccountID: id, Symbol: "AAPL", Quantity: d("1")})
	assert.ErrorIs(t, err, ErrNoSuchPosition)
}

func TestUnknownAccount(t *testing.T) {
	f := newFixture(t, Policy{})
	ctx := context.Background()

	_, err := f.ledger.Buy(ctx, Order{AccountID: "ghost", Symbol: "AAPL", Quantity: d("1")})
	assert.ErrorIs(t, err, ErrNoSuchAccount)
	_, err = f.ledger.Sell(ctx, Order{AccountID: "ghost", Symbol: "AAPL", Quantity: d("1")})
	assert.ErrorIs(t, err, ErrNoSuchAccount)
	_, _, err = f.ledger.Deposit(ctx, "ghost", d("1"))
	assert.ErrorIs(t, err, ErrNoSuchAccount)
	_, err = f.ledger.GetCashBalance(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNoSuchAccount)
	_, err = f.ledger.GetHoldings(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNoSuchAccount)
	_, err = f.ledger.GetTrades(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNoSuchAccount)
}

func TestOrderValidation(t *testing.T) {
	f := newFixture(t, Policy{})
	id := f.account(t, "1000")
	negative := d("-1")

	testCases := []struct {
		name  string
		order Order
	}{
		{name: "zero quantity", order: Order{AccountID: id, Symbol: "AAPL", Quantity: decimal.Zero}},
		{name: "negative quantity", order: Order{AccountID: id, Symbol: "AAPL", Quantity: d("-3")}},
		{name: "blank symbol", order: Order{AccountID: id, Symbol: "  ", Quantity: d("1")}},
		{name: "missing account", order: Order{Symbol: "AAPL", Quantity: d("1")}},
		{name: "non-positive limit", order: Order{AccountID: id, Symbol: "AAPL", Quantity: d("1"), LimitPrice: &negative}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.ledger.Buy(context.Background(), tc.order)
			assert.ErrorIs(t, err, ErrValidation)
			_, err = f.ledger.Sell(context.Background(), tc.order)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, KindValidation, KindOf(err))
		})
	}
	assertDecimal(t, "1000", f.cash(t, id))
}

func TestLimitPrice(t *testing.T) {
	f := newFixture(t, Policy{})
	id := f.account(t, "1000")
	ctx := context.Background()

	ceiling := d("99.99")
	_, err := f.ledger.Buy(ctx, Order{AccountID: id, Symbol: "AAPL", Quantity: d("1"), LimitPrice: &ceiling})
	require.ErrorIs(t, err, ErrLimitPrice)
	assert.ErrorIs(t, err, ErrValidation)

	ceiling = d("100")
	_, err = f.ledger.Buy(ctx, Order{AccountID: id, Symbol: "AAPL", Quantity: d("1"), LimitPrice: &ceiling})
	require.NoError(t, err)

	floor := d("100.01")
	_, err = f.ledger.Sell(ctx, Order{AccountID: id, Symbol: "AAPL", Quantity: d("1"), LimitPrice: &floor})
	assert.ErrorIs(t, err, ErrLimitPrice)
}

func TestPriceUnavailable(t *testing.T) {
	f := newFixture(t, Policy{})
	id := f.account(t, "1000")

	_, err := f.ledger.Buy(context.Background(), Order{AccountID: id, Symbol: "ZZZZ", Quantity: d("1")})
	require.ErrorIs(t, err, ErrPriceUnavailable)
	assert.ErrorIs(t, err, oracle.ErrNoPrice)
	assert.True(t, IsRetryable(err))

	f.buy(t, id, "AAPL", "1")
	f.prices.Set("AAPL", decimal.Zero)
	_, err = f.ledger.Sell(context.Background(), Order{AccountID: id, Symbol: "AAPL", Quantity: d("1")})
	assert.ErrorIs(t, err, ErrPriceUnavailable)
}

// dateOracle records the dates it is asked about.
type dateOracle struct {
	mu    sync.Mutex
	dates []*time.Time
}

func (o *dateOracle) GetPrice(ctx context.Context, symbol string, date *time.Time) (decimal.Decimal, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dates = append(o.dates, date)
	return d("10"), nil
}

func TestPriceDate_ForwardedToOracleAndKept(t *testing.T) {
	prices := &dateOracle{}
	l := NewLedger(memory.NewMemoryLedgerStore(), prices, NewGuard(Policy{}), nopLogger(), WithClock(tickingClock()))
	ctx := context.Background()
	acct, err := l.CreateAccount(ctx, "x")
	require.NoError(t, err)
	_, _, err = l.Deposit(ctx, acct.ID, d("100"))
	require.NoError(t, err)

	day := time.Date(2024, 11, 5, 0, 0, 0, 0, time.UTC)
	res, err := l.Buy(ctx, Order{AccountID: acct.ID, Symbol: "IBM", Quantity: d("1"), PriceDate: &day})
	require.NoError(t, err)

	require.Len(t, prices.dates, 1)
	require.NotNil(t, prices.dates[0])
	assert.True(t, day.Equal(*prices.dates[0]))
	require.NotNil(t, res.Trade.PriceDate)
	assert.True(t, day.Equal(*res.Trade.PriceDate))
	assert.True(t, res.Trade.Timestamp.After(day), "timestamp is commit time, not the price date")
}

func TestDepositWithdraw(t *testing.T) {
	f := newFixture(t, Policy{})
	id := f.account(t, "0")
	ctx := context.Background()

	mv, acct, err := f.ledger.Deposit(ctx, id, d("250.50"))
	require.NoError(t, err)
	assert.Equal(t, models.MovementDeposit, mv.Kind)
	assertDecimal(t, "250.50", acct.CashBalance)

	_, _, err = f.ledger.Withdraw(ctx, id, d("250.51"))
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	mv, acct, err = f.ledger.Withdraw(ctx, id, d("250.50"))
	require.NoError(t, err)
	assert.Equal(t, models.MovementWithdrawal, mv.Kind)
	assert.True(t, acct.CashBalance.IsZero())

	_, _, err = f.ledger.Deposit(ctx, id, d("0"))
	assert.ErrorIs(t, err, ErrValidation)
	_, _, err = f.ledger.Withdraw(ctx, id, d("-5"))
	assert.ErrorIs(t, err, ErrValidation)

	movements, err := f.ledger.GetCashMovements(ctx, id)
	require.NoError(t, err)
	require.Len(t, movements, 2)
	assert.Less(t, movements[0].Seq, movements[1].Seq)
}

func TestDeposit_BoundsPolicy(t *testing.T) {
	f := newFixture(t, Policy{MaxCashBalance: d("1000000")})
	id := f.account(t, "999999")

	_, _, err := f.ledger.Deposit(context.Background(), id, d("2"))
	require.ErrorIs(t, err, ErrBoundsExceeded)
	assert.Equal(t, KindValidation, KindOf(err))

	_, _, err = f.ledger.Deposit(context.Background(), id, d("1"))
	assert.NoError(t, err)
}

func TestGetTrade(t *testing.T) {
	f := newFixture(t, Policy{})
	id := f.account(t, "1000")
	res := f.buy(t, id, "AAPL", "1")

	got, err := f.ledger.GetTrade(context.Background(), id, res.Trade.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Trade.ID, got.ID)

	_, err = f.ledger.GetTrade(context.Background(), id, "missing")
	assert.ErrorIs(t, err, ErrNoSuchTrade)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestGetHolding_Missing(t *testing.T) {
	f := newFixture(t, Policy{})
	id := f.account(t, "0")
	_, err := f.ledger.GetHolding(context.Background(), id, "AAPL")
	assert.ErrorIs(t, err, ErrNoSuchPosition)
}

func TestTrades_OrderedEvenWhenClockStepsBack(t *testing.T) {
	var n atomic.Int64
	backwards := func() time.Time {
		return t0.Add(-time.Duration(n.Add(1)) * time.Second)
	}
	f := newFixture(t, Policy{}, WithClock(backwards))
	id := f.account(t, "1000")

	first := f.buy(t, id, "AAPL", "1")
	second := f.buy(t, id, "AAPL", "1")

	assert.False(t, second.Trade.Timestamp.Before(first.Trade.Timestamp))
	trades, err := f.ledger.GetTrades(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, first.Trade.ID, trades[0].ID)
	assert.Equal(t, second.Trade.ID, trades[1].ID)
}

func TestGetValuedHoldings(t *testing.T) {
	f := newFixture(t, Policy{})
	f.prices.Set("MSFT", d("40"))
	id := f.account(t, "10000")
	f.buy(t, id, "AAPL", "10")
	f.buy(t, id, "MSFT", "5")

	f.prices.Set("AAPL", d("110"))
	f.prices.Remove("MSFT")

	valued, err := f.ledger.GetValuedHoldings(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, valued, 2)

	assert.Equal(t, "AAPL", valued[0].Symbol)
	assert.True(t, valued[0].Priced)
	assertDecimal(t, "1100", valued[0].TotalValue)
	assertDecimal(t, "100", valued[0].UnrealizedGain)
	assertDecimal(t, "10", valued[0].UnrealizedGainPct)

	assert.Equal(t, "MSFT", valued[1].Symbol)
	assert.False(t, valued[1].Priced)
	assertDecimal(t, "5", valued[1].Quantity)
	assert.True(t, valued[1].TotalValue.IsZero())

	summary, err := f.ledger.GetSummary(context.Background(), id)
	require.NoError(t, err)
	assertDecimal(t, "8800", summary.CashBalance)
	assertDecimal(t, "1100", summary.MarketValue)
	assertDecimal(t, "9900", summary.TotalValue)
}

type recordingPublisher struct {
	mu     sync.Mutex
	keys   []string
	events []any
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	p.events = append(p.events, event)
	return p.err
}

func TestEventsPublishedAfterCommit(t *testing.T) {
	pub := &recordingPublisher{}
	f := newFixture(t, Policy{}, WithPublisher(pub))
	id := f.account(t, "1000")
	f.buy(t, id, "AAPL", "2")
	_, err := f.ledger.Buy(context.Background(), Order{AccountID: id, Symbol: "AAPL", Quantity: d("100")})
	require.ErrorIs(t, err, ErrInsufficientFunds)

	require.Len(t, pub.events, 2, "rejected trades publish nothing")
	moved, ok := pub.events[0].(events.CashMoved)
	require.True(t, ok)
	assert.Equal(t, "DEPOSIT", moved.Kind)
	executed, ok := pub.events[1].(events.TradeExecuted)
	require.True(t, ok)
	assert.Equal(t, "BUY", executed.Side)
	assertDecimal(t, "800", executed.CashBalance)
	assert.Equal(t, []string{id, id}, pub.keys)
}

func TestPublisherFailureDoesNotFailTrade(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	f := newFixture(t, Policy{}, WithPublisher(pub))
	id := f.account(t, "1000")

	res := f.buy(t, id, "AAPL", "1")
	assertDecimal(t, "900", res.Account.CashBalance)
	assertDecimal(t, "900", f.cash(t, id))
}
