package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	interfaces "github.com/sheikh-saqib/trading-ledger/internal/interfaces"
	"github.com/sheikh-saqib/trading-ledger/internal/models"
	"github.com/sheikh-saqib/trading-ledger/internal/models/events"
	"github.com/sheikh-saqib/trading-ledger/pkg/id"
)

// Ledger is the transaction processor. It owns the per-account write path:
// every mutation runs read-validate-write under that account's lock, and
// different accounts never wait on each other.
type Ledger struct {
	store     interfaces.LedgerStore    // any storage implementation with per-account commit
	oracle    interfaces.PriceOracle    // consulted outside the account lock
	publisher interfaces.EventPublisher // optional, notified after commit
	guard     Guard
	locks     *accountLocks
	now       func() time.Time
	tradeID   func() string
	log       zerolog.Logger
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithLockTimeout bounds how long a request waits for a busy account before
// failing with ErrConcurrencyConflict. Zero waits for as long as ctx allows.
func WithLockTimeout(d time.Duration) Option {
	return func(l *Ledger) { l.locks.timeout = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithTradeIDs replaces the ULID trade identifier source.
func WithTradeIDs(next func() string) Option {
	return func(l *Ledger) { l.tradeID = next }
}

// WithPublisher sets where committed trades and cash movements are announced.
func WithPublisher(p interfaces.EventPublisher) Option {
	return func(l *Ledger) { l.publisher = p }
}

// NewLedger wires a ledger over a store and a price oracle.
func NewLedger(store interfaces.LedgerStore, oracle interfaces.PriceOracle, guard Guard, log zerolog.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store:   store,
		oracle:  oracle,
		guard:   guard,
		locks:   newAccountLocks(0),
		now:     func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }, // microsecond: what postgres keeps
		tradeID: id.New,
		log:     log.With().Str("service", "ledger").Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// commit runs plan inside the account's lock and store transaction and returns
// the mutation that was applied. Nothing is applied when plan fails.
func (l *Ledger) commit(ctx context.Context, accountID, op string, plan func(ctx context.Context, tx interfaces.AccountTx) (models.Mutation, error)) (models.Mutation, error) {
	// Only existing accounts get a lock entry.
	if _, err := l.store.GetAccount(ctx, accountID); err != nil {
		return models.Mutation{}, storeErr(op, err)
	}
	unlock, err := l.locks.acquire(ctx, accountID)
	if err != nil {
		return models.Mutation{}, fmt.Errorf("%s: %w", op, err)
	}
	defer unlock()

	var applied models.Mutation
	err = l.store.WithAccountTx(ctx, accountID, func(ctx context.Context, tx interfaces.AccountTx) error {
		m, err := plan(ctx, tx)
		if err != nil {
			return err
		}
		tx.Stage(m)
		applied = m
		return nil
	})
	if err != nil {
		return models.Mutation{}, storeErr(op, err)
	}
	return applied, nil
}

// CreateAccount opens an account with zero cash and zero profit.
func (l *Ledger) CreateAccount(ctx context.Context, name string) (models.Account, error) {
	now := l.now()
	acct := models.Account{
		ID:             uuid.New().String(),
		Name:           strings.TrimSpace(name),
		CashBalance:    decimal.Zero,
		RealizedProfit: decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := l.store.CreateAccount(ctx, acct); err != nil {
		return models.Account{}, storeErr("create account", err)
	}
	l.log.Info().Str("account_id", acct.ID).Msg("Account created")
	return acct, nil
}

// Deposit credits cash, subject to the policy's balance bound.
func (l *Ledger) Deposit(ctx context.Context, accountID string, amount decimal.Decimal) (models.CashMovement, models.Account, error) {
	movementID := uuid.New().String()
	m, err := l.commit(ctx, accountID, "deposit", func(ctx context.Context, tx interfaces.AccountTx) (models.Mutation, error) {
		return l.guard.planDeposit(tx.Account(), movementID, amount, l.now())
	})
	if err != nil {
		l.log.Debug().Err(err).Str("account_id", accountID).Msg("Deposit rejected")
		return models.CashMovement{}, models.Account{}, err
	}
	l.afterMovement(ctx, m)
	return *m.Movement, m.Account, nil
}

// Withdraw debits cash; the balance may reach zero but never go below it.
func (l *Ledger) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal) (models.CashMovement, models.Account, error) {
	movementID := uuid.New().String()
	m, err := l.commit(ctx, accountID, "withdraw", func(ctx context.Context, tx interfaces.AccountTx) (models.Mutation, error) {
		return l.guard.planWithdraw(tx.Account(), movementID, amount, l.now())
	})
	if err != nil {
		l.log.Debug().Err(err).Str("account_id", accountID).Msg("Withdrawal rejected")
		return models.CashMovement{}, models.Account{}, err
	}
	l.afterMovement(ctx, m)
	return *m.Movement, m.Account, nil
}

func (l *Ledger) afterMovement(ctx context.Context, m models.Mutation) {
	mv := m.Movement
	l.log.Info().
		Str("account_id", mv.AccountID).
		Str("kind", string(mv.Kind)).
		Str("amount", mv.Amount.String()).
		Str("cash_balance", m.Account.CashBalance.String()).
		Msg("Cash movement committed")

	l.publish(ctx, mv.AccountID, events.CashMoved{
		MovementID:  mv.ID,
		AccountID:   mv.AccountID,
		Kind:        string(mv.Kind),
		Amount:      mv.Amount,
		CashBalance: m.Account.CashBalance,
		OccurredAt:  mv.Timestamp,
	})
}

// publish is best effort: the ledger is already committed and stays the
// source of truth, so a broker failure is only logged.
func (l *Ledger) publish(ctx context.Context, key string, event any) {
	if l.publisher == nil {
		return
	}
	if err := l.publisher.Publish(context.WithoutCancel(ctx), key, event); err != nil {
		l.log.Warn().Err(err).Str("account_id", key).Msg("Failed to publish ledger event")
	}
}

func (l *Ledger) GetAccount(ctx context.Context, accountID string) (models.Account, error) {
	acct, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return models.Account{}, storeErr("get account", err)
	}
	return acct, nil
}

// ListAccounts returns every account in creation order.
func (l *Ledger) ListAccounts(ctx context.Context) ([]models.Account, error) {
	ids, err := l.store.ListAccountIDs(ctx)
	if err != nil {
		return nil, storeErr("list accounts", err)
	}
	accounts := make([]models.Account, 0, len(ids))
	for _, accountID := range ids {
		acct, err := l.GetAccount(ctx, accountID)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

func (l *Ledger) GetCashBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	acct, err := l.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return acct.CashBalance, nil
}

func (l *Ledger) GetProfit(ctx context.Context, accountID string) (decimal.Decimal, error) {
	acct, err := l.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return acct.RealizedProfit, nil
}

// GetTrades returns the account's trade log in (timestamp, seq) order.
func (l *Ledger) GetTrades(ctx context.Context, accountID string) ([]models.TradeRecord, error) {
	trades, err := l.store.GetTrades(ctx, accountID)
	if err != nil {
		return nil, storeErr("get trades", err)
	}
	models.SortTrades(trades)
	return trades, nil
}

func (l *Ledger) GetTrade(ctx context.Context, accountID, tradeID string) (models.TradeRecord, error) {
	t, err := l.store.GetTrade(ctx, accountID, tradeID)
	if err != nil {
		return models.TradeRecord{}, storeErr("get trade", err)
	}
	return t, nil
}

func (l *Ledger) GetCashMovements(ctx context.Context, accountID string) ([]models.CashMovement, error) {
	mvs, err := l.store.GetCashMovements(ctx, accountID)
	if err != nil {
		return nil, storeErr("get cash movements", err)
	}
	return mvs, nil
}

// GetHoldings projects the open positions from the trade log.
func (l *Ledger) GetHoldings(ctx context.Context, accountID string) ([]models.Position, error) {
	trades, err := l.GetTrades(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return Project(trades)
}

// GetHolding returns one open position or ErrNoSuchPosition.
func (l *Ledger) GetHolding(ctx context.Context, accountID, symbol string) (models.Position, error) {
	symbol = models.NormalizeSymbol(symbol)
	holdings, err := l.GetHoldings(ctx, accountID)
	if err != nil {
		return models.Position{}, err
	}
	for _, p := range holdings {
		if p.Symbol == symbol {
			return p, nil
		}
	}
	return models.Position{}, fmt.Errorf("%w: %s", ErrNoSuchPosition, symbol)
}

// maxPriceLookups caps concurrent oracle calls made by one valuation request.
const maxPriceLookups = 4

// GetValuedHoldings marks every open position to market. Prices are fetched
// concurrently and without any account lock; a symbol the oracle cannot price
// is listed unpriced instead of failing the whole listing.
func (l *Ledger) GetValuedHoldings(ctx context.Context, accountID string) ([]models.Valuation, error) {
	holdings, err := l.GetHoldings(ctx, accountID)
	if err != nil {
		return nil, err
	}

	out := make([]models.Valuation, len(holdings))
	sem := make(chan struct{}, maxPriceLookups)
	var wg sync.WaitGroup
	for i, p := range holdings {
		wg.Add(1)
		go func(i int, p models.Position) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			price, err := l.oracle.GetPrice(ctx, p.Symbol, nil)
			if err != nil || !price.IsPositive() {
				l.log.Warn().Err(err).Str("symbol", p.Symbol).Msg("No price for holding, listing unpriced")
				out[i] = unpriced(p)
				return
			}
			out[i] = Valuate(p, price)
		}(i, p)
	}
	wg.Wait()
	return out, nil
}

// GetSummary combines cash, realized profit and valued holdings.
func (l *Ledger) GetSummary(ctx context.Context, accountID string) (models.PortfolioSummary, error) {
	acct, err := l.GetAccount(ctx, accountID)
	if err != nil {
		return models.PortfolioSummary{}, err
	}
	valued, err := l.GetValuedHoldings(ctx, accountID)
	if err != nil {
		return models.PortfolioSummary{}, err
	}
	return Summarize(acct, valued), nil
}
