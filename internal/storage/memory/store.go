package memory

import (
	"context" // standard Go package for request-scoped context (timeouts, cancellation)
	"sort"
	"sync" // standard Go package for concurrency primitives like Mutex

	interfaces "github.com/sheikh-saqib/trading-ledger/internal/interfaces" // interface LedgerStore
	"github.com/sheikh-saqib/trading-ledger/internal/models"
	"github.com/sheikh-saqib/trading-ledger/internal/storage"
)

// accountState holds everything the store knows about one account.
// Its mutex serialises writers of that account only.
type accountState struct {
	mu        sync.Mutex
	account   models.Account
	trades    []models.TradeRecord
	movements []models.CashMovement
	positions map[string]models.Position // open positions only
}

// MemoryLedgerStore is an in-memory implementation of interfaces.LedgerStore.
// Different accounts never contend on the same lock.
type MemoryLedgerStore struct {
	mu       sync.RWMutex // protects the accounts map itself, not the states in it
	accounts map[string]*accountState
	order    []string // account IDs in creation order
}

// NewMemoryLedgerStore creates and returns a new MemoryLedgerStore instance
func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		accounts: make(map[string]*accountState),
	}
}

func (m *MemoryLedgerStore) state(accountID string) (*accountState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.accounts[accountID]
	if !ok {
		return nil, storage.ErrAccountNotFound
	}
	return st, nil
}

func (m *MemoryLedgerStore) CreateAccount(ctx context.Context, account models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[account.ID]; exists {
		return storage.ErrAccountExists
	}
	m.accounts[account.ID] = &accountState{
		account:   account,
		positions: make(map[string]models.Position),
	}
	m.order = append(m.order, account.ID)
	return nil
}

func (m *MemoryLedgerStore) GetAccount(ctx context.Context, accountID string) (models.Account, error) {
	st, err := m.state(accountID)
	if err != nil {
		return models.Account{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.account, nil
}

func (m *MemoryLedgerStore) ListAccountIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, len(m.order))
	copy(ids, m.order)
	return ids, nil
}

// GetTrades returns a copy of the account's trade log in log order.
func (m *MemoryLedgerStore) GetTrades(ctx context.Context, accountID string) ([]models.TradeRecord, error) {
	st, err := m.state(accountID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	copied := make([]models.TradeRecord, len(st.trades))
	copy(copied, st.trades) // return the copy so external code can't modify internal state
	models.SortTrades(copied)
	return copied, nil
}

func (m *MemoryLedgerStore) GetTrade(ctx context.Context, accountID, tradeID string) (models.TradeRecord, error) {
	st, err := m.state(accountID)
	if err != nil {
		return models.TradeRecord{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	for _, t := range st.trades {
		if t.ID == tradeID {
			return t, nil
		}
	}
	return models.TradeRecord{}, storage.ErrTradeNotFound
}

func (m *MemoryLedgerStore) GetCashMovements(ctx context.Context, accountID string) ([]models.CashMovement, error) {
	st, err := m.state(accountID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	copied := make([]models.CashMovement, len(st.movements))
	copy(copied, st.movements)
	return copied, nil
}

func (m *MemoryLedgerStore) GetPosition(ctx context.Context, accountID, symbol string) (models.Position, bool, error) {
	st, err := m.state(accountID)
	if err != nil {
		return models.Position{}, false, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	p, ok := st.positions[symbol]
	return p, ok, nil
}

// GetPositions returns the cached open positions sorted by symbol.
func (m *MemoryLedgerStore) GetPositions(ctx context.Context, accountID string) ([]models.Position, error) {
	st, err := m.state(accountID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	return sortedPositions(st.positions), nil
}

func (m *MemoryLedgerStore) ReplacePositions(ctx context.Context, accountID string, positions []models.Position) error {
	st, err := m.state(accountID)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	fresh := make(map[string]models.Position, len(positions))
	for _, p := range positions {
		if p.Open() {
			fresh[p.Symbol] = p
		}
	}
	st.positions = fresh
	return nil
}

// WithAccountTx holds the account's mutex for the whole read-validate-write
// sequence. Staged mutations are checked against the current version before any
// of them is applied, so a failure leaves the state untouched.
func (m *MemoryLedgerStore) WithAccountTx(ctx context.Context, accountID string, fn func(ctx context.Context, tx interfaces.AccountTx) error) error {
	st, err := m.state(accountID)
	if err != nil {
		return err
	}

	st.mu.Lock()         // lock the account for the whole unit of work
	defer st.mu.Unlock() // unlock automatically when function exits (even if error occurs)

	tx := &memoryTx{account: st.account, positions: st.positions}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	// A caller that went away before commit gets nothing applied.
	if err := ctx.Err(); err != nil {
		return err
	}

	version := st.account.Version
	for _, mut := range tx.staged {
		if mut.PreviousVersion() != version {
			return storage.ErrVersionConflict
		}
		version = mut.Account.Version
	}

	for _, mut := range tx.staged {
		st.account = mut.Account
		if mut.Trade != nil {
			st.trades = append(st.trades, *mut.Trade)
		}
		if mut.Movement != nil {
			st.movements = append(st.movements, *mut.Movement)
		}
		if mut.Position != nil {
			if mut.Position.Open() {
				st.positions[mut.Position.Symbol] = *mut.Position
			} else {
				delete(st.positions, mut.Position.Symbol)
			}
		}
	}
	return nil
}

type memoryTx struct {
	account   models.Account
	positions map[string]models.Position
	staged    []models.Mutation
}

func (t *memoryTx) Account() models.Account {
	return t.account
}

func (t *memoryTx) Position(ctx context.Context, symbol string) (models.Position, bool, error) {
	p, ok := t.positions[symbol]
	return p, ok, nil
}

func (t *memoryTx) Stage(m models.Mutation) {
	t.staged = append(t.staged, m)
}

func sortedPositions(in map[string]models.Position) []models.Position {
	out := make([]models.Position, 0, len(in))
	for _, p := range in {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Compile-time check: ensure MemoryLedgerStore implements LedgerStore interface
var _ interfaces.LedgerStore = (*MemoryLedgerStore)(nil)
