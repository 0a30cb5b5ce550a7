package interfaces

import (
	"context"

	"github.com/sheikh-saqib/trading-ledger/internal/models"
)

// AccountTx is a unit of work scoped to a single account. Reads observe the
// account as it was when the transaction locked it; writes are staged and only
// applied when the surrounding WithAccountTx callback returns nil.
type AccountTx interface {
	Account() models.Account
	Position(ctx context.Context, symbol string) (models.Position, bool, error)
	Stage(m models.Mutation)
}

// LedgerStore persists accounts, the append-only trade and cash logs, and the
// materialised position cache.
type LedgerStore interface {
	CreateAccount(ctx context.Context, account models.Account) error
	GetAccount(ctx context.Context, accountID string) (models.Account, error)
	ListAccountIDs(ctx context.Context) ([]string, error)

	GetTrades(ctx context.Context, accountID string) ([]models.TradeRecord, error)
	GetTrade(ctx context.Context, accountID, tradeID string) (models.TradeRecord, error)
	GetCashMovements(ctx context.Context, accountID string) ([]models.CashMovement, error)

	GetPosition(ctx context.Context, accountID, symbol string) (models.Position, bool, error)
	GetPositions(ctx context.Context, accountID string) ([]models.Position, error)
	ReplacePositions(ctx context.Context, accountID string, positions []models.Position) error

	// WithAccountTx runs fn against a locked view of the account and commits the
	// staged mutations atomically. Any error from fn, or a cancelled ctx, discards them.
	WithAccountTx(ctx context.Context, accountID string, fn func(ctx context.Context, tx AccountTx) error) error
}
