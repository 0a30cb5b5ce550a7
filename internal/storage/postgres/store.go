package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	interfaces "github.com/sheikh-saqib/trading-ledger/internal/interfaces" // interface LedgerStore
	"github.com/sheikh-saqib/trading-ledger/internal/models"
	"github.com/sheikh-saqib/trading-ledger/internal/storage"
)

// Schema creates the ledger tables. Trades and cash movements are append-only;
// positions is a cache that can always be rebuilt from trades.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL DEFAULT '',
	cash_balance    NUMERIC NOT NULL CHECK (cash_balance >= 0),
	realized_profit NUMERIC NOT NULL,
	version         BIGINT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	id              TEXT PRIMARY KEY,
	account_id      TEXT NOT NULL REFERENCES accounts(id),
	seq             BIGINT NOT NULL,
	symbol          TEXT NOT NULL,
	side            TEXT NOT NULL CHECK (side IN ('BUY', 'SELL')),
	quantity        NUMERIC NOT NULL CHECK (quantity > 0),
	price           NUMERIC NOT NULL CHECK (price > 0),
	realized_profit NUMERIC NOT NULL,
	price_date      TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL,
	UNIQUE (account_id, seq)
);

CREATE TABLE IF NOT EXISTS cash_movements (
	id         TEXT PRIMARY KEY,
	account_id TEXT NOT NULL REFERENCES accounts(id),
	seq        BIGINT NOT NULL,
	kind       TEXT NOT NULL CHECK (kind IN ('DEPOSIT', 'WITHDRAWAL')),
	amount     NUMERIC NOT NULL CHECK (amount > 0),
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (account_id, seq)
);

CREATE TABLE IF NOT EXISTS positions (
	account_id   TEXT NOT NULL REFERENCES accounts(id),
	symbol       TEXT NOT NULL,
	quantity     NUMERIC NOT NULL CHECK (quantity > 0),
	average_cost NUMERIC NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (account_id, symbol)
);
`

const uniqueViolation = "23505"

type PostgresLedgerStore struct {
	db *sql.DB
}

func NewPostgresLedgerStore(db *sql.DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{
		db: db,
	}
}

// Migrate applies Schema. It is safe to run on every start.
func (p *PostgresLedgerStore) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate ledger schema: %w", err)
	}
	return nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (p *PostgresLedgerStore) CreateAccount(ctx context.Context, account models.Account) error {
	const query = `INSERT INTO accounts (id, name, cash_balance, realized_profit, version, created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7)`

	_, err := p.db.ExecContext(ctx, query,
		account.ID, account.Name, account.CashBalance, account.RealizedProfit,
		account.Version, account.CreatedAt, account.UpdatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return storage.ErrAccountExists
	}
	return err
}

func (p *PostgresLedgerStore) GetAccount(ctx context.Context, accountID string) (models.Account, error) {
	return getAccount(ctx, p.db, accountID, false)
}

func getAccount(ctx context.Context, q queryer, accountID string, forUpdate bool) (models.Account, error) {
	query := `SELECT id, name, cash_balance, realized_profit, version, created_at, updated_at
	FROM accounts WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var a models.Account
	err := q.QueryRowContext(ctx, query, accountID).Scan(
		&a.ID, &a.Name, &a.CashBalance, &a.RealizedProfit, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return models.Account{}, storage.ErrAccountNotFound
	}
	if err != nil {
		return models.Account{}, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

func (p *PostgresLedgerStore) ListAccountIDs(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id FROM accounts ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// exists turns an empty result for an unknown account into ErrAccountNotFound.
func (p *PostgresLedgerStore) exists(ctx context.Context, accountID string) error {
	var one int
	err := p.db.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE id = $1`, accountID).Scan(&one)
	if err == sql.ErrNoRows {
		return storage.ErrAccountNotFound
	}
	return err
}

const tradeColumns = `id, account_id, seq, symbol, side, quantity, price, realized_profit, price_date, created_at`

func (p *PostgresLedgerStore) GetTrades(ctx context.Context, accountID string) ([]models.TradeRecord, error) {
	if err := p.exists(ctx, accountID); err != nil {
		return nil, err
	}

	query := `SELECT ` + tradeColumns + ` FROM trades WHERE account_id = $1 ORDER BY created_at, seq`
	rows, err := p.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []models.TradeRecord
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return trades, nil
}

func (p *PostgresLedgerStore) GetTrade(ctx context.Context, accountID, tradeID string) (models.TradeRecord, error) {
	if err := p.exists(ctx, accountID); err != nil {
		return models.TradeRecord{}, err
	}

	query := `SELECT ` + tradeColumns + ` FROM trades WHERE account_id = $1 AND id = $2`
	t, err := scanTrade(p.db.QueryRowContext(ctx, query, accountID, tradeID))
	if err == sql.ErrNoRows {
		return models.TradeRecord{}, storage.ErrTradeNotFound
	}
	return t, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(row scanner) (models.TradeRecord, error) {
	var (
		t         models.TradeRecord
		side      string
		priceDate sql.NullTime
	)
	err := row.Scan(&t.ID, &t.AccountID, &t.Seq, &t.Symbol, &side, &t.Quantity, &t.Price,
		&t.RealizedProfit, &priceDate, &t.Timestamp)
	if err != nil {
		return models.TradeRecord{}, err
	}
	t.Side = models.Side(side)
	t.Timestamp = t.Timestamp.UTC()
	if priceDate.Valid {
		d := priceDate.Time.UTC()
		t.PriceDate = &d
	}
	return t, nil
}

func (p *PostgresLedgerStore) GetCashMovements(ctx context.Context, accountID string) ([]models.CashMovement, error) {
	if err := p.exists(ctx, accountID); err != nil {
		return nil, err
	}

	const query = `SELECT id, account_id, seq, kind, amount, created_at
	FROM cash_movements WHERE account_id = $1 ORDER BY seq`
	rows, err := p.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []models.CashMovement
	for rows.Next() {
		var (
			m    models.CashMovement
			kind string
		)
		if err := rows.Scan(&m.ID, &m.AccountID, &m.Seq, &kind, &m.Amount, &m.Timestamp); err != nil {
			return nil, err
		}
		m.Kind = models.MovementKind(kind)
		m.Timestamp = m.Timestamp.UTC()
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (p *PostgresLedgerStore) GetPosition(ctx context.Context, accountID, symbol string) (models.Position, bool, error) {
	if err := p.exists(ctx, accountID); err != nil {
		return models.Position{}, false, err
	}
	return getPosition(ctx, p.db, accountID, symbol)
}

func getPosition(ctx context.Context, q queryer, accountID, symbol string) (models.Position, bool, error) {
	const query = `SELECT account_id, symbol, quantity, average_cost, updated_at
	FROM positions WHERE account_id = $1 AND symbol = $2`

	var pos models.Position
	err := q.QueryRowContext(ctx, query, accountID, symbol).Scan(
		&pos.AccountID, &pos.Symbol, &pos.Quantity, &pos.AverageCost, &pos.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return models.Position{}, false, nil
	}
	if err != nil {
		return models.Position{}, false, err
	}
	pos.UpdatedAt = pos.UpdatedAt.UTC()
	return pos, true, nil
}

func (p *PostgresLedgerStore) GetPositions(ctx context.Context, accountID string) ([]models.Position, error) {
	if err := p.exists(ctx, accountID); err != nil {
		return nil, err
	}

	const query = `SELECT account_id, symbol, quantity, average_cost, updated_at
	FROM positions WHERE account_id = $1 ORDER BY symbol`
	rows, err := p.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []models.Position
	for rows.Next() {
		var pos models.Position
		if err := rows.Scan(&pos.AccountID, &pos.Symbol, &pos.Quantity, &pos.AverageCost, &pos.UpdatedAt); err != nil {
			return nil, err
		}
		pos.UpdatedAt = pos.UpdatedAt.UTC()
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

// ReplacePositions swaps the account's whole position cache in one transaction.
// The account row is locked so it cannot interleave with a trade commit.
func (p *PostgresLedgerStore) ReplacePositions(ctx context.Context, accountID string, positions []models.Position) (err error) {
	dbTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	if _, err = getAccount(ctx, dbTx, accountID, true); err != nil {
		return err
	}
	if _, err = dbTx.ExecContext(ctx, `DELETE FROM positions WHERE account_id = $1`, accountID); err != nil {
		return err
	}
	for _, pos := range positions {
		if !pos.Open() {
			continue
		}
		if err = upsertPosition(ctx, dbTx, pos); err != nil {
			return err
		}
	}
	return dbTx.Commit()
}

// WithAccountTx locks the account row with SELECT ... FOR UPDATE, lets fn plan
// against it and writes the staged mutations before committing. Each account
// update is guarded by its expected version as well as by the row lock.
func (p *PostgresLedgerStore) WithAccountTx(ctx context.Context, accountID string, fn func(ctx context.Context, tx interfaces.AccountTx) error) (err error) {
	dbTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	account, err := getAccount(ctx, dbTx, accountID, true)
	if err != nil {
		return err
	}

	tx := &postgresTx{db: dbTx, account: account}
	if err = fn(ctx, tx); err != nil {
		return err
	}

	for _, m := range tx.staged {
		if err = applyMutation(ctx, dbTx, m); err != nil {
			return err
		}
	}
	return dbTx.Commit()
}

func applyMutation(ctx context.Context, dbTx *sql.Tx, m models.Mutation) error {
	const updateAccount = `UPDATE accounts
	SET cash_balance = $1, realized_profit = $2, version = $3, updated_at = $4
	WHERE id = $5 AND version = $6`

	a := m.Account
	res, err := dbTx.ExecContext(ctx, updateAccount,
		a.CashBalance, a.RealizedProfit, a.Version, a.UpdatedAt, a.ID, m.PreviousVersion())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n != 1 {
		return storage.ErrVersionConflict
	}

	if t := m.Trade; t != nil {
		const insertTrade = `INSERT INTO trades (` + tradeColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

		var priceDate sql.NullTime
		if t.PriceDate != nil {
			priceDate = sql.NullTime{Time: *t.PriceDate, Valid: true}
		}
		_, err := dbTx.ExecContext(ctx, insertTrade, t.ID, t.AccountID, t.Seq, t.Symbol, string(t.Side),
			t.Quantity, t.Price, t.RealizedProfit, priceDate, t.Timestamp)
		if err != nil {
			return err
		}
	}

	if mv := m.Movement; mv != nil {
		const insertMovement = `INSERT INTO cash_movements (id, account_id, seq, kind, amount, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`

		_, err := dbTx.ExecContext(ctx, insertMovement, mv.ID, mv.AccountID, mv.Seq, string(mv.Kind), mv.Amount, mv.Timestamp)
		if err != nil {
			return err
		}
	}

	if pos := m.Position; pos != nil {
		if pos.Open() {
			return upsertPosition(ctx, dbTx, *pos)
		}
		_, err := dbTx.ExecContext(ctx, `DELETE FROM positions WHERE account_id = $1 AND symbol = $2`, pos.AccountID, pos.Symbol)
		return err
	}
	return nil
}

func upsertPosition(ctx context.Context, dbTx *sql.Tx, pos models.Position) error {
	const query = `INSERT INTO positions (account_id, symbol, quantity, average_cost, updated_at)
	VALUES ($1,$2,$3,$4,$5)
	ON CONFLICT (account_id, symbol)
	DO UPDATE SET quantity = EXCLUDED.quantity, average_cost = EXCLUDED.average_cost, updated_at = EXCLUDED.updated_at`

	_, err := dbTx.ExecContext(ctx, query, pos.AccountID, pos.Symbol, pos.Quantity, pos.AverageCost, pos.UpdatedAt)
	return err
}

type postgresTx struct {
	db      *sql.Tx
	account models.Account
	staged  []models.Mutation
}

func (t *postgresTx) Account() models.Account {
	return t.account
}

func (t *postgresTx) Position(ctx context.Context, symbol string) (models.Position, bool, error) {
	return getPosition(ctx, t.db, t.account.ID, symbol)
}

func (t *postgresTx) Stage(m models.Mutation) {
	t.staged = append(t.staged, m)
}

var _ interfaces.LedgerStore = (*PostgresLedgerStore)(nil)
