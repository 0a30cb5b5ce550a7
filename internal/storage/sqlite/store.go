package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	interfaces "github.com/sheikh-saqib/trading-ledger/internal/interfaces"
	"github.com/sheikh-saqib/trading-ledger/internal/models"
	"github.com/sheikh-saqib/trading-ledger/internal/storage"
)

// Schema mirrors the postgres layout. Decimals are TEXT so no precision is
// lost to REAL affinity; times are unix nanoseconds.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL DEFAULT '',
	cash_balance    TEXT NOT NULL,
	realized_profit TEXT NOT NULL,
	version         INTEGER NOT NULL,
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	id              TEXT PRIMARY KEY,
	account_id      TEXT NOT NULL REFERENCES accounts(id),
	seq             INTEGER NOT NULL,
	symbol          TEXT NOT NULL,
	side            TEXT NOT NULL CHECK (side IN ('BUY', 'SELL')),
	quantity        TEXT NOT NULL,
	price           TEXT NOT NULL,
	realized_profit TEXT NOT NULL,
	price_date      INTEGER,
	created_at      INTEGER NOT NULL,
	UNIQUE (account_id, seq)
);

CREATE TABLE IF NOT EXISTS cash_movements (
	id         TEXT PRIMARY KEY,
	account_id TEXT NOT NULL REFERENCES accounts(id),
	seq        INTEGER NOT NULL,
	kind       TEXT NOT NULL CHECK (kind IN ('DEPOSIT', 'WITHDRAWAL')),
	amount     TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE (account_id, seq)
);

CREATE TABLE IF NOT EXISTS positions (
	account_id   TEXT NOT NULL REFERENCES accounts(id),
	symbol       TEXT NOT NULL,
	quantity     TEXT NOT NULL,
	average_cost TEXT NOT NULL,
	updated_at   INTEGER NOT NULL,
	PRIMARY KEY (account_id, symbol)
);
`

// Store implements interfaces.LedgerStore on SQLite.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate ledger schema: %w", err)
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func (s *Store) CreateAccount(ctx context.Context, account models.Account) error {
	const query = `INSERT INTO accounts (id, name, cash_balance, realized_profit, version, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		account.ID, account.Name, account.CashBalance.String(), account.RealizedProfit.String(),
		account.Version, toNanos(account.CreatedAt), toNanos(account.UpdatedAt))
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return storage.ErrAccountExists
	}
	return err
}

func (s *Store) GetAccount(ctx context.Context, accountID string) (models.Account, error) {
	return getAccount(ctx, s.db, accountID)
}

func getAccount(ctx context.Context, q queryer, accountID string) (models.Account, error) {
	const query = `SELECT id, name, cash_balance, realized_profit, version, created_at, updated_at
	FROM accounts WHERE id = ?`

	var (
		a                models.Account
		created, updated int64
	)
	err := q.QueryRowContext(ctx, query, accountID).Scan(
		&a.ID, &a.Name, &a.CashBalance, &a.RealizedProfit, &a.Version, &created, &updated,
	)
	if err == sql.ErrNoRows {
		return models.Account{}, storage.ErrAccountNotFound
	}
	if err != nil {
		return models.Account{}, err
	}
	a.CreatedAt = fromNanos(created)
	a.UpdatedAt = fromNanos(updated)
	return a, nil
}

func (s *Store) ListAccountIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM accounts ORDER BY created_at, rowid`)
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

func (s *Store) exists(ctx context.Context, accountID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE id = ?`, accountID).Scan(&one)
	if err == sql.ErrNoRows {
		return storage.ErrAccountNotFound
	}
	return err
}

const tradeColumns = `id, account_id, seq, symbol, side, quantity, price, realized_profit, price_date, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(row scanner) (models.TradeRecord, error) {
	var (
		t         models.TradeRecord
		side      string
		priceDate sql.NullInt64
		created   int64
	)
	err := row.Scan(&t.ID, &t.AccountID, &t.Seq, &t.Symbol, &side, &t.Quantity, &t.Price,
		&t.RealizedProfit, &priceDate, &created)
	if err != nil {
		return models.TradeRecord{}, err
	}
	t.Side = models.Side(side)
	t.Timestamp = fromNanos(created)
	if priceDate.Valid {
		d := fromNanos(priceDate.Int64)
		t.PriceDate = &d
	}
	return t, nil
}

func (s *Store) GetTrades(ctx context.Context, accountID string) ([]models.TradeRecord, error) {
	if err := s.exists(ctx, accountID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE account_id = ? ORDER BY created_at, seq`, accountID)
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
	return trades, rows.Err()
}

func (s *Store) GetTrade(ctx context.Context, accountID, tradeID string) (models.TradeRecord, error) {
	if err := s.exists(ctx, accountID); err != nil {
		return models.TradeRecord{}, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE account_id = ? AND id = ?`, accountID, tradeID)
	t, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return models.TradeRecord{}, storage.ErrTradeNotFound
	}
	return t, err
}

func (s *Store) GetCashMovements(ctx context.Context, accountID string) ([]models.CashMovement, error) {
	if err := s.exists(ctx, accountID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, account_id, seq, kind, amount, created_at
	FROM cash_movements WHERE account_id = ? ORDER BY seq`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []models.CashMovement
	for rows.Next() {
		var (
			m       models.CashMovement
			kind    string
			created int64
		)
		if err := rows.Scan(&m.ID, &m.AccountID, &m.Seq, &kind, &m.Amount, &created); err != nil {
			return nil, err
		}
		m.Kind = models.MovementKind(kind)
		m.Timestamp = fromNanos(created)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func scanPosition(row scanner) (models.Position, error) {
	var (
		p       models.Position
		updated int64
	)
	if err := row.Scan(&p.AccountID, &p.Symbol, &p.Quantity, &p.AverageCost, &updated); err != nil {
		return models.Position{}, err
	}
	p.UpdatedAt = fromNanos(updated)
	return p, nil
}

func (s *Store) GetPosition(ctx context.Context, accountID, symbol string) (models.Position, bool, error) {
	if err := s.exists(ctx, accountID); err != nil {
		return models.Position{}, false, err
	}
	return getPosition(ctx, s.db, accountID, symbol)
}

func getPosition(ctx context.Context, q queryer, accountID, symbol string) (models.Position, bool, error) {
	row := q.QueryRowContext(ctx, `SELECT account_id, symbol, quantity, average_cost, updated_at
	FROM positions WHERE account_id = ? AND symbol = ?`, accountID, symbol)
	p, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return models.Position{}, false, nil
	}
	if err != nil {
		return models.Position{}, false, err
	}
	return p, true, nil
}

func (s *Store) GetPositions(ctx context.Context, accountID string) ([]models.Position, error) {
	if err := s.exists(ctx, accountID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT account_id, symbol, quantity, average_cost, updated_at
	FROM positions WHERE account_id = ? ORDER BY symbol`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (s *Store) ReplacePositions(ctx context.Context, accountID string, positions []models.Position) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := getAccount(ctx, tx, accountID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM positions WHERE account_id = ?`, accountID); err != nil {
		return err
	}
	for _, p := range positions {
		if !p.Open() {
			continue
		}
		if err := upsertPosition(ctx, tx, p); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// WithAccountTx runs fn inside a database transaction. SQLite serialises
// writers, and every account update is also conditioned on its prior version.
func (s *Store) WithAccountTx(ctx context.Context, accountID string, fn func(ctx context.Context, tx interfaces.AccountTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	account, err := getAccount(ctx, tx, accountID)
	if err != nil {
		return err
	}

	atx := &sqliteTx{tx: tx, account: account}
	if err := fn(ctx, atx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, m := range atx.staged {
		if err := applyMutation(ctx, tx, m); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func applyMutation(ctx context.Context, tx *sql.Tx, m models.Mutation) error {
	a := m.Account
	res, err := tx.ExecContext(ctx, `UPDATE accounts
	SET cash_balance = ?, realized_profit = ?, version = ?, updated_at = ?
	WHERE id = ? AND version = ?`,
		a.CashBalance.String(), a.RealizedProfit.String(), a.Version, toNanos(a.UpdatedAt), a.ID, m.PreviousVersion())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return storage.ErrVersionConflict
	}

	if t := m.Trade; t != nil {
		var priceDate sql.NullInt64
		if t.PriceDate != nil {
			priceDate = sql.NullInt64{Int64: toNanos(*t.PriceDate), Valid: true}
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO trades (`+tradeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.AccountID, t.Seq, t.Symbol, string(t.Side), t.Quantity.String(), t.Price.String(),
			t.RealizedProfit.String(), priceDate, toNanos(t.Timestamp))
		if err != nil {
			return err
		}
	}

	if mv := m.Movement; mv != nil {
		_, err := tx.ExecContext(ctx, `INSERT INTO cash_movements (id, account_id, seq, kind, amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
			mv.ID, mv.AccountID, mv.Seq, string(mv.Kind), mv.Amount.String(), toNanos(mv.Timestamp))
		if err != nil {
			return err
		}
	}

	if p := m.Position; p != nil {
		if p.Open() {
			return upsertPosition(ctx, tx, *p)
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM positions WHERE account_id = ? AND symbol = ?`, p.AccountID, p.Symbol)
		return err
	}
	return nil
}

func upsertPosition(ctx context.Context, tx *sql.Tx, p models.Position) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO positions (account_id, symbol, quantity, average_cost, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (account_id, symbol)
	DO UPDATE SET quantity = excluded.quantity, average_cost = excluded.average_cost, updated_at = excluded.updated_at`,
		p.AccountID, p.Symbol, p.Quantity.String(), p.AverageCost.String(), toNanos(p.UpdatedAt))
	return err
}

type sqliteTx struct {
	tx      *sql.Tx
	account models.Account
	staged  []models.Mutation
}

func (t *sqliteTx) Account() models.Account {
	return t.account
}

func (t *sqliteTx) Position(ctx context.Context, symbol string) (models.Position, bool, error) {
	return getPosition(ctx, t.tx, t.account.ID, symbol)
}

func (t *sqliteTx) Stage(m models.Mutation) {
	t.staged = append(t.staged, m)
}

var _ interfaces.LedgerStore = (*Store)(nil)
