// Package backend opens the LedgerStore named by configuration.
package backend

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // postgres driver

	interfaces "github.com/sheikh-saqib/trading-ledger/internal/interfaces"
	"github.com/sheikh-saqib/trading-ledger/internal/storage/memory"
	"github.com/sheikh-saqib/trading-ledger/internal/storage/postgres"
	"github.com/sheikh-saqib/trading-ledger/internal/storage/sqlite"
)

// Drivers accepted by Open.
const (
	Memory   = "memory"
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// Options selects and locates a store.
type Options struct {
	Driver      string
	SQLitePath  string
	DatabaseURL string
}

// Open returns a migrated store and a func that releases it.
func Open(ctx context.Context, opts Options) (interfaces.LedgerStore, func() error, error) {
	switch opts.Driver {
	case Memory, "":
		return memory.NewMemoryLedgerStore(), func() error { return nil }, nil

	case SQLite:
		db, err := sqlite.Open(opts.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		store := sqlite.NewStore(db)
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, db.Close, nil

	case Postgres:
		db, err := sql.Open("postgres", opts.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to ping postgres: %w", err)
		}
		store := postgres.NewPostgresLedgerStore(db)
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, db.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}
