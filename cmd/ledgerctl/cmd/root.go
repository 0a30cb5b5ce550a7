package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/Rhymond/go-money"
	"github.com/spf13/cobra"

	"github.com/sheikh-saqib/trading-ledger/internal/ledger"
	"github.com/sheikh-saqib/trading-ledger/internal/oracle"
	"github.com/sheikh-saqib/trading-ledger/internal/storage/backend"
	"github.com/sheikh-saqib/trading-ledger/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Inspect and repair a trading ledger store",
	Long: `ledgerctl reads a ledger store directly, without going through the HTTP service.

It can list accounts, print trade logs and holdings, and reconcile the
position cache against the trade log.

Examples:
  ledgerctl accounts --db ./data/ledger.db
  ledgerctl trades 01HV6Z... --db ./data/ledger.db
  ledgerctl reconcile --repair --driver postgres --database-url postgres://...`,
	SilenceUsage: true,
}

var (
	storeDriver string
	sqlitePath  string
	databaseURL string
	currency    string
	verbose     bool
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storeDriver, "driver", backend.SQLite, "store driver (sqlite or postgres)")
	rootCmd.PersistentFlags().StringVarP(&sqlitePath, "db", "d", envOr("SQLITE_PATH", "./data/ledger.db"), "path to SQLite ledger DB")
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "postgres DSN")
	rootCmd.PersistentFlags().StringVar(&currency, "currency", envOr("CURRENCY", money.USD), "currency used to print cash amounts")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log ledger activity to stderr")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// openLedger opens the configured store behind a ledger with no price source.
// Commands that need market prices do not exist here; everything is read from
// the logs and the cache.
func openLedger(ctx context.Context) (*ledger.Ledger, func() error, error) {
	if money.GetCurrency(currency) == nil {
		return nil, nil, fmt.Errorf("unknown currency %q", currency)
	}

	store, closeFn, err := backend.Open(ctx, backend.Options{
		Driver:      storeDriver,
		SQLitePath:  sqlitePath,
		DatabaseURL: databaseURL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	log := logger.Nop()
	if verbose {
		log = logger.New(logger.Config{Level: "debug", Pretty: true, Output: os.Stderr})
	}
	l := ledger.NewLedger(store, oracle.NewStatic(nil), ledger.NewGuard(ledger.Policy{}), log)
	return l, closeFn, nil
}
