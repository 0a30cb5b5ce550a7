package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sheikh-saqib/trading-ledger/internal/ledger"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [account-id]",
	Short: "Compare stored state with the trade and cash logs",
	Long: `Reconcile replays each account's trade and cash logs and compares the
result with the stored account row and the position cache.

With no account ID every account is checked. --repair rebuilds drifted
position caches from the trade log; account rows are only reported.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReconcile,
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild <account-id>",
	Short: "Rebuild an account's position cache from its trade log",
	Args:  cobra.ExactArgs(1),
	RunE:  runRebuild,
}

var reconcileRepair bool

func init() {
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(rebuildCmd)

	reconcileCmd.Flags().BoolVar(&reconcileRepair, "repair", false, "rebuild drifted position caches")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	l, closeFn, err := openLedger(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	var reports []ledger.ReconcileReport
	switch {
	case len(args) == 0:
		reports, err = l.ReconcileAll(cmd.Context(), reconcileRepair)
	case reconcileRepair:
		var r ledger.ReconcileReport
		r, err = l.Rebuild(cmd.Context(), args[0])
		reports = append(reports, r)
	default:
		var r ledger.ReconcileReport
		r, err = l.Reconcile(cmd.Context(), args[0])
		reports = append(reports, r)
	}
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	return printReports(cmd.OutOrStdout(), reports)
}

func runRebuild(cmd *cobra.Command, args []string) error {
	l, closeFn, err := openLedger(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	report, err := l.Rebuild(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}
	return printReports(cmd.OutOrStdout(), []ledger.ReconcileReport{report})
}

// printReports writes one line per account and fails when any account row
// disagrees with its logs.
func printReports(out io.Writer, reports []ledger.ReconcileReport) error {
	var drifted int
	for _, r := range reports {
		switch {
		case r.AccountDrift:
			drifted++
			fmt.Fprintf(out, "%s  ACCOUNT DRIFT  cash %s (log %s)  realized %s (log %s)\n",
				r.AccountID,
				formatMoney(r.Stored.CashBalance, currency), formatMoney(r.Projected.CashBalance, currency),
				formatMoney(r.Stored.RealizedProfit, currency), formatMoney(r.Projected.RealizedProfit, currency))
		case len(r.PositionDrift) > 0 && r.Repaired:
			fmt.Fprintf(out, "%s  repaired %d position(s)\n", r.AccountID, len(r.PositionDrift))
		case len(r.PositionDrift) > 0:
			fmt.Fprintf(out, "%s  position drift on %d symbol(s)\n", r.AccountID, len(r.PositionDrift))
			for _, d := range r.PositionDrift {
				fmt.Fprintf(out, "    %s  cache %s  log %s\n", d.Symbol, describe(d.Cached), describe(d.Projected))
			}
		default:
			fmt.Fprintf(out, "%s  ok\n", r.AccountID)
		}
	}
	if drifted > 0 {
		return fmt.Errorf("%d account(s) disagree with their logs", drifted)
	}
	return nil
}
