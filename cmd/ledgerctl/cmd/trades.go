package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var tradesCmd = &cobra.Command{
	Use:   "trades <account-id>",
	Short: "Print an account's trade log in ledger order",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrades,
}

var holdingsCmd = &cobra.Command{
	Use:   "holdings <account-id>",
	Short: "Print open positions projected from the trade log",
	Args:  cobra.ExactArgs(1),
	RunE:  runHoldings,
}

func init() {
	rootCmd.AddCommand(tradesCmd)
	rootCmd.AddCommand(holdingsCmd)
}

func runTrades(cmd *cobra.Command, args []string) error {
	l, closeFn, err := openLedger(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	trades, err := l.GetTrades(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get trades: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tTIME\tSIDE\tSYMBOL\tQTY\tPRICE\tREALIZED\tID")
	for _, t := range trades {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.Seq, t.Timestamp.UTC().Format(time.RFC3339), t.Side, t.Symbol, t.Quantity,
			formatMoney(t.Price, currency), formatMoney(t.RealizedProfit, currency), t.ID)
	}
	return w.Flush()
}

func runHoldings(cmd *cobra.Command, args []string) error {
	l, closeFn, err := openLedger(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	holdings, err := l.GetHoldings(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get holdings: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tQTY\tAVG COST\tCOST BASIS")
	for _, p := range holdings {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			p.Symbol, p.Quantity, formatMoney(p.AverageCost, currency), formatMoney(p.CostBasis(), currency))
	}
	return w.Flush()
}
