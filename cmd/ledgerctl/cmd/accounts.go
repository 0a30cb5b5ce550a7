package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List accounts with cash and realized profit",
	Args:  cobra.NoArgs,
	RunE:  runAccounts,
}

var balanceCmd = &cobra.Command{
	Use:   "balance <account-id>",
	Short: "Print an account's cash balance and realized profit",
	Args:  cobra.ExactArgs(1),
	RunE:  runBalance,
}

func init() {
	rootCmd.AddCommand(accountsCmd)
	rootCmd.AddCommand(balanceCmd)
}

func runAccounts(cmd *cobra.Command, args []string) error {
	l, closeFn, err := openLedger(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	accounts, err := l.ListAccounts(cmd.Context())
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tVERSION\tCASH\tREALIZED")
	for _, a := range accounts {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			a.ID, a.Name, a.Version, formatMoney(a.CashBalance, currency), formatMoney(a.RealizedProfit, currency))
	}
	return w.Flush()
}

func runBalance(cmd *cobra.Command, args []string) error {
	l, closeFn, err := openLedger(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	acct, err := l.GetAccount(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Cash:     %s\n", formatMoney(acct.CashBalance, currency))
	fmt.Fprintf(out, "Realized: %s\n", formatMoney(acct.RealizedProfit, currency))
	return nil
}
