package cmd

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"skald/internal/clix"
	"skald/internal/money"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Inspect and top up a project's credit ledger",
}

var accountShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show balance, usage and billing period",
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, err := clix.ParseTenant(cmd.Flags())
		if err != nil {
			return err
		}
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}

		view, err := appInstance.LedgerService.Account(cmd.Context(), tenant)
		if err != nil {
			return fmt.Errorf("failed to load account: %w", err)
		}

		balance := "$" + view.Balance.String()
		if view.LimitExceeded {
			balance = color.RedString(balance)
		} else {
			balance = color.GreenString(balance)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Account:        %s\n", view.AccountID)
		fmt.Fprintf(out, "Credit limit:   $%s\n", view.CreditLimit)
		fmt.Fprintf(out, "Credits used:   $%s\n", view.CreditsUsed)
		if view.CreditsHeld > 0 {
			fmt.Fprintf(out, "Credits held:   $%s\n", view.CreditsHeld)
		}
		fmt.Fprintf(out, "Balance:        %s\n", balance)
		fmt.Fprintf(out, "Period:         %s to %s (resets in %s)\n",
			view.BillingPeriodStart.Format("2006-01-02"), view.BillingPeriodEnd.Format("2006-01-02"), view.TimeUntilReset)
		return nil
	},
}

var accountTopUpCmd = &cobra.Command{
	Use:   "topup [amount_usd]",
	Short: "Raise the project's credit limit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := money.ParseUSD(args[0])
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[0], err)
		}
		tenant, err := clix.ParseTenant(cmd.Flags())
		if err != nil {
			return err
		}
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}

		view, _, err := appInstance.LedgerService.TopUp(cmd.Context(), tenant, amount)
		if err != nil {
			return describeError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Credit limit is now $%s, balance $%s\n", view.CreditLimit, view.Balance)
		return nil
	},
}

var accountUsageCmd = &cobra.Command{
	Use:   "usage",
	Short: "List usage records, or totals per category with --summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, err := clix.ParseTenant(cmd.Flags())
		if err != nil {
			return err
		}
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if summary, _ := cmd.Flags().GetBool("summary"); summary {
			rows, err := appInstance.LedgerService.UsageSummary(cmd.Context(), tenant)
			if err != nil {
				return fmt.Errorf("failed to summarize usage: %w", err)
			}
			table := tablewriter.NewWriter(out)
			table.SetHeader([]string{"Category", "Count", "Tokens", "Amount (USD)"})
			for _, r := range rows {
				table.Append([]string{r.Category, strconv.FormatInt(r.Count, 10), strconv.FormatInt(r.Tokens, 10), r.Amount.String()})
			}
			table.Render()
			return nil
		}

		pagination, err := clix.ParsePagination(cmd.Flags())
		if err != nil {
			return fmt.Errorf("invalid pagination flags: %w", err)
		}
		records, err := appInstance.LedgerService.ListUsage(cmd.Context(), tenant, pagination.Limit, pagination.Offset)
		if err != nil {
			return fmt.Errorf("failed to list usage: %w", err)
		}
		if len(records) == 0 {
			fmt.Fprintln(out, "No usage recorded.")
			return nil
		}
		table := tablewriter.NewWriter(out)
		table.SetHeader([]string{"Timestamp", "Category", "Tokens", "Amount (USD)", "Description"})
		for _, r := range records {
			table.Append([]string{
				r.CreatedAt.Format("2006-01-02 15:04:05"),
				r.Category,
				strconv.Itoa(r.Tokens),
				r.Amount.String(),
				r.Description,
			})
		}
		table.Render()
		return nil
	},
}

var accountTransactionsCmd = &cobra.Command{
	Use:   "transactions",
	Short: "List ledger transactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, err := clix.ParseTenant(cmd.Flags())
		if err != nil {
			return err
		}
		pagination, err := clix.ParsePagination(cmd.Flags())
		if err != nil {
			return fmt.Errorf("invalid pagination flags: %w", err)
		}
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}

		txns, err := appInstance.LedgerService.ListTransactions(cmd.Context(), tenant, pagination.Limit, pagination.Offset)
		if err != nil {
			return fmt.Errorf("failed to list transactions: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(txns) == 0 {
			fmt.Fprintln(out, "No transactions recorded.")
			return nil
		}
		table := tablewriter.NewWriter(out)
		table.SetHeader([]string{"Timestamp", "Type", "Amount (USD)", "Status", "Description"})
		table.SetRowLine(true)
		for _, t := range txns {
			table.Append([]string{
				t.CreatedAt.Format("2006-01-02 15:04:05"),
				string(t.Type),
				t.Amount.String(),
				t.Status,
				t.Description,
			})
		}
		table.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountShowCmd, accountTopUpCmd, accountUsageCmd, accountTransactionsCmd)

	for _, c := range []*cobra.Command{accountUsageCmd, accountTransactionsCmd} {
		c.Flags().IntP("limit", "l", 20, "Number of rows to display")
		c.Flags().IntP("offset", "o", 0, "Number of rows to skip")
	}
	accountUsageCmd.Flags().Bool("summary", false, "Show totals per category for the current billing period")
}
