package main

import (
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"moodspend/internal/core"
)

func transactionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"tx"},
		Short:   "Inspect transactions",
	}

	cmd.AddCommand(transactionsListCmd())

	return cmd
}

func transactionsListCmd() *cobra.Command {
	var (
		recurringOnly bool
		recurrenceID  int64
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			result, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer closeBackend(result)

			txs, err := result.Transactions.ListAll(ctx)
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}

			txs = filterTransactions(txs, recurringOnly, recurrenceID)
			if len(txs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No transactions found.")
				return nil
			}
			return writeTransactions(cmd.OutOrStdout(), txs)
		},
	}

	cmd.Flags().BoolVar(&recurringOnly, "recurring", false, "only show transactions created from recurrences")
	cmd.Flags().Int64Var(&recurrenceID, "recurrence", 0, "only show transactions of this recurrence id")

	return cmd
}

func filterTransactions(txs []core.Transaction, recurringOnly bool, recurrenceID int64) []core.Transaction {
	return slices.DeleteFunc(txs, func(tx core.Transaction) bool {
		if recurringOnly && !tx.IsRecurring() {
			return true
		}
		if recurrenceID != 0 && (tx.RecurrenceID == nil || *tx.RecurrenceID != recurrenceID) {
			return true
		}
		return false
	})
}

func writeTransactions(out io.Writer, txs []core.Transaction) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tAMOUNT\tKIND\tEMOTION\tCATEGORY\tRECURRENCE\tNOTE")
	for _, tx := range txs {
		rec := "-"
		if tx.RecurrenceID != nil {
			rec = fmt.Sprint(*tx.RecurrenceID)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			tx.ID, core.DateOf(tx.Date), tx.Amount, tx.Kind, tx.EmotionID, tx.CategoryID, rec, tx.Note)
	}
	return w.Flush()
}
