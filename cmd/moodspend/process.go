package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"moodspend/internal/cli"
	"moodspend/internal/core"
	"moodspend/internal/log"
	"moodspend/internal/services"
)

func processCmd() *cobra.Command {
	var asOf string

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Materialize every recurring transaction due as of now",
		Long: `Run one catch-up pass in this process. Every active recurrence gets the
instances due up to today, and recurrences past their end date are deactivated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := time.Now()
			if asOf != "" {
				d, err := core.ParseDate(asOf)
				if err != nil {
					return err
				}
				now = d.Time
			}
			return runProcess(cmd, now)
		},
	}

	cmd.Flags().StringVar(&asOf, "as-of", "", "process as if today were this date (YYYY-MM-DD)")

	return cmd
}

func runProcess(cmd *cobra.Command, now time.Time) error {
	ctx := cmd.Context()

	result, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer closeBackend(result)

	processor := services.NewRecurringProcessor(
		result.Recurrences,
		result.Transactions,
		cli.ProjectorConfig(appConfig),
		logger.WithComponent(log.ComponentRecurring),
	)

	created, err := processor.ProcessRecurringTransactions(ctx, now)
	if err != nil {
		return fmt.Errorf("processing recurring transactions failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created %d recurring transaction(s)\n", created)
	return nil
}
