package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"moodspend/internal/cli"
	"moodspend/internal/config"
	"moodspend/internal/log"
)

var (
	appConfig *config.Config
	logger    *log.Logger
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "moodspend",
		Short: "Mood and spending tracker",
		Long: `moodspend records transactions together with the emotion behind them.

Recurring transactions are materialized by the recurring-worker; this tool
manages their definitions and can run or request a pass on demand.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}

	root.AddCommand(processCmd())
	root.AddCommand(triggerCmd())
	root.AddCommand(recurringCmd())
	root.AddCommand(transactionsCmd())

	return root
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	err := newRootCmd().ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger = cli.SetupLogger(cfg, log.ComponentCLI)
	if err := cfg.Validate(); err != nil {
		return err
	}
	appConfig = cfg
	return nil
}
