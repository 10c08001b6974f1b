package main

import (
	"context"
	"time"

	"moodspend/internal/cli"
	"moodspend/internal/log"
	"moodspend/internal/services"
	"moodspend/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentWorker)
	logger.Info("Starting recurring-worker", log.FieldOperation, log.OpStartup)

	result := cli.InitBackend(context.Background(), logger, cfg)

	processor := services.NewRecurringProcessor(
		result.Recurrences,
		result.Transactions,
		cli.ProjectorConfig(cfg),
		logger.WithComponent(log.ComponentRecurring),
	)

	var triggers worker.TriggerSource
	if result.AMQP != nil {
		triggers = result.AMQP
	}

	logger.Info("Recurring processor configured",
		"interval", cfg.RecurringProcessorInterval,
		"backend", cfg.DataBackend,
		"max_catch_up", cfg.RecurringMaxCatchUp,
		"amqp_enabled", triggers != nil)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	worker.NewRecurringWorker(processor, triggers, cfg.RecurringProcessorInterval, logger).Run(ctx)
	cli.WaitForShutdown(ctx, done)

	// Stores close only after every pass has returned.
	if err := result.Cleanup(); err != nil {
		logger.Error("Cleanup failed", log.FieldError, err)
	}
	logger.Info("Recurring-worker stopped")
}
