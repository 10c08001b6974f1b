// Package worker runs the recurring processor on a schedule and on demand.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"moodspend/internal/amqp"
	"moodspend/internal/log"
)

// Processor runs one catch-up pass. *services.RecurringProcessor satisfies it.
type Processor interface {
	ProcessRecurringTransactions(ctx context.Context, now time.Time) (int, error)
}

// TriggerSource delivers "process now" requests. *amqp.Client satisfies it.
type TriggerSource interface {
	ConsumeProcessTriggers(ctx context.Context, handler func(context.Context, *amqp.ProcessTriggerMessage) error) error
}

const defaultRetryDelay = 5 * time.Second

// RecurringWorker runs a pass at startup, on every tick, and for every
// trigger. All of them go through the same processor, which collapses
// overlapping passes.
type RecurringWorker struct {
	processor  Processor
	triggers   TriggerSource // nil disables remote triggers
	interval   time.Duration
	retryDelay time.Duration
	logger     *log.Logger
	now        func() time.Time
}

func NewRecurringWorker(processor Processor, triggers TriggerSource, interval time.Duration, logger *log.Logger) *RecurringWorker {
	if logger == nil {
		logger = log.Default(log.ComponentWorker)
	}
	return &RecurringWorker{
		processor:  processor,
		triggers:   triggers,
		interval:   interval,
		retryDelay: defaultRetryDelay,
		logger:     logger,
		now:        time.Now,
	}
}

// Run blocks until ctx is done and every loop has returned.
func (w *RecurringWorker) Run(ctx context.Context) {
	// Catch up on anything missed while the worker was down.
	w.runPass(ctx, "startup")

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.tickLoop(ctx)
	}()

	if w.triggers != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.consumeLoop(ctx)
		}()
	}

	wg.Wait()
}

func (w *RecurringWorker) runPass(ctx context.Context, trigger string) {
	count, err := w.processor.ProcessRecurringTransactions(ctx, w.now())
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			w.logger.ErrorContext(ctx, "Recurring processing failed",
				"trigger", trigger,
				log.FieldError, err)
		}
		return
	}
	w.logger.InfoContext(ctx, "Recurring processing complete",
		"trigger", trigger,
		log.FieldCreated, count)
}

func (w *RecurringWorker) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runPass(ctx, "ticker")
		}
	}
}

// consumeLoop restarts the trigger consumer until ctx is done.
func (w *RecurringWorker) consumeLoop(ctx context.Context) {
	for {
		err := w.triggers.ConsumeProcessTriggers(ctx, func(ctx context.Context, msg *amqp.ProcessTriggerMessage) error {
			w.logger.InfoContext(ctx, "Process trigger received",
				"trigger_id", msg.ID,
				"requested_by", msg.RequestedBy)
			w.runPass(ctx, "amqp")
			return nil
		})
		if ctx.Err() != nil {
			return
		}
		w.logger.WarnContext(ctx, "Trigger consumer stopped, restarting",
			log.FieldError, err,
			"retry_in", w.retryDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.retryDelay):
		}
	}
}
