package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"moodspend/internal/core"
	"moodspend/internal/ledger"
	"moodspend/internal/log"
)

// ProjectorConfig tunes a RecurringProcessor.
type ProjectorConfig struct {
	// MaxCatchUp bounds how many instances one recurrence may materialize in
	// a single pass. Zero means unlimited. Remaining instances are picked up
	// by the next pass.
	MaxCatchUp int
}

func DefaultProjectorConfig() ProjectorConfig {
	return ProjectorConfig{MaxCatchUp: 0}
}

// RecurringProcessor materializes the due instances of every active
// recurrence, catching up on periods missed while the program was not running.
type RecurringProcessor struct {
	recurrences  ledger.RecurrenceStore
	transactions ledger.TransactionStore
	cfg          ProjectorConfig
	logger       *log.Logger
	group        singleflight.Group
}

// NewRecurringProcessor creates a processor over the given stores. A nil
// logger falls back to the default one.
func NewRecurringProcessor(recurrences ledger.RecurrenceStore, transactions ledger.TransactionStore, cfg ProjectorConfig, logger *log.Logger) *RecurringProcessor {
	if logger == nil {
		logger = log.Default(log.ComponentRecurring)
	}
	return &RecurringProcessor{
		recurrences:  recurrences,
		transactions: transactions,
		cfg:          cfg,
		logger:       logger,
	}
}

var errProcessorNotInitialized = errors.New("processor not properly initialized")

// ProcessRecurringTransactions creates every transaction instance due as of
// now and returns how many were created. Calls that overlap a running pass
// wait for it and receive its result.
//
// A store error aborts the pass. Recurrences handled before the failure stay
// caught up, and the next call resumes where this one stopped.
func (p *RecurringProcessor) ProcessRecurringTransactions(ctx context.Context, now time.Time) (int, error) {
	if p == nil || p.recurrences == nil || p.transactions == nil {
		return 0, errProcessorNotInitialized
	}

	v, err, shared := p.group.Do("process", func() (any, error) {
		return p.process(ctx, now)
	})
	if shared {
		p.logger.DebugContext(ctx, "Joined in-flight recurring pass")
	}
	created, _ := v.(int)
	return created, err
}

func (p *RecurringProcessor) process(ctx context.Context, now time.Time) (int, error) {
	start := time.Now()
	today := core.DateOf(now)
	logger := p.logger.With(log.FieldRunID, uuid.NewString())

	active, err := p.recurrences.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active recurrences: %w", err)
	}
	if len(active) == 0 {
		logger.DebugContext(ctx, "No active recurrences")
		return 0, nil
	}

	history, err := p.transactions.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list transactions: %w", err)
	}

	logger.InfoContext(ctx, "Processing recurring transactions",
		"total_active", len(active),
		"today", today.String())

	total := 0
	for _, re := range active {
		n, err := p.catchUp(ctx, logger, re, history, today)
		total += n
		if err != nil {
			logger.ErrorContext(ctx, "Recurring pass aborted",
				log.NewFields().
					WithOperation(log.OpProcess).
					WithRecurrence(re).
					WithError(err).
					ToSlice()...)
			return total, fmt.Errorf("recurrence %d: %w", re.ID, err)
		}
	}

	logger.InfoContext(ctx, "Recurring pass complete",
		log.FieldCreated, total,
		log.FieldDurationMs, time.Since(start).Milliseconds())

	return total, nil
}

// catchUp materializes the due instances of one recurrence and deactivates it
// once the cursor passes its end date.
func (p *RecurringProcessor) catchUp(ctx context.Context, logger *log.Logger, re core.RecurrenceDefinition, history []core.Transaction, today core.Date) (int, error) {
	stepper, err := GetPeriodStepper(re.Frequency)
	if err != nil {
		return 0, err
	}

	next := re.StartDate
	if last, ok := lastMaterializedDate(re, history); ok {
		next = stepper.Next(last)
	}

	created := 0
	for !next.After(today.Time) {
		if re.HasEnded(next) {
			if err := p.recurrences.Update(ctx, re.ID, core.Deactivate()); err != nil {
				return created, fmt.Errorf("deactivate: %w", err)
			}
			logger.InfoContext(ctx, "Recurrence ended, deactivated",
				log.NewFields().
					WithOperation(log.OpDeactivate).
					WithRecurrence(re).
					WithDueDate(next).
					ToSlice()...)
			break
		}

		if p.cfg.MaxCatchUp > 0 && created >= p.cfg.MaxCatchUp {
			logger.WarnContext(ctx, "Catch-up limit reached, deferring remaining instances",
				log.FieldRecurrenceID, re.ID,
				log.FieldDueDate, next.String(),
				"max_catch_up", p.cfg.MaxCatchUp)
			break
		}

		if err := ctx.Err(); err != nil {
			return created, err
		}

		id, err := p.transactions.Create(ctx, materialize(re, next))
		if err != nil {
			return created, fmt.Errorf("materialize %s: %w", next, err)
		}
		created++

		logger.DebugContext(ctx, "Materialized recurring transaction",
			log.FieldRecurrenceID, re.ID,
			log.FieldTransaction, id,
			log.FieldDueDate, next.String())

		next = stepper.Next(next)
	}

	return created, nil
}

func materialize(re core.RecurrenceDefinition, due core.Date) core.Transaction {
	id := re.ID
	return core.Transaction{
		Amount:       re.Amount,
		Date:         due.Time,
		EmotionID:    re.EmotionID,
		CategoryID:   re.CategoryID,
		Note:         re.Note + core.RecurrenceMarker,
		OwnerID:      re.OwnerID,
		Kind:         re.Kind,
		RecurrenceID: &id,
	}
}

// lastMaterializedDate returns the latest date among the transactions that
// belong to re, and false when there are none.
func lastMaterializedDate(re core.RecurrenceDefinition, history []core.Transaction) (core.Date, bool) {
	var (
		last  core.Date
		found bool
	)
	for _, tx := range history {
		if !belongsTo(tx, re) {
			continue
		}
		d := core.DateOf(tx.Date)
		if !found || d.After(last.Time) {
			last = d
			found = true
		}
	}
	return last, found
}

// belongsTo prefers the explicit recurrence link. Rows written before the
// link existed carry no id and are matched on their fields plus the marker.
func belongsTo(tx core.Transaction, re core.RecurrenceDefinition) bool {
	if tx.RecurrenceID != nil {
		return *tx.RecurrenceID == re.ID
	}
	return tx.Amount == re.Amount &&
		tx.EmotionID == re.EmotionID &&
		tx.CategoryID == re.CategoryID &&
		tx.Kind == re.Kind &&
		strings.Contains(tx.Note, core.RecurrenceMarker)
}
