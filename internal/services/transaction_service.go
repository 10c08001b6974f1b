package services

import (
	"context"
	"fmt"

	"moodspend/internal/core"
	"moodspend/internal/ledger"
	"moodspend/internal/log"
)

// EventPublisher announces transactions after they are persisted.
// *amqp.Client satisfies it.
type EventPublisher interface {
	PublishTransactionCreated(ctx context.Context, tx core.Transaction) error
}

// TransactionService saves transactions and publishes a transaction.created
// event for each one. It is itself a ledger.TransactionStore so the
// projector can write through it.
type TransactionService struct {
	store     ledger.TransactionStore
	publisher EventPublisher
	logger    *log.Logger
}

var _ ledger.TransactionStore = (*TransactionService)(nil)

// NewTransactionService wraps store. A nil publisher disables events.
func NewTransactionService(store ledger.TransactionStore, publisher EventPublisher, logger *log.Logger) *TransactionService {
	if logger == nil {
		logger = log.Default(log.ComponentLedger)
	}
	return &TransactionService{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *TransactionService) ListAll(ctx context.Context) ([]core.Transaction, error) {
	return s.store.ListAll(ctx)
}

// Create saves tx and publishes its event. A publish failure is logged only,
// since the transaction is already stored.
func (s *TransactionService) Create(ctx context.Context, tx core.Transaction) (int64, error) {
	id, err := s.store.Create(ctx, tx)
	if err != nil {
		return 0, fmt.Errorf("save transaction: %w", err)
	}
	tx.ID = id

	if err := s.publishCreated(ctx, tx); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish transaction event",
			log.NewFields().
				WithOperation(log.OpPublish).
				WithError(err).
				ToSlice()...)
	}

	return id, nil
}

func (s *TransactionService) publishCreated(ctx context.Context, tx core.Transaction) error {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "AMQP client not available, skipping transaction event",
			log.FieldTransaction, tx.ID)
		return nil
	}
	return s.publisher.PublishTransactionCreated(ctx, tx)
}
