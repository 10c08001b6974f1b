package backend

import (
	"context"
	"errors"
	"fmt"

	"moodspend/internal/amqp"
	"moodspend/internal/ledger"
	"moodspend/internal/ledger/memory"
	"moodspend/internal/log"
	"moodspend/internal/services"
	"moodspend/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Default(log.ComponentBackend)
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return f.assemble(ctx, config, repo.Recurrences(), repo.Transactions(), repo.Close), nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store := memory.New()

	f.logger.InfoContext(ctx, "Initialized memory backend")

	return f.assemble(ctx, config, store.Recurrences(), store.Transactions(), nil), nil
}

// assemble connects AMQP when configured and wraps the transaction store in
// the event-publishing service.
func (f *DefaultFactory) assemble(ctx context.Context, config Config, recs ledger.RecurrenceStore, txs ledger.TransactionStore, closeStore CleanupFunc) *BackendResult {
	client := f.connectAMQP(ctx, config)

	var publisher services.EventPublisher
	if client != nil {
		publisher = client
	}

	return &BackendResult{
		Recurrences:  recs,
		Transactions: services.NewTransactionService(txs, publisher, f.logger.WithComponent(log.ComponentLedger)),
		AMQP:         client,
		Cleanup: func() error {
			var errs []error
			if client != nil {
				if err := client.Close(); err != nil {
					errs = append(errs, fmt.Errorf("amqp: %w", err))
				}
			}
			if closeStore != nil {
				if err := closeStore(); err != nil {
					errs = append(errs, fmt.Errorf("storage: %w", err))
				}
			}
			return errors.Join(errs...)
		},
	}
}

func (f *DefaultFactory) connectAMQP(ctx context.Context, config Config) *amqp.Client {
	if config.AMQPURL == "" {
		return nil
	}

	client, err := amqp.NewClientWithRetry(ctx, config.AMQPURL, config.AMQPExchange, config.AMQPQueue,
		config.AMQPEventsQueue, config.AMQPConnectAttempts)
	if err != nil {
		f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without events", "error", err)
		return nil
	}

	f.logger.InfoContext(ctx, "Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue,
		"events_queue", config.AMQPEventsQueue)
	return client
}
