package backend

import (
	"context"

	"moodspend/internal/amqp"
	"moodspend/internal/ledger"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds the stores the binaries work with and the cleanup that
// releases them.
type BackendResult struct {
	Recurrences ledger.RecurrenceStore
	// Transactions publishes a transaction.created event per create when
	// AMQP is enabled.
	Transactions ledger.TransactionStore
	// AMQP is nil when AMQP is disabled or unreachable.
	AMQP    *amqp.Client
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// AMQP, shared by both backends. Empty URL disables it.
	AMQPURL         string
	AMQPExchange    string
	AMQPQueue       string
	AMQPEventsQueue string
	// Values below one mean a single dial.
	AMQPConnectAttempts int
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
