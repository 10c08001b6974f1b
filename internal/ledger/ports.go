// Package ledger declares the storage ports the recurrence projector and the
// binaries depend on. Adapters live in ledger/memory and internal/storage.
package ledger

import (
	"context"
	"errors"

	"moodspend/internal/core"
)

// ErrNotFound is returned when an id does not match any stored row.
var ErrNotFound = errors.New("not found")

// Ports for outbound adapters.
type (
	RecurrenceStore interface {
		// ListActive returns every recurrence whose active flag is set.
		ListActive(ctx context.Context) ([]core.RecurrenceDefinition, error)
		// ListAll returns every recurrence, newest start date first.
		ListAll(ctx context.Context) ([]core.RecurrenceDefinition, error)
		Create(ctx context.Context, re core.RecurrenceDefinition) (id int64, err error)
		// Update applies the set fields of u. An empty update is a no-op.
		Update(ctx context.Context, id int64, u core.RecurrenceUpdate) error
		Delete(ctx context.Context, id int64) error
	}

	TransactionStore interface {
		// ListAll returns every transaction, unfiltered.
		ListAll(ctx context.Context) ([]core.Transaction, error)
		Create(ctx context.Context, tx core.Transaction) (id int64, err error)
	}
)
