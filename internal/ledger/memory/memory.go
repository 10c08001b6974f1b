package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"moodspend/internal/core"
	"moodspend/internal/ledger"
)

// Store keeps recurrences and transactions in process memory. It implements
// both ledger.RecurrenceStore and ledger.TransactionStore through the views
// returned by Recurrences and Transactions.
type Store struct {
	mu          sync.Mutex
	recurrences []core.RecurrenceDefinition
	txs         []core.Transaction
	nextRecID   int64
	nextTxID    int64
}

func New() *Store {
	return &Store{nextRecID: 1, nextTxID: 1}
}

// Recurrences returns the recurrence view of the store.
func (s *Store) Recurrences() *RecurrenceStore { return &RecurrenceStore{s: s} }

// Transactions returns the transaction view of the store.
func (s *Store) Transactions() *TransactionStore { return &TransactionStore{s: s} }

type RecurrenceStore struct{ s *Store }

var _ ledger.RecurrenceStore = (*RecurrenceStore)(nil)

func (r *RecurrenceStore) ListActive(_ context.Context) ([]core.RecurrenceDefinition, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]core.RecurrenceDefinition, 0, len(r.s.recurrences))
	for _, re := range r.s.recurrences {
		if re.Active {
			out = append(out, re)
		}
	}
	return out, nil
}

func (r *RecurrenceStore) ListAll(_ context.Context) ([]core.RecurrenceDefinition, error) {
	r.s.mu.Lock()
	out := slices.Clone(r.s.recurrences)
	r.s.mu.Unlock()

	slices.SortStableFunc(out, func(a, b core.RecurrenceDefinition) int {
		return b.StartDate.Compare(a.StartDate.Time)
	})
	return out, nil
}

// Create validates and stores re, returning its new id.
func (r *RecurrenceStore) Create(_ context.Context, re core.RecurrenceDefinition) (int64, error) {
	if err := re.Validate(); err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	re.ID = r.s.nextRecID
	r.s.nextRecID++
	r.s.recurrences = append(r.s.recurrences, re)
	return re.ID, nil
}

func (r *RecurrenceStore) Update(_ context.Context, id int64, u core.RecurrenceUpdate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := r.s.indexOfRecurrence(id)
	if i < 0 {
		return fmt.Errorf("recurrence %d: %w", id, ledger.ErrNotFound)
	}
	if u.IsEmpty() {
		return nil
	}
	updated := u.Apply(r.s.recurrences[i])
	if err := updated.Validate(); err != nil {
		return err
	}
	r.s.recurrences[i] = updated
	return nil
}

func (r *RecurrenceStore) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := r.s.indexOfRecurrence(id)
	if i < 0 {
		return fmt.Errorf("recurrence %d: %w", id, ledger.ErrNotFound)
	}
	r.s.recurrences = slices.Delete(r.s.recurrences, i, i+1)
	return nil
}

type TransactionStore struct{ s *Store }

var _ ledger.TransactionStore = (*TransactionStore)(nil)

func (t *TransactionStore) ListAll(_ context.Context) ([]core.Transaction, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	out := make([]core.Transaction, len(t.s.txs))
	for i, tx := range t.s.txs {
		tx.Attachments = slices.Clone(tx.Attachments)
		out[i] = tx
	}
	return out, nil
}

// Create validates and stores tx, returning its new id.
func (t *TransactionStore) Create(_ context.Context, tx core.Transaction) (int64, error) {
	if err := tx.Validate(); err != nil {
		return 0, err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	tx.ID = t.s.nextTxID
	t.s.nextTxID++
	tx.Attachments = slices.Clone(tx.Attachments)
	t.s.txs = append(t.s.txs, tx)
	return tx.ID, nil
}

func (s *Store) indexOfRecurrence(id int64) int {
	return slices.IndexFunc(s.recurrences, func(re core.RecurrenceDefinition) bool {
		return re.ID == id
	})
}
