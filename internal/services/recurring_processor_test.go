package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moodspend/internal/core"
	"moodspend/internal/ledger"
	"moodspend/internal/ledger/memory"
)

func at(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 10, 30, 0, 0, time.UTC)
}

func newRecurrence(freq core.Frequency, cents int64, start, end core.Date) core.RecurrenceDefinition {
	return core.NewRecurrence(freq, core.Money{Cents: cents}, 1, 2, "Subscription", start, end, 1, core.KindExpense)
}

type fixture struct {
	store *memory.Store
	proc  *RecurringProcessor
}

func newFixture(t *testing.T, cfg ProjectorConfig) *fixture {
	t.Helper()
	store := memory.New()
	return &fixture{
		store: store,
		proc:  NewRecurringProcessor(store.Recurrences(), store.Transactions(), cfg, nil),
	}
}

func (f *fixture) addRecurrence(t *testing.T, re core.RecurrenceDefinition) int64 {
	t.Helper()
	id, err := f.store.Recurrences().Create(context.Background(), re)
	require.NoError(t, err)
	return id
}

func (f *fixture) addTransaction(t *testing.T, tx core.Transaction) {
	t.Helper()
	_, err := f.store.Transactions().Create(context.Background(), tx)
	require.NoError(t, err)
}

// datesFor returns the sorted dates of the transactions linked to id.
func (f *fixture) datesFor(t *testing.T, id int64) []string {
	t.Helper()
	txs, err := f.store.Transactions().ListAll(context.Background())
	require.NoError(t, err)
	var out []string
	for _, tx := range txs {
		if tx.RecurrenceID != nil && *tx.RecurrenceID == id {
			out = append(out, core.DateOf(tx.Date).String())
		}
	}
	sort.Strings(out)
	return out
}

func (f *fixture) recurrence(t *testing.T, id int64) core.RecurrenceDefinition {
	t.Helper()
	all, err := f.store.Recurrences().ListAll(context.Background())
	require.NoError(t, err)
	for _, re := range all {
		if re.ID == id {
			return re
		}
	}
	t.Fatalf("recurrence %d not found", id)
	return core.RecurrenceDefinition{}
}

func linkedTx(re core.RecurrenceDefinition, id int64, date time.Time) core.Transaction {
	tx := materialize(re, core.DateOf(date))
	tx.RecurrenceID = &id
	return tx
}

func TestProcess_MonthlyCatchUpFromStart(t *testing.T) {
	f := newFixture(t, DefaultProjectorConfig())
	id := f.addRecurrence(t, newRecurrence(core.Monthly, 10000, core.NewDate(2024, 1, 1), core.Date{}))

	created, err := f.proc.ProcessRecurringTransactions(context.Background(), at(2024, 3, 15))
	require.NoError(t, err)
	assert.Equal(t, 3, created)
	assert.Equal(t, []string{"2024-01-01", "2024-02-01", "2024-03-01"}, f.datesFor(t, id))
	assert.True(t, f.recurrence(t, id).Active)

	txs, err := f.store.Transactions().ListAll(context.Background())
	require.NoError(t, err)
	for _, tx := range txs {
		assert.Equal(t, "Subscription (Recurring)", tx.Note)
		assert.Equal(t, int64(10000), tx.Amount.Cents)
		assert.Equal(t, int64(1), tx.EmotionID)
		assert.Equal(t, int64(2), tx.CategoryID)
		assert.Equal(t, core.KindExpense, tx.Kind)
	}
}

func TestProcess_NothingDueAfterLegacyMarkerRow(t *testing.T) {
	f := newFixture(t, DefaultProjectorConfig())
	re := newRecurrence(core.Monthly, 10000, core.NewDate(2024, 1, 1), core.Date{})
	f.addRecurrence(t, re)

	// Written before transactions carried a recurrence id.
	legacy := materialize(re, core.NewDate(2024, 3, 1))
	legacy.RecurrenceID = nil
	f.addTransaction(t, legacy)

	created, err := f.proc.ProcessRecurringTransactions(context.Background(), at(2024, 3, 15))
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

func TestProcess_DailyWithEndDateDeactivates(t *testing.T) {
	f := newFixture(t, DefaultProjectorConfig())
	id := f.addRecurrence(t, newRecurrence(core.Daily, 5000, core.NewDate(2024, 6, 1), core.NewDate(2024, 6, 3)))

	created, err := f.proc.ProcessRecurringTransactions(context.Background(), at(2024, 6, 10))
	require.NoError(t, err)
	assert.Equal(t, 3, created)
	assert.Equal(t, []string{"2024-06-01", "2024-06-02", "2024-06-03"}, f.datesFor(t, id))
	assert.False(t, f.recurrence(t, id).Active)

	// Inactive recurrences are skipped entirely.
	created, err = f.proc.ProcessRecurringTransactions(context.Background(), at(2024, 7, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

func TestProcess_WeeklyNextDueInFuture(t *testing.T) {
	f := newFixture(t, DefaultProjectorConfig())
	re := newRecurrence(core.Weekly, 2500, core.NewDate(2024, 1, 1), core.Date{})
	id := f.addRecurrence(t, re)
	f.addTransaction(t, linkedTx(re, id, at(2024, 1, 8)))

	created, err := f.proc.ProcessRecurringTransactions(context.Background(), at(2024, 1, 10))
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

func TestProcess_IdenticalRecurrencesDoNotShareHistory(t *testing.T) {
	f := newFixture(t, DefaultProjectorConfig())
	re := newRecurrence(core.Monthly, 10000, core.NewDate(2024, 1, 1), core.Date{})
	first := f.addRecurrence(t, re)
	second := f.addRecurrence(t, re)

	// Only the first has caught up.
	for m := 1; m <= 3; m++ {
		f.addTransaction(t, linkedTx(re, first, at(2024, m, 1)))
	}

	created, err := f.proc.ProcessRecurringTransactions(context.Background(), at(2024, 3, 15))
	require.NoError(t, err)
	assert.Equal(t, 3, created)
	assert.Equal(t, []string{"2024-01-01", "2024-02-01", "2024-03-01"}, f.datesFor(t, first))
	assert.Equal(t, []string{"2024-01-01", "2024-02-01", "2024-03-01"}, f.datesFor(t, second))
}

func TestProcess_Boundaries(t *testing.T) {
	t.Run("instance due today is materialized", func(t *testing.T) {
		f := newFixture(t, DefaultProjectorConfig())
		id := f.addRecurrence(t, newRecurrence(core.Monthly, 100, core.NewDate(2024, 1, 15), core.Date{}))

		created, err := f.proc.ProcessRecurringTransactions(context.Background(), time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Equal(t, 3, created)
		assert.Equal(t, "2024-03-15", f.datesFor(t, id)[2])
	})

	t.Run("instance on end date is materialized", func(t *testing.T) {
		f := newFixture(t, DefaultProjectorConfig())
		id := f.addRecurrence(t, newRecurrence(core.Weekly, 100, core.NewDate(2024, 1, 1), core.NewDate(2024, 1, 15)))

		created, err := f.proc.ProcessRecurringTransactions(context.Background(), at(2024, 2, 1))
		require.NoError(t, err)
		assert.Equal(t, 3, created)
		assert.Equal(t, []string{"2024-01-01", "2024-01-08", "2024-01-15"}, f.datesFor(t, id))
		assert.False(t, f.recurrence(t, id).Active)
	})

	t.Run("end date reached but next due still in future stays active", func(t *testing.T) {
		f := newFixture(t, DefaultProjectorConfig())
		id := f.addRecurrence(t, newRecurrence(core.Monthly, 100, core.NewDate(2024, 1, 1), core.NewDate(2024, 1, 20)))

		created, err := f.proc.ProcessRecurringTransactions(context.Background(), at(2024, 1, 25))
		require.NoError(t, err)
		assert.Equal(t, 1, created)
		assert.True(t, f.recurrence(t, id).Active)

		created, err = f.proc.ProcessRecurringTransactions(context.Background(), at(2024, 2, 1))
		require.NoError(t, err)
		assert.Equal(t, 0, created)
		assert.False(t, f.recurrence(t, id).Active)
	})

	t.Run("start date in future creates nothing", func(t *testing.T) {
		f := newFixture(t, DefaultProjectorConfig())
		f.addRecurrence(t, newRecurrence(core.Daily, 100, core.NewDate(2024, 5, 1), core.Date{}))

		created, err := f.proc.ProcessRecurringTransactions(context.Background(), at(2024, 4, 30))
		require.NoError(t, err)
		assert.Equal(t, 0, created)
	})
}

func TestProcess_MonthEndClamping(t *testing.T) {
	f := newFixture(t, DefaultProjectorConfig())
	id := f.addRecurrence(t, newRecurrence(core.Monthly, 100, core.NewDate(2024, 1, 31), core.Date{}))

	created, err := f.proc.ProcessRecurringTransactions(context.Background(), at(2024, 4, 30))
	require.NoError(t, err)
	assert.Equal(t, 4, created)
	// The cursor advances from the clamped date.
	assert.Equal(t, []string{"2024-01-31", "2024-02-29", "2024-03-29", "2024-04-29"}, f.datesFor(t, id))
}

func TestProcess_IdempotentRerun(t *testing.T) {
	f := newFixture(t, DefaultProjectorConfig())
	id := f.addRecurrence(t, newRecurrence(core.Daily, 100, core.NewDate(2024, 1, 1), core.Date{}))
	now := at(2024, 1, 10)

	created, err := f.proc.ProcessRecurringTransactions(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 10, created)

	created, err = f.proc.ProcessRecurringTransactions(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Len(t, f.datesFor(t, id), 10)

	// A later pass resumes from the last materialized date.
	created, err = f.proc.ProcessRecurringTransactions(context.Background(), at(2024, 1, 12))
	require.NoError(t, err)
	assert.Equal(t, 2, created)
}

func TestProcess_NeverCreatesFutureDates(t *testing.T) {
	f := newFixture(t, DefaultProjectorConfig())
	f.addRecurrence(t, newRecurrence(core.Daily, 100, core.NewDate(2023, 12, 1), core.Date{}))
	f.addRecurrence(t, newRecurrence(core.Weekly, 200, core.NewDate(2023, 6, 5), core.Date{}))
	f.addRecurrence(t, newRecurrence(core.Yearly, 300, core.NewDate(2020, 2, 29), core.Date{}))
	now := at(2024, 2, 10)

	_, err := f.proc.ProcessRecurringTransactions(context.Background(), now)
	require.NoError(t, err)

	txs, err := f.store.Transactions().ListAll(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, txs)
	for _, tx := range txs {
		assert.False(t, core.DateOf(tx.Date).After(core.DateOf(now).Time), "future date %s", tx.Date)
	}
}

func TestProcess_MaxCatchUpIsResumable(t *testing.T) {
	f := newFixture(t, ProjectorConfig{MaxCatchUp: 4})
	id := f.addRecurrence(t, newRecurrence(core.Daily, 100, core.NewDate(2024, 1, 1), core.Date{}))
	now := at(2024, 1, 10)

	var passes []int
	for i := 0; i < 4; i++ {
		created, err := f.proc.ProcessRecurringTransactions(context.Background(), now)
		require.NoError(t, err)
		passes = append(passes, created)
	}

	assert.Equal(t, []int{4, 4, 2, 0}, passes)
	assert.Len(t, f.datesFor(t, id), 10)
}

func TestProcess_ContextCanceled(t *testing.T) {
	f := newFixture(t, DefaultProjectorConfig())
	f.addRecurrence(t, newRecurrence(core.Daily, 100, core.NewDate(2024, 1, 1), core.Date{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	created, err := f.proc.ProcessRecurringTransactions(ctx, at(2024, 1, 10))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, created)
}

func TestProcess_NotInitialized(t *testing.T) {
	proc := NewRecurringProcessor(nil, nil, DefaultProjectorConfig(), nil)
	_, err := proc.ProcessRecurringTransactions(context.Background(), time.Now())
	assert.ErrorIs(t, err, errProcessorNotInitialized)
}

// failingTransactions wraps a store and fails Create after a number of calls.
type failingTransactions struct {
	ledger.TransactionStore
	failAfter int
	calls     int
	listErr   error
}

var errStoreDown = errors.New("store down")

func (f *failingTransactions) ListAll(ctx context.Context) ([]core.Transaction, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.TransactionStore.ListAll(ctx)
}

func (f *failingTransactions) Create(ctx context.Context, tx core.Transaction) (int64, error) {
	f.calls++
	if f.calls > f.failAfter {
		return 0, errStoreDown
	}
	return f.TransactionStore.Create(ctx, tx)
}

type failingRecurrences struct {
	ledger.RecurrenceStore
	listErr   error
	updateErr error
}

func (f *failingRecurrences) ListActive(ctx context.Context) ([]core.RecurrenceDefinition, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.RecurrenceStore.ListActive(ctx)
}

func (f *failingRecurrences) Update(ctx context.Context, id int64, u core.RecurrenceUpdate) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	return f.RecurrenceStore.Update(ctx, id, u)
}

func TestProcess_StoreErrorsAbortAndResume(t *testing.T) {
	t.Run("create failure", func(t *testing.T) {
		store := memory.New()
		id, err := store.Recurrences().Create(context.Background(),
			newRecurrence(core.Daily, 100, core.NewDate(2024, 1, 1), core.Date{}))
		require.NoError(t, err)

		txs := &failingTransactions{TransactionStore: store.Transactions(), failAfter: 3}
		proc := NewRecurringProcessor(store.Recurrences(), txs, DefaultProjectorConfig(), nil)

		created, err := proc.ProcessRecurringTransactions(context.Background(), at(2024, 1, 5))
		assert.ErrorIs(t, err, errStoreDown)
		assert.Equal(t, 3, created)

		// Recovered store: the next pass picks up the remaining two.
		txs.failAfter = 100
		created, err = proc.ProcessRecurringTransactions(context.Background(), at(2024, 1, 5))
		require.NoError(t, err)
		assert.Equal(t, 2, created)

		f := &fixture{store: store}
		assert.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"}, f.datesFor(t, id))
	})

	t.Run("list active failure", func(t *testing.T) {
		store := memory.New()
		recs := &failingRecurrences{RecurrenceStore: store.Recurrences(), listErr: errStoreDown}
		proc := NewRecurringProcessor(recs, store.Transactions(), DefaultProjectorConfig(), nil)

		_, err := proc.ProcessRecurringTransactions(context.Background(), at(2024, 1, 5))
		assert.ErrorIs(t, err, errStoreDown)
	})

	t.Run("list transactions failure", func(t *testing.T) {
		store := memory.New()
		_, err := store.Recurrences().Create(context.Background(),
			newRecurrence(core.Daily, 100, core.NewDate(2024, 1, 1), core.Date{}))
		require.NoError(t, err)
		txs := &failingTransactions{TransactionStore: store.Transactions(), failAfter: 100, listErr: errStoreDown}
		proc := NewRecurringProcessor(store.Recurrences(), txs, DefaultProjectorConfig(), nil)

		_, err = proc.ProcessRecurringTransactions(context.Background(), at(2024, 1, 5))
		assert.ErrorIs(t, err, errStoreDown)
	})

	t.Run("deactivate failure", func(t *testing.T) {
		store := memory.New()
		_, err := store.Recurrences().Create(context.Background(),
			newRecurrence(core.Daily, 100, core.NewDate(2024, 1, 1), core.NewDate(2024, 1, 2)))
		require.NoError(t, err)
		recs := &failingRecurrences{RecurrenceStore: store.Recurrences(), updateErr: errStoreDown}
		proc := NewRecurringProcessor(recs, store.Transactions(), DefaultProjectorConfig(), nil)

		created, err := proc.ProcessRecurringTransactions(context.Background(), at(2024, 1, 5))
		assert.ErrorIs(t, err, errStoreDown)
		assert.Equal(t, 2, created)
	})
}

// blockingRecurrences holds ListActive open until released.
type blockingRecurrences struct {
	ledger.RecurrenceStore
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (b *blockingRecurrences) ListActive(ctx context.Context) ([]core.RecurrenceDefinition, error) {
	if b.calls.Add(1) == 1 {
		close(b.started)
	}
	<-b.release
	return b.RecurrenceStore.ListActive(ctx)
}

func TestProcess_OverlappingCallsCollapse(t *testing.T) {
	store := memory.New()
	_, err := store.Recurrences().Create(context.Background(),
		newRecurrence(core.Daily, 100, core.NewDate(2024, 1, 1), core.Date{}))
	require.NoError(t, err)

	recs := &blockingRecurrences{
		RecurrenceStore: store.Recurrences(),
		started:         make(chan struct{}),
		release:         make(chan struct{}),
	}
	proc := NewRecurringProcessor(recs, store.Transactions(), DefaultProjectorConfig(), nil)

	const callers = 3
	results := make([]int, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := proc.ProcessRecurringTransactions(context.Background(), at(2024, 1, 5))
			assert.NoError(t, err)
			results[i] = n
		}()
		if i == 0 {
			<-recs.started
		}
	}

	// Give the joiners time to enter the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(recs.release)
	wg.Wait()

	assert.Equal(t, int32(1), recs.calls.Load())
	assert.Equal(t, []int{5, 5, 5}, results)

	txs, err := store.Transactions().ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, txs, 5)
}

func TestProcess_IncrementalEqualsSinglePass(t *testing.T) {
	definitions := []core.RecurrenceDefinition{
		newRecurrence(core.Daily, 100, core.NewDate(2024, 1, 28), core.NewDate(2024, 2, 3)),
		newRecurrence(core.Weekly, 200, core.NewDate(2024, 1, 1), core.Date{}),
		newRecurrence(core.Monthly, 300, core.NewDate(2023, 11, 30), core.Date{}),
	}
	final := at(2024, 3, 31)

	single := newFixture(t, DefaultProjectorConfig())
	incremental := newFixture(t, DefaultProjectorConfig())
	var ids []int64
	for _, re := range definitions {
		ids = append(ids, single.addRecurrence(t, re))
		incremental.addRecurrence(t, re)
	}

	_, err := single.proc.ProcessRecurringTransactions(context.Background(), final)
	require.NoError(t, err)

	for now := at(2023, 12, 15); !now.After(final); now = now.AddDate(0, 0, 9) {
		_, err := incremental.proc.ProcessRecurringTransactions(context.Background(), now)
		require.NoError(t, err)
	}
	_, err = incremental.proc.ProcessRecurringTransactions(context.Background(), final)
	require.NoError(t, err)

	for _, id := range ids {
		assert.Equal(t, single.datesFor(t, id), incremental.datesFor(t, id), "recurrence %d", id)
		assert.Equal(t, single.recurrence(t, id).Active, incremental.recurrence(t, id).Active)
	}
}
