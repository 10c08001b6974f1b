package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"moodspend/internal/amqp"
)

type countingProcessor struct {
	calls atomic.Int32
	err   error
}

func (p *countingProcessor) ProcessRecurringTransactions(context.Context, time.Time) (int, error) {
	p.calls.Add(1)
	return 1, p.err
}

// fakeTriggers delivers its messages once, then fails every later call.
type fakeTriggers struct {
	mu       sync.Mutex
	messages []*amqp.ProcessTriggerMessage
	calls    int
}

func (f *fakeTriggers) ConsumeProcessTriggers(ctx context.Context, handler func(context.Context, *amqp.ProcessTriggerMessage) error) error {
	f.mu.Lock()
	f.calls++
	first := f.calls == 1
	f.mu.Unlock()

	if !first {
		return errors.New("connection closed")
	}
	for _, msg := range f.messages {
		if err := handler(ctx, msg); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func runWorker(t *testing.T, w *RecurringWorker) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	return func() {
		stop()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("worker did not stop")
		}
	}
}

func TestRecurringWorker_StartupAndTicks(t *testing.T) {
	proc := &countingProcessor{}
	w := NewRecurringWorker(proc, nil, 10*time.Millisecond, nil)

	stop := runWorker(t, w)
	waitFor(t, func() bool { return proc.calls.Load() >= 3 })
	stop()
}

func TestRecurringWorker_Triggers(t *testing.T) {
	proc := &countingProcessor{}
	triggers := &fakeTriggers{messages: []*amqp.ProcessTriggerMessage{
		amqp.NewProcessTriggerMessage("test"),
		amqp.NewProcessTriggerMessage("test"),
	}}
	w := NewRecurringWorker(proc, triggers, time.Hour, nil)

	stop := runWorker(t, w)
	// Startup plus one pass per trigger.
	waitFor(t, func() bool { return proc.calls.Load() == 3 })
	stop()
}

func TestRecurringWorker_RestartsConsumer(t *testing.T) {
	proc := &countingProcessor{}
	triggers := &fakeTriggers{}
	w := NewRecurringWorker(proc, triggers, time.Hour, nil)
	w.retryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// Skip the blocking first consumer so every call fails.
	triggers.calls = 1

	done := make(chan struct{})
	go func() {
		w.consumeLoop(ctx)
		close(done)
	}()

	waitFor(t, func() bool {
		triggers.mu.Lock()
		defer triggers.mu.Unlock()
		return triggers.calls >= 3
	})
	cancel()
	<-done
}

func TestRecurringWorker_PassErrorsDoNotStopLoop(t *testing.T) {
	proc := &countingProcessor{err: errors.New("store down")}
	w := NewRecurringWorker(proc, nil, 10*time.Millisecond, nil)

	stop := runWorker(t, w)
	waitFor(t, func() bool { return proc.calls.Load() >= 2 })
	stop()
}
