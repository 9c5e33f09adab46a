package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garyjia/quotation-workflow/internal/domain/event"
)

type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) ErrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

func stageChanged(docID int64) *event.Event {
	return event.NewEvent(event.TypeStageChanged, docID, map[string]interface{}{"new_stage": "approved"})
}

func TestDispatch_RunsHandlersInOrder(t *testing.T) {
	d := NewDispatcher()
	var order []string

	d.SubscribeNamed(event.TypeStageChanged, "first", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "first")
		return nil
	})
	d.SubscribeNamed(event.TypeStageChanged, "second", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "second")
		return nil
	})

	if err := d.Dispatch(context.Background(), stageChanged(42)); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("order = %v, want [first second]", order)
	}
}

func TestDispatch_OnlyMatchingType(t *testing.T) {
	d := NewDispatcher()
	called := false
	d.Subscribe(event.TypeRevisionOpened, func(ctx context.Context, evt *event.Event) error {
		called = true
		return nil
	})

	if err := d.Dispatch(context.Background(), stageChanged(1)); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if called {
		t.Error("handler for another event type was called")
	}
}

func TestDispatch_ContinuesAfterError(t *testing.T) {
	logger := &mockLogger{}
	d := NewDispatcher(WithLogger(logger))
	boom := errors.New("boom")
	secondCalled := false

	d.SubscribeNamed(event.TypeStageChanged, "failing", func(ctx context.Context, evt *event.Event) error {
		return boom
	})
	d.SubscribeNamed(event.TypeStageChanged, "ok", func(ctx context.Context, evt *event.Event) error {
		secondCalled = true
		return nil
	})

	err := d.Dispatch(context.Background(), stageChanged(1))
	if !errors.Is(err, boom) {
		t.Errorf("Dispatch() error = %v, want wrapped boom", err)
	}
	if !secondCalled {
		t.Error("second handler should still run")
	}
	if logger.ErrorCount() != 1 {
		t.Errorf("ErrorCount() = %d, want 1", logger.ErrorCount())
	}
}

func TestDispatch_RecoversPanic(t *testing.T) {
	d := NewDispatcher()
	d.Subscribe(event.TypeStageChanged, func(ctx context.Context, evt *event.Event) error {
		panic("handler exploded")
	})

	if err := d.Dispatch(context.Background(), stageChanged(1)); err == nil {
		t.Error("Dispatch() should convert a panic into an error")
	}
}

func TestDispatchAsync_DetachedFromCallerCancel(t *testing.T) {
	d := NewDispatcher()
	var sawCancel atomic.Bool
	var calls atomic.Int32

	d.Subscribe(event.TypeStageChanged, func(ctx context.Context, evt *event.Event) error {
		time.Sleep(10 * time.Millisecond)
		if ctx.Err() != nil {
			sawCancel.Store(true)
		}
		calls.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	d.DispatchAsync(ctx, stageChanged(1))
	cancel()

	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if sawCancel.Load() {
		t.Error("async handler observed the caller's cancellation")
	}
}

func TestClose_RejectsFurtherDispatch(t *testing.T) {
	logger := &mockLogger{}
	d := NewDispatcher(WithLogger(logger))

	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := d.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close() error = %v, want ErrClosed", err)
	}
	if err := d.Dispatch(context.Background(), stageChanged(1)); !errors.Is(err, ErrClosed) {
		t.Errorf("Dispatch() error = %v, want ErrClosed", err)
	}

	d.DispatchAsync(context.Background(), stageChanged(1))
	if logger.ErrorCount() != 1 {
		t.Errorf("ErrorCount() = %d, want 1", logger.ErrorCount())
	}
}

func TestUnsubscribeAndListHandlers(t *testing.T) {
	d := NewDispatcher()
	noop := func(ctx context.Context, evt *event.Event) error { return nil }

	d.SubscribeNamed(event.TypeStageChanged, "audit", noop)
	d.Subscribe(event.TypeStageChanged, noop)

	handlers := d.ListHandlers(event.TypeStageChanged)
	if len(handlers) != 2 {
		t.Fatalf("len(ListHandlers()) = %d, want 2", len(handlers))
	}
	if handlers[1].Name != "workflow.stage_changed#1" {
		t.Errorf("generated name = %q", handlers[1].Name)
	}
	for _, h := range handlers {
		if h.Handler != nil {
			t.Error("ListHandlers() should not expose handler functions")
		}
	}

	d.Unsubscribe(event.TypeStageChanged, "audit")
	if got := d.ListHandlers(event.TypeStageChanged); len(got) != 1 {
		t.Errorf("len(ListHandlers()) after Unsubscribe = %d, want 1", len(got))
	}
}
