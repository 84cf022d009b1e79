package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects events delivered on worker goroutines.
type recorder struct {
	mu     sync.Mutex
	events []any
}

func (r *recorder) handle(event any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) snapshot() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]any, len(r.events))
	copy(out, r.events)
	return out
}

func TestEventBus_Subscribe_Publish(t *testing.T) {
	bus := NewEventBus()

	first := &recorder{}
	second := &recorder{}
	bus.Subscribe("test.event", first.handle)
	bus.Subscribe("test.event", second.handle)

	testEvent := ContextTrimmedEvent{
		AllocationID:    "alloc-1",
		EstimatedTokens: 120,
		MaxTokens:       100,
	}
	bus.Publish("test.event", testEvent)
	bus.Shutdown()

	require.Len(t, first.snapshot(), 1)
	require.Len(t, second.snapshot(), 1)
	assert.Equal(t, testEvent, first.snapshot()[0])
	assert.Equal(t, testEvent, second.snapshot()[0])
}

func TestEventBus_MultipleEventTypes(t *testing.T) {
	bus := NewEventBus()

	typeA := &recorder{}
	typeB := &recorder{}
	bus.Subscribe("type.a", typeA.handle)
	bus.Subscribe("type.b", typeB.handle)

	bus.Publish("type.a", "event-a")
	bus.Publish("type.b", "event-b")
	bus.Shutdown()

	assert.Equal(t, []any{"event-a"}, typeA.snapshot())
	assert.Equal(t, []any{"event-b"}, typeB.snapshot())
}

func TestEventBus_PreservesOrderPerTopic(t *testing.T) {
	bus := NewEventBus()
	rec := &recorder{}
	bus.Subscribe("ordered", rec.handle)

	for i := 0; i < 50; i++ {
		bus.Publish("ordered", i)
	}
	bus.Shutdown()

	got := rec.snapshot()
	require.Len(t, got, 50)
	for i, e := range got {
		assert.Equal(t, i, e)
	}
}

func TestEventBus_NoSubscribers(t *testing.T) {
	bus := NewEventBus()

	assert.NotPanics(t, func() {
		bus.Publish("non.existent", "test")
	})
}

func TestEventBus_HandlerPanicDoesNotStopTopic(t *testing.T) {
	bus := NewEventBus()
	rec := &recorder{}
	bus.Subscribe("panicky", func(event any) {
		if event == "boom" {
			panic("handler failure")
		}
	})
	bus.Subscribe("panicky", rec.handle)

	bus.Publish("panicky", "boom")
	bus.Publish("panicky", "after")

	assert.Eventually(t, func() bool {
		return len(rec.snapshot()) == 2
	}, time.Second, 10*time.Millisecond)
	bus.Shutdown()
}

func TestEventBus_DropsWhenQueueFull(t *testing.T) {
	bus := NewEventBusWithBuffer(1)
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	bus.Subscribe("slow", func(event any) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	})

	bus.Publish("slow", 1)
	<-started // worker is now blocked on the first event
	bus.Publish("slow", 2)
	bus.Publish("slow", 3)

	assert.Equal(t, int64(1), bus.DroppedCount())
	close(release)
	bus.Shutdown()
}

func TestEventBus_PublishDuringShutdown(t *testing.T) {
	bus := NewEventBusWithBuffer(4)
	rec := &recorder{}
	bus.Subscribe("context.trimmed", rec.handle)

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				bus.Publish("context.trimmed", i)
			}
		}()
	}

	assert.NotPanics(t, func() {
		for i := 0; i < 50; i++ {
			bus.Shutdown()
		}
	})
	wg.Wait()
	bus.Shutdown()

	assert.Equal(t, int64(4*500), int64(len(rec.snapshot()))+bus.DroppedCount())
}

func TestEventBus_HandlerMayPublishDuringShutdown(t *testing.T) {
	bus := NewEventBus()
	rec := &recorder{}
	bus.Subscribe("first", func(event any) {
		bus.Publish("second", event)
	})
	bus.Subscribe("second", rec.handle)

	bus.Publish("first", "hello")
	done := make(chan struct{})
	go func() {
		bus.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("shutdown blocked on a publishing handler")
	}
	bus.Shutdown()
	assert.Equal(t, []any{"hello"}, rec.snapshot())
}

func TestPublishEvent_UsesTopic(t *testing.T) {
	bus := NewEventBus()
	rec := &recorder{}
	bus.Subscribe("context.over_budget", rec.handle)

	PublishEvent(bus, ContextOverBudgetEvent{AllocationID: "a", EstimatedTokens: 9, MaxTokens: 5})
	bus.Shutdown()

	require.Len(t, rec.snapshot(), 1)
	assert.IsType(t, ContextOverBudgetEvent{}, rec.snapshot()[0])
}

func TestPublishEvent_NilPublisher(t *testing.T) {
	assert.NotPanics(t, func() {
		PublishEvent(nil, HistoryTrimmedEvent{})
	})
}

func TestEventTopics(t *testing.T) {
	assert.Equal(t, "context.trimmed", ContextTrimmedEvent{}.Topic())
	assert.Equal(t, "context.over_budget", ContextOverBudgetEvent{}.Topic())
	assert.Equal(t, "context.history_trimmed", HistoryTrimmedEvent{}.Topic())
}
