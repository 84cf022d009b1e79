package events

import (
	"sync"
	"sync/atomic"

	"github.com/tamias-ai/tamias/pkg/logging"
)

const defaultTopicBuffer = 256

// EventHandler is a function that handles an event
type EventHandler func(event any)

// Event is implemented by payloads that know their own topic.
type Event interface {
	Topic() string
}

// Publisher allows publishing events
type Publisher interface {
	Publish(eventType string, event any)
}

// Subscriber allows subscribing to events
type Subscriber interface {
	Subscribe(eventType string, handler EventHandler)
}

// EventBus provides both publishing and subscribing
type EventBus interface {
	Publisher
	Subscriber
}

// PublishEvent publishes e under its own topic.
func PublishEvent(p Publisher, e Event) {
	if p == nil {
		return
	}
	p.Publish(e.Topic(), e)
}

// InMemoryBus implements EventBus with one ordered worker per topic.
type InMemoryBus struct {
	mu          sync.Mutex
	subscribers map[string][]EventHandler
	workers     map[string]*topicWorker
	bufferSize  int
	dropped     atomic.Int64
	logger      logging.Logger
}

// NewEventBus creates a new event bus with the default buffer size.
func NewEventBus() *InMemoryBus {
	return NewEventBusWithBuffer(defaultTopicBuffer)
}

// NewEventBusWithBuffer allows configuring the per-topic worker queue size.
// A buffer of at least 1 is enforced to avoid unbuffered sends.
func NewEventBusWithBuffer(buffer int) *InMemoryBus {
	if buffer < 1 {
		buffer = 1
	}
	return &InMemoryBus{
		subscribers: make(map[string][]EventHandler),
		workers:     make(map[string]*topicWorker),
		bufferSize:  buffer,
		logger:      logging.NewComponentLogger("events"),
	}
}

// Subscribe adds a handler for a specific event type.
func (b *InMemoryBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish hands the event to the topic worker. Delivery is in order per topic
// and never blocks the publisher: if the queue is full the event is dropped.
// Sends happen under the bus lock, never on a closed queue.
func (b *InMemoryBus) Publish(eventType string, event any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.subscribers[eventType]) == 0 {
		return
	}
	handlers := make([]EventHandler, len(b.subscribers[eventType]))
	copy(handlers, b.subscribers[eventType])

	worker := b.workerLocked(eventType)
	env := eventEnvelope{
		event:    event,
		handlers: handlers,
	}

	select {
	case worker.ch <- env:
	default:
		b.dropped.Add(1)
		b.logger.Warn("event queue full, dropping event", "topic", eventType)
	}
}

// DroppedCount returns the number of events dropped due to full queues.
func (b *InMemoryBus) DroppedCount() int64 {
	return b.dropped.Load()
}

// Shutdown drains and stops all topic workers. Queues close under the lock;
// pending handlers finish outside it. Publishing afterwards starts new workers.
func (b *InMemoryBus) Shutdown() {
	b.mu.Lock()
	workers := b.workers
	b.workers = make(map[string]*topicWorker)
	for _, w := range workers {
		w.close()
	}
	b.mu.Unlock()

	for _, w := range workers {
		w.wait()
	}
}

// workerLocked returns the topic worker, creating it if needed. b.mu must be held.
func (b *InMemoryBus) workerLocked(eventType string) *topicWorker {
	if worker, ok := b.workers[eventType]; ok {
		return worker
	}

	worker := newTopicWorker(b.bufferSize, b.logger.With("topic", eventType))
	b.workers[eventType] = worker
	return worker
}

type eventEnvelope struct {
	event    any
	handlers []EventHandler
}

type topicWorker struct {
	ch        chan eventEnvelope
	wg        sync.WaitGroup
	closeOnce sync.Once
	logger    logging.Logger
}

func newTopicWorker(buffer int, logger logging.Logger) *topicWorker {
	w := &topicWorker{
		ch:     make(chan eventEnvelope, buffer),
		logger: logger,
	}
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *topicWorker) run() {
	defer w.wg.Done()
	for env := range w.ch {
		for _, handler := range env.handlers {
			w.deliver(handler, env.event)
		}
	}
}

// deliver isolates subscriber panics so one bad handler cannot stop the topic.
func (w *topicWorker) deliver(handler EventHandler, event any) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("event handler panicked", "panic", r)
		}
	}()
	handler(event)
}

func (w *topicWorker) close() {
	w.closeOnce.Do(func() {
		close(w.ch)
	})
}

func (w *topicWorker) wait() {
	w.wg.Wait()
}
