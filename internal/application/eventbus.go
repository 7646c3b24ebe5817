package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ericfisherdev/vidrelay/internal/domain/model"
)

// EventHandler reacts to one queue event. A returned error is logged and does
// not stop delivery to other handlers.
type EventHandler func(ev model.Event) error

// EventBus fans queue events out to subscribers.
//
// The queue never calls handlers directly. It Posts events into an unbounded
// mailbox while holding its own lock, and a single Run goroutine delivers them
// in post order. Handlers therefore see each task's events in causal order and
// are free to call back into the queue.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[model.EventKind][]EventHandler

	boxMu   sync.Mutex
	mailbox []model.Event
	wake    chan struct{}
	idle    *sync.Cond
	busy    bool
}

// NewEventBus creates an EventBus with no subscribers.
func NewEventBus() *EventBus {
	b := &EventBus{
		handlers: make(map[model.EventKind][]EventHandler),
		wake:     make(chan struct{}, 1),
	}
	b.idle = sync.NewCond(&b.boxMu)
	return b
}

// Subscribe registers handler for kind. Handlers run in subscription order.
func (b *EventBus) Subscribe(kind model.EventKind, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], handler)
}

// SubscribeAll registers handler for every event kind.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	for _, kind := range model.AllEventKinds {
		b.Subscribe(kind, handler)
	}
}

// Publish delivers ev synchronously to every handler subscribed to its kind.
func (b *EventBus) Publish(ev model.Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.handlers[ev.Kind]...)
	b.mu.RUnlock()

	for i, h := range handlers {
		if err := safeCall(h, ev); err != nil {
			slog.Error("event handler failed",
				"kind", ev.Kind, "task_id", ev.Task.ID, "handler", i, "error", err)
		}
	}
}

// Post queues events for asynchronous delivery by Run. It never blocks.
func (b *EventBus) Post(events ...model.Event) {
	if len(events) == 0 {
		return
	}

	b.boxMu.Lock()
	b.mailbox = append(b.mailbox, events...)
	b.boxMu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Run delivers posted events until ctx is cancelled. Events still in the
// mailbox at that point are delivered before Run returns.
func (b *EventBus) Run(ctx context.Context) {
	for {
		b.drain()

		select {
		case <-ctx.Done():
			b.drain()
			return
		case <-b.wake:
		}
	}
}

// WaitIdle blocks until every event posted so far has been delivered. It must
// only be called while Run is active.
func (b *EventBus) WaitIdle() {
	b.boxMu.Lock()
	defer b.boxMu.Unlock()
	for len(b.mailbox) > 0 || b.busy {
		b.idle.Wait()
	}
}

func (b *EventBus) drain() {
	for {
		b.boxMu.Lock()
		if len(b.mailbox) == 0 {
			b.busy = false
			b.idle.Broadcast()
			b.boxMu.Unlock()
			return
		}
		batch := b.mailbox
		b.mailbox = nil
		b.busy = true
		b.boxMu.Unlock()

		for _, ev := range batch {
			b.Publish(ev)
		}
	}
}

func safeCall(h EventHandler, ev model.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ev)
}
