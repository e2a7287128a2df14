package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relayd/relayd/internal/domain"
)

// deliveryTimeout is the deadline of the context each subscriber's drain
// goroutine passes to Handle; Publish never waits on handlers. It does not
// stop the handler, it only cancels the context the handler was given.
const deliveryTimeout = 30 * time.Second

// defaultQueueSize bounds the per-subscriber delivery queue when the
// project config does not set bus.queue_size.
const defaultQueueSize = 256

type subscription struct {
	id      string
	queue   chan *domain.Event
	done    chan struct{}
	handler Handler
}

// InMemoryBus fans out published events to every live subscription over a
// bounded per-subscriber queue, each drained by its own goroutine. A
// subscriber that falls behind drops the oldest queued event rather than
// blocking the publisher.
type InMemoryBus struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	queueSize     int
}

// NewInMemoryBus returns a ready-to-use InMemoryBus. queueSize <= 0 uses
// defaultQueueSize.
func NewInMemoryBus(queueSize int) *InMemoryBus {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &InMemoryBus{
		subscriptions: make(map[string]*subscription),
		queueSize:     queueSize,
	}
}

func (b *InMemoryBus) Publish(_ context.Context, ev *domain.Event) error {
	if ev == nil {
		return domain.Wrap(domain.ErrKindBusPublish, "", fmt.Errorf("cannot publish nil event"))
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscriptions {
		select {
		case sub.queue <- ev:
		default:
			// Queue full: drop this subscriber's oldest queued event to make
			// room rather than block the publisher or other subscribers.
			select {
			case <-sub.queue:
			default:
			}
			select {
			case sub.queue <- ev:
			default:
			}
		}
	}
	return nil
}

func (b *InMemoryBus) Subscribe(_ context.Context, subscriberID string, handler Handler) (string, error) {
	if handler == nil {
		return "", domain.Wrap(domain.ErrKindConfig, subscriberID, fmt.Errorf("handler must not be nil"))
	}

	sub := &subscription{
		id:      "sub_" + uuid.New().String(),
		queue:   make(chan *domain.Event, b.queueSize),
		done:    make(chan struct{}),
		handler: handler,
	}

	b.mu.Lock()
	b.subscriptions[sub.id] = sub
	b.mu.Unlock()

	go b.drain(sub)

	return sub.id, nil
}

func (b *InMemoryBus) drain(sub *subscription) {
	for {
		select {
		case ev := <-sub.queue:
			ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
			_ = sub.handler.Handle(ctx, ev)
			cancel()
		case <-sub.done:
			return
		}
	}
}

func (b *InMemoryBus) Unsubscribe(subID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subscriptions[subID]
	if !ok {
		return domain.ErrNotFound
	}
	close(sub.done)
	delete(b.subscriptions, subID)
	return nil
}

func (b *InMemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subscriptions {
		close(sub.done)
		delete(b.subscriptions, id)
	}
	return nil
}

var _ Bus = (*InMemoryBus)(nil)
