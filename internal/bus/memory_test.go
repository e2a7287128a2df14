package bus_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/relayd/relayd/internal/bus"
	"github.com/relayd/relayd/internal/domain"
)

type collector struct {
	mu     sync.Mutex
	events []*domain.Event
}

func (c *collector) Handle(_ context.Context, ev *domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func mustEvent(t *testing.T) *domain.Event {
	t.Helper()
	ev, err := domain.Build("src-1", domain.EventResourceChanged, nil, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return ev
}

func TestInMemoryBus_PublishDeliversToSubscriber(t *testing.T) {
	b := bus.NewInMemoryBus(0)
	defer b.Close()
	c := &collector{}

	if _, err := b.Subscribe(context.Background(), "sub-1", c); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := b.Publish(context.Background(), mustEvent(t)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	waitFor(t, func() bool { return c.count() == 1 })
}

func TestInMemoryBus_MultipleSubscribersAllReceive(t *testing.T) {
	b := bus.NewInMemoryBus(0)
	defer b.Close()
	c1, c2 := &collector{}, &collector{}

	b.Subscribe(context.Background(), "sub-1", c1)
	b.Subscribe(context.Background(), "sub-2", c2)
	b.Publish(context.Background(), mustEvent(t))

	waitFor(t, func() bool { return c1.count() == 1 && c2.count() == 1 })
}

func TestInMemoryBus_Unsubscribe(t *testing.T) {
	b := bus.NewInMemoryBus(0)
	defer b.Close()
	c := &collector{}

	subID, _ := b.Subscribe(context.Background(), "sub-1", c)
	b.Publish(context.Background(), mustEvent(t))
	waitFor(t, func() bool { return c.count() == 1 })

	if err := b.Unsubscribe(subID); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	b.Publish(context.Background(), mustEvent(t))
	time.Sleep(50 * time.Millisecond)

	if c.count() != 1 {
		t.Errorf("expected no further delivery after unsubscribe, got %d events", c.count())
	}
}

func TestInMemoryBus_Unsubscribe_UnknownID(t *testing.T) {
	b := bus.NewInMemoryBus(0)
	defer b.Close()
	if err := b.Unsubscribe("nonexistent"); err == nil {
		t.Error("expected error for unknown subscription id")
	}
}

func TestInMemoryBus_Subscribe_NilHandler(t *testing.T) {
	b := bus.NewInMemoryBus(0)
	defer b.Close()
	if _, err := b.Subscribe(context.Background(), "sub-1", nil); err == nil {
		t.Error("expected error for nil handler")
	}
}

func TestInMemoryBus_SlowSubscriberDropsRatherThanBlocks(t *testing.T) {
	b := bus.NewInMemoryBus(1)
	defer b.Close()

	block := make(chan struct{})
	blocked := bus.HandlerFunc(func(ctx context.Context, ev *domain.Event) error {
		<-block
		return nil
	})
	b.Subscribe(context.Background(), "slow", blocked)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(context.Background(), mustEvent(t))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber instead of dropping")
	}
	close(block)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
