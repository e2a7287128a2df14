package bus_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/relayd/relayd/internal/bus"
	"github.com/relayd/relayd/internal/domain"
)

func openWAL(t *testing.T) *bus.WALBus {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bus.db")
	b, err := bus.OpenWALBus(path)
	if err != nil {
		t.Fatalf("OpenWALBus failed: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestWALBus_PublishAndDeliver(t *testing.T) {
	b := openWAL(t)
	c := &collector{}

	if _, err := b.Subscribe(context.Background(), "sub-1", c); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := b.Publish(context.Background(), mustEvent(t)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	waitFor(t, func() bool { return c.count() == 1 })
}

func TestWALBus_ReplaysUnackedEventsOnResubscribe(t *testing.T) {
	b := openWAL(t)
	ctx := context.Background()

	failing := bus.HandlerFunc(func(_ context.Context, _ *domain.Event) error {
		return context.DeadlineExceeded // never acks
	})
	subID, _ := b.Subscribe(ctx, "replay-sub", failing)
	b.Publish(ctx, mustEvent(t))
	b.Publish(ctx, mustEvent(t))
	time.Sleep(50 * time.Millisecond)
	b.Unsubscribe(subID)

	c := &collector{}
	if _, err := b.Subscribe(ctx, "replay-sub", c); err != nil {
		t.Fatalf("re-Subscribe failed: %v", err)
	}
	if c.count() != 2 {
		t.Errorf("expected 2 replayed events for unacked subscriber, got %d", c.count())
	}
}

func TestWALBus_AckedEventsAreNotReplayed(t *testing.T) {
	b := openWAL(t)
	ctx := context.Background()

	c1 := &collector{}
	subID, _ := b.Subscribe(ctx, "acking-sub", c1)
	b.Publish(ctx, mustEvent(t))
	waitFor(t, func() bool { return c1.count() == 1 })
	b.Unsubscribe(subID)

	c2 := &collector{}
	if _, err := b.Subscribe(ctx, "acking-sub", c2); err != nil {
		t.Fatalf("re-Subscribe failed: %v", err)
	}
	if c2.count() != 0 {
		t.Errorf("expected no replay for already-acked subscriber, got %d events", c2.count())
	}
}

func TestWALBus_ReplayIsIdempotentAcrossRestarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus.db")
	b1, err := bus.OpenWALBus(path)
	if err != nil {
		t.Fatalf("OpenWALBus failed: %v", err)
	}
	ctx := context.Background()

	never := bus.HandlerFunc(func(_ context.Context, _ *domain.Event) error { return context.DeadlineExceeded })
	b1.Subscribe(ctx, "durable-sub", never)
	b1.Publish(ctx, mustEvent(t))
	time.Sleep(50 * time.Millisecond)
	b1.Close()

	b2, err := bus.OpenWALBus(path)
	if err != nil {
		t.Fatalf("reopen OpenWALBus failed: %v", err)
	}
	defer b2.Close()

	c := &collector{}
	b2.Subscribe(ctx, "durable-sub", c)
	if c.count() != 1 {
		t.Errorf("expected the single unacked event to replay once after reopen, got %d", c.count())
	}
}
