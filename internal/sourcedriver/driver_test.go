package sourcedriver_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/relayd/relayd/internal/bus"
	"github.com/relayd/relayd/internal/checkpoint"
	"github.com/relayd/relayd/internal/domain"
	"github.com/relayd/relayd/internal/sourcedriver"
)

type fakeSource struct {
	mu         sync.Mutex
	events     []domain.SourceEvent
	nextCP     []byte
	err        error
	gotCheckpoints [][]byte
}

func (f *fakeSource) Init(ctx context.Context, config map[string]any) error { return nil }
func (f *fakeSource) Shutdown(ctx context.Context) error                   { return nil }
func (f *fakeSource) Info() domain.PluginInfo                              { return domain.PluginInfo{Name: "fake"} }
func (f *fakeSource) Poll(ctx context.Context, checkpoint []byte) ([]domain.SourceEvent, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotCheckpoints = append(f.gotCheckpoints, checkpoint)
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.events, f.nextCP, nil
}

func newHarness(t *testing.T) (*sourcedriver.Driver, *fakeSource, checkpoint.Store, *bus.InMemoryBus) {
	t.Helper()
	src := &fakeSource{
		events: []domain.SourceEvent{
			{Type: domain.EventResourceChanged, Payload: map[string]any{"n": 1}},
		},
		nextCP: []byte("cp-1"),
	}
	store := checkpoint.NewMemoryStore()
	b := bus.NewInMemoryBus(16)
	d := sourcedriver.New("src-1", src, store, b, time.Second, nil)
	return d, src, store, b
}

func TestDriver_PollPublishesStampedEvents(t *testing.T) {
	d, _, _, b := newHarness(t)

	var received *domain.Event
	var mu sync.Mutex
	_, err := b.Subscribe(context.Background(), "sub", bus.HandlerFunc(func(ctx context.Context, ev *domain.Event) error {
		mu.Lock()
		received = ev
		mu.Unlock()
		return nil
	}))
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := d.Poll(context.Background()); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		got := received
		mu.Unlock()
		if got != nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if received == nil {
		t.Fatal("expected event to be published")
	}
	if received.SourceID != "src-1" {
		t.Errorf("expected source id stamped, got %q", received.SourceID)
	}
	if received.TraceID == "" {
		t.Error("expected trace id stamped")
	}
}

func TestDriver_SavesCheckpointAfterSuccess(t *testing.T) {
	d, _, store, _ := newHarness(t)

	if err := d.Poll(context.Background()); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}

	got, err := store.Load(context.Background(), "src-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(got) != "cp-1" {
		t.Errorf("expected checkpoint saved, got %q", got)
	}
}

func TestDriver_PassesPriorCheckpointToPlugin(t *testing.T) {
	d, src, store, _ := newHarness(t)
	if err := store.Save(context.Background(), "src-1", []byte("prior")); err != nil {
		t.Fatalf("seed checkpoint failed: %v", err)
	}

	if err := d.Poll(context.Background()); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}

	if len(src.gotCheckpoints) != 1 || string(src.gotCheckpoints[0]) != "prior" {
		t.Errorf("expected plugin to receive prior checkpoint, got %v", src.gotCheckpoints)
	}
}

func TestDriver_PluginErrorDoesNotAdvanceCheckpoint(t *testing.T) {
	d, src, store, _ := newHarness(t)
	if err := store.Save(context.Background(), "src-1", []byte("prior")); err != nil {
		t.Fatalf("seed checkpoint failed: %v", err)
	}
	src.err = errors.New("poll failed")

	if err := d.Poll(context.Background()); err == nil {
		t.Fatal("expected Poll to return the plugin error")
	}

	got, err := store.Load(context.Background(), "src-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(got) != "prior" {
		t.Errorf("expected checkpoint unchanged after error, got %q", got)
	}

	health := d.Health()
	if health.Status != sourcedriver.HealthDegraded {
		t.Errorf("expected degraded health after one failure, got %v", health.Status)
	}
	if health.ConsecutiveFailures != 1 {
		t.Errorf("expected 1 consecutive failure, got %d", health.ConsecutiveFailures)
	}
}

func TestDriver_EmptyNextCheckpointDoesNotOverwritePrior(t *testing.T) {
	d, src, store, _ := newHarness(t)
	if err := store.Save(context.Background(), "src-1", []byte("prior")); err != nil {
		t.Fatalf("seed checkpoint failed: %v", err)
	}
	src.nextCP = nil

	if err := d.Poll(context.Background()); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}

	got, err := store.Load(context.Background(), "src-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(got) != "prior" {
		t.Errorf("expected checkpoint unchanged after empty poll result, got %q", got)
	}
}

func TestDriver_HealthUnhealthyAfterRepeatedFailures(t *testing.T) {
	d, src, _, _ := newHarness(t)
	src.err = errors.New("down")

	for i := 0; i < 3; i++ {
		_ = d.Poll(context.Background())
	}

	if got := d.Health().Status; got != sourcedriver.HealthUnhealthy {
		t.Errorf("expected unhealthy after 3 consecutive failures, got %v", got)
	}
}

func TestDriver_Push(t *testing.T) {
	d, _, _, b := newHarness(t)

	var count int
	var mu sync.Mutex
	_, err := b.Subscribe(context.Background(), "sub", bus.HandlerFunc(func(ctx context.Context, ev *domain.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}))
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	events := []domain.SourceEvent{{Type: domain.EventMessageReceived, Payload: map[string]any{"ok": true}}}
	published, err := d.Push(context.Background(), events)
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if len(published) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(published))
	}
}
