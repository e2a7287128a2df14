package transform_test

import (
	"context"
	"errors"
	"testing"

	"github.com/relayd/relayd/internal/domain"
	"github.com/relayd/relayd/internal/transform"
)

type fakeTransformPlugin struct {
	payload map[string]any
	ok      bool
	err     error
}

func (f *fakeTransformPlugin) Init(ctx context.Context, config map[string]any) error { return nil }
func (f *fakeTransformPlugin) Shutdown(ctx context.Context) error                    { return nil }
func (f *fakeTransformPlugin) Info() domain.PluginInfo                               { return domain.PluginInfo{Name: "fake"} }
func (f *fakeTransformPlugin) Transform(ctx context.Context, ev *domain.Event) (map[string]any, bool, error) {
	return f.payload, f.ok, f.err
}

func TestPackage_PropagatesDrop(t *testing.T) {
	p := transform.NewPackage("drop-all", &fakeTransformPlugin{ok: false})
	ev := scriptEvent(t)

	_, drop, err := p.Run(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !drop {
		t.Fatal("expected ok=false to translate to drop=true")
	}
}

func TestPackage_PropagatesPayload(t *testing.T) {
	want := map[string]any{"status": "scrubbed"}
	p := transform.NewPackage("redact", &fakeTransformPlugin{payload: want, ok: true})
	ev := scriptEvent(t)

	got, drop, err := p.Run(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if drop {
		t.Fatal("expected no drop")
	}
	if got["status"] != "scrubbed" {
		t.Errorf("expected payload passed through, got %v", got)
	}
}

func TestPackage_PropagatesError(t *testing.T) {
	p := transform.NewPackage("broken", &fakeTransformPlugin{err: errors.New("boom")})
	ev := scriptEvent(t)

	_, _, err := p.Run(context.Background(), ev)
	if err == nil {
		t.Fatal("expected error to propagate")
	}
}
