package domain_test

import (
	"strings"
	"testing"

	"github.com/relayd/relayd/internal/domain"
)

func TestBuild(t *testing.T) {
	ev, err := domain.Build("src-1", domain.EventResourceChanged, map[string]any{"region": "us"}, map[string]any{"id": "42"})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !strings.HasPrefix(ev.ID, "evt_") {
		t.Errorf("expected ID to have evt_ prefix, got %s", ev.ID)
	}
	if !strings.HasPrefix(ev.TraceID, "trc_") {
		t.Errorf("expected TraceID to have trc_ prefix, got %s", ev.TraceID)
	}
	if ev.Timestamp.IsZero() {
		t.Error("expected non-zero timestamp")
	}
	if ev.Provenance["region"] != "us" {
		t.Errorf("provenance not preserved: %v", ev.Provenance)
	}
}

func TestBuild_RejectsEmptySourceID(t *testing.T) {
	if _, err := domain.Build("", domain.EventResourceChanged, nil, nil); err == nil {
		t.Error("expected error for empty source id")
	}
}

func TestBuild_RejectsUnknownType(t *testing.T) {
	if _, err := domain.Build("src-1", domain.EventType("bogus"), nil, nil); err == nil {
		t.Error("expected error for unknown event type")
	}
}

func TestBuild_NilMapsBecomeEmpty(t *testing.T) {
	ev, err := domain.Build("src-1", domain.EventMessageReceived, nil, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if ev.Provenance == nil || ev.Payload == nil {
		t.Error("expected nil maps to be replaced with empty maps")
	}
}

func TestWithTraceID(t *testing.T) {
	ev, _ := domain.Build("src-1", domain.EventActorStopped, nil, nil)
	cp := ev.WithTraceID("trc_external")
	if cp.TraceID != "trc_external" {
		t.Errorf("expected trace id to be replaced, got %s", cp.TraceID)
	}
	if ev.TraceID == cp.TraceID {
		t.Error("expected original event to be unmodified")
	}
}

func TestCopyModified_DoesNotMutateOriginal(t *testing.T) {
	ev, _ := domain.Build("src-1", domain.EventResourceChanged, map[string]any{"k": "v"}, map[string]any{"a": 1})
	cp := ev.CopyModified(map[string]any{"a": 2})

	if ev.Payload["a"] != 1 {
		t.Errorf("original payload mutated: %v", ev.Payload)
	}
	if cp.Payload["a"] != 2 {
		t.Errorf("copy payload not applied: %v", cp.Payload)
	}
	cp.Provenance["k"] = "changed"
	if ev.Provenance["k"] != "v" {
		t.Error("mutating copy provenance leaked into original")
	}
}

func TestEventTypeValid(t *testing.T) {
	cases := []struct {
		typ   domain.EventType
		valid bool
	}{
		{domain.EventResourceChanged, true},
		{domain.EventActorStopped, true},
		{domain.EventMessageReceived, true},
		{domain.EventType("other"), false},
		{domain.EventType(""), false},
	}
	for _, c := range cases {
		if got := c.typ.Valid(); got != c.valid {
			t.Errorf("EventType(%q).Valid() = %v, want %v", c.typ, got, c.valid)
		}
	}
}
