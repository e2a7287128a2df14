package transform_test

import (
	"context"
	"runtime"
	"testing"

	"github.com/relayd/relayd/internal/domain"
	"github.com/relayd/relayd/internal/transform"
)

func scriptEvent(t *testing.T) *domain.Event {
	t.Helper()
	ev, err := domain.Build("src-1", domain.EventResourceChanged, nil, map[string]any{"status": "new"})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return ev
}

func shell(t *testing.T, script string) (string, []string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("script stage test requires a posix shell")
	}
	return "/bin/sh", []string{"-c", script}
}

func TestScript_PassthroughOnEmptyStdout(t *testing.T) {
	cmd, args := shell(t, `cat >/dev/null`)
	s := transform.NewScript("noop", cmd, args, nil, "")
	ev := scriptEvent(t)

	payload, drop, err := s.Run(context.Background(), ev)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if drop {
		t.Fatal("expected no drop")
	}
	if payload["status"] != "new" {
		t.Errorf("expected unmodified payload passed through, got %v", payload)
	}
}

func TestScript_ReplacesPayloadFromStdout(t *testing.T) {
	cmd, args := shell(t, `cat >/dev/null; printf '{"payload":{"status":"redacted"}}'`)
	s := transform.NewScript("redact", cmd, args, nil, "")
	ev := scriptEvent(t)

	payload, drop, err := s.Run(context.Background(), ev)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if drop {
		t.Fatal("expected no drop")
	}
	if payload["status"] != "redacted" {
		t.Errorf("expected replaced payload, got %v", payload)
	}
}

func TestScript_ExitCode78Drops(t *testing.T) {
	cmd, args := shell(t, `cat >/dev/null; exit 78`)
	s := transform.NewScript("filter", cmd, args, nil, "")
	ev := scriptEvent(t)

	_, drop, err := s.Run(context.Background(), ev)
	if err != nil {
		t.Fatalf("expected no error on drop exit code, got %v", err)
	}
	if !drop {
		t.Fatal("expected exit 78 to drop the event")
	}
}

func TestScript_OtherNonZeroExitIsError(t *testing.T) {
	cmd, args := shell(t, `cat >/dev/null; exit 1`)
	s := transform.NewScript("broken", cmd, args, nil, "")
	ev := scriptEvent(t)

	_, _, err := s.Run(context.Background(), ev)
	if err == nil {
		t.Fatal("expected error for non-zero non-78 exit")
	}
}
