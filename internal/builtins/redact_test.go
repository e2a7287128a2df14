package builtins_test

import (
	"context"
	"testing"

	"github.com/relayd/relayd/internal/builtins"
	"github.com/relayd/relayd/internal/domain"
)

func TestRedactTransform_RedactsConfiguredFields(t *testing.T) {
	plugin, err := builtins.NewRedactTransform(domain.PluginConfig{
		Name:   "redact",
		Config: map[string]any{"fields": []any{"token", "user.email"}},
	})
	if err != nil {
		t.Fatalf("NewRedactTransform: %v", err)
	}
	transform := plugin.(domain.TransformPlugin)

	ev, err := domain.Build("src", domain.EventResourceChanged, nil, map[string]any{
		"token": "secret",
		"user":  map[string]any{"email": "a@example.com", "name": "ok"},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	payload, ok, err := transform.Transform(context.Background(), ev)
	if err != nil || !ok {
		t.Fatalf("Transform failed: ok=%v err=%v", ok, err)
	}
	if payload["token"] != "[redacted]" {
		t.Fatalf("token not redacted: %+v", payload)
	}
	user := payload["user"].(map[string]any)
	if user["email"] != "[redacted]" {
		t.Fatalf("nested email not redacted: %+v", user)
	}
	if user["name"] != "ok" {
		t.Fatalf("unrelated field modified: %+v", user)
	}
	if ev.Payload["token"] != "secret" {
		t.Fatal("original event payload mutated")
	}
}

func TestRedactTransform_CustomReplacement(t *testing.T) {
	plugin, _ := builtins.NewRedactTransform(domain.PluginConfig{
		Name:   "redact",
		Config: map[string]any{"fields": []any{"token"}, "replacement": "***"},
	})
	transform := plugin.(domain.TransformPlugin)

	ev, _ := domain.Build("src", domain.EventResourceChanged, nil, map[string]any{"token": "secret"})
	payload, _, _ := transform.Transform(context.Background(), ev)
	if payload["token"] != "***" {
		t.Fatalf("unexpected replacement: %+v", payload)
	}
}
