package config_test

import (
	"os"
	"testing"

	"github.com/relayd/relayd/internal/config"
	"github.com/relayd/relayd/internal/domain"
)

const sampleYAML = `
state_dir: ${STATE_DIR:-/var/lib/relayd}
bus:
  durable: true
  path: ${STATE_DIR}/bus.db
sources:
  - name: poller
    kind: http_poll
    interval: 30s
actors:
  - name: webhook_out
    kind: http_post
transforms:
  - name: redact
    kind: builtin_redact
routes:
  - name: changes
    match:
      types: ["resource.changed"]
    transforms:
      - name: redact
        on_error: fail_closed
    actors:
      - webhook_out
`

func TestParse_SubstitutesEnvAndValidates(t *testing.T) {
	os.Setenv("STATE_DIR", "/tmp/relayd-test")
	defer os.Unsetenv("STATE_DIR")

	cfg, err := config.Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.StateDir != "/tmp/relayd-test" {
		t.Errorf("expected state_dir substituted, got %q", cfg.StateDir)
	}
	if cfg.Bus.Path != "/tmp/relayd-test/bus.db" {
		t.Errorf("expected bus path substituted, got %q", cfg.Bus.Path)
	}
	if len(cfg.Routes) != 1 || cfg.Routes[0].Name != "changes" {
		t.Fatalf("expected one route named changes, got %+v", cfg.Routes)
	}
}

func TestParse_DefaultWhenUnset(t *testing.T) {
	os.Unsetenv("STATE_DIR")
	cfg, err := config.Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.StateDir != "/var/lib/relayd" {
		t.Errorf("expected default applied, got %q", cfg.StateDir)
	}
}

func TestValidate_RejectsMissingStateDir(t *testing.T) {
	err := config.Validate(&domain.ProjectConfig{})
	if err == nil {
		t.Fatal("expected error for missing state_dir")
	}
	if domain.KindOf(err) != domain.ErrKindConfig {
		t.Errorf("expected ErrKindConfig, got %v", domain.KindOf(err))
	}
}

func TestValidate_RejectsUnknownActorReference(t *testing.T) {
	cfg := &domain.ProjectConfig{
		StateDir: "/tmp",
		Routes: []domain.RouteConfig{
			{Name: "r1", Actors: []string{"nonexistent"}},
		},
	}
	if err := config.Validate(cfg); err == nil {
		t.Fatal("expected error for route referencing unknown actor")
	}
}

func TestValidate_RejectsDuplicateSourceNames(t *testing.T) {
	cfg := &domain.ProjectConfig{
		StateDir: "/tmp",
		Sources: []domain.PluginConfig{
			{Name: "dup"}, {Name: "dup"},
		},
	}
	if err := config.Validate(cfg); err == nil {
		t.Fatal("expected error for duplicate source names")
	}
}

func TestValidate_RejectsUnknownRouteSource(t *testing.T) {
	cfg := &domain.ProjectConfig{
		StateDir: "/tmp",
		Routes: []domain.RouteConfig{
			{Name: "r1", Match: domain.RouteMatch{Source: "nonexistent"}},
		},
	}
	if err := config.Validate(cfg); err == nil {
		t.Fatal("expected error for route referencing unknown source")
	}
}

func TestValidate_RejectsInvalidOnError(t *testing.T) {
	cfg := &domain.ProjectConfig{
		StateDir:   "/tmp",
		Transforms: []domain.PluginConfig{{Name: "t1"}},
		Routes: []domain.RouteConfig{
			{Name: "r1", Transforms: []domain.TransformStep{{Name: "t1", OnError: "bogus"}}},
		},
	}
	if err := config.Validate(cfg); err == nil {
		t.Fatal("expected error for invalid on_error value")
	}
}
