package config_test

import (
	"os"
	"testing"

	"github.com/relayd/relayd/internal/config"
)

func TestIdempotent_PlainValue(t *testing.T) {
	if !config.Idempotent("no vars here") {
		t.Error("expected plain text to be idempotent")
	}
}

func TestIdempotent_WithDefault(t *testing.T) {
	os.Unsetenv("RELAYD_TEST_UNSET_VAR")
	if !config.Idempotent("${RELAYD_TEST_UNSET_VAR:-fallback}") {
		t.Error("expected default-substituted value to be idempotent")
	}
}

func TestParse_LeavesUnresolvedReferenceIntact(t *testing.T) {
	os.Unsetenv("RELAYD_TEST_TOTALLY_UNSET")
	yaml := `
state_dir: ${RELAYD_TEST_TOTALLY_UNSET}
`
	cfg, err := config.Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.StateDir != "${RELAYD_TEST_TOTALLY_UNSET}" {
		t.Errorf("expected unresolved reference left as-is, got %q", cfg.StateDir)
	}
}
