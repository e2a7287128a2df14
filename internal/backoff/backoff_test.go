package backoff_test

import (
	"testing"
	"time"

	"github.com/relayd/relayd/internal/backoff"
)

func TestCalculate_FirstAttemptIsInitial(t *testing.T) {
	got := backoff.Calculate(1, time.Second, time.Minute, 2.0)
	if got != time.Second {
		t.Errorf("expected initial delay, got %v", got)
	}
}

func TestCalculate_GrowsWithMultiplier(t *testing.T) {
	got := backoff.Calculate(3, time.Second, time.Minute, 2.0)
	want := 4 * time.Second
	if got != want {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestCalculate_CapsAtMax(t *testing.T) {
	got := backoff.Calculate(20, time.Second, 10*time.Second, 2.0)
	if got != 10*time.Second {
		t.Errorf("expected capped at max, got %v", got)
	}
}
