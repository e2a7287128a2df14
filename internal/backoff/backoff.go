// Package backoff computes retry delays shared by the scheduler's poll
// loop and the actor driver's delivery retries.
package backoff

import (
	"math"
	"time"
)

// Calculate returns the delay before retry attempt, given the initial
// delay, a ceiling, and a multiplier applied per attempt beyond the
// first. attempt is 1-indexed: attempt 1 always returns initial.
func Calculate(attempt int, initial, max time.Duration, multiplier float64) time.Duration {
	if attempt <= 1 {
		return initial
	}
	delay := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if delay > float64(max) {
		return max
	}
	return time.Duration(delay)
}
