// Package actordriver wraps a domain.ActorPlugin with the delivery
// mechanics the runtime expects: delivery-config resolution, a per-call
// deadline, result classification, and bounded retry with backoff on
// retriable errors.
package actordriver

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/relayd/relayd/internal/backoff"
	"github.com/relayd/relayd/internal/domain"
)

const (
	initialBackoff   = time.Second
	maxBackoff       = 30 * time.Second
	backoffFactor    = 2.0
	defaultAttempts  = 3
	defaultGraceful  = 10 * time.Second
)

// Driver owns delivery for a single configured actor.
type Driver struct {
	actorID      string
	plugin       domain.ActorPlugin
	timeout      time.Duration
	maxAttempts  int
	gracefulStop time.Duration
	onRecord     func(phase, result string, fields map[string]any)

	mu          sync.Mutex
	inFlight    int
	promptMu    sync.Mutex
	promptCache map[string]cachedPrompt
}

type cachedPrompt struct {
	modTime time.Time
	body    string
}

// New returns a Driver for actorID. timeout bounds each individual
// delivery attempt; maxAttempts bounds the total number of attempts,
// including the first (1 means no retry). onRecord, if non-nil, receives a log record
// for every delivery outcome (phase "deliver").
func New(actorID string, plugin domain.ActorPlugin, timeout time.Duration, maxAttempts int, onRecord func(phase, result string, fields map[string]any)) *Driver {
	if maxAttempts <= 0 {
		maxAttempts = defaultAttempts
	}
	return &Driver{
		actorID:      actorID,
		plugin:       plugin,
		timeout:      timeout,
		maxAttempts:  maxAttempts,
		gracefulStop: defaultGraceful,
		onRecord:     onRecord,
		promptCache:  make(map[string]cachedPrompt),
	}
}

// Deliver resolves routeConfig's delivery sugar, then calls the actor
// plugin, retrying ActorError results up to maxAttempts with exponential
// backoff. ActorRejected is never retried.
func (d *Driver) Deliver(ctx context.Context, ev *domain.Event, routeConfig map[string]any) (domain.ActorDeliveryResult, error) {
	resolved, err := d.resolveDeliveryConfig(routeConfig)
	if err != nil {
		return domain.ActorError, domain.Wrap(domain.ErrKindConfig, d.actorID, fmt.Errorf("resolve delivery config: %w", err))
	}

	target := ev
	if len(resolved) > 0 {
		merged := make(map[string]any, len(ev.Payload)+1)
		for k, v := range ev.Payload {
			merged[k] = v
		}
		merged["delivery"] = resolved
		target = ev.CopyModified(merged)
	}

	d.beginInFlight()
	defer d.endInFlight()

	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		result, err := d.attempt(ctx, target)
		if err == nil && result == domain.ActorDelivered {
			d.record("delivered", attempt, nil)
			return result, nil
		}
		if result == domain.ActorRejected {
			d.record("rejected", attempt, err)
			return result, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("actor %s reported a retriable error result", d.actorID)
		}

		if attempt < d.maxAttempts {
			select {
			case <-time.After(backoff.Calculate(attempt, initialBackoff, maxBackoff, backoffFactor)):
			case <-ctx.Done():
				d.record("abandoned", attempt, lastErr)
				return domain.ActorError, ctx.Err()
			}
		}
	}

	d.record("error", d.maxAttempts, lastErr)
	return domain.ActorError, lastErr
}

func (d *Driver) attempt(ctx context.Context, ev *domain.Event) (domain.ActorDeliveryResult, error) {
	dctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.plugin.Deliver(dctx, ev)
}

func (d *Driver) record(result string, attempts int, err error) {
	if d.onRecord == nil {
		return
	}
	fields := map[string]any{"actor_id": d.actorID, "attempts": attempts}
	if err != nil {
		fields["error"] = err.Error()
	}
	d.onRecord("deliver", result, fields)
}

func (d *Driver) beginInFlight() {
	d.mu.Lock()
	d.inFlight++
	d.mu.Unlock()
}

func (d *Driver) endInFlight() {
	d.mu.Lock()
	d.inFlight--
	d.mu.Unlock()
}

// InFlight reports the number of deliveries currently in progress, used by
// the module instance to decide when it is safe to finish unloading.
func (d *Driver) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inFlight
}

// resolveDeliveryConfig copies routeConfig, replacing a "prompt_file" entry
// with its file contents under "prompt". A missing or absent prompt_file
// is not an error; routes without delivery sugar configure nothing here.
// The file body is cached by path until the file's mtime changes, so a
// route delivering on every poll tick doesn't re-read its prompt file each
// time.
func (d *Driver) resolveDeliveryConfig(routeConfig map[string]any) (map[string]any, error) {
	if len(routeConfig) == 0 {
		return nil, nil
	}
	resolved := make(map[string]any, len(routeConfig))
	for k, v := range routeConfig {
		resolved[k] = v
	}
	if path, ok := resolved["prompt_file"].(string); ok && path != "" {
		body, err := d.readPrompt(path)
		if err != nil {
			return nil, fmt.Errorf("read prompt_file %q: %w", path, err)
		}
		delete(resolved, "prompt_file")
		resolved["prompt"] = body
	}
	return resolved, nil
}

func (d *Driver) readPrompt(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}

	d.promptMu.Lock()
	cached, ok := d.promptCache[path]
	d.promptMu.Unlock()
	if ok && cached.modTime.Equal(info.ModTime()) {
		return cached.body, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	d.promptMu.Lock()
	d.promptCache[path] = cachedPrompt{modTime: info.ModTime(), body: string(data)}
	d.promptMu.Unlock()
	return string(data), nil
}
