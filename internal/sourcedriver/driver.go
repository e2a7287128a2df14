// Package sourcedriver wraps a domain.SourcePlugin with the poll-cycle
// mechanics the scheduler expects: checkpoint load, deadline, event
// stamping, bus publish, checkpoint save, and health tracking.
package sourcedriver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/relayd/relayd/internal/bus"
	"github.com/relayd/relayd/internal/checkpoint"
	"github.com/relayd/relayd/internal/domain"
)

// HealthStatus classifies how a source is currently doing.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// degradedAfter is the number of consecutive failures after which a
// source's health drops from degraded to unhealthy.
const degradedAfter = 3

// Health is the point-in-time status the driver reports for its source.
type Health struct {
	Status              HealthStatus
	LastPollAt          time.Time
	LastError           string
	ConsecutiveFailures int
	EventsInWindow      int
}

// Driver owns one source plugin's poll cycle: checkpoint I/O, event
// stamping, and bus publication.
type Driver struct {
	sourceID string
	plugin   domain.SourcePlugin
	store    checkpoint.Store
	bus      bus.Bus
	timeout  time.Duration
	onRecord func(phase, result string, fields map[string]any)

	mu                  sync.Mutex
	consecutiveFailures int
	lastPollAt          time.Time
	lastError           string
	eventsInWindow      int
}

// New returns a Driver for sourceID, reading/writing checkpoints via store
// and publishing stamped events to b. onRecord, if non-nil, receives a log
// record for every notable event in the poll cycle (phase "source").
func New(sourceID string, plugin domain.SourcePlugin, store checkpoint.Store, b bus.Bus, timeout time.Duration, onRecord func(phase, result string, fields map[string]any)) *Driver {
	return &Driver{
		sourceID: sourceID,
		plugin:   plugin,
		store:    store,
		bus:      b,
		timeout:  timeout,
		onRecord: onRecord,
	}
}

// Poll runs one full cycle: load checkpoint, call the plugin, stamp and
// publish each returned event, then persist the new checkpoint. It
// satisfies scheduler.PollFunc.
func (d *Driver) Poll(ctx context.Context) error {
	prior, err := d.store.Load(ctx, d.sourceID)
	if err != nil {
		d.recordFailure(fmt.Errorf("load checkpoint: %w", err))
		return err
	}

	pollCtx, cancel := context.WithTimeout(ctx, d.timeout)
	events, nextCheckpoint, err := d.plugin.Poll(pollCtx, prior)
	cancel()
	if err != nil {
		d.recordFailure(err)
		return err
	}

	for i := range events {
		ev, buildErr := d.stampAndPublish(ctx, events[i])
		if buildErr != nil {
			d.recordFailure(buildErr)
			return buildErr
		}
		_ = ev
	}

	if len(nextCheckpoint) > 0 {
		if err := d.store.Save(ctx, d.sourceID, nextCheckpoint); err != nil {
			d.recordFailure(fmt.Errorf("save checkpoint: %w", err))
			return err
		}
	}

	d.recordSuccess(len(events))
	return nil
}

// Push runs the push-model equivalent of Poll for a single inbound
// webhook request's decoded events: stamp and publish, skipping
// checkpoint I/O entirely (push sources own their own replay state, if
// any, plugin-side).
func (d *Driver) Push(ctx context.Context, events []domain.SourceEvent) ([]*domain.Event, error) {
	published := make([]*domain.Event, 0, len(events))
	for i := range events {
		ev, err := d.stampAndPublish(ctx, events[i])
		if err != nil {
			return published, err
		}
		published = append(published, ev)
	}
	d.recordSuccess(len(events))
	return published, nil
}

func (d *Driver) stampAndPublish(ctx context.Context, se domain.SourceEvent) (*domain.Event, error) {
	ev, err := domain.Build(d.sourceID, se.Type, se.Provenance, se.Payload)
	if err != nil {
		return nil, fmt.Errorf("build event: %w", err)
	}
	if err := d.bus.Publish(ctx, ev); err != nil {
		return nil, domain.Wrap(domain.ErrKindBusPublish, d.sourceID, err)
	}
	return ev, nil
}

func (d *Driver) recordFailure(err error) {
	d.mu.Lock()
	d.consecutiveFailures++
	d.lastError = err.Error()
	d.lastPollAt = time.Now()
	d.mu.Unlock()

	if d.onRecord != nil {
		d.onRecord("source", "error", map[string]any{"source_id": d.sourceID, "error": err.Error()})
	}
}

func (d *Driver) recordSuccess(eventCount int) {
	d.mu.Lock()
	d.consecutiveFailures = 0
	d.lastError = ""
	d.lastPollAt = time.Now()
	d.eventsInWindow = eventCount
	d.mu.Unlock()

	if d.onRecord != nil {
		d.onRecord("source", "ok", map[string]any{"source_id": d.sourceID, "events": eventCount})
	}
}

// Health reports the driver's current status.
func (d *Driver) Health() Health {
	d.mu.Lock()
	defer d.mu.Unlock()

	status := HealthHealthy
	switch {
	case d.consecutiveFailures >= degradedAfter:
		status = HealthUnhealthy
	case d.consecutiveFailures > 0:
		status = HealthDegraded
	}

	return Health{
		Status:              status,
		LastPollAt:          d.lastPollAt,
		LastError:           d.lastError,
		ConsecutiveFailures: d.consecutiveFailures,
		EventsInWindow:      d.eventsInWindow,
	}
}
