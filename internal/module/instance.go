// Package module implements the per-module lifecycle state machine: a
// module owns a set of sources, actors, and routes loaded from one
// configuration, and runs its own route matcher over every event the bus
// delivers to it.
package module

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/relayd/relayd/internal/actordriver"
	"github.com/relayd/relayd/internal/bus"
	"github.com/relayd/relayd/internal/checkpoint"
	"github.com/relayd/relayd/internal/domain"
	"github.com/relayd/relayd/internal/route"
	"github.com/relayd/relayd/internal/scheduler"
	"github.com/relayd/relayd/internal/sourcedriver"
	"github.com/relayd/relayd/internal/transform"
	"github.com/relayd/relayd/internal/webhook"
)

// State is a module's position in its lifecycle state machine.
type State string

const (
	StateLoading   State = "loading"
	StateActive    State = "active"
	StateUnloading State = "unloading"
	StateRemoved   State = "removed"
	StateFailed    State = "failed"
)

// SourceSpec pairs a source plugin with its configuration, not yet
// initialized.
type SourceSpec struct {
	Config domain.PluginConfig
	Plugin domain.SourcePlugin
}

// ActorSpec pairs an actor plugin with its configuration, not yet
// initialized.
type ActorSpec struct {
	Config domain.PluginConfig
	Plugin domain.ActorPlugin
}

// RecordFunc receives one log-worthy event from the module's processing.
type RecordFunc func(phase, result string, fields map[string]any)

// Instance owns one module's sources, actors, and routes for its entire
// lifetime, from Load through Unload.
type Instance struct {
	name        string
	checkpoints checkpoint.Store
	eventBus    bus.Bus
	sched       *scheduler.Scheduler
	ingress     *webhook.Ingress
	onRecord    RecordFunc

	sourceSpecs []SourceSpec
	actorSpecs  []ActorSpec
	routes      []domain.RouteConfig
	stages      map[string]transform.Stage

	mu            sync.RWMutex
	state         State
	sourceDrivers map[string]*sourcedriver.Driver
	actorDrivers  map[string]*actordriver.Driver
	pipelines     map[string]*transform.Pipeline
	subID         string
}

// New returns a module instance in no state (not yet loaded). stages must
// contain an entry for every transform name referenced by routes.
func New(name string, sources []SourceSpec, actors []ActorSpec, routes []domain.RouteConfig, stages map[string]transform.Stage, checkpoints checkpoint.Store, eventBus bus.Bus, sched *scheduler.Scheduler, ingress *webhook.Ingress, onRecord RecordFunc) *Instance {
	return &Instance{
		name:        name,
		checkpoints: checkpoints,
		eventBus:    eventBus,
		sched:       sched,
		ingress:     ingress,
		onRecord:    onRecord,
		sourceSpecs: sources,
		actorSpecs:  actors,
		routes:      routes,
		stages:      stages,
	}
}

// Name returns the module's configured name.
func (m *Instance) Name() string { return m.name }

// State reports the module's current lifecycle state.
func (m *Instance) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Load instantiates every source/actor plugin, builds the route
// pipelines, registers sources with the scheduler (and the webhook
// ingress, if push-capable), and subscribes the module's processor to the
// bus. On any failure the module transitions to StateFailed and every
// plugin already initialized is shut down.
func (m *Instance) Load(ctx context.Context) error {
	m.mu.Lock()
	if m.state != "" {
		m.mu.Unlock()
		return fmt.Errorf("module %q: Load called from state %q", m.name, m.state)
	}
	m.state = StateLoading
	m.mu.Unlock()

	sourceDrivers := make(map[string]*sourcedriver.Driver, len(m.sourceSpecs))
	actorDrivers := make(map[string]*actordriver.Driver, len(m.actorSpecs))

	var initialized []domain.Plugin
	fail := func(err error) error {
		for _, p := range initialized {
			_ = p.Shutdown(ctx)
		}
		m.mu.Lock()
		m.state = StateFailed
		m.mu.Unlock()
		return domain.Wrap(domain.ErrKindPluginInit, m.name, err)
	}

	for _, spec := range m.sourceSpecs {
		if err := spec.Plugin.Init(ctx, spec.Config.Config); err != nil {
			return fail(fmt.Errorf("init source %q: %w", spec.Config.Name, err))
		}
		initialized = append(initialized, spec.Plugin)
		sourceDrivers[spec.Config.Name] = sourcedriver.New(spec.Config.Name, spec.Plugin, m.checkpoints, m.eventBus, spec.Config.GetTimeout(), m.record)
	}

	for _, spec := range m.actorSpecs {
		if err := spec.Plugin.Init(ctx, spec.Config.Config); err != nil {
			return fail(fmt.Errorf("init actor %q: %w", spec.Config.Name, err))
		}
		initialized = append(initialized, spec.Plugin)
		actorDrivers[spec.Config.Name] = actordriver.New(spec.Config.Name, spec.Plugin, spec.Config.GetTimeout(), 3, m.record)
	}

	pipelines := make(map[string]*transform.Pipeline, len(m.routes))
	for _, r := range m.routes {
		p, err := transform.New(r.Transforms, m.stages, transform.RecordFunc(m.record))
		if err != nil {
			return fail(fmt.Errorf("build pipeline for route %q: %w", r.Name, err))
		}
		pipelines[r.Name] = p
	}

	subID, err := m.eventBus.Subscribe(ctx, "module:"+m.name, bus.HandlerFunc(m.process))
	if err != nil {
		return fail(fmt.Errorf("subscribe processor: %w", err))
	}

	m.mu.Lock()
	m.sourceDrivers = sourceDrivers
	m.actorDrivers = actorDrivers
	m.pipelines = pipelines
	m.subID = subID
	m.state = StateActive
	m.mu.Unlock()

	for i, spec := range m.sourceSpecs {
		driver := sourceDrivers[spec.Config.Name]
		if err := m.sched.Register(spec.Config.Name, spec.Config.GetInterval(), spec.Config.Jitter, 0, driver.Poll); err != nil {
			for _, prev := range m.sourceSpecs[:i] {
				_ = m.sched.Unregister(prev.Config.Name)
				if m.ingress != nil {
					m.ingress.Unregister(prev.Config.Name)
				}
			}
			_ = m.eventBus.Unsubscribe(subID)
			_ = fail(err)
			return domain.Wrap(domain.ErrKindFatal, m.name, fmt.Errorf("register scheduler task for %q: %w", spec.Config.Name, err))
		}
		if push, ok := domain.IsPushCapable(spec.Plugin); ok && m.ingress != nil {
			m.ingress.Register(spec.Config.Name, push, driver)
		}
	}

	return nil
}

func (m *Instance) process(ctx context.Context, ev *domain.Event) error {
	m.mu.RLock()
	if m.state != StateActive {
		m.mu.RUnlock()
		return nil
	}
	routes := m.routes
	pipelines := m.pipelines
	actorDrivers := m.actorDrivers
	m.mu.RUnlock()

	matched := route.Match(routes, ev)
	if len(matched) == 0 {
		m.record("match", "none", map[string]any{"event_id": ev.ID})
		return nil
	}
	for _, r := range matched {
		m.record("match", "matched", map[string]any{"route": r.Name, "event_id": ev.ID})

		pipeline := pipelines[r.Name]
		finalEv, ok, err := pipeline.Run(ctx, ev)
		if err != nil {
			m.record("transform", "error", map[string]any{"route": r.Name, "event_id": ev.ID, "error": err.Error()})
			continue
		}
		if !ok {
			m.record("transform", "drop", map[string]any{"route": r.Name, "event_id": ev.ID})
			continue
		}
		for _, actorName := range r.Actors {
			driver, ok := actorDrivers[actorName]
			if !ok {
				continue
			}
			if _, err := driver.Deliver(ctx, finalEv, r.With); err != nil {
				m.record("deliver", "error", map[string]any{"route": r.Name, "actor": actorName, "event_id": finalEv.ID, "error": err.Error()})
			}
		}
	}
	return nil
}

// Unload deregisters sources from the scheduler, stops the webhook
// ingress routes, unsubscribes the processor, waits up to gracefulStop
// for in-flight deliveries to finish, and shuts down every plugin.
func (m *Instance) Unload(ctx context.Context, gracefulStop time.Duration) error {
	m.mu.Lock()
	if m.state != StateActive {
		m.mu.Unlock()
		return fmt.Errorf("module %q: Unload called from state %q", m.name, m.state)
	}
	m.state = StateUnloading
	sourceDrivers := m.sourceDrivers
	actorDrivers := m.actorDrivers
	subID := m.subID
	m.mu.Unlock()

	for _, spec := range m.sourceSpecs {
		_ = m.sched.Unregister(spec.Config.Name)
		if m.ingress != nil {
			m.ingress.Unregister(spec.Config.Name)
		}
	}
	_ = m.eventBus.Unsubscribe(subID)

	m.waitForDrain(actorDrivers, gracefulStop)

	for _, spec := range m.sourceSpecs {
		_ = spec.Plugin.Shutdown(ctx)
	}
	for _, spec := range m.actorSpecs {
		_ = spec.Plugin.Shutdown(ctx)
	}
	_ = sourceDrivers

	m.mu.Lock()
	m.state = StateRemoved
	m.mu.Unlock()
	return nil
}

func (m *Instance) waitForDrain(actorDrivers map[string]*actordriver.Driver, gracefulStop time.Duration) {
	deadline := time.Now().Add(gracefulStop)
	for time.Now().Before(deadline) {
		inFlight := 0
		for _, d := range actorDrivers {
			inFlight += d.InFlight()
		}
		if inFlight == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (m *Instance) record(phase, result string, fields map[string]any) {
	if m.onRecord == nil {
		return
	}
	m.onRecord(phase, result, fields)
}

// Health reports per-source health for every source this module owns.
func (m *Instance) Health() map[string]sourcedriver.Health {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]sourcedriver.Health, len(m.sourceDrivers))
	for name, d := range m.sourceDrivers {
		out[name] = d.Health()
	}
	return out
}
