package domain

import (
	"context"
	"time"
)

// PluginInfo describes a loaded plugin instance, independent of its kind.
type PluginInfo struct {
	Name        string
	Version     string
	Description string
}

// Plugin is the base interface every plugin kind embeds. A plugin is
// initialized once when its owning module loads and shut down once when the
// module unloads or reloads.
type Plugin interface {
	Init(ctx context.Context, config map[string]any) error
	Shutdown(ctx context.Context) error
	Info() PluginInfo
}

// SourcePlugin produces events, either by being polled on a schedule (the
// pull model) or by accepting pushed webhook requests (the push model, see
// PushCapable). Poll returns the events observed since the last checkpoint
// together with the checkpoint to persist for the next call.
type SourcePlugin interface {
	Plugin

	// Poll is called by the scheduler on each tick. checkpoint is the value
	// most recently returned by a prior Poll (or nil on first run); the
	// plugin returns the events it observed and the checkpoint value to
	// persist, which is handed back verbatim on the next call.
	Poll(ctx context.Context, checkpoint []byte) (events []SourceEvent, nextCheckpoint []byte, err error)
}

// SourceEvent is a single observation a source plugin reports from a Poll
// call or a push delivery, before the source driver stamps it into a full
// domain.Event.
type SourceEvent struct {
	Type       EventType
	Provenance map[string]any
	Payload    map[string]any
}

// PushCapable is an optional capability a SourcePlugin may additionally
// implement to accept webhook deliveries instead of, or in addition to,
// being polled. The module instance type-asserts for this interface when
// deciding whether to register a webhook route for the source.
type PushCapable interface {
	// HandlePush validates and decodes an inbound webhook request body,
	// returning the events it produced. A non-nil error of kind
	// ErrKindWebhookValidation causes the ingress to respond 4xx instead
	// of 2xx without retrying.
	HandlePush(ctx context.Context, method string, headers map[string][]string, body []byte) ([]SourceEvent, error)
}

// ActorDeliveryResult classifies the outcome of an ActorPlugin.Deliver call.
type ActorDeliveryResult int

const (
	// ActorDelivered means the actor accepted the event.
	ActorDelivered ActorDeliveryResult = iota
	// ActorRejected means the actor explicitly refused the event; this is
	// not retried.
	ActorRejected
	// ActorError means delivery failed for a retriable reason; the actor
	// driver retries it with backoff.
	ActorError
)

// ActorPlugin receives transformed events that matched a route.
type ActorPlugin interface {
	Plugin

	// Deliver hands ev to the actor and blocks until it is accepted,
	// rejected, or the context deadline expires.
	Deliver(ctx context.Context, ev *Event) (ActorDeliveryResult, error)
}

// TransformPlugin is the in-process variant of a transform stage. Transform
// returns the modified payload, or ok=false to signal the event should be
// dropped (equivalent to a script transform exiting 78).
type TransformPlugin interface {
	Plugin

	Transform(ctx context.Context, ev *Event) (payload map[string]any, ok bool, err error)
}

// LoggerPlugin receives LogRecords from the logger manager's fan-out. Unlike
// source/actor/transform plugins, a logger must never block routing: Log is
// always called from the logger manager's own per-sink goroutine, never
// from the event path directly.
type LoggerPlugin interface {
	Plugin

	Log(ctx context.Context, rec LogRecord) error
}

// LogRecord is one structured entry the logger manager fans out to every
// configured logger sink.
type LogRecord struct {
	Timestamp time.Time
	Phase     string // e.g. "route", "transform", "deliver"
	Module    string
	EventID   string
	TraceID   string
	Route     string
	Result    string
	Fields    map[string]any
}
