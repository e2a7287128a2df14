package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType is the closed set of event kinds relayd routes. Unlike a plugin's
// own internal notion of "what happened", every event on the bus is coerced
// into one of these three shapes before it reaches a route.
type EventType string

const (
	// EventResourceChanged fires when a source observes a resource create,
	// update, or delete.
	EventResourceChanged EventType = "resource.changed"

	// EventActorStopped is emitted by a source that observes an actor exit,
	// crash, or otherwise stop producing; the actor driver only delivers
	// events and never publishes one.
	EventActorStopped EventType = "actor.stopped"

	// EventMessageReceived fires when a source or webhook ingress accepts an
	// inbound message.
	EventMessageReceived EventType = "message.received"
)

// Valid reports whether t is one of the three event kinds relayd knows how
// to route.
func (t EventType) Valid() bool {
	switch t {
	case EventResourceChanged, EventActorStopped, EventMessageReceived:
		return true
	default:
		return false
	}
}

// Event is the envelope every source produces and every route matches
// against. Provenance carries source-supplied metadata (labels, entity ids)
// that routes may filter on; Payload carries the event body itself.
type Event struct {
	ID         string                 `json:"id"`
	SourceID   string                 `json:"source_id"`
	Type       EventType              `json:"type"`
	TraceID    string                 `json:"trace_id"`
	Timestamp  time.Time              `json:"timestamp"`
	Provenance map[string]any         `json:"provenance,omitempty"`
	Payload    map[string]any         `json:"payload,omitempty"`
}

// Build constructs an Event with a freshly minted id and trace id, stamping
// the current time. sourceID and typ are required; provenance/payload may be
// nil, in which case empty maps are used.
func Build(sourceID string, typ EventType, provenance, payload map[string]any) (*Event, error) {
	if sourceID == "" {
		return nil, fmt.Errorf("domain: event source_id must not be empty")
	}
	if !typ.Valid() {
		return nil, fmt.Errorf("domain: event type %q is not one of the known event types", typ)
	}
	if provenance == nil {
		provenance = map[string]any{}
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return &Event{
		ID:         "evt_" + uuid.New().String(),
		SourceID:   sourceID,
		Type:       typ,
		TraceID:    "trc_" + uuid.New().String(),
		Timestamp:  time.Now().UTC(),
		Provenance: provenance,
		Payload:    payload,
	}, nil
}

// WithTraceID returns a shallow copy of e with TraceID replaced. Used when a
// transform or actor needs to propagate an externally supplied trace id
// instead of the one minted at Build time.
func (e *Event) WithTraceID(traceID string) *Event {
	cp := *e
	cp.TraceID = traceID
	return &cp
}

// CopyModified returns a deep-enough copy of e with payload replaced by
// newPayload, used by the transform pipeline so each stage operates on its
// own copy and a fail-open stage can be skipped without mutating the
// original event seen by later route evaluation.
func (e *Event) CopyModified(newPayload map[string]any) *Event {
	cp := *e
	cp.Payload = newPayload
	provenance := make(map[string]any, len(e.Provenance))
	for k, v := range e.Provenance {
		provenance[k] = v
	}
	cp.Provenance = provenance
	return &cp
}
