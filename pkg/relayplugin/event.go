// Package relayplugin is the contract external plugin processes build
// against. A plugin is a separate executable that speaks the JSON-RPC
// protocol in rpc.go over its stdin/stdout; this package defines the wire
// shape of events and requests so both sides agree on field names without
// sharing Go code.
package relayplugin

import "time"

// EventType mirrors the closed set relayd's domain package enforces.
// Defined independently here (rather than importing internal/domain) so
// this package stays importable by plugin binaries that are not part of
// the relayd module.
type EventType string

const (
	EventResourceChanged  EventType = "resource.changed"
	EventActorStopped     EventType = "actor.stopped"
	EventMessageReceived  EventType = "message.received"
)

// Event is the wire form of an event crossing the plugin boundary, in
// either direction: a source plugin returns these from a poll/push call,
// and an actor/transform plugin receives one fully stamped by relayd.
type Event struct {
	ID         string         `json:"id"`
	SourceID   string         `json:"source_id,omitempty"`
	Type       EventType      `json:"type"`
	TraceID    string         `json:"trace_id,omitempty"`
	Timestamp  time.Time      `json:"timestamp,omitempty"`
	Provenance map[string]any `json:"provenance,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}
