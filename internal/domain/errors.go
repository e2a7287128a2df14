package domain

import (
	"errors"
	"fmt"
)

// ErrKind classifies every error relayd can produce at runtime. The runtime
// uses the kind, not the error's text, to decide whether a failure is
// retryable or whether it should fail a module load.
type ErrKind int

const (
	// ErrKindUnknown is the zero value; wrapping with this kind is a bug.
	ErrKindUnknown ErrKind = iota

	// ErrKindConfig covers malformed or inconsistent project configuration
	// (duplicate module names, unknown plugin kind). An unresolved ${VAR}
	// reference with no default is not an error: config.Parse keeps it
	// verbatim in the value.
	ErrKindConfig

	// ErrKindPluginInit covers a plugin's init call failing or timing out.
	ErrKindPluginInit

	// ErrKindTransientIO covers a source poll or actor delivery failing in
	// a way the scheduler should retry with backoff (network errors,
	// subprocess pipe errors).
	ErrKindTransientIO

	// ErrKindTransform covers a transform stage raising an error, whether
	// it ultimately fails open or fails closed is decided by the
	// transform's own configuration, not by this kind.
	ErrKindTransform

	// ErrKindActorRejected covers an actor explicitly rejecting a
	// delivered event (as opposed to failing to receive it at all).
	ErrKindActorRejected

	// ErrKindBusPublish covers the event bus itself failing to accept or
	// persist a published event.
	ErrKindBusPublish

	// ErrKindWebhookValidation covers an inbound webhook request that a
	// push-capable source rejects as malformed or unauthenticated.
	ErrKindWebhookValidation

	// ErrKindPluginPanic covers a plugin call recovering from a panic; the
	// runtime treats this the same as a crash for restart/backoff
	// purposes but keeps the distinct kind for observability.
	ErrKindPluginPanic

	// ErrKindFatal covers an error the runtime cannot recover from and
	// that should cause relayd to shut down (state directory unwritable,
	// control API listener failed to bind).
	ErrKindFatal
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindConfig:
		return "config"
	case ErrKindPluginInit:
		return "plugin_init"
	case ErrKindTransientIO:
		return "transient_io"
	case ErrKindTransform:
		return "transform"
	case ErrKindActorRejected:
		return "actor_rejected"
	case ErrKindBusPublish:
		return "bus_publish"
	case ErrKindWebhookValidation:
		return "webhook_validation"
	case ErrKindPluginPanic:
		return "plugin_panic"
	case ErrKindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// RuntimeError wraps an underlying error with a classification and the
// module/source/actor name it originated from, so the logger manager and
// scheduler can act on the kind without parsing error text.
type RuntimeError struct {
	Kind   ErrKind
	Module string
	Err    error
}

func (e *RuntimeError) Error() string {
	if e.Module != "" {
		return fmt.Sprintf("relayd: %s[%s]: %v", e.Kind, e.Module, e.Err)
	}
	return fmt.Sprintf("relayd: %s: %v", e.Kind, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// Wrap builds a *RuntimeError attributing err to module under kind.
func Wrap(kind ErrKind, module string, err error) *RuntimeError {
	return &RuntimeError{Kind: kind, Module: module, Err: err}
}

// KindOf extracts the ErrKind from err if it is, or wraps, a *RuntimeError.
// Errors that were never classified report ErrKindUnknown.
func KindOf(err error) ErrKind {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ErrKindUnknown
}

// Retryable reports whether the scheduler should retry the operation that
// produced err with backoff, as opposed to treating it as a permanent
// failure for this cycle.
func Retryable(err error) bool {
	switch KindOf(err) {
	case ErrKindTransientIO, ErrKindPluginPanic:
		return true
	default:
		return false
	}
}

// Sentinel errors returned by components that have no more specific
// classification to attach; callers wrap these with Wrap when propagating
// across a component boundary.
var (
	ErrNotFound      = errors.New("relayd: not found")
	ErrAlreadyExists = errors.New("relayd: already exists")
	ErrClosed        = errors.New("relayd: closed")
	ErrTimeout       = errors.New("relayd: timed out")
)
