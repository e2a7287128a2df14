// Package transform runs the ordered chain of transform stages a route
// configures before handing the resulting event to its actors.
package transform

import (
	"context"
	"fmt"

	"github.com/relayd/relayd/internal/domain"
)

// Stage is one runnable transform: either an in-process plugin or a
// subprocess script, both reduced to this single method by their
// respective adapters (Package and Script below).
type Stage interface {
	Name() string
	Run(ctx context.Context, ev *domain.Event) (payload map[string]any, drop bool, err error)
}

// RecordFunc receives one log-worthy event from pipeline execution, namely
// a fail-open stage error that Run itself swallows.
type RecordFunc func(phase, result string, fields map[string]any)

// Pipeline runs a route's ordered transform steps against an event,
// applying each step's fail-open/fail-closed policy on error, and reports
// whether the event survives to delivery.
type Pipeline struct {
	steps    []configuredStage
	onRecord RecordFunc
}

type configuredStage struct {
	stage      Stage
	failClosed bool
}

// New builds a Pipeline from a route's transform steps and the resolved
// stage for each step name. stages must contain an entry for every name
// referenced by steps; New returns an ErrKindConfig error naming the first
// step that has none.
// onRecord, if non-nil, receives a "transform"/"error" record for every
// fail-open stage error Run swallows; nil is fine for callers (such as
// tests) that don't need the log stream.
func New(steps []domain.TransformStep, stages map[string]Stage, onRecord RecordFunc) (*Pipeline, error) {
	p := &Pipeline{onRecord: onRecord}
	for _, step := range steps {
		s, ok := stages[step.Name]
		if !ok {
			return nil, domain.Wrap(domain.ErrKindConfig, step.Name, fmt.Errorf("no transform registered for step %q", step.Name))
		}
		p.steps = append(p.steps, configuredStage{stage: s, failClosed: step.FailClosed()})
	}
	return p, nil
}

// Run executes every stage in order against ev, threading the modified
// payload through via Event.CopyModified. Returns the final event and
// whether it survived (false if any stage dropped it, or a fail-closed
// stage errored).
func (p *Pipeline) Run(ctx context.Context, ev *domain.Event) (*domain.Event, bool, error) {
	cur := ev
	for _, cs := range p.steps {
		payload, drop, err := cs.stage.Run(ctx, cur)
		if err != nil {
			if cs.failClosed {
				return nil, false, domain.Wrap(domain.ErrKindTransform, cs.stage.Name(), err)
			}
			// fail-open: keep the event unmodified by this stage and
			// continue to the next one.
			p.record("error", map[string]any{"transform": cs.stage.Name(), "event_id": ev.ID, "policy": "fail_open", "error": err.Error()})
			continue
		}
		if drop {
			return nil, false, nil
		}
		cur = cur.CopyModified(payload)
	}
	return cur, true, nil
}

func (p *Pipeline) record(result string, fields map[string]any) {
	if p.onRecord == nil {
		return
	}
	p.onRecord("transform", result, fields)
}
