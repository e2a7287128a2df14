package transform

import (
	"context"

	"github.com/relayd/relayd/internal/domain"
)

// Package adapts an in-process domain.TransformPlugin to the Stage
// interface. Unlike Script, a package transform runs in the runtime's own
// process: no subprocess boundary, no JSON round-trip, just a direct call.
type Package struct {
	name   string
	plugin domain.TransformPlugin
}

// NewPackage returns a Package stage that delegates to plugin.
func NewPackage(name string, plugin domain.TransformPlugin) *Package {
	return &Package{name: name, plugin: plugin}
}

func (p *Package) Name() string { return p.name }

func (p *Package) Run(ctx context.Context, ev *domain.Event) (map[string]any, bool, error) {
	payload, ok, err := p.plugin.Transform(ctx, ev)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, true, nil
	}
	return payload, false, nil
}

var _ Stage = (*Package)(nil)
