// Package config loads a relayd project configuration file: YAML decode
// with ${VAR} environment substitution, followed by the structural checks
// that turn a syntactically valid file into a domain.ProjectConfig the
// runtime can act on.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/relayd/relayd/internal/domain"
)

// Load reads and decodes the project configuration at path. Missing file
// is an error here, unlike the teacher's plugin loader which treats a
// missing plugins file as "no plugins configured" — a missing project
// config has no sensible empty default since state_dir is required.
func Load(path string) (*domain.ProjectConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.Wrap(domain.ErrKindConfig, path, fmt.Errorf("read config: %w", err))
	}
	return Parse(raw)
}

// Parse decodes raw YAML bytes into a domain.ProjectConfig, substituting
// ${VAR} references against the process environment before decoding and
// validating the result.
func Parse(raw []byte) (*domain.ProjectConfig, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, domain.Wrap(domain.ErrKindConfig, "", fmt.Errorf("parse yaml: %w", err))
	}
	substituteEnv(&root)

	var cfg domain.ProjectConfig
	if err := root.Decode(&cfg); err != nil {
		return nil, domain.Wrap(domain.ErrKindConfig, "", fmt.Errorf("decode config: %w", err))
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks structural invariants Parse cannot express through
// struct tags alone: required fields, duplicate names across the plugin
// lists, and routes referring to actors that exist.
func Validate(cfg *domain.ProjectConfig) error {
	if cfg.StateDir == "" {
		return domain.Wrap(domain.ErrKindConfig, "", fmt.Errorf("state_dir is required"))
	}

	actorNames := map[string]bool{}
	for _, a := range cfg.Actors {
		if actorNames[a.Name] {
			return domain.Wrap(domain.ErrKindConfig, a.Name, fmt.Errorf("duplicate actor name %q", a.Name))
		}
		actorNames[a.Name] = true
	}

	sourceNames := map[string]bool{}
	for _, s := range cfg.Sources {
		if sourceNames[s.Name] {
			return domain.Wrap(domain.ErrKindConfig, s.Name, fmt.Errorf("duplicate source name %q", s.Name))
		}
		sourceNames[s.Name] = true
	}

	transformNames := map[string]bool{}
	for _, tr := range cfg.Transforms {
		if transformNames[tr.Name] {
			return domain.Wrap(domain.ErrKindConfig, tr.Name, fmt.Errorf("duplicate transform name %q", tr.Name))
		}
		transformNames[tr.Name] = true
	}

	for _, r := range cfg.Routes {
		if r.Name == "" {
			return domain.Wrap(domain.ErrKindConfig, "", fmt.Errorf("route has no name"))
		}
		if r.Match.Source != "" && !sourceNames[r.Match.Source] {
			return domain.Wrap(domain.ErrKindConfig, r.Name, fmt.Errorf("route %q references unknown source %q", r.Name, r.Match.Source))
		}
		for _, a := range r.Actors {
			if !actorNames[a] {
				return domain.Wrap(domain.ErrKindConfig, r.Name, fmt.Errorf("route %q references unknown actor %q", r.Name, a))
			}
		}
		for _, step := range r.Transforms {
			if !transformNames[step.Name] {
				return domain.Wrap(domain.ErrKindConfig, r.Name, fmt.Errorf("route %q references unknown transform %q", r.Name, step.Name))
			}
			if step.OnError != "fail_open" && step.OnError != "fail_closed" {
				return domain.Wrap(domain.ErrKindConfig, r.Name, fmt.Errorf("route %q transform %q has invalid on_error %q", r.Name, step.Name, step.OnError))
			}
		}
	}
	return nil
}
