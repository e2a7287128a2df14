package domain

import "time"

// ProjectConfig is the fully decoded, environment-substituted project
// configuration: the set of sources, actors, transforms, routes, and
// loggers relayd loads at startup, plus global runtime settings.
type ProjectConfig struct {
	StateDir   string           `yaml:"state_dir" json:"state_dir"`
	Bus        BusConfig        `yaml:"bus" json:"bus"`
	ControlAPI ControlAPIConfig `yaml:"control_api" json:"control_api"`
	Webhook    WebhookConfig    `yaml:"webhook" json:"webhook"`

	// GracefulStop bounds how long shutdown waits for in-flight polls and
	// deliveries to finish before abandoning them.
	GracefulStop time.Duration `yaml:"graceful_stop,omitempty" json:"graceful_stop,omitempty"`

	Sources    []PluginConfig `yaml:"sources" json:"sources"`
	Actors     []PluginConfig `yaml:"actors" json:"actors"`
	Transforms []PluginConfig `yaml:"transforms" json:"transforms"`
	Loggers    []PluginConfig `yaml:"loggers" json:"loggers"`
	Routes     []RouteConfig  `yaml:"routes" json:"routes"`
	Modules    []ModuleConfig `yaml:"modules" json:"modules"`
}

// BusConfig selects and tunes the event bus implementation.
type BusConfig struct {
	// Durable selects the SQLite-backed WAL bus when true, the in-memory
	// bus otherwise.
	Durable bool   `yaml:"durable" json:"durable"`
	Path    string `yaml:"path" json:"path"`
	// QueueSize bounds the per-subscriber delivery queue.
	QueueSize int `yaml:"queue_size" json:"queue_size"`
}

// ControlAPIConfig configures the loopback HTTP control surface.
type ControlAPIConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// WebhookConfig configures the HTTP listener that receives inbound webhook
// deliveries for push-capable source plugins.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// GetGracefulStop returns the configured graceful shutdown window,
// defaulting to 10s.
func (c ProjectConfig) GetGracefulStop() time.Duration {
	if c.GracefulStop <= 0 {
		return 10 * time.Second
	}
	return c.GracefulStop
}

// PluginConfig is the shared shape for configuring a source, actor,
// transform, or logger plugin instance, whether it is a built-in Go
// implementation or an external subprocess.
type PluginConfig struct {
	Name string `yaml:"name" json:"name"`
	// Kind selects a built-in factory (e.g. "http_poll", "http_post") or, when
	// Command is set, is purely descriptive.
	Kind    string            `yaml:"kind" json:"kind"`
	Command string            `yaml:"command,omitempty" json:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Enabled *bool             `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Timeout time.Duration     `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// Interval and Jitter apply to source plugins polled by the scheduler.
	Interval time.Duration `yaml:"interval,omitempty" json:"interval,omitempty"`
	Jitter   time.Duration `yaml:"jitter,omitempty" json:"jitter,omitempty"`

	// PromptFile is decoded from an actor's config but not read by the
	// actor driver, which resolves prompt files only from a route's With
	// "prompt_file" key.
	PromptFile string `yaml:"prompt_file,omitempty" json:"prompt_file,omitempty"`

	Config map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

// IsEnabled reports whether the plugin should be loaded, defaulting to true
// when Enabled is unset.
func (c PluginConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// GetTimeout returns the configured timeout, defaulting to 30s.
func (c PluginConfig) GetTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return c.Timeout
}

// GetInterval returns the configured poll interval, defaulting to 60s.
func (c PluginConfig) GetInterval() time.Duration {
	if c.Interval <= 0 {
		return 60 * time.Second
	}
	return c.Interval
}

// RouteConfig declares one routing rule: which events match, which
// transforms to run in order, and which actor(s) receive the result.
type RouteConfig struct {
	Name       string          `yaml:"name" json:"name"`
	Match      RouteMatch      `yaml:"match" json:"match"`
	Transforms []TransformStep `yaml:"transforms,omitempty" json:"transforms,omitempty"`
	Actors     []string        `yaml:"actors" json:"actors"`

	// With is the opaque delivery-configuration map passed alongside the
	// event to every actor this route targets. A "prompt_file" key is
	// resolved from disk by the actor driver before delivery.
	With map[string]any `yaml:"with,omitempty" json:"with,omitempty"`
}

// RouteMatch is the filter a route applies to every bus event: an exact
// source id (source), a type set (types), a map of dot-path field
// predicates (fields) — each either a single scalar or a list of scalars
// to match against a set — and provenance labels that must all be present
// with equal values (labels).
type RouteMatch struct {
	Source string         `yaml:"source,omitempty" json:"source,omitempty"`
	Types  []EventType    `yaml:"types,omitempty" json:"types,omitempty"`
	Fields map[string]any `yaml:"fields,omitempty" json:"fields,omitempty"`
	Labels map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// TransformStep references a configured transform plugin by name and
// declares its failure policy for this route.
type TransformStep struct {
	Name    string `yaml:"name" json:"name"`
	OnError string `yaml:"on_error" json:"on_error"` // "fail_open" | "fail_closed"
}

// FailClosed reports whether a transform error on this step should drop the
// event rather than pass it through unmodified.
func (s TransformStep) FailClosed() bool {
	return s.OnError == "fail_closed"
}

// ModuleConfig names a deployable unit bundling a subset of the project's
// sources/actors/transforms/routes under one lifecycle.
type ModuleConfig struct {
	Name    string   `yaml:"name" json:"name"`
	Sources []string `yaml:"sources,omitempty" json:"sources,omitempty"`
	Actors  []string `yaml:"actors,omitempty" json:"actors,omitempty"`
	Routes  []string `yaml:"routes,omitempty" json:"routes,omitempty"`
}
