// Package runtime assembles every other component into the single
// long-lived process: it owns the bus, scheduler, logger manager, webhook
// ingress, module registry, and control API, and sequences startup and
// graceful shutdown.
package runtime

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/relayd/relayd/internal/builtins"
	"github.com/relayd/relayd/internal/bus"
	"github.com/relayd/relayd/internal/checkpoint"
	"github.com/relayd/relayd/internal/control"
	"github.com/relayd/relayd/internal/domain"
	"github.com/relayd/relayd/internal/logging"
	"github.com/relayd/relayd/internal/module"
	"github.com/relayd/relayd/internal/obslog"
	"github.com/relayd/relayd/internal/pluginloader"
	"github.com/relayd/relayd/internal/scheduler"
	"github.com/relayd/relayd/internal/transform"
	"github.com/relayd/relayd/internal/webhook"
)

// Runtime is the top-level process: one per relayd invocation, built from a
// fully validated domain.ProjectConfig and torn down on shutdown.
type Runtime struct {
	cfg     *domain.ProjectConfig
	baseDir string

	eventBus    bus.Bus
	checkpoints checkpoint.Store
	loggers     *logging.Manager
	sched       *scheduler.Scheduler
	ingress     *webhook.Ingress
	loader      *pluginloader.Loader
	registry    *module.Registry
	controlSrv  *control.Server
	webhookSrv  *http.Server

	mu            sync.RWMutex
	startedAt     time.Time
	moduleConfigs map[string]domain.ModuleConfig
	stages        map[string]transform.Stage
}

// New builds a Runtime from cfg without starting anything. baseDir is the
// directory relative plugin Command paths are resolved against (typically
// the project config file's directory).
func New(cfg *domain.ProjectConfig, baseDir string) *Runtime {
	moduleConfigs := make(map[string]domain.ModuleConfig, len(cfg.Modules))
	for _, m := range cfg.Modules {
		moduleConfigs[m.Name] = m
	}

	loader := pluginloader.New(baseDir)
	builtins.Register(loader)

	return &Runtime{
		cfg:           cfg,
		baseDir:       baseDir,
		loader:        loader,
		registry:      module.NewRegistry(),
		moduleConfigs: moduleConfigs,
	}
}

// Loader returns the plugin loader so callers (built-in registration at
// process startup, tests) can register built-in factories before Start.
func (r *Runtime) Loader() *pluginloader.Loader { return r.loader }

// Start builds the bus, checkpoint store, logger manager, scheduler,
// webhook ingress, and transform stages, brings up the control API and
// webhook listener (if enabled), and loads every configured module in
// declaration order.
func (r *Runtime) Start(ctx context.Context) error {
	if err := os.MkdirAll(r.cfg.StateDir, 0o755); err != nil {
		return domain.Wrap(domain.ErrKindFatal, "", fmt.Errorf("create state dir: %w", err))
	}

	eventBus, err := buildBus(r.cfg.Bus)
	if err != nil {
		return domain.Wrap(domain.ErrKindFatal, "", fmt.Errorf("build event bus: %w", err))
	}
	r.eventBus = eventBus

	checkpoints, err := checkpoint.NewFileStore(filepath.Join(r.cfg.StateDir, "checkpoints"))
	if err != nil {
		return domain.Wrap(domain.ErrKindFatal, "", fmt.Errorf("build checkpoint store: %w", err))
	}
	r.checkpoints = checkpoints

	r.loggers = logging.NewManager()
	if err := r.loadLoggers(ctx); err != nil {
		return err
	}

	r.sched = scheduler.New()
	r.ingress = webhook.New()

	stages, err := r.buildStages(ctx)
	if err != nil {
		return err
	}
	r.stages = stages

	r.startedAt = time.Now()

	if r.cfg.ControlAPI.Enabled {
		r.controlSrv = control.New(r, r.cfg.ControlAPI.Addr)
		if _, err := r.controlSrv.Start(); err != nil {
			return domain.Wrap(domain.ErrKindFatal, "", fmt.Errorf("start control API: %w", err))
		}
	}

	if r.cfg.Webhook.Enabled {
		r.webhookSrv = &http.Server{Addr: r.cfg.Webhook.Addr, Handler: r.ingress}
		ln, err := newListener(r.cfg.Webhook.Addr)
		if err != nil {
			return domain.Wrap(domain.ErrKindFatal, "", fmt.Errorf("start webhook ingress: %w", err))
		}
		go func() { _ = r.webhookSrv.Serve(ln) }()
	}

	for _, m := range r.cfg.Modules {
		if err := r.loadModuleConfig(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// Run starts the runtime and blocks until a termination signal is
// received, then performs a graceful shutdown within the configured
// graceful-stop window. A second signal within that window forces an
// immediate exit.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	<-sigCh
	obslog.Info("received shutdown signal")

	done := make(chan error, 1)
	go func() { done <- r.Shutdown(context.Background()) }()

	select {
	case err := <-done:
		return err
	case <-sigCh:
		obslog.Warn("second signal received, forcing immediate exit")
		os.Exit(1)
		return nil
	case <-time.After(r.cfg.GetGracefulStop()):
		obslog.Warn("graceful stop window elapsed, forcing exit")
		os.Exit(1)
		return nil
	}
}

// Shutdown stops the scheduler, unloads every module, flushes the logger
// manager, and stops the webhook and control listeners.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r.sched != nil {
		r.sched.StopAll()
	}

	for _, inst := range r.registry.List() {
		if inst.State() != module.StateActive {
			continue
		}
		_ = inst.Unload(ctx, r.cfg.GetGracefulStop())
		r.registry.Remove(inst.Name())
	}

	if r.loggers != nil {
		_ = r.loggers.Close(ctx)
	}

	if r.webhookSrv != nil {
		_ = r.webhookSrv.Shutdown(ctx)
	}
	if r.controlSrv != nil {
		_ = r.controlSrv.Stop(ctx)
	}
	return nil
}

// Status implements control.Controller.
func (r *Runtime) Status(ctx context.Context) control.StatusResponse {
	r.mu.RLock()
	startedAt := r.startedAt
	r.mu.RUnlock()

	var modules []control.ModuleStatus
	for _, inst := range r.registry.List() {
		sources := make(map[string]control.SourceHealth, len(inst.Health()))
		for name, h := range inst.Health() {
			sources[name] = control.SourceHealth{
				Status:              string(h.Status),
				LastPollAt:          h.LastPollAt,
				LastError:           h.LastError,
				ConsecutiveFailures: h.ConsecutiveFailures,
				EventsInWindow:      h.EventsInWindow,
			}
		}
		modules = append(modules, control.ModuleStatus{Name: inst.Name(), State: string(inst.State()), Sources: sources})
	}
	return control.StatusResponse{Uptime: time.Since(startedAt).String(), Modules: modules}
}

// LoadModule implements control.Controller: loads the named module from
// the project configuration it was declared with.
func (r *Runtime) LoadModule(ctx context.Context, name string) error {
	r.mu.RLock()
	cfg, ok := r.moduleConfigs[name]
	r.mu.RUnlock()
	if !ok {
		return domain.Wrap(domain.ErrKindConfig, name, fmt.Errorf("no configuration for module %q", name))
	}
	return r.loadModuleConfig(ctx, cfg)
}

// UnloadModule implements control.Controller.
func (r *Runtime) UnloadModule(ctx context.Context, name string) error {
	inst, ok := r.registry.Get(name)
	if !ok {
		return domain.Wrap(domain.ErrKindConfig, name, fmt.Errorf("module %q is not loaded", name))
	}
	if err := inst.Unload(ctx, r.cfg.GetGracefulStop()); err != nil {
		return err
	}
	r.registry.Remove(name)
	return nil
}

// ReloadModule implements control.Controller: unloads and reloads the
// named module from its original configuration.
func (r *Runtime) ReloadModule(ctx context.Context, name string) error {
	if _, ok := r.registry.Get(name); ok {
		if err := r.UnloadModule(ctx, name); err != nil {
			return err
		}
	}
	return r.LoadModule(ctx, name)
}

func (r *Runtime) loadModuleConfig(ctx context.Context, mc domain.ModuleConfig) error {
	var sourceSpecs []module.SourceSpec
	for _, name := range mc.Sources {
		pc, ok := findPluginConfig(name, r.cfg.Sources)
		if !ok {
			return domain.Wrap(domain.ErrKindConfig, mc.Name, fmt.Errorf("module %q references unknown source %q", mc.Name, name))
		}
		if !pc.IsEnabled() {
			continue
		}
		plugin, err := r.loader.Load(pluginloader.KindSource, pc)
		if err != nil {
			return domain.Wrap(domain.ErrKindPluginInit, mc.Name, err)
		}
		sourceSpecs = append(sourceSpecs, module.SourceSpec{Config: pc, Plugin: plugin.(domain.SourcePlugin)})
	}

	var actorSpecs []module.ActorSpec
	for _, name := range mc.Actors {
		pc, ok := findPluginConfig(name, r.cfg.Actors)
		if !ok {
			return domain.Wrap(domain.ErrKindConfig, mc.Name, fmt.Errorf("module %q references unknown actor %q", mc.Name, name))
		}
		if !pc.IsEnabled() {
			continue
		}
		plugin, err := r.loader.Load(pluginloader.KindActor, pc)
		if err != nil {
			return domain.Wrap(domain.ErrKindPluginInit, mc.Name, err)
		}
		actorSpecs = append(actorSpecs, module.ActorSpec{Config: pc, Plugin: plugin.(domain.ActorPlugin)})
	}

	var routes []domain.RouteConfig
	for _, name := range mc.Routes {
		route, ok := findRoute(name, r.cfg.Routes)
		if !ok {
			return domain.Wrap(domain.ErrKindConfig, mc.Name, fmt.Errorf("module %q references unknown route %q", mc.Name, name))
		}
		routes = append(routes, route)
	}

	inst := module.New(mc.Name, sourceSpecs, actorSpecs, routes, r.stages, r.checkpoints, r.eventBus, r.sched, r.ingress, r.record(mc.Name))
	if err := r.registry.Add(inst); err != nil {
		return domain.Wrap(domain.ErrKindConfig, mc.Name, err)
	}
	if err := inst.Load(ctx); err != nil {
		r.registry.Remove(mc.Name)
		return err
	}

	r.mu.Lock()
	r.moduleConfigs[mc.Name] = mc
	r.mu.Unlock()
	return nil
}

func (r *Runtime) record(moduleName string) module.RecordFunc {
	return func(phase, result string, fields map[string]any) {
		r.loggers.Log(logging.New(phase, moduleName, nil, fieldString(fields, "route"), result, fields))
	}
}

func fieldString(fields map[string]any, key string) string {
	v, _ := fields[key].(string)
	return v
}

func (r *Runtime) loadLoggers(ctx context.Context) error {
	for _, pc := range r.cfg.Loggers {
		if !pc.IsEnabled() {
			continue
		}
		plugin, err := r.loader.Load(pluginloader.KindLogger, pc)
		if err != nil {
			return domain.Wrap(domain.ErrKindPluginInit, pc.Name, err)
		}
		initCtx, cancel := context.WithTimeout(ctx, pc.GetTimeout())
		err = plugin.Init(initCtx, pc.Config)
		cancel()
		if err != nil {
			return domain.Wrap(domain.ErrKindPluginInit, pc.Name, fmt.Errorf("init logger %q: %w", pc.Name, err))
		}
		if err := r.loggers.Register(pc.Name, plugin.(domain.LoggerPlugin)); err != nil {
			return domain.Wrap(domain.ErrKindConfig, pc.Name, err)
		}
	}
	return nil
}

// buildStages resolves every configured transform to a runnable Stage:
// "script" kinds spawn a one-shot subprocess per event, everything else
// loads (and initializes) a package transform plugin once at startup and
// reuses it for every event.
func (r *Runtime) buildStages(ctx context.Context) (map[string]transform.Stage, error) {
	stages := make(map[string]transform.Stage, len(r.cfg.Transforms))
	for _, pc := range r.cfg.Transforms {
		if !pc.IsEnabled() {
			continue
		}
		if pc.Kind == "script" {
			cmdPath := pc.Command
			if !filepath.IsAbs(cmdPath) {
				cmdPath = filepath.Join(r.baseDir, cmdPath)
			}
			stages[pc.Name] = transform.NewScript(pc.Name, cmdPath, pc.Args, resolveEnv(pc.Env), r.baseDir)
			continue
		}

		plugin, err := r.loader.Load(pluginloader.KindTransform, pc)
		if err != nil {
			return nil, domain.Wrap(domain.ErrKindPluginInit, pc.Name, err)
		}
		initCtx, cancel := context.WithTimeout(ctx, pc.GetTimeout())
		err = plugin.Init(initCtx, pc.Config)
		cancel()
		if err != nil {
			return nil, domain.Wrap(domain.ErrKindPluginInit, pc.Name, fmt.Errorf("init transform %q: %w", pc.Name, err))
		}
		stages[pc.Name] = transform.NewPackage(pc.Name, plugin.(domain.TransformPlugin))
	}
	return stages, nil
}

func resolveEnv(overrides map[string]string) []string {
	if len(overrides) == 0 {
		return nil
	}
	env := os.Environ()
	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}

func findPluginConfig(name string, configs []domain.PluginConfig) (domain.PluginConfig, bool) {
	for _, c := range configs {
		if c.Name == name {
			return c, true
		}
	}
	return domain.PluginConfig{}, false
}

func findRoute(name string, routes []domain.RouteConfig) (domain.RouteConfig, bool) {
	for _, rt := range routes {
		if rt.Name == name {
			return rt, true
		}
	}
	return domain.RouteConfig{}, false
}

func buildBus(cfg domain.BusConfig) (bus.Bus, error) {
	if cfg.Durable {
		return bus.OpenWALBus(cfg.Path)
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	return bus.NewInMemoryBus(queueSize), nil
}

func newListener(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}
