// Package pluginloader resolves a configured source/actor/transform/
// logger plugin reference to a running domain.Plugin: a built-in Go
// factory, or a subprocess speaking relayd's JSON-RPC protocol.
package pluginloader

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/relayd/relayd/internal/domain"
)

// Kind distinguishes which plugin interface a loaded instance satisfies.
type Kind int

const (
	KindSource Kind = iota
	KindActor
	KindTransform
	KindLogger
)

// BuiltinFactory constructs a built-in plugin implementation for a given
// configured kind string (e.g. "http_poll", "http_post"). Registered per
// Kind so the loader can fall back to a subprocess when no factory
// matches.
type BuiltinFactory func(cfg domain.PluginConfig) (domain.Plugin, error)

// Loader resolves PluginConfigs to domain.Plugin instances, preferring a
// registered built-in factory and falling back to a subprocess when the
// config names a Command.
type Loader struct {
	baseDir  string
	builtins map[Kind]map[string]BuiltinFactory
}

// New returns a Loader that resolves relative plugin Command paths against
// baseDir (typically the project config file's directory).
func New(baseDir string) *Loader {
	return &Loader{
		baseDir:  baseDir,
		builtins: make(map[Kind]map[string]BuiltinFactory),
	}
}

// RegisterBuiltin adds a built-in factory for configs whose Kind field
// equals name, under the given plugin Kind.
func (l *Loader) RegisterBuiltin(pluginKind Kind, name string, factory BuiltinFactory) {
	if l.builtins[pluginKind] == nil {
		l.builtins[pluginKind] = make(map[string]BuiltinFactory)
	}
	l.builtins[pluginKind][name] = factory
}

// Load resolves cfg to a domain.Plugin. If a built-in factory is
// registered for cfg.Kind under pluginKind, it is used; otherwise cfg.Command
// must be set and the plugin is loaded as a subprocess.
func (l *Loader) Load(pluginKind Kind, cfg domain.PluginConfig) (domain.Plugin, error) {
	if factory, ok := l.builtins[pluginKind][cfg.Kind]; ok {
		return factory(cfg)
	}

	if cfg.Command == "" {
		return nil, domain.Wrap(domain.ErrKindConfig, cfg.Name, fmt.Errorf("no built-in factory for kind %q and no command configured", cfg.Kind))
	}

	cmdPath := cfg.Command
	if !filepath.IsAbs(cmdPath) {
		cmdPath = filepath.Join(l.baseDir, cmdPath)
	}
	if err := validateCommand(cmdPath); err != nil {
		return nil, domain.Wrap(domain.ErrKindConfig, cfg.Name, err)
	}

	env := resolveEnv(cfg.Env)
	client := NewRPCClient(cmdPath, cfg.Args, env)

	supportsPush, _ := cfg.Config["push_capable"].(bool)

	switch pluginKind {
	case KindSource:
		if supportsPush {
			return NewSubprocessPushSource(client), nil
		}
		return NewSubprocessSource(client), nil
	case KindActor:
		return NewSubprocessActor(client), nil
	case KindTransform:
		return NewSubprocessTransform(client), nil
	case KindLogger:
		return NewSubprocessLogger(client), nil
	default:
		return nil, fmt.Errorf("pluginloader: unknown plugin kind %d", pluginKind)
	}
}

// validateCommand checks that cmdPath names an existing, executable file,
// or (for a bare command name) that it resolves via PATH.
func validateCommand(cmdPath string) error {
	if filepath.IsAbs(cmdPath) {
		info, err := os.Stat(cmdPath)
		if err != nil {
			return fmt.Errorf("command not found: %s", cmdPath)
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("command is not a regular file: %s", cmdPath)
		}
		if info.Mode().Perm()&0o111 == 0 {
			return fmt.Errorf("command is not executable: %s", cmdPath)
		}
		return nil
	}
	if _, err := exec.LookPath(cmdPath); err != nil {
		return fmt.Errorf("command not found in PATH: %s", cmdPath)
	}
	return nil
}

// resolveEnv merges a plugin's configured environment overrides onto the
// relayd process's own environment, returning nil (inherit everything
// unmodified) when no overrides are configured.
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
