package builtins

import (
	"context"
	"strings"

	"github.com/relayd/relayd/internal/domain"
)

// RedactTransform replaces the value at each configured dot-path field in an
// event's payload with a fixed placeholder. It never drops an event.
type RedactTransform struct {
	name        string
	fields      []string
	replacement string
}

// NewRedactTransform is the pluginloader.BuiltinFactory for kind
// "builtin_redact". config.fields is a list of dot-paths into the payload;
// config.replacement overrides the default placeholder "[redacted]".
func NewRedactTransform(cfg domain.PluginConfig) (domain.Plugin, error) {
	var fields []string
	if raw, ok := cfg.Config["fields"].([]any); ok {
		for _, f := range raw {
			if s, ok := f.(string); ok {
				fields = append(fields, s)
			}
		}
	}
	replacement := "[redacted]"
	if r, ok := cfg.Config["replacement"].(string); ok && r != "" {
		replacement = r
	}
	return &RedactTransform{name: cfg.Name, fields: fields, replacement: replacement}, nil
}

func (t *RedactTransform) Init(ctx context.Context, config map[string]any) error { return nil }

func (t *RedactTransform) Shutdown(ctx context.Context) error { return nil }

func (t *RedactTransform) Info() domain.PluginInfo {
	return domain.PluginInfo{Name: t.name, Description: "redacts configured payload fields"}
}

// Transform returns a copy of ev.Payload with each configured field replaced.
func (t *RedactTransform) Transform(ctx context.Context, ev *domain.Event) (map[string]any, bool, error) {
	out := deepCopyMap(ev.Payload)
	for _, path := range t.fields {
		setDotPath(out, strings.Split(path, "."), t.replacement)
	}
	return out, true, nil
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// setDotPath replaces the value at segs within m in place, doing nothing if
// an intermediate segment doesn't resolve to a nested map.
func setDotPath(m map[string]any, segs []string, replacement string) {
	if len(segs) == 0 {
		return
	}
	if len(segs) == 1 {
		if _, ok := m[segs[0]]; ok {
			m[segs[0]] = replacement
		}
		return
	}
	next, ok := m[segs[0]].(map[string]any)
	if !ok {
		return
	}
	setDotPath(next, segs[1:], replacement)
}
