// Package route implements the pure, side-effect-free matching function
// relayd applies to every event published on the bus: which configured
// routes, if any, it satisfies.
package route

import (
	"strconv"
	"strings"

	"github.com/relayd/relayd/internal/domain"
)

// Match returns the subset of routes whose filter ev satisfies: source id
// equality, event type membership, dot-path field predicates against the
// event's provenance/payload, and a label subset match against provenance. Match
// is referentially transparent: the same (routes, ev) always yields the
// same result, and it never mutates either argument.
func Match(routes []domain.RouteConfig, ev *domain.Event) []domain.RouteConfig {
	var matched []domain.RouteConfig
	for _, r := range routes {
		if matchesOne(r.Match, ev) {
			matched = append(matched, r)
		}
	}
	return matched
}

func matchesOne(m domain.RouteMatch, ev *domain.Event) bool {
	if m.Source != "" && m.Source != ev.SourceID {
		return false
	}
	if len(m.Types) > 0 && !typeMatches(m.Types, ev.Type) {
		return false
	}
	for path, want := range m.Fields {
		got, ok := resolvePath(ev, path)
		if !ok || !matchesExpected(got, want) {
			return false
		}
	}
	for key, want := range m.Labels {
		got, ok := ev.Provenance[key]
		if !ok || stringify(got) != want {
			return false
		}
	}
	return true
}

// matchesExpected compares a resolved field value against an expected
// predicate from route config: a scalar requires equality, a list requires
// set membership.
func matchesExpected(got any, want any) bool {
	switch w := want.(type) {
	case []any:
		for _, candidate := range w {
			if stringify(got) == stringify(candidate) {
				return true
			}
		}
		return false
	default:
		return stringify(got) == stringify(want)
	}
}

func typeMatches(types []domain.EventType, typ domain.EventType) bool {
	for _, t := range types {
		if t == typ {
			return true
		}
	}
	return false
}

// resolvePath walks a dot-separated path like "payload.status" or
// "provenance.region" against the event, returning the leaf value and
// whether the full path resolved. A path component that does not exist at
// any point in the walk is a non-match rather than an error: route
// evaluation fails closed on absent fields.
func resolvePath(ev *domain.Event, path string) (any, bool) {
	parts := strings.Split(path, ".")
	if len(parts) == 0 {
		return nil, false
	}

	var cur any
	switch parts[0] {
	case "payload":
		cur = ev.Payload
	case "provenance":
		cur = ev.Provenance
	case "source_id":
		if len(parts) == 1 {
			return ev.SourceID, true
		}
		return nil, false
	case "type":
		if len(parts) == 1 {
			return string(ev.Type), true
		}
		return nil, false
	default:
		return nil, false
	}

	for _, part := range parts[1:] {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[part]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return ""
	}
}
