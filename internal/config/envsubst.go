package config

import (
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// varPattern matches ${VAR} and ${VAR:-default} references. The name is a
// letter (either case) or underscore followed by letters, digits or
// underscores, matching common shell convention.
var varPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// substituteEnv walks every scalar node in the tree and replaces ${VAR}
// references in its value with the corresponding environment variable,
// or the :- default when the variable is unset. Unresolved references
// with no default are left untouched in the value; no error is reported
// for them.
func substituteEnv(node *yaml.Node) {
	if node == nil {
		return
	}
	if node.Kind == yaml.ScalarNode {
		node.Value = expandVars(node.Value)
	}
	for _, child := range node.Content {
		substituteEnv(child)
	}
}

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := varPattern.FindStringSubmatch(match)
		name := groups[1]
		hasDefault := groups[2] != ""
		def := groups[3]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		if hasDefault {
			return def
		}
		return match
	})
}

// Idempotent reports whether running substitution twice on the same raw
// text produces the same result, which holds as long as no environment
// variable's value itself contains a ${...} reference — the property the
// config loader relies on to apply substitution exactly once.
func Idempotent(raw string) bool {
	once := expandVars(raw)
	twice := expandVars(once)
	return once == twice
}
