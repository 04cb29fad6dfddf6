package kernel

import (
	"context"
	"regexp"
)

// validName matches plugin, function and variable names.
var validName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Parameter describes one function input.
type Parameter struct {
	Name         string `json:"name" yaml:"name"`
	Description  string `json:"description" yaml:"description"`
	DefaultValue string `json:"defaultValue" yaml:"default"`
}

// Function is a callable unit: a prompt template or a Go func.
type Function interface {
	Plugin() string
	Name() string
	Description() string
	Parameters() []Parameter
	// Invoke runs the function against vars and returns its output.
	// Implementations must not mutate vars.
	Invoke(ctx context.Context, vars *Variables) (string, error)
}

// QualifiedName returns "Plugin.Function".
func QualifiedName(fn Function) string {
	return fn.Plugin() + "." + fn.Name()
}

// withDefaults returns a copy of vars with parameter defaults filled in
// for missing or empty values.
func withDefaults(vars *Variables, params []Parameter) *Variables {
	vars = vars.Clone()
	for _, p := range params {
		if p.DefaultValue == "" {
			continue
		}
		if v, ok := vars.Get(p.Name); !ok || v == "" {
			vars.Set(p.Name, p.DefaultValue)
		}
	}
	return vars
}
