package kernel

import "context"

// NativeFunc is the Go signature wrapped by NativeFunction.
type NativeFunc func(ctx context.Context, vars *Variables) (string, error)

// NativeFunction exposes a Go func to templates and the planner.
type NativeFunction struct {
	plugin      string
	name        string
	description string
	params      []Parameter
	fn          NativeFunc
}

// NewNativeFunction wraps fn. Parameter defaults are applied before fn runs.
func NewNativeFunction(plugin, name, description string, params []Parameter, fn NativeFunc) *NativeFunction {
	return &NativeFunction{
		plugin:      plugin,
		name:        name,
		description: description,
		params:      params,
		fn:          fn,
	}
}

func (f *NativeFunction) Plugin() string          { return f.plugin }
func (f *NativeFunction) Name() string            { return f.name }
func (f *NativeFunction) Description() string     { return f.description }
func (f *NativeFunction) Parameters() []Parameter { return f.params }

func (f *NativeFunction) Invoke(ctx context.Context, vars *Variables) (string, error) {
	return f.fn(ctx, withDefaults(vars, f.params))
}
