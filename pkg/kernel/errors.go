package kernel

import "errors"

var (
	// ErrPluginNotFound is returned when a plugin directory is missing,
	// empty, or not part of a FunctionSet.
	ErrPluginNotFound = errors.New("plugin not found")
	// ErrFunctionNotFound is returned when a function name cannot be resolved.
	ErrFunctionNotFound = errors.New("function not found")
	// ErrTemplate is returned for prompt templates that do not parse or render.
	ErrTemplate = errors.New("invalid prompt template")
)
