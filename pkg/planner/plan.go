package planner

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"kernelapi/pkg/kernel"
)

const resultPrefix = "RESULT__"

var varRef = regexp.MustCompile(`\$([A-Za-z0-9_]+)`)

// Param is a step argument as written in the plan. Values may reference
// context variables as $NAME.
type Param struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Step is one function call in a plan.
type Step struct {
	Plugin         string  `json:"plugin_name"`
	Name           string  `json:"name"`
	Description    string  `json:"description,omitempty"`
	Parameters     []Param `json:"parameters,omitempty"`
	Output         string  `json:"output,omitempty"`
	AppendToResult string  `json:"append_to_result,omitempty"`

	fn kernel.Function
}

// QualifiedName returns "Plugin.Function" as written in the plan.
func (s *Step) QualifiedName() string {
	if s.Plugin == "" {
		return s.Name
	}
	return s.Plugin + "." + s.Name
}

func (s *Step) bind(fn kernel.Function) {
	s.fn = fn
	s.Plugin = fn.Plugin()
	s.Name = fn.Name()
	s.Description = fn.Description()
}

// Plan is an ordered list of steps that satisfies Goal. A plan is
// executed once and never cached.
type Plan struct {
	Goal  string  `json:"description"`
	Steps []*Step `json:"steps"`
}

// PlanResult is the outcome of Execute.
type PlanResult struct {
	Value     string            `json:"value"`
	Variables *kernel.Variables `json:"variables"`
}

// Execute runs the steps in order against vars, which is updated as steps
// complete. A nil vars starts from the goal as input.
//
// The result is the RESULT__ variables joined by newlines in the order they
// were first appended to, or the last step's output when no step appends.
func (p *Plan) Execute(ctx context.Context, vars *kernel.Variables) (*PlanResult, error) {
	if vars == nil {
		vars = kernel.NewVariables(p.Goal)
	}

	var resultKeys []string
	for i, step := range p.Steps {
		if step.fn == nil {
			return nil, fmt.Errorf("%w: step %d (%s) is not bound", ErrMissingFunction, i+1, step.QualifiedName())
		}

		callVars := vars.Clone()
		for _, prm := range step.Parameters {
			callVars.Set(prm.Name, expand(prm.Value, vars))
		}

		slog.DebugContext(ctx, "Running plan step", "step", i+1, "function", step.QualifiedName())
		out, err := step.fn.Invoke(ctx, callVars)
		if err != nil {
			return nil, fmt.Errorf("plan step %d (%s): %w", i+1, step.QualifiedName(), err)
		}

		vars.SetInput(out)
		if key := step.AppendToResult; key != "" {
			resultKeys = appendUnique(resultKeys, key)
			if prev, ok := vars.Get(key); ok && prev != "" {
				vars.Set(key, prev+"\n"+out)
			} else {
				vars.Set(key, out)
			}
		}
		// A step naming the same variable for both only appends.
		if step.Output != "" && !strings.EqualFold(step.Output, step.AppendToResult) {
			vars.Set(step.Output, out)
		}
	}

	value := vars.Input()
	var parts []string
	for _, key := range resultKeys {
		if !strings.HasPrefix(strings.ToUpper(key), resultPrefix) {
			continue
		}
		v, _ := vars.Get(key)
		parts = append(parts, v)
	}
	if len(parts) > 0 {
		value = strings.Join(parts, "\n")
	}

	return &PlanResult{Value: value, Variables: vars}, nil
}

// expand replaces $NAME references with context values. Unknown names are
// left as written.
func expand(value string, vars *kernel.Variables) string {
	return varRef.ReplaceAllStringFunc(value, func(ref string) string {
		if v, ok := vars.Get(ref[1:]); ok {
			return v
		}
		return ref
	})
}

func appendUnique(keys []string, key string) []string {
	for _, k := range keys {
		if strings.EqualFold(k, key) {
			return keys
		}
	}
	return append(keys, key)
}
