// Package planner turns a natural-language goal into an ordered plan of
// kernel functions and runs it.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"kernelapi/pkg/kernel"
	"kernelapi/pkg/llm"
)

// Config tunes plan synthesis.
type Config struct {
	// MaxTokens caps the plan completion.
	MaxTokens int
	// ExcludedPlugins are hidden from the function manual.
	ExcludedPlugins []string
	// ExcludedFunctions are hidden by name or by Plugin.Function.
	ExcludedFunctions []string
	// AllowMissingFunctions drops steps naming unknown functions instead of
	// failing the plan.
	AllowMissingFunctions bool
}

// DefaultConfig returns the settings used when none are given.
func DefaultConfig() Config {
	return Config{MaxTokens: 1024}
}

// SequentialPlanner asks the LLM for an XML plan over the functions of a set.
type SequentialPlanner struct {
	kernel *kernel.Kernel
	cfg    Config
}

func NewSequentialPlanner(k *kernel.Kernel, cfg Config) *SequentialPlanner {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig().MaxTokens
	}
	return &SequentialPlanner{kernel: k, cfg: cfg}
}

// CreatePlan synthesizes a plan for goal using the functions in set.
func (p *SequentialPlanner) CreatePlan(ctx context.Context, goal string, set *kernel.FunctionSet) (*Plan, error) {
	if strings.TrimSpace(goal) == "" {
		return nil, ErrEmptyGoal
	}

	fns := p.availableFunctions(set)
	if len(fns) == 0 {
		return nil, ErrNoFunctions
	}

	vars := kernel.NewVariables(goal)
	vars.Set(availableFunctionsKey, FunctionManual(fns))
	prompt, err := planTemplate.Render(ctx, vars, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to render plan prompt: %w", err)
	}

	zero := 0.0
	out, err := p.kernel.Complete(ctx, prompt, &llm.ExecutionSettings{
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: &zero,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create plan: %w", err)
	}

	plan, err := ParsePlan(goal, out, set, p.cfg.AllowMissingFunctions)
	if err != nil {
		slog.WarnContext(ctx, "Could not parse plan", "error", err)
		return nil, err
	}
	if len(plan.Steps) == 0 {
		return nil, ErrEmptyPlan
	}

	slog.DebugContext(ctx, "Plan created", "goal", goal, "steps", len(plan.Steps))
	return plan, nil
}

func (p *SequentialPlanner) availableFunctions(set *kernel.FunctionSet) []kernel.Function {
	var fns []kernel.Function
	for _, fn := range set.Functions() {
		if containsFold(p.cfg.ExcludedPlugins, fn.Plugin()) ||
			containsFold(p.cfg.ExcludedFunctions, fn.Name()) ||
			containsFold(p.cfg.ExcludedFunctions, kernel.QualifiedName(fn)) {
			continue
		}
		fns = append(fns, fn)
	}
	return fns
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
