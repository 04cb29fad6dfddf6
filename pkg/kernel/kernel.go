// Package kernel runs prompt functions against an LLM. A Kernel is built
// once at startup and is read-only afterwards; each request imports the
// functions it needs into its own FunctionSet.
package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"kernelapi/pkg/llm"
)

// Observer is notified after every completion.
type Observer func(provider string, elapsed time.Duration, err error)

// Option configures a Kernel.
type Option func(*Kernel)

// WithTimeout bounds each completion. Zero leaves calls bounded only by
// the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(k *Kernel) { k.timeout = d }
}

// WithObserver registers fn to be called after every completion.
func WithObserver(fn Observer) Option {
	return func(k *Kernel) { k.observe = fn }
}

// Kernel binds the LLM client to execution defaults.
type Kernel struct {
	client  llm.LLMClient
	timeout time.Duration
	observe Observer
}

// New returns a Kernel completing through client.
func New(client llm.LLMClient, opts ...Option) *Kernel {
	k := &Kernel{client: client}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Client returns the underlying LLM client.
func (k *Kernel) Client() llm.LLMClient {
	return k.client
}

// NewFunctionSet returns an empty, request-scoped function set.
func (k *Kernel) NewFunctionSet() *FunctionSet {
	return &FunctionSet{kernel: k, plugins: make(map[string]*Plugin)}
}

// Complete sends prompt as a single user message.
func (k *Kernel) Complete(ctx context.Context, prompt string, settings *llm.ExecutionSettings) (string, error) {
	if k.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := llm.Complete(ctx, k.client, []llm.Message{llm.NewUserMessage(prompt)}, settings)
	elapsed := time.Since(start)

	if k.observe != nil {
		k.observe(k.client.Provider(), elapsed, err)
	}
	if err != nil {
		return "", fmt.Errorf("completion failed: %w", err)
	}
	slog.DebugContext(ctx, "Completion finished", "provider", k.client.Provider(), "elapsed", elapsed, "chars", len(out))
	return out, nil
}

// Run pipes input through fns: each output becomes the next input.
func (k *Kernel) Run(ctx context.Context, input string, fns ...Function) (string, error) {
	return k.RunWithVariables(ctx, NewVariables(input), fns...)
}

// RunWithVariables is Run with a prepared context. vars is updated with
// each step's output.
func (k *Kernel) RunWithVariables(ctx context.Context, vars *Variables, fns ...Function) (string, error) {
	for _, fn := range fns {
		out, err := fn.Invoke(ctx, vars)
		if err != nil {
			return "", fmt.Errorf("%s: %w", QualifiedName(fn), err)
		}
		vars.SetInput(out)
	}
	return vars.Input(), nil
}
