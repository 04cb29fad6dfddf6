// Package handler executes the kernel routes and serves them over HTTP.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"

	"kernelapi/pkg/api"
	"kernelapi/pkg/config"
	"kernelapi/pkg/kernel"
	"kernelapi/pkg/memory"
	"kernelapi/pkg/metrics"
	"kernelapi/pkg/monitor"
	"kernelapi/pkg/planner"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrMemoryUnavailable is returned by RunMemory when no memory is configured.
var ErrMemoryUnavailable = errors.New("memory is not configured")

// Service runs function invocations, plans and memory plans. Every call
// builds its own function set from disk; nothing is cached between calls.
type Service struct {
	kernel        *kernel.Kernel
	memory        *memory.Memory
	monitor       monitor.Monitor
	plannerConfig planner.Config
	pluginsDir    string
	plannerPlugin string
}

// NewService binds the kernel and memory to the plugin tree named by sys.
// mem and mon may be nil.
func NewService(k *kernel.Kernel, mem *memory.Memory, mon monitor.Monitor, sys *config.SystemConfig) *Service {
	cfg := planner.DefaultConfig()
	if sys.PlannerMaxTokens > 0 {
		cfg.MaxTokens = sys.PlannerMaxTokens
	}
	return &Service{
		kernel:        k,
		memory:        mem,
		monitor:       mon,
		plannerConfig: cfg,
		pluginsDir:    sys.PluginsDir,
		plannerPlugin: sys.PlannerPlugin,
	}
}

var _ api.Executor = (*Service)(nil)

// InvokeFunction loads plugin from the plugins directory and runs function
// with ask as input.
func (s *Service) InvokeFunction(ctx context.Context, plugin, function, ask string) (string, error) {
	s.report(ctx, monitor.MessageAsk, api.RequestInvoke, fmt.Sprintf("%s.%s: %s", plugin, function, ask))

	set := s.kernel.NewFunctionSet()
	p, err := set.ImportSemanticFunctionsFromDirectory(s.pluginsDir, plugin)
	if err != nil {
		return "", s.fail(ctx, api.RequestInvoke, err)
	}
	fn, ok := p.Function(function)
	if !ok {
		return "", s.fail(ctx, api.RequestInvoke, fmt.Errorf("%w: %s.%s", kernel.ErrFunctionNotFound, plugin, function))
	}

	out, err := s.kernel.Run(ctx, ask, fn)
	if err != nil {
		return "", s.fail(ctx, api.RequestInvoke, err)
	}

	s.report(ctx, monitor.MessageAnswer, api.RequestInvoke, out)
	return out, nil
}

// RunPlanner plans query over the planner plugin and executes the plan.
func (s *Service) RunPlanner(ctx context.Context, query string, onPlan api.PlanObserver) (string, error) {
	s.report(ctx, monitor.MessageAsk, api.RequestPlanner, query)

	set := s.kernel.NewFunctionSet()
	if _, err := set.ImportSemanticFunctionsFromDirectory(s.pluginsDir, s.plannerPlugin); err != nil {
		return "", s.fail(ctx, api.RequestPlanner, err)
	}

	result, err := s.plan(ctx, query, set, onPlan)
	if err != nil {
		return "", s.fail(ctx, api.RequestPlanner, err)
	}

	s.report(ctx, monitor.MessageAnswer, api.RequestPlanner, result.Value)
	return result.Value, nil
}

// RunMemory plans query over the planner plugin plus MemoryPlugin. The
// result is parsed as a structured Answer; anything else is returned as
// the answer text unchanged.
func (s *Service) RunMemory(ctx context.Context, query string, onPlan api.PlanObserver) (api.Answer, error) {
	s.report(ctx, monitor.MessageAsk, api.RequestMemory, query)

	if s.memory == nil {
		return api.Answer{}, s.fail(ctx, api.RequestMemory, ErrMemoryUnavailable)
	}

	set := s.kernel.NewFunctionSet()
	if _, err := set.ImportSemanticFunctionsFromDirectory(s.pluginsDir, s.plannerPlugin); err != nil {
		return api.Answer{}, s.fail(ctx, api.RequestMemory, err)
	}
	set.ImportPlugin(memory.PluginName, s.memory.Functions(s.kernel)...)

	result, err := s.plan(ctx, query, set, onPlan)
	if err != nil {
		return api.Answer{}, s.fail(ctx, api.RequestMemory, err)
	}

	answer, kind, perr := api.ParseAnswer(result.Value)
	switch kind {
	case api.AnswerMalformed:
		slog.WarnContext(ctx, "Memory result looked like JSON but did not parse, returning raw text", "error", perr)
	case api.AnswerPlain:
		slog.DebugContext(ctx, "Memory result is plain text")
	}

	s.report(ctx, monitor.MessageAnswer, api.RequestMemory, answer.Answer)
	return answer, nil
}

// plan creates and executes a plan for goal over set, logging both.
func (s *Service) plan(ctx context.Context, goal string, set *kernel.FunctionSet, onPlan api.PlanObserver) (*planner.PlanResult, error) {
	start := time.Now()

	plan, err := planner.NewSequentialPlanner(s.kernel, s.plannerConfig).CreatePlan(ctx, goal, set)
	if err != nil {
		return nil, err
	}
	metrics.ObservePlan(len(plan.Steps))
	logIndented(ctx, "Plan created", "plan", plan)
	if onPlan != nil {
		onPlan(plan)
	}

	result, err := plan.Execute(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("plan execution failed: %w", err)
	}
	logIndented(ctx, "Plan executed", "result", result)
	slog.InfoContext(ctx, "Plan finished", "steps", len(plan.Steps), "duration", time.Since(start).String())
	return result, nil
}

func (s *Service) fail(ctx context.Context, route string, err error) error {
	s.report(ctx, monitor.MessageError, route, err.Error())
	return err
}

func (s *Service) report(ctx context.Context, kind, route, content string) {
	if s.monitor == nil {
		return
	}
	s.monitor.OnMessage(monitor.MonitorMessage{
		Timestamp:   time.Now(),
		MessageType: kind,
		Route:       route,
		RequestID:   monitor.RequestID(ctx),
		Content:     content,
	})
}

// logIndented logs v as indented JSON.
func logIndented(ctx context.Context, msg, key string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		slog.WarnContext(ctx, "Failed to serialize for logging", "key", key, "error", err)
		return
	}
	slog.InfoContext(ctx, msg+"\n"+string(data))
}
