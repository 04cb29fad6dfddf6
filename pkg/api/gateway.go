package api

import (
	"context"

	"kernelapi/pkg/planner"

	"github.com/gorilla/mux"
)

// PlanObserver receives a plan after it is created and before it runs.
type PlanObserver func(plan *planner.Plan)

// Executor runs the three request kinds served by every channel.
type Executor interface {
	// InvokeFunction runs plugin.function with ask as input.
	InvokeFunction(ctx context.Context, plugin, function, ask string) (string, error)
	// RunPlanner plans and executes query over the planner plugin.
	RunPlanner(ctx context.Context, query string, onPlan PlanObserver) (string, error)
	// RunMemory plans over the planner plugin plus the memory plugin and
	// parses the result, falling back to a plain answer.
	RunMemory(ctx context.Context, query string, onPlan PlanObserver) (Answer, error)
}

// Channel is an additional transport mounted next to the HTTP routes.
type Channel interface {
	ID() string
	// Start binds the channel's routes to r and serves requests through exec.
	Start(exec Executor, r *mux.Router) error
	Stop() error
}

// Request kinds accepted by streaming channels.
const (
	RequestInvoke  = "invoke"
	RequestPlanner = "planner"
	RequestMemory  = "memory"
)

// Frame types emitted by streaming channels.
const (
	FramePlan   = "plan"
	FrameAnswer = "answer"
	FrameError  = "error"
	FrameDone   = "done"
)

// ChannelRequest is one request received by a streaming channel.
type ChannelRequest struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type"`
	Plugin   string `json:"plugin,omitempty"`
	Function string `json:"function,omitempty"`
	Ask      string `json:"ask,omitempty"`
	Query    string `json:"query,omitempty"`
}

// Frame is one message sent back by a streaming channel.
type Frame struct {
	ID     string        `json:"id,omitempty"`
	Type   string        `json:"type"`
	Plan   *planner.Plan `json:"plan,omitempty"`
	Answer *Answer       `json:"answer,omitempty"`
	Error  string        `json:"error,omitempty"`
}
