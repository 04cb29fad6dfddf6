package planner

import "errors"

var (
	// ErrEmptyGoal is returned when the goal is blank.
	ErrEmptyGoal = errors.New("planner: goal is empty")
	// ErrNoFunctions is returned when no functions are available to plan with.
	ErrNoFunctions = errors.New("planner: no functions available")
	// ErrInvalidPlan is returned when the model's answer holds no parsable <plan>.
	ErrInvalidPlan = errors.New("planner: invalid plan")
	// ErrMissingFunction is returned when a step names an unknown function.
	ErrMissingFunction = errors.New("planner: plan references an unknown function")
	// ErrEmptyPlan is returned when the model produced a plan with no steps.
	ErrEmptyPlan = errors.New("planner: plan has no steps")
)
