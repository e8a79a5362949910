package workflow

import "context"

// StateMachine tracks the current state of one workflow and validates transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger is permitted in the current state
	CanFire(trigger Trigger) bool

	// Destination returns the state the trigger leads to from the current state,
	// ignoring guards
	Destination(trigger Trigger) (State, bool)

	// Fire executes the trigger, moving to the target state if allowed
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers returns all triggers configured for the current state
	PermittedTriggers() []Trigger
}

// TransitionFunc observes a successful transition
type TransitionFunc func(from, to State, trigger Trigger)
