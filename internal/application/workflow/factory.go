package workflow

import (
	domainwf "github.com/buffrsign/esign-orchestrator/internal/domain/workflow"
)

// BuildLifecycleStateMachine creates a state machine configured for the workflow lifecycle
func BuildLifecycleStateMachine(initialState domainwf.State, observers ...domainwf.TransitionFunc) domainwf.StateMachine {
	builder := domainwf.NewBuilder()
	for _, observe := range observers {
		builder.OnTransition(observe)
	}

	// INITIALIZED state transitions
	builder.Configure(domainwf.StateInitialized).
		Permit(domainwf.TriggerStart, domainwf.StateRunning).
		Permit(domainwf.TriggerCancel, domainwf.StateCancelled)

	// RUNNING state transitions
	builder.Configure(domainwf.StateRunning).
		Permit(domainwf.TriggerPause, domainwf.StatePaused).
		Permit(domainwf.TriggerComplete, domainwf.StateCompleted).
		Permit(domainwf.TriggerFail, domainwf.StateFailed).
		Permit(domainwf.TriggerCancel, domainwf.StateCancelled)

	// PAUSED state transitions
	builder.Configure(domainwf.StatePaused).
		Permit(domainwf.TriggerResume, domainwf.StateRunning).
		Permit(domainwf.TriggerCancel, domainwf.StateCancelled)

	// COMPLETED, FAILED and CANCELLED are terminal states - no outgoing transitions

	return builder.Build(initialState)
}
