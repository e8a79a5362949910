package event

// Type identifies the type of domain event
type Type string

const (
	TypeWorkflowCreated   Type = "workflow.created"
	TypeWorkflowStarted   Type = "workflow.started"
	TypeWorkflowPaused    Type = "workflow.paused"
	TypeWorkflowResumed   Type = "workflow.resumed"
	TypeWorkflowCompleted Type = "workflow.completed"
	TypeWorkflowFailed    Type = "workflow.failed"
	TypeWorkflowCancelled Type = "workflow.cancelled"
	TypeStepCompleted     Type = "step.completed"
	TypeStepFailed        Type = "step.failed"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeWorkflowCreated,
		TypeWorkflowStarted,
		TypeWorkflowPaused,
		TypeWorkflowResumed,
		TypeWorkflowCompleted,
		TypeWorkflowFailed,
		TypeWorkflowCancelled,
		TypeStepCompleted,
		TypeStepFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the event marks the end of a workflow
func (t Type) IsTerminal() bool {
	return t == TypeWorkflowCompleted || t == TypeWorkflowFailed || t == TypeWorkflowCancelled
}

// Types returns every defined event type
func Types() []Type {
	return []Type{
		TypeWorkflowCreated,
		TypeWorkflowStarted,
		TypeWorkflowPaused,
		TypeWorkflowResumed,
		TypeWorkflowCompleted,
		TypeWorkflowFailed,
		TypeWorkflowCancelled,
		TypeStepCompleted,
		TypeStepFailed,
	}
}
