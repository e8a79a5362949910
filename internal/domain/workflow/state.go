package workflow

// State is a lifecycle status of a document workflow
type State string

const (
	StateInitialized State = "INITIALIZED"
	StateRunning     State = "RUNNING"
	StatePaused      State = "PAUSED"
	StateCompleted   State = "COMPLETED"
	StateFailed      State = "FAILED"
	StateCancelled   State = "CANCELLED"
)

var validStates = map[State]bool{
	StateInitialized: true,
	StateRunning:     true,
	StatePaused:      true,
	StateCompleted:   true,
	StateFailed:      true,
	StateCancelled:   true,
}

var terminalStates = map[State]bool{
	StateCompleted: true,
	StateFailed:    true,
	StateCancelled: true,
}

// IsTerminal returns true if no further transitions leave the state
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsActive returns true for states in which a workflow still holds work in progress
func (s State) IsActive() bool {
	return s == StateRunning || s == StatePaused
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known workflow state
func (s State) IsValid() bool {
	return validStates[s]
}
