package workflow

// Trigger is an operation or outcome that moves a workflow between states
type Trigger string

const (
	TriggerStart    Trigger = "START"
	TriggerPause    Trigger = "PAUSE"
	TriggerResume   Trigger = "RESUME"
	TriggerComplete Trigger = "COMPLETE"
	TriggerFail     Trigger = "FAIL"
	TriggerCancel   Trigger = "CANCEL"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}

// Verb returns the lower-case operation name used in error messages ("start", "pause", ...)
func (t Trigger) Verb() string {
	switch t {
	case TriggerStart:
		return "start"
	case TriggerPause:
		return "pause"
	case TriggerResume:
		return "resume"
	case TriggerComplete:
		return "complete"
	case TriggerFail:
		return "fail"
	case TriggerCancel:
		return "cancel"
	default:
		return string(t)
	}
}
