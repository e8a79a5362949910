package entity

// Workflow status values, mirrored from the lifecycle state machine
const (
	StatusInitialized = "INITIALIZED"
	StatusRunning     = "RUNNING"
	StatusPaused      = "PAUSED"
	StatusCompleted   = "COMPLETED"
	StatusFailed      = "FAILED"
	StatusCancelled   = "CANCELLED"
)

// Step result status values
const (
	StepStatusRunning   = "RUNNING"
	StepStatusCompleted = "COMPLETED"
	StepStatusFailed    = "FAILED"
)

// History entry types
const (
	HistoryTypeWorkflow = "workflow"
	HistoryTypeStep     = "step"
)

// Token permissions granted on a document
const (
	PermissionRead   = "read"
	PermissionWrite  = "write"
	PermissionSign   = "sign"
	PermissionShare  = "share"
	PermissionDelete = "delete"
)

// Compliance frameworks understood by the compliance-check step
const (
	FrameworkETA   = "ETA"
	FrameworkCRAN  = "CRAN"
	FrameworkGDPR  = "GDPR"
	FrameworkEIDAS = "eIDAS"
	FrameworkESIGN = "ESIGN"
)

// IsSupportedFramework reports whether framework is one of the known compliance frameworks
func IsSupportedFramework(framework string) bool {
	switch framework {
	case FrameworkETA, FrameworkCRAN, FrameworkGDPR, FrameworkEIDAS, FrameworkESIGN:
		return true
	}
	return false
}
