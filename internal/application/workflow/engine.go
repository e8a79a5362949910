package workflow

import (
	"context"

	"github.com/buffrsign/esign-orchestrator/internal/domain/entity"
)

// CreateWorkflowRequest carries the caller-supplied definition of a workflow
type CreateWorkflowRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Steps       []entity.Step     `json:"steps"`
	CreatedBy   string            `json:"created_by,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Orchestrator owns every workflow of the process and drives it through its lifecycle
type Orchestrator interface {
	// CreateWorkflow validates the request and registers a new INITIALIZED workflow
	CreateWorkflow(ctx context.Context, req CreateWorkflowRequest) (string, error)

	// StartWorkflow moves the workflow to RUNNING and executes its steps from index 0
	StartWorkflow(ctx context.Context, id string) error

	// PauseWorkflow stops execution after the step in flight
	PauseWorkflow(ctx context.Context, id string) error

	// ResumeWorkflow continues a paused workflow from its current step
	ResumeWorkflow(ctx context.Context, id string) error

	// CancelWorkflow ends a non-terminal workflow
	CancelWorkflow(ctx context.Context, id string) error

	// GetWorkflow returns a snapshot of the workflow
	GetWorkflow(ctx context.Context, id string) (*entity.Workflow, bool)

	// GetWorkflowHistory returns the ordered audit history of the workflow
	GetWorkflowHistory(ctx context.Context, id string) ([]entity.HistoryEntry, error)

	// GetActiveWorkflows returns snapshots of RUNNING and PAUSED workflows
	GetActiveWorkflows(ctx context.Context) []*entity.Workflow

	// ListWorkflows returns snapshots of every workflow, optionally filtered by status
	ListWorkflows(ctx context.Context, statuses ...string) []*entity.Workflow

	// ValidateWorkflowStep checks a single step without side effects
	ValidateWorkflowStep(step entity.Step) entity.StepValidation
}
