package port

import (
	"context"
	"errors"

	"github.com/buffrsign/esign-orchestrator/internal/domain/entity"
)

// ErrNotFound is returned by repositories when a row does not exist
var ErrNotFound = errors.New("record not found")

// WorkflowRepository persists workflow snapshots for audit
type WorkflowRepository interface {
	// Save inserts or replaces the snapshot of a workflow, steps included
	Save(ctx context.Context, wf *entity.Workflow) error
	GetByID(ctx context.Context, id string) (*entity.Workflow, error)
	ListByStatus(ctx context.Context, statuses ...string) ([]*entity.Workflow, error)
}

// HistoryRepository persists the append-only workflow history
type HistoryRepository interface {
	Append(ctx context.Context, entry *entity.HistoryEntry) error
	GetByWorkflowID(ctx context.Context, workflowID string) ([]entity.HistoryEntry, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
