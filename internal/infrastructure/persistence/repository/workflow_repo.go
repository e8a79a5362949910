package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/buffrsign/esign-orchestrator/internal/application/port"
	"github.com/buffrsign/esign-orchestrator/internal/domain/entity"
	"github.com/buffrsign/esign-orchestrator/internal/infrastructure/persistence/sqldb"
	"go.uber.org/zap"
)

// WorkflowRepository implements port.WorkflowRepository
type WorkflowRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *sqldb.DB, logger *zap.Logger) *WorkflowRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowRepository{db: db, logger: logger, now: time.Now}
}

const workflowColumns = `id, name, description, status, current_step_index, steps, metadata,
	created_by, created_at, started_at, ended_at`

// Save upserts the workflow snapshot, steps and their results included
func (r *WorkflowRepository) Save(ctx context.Context, wf *entity.Workflow) error {
	steps, err := json.Marshal(wf.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode steps: %w", err)
	}
	metadata := wf.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	query := r.db.Rebind(`
		INSERT INTO workflows (` + workflowColumns + `, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			status = excluded.status,
			current_step_index = excluded.current_step_index,
			steps = excluded.steps,
			metadata = excluded.metadata,
			started_at = excluded.started_at,
			ended_at = excluded.ended_at,
			updated_at = excluded.updated_at
	`)

	_, err = r.db.Executor(ctx).ExecContext(ctx, query,
		wf.ID,
		wf.Name,
		wf.Description,
		wf.Status,
		wf.CurrentStepIndex,
		string(steps),
		string(meta),
		wf.CreatedBy,
		wf.CreatedAt.UTC(),
		nullTime(wf.StartedAt),
		nullTime(wf.EndedAt),
		r.now().UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to save workflow", zap.String("workflow_id", wf.ID), zap.Error(err))
		return fmt.Errorf("failed to save workflow: %w", err)
	}
	return nil
}

// GetByID retrieves a workflow snapshot by id
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*entity.Workflow, error) {
	query := r.db.Rebind(`SELECT ` + workflowColumns + ` FROM workflows WHERE id = ?`)

	wf, err := scanWorkflow(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get workflow", zap.String("workflow_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	return wf, nil
}

// ListByStatus returns workflows in any of the given statuses, newest first.
// No statuses means every workflow.
func (r *WorkflowRepository) ListByStatus(ctx context.Context, statuses ...string) ([]*entity.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows`
	args := make([]interface{}, 0, len(statuses))
	if len(statuses) > 0 {
		marks := make([]string, len(statuses))
		for i, s := range statuses {
			marks[i] = "?"
			args = append(args, s)
		}
		query += ` WHERE status IN (` + strings.Join(marks, ", ") + `)`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		r.logger.Error("Failed to list workflows", zap.Strings("statuses", statuses), zap.Error(err))
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*entity.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWorkflow(row rowScanner) (*entity.Workflow, error) {
	var (
		wf                 entity.Workflow
		steps, metadata    []byte
		startedAt, endedAt sql.NullTime
	)
	err := row.Scan(
		&wf.ID,
		&wf.Name,
		&wf.Description,
		&wf.Status,
		&wf.CurrentStepIndex,
		&steps,
		&metadata,
		&wf.CreatedBy,
		&wf.CreatedAt,
		&startedAt,
		&endedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(steps, &wf.Steps); err != nil {
		return nil, fmt.Errorf("failed to decode steps: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &wf.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	if startedAt.Valid {
		t := startedAt.Time
		wf.StartedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time
		wf.EndedAt = &t
	}
	return &wf, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

var _ port.WorkflowRepository = (*WorkflowRepository)(nil)
