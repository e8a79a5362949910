package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/buffrsign/esign-orchestrator/internal/application/port"
	"github.com/buffrsign/esign-orchestrator/internal/domain/entity"
	"github.com/buffrsign/esign-orchestrator/internal/infrastructure/persistence/sqldb"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sqldb.DB, logger *zap.Logger) *HistoryRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryRepository{db: db, logger: logger}
}

// Append stores an entry after the workflow's existing entries.
// Entries without an id get one assigned.
func (r *HistoryRepository) Append(ctx context.Context, entry *entity.HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	exec := r.db.Executor(ctx)

	var seq int64
	err := exec.QueryRowContext(ctx,
		r.db.Rebind(`SELECT COALESCE(MAX(seq), 0) FROM workflow_history WHERE workflow_id = ?`),
		entry.WorkflowID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("failed to read history sequence: %w", err)
	}

	query := r.db.Rebind(`
		INSERT INTO workflow_history (
			id, workflow_id, seq, step_id, name, type, status,
			started_at, completed_at, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err = exec.ExecContext(ctx, query,
		entry.ID,
		entry.WorkflowID,
		seq+1,
		entry.StepID,
		entry.Name,
		entry.Type,
		entry.Status,
		entry.StartedAt.UTC(),
		nullTime(entry.CompletedAt),
		entry.Error,
	)
	if err != nil {
		r.logger.Error("Failed to append history entry",
			zap.String("workflow_id", entry.WorkflowID),
			zap.String("name", entry.Name),
			zap.Error(err))
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// GetByWorkflowID returns the history of a workflow in append order
func (r *HistoryRepository) GetByWorkflowID(ctx context.Context, workflowID string) ([]entity.HistoryEntry, error) {
	query := r.db.Rebind(`
		SELECT id, workflow_id, step_id, name, type, status, started_at, completed_at, error
		FROM workflow_history
		WHERE workflow_id = ?
		ORDER BY seq ASC
	`)

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, workflowID)
	if err != nil {
		r.logger.Error("Failed to get history", zap.String("workflow_id", workflowID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	entries := []entity.HistoryEntry{}
	for rows.Next() {
		var (
			e           entity.HistoryEntry
			completedAt sql.NullTime
		)
		if err := rows.Scan(
			&e.ID,
			&e.WorkflowID,
			&e.StepID,
			&e.Name,
			&e.Type,
			&e.Status,
			&e.StartedAt,
			&completedAt,
			&e.Error,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		if completedAt.Valid {
			t := completedAt.Time
			e.CompletedAt = &t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

var _ port.HistoryRepository = (*HistoryRepository)(nil)
