package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/buffrsign/esign-orchestrator/internal/application/port"
	"github.com/buffrsign/esign-orchestrator/internal/domain/entity"
	"github.com/buffrsign/esign-orchestrator/internal/infrastructure/persistence/sqldb"
	"github.com/buffrsign/esign-orchestrator/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupDB(t *testing.T) *sqldb.DB {
	t.Helper()

	db, err := database.New(database.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "mirror.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = database.NewMigrator(db, zap.NewNop()).RunMigrations(context.Background())
	require.NoError(t, err)

	return sqldb.FromDatabase(db, zap.NewNop())
}

func sampleWorkflow(id, status string, created time.Time) *entity.Workflow {
	return &entity.Workflow{
		ID:          id,
		Name:        "Lease agreement",
		Description: "Residential lease",
		Status:      status,
		CreatedBy:   "user-1",
		Metadata:    map[string]string{"tenant": "acme"},
		CreatedAt:   created,
		Steps: []entity.Step{
			{
				ID:     "analyze",
				Type:   entity.StepTypeDocumentAnalysis,
				Config: map[string]interface{}{"document_path": "lease.pdf"},
			},
		},
	}
}

func TestWorkflowRepository_SaveAndGet(t *testing.T) {
	db := setupDB(t)
	repo := NewWorkflowRepository(db, nil)
	ctx := context.Background()

	created := time.Now().UTC().Truncate(time.Second)
	wf := sampleWorkflow("wf-1", entity.StatusInitialized, created)
	require.NoError(t, repo.Save(ctx, wf))

	got, err := repo.GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "Lease agreement", got.Name)
	assert.Equal(t, entity.StatusInitialized, got.Status)
	assert.Equal(t, "acme", got.Metadata["tenant"])
	assert.WithinDuration(t, created, got.CreatedAt, time.Second)
	assert.Nil(t, got.StartedAt)
	require.Len(t, got.Steps, 1)
	assert.Equal(t, "lease.pdf", got.Steps[0].Config["document_path"])

	// Upsert keeps one row and records the progress
	started := created.Add(time.Minute)
	wf.Status = entity.StatusCompleted
	wf.StartedAt = &started
	wf.EndedAt = &started
	wf.CurrentStepIndex = 1
	wf.Steps[0].Result = &entity.StepResult{
		Status: entity.StepStatusCompleted,
		Output: map[string]interface{}{"risk_level": "low"},
	}
	require.NoError(t, repo.Save(ctx, wf))

	got, err = repo.GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, got.Status)
	assert.Equal(t, 1, got.CurrentStepIndex)
	require.NotNil(t, got.StartedAt)
	assert.WithinDuration(t, started, *got.StartedAt, time.Second)
	require.NotNil(t, got.Steps[0].Result)
	assert.Equal(t, "low", got.Steps[0].Result.Output["risk_level"])

	all, err := repo.ListByStatus(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestWorkflowRepository_GetByIDNotFound(t *testing.T) {
	repo := NewWorkflowRepository(setupDB(t), nil)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, port.ErrNotFound))
}

func TestWorkflowRepository_ListByStatus(t *testing.T) {
	repo := NewWorkflowRepository(setupDB(t), nil)
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, repo.Save(ctx, sampleWorkflow("a", entity.StatusRunning, base)))
	require.NoError(t, repo.Save(ctx, sampleWorkflow("b", entity.StatusPaused, base.Add(time.Second))))
	require.NoError(t, repo.Save(ctx, sampleWorkflow("c", entity.StatusCompleted, base.Add(2*time.Second))))

	active, err := repo.ListByStatus(ctx, entity.StatusRunning, entity.StatusPaused)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "b", active[0].ID)
	assert.Equal(t, "a", active[1].ID)

	none, err := repo.ListByStatus(ctx, entity.StatusCancelled)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestHistoryRepository_AppendKeepsOrder(t *testing.T) {
	repo := NewHistoryRepository(setupDB(t), nil)
	ctx := context.Background()
	now := time.Now().UTC()
	done := now.Add(time.Second)

	entries := []*entity.HistoryEntry{
		{WorkflowID: "wf-1", Name: "create", Type: entity.HistoryTypeWorkflow, Status: entity.StatusInitialized, StartedAt: now, CompletedAt: &now},
		{WorkflowID: "wf-1", Name: "start", Type: entity.HistoryTypeWorkflow, Status: entity.StatusRunning, StartedAt: now, CompletedAt: &now},
		{WorkflowID: "wf-2", Name: "create", Type: entity.HistoryTypeWorkflow, Status: entity.StatusInitialized, StartedAt: now},
		{WorkflowID: "wf-1", StepID: "analyze", Name: "Analyze", Type: entity.HistoryTypeStep, Status: entity.StepStatusFailed, StartedAt: now, CompletedAt: &done, Error: "boom"},
	}
	for _, e := range entries {
		require.NoError(t, repo.Append(ctx, e))
		assert.NotEmpty(t, e.ID)
	}

	got, err := repo.GetByWorkflowID(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "create", got[0].Name)
	assert.Equal(t, "start", got[1].Name)
	assert.Equal(t, "analyze", got[2].StepID)
	assert.Equal(t, "boom", got[2].Error)
	require.NotNil(t, got[2].CompletedAt)
	assert.WithinDuration(t, done, *got[2].CompletedAt, time.Millisecond)

	empty, err := repo.GetByWorkflowID(ctx, "unknown")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestTransactionManager_RollsBackMirrorWrites(t *testing.T) {
	db := setupDB(t)
	workflows := NewWorkflowRepository(db, nil)
	history := NewHistoryRepository(db, nil)
	ctx := context.Background()

	err := db.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := workflows.Save(txCtx, sampleWorkflow("wf-tx", entity.StatusRunning, time.Now())); err != nil {
			return err
		}
		if err := history.Append(txCtx, &entity.HistoryEntry{WorkflowID: "wf-tx", Name: "start", Type: entity.HistoryTypeWorkflow, Status: entity.StatusRunning, StartedAt: time.Now()}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.EqualError(t, err, "abort")

	_, err = workflows.GetByID(ctx, "wf-tx")
	assert.ErrorIs(t, err, port.ErrNotFound)

	got, err := history.GetByWorkflowID(ctx, "wf-tx")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, db.WithTransaction(ctx, func(txCtx context.Context) error {
		return workflows.Save(txCtx, sampleWorkflow("wf-tx", entity.StatusRunning, time.Now()))
	}))
	_, err = workflows.GetByID(ctx, "wf-tx")
	assert.NoError(t, err)
}
