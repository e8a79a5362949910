package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buffrsign/esign-orchestrator/internal/application/dispatcher"
	"github.com/buffrsign/esign-orchestrator/internal/domain/entity"
	"github.com/buffrsign/esign-orchestrator/internal/domain/event"
	domainwf "github.com/buffrsign/esign-orchestrator/internal/domain/workflow"
)

// Mock implementations

type mockWorkflowRepo struct {
	mu      sync.Mutex
	saved   map[string]*entity.Workflow
	saveErr error
}

func (m *mockWorkflowRepo) Save(ctx context.Context, wf *entity.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if m.saved == nil {
		m.saved = make(map[string]*entity.Workflow)
	}
	m.saved[wf.ID] = wf
	return nil
}

func (m *mockWorkflowRepo) GetByID(ctx context.Context, id string) (*entity.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[id], nil
}

func (m *mockWorkflowRepo) ListByStatus(ctx context.Context, statuses ...string) ([]*entity.Workflow, error) {
	return nil, nil
}

type mockHistoryRepo struct {
	mu      sync.Mutex
	entries []entity.HistoryEntry
}

func (m *mockHistoryRepo) Append(ctx context.Context, entry *entity.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *mockHistoryRepo) GetByWorkflowID(ctx context.Context, workflowID string) ([]entity.HistoryEntry, error) {
	return nil, nil
}

type mockTxManager struct {
	calls int
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	return fn(ctx)
}

type mockDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockDispatcher) Subscribe(eventType event.Type, handler dispatcher.Handler) {}

func (m *mockDispatcher) SubscribeNamed(eventType event.Type, name string, handler dispatcher.Handler) {}

func (m *mockDispatcher) Unsubscribe(eventType event.Type, name string) {}

func (m *mockDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	m.DispatchAsync(ctx, evt)
	return nil
}

func (m *mockDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *mockDispatcher) ListHandlers(eventType event.Type) []dispatcher.HandlerInfo { return nil }

func (m *mockDispatcher) Close() error { return nil }

func (m *mockDispatcher) Types() []event.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]event.Type, len(m.events))
	for i, e := range m.events {
		types[i] = e.Type
	}
	return types
}

type rejectingRunner struct{}

func (rejectingRunner) Run(ctx context.Context, id string, fn func(ctx context.Context)) error {
	return errors.New("queue full")
}

// gate blocks an executor until released and reports when it was entered
type gate struct {
	entered chan string
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan string, 10), release: make(chan struct{})}
}

func (g *gate) executor() StepExecutor {
	return StepExecutorFunc(func(ctx context.Context, wf *entity.Workflow, step entity.Step) (map[string]interface{}, error) {
		g.entered <- step.ID
		select {
		case <-g.release:
			return map[string]interface{}{"step": step.ID}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

func (g *gate) waitEntered(t *testing.T) string {
	t.Helper()
	select {
	case id := <-g.entered:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("executor was never entered")
		return ""
	}
}

// Helpers

func analysisStep(id string) entity.Step {
	return entity.Step{
		ID:     id,
		Type:   entity.StepTypeDocumentAnalysis,
		Name:   "Analyze " + id,
		Config: map[string]interface{}{"document_path": "docs/" + id + ".pdf"},
	}
}

func complianceStep(id string) entity.Step {
	return entity.Step{
		ID:     id,
		Type:   entity.StepTypeComplianceCheck,
		Name:   "Check " + id,
		Config: map[string]interface{}{"framework": "ETA"},
	}
}

func threeStepRequest() CreateWorkflowRequest {
	return CreateWorkflowRequest{
		Name:        "Lease agreement",
		Description: "Analyze, check and route a lease",
		Steps:       []entity.Step{analysisStep("a"), complianceStep("b"), analysisStep("c")},
	}
}

func mustCreate(t *testing.T, o Orchestrator, req CreateWorkflowRequest) string {
	t.Helper()
	id, err := o.CreateWorkflow(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	return id
}

func status(t *testing.T, o Orchestrator, id string) string {
	t.Helper()
	wf, ok := o.GetWorkflow(context.Background(), id)
	require.True(t, ok)
	return wf.Status
}

// Tests

func TestCreateWorkflow_EmptyStepsFails(t *testing.T) {
	o := NewOrchestrator()

	for _, steps := range [][]entity.Step{nil, {}} {
		id, err := o.CreateWorkflow(context.Background(), CreateWorkflowRequest{Name: "empty", Steps: steps})

		assert.Empty(t, id)
		require.Error(t, err)
		assert.Equal(t, "Workflow must have at least one step", err.Error())
		assert.ErrorIs(t, err, ErrValidation)

		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, []string{"Workflow must have at least one step"}, ve.Errors)
	}

	assert.Empty(t, o.ListWorkflows(context.Background()))
}

func TestCreateWorkflow_ReportsEveryViolation(t *testing.T) {
	o := NewOrchestrator()

	_, err := o.CreateWorkflow(context.Background(), CreateWorkflowRequest{
		Name: "broken",
		Steps: []entity.Step{
			{ID: "", Type: entity.StepTypeComplianceCheck, Config: map[string]interface{}{"framework": "ETA"}},
			{ID: "x", Type: entity.StepType("teleport")},
			analysisStep("a"),
			analysisStep("a"),
		},
	})

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 3)
	assert.Contains(t, ve.Errors[0], "steps[0]: step id is required")
	assert.Contains(t, ve.Errors[1], `steps[1]: unknown step type "teleport"`)
	assert.Contains(t, ve.Errors[2], "steps[3]: duplicate step id")
}

func TestCreateWorkflow_RoundTrip(t *testing.T) {
	o := NewOrchestrator()
	req := threeStepRequest()

	id := mustCreate(t, o, req)

	wf, ok := o.GetWorkflow(context.Background(), id)
	require.True(t, ok)
	assert.Equal(t, id, wf.ID)
	assert.Equal(t, req.Name, wf.Name)
	assert.Equal(t, req.Description, wf.Description)
	assert.Equal(t, req.Steps, wf.Steps)
	assert.Equal(t, entity.StatusInitialized, wf.Status)
	assert.Equal(t, 0, wf.CurrentStepIndex)
	assert.False(t, wf.CreatedAt.IsZero())
	assert.Nil(t, wf.StartedAt)
	assert.Nil(t, wf.EndedAt)
}

func TestCreateWorkflow_AssignsUniqueIDs(t *testing.T) {
	o := NewOrchestrator()
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		id := mustCreate(t, o, threeStepRequest())
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestGetWorkflow_ReturnsIsolatedSnapshot(t *testing.T) {
	o := NewOrchestrator()
	req := threeStepRequest()
	id := mustCreate(t, o, req)

	// Mutating the request after creation must not leak in
	req.Steps[0].Config["document_path"] = "tampered.pdf"

	snap, _ := o.GetWorkflow(context.Background(), id)
	snap.Status = entity.StatusCompleted
	snap.Steps[1].ID = "mutated"
	snap.Steps[0].Config["document_path"] = "other.pdf"

	fresh, _ := o.GetWorkflow(context.Background(), id)
	assert.Equal(t, entity.StatusInitialized, fresh.Status)
	assert.Equal(t, "b", fresh.Steps[1].ID)
	assert.Equal(t, "docs/a.pdf", fresh.Steps[0].Config["document_path"])
}

func TestUnknownWorkflow(t *testing.T) {
	o := NewOrchestrator()
	ctx := context.Background()

	ops := map[string]func() error{
		"start":  func() error { return o.StartWorkflow(ctx, "missing") },
		"pause":  func() error { return o.PauseWorkflow(ctx, "missing") },
		"resume": func() error { return o.ResumeWorkflow(ctx, "missing") },
		"cancel": func() error { return o.CancelWorkflow(ctx, "missing") },
		"history": func() error {
			_, err := o.GetWorkflowHistory(ctx, "missing")
			return err
		},
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			err := op()
			assert.ErrorIs(t, err, ErrNotFound)
			var nf *NotFoundError
			require.ErrorAs(t, err, &nf)
			assert.Equal(t, "missing", nf.ID)
		})
	}

	wf, ok := o.GetWorkflow(ctx, "missing")
	assert.False(t, ok)
	assert.Nil(t, wf)
}

func TestStartWorkflow_NoExecutorsCompletesImmediately(t *testing.T) {
	o := NewOrchestrator()
	id := mustCreate(t, o, threeStepRequest())

	require.NoError(t, o.StartWorkflow(context.Background(), id))

	wf, _ := o.GetWorkflow(context.Background(), id)
	assert.Equal(t, entity.StatusCompleted, wf.Status)
	assert.Equal(t, 3, wf.CurrentStepIndex)
	require.NotNil(t, wf.StartedAt)
	require.NotNil(t, wf.EndedAt)
	assert.False(t, wf.EndedAt.Before(*wf.StartedAt))
	for _, s := range wf.Steps {
		require.NotNil(t, s.Result, s.ID)
		assert.Equal(t, entity.StepStatusCompleted, s.Result.Status)
	}

	history, err := o.GetWorkflowHistory(context.Background(), id)
	require.NoError(t, err)

	var names []string
	for _, h := range history {
		names = append(names, h.Name)
		assert.False(t, h.StartedAt.IsZero(), "entry %s has no start time", h.Name)
		assert.NotEmpty(t, h.ID)
		assert.Equal(t, id, h.WorkflowID)
	}
	assert.Equal(t, []string{"create", "start", "Analyze a", "Check b", "Analyze c", "complete"}, names)
	assert.Empty(t, o.GetActiveWorkflows(context.Background()))
}

func TestStartWorkflow_StepsWithoutConfigComplete(t *testing.T) {
	o := NewOrchestrator()
	id := mustCreate(t, o, CreateWorkflowRequest{
		Name: "bare",
		Steps: []entity.Step{
			{ID: "a", Type: entity.StepTypeDocumentAnalysis},
			{ID: "b", Type: entity.StepTypeComplianceCheck, Config: map[string]interface{}{"framework": "ETA", "note": "x"}},
			{ID: "c", Type: entity.StepTypeSignatureRouting},
		},
	})

	require.NoError(t, o.StartWorkflow(context.Background(), id))
	assert.Equal(t, entity.StatusCompleted, status(t, o, id))
}

func TestStartWorkflow_CallerCancellationDoesNotFailStep(t *testing.T) {
	registry := NewExecutorRegistry()
	registry.Register(entity.StepTypeDocumentAnalysis, StepExecutorFunc(func(ctx context.Context, wf *entity.Workflow, step entity.Step) (map[string]interface{}, error) {
		select {
		case <-time.After(100 * time.Millisecond):
			return map[string]interface{}{"step": step.ID}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}))

	o := NewOrchestrator(WithExecutors(registry))
	id := mustCreate(t, o, CreateWorkflowRequest{Name: "slow", Steps: []entity.Step{analysisStep("a")}})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.NoError(t, o.StartWorkflow(ctx, id))

	wf, _ := o.GetWorkflow(context.Background(), id)
	assert.Equal(t, entity.StatusCompleted, wf.Status)
	require.NotNil(t, wf.Steps[0].Result)
	assert.Empty(t, wf.Steps[0].Result.Error)
}

func TestStartWorkflow_RunsExecutorsInOrder(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	var sawPrevious bool

	registry := NewExecutorRegistry()
	record := StepExecutorFunc(func(ctx context.Context, wf *entity.Workflow, step entity.Step) (map[string]interface{}, error) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, step.ID)
		if step.ID == "b" {
			_, sawPrevious = wf.StepOutput(entity.StepTypeDocumentAnalysis)
		}
		return map[string]interface{}{"handled": step.ID}, nil
	})
	registry.Register(entity.StepTypeDocumentAnalysis, record)
	registry.Register(entity.StepTypeComplianceCheck, record)

	o := NewOrchestrator(WithExecutors(registry))
	id := mustCreate(t, o, threeStepRequest())

	require.NoError(t, o.StartWorkflow(context.Background(), id))

	assert.Equal(t, []string{"a", "b", "c"}, calls)
	assert.True(t, sawPrevious, "later steps should see earlier outputs")

	wf, _ := o.GetWorkflow(context.Background(), id)
	assert.Equal(t, entity.StatusCompleted, wf.Status)
	assert.Equal(t, "b", wf.Steps[1].Result.Output["handled"])
}

func TestStartWorkflow_StepErrorFailsWorkflow(t *testing.T) {
	registry := NewExecutorRegistry()
	registry.Register(entity.StepTypeComplianceCheck, StepExecutorFunc(func(ctx context.Context, wf *entity.Workflow, step entity.Step) (map[string]interface{}, error) {
		return nil, errors.New("signature block missing")
	}))

	o := NewOrchestrator(WithExecutors(registry))
	id := mustCreate(t, o, threeStepRequest())

	// Failure is observable via status, not the return value
	require.NoError(t, o.StartWorkflow(context.Background(), id))

	wf, _ := o.GetWorkflow(context.Background(), id)
	assert.Equal(t, entity.StatusFailed, wf.Status)
	assert.Equal(t, 1, wf.CurrentStepIndex)
	require.NotNil(t, wf.EndedAt)
	require.NotNil(t, wf.Steps[1].Result)
	assert.Equal(t, entity.StepStatusFailed, wf.Steps[1].Result.Status)
	assert.Equal(t, "signature block missing", wf.Steps[1].Result.Error)
	assert.Nil(t, wf.Steps[2].Result, "steps after a failure must not run")

	history, _ := o.GetWorkflowHistory(context.Background(), id)
	var stepErr string
	for _, h := range history {
		if h.StepID == "b" {
			stepErr = h.Error
		}
	}
	assert.Equal(t, "signature block missing", stepErr)
	assert.Equal(t, entity.StatusFailed, history[len(history)-1].Status)
	assert.Equal(t, "fail", history[len(history)-1].Name)
}

func TestStartWorkflow_StepPanicFailsWorkflow(t *testing.T) {
	registry := NewExecutorRegistry()
	registry.Register(entity.StepTypeDocumentAnalysis, StepExecutorFunc(func(ctx context.Context, wf *entity.Workflow, step entity.Step) (map[string]interface{}, error) {
		panic("corrupt pdf")
	}))

	o := NewOrchestrator(WithExecutors(registry))
	id := mustCreate(t, o, threeStepRequest())

	require.NoError(t, o.StartWorkflow(context.Background(), id))

	wf, _ := o.GetWorkflow(context.Background(), id)
	assert.Equal(t, entity.StatusFailed, wf.Status)
	assert.Contains(t, wf.Steps[0].Result.Error, "corrupt pdf")
}

func TestStartWorkflow_StepTimeout(t *testing.T) {
	registry := NewExecutorRegistry()
	registry.Register(entity.StepTypeDocumentAnalysis, StepExecutorFunc(func(ctx context.Context, wf *entity.Workflow, step entity.Step) (map[string]interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	o := NewOrchestrator(WithExecutors(registry), WithStepTimeout(20*time.Millisecond))
	id := mustCreate(t, o, threeStepRequest())

	require.NoError(t, o.StartWorkflow(context.Background(), id))

	wf, _ := o.GetWorkflow(context.Background(), id)
	assert.Equal(t, entity.StatusFailed, wf.Status)
	assert.Contains(t, wf.Steps[0].Result.Error, context.DeadlineExceeded.Error())
}

func TestPauseAndResume_ContinuesFromCurrentStep(t *testing.T) {
	g := newGate()
	var mu sync.Mutex
	counts := map[string]int{}

	registry := NewExecutorRegistry()
	registry.Register(entity.StepTypeDocumentAnalysis, StepExecutorFunc(func(ctx context.Context, wf *entity.Workflow, step entity.Step) (map[string]interface{}, error) {
		mu.Lock()
		counts[step.ID]++
		mu.Unlock()
		if step.ID == "a" {
			return g.executor().Execute(ctx, wf, step)
		}
		return nil, nil
	}))

	o := NewOrchestrator(WithExecutors(registry))
	id := mustCreate(t, o, threeStepRequest())
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- o.StartWorkflow(ctx, id) }()

	assert.Equal(t, "a", g.waitEntered(t))
	assert.Equal(t, entity.StatusRunning, status(t, o, id))
	assert.Len(t, o.GetActiveWorkflows(ctx), 1)

	require.NoError(t, o.PauseWorkflow(ctx, id))
	close(g.release)
	require.NoError(t, <-done)

	wf, _ := o.GetWorkflow(ctx, id)
	assert.Equal(t, entity.StatusPaused, wf.Status)
	assert.Equal(t, 1, wf.CurrentStepIndex, "the step in flight finishes before pausing")
	assert.Len(t, o.GetActiveWorkflows(ctx), 1)

	require.NoError(t, o.ResumeWorkflow(ctx, id))

	assert.Equal(t, entity.StatusCompleted, status(t, o, id))
	assert.Equal(t, map[string]int{"a": 1, "c": 1}, counts)
	assert.Empty(t, o.GetActiveWorkflows(ctx))
}

func TestResume_WhileStepInFlightDoesNotRunTwice(t *testing.T) {
	g := newGate()
	var mu sync.Mutex
	counts := map[string]int{}

	registry := NewExecutorRegistry()
	registry.Register(entity.StepTypeDocumentAnalysis, StepExecutorFunc(func(ctx context.Context, wf *entity.Workflow, step entity.Step) (map[string]interface{}, error) {
		mu.Lock()
		counts[step.ID]++
		mu.Unlock()
		if step.ID == "a" {
			return g.executor().Execute(ctx, wf, step)
		}
		return nil, nil
	}))

	o := NewOrchestrator(WithExecutors(registry))
	id := mustCreate(t, o, threeStepRequest())
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- o.StartWorkflow(ctx, id) }()
	g.waitEntered(t)

	require.NoError(t, o.PauseWorkflow(ctx, id))
	require.NoError(t, o.ResumeWorkflow(ctx, id))
	close(g.release)
	require.NoError(t, <-done)

	assert.Equal(t, entity.StatusCompleted, status(t, o, id))
	assert.Equal(t, map[string]int{"a": 1, "c": 1}, counts)
}

func TestCancelWorkflow_StopsStepInFlight(t *testing.T) {
	g := newGate()
	var mu sync.Mutex
	var calls []string

	registry := NewExecutorRegistry()
	registry.Register(entity.StepTypeDocumentAnalysis, StepExecutorFunc(func(ctx context.Context, wf *entity.Workflow, step entity.Step) (map[string]interface{}, error) {
		mu.Lock()
		calls = append(calls, step.ID)
		mu.Unlock()
		return g.executor().Execute(ctx, wf, step)
	}))

	o := NewOrchestrator(WithExecutors(registry))
	id := mustCreate(t, o, threeStepRequest())
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- o.StartWorkflow(ctx, id) }()
	g.waitEntered(t)

	require.NoError(t, o.CancelWorkflow(ctx, id))
	require.NoError(t, <-done)

	wf, _ := o.GetWorkflow(ctx, id)
	assert.Equal(t, entity.StatusCancelled, wf.Status)
	assert.Equal(t, []string{"a"}, calls)
	require.NotNil(t, wf.Steps[0].Result)
	assert.Equal(t, entity.StepStatusFailed, wf.Steps[0].Result.Status)
	assert.Nil(t, wf.Steps[1].Result)
	assert.Empty(t, o.GetActiveWorkflows(ctx))
}

func TestCancelWorkflow_FromInitialized(t *testing.T) {
	o := NewOrchestrator()
	id := mustCreate(t, o, threeStepRequest())

	require.NoError(t, o.CancelWorkflow(context.Background(), id))

	wf, _ := o.GetWorkflow(context.Background(), id)
	assert.Equal(t, entity.StatusCancelled, wf.Status)
	assert.NotNil(t, wf.EndedAt)

	err := o.StartWorkflow(context.Background(), id)
	var ise *InvalidStateError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, "start", ise.Transition)
	assert.Equal(t, entity.StatusCancelled, ise.Current)
}

func TestInvalidTransitions(t *testing.T) {
	ctx := context.Background()

	failing := NewExecutorRegistry()
	failing.Register(entity.StepTypeDocumentAnalysis, StepExecutorFunc(func(ctx context.Context, wf *entity.Workflow, step entity.Step) (map[string]interface{}, error) {
		return nil, errors.New("boom")
	}))

	// setups bring a fresh workflow into the named state
	setups := map[string]func(t *testing.T) (Orchestrator, string){
		entity.StatusInitialized: func(t *testing.T) (Orchestrator, string) {
			o := NewOrchestrator()
			return o, mustCreate(t, o, threeStepRequest())
		},
		entity.StatusCompleted: func(t *testing.T) (Orchestrator, string) {
			o := NewOrchestrator()
			id := mustCreate(t, o, threeStepRequest())
			require.NoError(t, o.StartWorkflow(ctx, id))
			return o, id
		},
		entity.StatusFailed: func(t *testing.T) (Orchestrator, string) {
			o := NewOrchestrator(WithExecutors(failing))
			id := mustCreate(t, o, threeStepRequest())
			require.NoError(t, o.StartWorkflow(ctx, id))
			return o, id
		},
		entity.StatusCancelled: func(t *testing.T) (Orchestrator, string) {
			o := NewOrchestrator()
			id := mustCreate(t, o, threeStepRequest())
			require.NoError(t, o.CancelWorkflow(ctx, id))
			return o, id
		},
	}

	ops := map[string]func(o Orchestrator, id string) error{
		"start":  func(o Orchestrator, id string) error { return o.StartWorkflow(ctx, id) },
		"pause":  func(o Orchestrator, id string) error { return o.PauseWorkflow(ctx, id) },
		"resume": func(o Orchestrator, id string) error { return o.ResumeWorkflow(ctx, id) },
		"cancel": func(o Orchestrator, id string) error { return o.CancelWorkflow(ctx, id) },
	}

	allowed := map[string]map[string]bool{
		entity.StatusInitialized: {"start": true, "cancel": true},
	}

	for state, setup := range setups {
		for opName, op := range ops {
			t.Run(state+"/"+opName, func(t *testing.T) {
				o, id := setup(t)
				require.Equal(t, state, status(t, o, id))
				before, _ := o.GetWorkflowHistory(ctx, id)

				err := op(o, id)

				if allowed[state][opName] {
					assert.NoError(t, err)
					return
				}

				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidState)
				assert.ErrorIs(t, err, domainwf.ErrInvalidTransition)

				var ise *InvalidStateError
				require.ErrorAs(t, err, &ise)
				assert.Equal(t, opName, ise.Transition)
				assert.Equal(t, state, ise.Current)

				assert.Equal(t, state, status(t, o, id), "rejected transition must not change status")
				after, _ := o.GetWorkflowHistory(ctx, id)
				assert.Len(t, after, len(before), "rejected transition must not add history")
			})
		}
	}
}

func TestInvalidTransitions_FromRunningAndPaused(t *testing.T) {
	g := newGate()
	registry := NewExecutorRegistry()
	registry.Register(entity.StepTypeDocumentAnalysis, g.executor())

	o := NewOrchestrator(WithExecutors(registry))
	id := mustCreate(t, o, threeStepRequest())
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- o.StartWorkflow(ctx, id) }()
	g.waitEntered(t)

	assert.ErrorIs(t, o.StartWorkflow(ctx, id), ErrInvalidState)
	assert.ErrorIs(t, o.ResumeWorkflow(ctx, id), ErrInvalidState)

	require.NoError(t, o.PauseWorkflow(ctx, id))
	assert.ErrorIs(t, o.PauseWorkflow(ctx, id), ErrInvalidState)
	assert.ErrorIs(t, o.StartWorkflow(ctx, id), ErrInvalidState)

	require.NoError(t, o.CancelWorkflow(ctx, id))
	require.NoError(t, <-done)
	assert.Equal(t, entity.StatusCancelled, status(t, o, id))
}

func TestHistory_MonotonicAndStamped(t *testing.T) {
	g := newGate()
	registry := NewExecutorRegistry()
	registry.Register(entity.StepTypeComplianceCheck, g.executor())

	o := NewOrchestrator(WithExecutors(registry))
	id := mustCreate(t, o, threeStepRequest())
	ctx := context.Background()

	var lengths []int
	snapshot := func() {
		h, err := o.GetWorkflowHistory(ctx, id)
		require.NoError(t, err)
		for _, e := range h {
			require.False(t, e.StartedAt.IsZero())
		}
		lengths = append(lengths, len(h))
	}

	snapshot()
	done := make(chan error, 1)
	go func() { done <- o.StartWorkflow(ctx, id) }()
	g.waitEntered(t)
	snapshot()
	require.NoError(t, o.PauseWorkflow(ctx, id))
	snapshot()
	close(g.release)
	require.NoError(t, <-done)
	snapshot()
	require.NoError(t, o.ResumeWorkflow(ctx, id))
	snapshot()
	_ = o.PauseWorkflow(ctx, id) // rejected on a completed workflow
	snapshot()

	for i := 1; i < len(lengths); i++ {
		assert.GreaterOrEqual(t, lengths[i], lengths[i-1], "history shrank: %v", lengths)
	}
	assert.Equal(t, entity.StatusCompleted, status(t, o, id))
}

func TestGetActiveWorkflows_ExcludesTerminal(t *testing.T) {
	g := newGate()
	registry := NewExecutorRegistry()
	registry.Register(entity.StepTypeSignatureRouting, g.executor())

	o := NewOrchestrator(WithExecutors(registry))
	ctx := context.Background()

	completed := mustCreate(t, o, threeStepRequest())
	require.NoError(t, o.StartWorkflow(ctx, completed))

	cancelled := mustCreate(t, o, threeStepRequest())
	require.NoError(t, o.CancelWorkflow(ctx, cancelled))

	_ = mustCreate(t, o, threeStepRequest())

	routing := CreateWorkflowRequest{
		Name: "route",
		Steps: []entity.Step{{
			ID:   "route",
			Type: entity.StepTypeSignatureRouting,
			Config: map[string]interface{}{
				"document_id": "doc-1",
				"signers":     []interface{}{map[string]interface{}{"email": "a@example.com"}},
			},
		}},
	}
	running := mustCreate(t, o, routing)
	done := make(chan error, 1)
	go func() { done <- o.StartWorkflow(ctx, running) }()
	g.waitEntered(t)

	active := o.GetActiveWorkflows(ctx)
	require.Len(t, active, 1)
	assert.Equal(t, running, active[0].ID)
	for _, wf := range active {
		assert.True(t, wf.IsActive())
	}

	close(g.release)
	require.NoError(t, <-done)
	assert.Empty(t, o.GetActiveWorkflows(ctx))

	assert.Len(t, o.ListWorkflows(ctx), 4)
	assert.Len(t, o.ListWorkflows(ctx, entity.StatusCompleted), 2)
	assert.Len(t, o.ListWorkflows(ctx, entity.StatusInitialized), 1)
}

func TestEventsAndMirror(t *testing.T) {
	d := &mockDispatcher{}
	wfRepo := &mockWorkflowRepo{}
	histRepo := &mockHistoryRepo{}
	tx := &mockTxManager{}

	o := NewOrchestrator(WithDispatcher(d), WithMirror(wfRepo, histRepo, tx))
	id := mustCreate(t, o, CreateWorkflowRequest{Name: "one", Steps: []entity.Step{analysisStep("a")}})

	require.NoError(t, o.StartWorkflow(context.Background(), id))

	assert.Equal(t, []event.Type{
		event.TypeWorkflowCreated,
		event.TypeWorkflowStarted,
		event.TypeStepCompleted,
		event.TypeWorkflowCompleted,
	}, d.Types())

	saved, _ := wfRepo.GetByID(context.Background(), id)
	require.NotNil(t, saved)
	assert.Equal(t, entity.StatusCompleted, saved.Status)

	history, _ := o.GetWorkflowHistory(context.Background(), id)
	assert.Equal(t, history, histRepo.entries)
	assert.Positive(t, tx.calls)
}

func TestMirrorErrorsDoNotSurface(t *testing.T) {
	wfRepo := &mockWorkflowRepo{saveErr: errors.New("disk full")}
	o := NewOrchestrator(WithMirror(wfRepo, &mockHistoryRepo{}, nil))

	id := mustCreate(t, o, threeStepRequest())
	require.NoError(t, o.StartWorkflow(context.Background(), id))
	assert.Equal(t, entity.StatusCompleted, status(t, o, id))
}

func TestRunnerRejectionFallsBackInline(t *testing.T) {
	o := NewOrchestrator(WithRunner(rejectingRunner{}))
	id := mustCreate(t, o, threeStepRequest())

	require.NoError(t, o.StartWorkflow(context.Background(), id))
	assert.Equal(t, entity.StatusCompleted, status(t, o, id))
}

func TestValidateWorkflowStep(t *testing.T) {
	o := NewOrchestrator()

	valid := o.ValidateWorkflowStep(analysisStep("a"))
	assert.True(t, valid.IsValid)
	assert.Empty(t, valid.Errors)

	invalid := o.ValidateWorkflowStep(entity.Step{Type: entity.StepType("fax")})
	assert.False(t, invalid.IsValid)
	assert.Len(t, invalid.Errors, 2)
}

func TestBuildLifecycleStateMachine_Edges(t *testing.T) {
	expected := map[domainwf.State][]domainwf.Trigger{
		domainwf.StateInitialized: {domainwf.TriggerCancel, domainwf.TriggerStart},
		domainwf.StateRunning:     {domainwf.TriggerCancel, domainwf.TriggerComplete, domainwf.TriggerFail, domainwf.TriggerPause},
		domainwf.StatePaused:      {domainwf.TriggerCancel, domainwf.TriggerResume},
		domainwf.StateCompleted:   {},
		domainwf.StateFailed:      {},
		domainwf.StateCancelled:   {},
	}

	for state, triggers := range expected {
		m := BuildLifecycleStateMachine(state)
		assert.Equal(t, triggers, m.PermittedTriggers(), state)
	}
}
