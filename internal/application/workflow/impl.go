package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/buffrsign/esign-orchestrator/internal/application/dispatcher"
	"github.com/buffrsign/esign-orchestrator/internal/application/port"
	"github.com/buffrsign/esign-orchestrator/internal/domain/entity"
	"github.com/buffrsign/esign-orchestrator/internal/domain/event"
	domainwf "github.com/buffrsign/esign-orchestrator/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// record is the registry entry of one workflow. All fields are guarded by mu.
type record struct {
	mu        sync.Mutex
	wf        *entity.Workflow
	machine   domainwf.StateMachine
	history   []entity.HistoryEntry
	executing bool

	// cancels the context of the step in flight
	cancelStep context.CancelFunc

	// produced by transitions and step completions, drained by flush
	pendingEvents  []*event.Event
	pendingHistory []entity.HistoryEntry
}

// orchestratorImpl is the concrete implementation of Orchestrator
type orchestratorImpl struct {
	mu        sync.RWMutex
	workflows map[string]*record
	order     []string

	executors    *ExecutorRegistry
	runner       Runner
	dispatcher   dispatcher.Dispatcher
	workflowRepo port.WorkflowRepository
	historyRepo  port.HistoryRepository
	txManager    port.TransactionManager
	logger       Logger
	stepTimeout  time.Duration
}

// Option configures the orchestrator
type Option func(*orchestratorImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) Option {
	return func(o *orchestratorImpl) {
		o.dispatcher = d
	}
}

// WithExecutors sets the registry used to look up step executors
func WithExecutors(r *ExecutorRegistry) Option {
	return func(o *orchestratorImpl) {
		o.executors = r
	}
}

// WithRunner sets where step loops execute
func WithRunner(r Runner) Option {
	return func(o *orchestratorImpl) {
		o.runner = r
	}
}

// WithMirror records snapshots and history in SQL repositories.
// txManager may be nil.
func WithMirror(workflows port.WorkflowRepository, history port.HistoryRepository, txManager port.TransactionManager) Option {
	return func(o *orchestratorImpl) {
		o.workflowRepo = workflows
		o.historyRepo = history
		o.txManager = txManager
	}
}

// WithLogger sets a logger for the orchestrator
func WithLogger(logger Logger) Option {
	return func(o *orchestratorImpl) {
		o.logger = logger
	}
}

// WithStepTimeout bounds every executor call. Zero disables the bound.
func WithStepTimeout(d time.Duration) Option {
	return func(o *orchestratorImpl) {
		o.stepTimeout = d
	}
}

// NewOrchestrator creates a new workflow orchestrator
func NewOrchestrator(opts ...Option) Orchestrator {
	o := &orchestratorImpl{
		workflows: make(map[string]*record),
		executors: NewExecutorRegistry(),
		runner:    InlineRunner{},
		logger:    nopLogger{},
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// CreateWorkflow validates the request and registers a new INITIALIZED workflow
func (o *orchestratorImpl) CreateWorkflow(ctx context.Context, req CreateWorkflowRequest) (string, error) {
	if errs := entity.ValidateSteps(req.Steps); len(errs) > 0 {
		return "", &ValidationError{Errors: errs}
	}

	now := time.Now()
	steps := make([]entity.Step, len(req.Steps))
	for i, s := range req.Steps {
		steps[i] = s.Clone()
		steps[i].Result = nil
	}

	var metadata map[string]string
	if len(req.Metadata) > 0 {
		metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			metadata[k] = v
		}
	}

	wf := &entity.Workflow{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		Steps:       steps,
		Status:      entity.StatusInitialized,
		CreatedBy:   req.CreatedBy,
		Metadata:    metadata,
		CreatedAt:   now,
	}

	rec := o.newRecord(wf)

	rec.mu.Lock()
	rec.appendHistory(entity.HistoryEntry{
		Name:        "create",
		Type:        entity.HistoryTypeWorkflow,
		Status:      entity.StatusInitialized,
		StartedAt:   now,
		CompletedAt: &now,
	})
	rec.pendingEvents = append(rec.pendingEvents, event.NewEvent(event.TypeWorkflowCreated, wf.ID, map[string]interface{}{
		"name":       wf.Name,
		"step_count": len(wf.Steps),
		"created_by": wf.CreatedBy,
	}))

	o.mu.Lock()
	o.workflows[wf.ID] = rec
	o.order = append(o.order, wf.ID)
	o.mu.Unlock()

	o.flush(ctx, rec)
	rec.mu.Unlock()

	o.logger.Info("Workflow created",
		"workflow_id", wf.ID,
		"name", wf.Name,
		"step_count", len(wf.Steps),
	)

	return wf.ID, nil
}

// StartWorkflow moves the workflow to RUNNING and executes its steps from index 0
func (o *orchestratorImpl) StartWorkflow(ctx context.Context, id string) error {
	rec, err := o.lookup(id)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	if err := o.fire(ctx, rec, domainwf.TriggerStart); err != nil {
		rec.mu.Unlock()
		return err
	}
	rec.wf.CurrentStepIndex = 0
	rec.executing = true
	o.flush(ctx, rec)
	rec.mu.Unlock()

	o.logger.Info("Workflow started", "workflow_id", id)

	o.launch(ctx, rec)
	return nil
}

// PauseWorkflow stops execution after the step in flight
func (o *orchestratorImpl) PauseWorkflow(ctx context.Context, id string) error {
	return o.transition(ctx, id, domainwf.TriggerPause)
}

// ResumeWorkflow continues a paused workflow from its current step
func (o *orchestratorImpl) ResumeWorkflow(ctx context.Context, id string) error {
	rec, err := o.lookup(id)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	if err := o.fire(ctx, rec, domainwf.TriggerResume); err != nil {
		rec.mu.Unlock()
		return err
	}
	// A loop still waiting on a step picks up the RUNNING state by itself
	needsLoop := !rec.executing
	rec.executing = true
	o.flush(ctx, rec)
	rec.mu.Unlock()

	o.logger.Info("Workflow resumed", "workflow_id", id, "loop_started", needsLoop)

	if needsLoop {
		o.launch(ctx, rec)
	}
	return nil
}

// CancelWorkflow ends a non-terminal workflow
func (o *orchestratorImpl) CancelWorkflow(ctx context.Context, id string) error {
	rec, err := o.lookup(id)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	if err := o.fire(ctx, rec, domainwf.TriggerCancel); err != nil {
		rec.mu.Unlock()
		return err
	}
	if rec.cancelStep != nil {
		rec.cancelStep()
	}
	o.flush(ctx, rec)
	rec.mu.Unlock()

	o.logger.Info("Workflow cancelled", "workflow_id", id)
	return nil
}

// GetWorkflow returns a snapshot of the workflow
func (o *orchestratorImpl) GetWorkflow(ctx context.Context, id string) (*entity.Workflow, bool) {
	rec, err := o.lookup(id)
	if err != nil {
		return nil, false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.wf.Clone(), true
}

// GetWorkflowHistory returns the ordered audit history of the workflow
func (o *orchestratorImpl) GetWorkflowHistory(ctx context.Context, id string) ([]entity.HistoryEntry, error) {
	rec, err := o.lookup(id)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	out := make([]entity.HistoryEntry, len(rec.history))
	for i, h := range rec.history {
		out[i] = h
		if h.CompletedAt != nil {
			t := *h.CompletedAt
			out[i].CompletedAt = &t
		}
	}
	return out, nil
}

// GetActiveWorkflows returns snapshots of RUNNING and PAUSED workflows
func (o *orchestratorImpl) GetActiveWorkflows(ctx context.Context) []*entity.Workflow {
	return o.ListWorkflows(ctx, entity.StatusRunning, entity.StatusPaused)
}

// ListWorkflows returns snapshots in creation order, optionally filtered by status
func (o *orchestratorImpl) ListWorkflows(ctx context.Context, statuses ...string) []*entity.Workflow {
	filter := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		filter[s] = true
	}

	o.mu.RLock()
	records := make([]*record, 0, len(o.order))
	for _, id := range o.order {
		records = append(records, o.workflows[id])
	}
	o.mu.RUnlock()

	result := make([]*entity.Workflow, 0, len(records))
	for _, rec := range records {
		rec.mu.Lock()
		if len(filter) == 0 || filter[rec.wf.Status] {
			result = append(result, rec.wf.Clone())
		}
		rec.mu.Unlock()
	}

	return result
}

// ValidateWorkflowStep checks a single step without side effects
func (o *orchestratorImpl) ValidateWorkflowStep(step entity.Step) entity.StepValidation {
	return entity.ValidateStep(step)
}

func (o *orchestratorImpl) newRecord(wf *entity.Workflow) *record {
	rec := &record{wf: wf}
	rec.machine = BuildLifecycleStateMachine(domainwf.State(wf.Status), func(from, to domainwf.State, trigger domainwf.Trigger) {
		o.onTransition(rec, from, to, trigger)
	})
	return rec
}

func (o *orchestratorImpl) lookup(id string) (*record, error) {
	o.mu.RLock()
	rec, ok := o.workflows[id]
	o.mu.RUnlock()

	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return rec, nil
}

// transition fires a trigger that needs no follow-up work
func (o *orchestratorImpl) transition(ctx context.Context, id string, trigger domainwf.Trigger) error {
	rec, err := o.lookup(id)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if err := o.fire(ctx, rec, trigger); err != nil {
		return err
	}
	o.flush(ctx, rec)

	o.logger.Info("Workflow transitioned",
		"workflow_id", id,
		"trigger", trigger.String(),
		"status", rec.wf.Status,
	)
	return nil
}

// fire must be called with rec.mu held
func (o *orchestratorImpl) fire(ctx context.Context, rec *record, trigger domainwf.Trigger) error {
	current := rec.machine.State()
	if !rec.machine.CanFire(trigger) {
		return &InvalidStateError{Transition: trigger.Verb(), Current: current.String()}
	}
	if err := rec.machine.Fire(ctx, trigger); err != nil {
		return &InvalidStateError{Transition: trigger.Verb(), Current: current.String()}
	}
	return nil
}

// onTransition runs inside Fire, so rec.mu is already held
func (o *orchestratorImpl) onTransition(rec *record, from, to domainwf.State, trigger domainwf.Trigger) {
	now := time.Now()

	rec.wf.Status = to.String()
	if to == domainwf.StateRunning && rec.wf.StartedAt == nil {
		rec.wf.StartedAt = &now
	}
	if to.IsTerminal() {
		rec.wf.EndedAt = &now
	}

	rec.appendHistory(entity.HistoryEntry{
		Name:        trigger.Verb(),
		Type:        entity.HistoryTypeWorkflow,
		Status:      to.String(),
		StartedAt:   now,
		CompletedAt: &now,
	})

	if evtType, ok := transitionEvents[trigger]; ok {
		rec.pendingEvents = append(rec.pendingEvents, event.NewEvent(evtType, rec.wf.ID, map[string]interface{}{
			"name":    rec.wf.Name,
			"from":    from.String(),
			"to":      to.String(),
			"trigger": trigger.String(),
		}))
	}
}

var transitionEvents = map[domainwf.Trigger]event.Type{
	domainwf.TriggerStart:    event.TypeWorkflowStarted,
	domainwf.TriggerPause:    event.TypeWorkflowPaused,
	domainwf.TriggerResume:   event.TypeWorkflowResumed,
	domainwf.TriggerComplete: event.TypeWorkflowCompleted,
	domainwf.TriggerFail:     event.TypeWorkflowFailed,
	domainwf.TriggerCancel:   event.TypeWorkflowCancelled,
}

func (r *record) appendHistory(entry entity.HistoryEntry) {
	entry.ID = uuid.NewString()
	entry.WorkflowID = r.wf.ID
	r.history = append(r.history, entry)
	r.pendingHistory = append(r.pendingHistory, entry)
}

// launch hands the step loop to the runner, falling back to the caller's goroutine.
// The loop is detached from the caller's cancellation; CancelWorkflow and the
// step timeout are what stop a step.
func (o *orchestratorImpl) launch(ctx context.Context, rec *record) {
	id := rec.wf.ID
	ctx = context.WithoutCancel(ctx)
	err := o.runner.Run(ctx, id, func(runCtx context.Context) {
		o.runSteps(runCtx, rec)
	})
	if err != nil {
		o.logger.Error("Runner rejected workflow, executing inline",
			"workflow_id", id,
			"error", err,
		)
		o.runSteps(ctx, rec)
	}
}

// runSteps executes steps sequentially until the workflow leaves RUNNING or runs out of steps.
// The record lock is released while an executor runs so pause and cancel can land between steps.
func (o *orchestratorImpl) runSteps(ctx context.Context, rec *record) {
	for {
		rec.mu.Lock()
		if rec.machine.State() != domainwf.StateRunning {
			rec.executing = false
			rec.mu.Unlock()
			return
		}

		step := rec.wf.CurrentStep()
		if step == nil {
			if err := o.fire(ctx, rec, domainwf.TriggerComplete); err != nil {
				o.logger.Error("Failed to complete workflow", "workflow_id", rec.wf.ID, "error", err)
			}
			rec.executing = false
			o.flush(ctx, rec)
			rec.mu.Unlock()

			o.logger.Info("Workflow completed", "workflow_id", rec.wf.ID)
			return
		}

		index := rec.wf.CurrentStepIndex
		stepSnapshot := step.Clone()
		wfSnapshot := rec.wf.Clone()
		stepCtx, cancel := o.stepContext(ctx)
		rec.cancelStep = cancel
		rec.mu.Unlock()

		startedAt := time.Now()
		output, execErr := o.executeStep(stepCtx, wfSnapshot, stepSnapshot)
		cancel()
		completedAt := time.Now()

		rec.mu.Lock()
		rec.cancelStep = nil
		o.recordStepResult(rec, index, stepSnapshot, output, execErr, startedAt, completedAt)

		if execErr == nil {
			rec.wf.CurrentStepIndex = index + 1
		} else if rec.machine.State() == domainwf.StateRunning {
			if err := o.fire(ctx, rec, domainwf.TriggerFail); err != nil {
				o.logger.Error("Failed to fail workflow", "workflow_id", rec.wf.ID, "error", err)
			}
		}
		o.flush(ctx, rec)
		rec.mu.Unlock()

		if execErr != nil {
			o.logger.Error("Step failed",
				"workflow_id", wfSnapshot.ID,
				"step_id", stepSnapshot.ID,
				"step_type", stepSnapshot.Type.String(),
				"error", execErr,
			)
		}
	}
}

// recordStepResult must be called with rec.mu held
func (o *orchestratorImpl) recordStepResult(rec *record, index int, step entity.Step, output map[string]interface{}, execErr error, startedAt, completedAt time.Time) {
	result := &entity.StepResult{
		Status:      entity.StepStatusCompleted,
		Output:      output,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
	}
	entry := entity.HistoryEntry{
		StepID:      step.ID,
		Name:        stepName(step),
		Type:        entity.HistoryTypeStep,
		Status:      entity.StepStatusCompleted,
		StartedAt:   startedAt,
		CompletedAt: &completedAt,
	}
	payload := map[string]interface{}{
		"step_id":    step.ID,
		"step_type":  step.Type.String(),
		"step_index": index,
	}
	evtType := event.TypeStepCompleted

	if execErr != nil {
		result.Status = entity.StepStatusFailed
		result.Error = execErr.Error()
		entry.Status = entity.StepStatusFailed
		entry.Error = execErr.Error()
		payload["error"] = execErr.Error()
		evtType = event.TypeStepFailed
	} else {
		payload["output"] = entity.CloneMap(output)
	}

	rec.wf.Steps[index].Result = result
	rec.appendHistory(entry)
	rec.pendingEvents = append(rec.pendingEvents, event.NewEvent(evtType, rec.wf.ID, payload))
}

func (o *orchestratorImpl) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.stepTimeout > 0 {
		return context.WithTimeout(ctx, o.stepTimeout)
	}
	return context.WithCancel(ctx)
}

// executeStep runs the registered executor, converting panics into errors.
// Steps without an executor succeed without output.
func (o *orchestratorImpl) executeStep(ctx context.Context, wf *entity.Workflow, step entity.Step) (output map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			output = nil
			err = fmt.Errorf("step %s panicked: %v", step.ID, r)
		}
	}()

	exec, ok := o.executors.Get(step.Type)
	if !ok {
		return nil, nil
	}

	return exec.Execute(ctx, wf, step)
}

// flush mirrors pending history and publishes pending events. Caller holds rec.mu.
func (o *orchestratorImpl) flush(ctx context.Context, rec *record) {
	events := rec.pendingEvents
	entries := rec.pendingHistory
	rec.pendingEvents = nil
	rec.pendingHistory = nil

	if o.workflowRepo != nil || o.historyRepo != nil {
		o.mirror(context.WithoutCancel(ctx), rec.wf.Clone(), entries)
	}

	if o.dispatcher != nil {
		for _, evt := range events {
			o.dispatcher.DispatchAsync(ctx, evt)
		}
	}
}

// mirror writes the snapshot and new history rows. Failures are logged only;
// the in-memory registry stays authoritative.
func (o *orchestratorImpl) mirror(ctx context.Context, wf *entity.Workflow, entries []entity.HistoryEntry) {
	write := func(txCtx context.Context) error {
		if o.workflowRepo != nil {
			if err := o.workflowRepo.Save(txCtx, wf); err != nil {
				return fmt.Errorf("failed to save workflow: %w", err)
			}
		}
		if o.historyRepo != nil {
			for i := range entries {
				if err := o.historyRepo.Append(txCtx, &entries[i]); err != nil {
					return fmt.Errorf("failed to append history: %w", err)
				}
			}
		}
		return nil
	}

	var err error
	if o.txManager != nil {
		err = o.txManager.WithTransaction(ctx, write)
	} else {
		err = write(ctx)
	}

	if err != nil {
		o.logger.Error("Failed to mirror workflow",
			"workflow_id", wf.ID,
			"status", wf.Status,
			"error", err,
		)
	}
}

func stepName(step entity.Step) string {
	if step.Name != "" {
		return step.Name
	}
	return step.ID
}

var _ Orchestrator = (*orchestratorImpl)(nil)
