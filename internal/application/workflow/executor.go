package workflow

import (
	"context"
	"sync"

	"github.com/buffrsign/esign-orchestrator/internal/domain/entity"
)

// StepExecutor performs the work of one step type.
// The workflow passed in is a snapshot; the returned map becomes the step output.
type StepExecutor interface {
	Execute(ctx context.Context, wf *entity.Workflow, step entity.Step) (map[string]interface{}, error)
}

// StepExecutorFunc adapts a function to StepExecutor
type StepExecutorFunc func(ctx context.Context, wf *entity.Workflow, step entity.Step) (map[string]interface{}, error)

// Execute calls f
func (f StepExecutorFunc) Execute(ctx context.Context, wf *entity.Workflow, step entity.Step) (map[string]interface{}, error) {
	return f(ctx, wf, step)
}

// ExecutorRegistry maps step types to executors
type ExecutorRegistry struct {
	mu        sync.RWMutex
	executors map[entity.StepType]StepExecutor
}

// NewExecutorRegistry creates an empty registry
func NewExecutorRegistry() *ExecutorRegistry {
	return &ExecutorRegistry{executors: make(map[entity.StepType]StepExecutor)}
}

// Register sets the executor for a step type, replacing any previous one
func (r *ExecutorRegistry) Register(stepType entity.StepType, exec StepExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[stepType] = exec
}

// Get returns the executor for a step type
func (r *ExecutorRegistry) Get(stepType entity.StepType) (StepExecutor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.executors[stepType]
	return exec, ok
}

// Types returns the step types that have an executor
func (r *ExecutorRegistry) Types() []entity.StepType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]entity.StepType, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	return types
}
