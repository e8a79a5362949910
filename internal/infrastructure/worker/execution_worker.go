package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/buffrsign/esign-orchestrator/internal/application/workflow"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

var (
	// ErrNotRunning is returned when a run is submitted before Start or after Stop
	ErrNotRunning = errors.New("execution worker is not running")
	// ErrQueueFull is returned when the run queue has no free slot
	ErrQueueFull = errors.New("execution queue is full")
)

// ExecutionWorkerConfig holds configuration for the execution worker
type ExecutionWorkerConfig struct {
	MaxConcurrent int
	QueueSize     int
}

// DefaultExecutionWorkerConfig returns default configuration
func DefaultExecutionWorkerConfig() ExecutionWorkerConfig {
	return ExecutionWorkerConfig{
		MaxConcurrent: 4,
		QueueSize:     64,
	}
}

type job struct {
	workflowID string
	fn         func(ctx context.Context)
}

// ExecutionStats is a snapshot of the worker counters
type ExecutionStats struct {
	Running   bool  `json:"running"`
	Queued    int   `json:"queued"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Panicked  int64 `json:"panicked"`
}

// ExecutionWorker runs workflow step loops on a bounded goroutine pool.
// It implements workflow.Runner.
type ExecutionWorker struct {
	config ExecutionWorkerConfig
	logger *zap.Logger

	mu        sync.RWMutex
	isRunning bool
	ctx       context.Context
	cancel    context.CancelFunc
	queue     chan job
	done      chan struct{}

	active    atomic.Int64
	completed atomic.Int64
	panicked  atomic.Int64
}

// NewExecutionWorker creates a new execution worker
func NewExecutionWorker(config ExecutionWorkerConfig, logger *zap.Logger) *ExecutionWorker {
	defaults := DefaultExecutionWorkerConfig()
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = defaults.MaxConcurrent
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecutionWorker{
		config: config,
		logger: logger,
	}
}

// Name returns the worker name
func (w *ExecutionWorker) Name() string {
	return "ExecutionWorker"
}

// Start begins consuming submitted runs
func (w *ExecutionWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		return fmt.Errorf("worker already running")
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.queue = make(chan job, w.config.QueueSize)
	w.done = make(chan struct{})
	w.isRunning = true

	go w.loop(w.ctx, w.queue, w.done)

	w.logger.Info("Execution worker started",
		zap.Int("max_concurrent", w.config.MaxConcurrent),
		zap.Int("queue_size", w.config.QueueSize))
	return nil
}

// Stop cancels in-flight runs and waits for them to return.
// Runs still queued are executed with the cancelled context so their
// steps fail instead of leaving workflows stuck.
func (w *ExecutionWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	w.cancel()
	done := w.done
	w.mu.Unlock()

	<-done

	w.logger.Info("Execution worker stopped",
		zap.Int64("completed", w.completed.Load()),
		zap.Int64("panicked", w.panicked.Load()))
	return nil
}

// Run queues fn for execution and returns immediately
func (w *ExecutionWorker) Run(_ context.Context, workflowID string, fn func(ctx context.Context)) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if !w.isRunning {
		return ErrNotRunning
	}

	select {
	case w.queue <- job{workflowID: workflowID, fn: fn}:
		return nil
	default:
		w.logger.Warn("Execution queue full", zap.String("workflow_id", workflowID))
		return ErrQueueFull
	}
}

// Stats returns the current counters
func (w *ExecutionWorker) Stats() ExecutionStats {
	w.mu.RLock()
	defer w.mu.RUnlock()

	queued := 0
	if w.queue != nil {
		queued = len(w.queue)
	}
	return ExecutionStats{
		Running:   w.isRunning,
		Queued:    queued,
		Active:    w.active.Load(),
		Completed: w.completed.Load(),
		Panicked:  w.panicked.Load(),
	}
}

func (w *ExecutionWorker) loop(ctx context.Context, queue chan job, done chan struct{}) {
	defer close(done)

	p := pool.New().WithMaxGoroutines(w.config.MaxConcurrent)
	defer p.Wait()

	for {
		select {
		case j := <-queue:
			p.Go(func() { w.execute(ctx, j) })
		case <-ctx.Done():
			// Run uses the read lock, so nothing is sent once isRunning is false
			for {
				select {
				case j := <-queue:
					p.Go(func() { w.execute(ctx, j) })
				default:
					return
				}
			}
		}
	}
}

func (w *ExecutionWorker) execute(ctx context.Context, j job) {
	w.active.Add(1)
	defer w.active.Add(-1)

	defer func() {
		if r := recover(); r != nil {
			w.panicked.Add(1)
			w.logger.Error("Workflow run panicked",
				zap.String("workflow_id", j.workflowID),
				zap.Any("panic", r))
			return
		}
		w.completed.Add(1)
	}()

	w.logger.Debug("Executing workflow run", zap.String("workflow_id", j.workflowID))
	j.fn(ctx)
}

var (
	_ workflow.Runner = (*ExecutionWorker)(nil)
	_ Worker          = (*ExecutionWorker)(nil)
)
