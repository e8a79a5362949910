package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/buffrsign/esign-orchestrator/internal/application/dispatcher"
	"github.com/buffrsign/esign-orchestrator/internal/application/port"
	"github.com/buffrsign/esign-orchestrator/internal/application/workflow"
	"github.com/buffrsign/esign-orchestrator/internal/auth"
	"github.com/buffrsign/esign-orchestrator/internal/definition"
	"github.com/buffrsign/esign-orchestrator/internal/infrastructure/external/openai"
	"github.com/buffrsign/esign-orchestrator/internal/infrastructure/report"
	"github.com/buffrsign/esign-orchestrator/internal/infrastructure/worker"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	database *DatabaseBundle

	// Infrastructure - External
	storage  port.DocumentStorage
	analyzer *openai.Analyzer
	tokens   *TokenBundle
	notifier port.Notifier

	// Application
	executors    *workflow.ExecutorRegistry
	dispatcher   dispatcher.Dispatcher
	orchestrator workflow.Orchestrator
	templates    *definition.Registry
	exporter     *report.HistoryExporter

	// Workers
	workers   *worker.WorkerManager
	execution *worker.ExecutionWorker

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Audit mirror database and repositories
// 2. External clients (storage, OpenAI, token service, notifier)
// 3. Step executors
// 4. Workers
// 5. Event dispatcher and orchestrator
// 6. Workflow templates and history exporter
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	steps := []struct {
		name string
		fn   func() error
	}{
		{"database", c.initDatabase},
		{"external clients", c.initExternalClients},
		{"executors", c.initExecutors},
		{"workers", c.initWorkers},
		{"orchestrator", c.initDispatcherAndOrchestrator},
		{"templates", c.initTemplates},
	}

	for _, step := range steps {
		if err := step.fn(); err != nil {
			c.teardown()
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
		c.logger.Info("Component initialized", zap.String("component", step.name))
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	errs := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// teardown releases whatever has been initialized, in reverse order
func (c *Container) teardown() []error {
	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	// Workers first so queued run loops drain before the dispatcher closes
	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
		c.workers = nil
	}

	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
		c.dispatcher = nil
	}

	if c.tokens != nil && c.tokens.Redis != nil {
		if err := c.tokens.Redis.Close(); err != nil {
			c.logger.Error("Failed to close redis", zap.Error(err))
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
		c.tokens.Redis = nil
	}

	if c.database != nil {
		if err := c.database.DB.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
		c.database = nil
	}

	return errs
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, h ComponentHealth) {
		status.Components[name] = h
		if !h.Healthy {
			status.Overall = false
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	switch {
	case !c.config.Database.Enabled:
		status.Components["database"] = ComponentHealth{Healthy: true, Message: "mirror disabled"}
	case c.database == nil:
		set("database", ComponentHealth{Healthy: false, Message: "not initialized"})
	default:
		if err := c.database.DB.PingContext(pingCtx); err != nil {
			set("database", ComponentHealth{Healthy: false, Message: fmt.Sprintf("ping failed: %v", err)})
		} else {
			set("database", ComponentHealth{Healthy: true, Message: string(c.database.DB.Dialect())})
		}
	}

	if c.tokens != nil && c.tokens.Redis != nil {
		if err := c.tokens.Redis.Ping(pingCtx); err != nil {
			set("token_blacklist", ComponentHealth{Healthy: false, Message: fmt.Sprintf("ping failed: %v", err)})
		} else {
			set("token_blacklist", ComponentHealth{Healthy: true, Message: "redis"})
		}
	} else if c.tokens != nil {
		set("token_blacklist", ComponentHealth{Healthy: true, Message: "memory"})
	}

	if c.workers != nil {
		msg := fmt.Sprintf("worker count: %d", c.workers.GetWorkerCount())
		if c.execution != nil {
			stats := c.execution.Stats()
			msg = fmt.Sprintf("%s, active: %d, queued: %d", msg, stats.Active, stats.Queued)
		}
		healthy := c.execution == nil || c.workers.IsRunning()
		set("workers", ComponentHealth{Healthy: healthy, Message: msg})
	} else {
		set("workers", ComponentHealth{Healthy: false, Message: "not initialized"})
	}

	if c.orchestrator != nil {
		active := len(c.orchestrator.GetActiveWorkflows(ctx))
		set("orchestrator", ComponentHealth{Healthy: true, Message: fmt.Sprintf("active workflows: %d", active)})
	} else {
		set("orchestrator", ComponentHealth{Healthy: false, Message: "not initialized"})
	}

	return status
}

// initDatabase opens the audit mirror when enabled.
func (c *Container) initDatabase() error {
	if !c.config.Database.Enabled {
		c.logger.Info("Audit mirror disabled, workflows are kept in memory only")
		return nil
	}

	bundle, err := ProvideDatabase(c.ctx, &c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.database = bundle

	c.logger.Info("Audit mirror ready",
		zap.String("dialect", string(bundle.DB.Dialect())),
		zap.Int("migrations_applied", bundle.Migrated))
	return nil
}

// initExternalClients initializes storage, OpenAI, the token service and the notifier.
func (c *Container) initExternalClients() error {
	store, err := ProvideStorage(c.ctx, &c.config.Storage, c.logger)
	if err != nil {
		return err
	}
	c.storage = store

	analyzer, err := ProvideAnalyzer(&c.config.OpenAI, c.logger)
	if err != nil {
		return err
	}
	c.analyzer = analyzer

	tokens, err := ProvideTokenService(c.ctx, &c.config.Auth, c.logger)
	if err != nil {
		return err
	}
	c.tokens = tokens

	c.notifier = ProvideNotifier(&c.config.Email, c.logger)
	return nil
}

// initExecutors registers the step executors.
func (c *Container) initExecutors() error {
	executors, err := ProvideExecutors(&ExecutorDeps{
		Storage:  c.storage,
		Analyzer: c.analyzer,
		Tokens:   c.tokens.Service,
		Notifier: c.notifier,
		Config:   c.config,
		Logger:   c.logger,
	})
	if err != nil {
		return err
	}

	c.executors = executors
	return nil
}

// initWorkers creates and starts the background workers.
func (c *Container) initWorkers() error {
	workers, execution, err := ProvideWorkers(&c.config.Orchestrator, c.logger)
	if err != nil {
		return err
	}
	c.workers = workers
	c.execution = execution

	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	return nil
}

// initDispatcherAndOrchestrator initializes the event dispatcher and the orchestrator.
func (c *Container) initDispatcherAndOrchestrator() error {
	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	var runner workflow.Runner
	if c.execution != nil {
		runner = c.execution
	}

	orchestrator, err := ProvideOrchestrator(&OrchestratorDeps{
		Executors:  c.executors,
		Dispatcher: c.dispatcher,
		Database:   c.database,
		Runner:     runner,
		Config:     &c.config.Orchestrator,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.orchestrator = orchestrator

	return nil
}

// initTemplates loads workflow templates and creates the history exporter.
func (c *Container) initTemplates() error {
	templates, err := definition.LoadDir(c.config.Orchestrator.TemplatesDir)
	if err != nil {
		return err
	}
	c.templates = templates
	c.exporter = report.NewHistoryExporter(c.logger)

	c.logger.Info("Workflow templates loaded", zap.Int("count", len(templates.List())))
	return nil
}

// Getters for accessing container components

// Orchestrator returns the workflow orchestrator.
func (c *Container) Orchestrator() workflow.Orchestrator {
	return c.orchestrator
}

// Tokens returns the token service.
func (c *Container) Tokens() *auth.Service {
	if c.tokens == nil {
		return nil
	}
	return c.tokens.Service
}

// Templates returns the workflow template registry.
func (c *Container) Templates() *definition.Registry {
	return c.templates
}

// Exporter returns the history exporter.
func (c *Container) Exporter() *report.HistoryExporter {
	return c.exporter
}

// Storage returns the document storage.
func (c *Container) Storage() port.DocumentStorage {
	return c.storage
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}

// LoggerAdapter adapts zap.Logger to the small Logger interfaces
// of the application packages.
type LoggerAdapter struct {
	logger *zap.Logger
}

// NewLoggerAdapter returns a key/value logger backed by zap.
func NewLoggerAdapter(logger *zap.Logger) *LoggerAdapter {
	return &LoggerAdapter{logger: logger}
}

func (a *LoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *LoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, isErr := keysAndValues[i+1].(error); isErr {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
