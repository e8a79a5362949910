package container

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/buffrsign/esign-orchestrator/internal/application/dispatcher"
	"github.com/buffrsign/esign-orchestrator/internal/application/port"
	"github.com/buffrsign/esign-orchestrator/internal/application/service"
	"github.com/buffrsign/esign-orchestrator/internal/application/workflow"
	"github.com/buffrsign/esign-orchestrator/internal/auth"
	"github.com/buffrsign/esign-orchestrator/internal/domain/entity"
	"github.com/buffrsign/esign-orchestrator/internal/domain/event"
	"github.com/buffrsign/esign-orchestrator/internal/email"
	"github.com/buffrsign/esign-orchestrator/internal/infrastructure/cache"
	"github.com/buffrsign/esign-orchestrator/internal/infrastructure/document"
	"github.com/buffrsign/esign-orchestrator/internal/infrastructure/external/openai"
	"github.com/buffrsign/esign-orchestrator/internal/infrastructure/persistence/repository"
	"github.com/buffrsign/esign-orchestrator/internal/infrastructure/persistence/sqldb"
	"github.com/buffrsign/esign-orchestrator/internal/infrastructure/storage"
	"github.com/buffrsign/esign-orchestrator/internal/infrastructure/worker"
	"github.com/buffrsign/esign-orchestrator/pkg/database"
)

// DatabaseBundle holds the audit mirror components.
type DatabaseBundle struct {
	DB        *database.DB
	TxManager *sqldb.DB
	Workflows port.WorkflowRepository
	History   port.HistoryRepository
	Migrated  int
}

// ProvideDatabase opens the mirror database, applies pending migrations
// and builds the repositories on top of it.
func ProvideDatabase(ctx context.Context, cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Driver:          cfg.Driver,
		Path:            cfg.Path,
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	applied, err := database.NewMigrator(db, logger).RunMigrations(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	txManager := sqldb.FromDatabase(db, logger)

	return &DatabaseBundle{
		DB:        db,
		TxManager: txManager,
		Workflows: repository.NewWorkflowRepository(txManager, logger),
		History:   repository.NewHistoryRepository(txManager, logger),
		Migrated:  applied,
	}, nil
}

// ProvideStorage creates the document storage selected by cfg.Backend.
func ProvideStorage(ctx context.Context, cfg *StorageConfig, logger *zap.Logger) (port.DocumentStorage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("storage config is required")
	}

	switch strings.ToLower(cfg.Backend) {
	case "", "local":
		return storage.NewLocalFileStorage(cfg.BaseDir, logger), nil
	case "s3":
		s3, err := storage.NewS3Storage(ctx, storage.S3Config{
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			Bucket:       cfg.S3Bucket,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UseSSL:       cfg.S3UseSSL,
			Prefix:       cfg.S3Prefix,
			CreateBucket: cfg.S3CreateBucket,
		}, logger)
		if err != nil {
			return nil, err
		}
		return s3, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}

// ProvideAnalyzer creates the OpenAI analyzer. It returns nil without an API key.
func ProvideAnalyzer(cfg *OpenAIConfig, logger *zap.Logger) (*openai.Analyzer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("openai config is required")
	}
	if cfg.APIKey == "" {
		logger.Warn("OpenAI API key not configured, document analysis and compliance steps will be skipped")
		return nil, nil
	}

	prompts := openai.DefaultPrompts()
	if cfg.PromptsPath != "" {
		loaded, err := openai.LoadPrompts(cfg.PromptsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load prompts: %w", err)
		}
		prompts = loaded
	}

	return openai.NewAnalyzer(openai.Config{
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		Model:        cfg.Model,
		MaxTextChars: cfg.MaxTextChars,
		Prompts:      prompts,
	}, logger), nil
}

// TokenBundle holds the token service and its blacklist.
type TokenBundle struct {
	Service *auth.Service
	// Redis is nil when revocations are kept in memory
	Redis *cache.RedisBlacklist
}

// ProvideTokenService creates the token service backed by Redis when configured.
func ProvideTokenService(ctx context.Context, cfg *AuthConfig, logger *zap.Logger) (*TokenBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("auth config is required")
	}

	bundle := &TokenBundle{}
	var blacklist port.TokenBlacklist
	if cfg.RedisURL != "" {
		redisBlacklist, err := cache.NewRedisBlacklist(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		bundle.Redis = redisBlacklist
		blacklist = redisBlacklist
		logger.Info("Token blacklist backed by Redis")
	} else {
		blacklist = auth.NewMemoryBlacklist()
		logger.Info("Token blacklist kept in memory")
	}

	svc, err := auth.NewService(auth.Config{
		Secret:       cfg.Secret,
		Issuer:       cfg.Issuer,
		AccessTTL:    cfg.AccessTTL,
		RefreshTTL:   cfg.RefreshTTL,
		DocumentTTL:  cfg.DocumentTTL,
		SignatureTTL: cfg.SignatureTTL,
	}, blacklist)
	if err != nil {
		if bundle.Redis != nil {
			bundle.Redis.Close()
		}
		return nil, err
	}
	bundle.Service = svc

	return bundle, nil
}

// ProvideNotifier returns the SMTP notifier when email is configured,
// otherwise a notifier that only logs signing links.
func ProvideNotifier(cfg *EmailConfig, logger *zap.Logger) port.Notifier {
	emailCfg := email.Config{
		Host:       cfg.Host,
		Port:       cfg.Port,
		Username:   cfg.Username,
		Password:   cfg.Password,
		From:       cfg.From,
		FromName:   cfg.FromName,
		SigningURL: cfg.SigningURL,
	}
	if emailCfg.IsConfigured() {
		return email.NewSMTPNotifier(emailCfg, logger)
	}
	logger.Warn("SMTP not configured, signature requests will be logged only")
	return email.NewLogNotifier(cfg.SigningURL, logger)
}

// ExecutorDeps holds dependencies required for creating step executors.
type ExecutorDeps struct {
	Storage  port.DocumentStorage
	Analyzer *openai.Analyzer
	Tokens   *auth.Service
	Notifier port.Notifier
	Config   *Config
	Logger   *zap.Logger
}

// ProvideExecutors registers an executor per supported step type.
// Step types without an executor complete without side effects.
func ProvideExecutors(deps *ExecutorDeps) (*workflow.ExecutorRegistry, error) {
	if deps == nil {
		return nil, fmt.Errorf("executor dependencies are required")
	}
	if deps.Storage == nil {
		return nil, fmt.Errorf("document storage is required")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("token service is required")
	}
	if deps.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}

	serviceLogger := &LoggerAdapter{logger: deps.Logger}
	registry := workflow.NewExecutorRegistry()

	if deps.Analyzer != nil {
		extractor := document.NewTextExtractor(deps.Config.OpenAI.MaxPages, deps.Logger)

		registry.Register(entity.StepTypeDocumentAnalysis, service.NewDocumentAnalysisService(
			deps.Storage,
			extractor,
			deps.Analyzer,
			serviceLogger,
		))
		registry.Register(entity.StepTypeComplianceCheck, service.NewComplianceService(
			deps.Storage,
			extractor,
			deps.Analyzer,
			deps.Config.Orchestrator.MinConfidence,
			serviceLogger,
		))
	}

	registry.Register(entity.StepTypeSignatureRouting, service.NewSignatureRoutingService(
		deps.Tokens,
		deps.Notifier,
		deps.Config.Orchestrator.SignatureExpiry,
		serviceLogger,
	))

	return registry, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(&LoggerAdapter{logger: logger}),
	), nil
}

// OrchestratorDeps holds dependencies required for creating the orchestrator.
type OrchestratorDeps struct {
	Executors  *workflow.ExecutorRegistry
	Dispatcher dispatcher.Dispatcher
	// Database is nil when the mirror is disabled
	Database *DatabaseBundle
	// Runner is nil for inline execution
	Runner workflow.Runner
	Config *OrchestratorConfig
	Logger *zap.Logger
}

// ProvideOrchestrator creates the orchestrator and subscribes the event audit log.
func ProvideOrchestrator(deps *OrchestratorDeps) (workflow.Orchestrator, error) {
	if deps == nil {
		return nil, fmt.Errorf("orchestrator dependencies are required")
	}
	if deps.Executors == nil {
		return nil, fmt.Errorf("executor registry is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("orchestrator config is required")
	}

	opts := []workflow.Option{
		workflow.WithExecutors(deps.Executors),
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithStepTimeout(deps.Config.StepTimeout),
		workflow.WithLogger(&LoggerAdapter{logger: deps.Logger}),
	}
	if deps.Runner != nil {
		opts = append(opts, workflow.WithRunner(deps.Runner))
	}
	if deps.Database != nil {
		opts = append(opts, workflow.WithMirror(deps.Database.Workflows, deps.Database.History, deps.Database.TxManager))
	}

	deps.Dispatcher.SubscribeNamed(dispatcher.AllEvents, "event_logger", eventLogger(deps.Logger))

	return workflow.NewOrchestrator(opts...), nil
}

// ProvideWorkers creates the worker manager and, for async execution, the execution worker.
// Workers are registered but not started.
func ProvideWorkers(cfg *OrchestratorConfig, logger *zap.Logger) (*worker.WorkerManager, *worker.ExecutionWorker, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("orchestrator config is required")
	}
	if logger == nil {
		return nil, nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewWorkerManager(logger)
	if !cfg.AsyncExecution {
		return manager, nil, nil
	}

	execution := worker.NewExecutionWorker(worker.ExecutionWorkerConfig{
		MaxConcurrent: cfg.MaxConcurrent,
		QueueSize:     cfg.QueueSize,
	}, logger)
	manager.Register(execution)

	return manager, execution, nil
}

func eventLogger(logger *zap.Logger) dispatcher.Handler {
	return func(ctx context.Context, evt *event.Event) error {
		logger.Info("Workflow event",
			zap.String("event_id", evt.ID),
			zap.String("event_type", evt.Type.String()),
			zap.String("workflow_id", evt.WorkflowID),
			zap.Any("payload", evt.Payload),
		)
		return nil
	}
}
