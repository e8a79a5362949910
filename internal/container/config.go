// Package container provides dependency injection and lifecycle management
// for the orchestration service.
package container

import (
	"fmt"
	"strings"
	"time"

	"github.com/buffrsign/esign-orchestrator/pkg/database"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	Database     DatabaseConfig
	Storage      StorageConfig
	OpenAI       OpenAIConfig
	Auth         AuthConfig
	Email        EmailConfig
	Orchestrator OrchestratorConfig
}

// DatabaseConfig holds settings for the audit mirror.
type DatabaseConfig struct {
	// Enabled turns the mirror on. The in-memory registry works without it.
	Enabled bool

	// Driver is sqlite (default) or postgres
	Driver string

	// Path to the SQLite database file
	Path string

	// DSN is the Postgres connection string
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// StorageConfig selects where documents are read from.
type StorageConfig struct {
	// Backend is local (default) or s3
	Backend string

	// BaseDir is the root of the local backend
	BaseDir string

	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UseSSL       bool
	S3Prefix       string
	S3CreateBucket bool
}

// OpenAIConfig holds settings for document analysis and compliance checks.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string

	// MaxTextChars caps the document text sent per request
	MaxTextChars int

	// PromptsPath optionally overrides the built-in prompts
	PromptsPath string

	// MaxPages caps how many PDF pages are extracted
	MaxPages int
}

// AuthConfig holds token service settings.
type AuthConfig struct {
	Secret       string
	Issuer       string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	DocumentTTL  time.Duration
	SignatureTTL time.Duration

	// RedisURL selects the Redis blacklist. Empty keeps revocations in memory.
	RedisURL string
}

// EmailConfig holds signer notification settings.
type EmailConfig struct {
	Host       string
	Port       string
	Username   string
	Password   string
	From       string
	FromName   string
	SigningURL string
}

// OrchestratorConfig holds workflow execution settings.
type OrchestratorConfig struct {
	// StepTimeout bounds each executor call. Zero means no limit.
	StepTimeout time.Duration

	// AsyncExecution hands run loops to the execution worker
	AsyncExecution bool
	MaxConcurrent  int
	QueueSize      int

	// TemplatesDir holds workflow template definitions
	TemplatesDir string

	// MinConfidence is the default threshold for compliance checks
	MinConfidence float64

	// SignatureExpiry is the default signing window for routed signers
	SignatureExpiry time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Enabled:         true,
			Driver:          string(database.DialectSQLite),
			Path:            "data/buffrsign.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Storage: StorageConfig{
			Backend: "local",
			BaseDir: "data/documents",
		},
		OpenAI: OpenAIConfig{
			Model:        "gpt-4o-mini",
			MaxTextChars: 12000,
			MaxPages:     30,
		},
		Auth: AuthConfig{
			Issuer:       "buffrsign",
			AccessTTL:    15 * time.Minute,
			RefreshTTL:   7 * 24 * time.Hour,
			DocumentTTL:  time.Hour,
			SignatureTTL: 72 * time.Hour,
		},
		Email: EmailConfig{
			Port:       "587",
			FromName:   "BuffrSign",
			SigningURL: "http://localhost:3000/sign",
		},
		Orchestrator: OrchestratorConfig{
			StepTimeout:     2 * time.Minute,
			MaxConcurrent:   4,
			QueueSize:       64,
			TemplatesDir:    "configs/workflows",
			MinConfidence:   0.7,
			SignatureExpiry: 72 * time.Hour,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Enabled {
		dialect, err := database.ParseDialect(c.Database.Driver)
		if err != nil {
			return err
		}
		if dialect == database.DialectPostgres && c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
		if dialect == database.DialectSQLite && c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	}

	switch strings.ToLower(c.Storage.Backend) {
	case "", "local":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir is required")
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required")
		}
	default:
		return fmt.Errorf("unsupported storage backend %q", c.Storage.Backend)
	}

	if len(c.Auth.Secret) < 32 {
		return fmt.Errorf("auth.secret must be at least 32 characters")
	}

	if c.Orchestrator.StepTimeout < 0 {
		return fmt.Errorf("orchestrator.step_timeout must not be negative")
	}
	if c.Orchestrator.MinConfidence < 0 || c.Orchestrator.MinConfidence > 1 {
		return fmt.Errorf("orchestrator.min_confidence must be between 0 and 1")
	}

	return nil
}
