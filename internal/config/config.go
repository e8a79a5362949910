package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Storage      StorageConfig      `mapstructure:"storage"`
	OpenAI       OpenAIConfig       `mapstructure:"openai"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Email        EmailConfig        `mapstructure:"email"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Logger       LoggerConfig       `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds audit mirror configuration
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// StorageConfig holds document storage configuration
type StorageConfig struct {
	Backend string   `mapstructure:"backend"`
	BaseDir string   `mapstructure:"base_dir"`
	S3      S3Config `mapstructure:"s3"`
}

// S3Config holds S3-compatible object storage configuration
type S3Config struct {
	Endpoint     string `mapstructure:"endpoint"`
	Region       string `mapstructure:"region"`
	Bucket       string `mapstructure:"bucket"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	UseSSL       bool   `mapstructure:"use_ssl"`
	Prefix       string `mapstructure:"prefix"`
	CreateBucket bool   `mapstructure:"create_bucket"`
}

// OpenAIConfig holds OpenAI API configuration
type OpenAIConfig struct {
	APIKey       string `mapstructure:"api_key"`
	BaseURL      string `mapstructure:"base_url"`
	Model        string `mapstructure:"model"`
	MaxTextChars int    `mapstructure:"max_text_chars"`
	MaxPages     int    `mapstructure:"max_pages"`
	PromptsPath  string `mapstructure:"prompts_path"`
}

// AuthConfig holds token service and API protection configuration
type AuthConfig struct {
	Secret       string        `mapstructure:"secret"`
	Issuer       string        `mapstructure:"issuer"`
	AccessTTL    time.Duration `mapstructure:"access_ttl"`
	RefreshTTL   time.Duration `mapstructure:"refresh_ttl"`
	DocumentTTL  time.Duration `mapstructure:"document_ttl"`
	SignatureTTL time.Duration `mapstructure:"signature_ttl"`
	RequireToken bool          `mapstructure:"require_token"`
	ServiceKey   string        `mapstructure:"service_key"`
	RedisURL     string        `mapstructure:"redis_url"`
}

// EmailConfig holds SMTP configuration for signer notifications
type EmailConfig struct {
	Host       string `mapstructure:"host"`
	Port       string `mapstructure:"port"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	From       string `mapstructure:"from"`
	FromName   string `mapstructure:"from_name"`
	SigningURL string `mapstructure:"signing_url"`
}

// OrchestratorConfig holds workflow execution configuration
type OrchestratorConfig struct {
	StepTimeout     time.Duration `mapstructure:"step_timeout"`
	AsyncExecution  bool          `mapstructure:"async_execution"`
	MaxConcurrent   int           `mapstructure:"max_concurrent"`
	QueueSize       int           `mapstructure:"queue_size"`
	TemplatesDir    string        `mapstructure:"templates_dir"`
	MinConfidence   float64       `mapstructure:"min_confidence"`
	SignatureExpiry time.Duration `mapstructure:"signature_expiry"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables.
// A missing config file is not an error; defaults and the environment apply.
// Variables from a .env file in the working directory are loaded first
// without overriding the process environment.
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("BUFFRSIGN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)

	// Database defaults
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/buffrsign.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Storage defaults
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.base_dir", "data/documents")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.use_ssl", true)

	// OpenAI defaults
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_text_chars", 12000)
	v.SetDefault("openai.max_pages", 30)

	// Auth defaults
	v.SetDefault("auth.issuer", "buffrsign")
	v.SetDefault("auth.access_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_ttl", 7*24*time.Hour)
	v.SetDefault("auth.document_ttl", time.Hour)
	v.SetDefault("auth.signature_ttl", 72*time.Hour)
	v.SetDefault("auth.require_token", false)

	// Email defaults
	v.SetDefault("email.port", "587")
	v.SetDefault("email.from_name", "BuffrSign")
	v.SetDefault("email.signing_url", "http://localhost:3000/sign")

	// Orchestrator defaults
	v.SetDefault("orchestrator.step_timeout", 2*time.Minute)
	v.SetDefault("orchestrator.async_execution", false)
	v.SetDefault("orchestrator.max_concurrent", 4)
	v.SetDefault("orchestrator.queue_size", 64)
	v.SetDefault("orchestrator.templates_dir", "configs/workflows")
	v.SetDefault("orchestrator.min_confidence", 0.7)
	v.SetDefault("orchestrator.signature_expiry", 72*time.Hour)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds conventional environment variables for secrets
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("openai.api_key", "BUFFRSIGN_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("auth.secret", "BUFFRSIGN_AUTH_SECRET", "JWT_SECRET")
	_ = v.BindEnv("auth.service_key", "BUFFRSIGN_AUTH_SERVICE_KEY", "SERVICE_KEY")
	_ = v.BindEnv("auth.redis_url", "BUFFRSIGN_AUTH_REDIS_URL", "REDIS_URL")
	_ = v.BindEnv("database.dsn", "BUFFRSIGN_DATABASE_DSN", "DATABASE_URL")
	_ = v.BindEnv("storage.s3.access_key", "BUFFRSIGN_STORAGE_S3_ACCESS_KEY", "S3_ACCESS_KEY")
	_ = v.BindEnv("storage.s3.secret_key", "BUFFRSIGN_STORAGE_S3_SECRET_KEY", "S3_SECRET_KEY")
	_ = v.BindEnv("email.username", "BUFFRSIGN_EMAIL_USERNAME", "SMTP_USERNAME")
	_ = v.BindEnv("email.password", "BUFFRSIGN_EMAIL_PASSWORD", "SMTP_PASSWORD")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if len(c.Auth.Secret) < 32 {
		return fmt.Errorf("auth.secret must be at least 32 characters")
	}

	switch strings.ToLower(c.Storage.Backend) {
	case "local", "":
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("storage.backend must be local or s3")
	}

	if c.Orchestrator.AsyncExecution && c.Orchestrator.MaxConcurrent <= 0 {
		return fmt.Errorf("orchestrator.max_concurrent must be positive")
	}

	return nil
}
