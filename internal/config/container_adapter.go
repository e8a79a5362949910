package config

import (
	"github.com/buffrsign/esign-orchestrator/internal/container"
	httpapi "github.com/buffrsign/esign-orchestrator/internal/interfaces/http"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Enabled:         c.Database.Enabled,
			Driver:          c.Database.Driver,
			Path:            c.Database.Path,
			DSN:             c.Database.DSN,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Storage: container.StorageConfig{
			Backend:        c.Storage.Backend,
			BaseDir:        c.Storage.BaseDir,
			S3Endpoint:     c.Storage.S3.Endpoint,
			S3Region:       c.Storage.S3.Region,
			S3Bucket:       c.Storage.S3.Bucket,
			S3AccessKey:    c.Storage.S3.AccessKey,
			S3SecretKey:    c.Storage.S3.SecretKey,
			S3UseSSL:       c.Storage.S3.UseSSL,
			S3Prefix:       c.Storage.S3.Prefix,
			S3CreateBucket: c.Storage.S3.CreateBucket,
		},
		OpenAI: container.OpenAIConfig{
			APIKey:       c.OpenAI.APIKey,
			BaseURL:      c.OpenAI.BaseURL,
			Model:        c.OpenAI.Model,
			MaxTextChars: c.OpenAI.MaxTextChars,
			PromptsPath:  c.OpenAI.PromptsPath,
			MaxPages:     c.OpenAI.MaxPages,
		},
		Auth: container.AuthConfig{
			Secret:       c.Auth.Secret,
			Issuer:       c.Auth.Issuer,
			AccessTTL:    c.Auth.AccessTTL,
			RefreshTTL:   c.Auth.RefreshTTL,
			DocumentTTL:  c.Auth.DocumentTTL,
			SignatureTTL: c.Auth.SignatureTTL,
			RedisURL:     c.Auth.RedisURL,
		},
		Email: container.EmailConfig{
			Host:       c.Email.Host,
			Port:       c.Email.Port,
			Username:   c.Email.Username,
			Password:   c.Email.Password,
			From:       c.Email.From,
			FromName:   c.Email.FromName,
			SigningURL: c.Email.SigningURL,
		},
		Orchestrator: container.OrchestratorConfig{
			StepTimeout:     c.Orchestrator.StepTimeout,
			AsyncExecution:  c.Orchestrator.AsyncExecution,
			MaxConcurrent:   c.Orchestrator.MaxConcurrent,
			QueueSize:       c.Orchestrator.QueueSize,
			TemplatesDir:    c.Orchestrator.TemplatesDir,
			MinConfidence:   c.Orchestrator.MinConfidence,
			SignatureExpiry: c.Orchestrator.SignatureExpiry,
		},
	}
}

// ToServerConfig converts the server and auth sections to the HTTP server configuration.
func (c *Config) ToServerConfig(version string) httpapi.ServerConfig {
	return httpapi.ServerConfig{
		Host:         c.Server.Host,
		Port:         c.Server.Port,
		ReadTimeout:  c.Server.ReadTimeout,
		WriteTimeout: c.Server.WriteTimeout,
		RequireToken: c.Auth.RequireToken,
		ServiceKey:   c.Auth.ServiceKey,
		Version:      version,
	}
}
