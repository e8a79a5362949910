package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/buffrsign/esign-orchestrator/internal/container"
	httpapi "github.com/buffrsign/esign-orchestrator/internal/interfaces/http"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the workflow orchestrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			return runServe(cmd.Context(), cfg.ToContainerConfig(), cfg.ToServerConfig(version), logger)
		},
	}
}

func runServe(parent context.Context, containerCfg *container.Config, serverCfg httpapi.ServerConfig, logger *zap.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting BuffrSign orchestrator",
		zap.String("version", version),
		zap.Int("port", serverCfg.Port))

	c, err := container.NewContainer(containerCfg, logger)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Container shutdown failed", zap.Error(err))
		}
	}()

	server := httpapi.NewServer(serverCfg, httpapi.Dependencies{
		Orchestrator: c.Orchestrator(),
		Tokens:       c.Tokens(),
		Templates:    c.Templates(),
		Exporter:     c.Exporter(),
		Health: func(ctx context.Context) (bool, interface{}) {
			status := c.Health(ctx)
			return status.Overall, status.Components
		},
	}, container.NewLoggerAdapter(logger))

	start := time.Now()
	err = server.Start(ctx)
	logger.Info("Server exited", zap.Duration("uptime", time.Since(start)))
	return err
}
