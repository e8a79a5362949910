package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/buffrsign/esign-orchestrator/internal/infrastructure/document"
	"github.com/buffrsign/esign-orchestrator/internal/infrastructure/external/openai"
)

// newAnalyzeCommand runs document analysis, and optionally a compliance check,
// against a local file. Useful for checking OpenAI connectivity and prompts.
func newAnalyzeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <document>",
		Short: "Analyze a local document with the configured OpenAI model",
		Args:  cobra.ExactArgs(1),
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

			if cfg.OpenAI.APIKey == "" {
				return fmt.Errorf("OPENAI_API_KEY is not set")
			}

			analysisType, _ := cmd.Flags().GetString("type")
			framework, _ := cmd.Flags().GetString("framework")
			timeout, _ := cmd.Flags().GetDuration("timeout")

			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read document: %w", err)
			}

			prompts := openai.DefaultPrompts()
			if cfg.OpenAI.PromptsPath != "" {
				if prompts, err = openai.LoadPrompts(cfg.OpenAI.PromptsPath); err != nil {
					return err
				}
			}
			analyzer := openai.NewAnalyzer(openai.Config{
				APIKey:       cfg.OpenAI.APIKey,
				BaseURL:      cfg.OpenAI.BaseURL,
				Model:        cfg.OpenAI.Model,
				MaxTextChars: cfg.OpenAI.MaxTextChars,
				Prompts:      prompts,
			}, logger)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			text, err := document.NewTextExtractor(cfg.OpenAI.MaxPages, logger).ExtractText(ctx, content, filepath.Base(args[0]))
			if err != nil {
				return err
			}

			started := time.Now()
			analysis, err := analyzer.AnalyzeDocument(ctx, text, analysisType)
			if err != nil {
				return fmt.Errorf("document analysis failed: %w", err)
			}

			result := map[string]interface{}{
				"model":       cfg.OpenAI.Model,
				"analysis":    analysis,
				"duration_ms": time.Since(started).Milliseconds(),
			}

			if framework != "" {
				compliance, err := analyzer.CheckCompliance(ctx, framework, text, analysis)
				if err != nil {
					return fmt.Errorf("compliance check failed: %w", err)
				}
				result["compliance"] = compliance
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().String("type", "comprehensive", "Analysis type passed to the model")
	cmd.Flags().String("framework", "", "Also check compliance against this framework (ETA, GDPR, eIDAS, ...)")
	cmd.Flags().Duration("timeout", 90*time.Second, "Overall timeout")
	return cmd
}
