package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/buffrsign/esign-orchestrator/internal/application/port"
	"github.com/buffrsign/esign-orchestrator/internal/auth"
	"github.com/buffrsign/esign-orchestrator/internal/container"
)

// newNotifyCommand sends a sample signature request through the configured
// notifier. Without SMTP settings the request is only logged.
func newNotifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a test signature request to a signer",
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

			to, _ := cmd.Flags().GetString("to")
			name, _ := cmd.Flags().GetString("name")
			documentID, _ := cmd.Flags().GetString("document")

			tokens, err := auth.NewService(auth.Config{
				Secret:       cfg.Auth.Secret,
				Issuer:       cfg.Auth.Issuer,
				SignatureTTL: cfg.Auth.SignatureTTL,
			}, nil)
			if err != nil {
				return err
			}

			token, expiresAt, err := tokens.IssueSignatureToken("cli", documentID, to, "test-notification", 0)
			if err != nil {
				return err
			}

			containerCfg := cfg.ToContainerConfig()
			notifier := container.ProvideNotifier(&containerCfg.Email, logger)

			err = notifier.NotifySigner(cmd.Context(), port.SignatureRequest{
				WorkflowID:  "test-notification",
				DocumentID:  documentID,
				SignerEmail: to,
				SignerName:  name,
				Order:       1,
				Token:       token,
				Message:     "This is a test signature request.",
				ExpiresAt:   expiresAt,
			})
			if err != nil {
				return fmt.Errorf("failed to notify %s: %w", to, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Signature request for %s sent to %s (expires %s)\n",
				documentID, to, expiresAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().String("to", "", "Signer email address")
	cmd.Flags().String("name", "", "Signer display name")
	cmd.Flags().String("document", "sample-document", "Document id placed in the signing link")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
