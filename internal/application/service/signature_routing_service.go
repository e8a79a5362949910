package service

import (
	"context"
	"fmt"
	"time"

	"github.com/buffrsign/esign-orchestrator/internal/application/port"
	"github.com/buffrsign/esign-orchestrator/internal/application/workflow"
	"github.com/buffrsign/esign-orchestrator/internal/domain/entity"
)

// SignatureTokenIssuer issues signature-scoped tokens for signers and revokes them
type SignatureTokenIssuer interface {
	IssueSignatureToken(userID, documentID, signerEmail, workflowID string, ttl time.Duration) (string, time.Time, error)
	Revoke(ctx context.Context, token string) error
}

// SignatureRoutingService executes signature-routing steps
type SignatureRoutingService struct {
	tokens        SignatureTokenIssuer
	notifier      port.Notifier
	defaultExpiry time.Duration
	logger        Logger
}

// NewSignatureRoutingService creates a new SignatureRoutingService
func NewSignatureRoutingService(tokens SignatureTokenIssuer, notifier port.Notifier, defaultExpiry time.Duration, logger Logger) *SignatureRoutingService {
	return &SignatureRoutingService{
		tokens:        tokens,
		notifier:      notifier,
		defaultExpiry: defaultExpiry,
		logger:        logger,
	}
}

// Execute issues a signature token per signer and notifies them in signing order
func (s *SignatureRoutingService) Execute(ctx context.Context, wf *entity.Workflow, step entity.Step) (map[string]interface{}, error) {
	documentID := configString(step.Config, "document_id")
	if documentID == "" {
		return nil, fmt.Errorf("document_id is required")
	}

	signers, err := parseSigners(step.Config)
	if err != nil {
		return nil, err
	}

	ttl := s.defaultExpiry
	if hours := configFloat(step.Config, "expires_in_hours", 0); hours > 0 {
		ttl = time.Duration(hours * float64(time.Hour))
	}
	message := configString(step.Config, "message")

	routed := make([]interface{}, 0, len(signers))
	issued := make([]string, 0, len(signers))
	for _, sg := range signers {
		if err := ctx.Err(); err != nil {
			s.revokeIssued(ctx, wf.ID, issued)
			return nil, err
		}

		token, expiresAt, err := s.tokens.IssueSignatureToken(wf.CreatedBy, documentID, sg.Email, wf.ID, ttl)
		if err != nil {
			s.revokeIssued(ctx, wf.ID, issued)
			return nil, fmt.Errorf("issue signature token for %s: %w", sg.Email, err)
		}
		issued = append(issued, token)

		err = s.notifier.NotifySigner(ctx, port.SignatureRequest{
			WorkflowID:  wf.ID,
			DocumentID:  documentID,
			SignerEmail: sg.Email,
			SignerName:  sg.Name,
			Order:       sg.Order,
			Token:       token,
			Message:     message,
			ExpiresAt:   expiresAt,
		})
		if err != nil {
			s.logger.Error("Failed to notify signer", "error", err, "workflow_id", wf.ID, "signer", sg.Email)
			s.revokeIssued(ctx, wf.ID, issued)
			return nil, fmt.Errorf("notify signer %s: %w", sg.Email, err)
		}

		routed = append(routed, map[string]interface{}{
			"email":      sg.Email,
			"name":       sg.Name,
			"order":      sg.Order,
			"expires_at": expiresAt.UTC().Format(time.RFC3339),
		})
	}

	s.logger.Info("Document routed for signature",
		"workflow_id", wf.ID,
		"document_id", documentID,
		"signers", len(routed),
	)

	return map[string]interface{}{
		"document_id": documentID,
		"routed":      len(routed),
		"signers":     routed,
	}, nil
}

// revokeIssued withdraws the tokens of a routing that did not finish.
// Revocation outlives a cancelled step context.
func (s *SignatureRoutingService) revokeIssued(ctx context.Context, workflowID string, tokens []string) {
	ctx = context.WithoutCancel(ctx)
	for _, token := range tokens {
		if err := s.tokens.Revoke(ctx, token); err != nil {
			s.logger.Error("Failed to revoke signature token", "error", err, "workflow_id", workflowID)
		}
	}
}

var _ workflow.StepExecutor = (*SignatureRoutingService)(nil)
