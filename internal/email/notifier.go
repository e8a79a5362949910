// Package email delivers signature requests to signers.
package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"net/url"
	"strings"
	"time"

	"github.com/buffrsign/esign-orchestrator/internal/application/port"
	"github.com/buffrsign/esign-orchestrator/pkg/utils"
	"go.uber.org/zap"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
	// SigningURL is the public page signers open, e.g. https://app.buffrsign.com/sign
	SigningURL string
}

// IsConfigured returns true if email delivery is possible
func (c Config) IsConfigured() bool {
	return c.Host != "" && c.Port != "" && c.From != ""
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier sends signature requests as HTML email
type SMTPNotifier struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
	logger *zap.Logger
}

// NewSMTPNotifier creates a new SMTP notifier
func NewSMTPNotifier(config Config, logger *zap.Logger) *SMTPNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &SMTPNotifier{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
		logger: logger,
	}
}

// NotifySigner emails the signer a link carrying their signature token
func (n *SMTPNotifier) NotifySigner(ctx context.Context, req port.SignatureRequest) error {
	if !n.config.IsConfigured() {
		return fmt.Errorf("email not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := utils.ValidateEmail(req.SignerEmail); err != nil {
		return fmt.Errorf("invalid signer: %w", err)
	}

	body, err := renderSignatureRequest(signatureRequestData{
		SignerName: displayName(req),
		DocumentID: req.DocumentID,
		Message:    req.Message,
		SigningURL: signingLink(n.config.SigningURL, req),
		ExpiresAt:  req.ExpiresAt.UTC().Format(time.RFC1123),
	})
	if err != nil {
		return fmt.Errorf("render signature request: %w", err)
	}

	msg := n.buildMessage(req.SignerEmail, "Signature requested: document "+req.DocumentID, body)
	if err := n.send(n.server, n.auth, n.config.From, []string{req.SignerEmail}, msg); err != nil {
		n.logger.Error("Failed to send signature request",
			zap.String("workflow_id", req.WorkflowID),
			zap.String("signer", req.SignerEmail),
			zap.Error(err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	n.logger.Info("Signature request sent",
		zap.String("workflow_id", req.WorkflowID),
		zap.String("document_id", req.DocumentID),
		zap.String("signer", req.SignerEmail),
		zap.Int("order", req.Order))
	return nil
}

func (n *SMTPNotifier) buildMessage(to, subject, htmlBody string) []byte {
	from := n.config.From
	if n.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", n.config.FromName, n.config.From)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", utils.SanitizeHeader(to))
	fmt.Fprintf(&msg, "From: %s\r\n", utils.SanitizeHeader(from))
	fmt.Fprintf(&msg, "Subject: %s\r\n", utils.SanitizeHeader(subject))
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	msg.WriteString(htmlBody)
	msg.WriteString("\r\n")
	return msg.Bytes()
}

// LogNotifier only logs signature requests. Used when SMTP is not configured.
type LogNotifier struct {
	signingURL string
	logger     *zap.Logger
}

// NewLogNotifier creates a new log notifier
func NewLogNotifier(signingURL string, logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{signingURL: signingURL, logger: logger}
}

// NotifySigner logs the request without the token itself
func (n *LogNotifier) NotifySigner(ctx context.Context, req port.SignatureRequest) error {
	n.logger.Info("Signature request (email disabled)",
		zap.String("workflow_id", req.WorkflowID),
		zap.String("document_id", req.DocumentID),
		zap.String("signer", req.SignerEmail),
		zap.Int("order", req.Order),
		zap.Bool("has_link", n.signingURL != ""),
		zap.Time("expires_at", req.ExpiresAt))
	return nil
}

func displayName(req port.SignatureRequest) string {
	if req.SignerName != "" {
		return req.SignerName
	}
	return req.SignerEmail
}

func signingLink(base string, req port.SignatureRequest) string {
	if base == "" {
		return ""
	}
	q := url.Values{}
	q.Set("token", req.Token)
	q.Set("workflow", req.WorkflowID)
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(req.DocumentID) + "?" + q.Encode()
}

type signatureRequestData struct {
	SignerName string
	DocumentID string
	Message    string
	SigningURL string
	ExpiresAt  string
}

var signatureRequestTemplate = template.Must(template.New("signature-request").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Signature requested</title>
</head>
<body style="font-family: -apple-system, 'Segoe UI', Roboto, sans-serif; color: #333; max-width: 600px; margin: 0 auto;">
    <h2>Hello {{.SignerName}},</h2>
    <p>You have been asked to sign document <strong>{{.DocumentID}}</strong> on BuffrSign.</p>
    {{if .Message}}<blockquote>{{.Message}}</blockquote>{{end}}
    {{if .SigningURL}}<p><a href="{{.SigningURL}}" style="display: inline-block; padding: 12px 24px; background: #0066cc; color: white; text-decoration: none; border-radius: 4px;">Review and sign</a></p>{{end}}
    <p>This request expires on {{.ExpiresAt}}.</p>
    <p style="font-size: 12px; color: #666;">If you were not expecting this request you can ignore this email.</p>
</body>
</html>`))

func renderSignatureRequest(data signatureRequestData) (string, error) {
	var buf bytes.Buffer
	if err := signatureRequestTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var (
	_ port.Notifier = (*SMTPNotifier)(nil)
	_ port.Notifier = (*LogNotifier)(nil)
)
