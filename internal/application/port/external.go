package port

import (
	"context"
	"time"
)

// DocumentAnalysis is the structured result of analyzing a document
type DocumentAnalysis struct {
	DocumentType    string   `json:"document_type"`
	Summary         string   `json:"summary"`
	Parties         []string `json:"parties"`
	KeyTerms        []string `json:"key_terms"`
	SignatureFields int      `json:"signature_fields"`
	RiskLevel       string   `json:"risk_level"`
	Confidence      float64  `json:"confidence"`
}

// ComplianceResult represents a regulatory compliance verdict
type ComplianceResult struct {
	Framework  string   `json:"framework"`
	Compliant  bool     `json:"compliant"`
	Violations []string `json:"violations"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// DocumentAnalyzer runs AI analysis over extracted document text
type DocumentAnalyzer interface {
	AnalyzeDocument(ctx context.Context, text string, analysisType string) (*DocumentAnalysis, error)
}

// ComplianceChecker checks a document against a legal framework
type ComplianceChecker interface {
	CheckCompliance(ctx context.Context, framework string, text string, analysis *DocumentAnalysis) (*ComplianceResult, error)
}

// TextExtractor turns raw document bytes into plain text
type TextExtractor interface {
	ExtractText(ctx context.Context, content []byte, filename string) (string, error)
}

// SignatureRequest is sent to a signer when a document is routed to them
type SignatureRequest struct {
	WorkflowID  string
	DocumentID  string
	SignerEmail string
	SignerName  string
	Order       int
	Token       string
	Message     string
	ExpiresAt   time.Time
}

// Notifier delivers signature requests to signers
type Notifier interface {
	NotifySigner(ctx context.Context, req SignatureRequest) error
}

// TokenBlacklist records revoked token ids until they expire
type TokenBlacklist interface {
	Add(ctx context.Context, jti string, ttl time.Duration) error
	Contains(ctx context.Context, jti string) (bool, error)
}
