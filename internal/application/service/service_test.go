package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buffrsign/esign-orchestrator/internal/application/port"
	"github.com/buffrsign/esign-orchestrator/internal/domain/entity"
)

type mockStorage struct {
	files map[string][]byte
}

func (m *mockStorage) Save(ctx context.Context, path string, content []byte) error {
	m.files[path] = content
	return nil
}

func (m *mockStorage) Read(ctx context.Context, path string) ([]byte, error) {
	content, ok := m.files[path]
	if !ok {
		return nil, errors.New("file not found")
	}
	return content, nil
}

func (m *mockStorage) Exists(ctx context.Context, path string) bool {
	_, ok := m.files[path]
	return ok
}

func (m *mockStorage) Delete(ctx context.Context, path string) error {
	delete(m.files, path)
	return nil
}

type mockExtractor struct{}

func (m *mockExtractor) ExtractText(ctx context.Context, content []byte, filename string) (string, error) {
	return string(content), nil
}

type mockAnalyzer struct {
	analyzeFunc func(ctx context.Context, text, analysisType string) (*port.DocumentAnalysis, error)
}

func (m *mockAnalyzer) AnalyzeDocument(ctx context.Context, text, analysisType string) (*port.DocumentAnalysis, error) {
	return m.analyzeFunc(ctx, text, analysisType)
}

type mockChecker struct {
	checkFunc func(ctx context.Context, framework, text string, analysis *port.DocumentAnalysis) (*port.ComplianceResult, error)
}

func (m *mockChecker) CheckCompliance(ctx context.Context, framework, text string, analysis *port.DocumentAnalysis) (*port.ComplianceResult, error) {
	return m.checkFunc(ctx, framework, text, analysis)
}

type mockTokens struct {
	issued  []string
	revoked []string
	err     error
	// failFor makes issuing fail for one signer only
	failFor string
}

func (m *mockTokens) IssueSignatureToken(userID, documentID, signerEmail, workflowID string, ttl time.Duration) (string, time.Time, error) {
	if m.err != nil {
		return "", time.Time{}, m.err
	}
	if m.failFor == signerEmail {
		return "", time.Time{}, errors.New("signing key missing")
	}
	m.issued = append(m.issued, signerEmail)
	return "token-" + signerEmail, time.Now().Add(ttl), nil
}

func (m *mockTokens) Revoke(ctx context.Context, token string) error {
	m.revoked = append(m.revoked, token)
	return nil
}

type mockNotifier struct {
	mu       sync.Mutex
	requests []port.SignatureRequest
	err      error
	failFor  string
}

func (m *mockNotifier) NotifySigner(ctx context.Context, req port.SignatureRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.failFor == req.SignerEmail {
		return errors.New("mailbox unavailable")
	}
	m.requests = append(m.requests, req)
	return nil
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

func newStorage() *mockStorage {
	return &mockStorage{files: map[string][]byte{
		"contracts/lease.txt": []byte("This lease is entered into by Acme and Jane Doe."),
		"contracts/blank.txt": []byte("   "),
	}}
}

func TestDocumentAnalysisService_Execute(t *testing.T) {
	var gotType string
	analyzer := &mockAnalyzer{analyzeFunc: func(ctx context.Context, text, analysisType string) (*port.DocumentAnalysis, error) {
		gotType = analysisType
		return &port.DocumentAnalysis{
			DocumentType:    "lease",
			Summary:         "Residential lease",
			Parties:         []string{"Acme", "Jane Doe"},
			SignatureFields: 2,
			RiskLevel:       "low",
			Confidence:      0.93,
		}, nil
	}}
	svc := NewDocumentAnalysisService(newStorage(), &mockExtractor{}, analyzer, &mockLogger{})

	out, err := svc.Execute(context.Background(), &entity.Workflow{ID: "wf-1"}, entity.Step{
		ID:     "analyze",
		Type:   entity.StepTypeDocumentAnalysis,
		Config: map[string]interface{}{"document_path": "contracts/lease.txt"},
	})

	require.NoError(t, err)
	assert.Equal(t, defaultAnalysisType, gotType)
	assert.Equal(t, "lease", out["document_type"])
	assert.Equal(t, []string{"Acme", "Jane Doe"}, out["parties"])
	assert.Equal(t, 2, out["signature_fields"])
	assert.Equal(t, 0.93, out["confidence"])
}

func TestDocumentAnalysisService_Errors(t *testing.T) {
	analyzer := &mockAnalyzer{analyzeFunc: func(ctx context.Context, text, analysisType string) (*port.DocumentAnalysis, error) {
		return nil, errors.New("rate limited")
	}}
	svc := NewDocumentAnalysisService(newStorage(), &mockExtractor{}, analyzer, &mockLogger{})
	wf := &entity.Workflow{ID: "wf-1"}

	tests := []struct {
		name   string
		config map[string]interface{}
		want   string
	}{
		{"missing path", map[string]interface{}{}, "document_path is required"},
		{"missing file", map[string]interface{}{"document_path": "nope.pdf"}, "read document nope.pdf"},
		{"blank document", map[string]interface{}{"document_path": "contracts/blank.txt"}, "no extractable text"},
		{"analyzer failure", map[string]interface{}{"document_path": "contracts/lease.txt"}, "rate limited"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Execute(context.Background(), wf, entity.Step{ID: "a", Config: tt.config})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestComplianceService_UsesPriorAnalysis(t *testing.T) {
	var seen *port.DocumentAnalysis
	checker := &mockChecker{checkFunc: func(ctx context.Context, framework, text string, analysis *port.DocumentAnalysis) (*port.ComplianceResult, error) {
		seen = analysis
		return &port.ComplianceResult{Framework: framework, Compliant: true, Confidence: 0.9, Reasoning: "ok"}, nil
	}}
	svc := NewComplianceService(newStorage(), &mockExtractor{}, checker, 0.5, &mockLogger{})

	wf := &entity.Workflow{
		ID: "wf-1",
		Steps: []entity.Step{{
			ID:   "analyze",
			Type: entity.StepTypeDocumentAnalysis,
			Result: &entity.StepResult{
				Status: entity.StepStatusCompleted,
				Output: map[string]interface{}{
					"document_type":    "lease",
					"parties":          []interface{}{"Acme"},
					"signature_fields": float64(2),
					"confidence":       0.8,
				},
			},
		}},
	}

	out, err := svc.Execute(context.Background(), wf, entity.Step{ID: "check", Config: map[string]interface{}{"framework": "ETA"}})

	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, "lease", seen.DocumentType)
	assert.Equal(t, []string{"Acme"}, seen.Parties)
	assert.Equal(t, 2, seen.SignatureFields)
	assert.Equal(t, true, out["compliant"])
	assert.Equal(t, 0.5, out["min_confidence"])
}

func TestComplianceService_Failures(t *testing.T) {
	wf := &entity.Workflow{ID: "wf-1"}

	t.Run("needs a document", func(t *testing.T) {
		svc := NewComplianceService(newStorage(), &mockExtractor{}, &mockChecker{}, 0, &mockLogger{})
		_, err := svc.Execute(context.Background(), wf, entity.Step{Config: map[string]interface{}{"framework": "GDPR"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "document_path")
	})

	t.Run("unsupported framework", func(t *testing.T) {
		svc := NewComplianceService(newStorage(), &mockExtractor{}, &mockChecker{}, 0, &mockLogger{})
		_, err := svc.Execute(context.Background(), wf, entity.Step{Config: map[string]interface{}{
			"framework":     "HIPAA",
			"document_path": "contracts/lease.txt",
		}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unsupported compliance framework "HIPAA"`)
	})

	t.Run("non compliant keeps verdict", func(t *testing.T) {
		checker := &mockChecker{checkFunc: func(ctx context.Context, framework, text string, analysis *port.DocumentAnalysis) (*port.ComplianceResult, error) {
			assert.Contains(t, text, "lease")
			return &port.ComplianceResult{Compliant: false, Violations: []string{"no consent clause", "missing date"}, Confidence: 0.9}, nil
		}}
		svc := NewComplianceService(newStorage(), &mockExtractor{}, checker, 0, &mockLogger{})

		out, err := svc.Execute(context.Background(), wf, entity.Step{Config: map[string]interface{}{
			"framework":     "GDPR",
			"document_path": "contracts/lease.txt",
		}})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "not GDPR compliant: no consent clause; missing date")
		assert.Equal(t, false, out["compliant"])
	})

	t.Run("confidence below step threshold", func(t *testing.T) {
		checker := &mockChecker{checkFunc: func(ctx context.Context, framework, text string, analysis *port.DocumentAnalysis) (*port.ComplianceResult, error) {
			return &port.ComplianceResult{Compliant: true, Confidence: 0.6}, nil
		}}
		svc := NewComplianceService(newStorage(), &mockExtractor{}, checker, 0.1, &mockLogger{})

		_, err := svc.Execute(context.Background(), wf, entity.Step{Config: map[string]interface{}{
			"framework":      "ETA",
			"document_path":  "contracts/lease.txt",
			"min_confidence": 0.75,
		}})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "0.60 is below the required 0.75")
	})
}

func TestSignatureRoutingService_Execute(t *testing.T) {
	tokens := &mockTokens{}
	notifier := &mockNotifier{}
	svc := NewSignatureRoutingService(tokens, notifier, 72*time.Hour, &mockLogger{})

	wf := &entity.Workflow{ID: "wf-1", CreatedBy: "user-1"}
	out, err := svc.Execute(context.Background(), wf, entity.Step{
		ID: "route",
		Config: map[string]interface{}{
			"document_id": "doc-9",
			"message":     "Please sign",
			"signers": []interface{}{
				map[string]interface{}{"email": "Landlord@Example.com", "name": "Landlord", "order": float64(2)},
				map[string]interface{}{"email": "tenant@example.com", "name": "Tenant", "order": float64(1)},
			},
			"expires_in_hours": float64(24),
		},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, out["routed"])
	assert.Equal(t, []string{"tenant@example.com", "landlord@example.com"}, tokens.issued)

	require.Len(t, notifier.requests, 2)
	first := notifier.requests[0]
	assert.Equal(t, "tenant@example.com", first.SignerEmail)
	assert.Equal(t, "token-tenant@example.com", first.Token)
	assert.Equal(t, "doc-9", first.DocumentID)
	assert.Equal(t, "wf-1", first.WorkflowID)
	assert.Equal(t, "Please sign", first.Message)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), first.ExpiresAt, time.Minute)

	signers := out["signers"].([]interface{})
	assert.NotContains(t, signers[0], "token", "tokens must not leak into step output")
}

func TestSignatureRoutingService_Failures(t *testing.T) {
	wf := &entity.Workflow{ID: "wf-1"}
	config := map[string]interface{}{
		"document_id": "doc-1",
		"signers":     []interface{}{map[string]interface{}{"email": "a@example.com"}},
	}

	tests := []struct {
		name     string
		tokens   *mockTokens
		notifier *mockNotifier
		config   map[string]interface{}
		want     string
	}{
		{"missing document", &mockTokens{}, &mockNotifier{}, map[string]interface{}{}, "document_id is required"},
		{"no signers", &mockTokens{}, &mockNotifier{}, map[string]interface{}{"document_id": "d", "signers": []interface{}{}}, "at least one signer"},
		{"token failure", &mockTokens{err: errors.New("signing key missing")}, &mockNotifier{}, config, "signing key missing"},
		{"notify failure", &mockTokens{}, &mockNotifier{err: errors.New("smtp down")}, config, "notify signer a@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewSignatureRoutingService(tt.tokens, tt.notifier, time.Hour, &mockLogger{})
			_, err := svc.Execute(context.Background(), wf, entity.Step{Config: tt.config})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSignatureRoutingService_RevokesTokensOfUnfinishedRouting(t *testing.T) {
	wf := &entity.Workflow{ID: "wf-1", CreatedBy: "owner-1"}
	step := entity.Step{ID: "route", Config: map[string]interface{}{
		"document_id": "doc-1",
		"signers": []interface{}{
			map[string]interface{}{"email": "a@example.com"},
			map[string]interface{}{"email": "b@example.com"},
			map[string]interface{}{"email": "c@example.com"},
		},
	}}

	t.Run("notify failure", func(t *testing.T) {
		tokens := &mockTokens{}
		svc := NewSignatureRoutingService(tokens, &mockNotifier{failFor: "b@example.com"}, time.Hour, &mockLogger{})

		_, err := svc.Execute(context.Background(), wf, step)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "notify signer b@example.com")
		assert.Equal(t, []string{"a@example.com", "b@example.com"}, tokens.issued)
		assert.Equal(t, []string{"token-a@example.com", "token-b@example.com"}, tokens.revoked)
	})

	t.Run("token failure", func(t *testing.T) {
		tokens := &mockTokens{failFor: "c@example.com"}
		svc := NewSignatureRoutingService(tokens, &mockNotifier{}, time.Hour, &mockLogger{})

		_, err := svc.Execute(context.Background(), wf, step)
		require.Error(t, err)
		assert.Equal(t, []string{"token-a@example.com", "token-b@example.com"}, tokens.revoked)
	})

	t.Run("success keeps tokens", func(t *testing.T) {
		tokens := &mockTokens{}
		svc := NewSignatureRoutingService(tokens, &mockNotifier{}, time.Hour, &mockLogger{})

		_, err := svc.Execute(context.Background(), wf, step)
		require.NoError(t, err)
		assert.Empty(t, tokens.revoked)
	})
}

func TestParseSigners_TypedSlice(t *testing.T) {
	signers, err := parseSigners(map[string]interface{}{
		"signers": []map[string]interface{}{
			{"email": "b@example.com"},
			{"email": "a@example.com", "order": 1},
		},
	})

	require.NoError(t, err)
	require.Len(t, signers, 2)
	// b keeps position 1, a asks for 1 explicitly; stable sort keeps b first
	assert.Equal(t, "b@example.com", signers[0].Email)
	assert.Equal(t, 1, signers[1].Order)
}
