package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/buffrsign/esign-orchestrator/internal/application/port"
	"github.com/buffrsign/esign-orchestrator/internal/application/workflow"
	"github.com/buffrsign/esign-orchestrator/internal/domain/entity"
)

const defaultAnalysisType = "standard"

// DocumentAnalysisService executes document-analysis steps
type DocumentAnalysisService struct {
	storage   port.DocumentStorage
	extractor port.TextExtractor
	analyzer  port.DocumentAnalyzer
	logger    Logger
}

// NewDocumentAnalysisService creates a new DocumentAnalysisService
func NewDocumentAnalysisService(
	storage port.DocumentStorage,
	extractor port.TextExtractor,
	analyzer port.DocumentAnalyzer,
	logger Logger,
) *DocumentAnalysisService {
	return &DocumentAnalysisService{
		storage:   storage,
		extractor: extractor,
		analyzer:  analyzer,
		logger:    logger,
	}
}

// Execute reads the configured document, extracts its text and asks the analyzer about it
func (s *DocumentAnalysisService) Execute(ctx context.Context, wf *entity.Workflow, step entity.Step) (map[string]interface{}, error) {
	path := configString(step.Config, "document_path")
	if path == "" {
		return nil, fmt.Errorf("document_path is required")
	}

	analysisType := configString(step.Config, "analysis_type")
	if analysisType == "" {
		analysisType = defaultAnalysisType
	}

	text, err := readDocumentText(ctx, s.storage, s.extractor, path)
	if err != nil {
		s.logger.Error("Failed to read document", "error", err, "workflow_id", wf.ID, "path", path)
		return nil, err
	}

	analysis, err := s.analyzer.AnalyzeDocument(ctx, text, analysisType)
	if err != nil {
		s.logger.Error("Document analysis failed", "error", err, "workflow_id", wf.ID, "path", path)
		return nil, fmt.Errorf("analyze document: %w", err)
	}

	s.logger.Info("Document analyzed",
		"workflow_id", wf.ID,
		"step_id", step.ID,
		"document_type", analysis.DocumentType,
		"risk_level", analysis.RiskLevel,
		"confidence", analysis.Confidence,
	)

	return map[string]interface{}{
		"document_path":    path,
		"analysis_type":    analysisType,
		"text_length":      len(text),
		"document_type":    analysis.DocumentType,
		"summary":          analysis.Summary,
		"parties":          analysis.Parties,
		"key_terms":        analysis.KeyTerms,
		"signature_fields": analysis.SignatureFields,
		"risk_level":       analysis.RiskLevel,
		"confidence":       analysis.Confidence,
	}, nil
}

func readDocumentText(ctx context.Context, storage port.DocumentStorage, extractor port.TextExtractor, path string) (string, error) {
	content, err := storage.Read(ctx, path)
	if err != nil {
		return "", fmt.Errorf("read document %s: %w", path, err)
	}

	text, err := extractor.ExtractText(ctx, content, path)
	if err != nil {
		return "", fmt.Errorf("extract text from %s: %w", path, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("document %s contains no extractable text", path)
	}

	return text, nil
}

// analysisFromOutput rebuilds a DocumentAnalysis from a completed step's output
func analysisFromOutput(out map[string]interface{}) *port.DocumentAnalysis {
	if out == nil {
		return nil
	}
	fields, _ := toFloat(out["signature_fields"])
	return &port.DocumentAnalysis{
		DocumentType:    configString(out, "document_type"),
		Summary:         configString(out, "summary"),
		Parties:         toStrings(out["parties"]),
		KeyTerms:        toStrings(out["key_terms"]),
		SignatureFields: int(fields),
		RiskLevel:       configString(out, "risk_level"),
		Confidence:      configFloat(out, "confidence", 0),
	}
}

var _ workflow.StepExecutor = (*DocumentAnalysisService)(nil)
