package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/buffrsign/esign-orchestrator/internal/application/port"
	"github.com/buffrsign/esign-orchestrator/internal/application/workflow"
	"github.com/buffrsign/esign-orchestrator/internal/domain/entity"
)

// ComplianceService executes compliance-check steps
type ComplianceService struct {
	storage       port.DocumentStorage
	extractor     port.TextExtractor
	checker       port.ComplianceChecker
	minConfidence float64
	logger        Logger
}

// NewComplianceService creates a new ComplianceService.
// minConfidence applies when a step does not set its own.
func NewComplianceService(
	storage port.DocumentStorage,
	extractor port.TextExtractor,
	checker port.ComplianceChecker,
	minConfidence float64,
	logger Logger,
) *ComplianceService {
	return &ComplianceService{
		storage:       storage,
		extractor:     extractor,
		checker:       checker,
		minConfidence: minConfidence,
		logger:        logger,
	}
}

// Execute checks the document against the configured framework.
// Non-compliant or low-confidence verdicts fail the step but keep the verdict as output.
func (s *ComplianceService) Execute(ctx context.Context, wf *entity.Workflow, step entity.Step) (map[string]interface{}, error) {
	framework := configString(step.Config, "framework")
	if framework == "" {
		return nil, fmt.Errorf("framework is required")
	}
	if !entity.IsSupportedFramework(framework) {
		return nil, fmt.Errorf("unsupported compliance framework %q", framework)
	}
	minConfidence := configFloat(step.Config, "min_confidence", s.minConfidence)

	var analysis *port.DocumentAnalysis
	if out, ok := wf.StepOutput(entity.StepTypeDocumentAnalysis); ok {
		analysis = analysisFromOutput(out)
	}

	var text string
	if path := configString(step.Config, "document_path"); path != "" {
		var err error
		text, err = readDocumentText(ctx, s.storage, s.extractor, path)
		if err != nil {
			return nil, err
		}
	} else if analysis == nil {
		return nil, fmt.Errorf("compliance check needs a document_path or a completed document-analysis step")
	}

	result, err := s.checker.CheckCompliance(ctx, framework, text, analysis)
	if err != nil {
		s.logger.Error("Compliance check failed", "error", err, "workflow_id", wf.ID, "framework", framework)
		return nil, fmt.Errorf("check compliance: %w", err)
	}

	output := map[string]interface{}{
		"framework":      framework,
		"compliant":      result.Compliant,
		"violations":     result.Violations,
		"confidence":     result.Confidence,
		"reasoning":      result.Reasoning,
		"min_confidence": minConfidence,
	}

	s.logger.Info("Compliance checked",
		"workflow_id", wf.ID,
		"framework", framework,
		"compliant", result.Compliant,
		"confidence", result.Confidence,
		"violations", len(result.Violations),
	)

	if !result.Compliant {
		return output, fmt.Errorf("document is not %s compliant: %s", framework, strings.Join(result.Violations, "; "))
	}
	if result.Confidence < minConfidence {
		return output, fmt.Errorf("compliance confidence %.2f is below the required %.2f", result.Confidence, minConfidence)
	}

	return output, nil
}

var _ workflow.StepExecutor = (*ComplianceService)(nil)
