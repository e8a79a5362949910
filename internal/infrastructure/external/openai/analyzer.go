package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/buffrsign/esign-orchestrator/internal/application/port"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// DefaultMaxTextChars caps how much document text goes into one prompt
const DefaultMaxTextChars = 48000

var frameworkDescriptions = map[string]string{
	"ETA":   "Namibian Electronic Transactions Act 4 of 2019",
	"CRAN":  "Communications Regulatory Authority of Namibia requirements for security and trust services",
	"GDPR":  "EU General Data Protection Regulation",
	"eIDAS": "EU Regulation 910/2014 on electronic identification and trust services",
	"ESIGN": "US Electronic Signatures in Global and National Commerce Act",
}

// chatClient is the subset of the OpenAI client the analyzer needs
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config configures the analyzer
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxTextChars int
	Prompts      *PromptConfig
}

// Analyzer implements port.DocumentAnalyzer and port.ComplianceChecker using OpenAI
type Analyzer struct {
	client       chatClient
	model        string
	maxTextChars int
	prompts      *PromptConfig
	logger       *zap.Logger
}

// NewAnalyzer creates a new OpenAI backed analyzer
func NewAnalyzer(cfg Config, logger *zap.Logger) *Analyzer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return newAnalyzer(openai.NewClientWithConfig(clientCfg), cfg, logger)
}

func newAnalyzer(client chatClient, cfg Config, logger *zap.Logger) *Analyzer {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxTextChars <= 0 {
		cfg.MaxTextChars = DefaultMaxTextChars
	}
	if cfg.Prompts == nil {
		cfg.Prompts = DefaultPrompts()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		client:       client,
		model:        cfg.Model,
		maxTextChars: cfg.MaxTextChars,
		prompts:      cfg.Prompts,
		logger:       logger,
	}
}

// AnalyzeDocument classifies the document and extracts parties and key terms
func (a *Analyzer) AnalyzeDocument(ctx context.Context, text string, analysisType string) (*port.DocumentAnalysis, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("document text is empty")
	}
	if analysisType == "" {
		analysisType = "standard"
	}

	prompt, err := renderTemplate(a.prompts.DocumentAnalysis.UserTemplate, map[string]interface{}{
		"AnalysisType": analysisType,
		"Text":         a.truncate(text),
	})
	if err != nil {
		return nil, err
	}

	var result port.DocumentAnalysis
	if err := a.complete(ctx, a.prompts.DocumentAnalysis, prompt, &result); err != nil {
		return nil, err
	}

	result.RiskLevel = normalizeRisk(result.RiskLevel)
	result.Confidence = clamp01(result.Confidence)
	if result.Parties == nil {
		result.Parties = []string{}
	}
	if result.KeyTerms == nil {
		result.KeyTerms = []string{}
	}

	a.logger.Info("Document analysis completed",
		zap.String("document_type", result.DocumentType),
		zap.String("risk_level", result.RiskLevel),
		zap.Float64("confidence", result.Confidence))

	return &result, nil
}

// CheckCompliance asks for a verdict of the document against a framework.
// Text may be empty when a prior analysis is supplied.
func (a *Analyzer) CheckCompliance(ctx context.Context, framework string, text string, analysis *port.DocumentAnalysis) (*port.ComplianceResult, error) {
	if strings.TrimSpace(text) == "" && analysis == nil {
		return nil, fmt.Errorf("document text is empty")
	}

	description, ok := frameworkDescriptions[framework]
	if !ok {
		description = framework
	}

	prompt, err := renderTemplate(a.prompts.ComplianceCheck.UserTemplate, map[string]interface{}{
		"Framework":            framework,
		"FrameworkDescription": description,
		"Analysis":             analysis,
		"Text":                 a.truncate(text),
	})
	if err != nil {
		return nil, err
	}

	var result port.ComplianceResult
	if err := a.complete(ctx, a.prompts.ComplianceCheck, prompt, &result); err != nil {
		return nil, err
	}

	result.Framework = framework
	result.Confidence = clamp01(result.Confidence)
	if result.Violations == nil {
		result.Violations = []string{}
	}

	a.logger.Info("Compliance check completed",
		zap.String("framework", framework),
		zap.Bool("compliant", result.Compliant),
		zap.Int("violations", len(result.Violations)),
		zap.Float64("confidence", result.Confidence))

	return &result, nil
}

func (a *Analyzer) complete(ctx context.Context, spec PromptSpec, prompt string, out interface{}) error {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Temperature: spec.Temperature,
		MaxTokens:   spec.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: spec.System},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		a.logger.Error("OpenAI API call failed", zap.Error(err))
		return fmt.Errorf("OpenAI API call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return fmt.Errorf("no response from OpenAI")
	}

	content := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), out); err != nil {
		// Some models still wrap the object in a markdown fence
		if jsonStr := extractJSON(content); jsonStr != "" {
			if err := json.Unmarshal([]byte(jsonStr), out); err == nil {
				return nil
			}
		}
		a.logger.Error("Failed to parse OpenAI response",
			zap.Error(err),
			zap.String("content", content))
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (a *Analyzer) truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= a.maxTextChars {
		return text
	}
	a.logger.Warn("Truncating document text for analysis",
		zap.Int("length", len(runes)),
		zap.Int("max", a.maxTextChars))
	return string(runes[:a.maxTextChars])
}

// extractJSON returns the outermost JSON object in content
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}

func normalizeRisk(level string) string {
	switch l := strings.ToLower(strings.TrimSpace(level)); l {
	case "low", "medium", "high":
		return l
	default:
		return "unknown"
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var (
	_ port.DocumentAnalyzer  = (*Analyzer)(nil)
	_ port.ComplianceChecker = (*Analyzer)(nil)
)
