package openai

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"github.com/goccy/go-yaml"
)

// PromptSpec is one prompt with its model parameters
type PromptSpec struct {
	Temperature  float32 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	System       string  `yaml:"system"`
	UserTemplate string  `yaml:"user_template"`
}

// PromptConfig holds the prompts used by the analyzer
type PromptConfig struct {
	DocumentAnalysis PromptSpec `yaml:"document_analysis"`
	ComplianceCheck  PromptSpec `yaml:"compliance_check"`
}

// DefaultPrompts returns the built-in prompts
func DefaultPrompts() *PromptConfig {
	return &PromptConfig{
		DocumentAnalysis: PromptSpec{
			Temperature: 0.1,
			MaxTokens:   1500,
			System: "You are a legal document analyst for an electronic signature platform. " +
				"Identify the document type, the parties, the key terms and the places that need a signature. " +
				"Always respond with a single valid JSON object.",
			UserTemplate: `Perform a {{.AnalysisType}} analysis of the document below.

Return JSON with exactly these fields:
{
  "document_type": "string, e.g. lease agreement, employment contract, NDA",
  "summary": "two or three sentences",
  "parties": ["names of the contracting parties"],
  "key_terms": ["important obligations, amounts and dates"],
  "signature_fields": number of places that require a signature,
  "risk_level": "low" | "medium" | "high",
  "confidence": number between 0 and 1
}

DOCUMENT:
{{.Text}}`,
		},
		ComplianceCheck: PromptSpec{
			Temperature: 0.0,
			MaxTokens:   1200,
			System: "You are a compliance officer for electronic signatures and electronic transactions law. " +
				"Judge strictly and cite the specific requirement for every violation. " +
				"Always respond with a single valid JSON object.",
			UserTemplate: `Check whether the document below complies with {{.Framework}} ({{.FrameworkDescription}}).
{{if .Analysis}}
Prior analysis: {{.Analysis.DocumentType}}, parties {{join .Analysis.Parties}}, risk {{.Analysis.RiskLevel}}.
Summary: {{.Analysis.Summary}}
Key terms: {{join .Analysis.KeyTerms}}
{{end}}
Return JSON with exactly these fields:
{
  "compliant": true | false,
  "violations": ["one entry per unmet requirement"],
  "confidence": number between 0 and 1,
  "reasoning": "short explanation"
}

DOCUMENT:
{{.Text}}`,
		},
	}
}

// LoadPrompts loads prompts from a YAML file; fields left empty keep their defaults
func LoadPrompts(promptsPath string) (*PromptConfig, error) {
	data, err := os.ReadFile(promptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	var loaded PromptConfig
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}

	prompts := DefaultPrompts()
	mergePrompt(&prompts.DocumentAnalysis, loaded.DocumentAnalysis)
	mergePrompt(&prompts.ComplianceCheck, loaded.ComplianceCheck)

	if _, err := parseTemplate(prompts.DocumentAnalysis.UserTemplate); err != nil {
		return nil, fmt.Errorf("document_analysis template: %w", err)
	}
	if _, err := parseTemplate(prompts.ComplianceCheck.UserTemplate); err != nil {
		return nil, fmt.Errorf("compliance_check template: %w", err)
	}
	return prompts, nil
}

func mergePrompt(dst *PromptSpec, src PromptSpec) {
	if src.Temperature != 0 {
		dst.Temperature = src.Temperature
	}
	if src.MaxTokens != 0 {
		dst.MaxTokens = src.MaxTokens
	}
	if src.System != "" {
		dst.System = src.System
	}
	if src.UserTemplate != "" {
		dst.UserTemplate = src.UserTemplate
	}
}

var templateFuncs = template.FuncMap{
	"join": func(items []string) string {
		var buf bytes.Buffer
		for i, s := range items {
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(s)
		}
		return buf.String()
	},
}

func parseTemplate(templateStr string) (*template.Template, error) {
	tmpl, err := template.New("prompt").Funcs(templateFuncs).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return tmpl, nil
}

// renderTemplate renders a template with provided data
func renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := parseTemplate(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}
