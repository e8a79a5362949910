package entity

import "time"

// StepType identifies which executor handles a workflow step
type StepType string

const (
	StepTypeDocumentAnalysis StepType = "document-analysis"
	StepTypeComplianceCheck  StepType = "compliance-check"
	StepTypeSignatureRouting StepType = "signature-routing"
)

var knownStepTypes = map[StepType]bool{
	StepTypeDocumentAnalysis: true,
	StepTypeComplianceCheck:  true,
	StepTypeSignatureRouting: true,
}

// IsValid returns true for step types the orchestrator knows about
func (t StepType) IsValid() bool {
	return knownStepTypes[t]
}

// String returns the string representation of the step type
func (t StepType) String() string {
	return string(t)
}

// StepTypes returns every known step type
func StepTypes() []StepType {
	return []StepType{StepTypeDocumentAnalysis, StepTypeComplianceCheck, StepTypeSignatureRouting}
}

// Step is one unit of work in a workflow
type Step struct {
	ID     string                 `json:"id" yaml:"id"`
	Type   StepType               `json:"type" yaml:"type"`
	Name   string                 `json:"name" yaml:"name"`
	Config map[string]interface{} `json:"config,omitempty" yaml:"config"`
	Result *StepResult            `json:"result,omitempty" yaml:"-"`
}

// StepResult is the terminal outcome of executing a step
type StepResult struct {
	Status      string                 `json:"status"`
	Output      map[string]interface{} `json:"output,omitempty"`
	Error       string                 `json:"error,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt time.Time              `json:"completed_at"`
}

// Workflow is a multi-step document workflow tracked by the orchestrator
type Workflow struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Description      string            `json:"description,omitempty"`
	Steps            []Step            `json:"steps"`
	Status           string            `json:"status"`
	CurrentStepIndex int               `json:"current_step_index"`
	CreatedBy        string            `json:"created_by,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	StartedAt        *time.Time        `json:"started_at,omitempty"`
	EndedAt          *time.Time        `json:"ended_at,omitempty"`
}

// IsActive returns true while the workflow is running or paused
func (w *Workflow) IsActive() bool {
	return w.Status == StatusRunning || w.Status == StatusPaused
}

// CurrentStep returns the step at CurrentStepIndex, or nil once steps are exhausted
func (w *Workflow) CurrentStep() *Step {
	if w.CurrentStepIndex < 0 || w.CurrentStepIndex >= len(w.Steps) {
		return nil
	}
	return &w.Steps[w.CurrentStepIndex]
}

// StepOutput returns the output of the first completed step of the given type
func (w *Workflow) StepOutput(stepType StepType) (map[string]interface{}, bool) {
	for i := range w.Steps {
		s := &w.Steps[i]
		if s.Type == stepType && s.Result != nil && s.Result.Status == StepStatusCompleted {
			return s.Result.Output, true
		}
	}
	return nil, false
}

// Clone returns a deep copy so callers never share state with the registry
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}

	c := *w
	c.Steps = make([]Step, len(w.Steps))
	for i, s := range w.Steps {
		c.Steps[i] = s.Clone()
	}
	if w.Metadata != nil {
		c.Metadata = make(map[string]string, len(w.Metadata))
		for k, v := range w.Metadata {
			c.Metadata[k] = v
		}
	}
	c.StartedAt = cloneTime(w.StartedAt)
	c.EndedAt = cloneTime(w.EndedAt)

	return &c
}

// Clone returns a deep copy of the step
func (s Step) Clone() Step {
	c := s
	c.Config = CloneMap(s.Config)
	if s.Result != nil {
		r := *s.Result
		r.Output = CloneMap(s.Result.Output)
		c.Result = &r
	}
	return c
}

// CloneMap deep-copies a JSON-like map
func CloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return CloneMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	case []map[string]interface{}:
		out := make([]map[string]interface{}, len(val))
		for i, item := range val {
			out[i] = CloneMap(item)
		}
		return out
	default:
		return val
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
