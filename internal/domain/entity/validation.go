package entity

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// MsgNoSteps is reported when a workflow is created without steps
const MsgNoSteps = "Workflow must have at least one step"

//go:embed schemas/*.json
var schemaFS embed.FS

// StepValidation is the outcome of validating a single step
type StepValidation struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors"`
}

var (
	schemasOnce sync.Once
	schemas     map[StepType]*jsonschema.Schema
	schemasErr  error
)

func loadSchemas() (map[StepType]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		compiled := make(map[StepType]*jsonschema.Schema, len(knownStepTypes))
		compiler := jsonschema.NewCompiler()

		for _, stepType := range StepTypes() {
			name := string(stepType) + ".json"
			raw, err := schemaFS.ReadFile("schemas/" + name)
			if err != nil {
				schemasErr = fmt.Errorf("read schema %s: %w", name, err)
				return
			}

			var doc any
			if err := json.Unmarshal(raw, &doc); err != nil {
				schemasErr = fmt.Errorf("parse schema %s: %w", name, err)
				return
			}
			if err := compiler.AddResource(name, doc); err != nil {
				schemasErr = fmt.Errorf("add schema %s: %w", name, err)
				return
			}

			schema, err := compiler.Compile(name)
			if err != nil {
				schemasErr = fmt.Errorf("compile schema %s: %w", name, err)
				return
			}
			compiled[stepType] = schema
		}

		schemas = compiled
	})

	return schemas, schemasErr
}

// ValidateStep checks that a step has an id and a known type, and that the
// config fields present have the types its step type expects. Missing fields
// are left to the executor. All violations are reported.
func ValidateStep(step Step) StepValidation {
	var errs []string

	if strings.TrimSpace(step.ID) == "" {
		errs = append(errs, "step id is required")
	}

	if !step.Type.IsValid() {
		if step.Type == "" {
			errs = append(errs, "step type is required")
		} else {
			errs = append(errs, fmt.Sprintf("unknown step type %q", step.Type))
		}
	} else {
		errs = append(errs, validateConfig(step.Type, step.Config)...)
	}

	return StepValidation{
		IsValid: len(errs) == 0,
		Errors:  nonNil(errs),
	}
}

// ValidateSteps validates a whole step list, including id uniqueness.
// Violations of individual steps are prefixed with their position.
func ValidateSteps(steps []Step) []string {
	if len(steps) == 0 {
		return []string{MsgNoSteps}
	}

	var errs []string
	seen := make(map[string]int, len(steps))

	for i, step := range steps {
		for _, e := range ValidateStep(step).Errors {
			errs = append(errs, fmt.Sprintf("steps[%d]: %s", i, e))
		}

		if step.ID == "" {
			continue
		}
		if first, dup := seen[step.ID]; dup {
			errs = append(errs, fmt.Sprintf("steps[%d]: duplicate step id %q (first used by steps[%d])", i, step.ID, first))
			continue
		}
		seen[step.ID] = i
	}

	return errs
}

func validateConfig(stepType StepType, config map[string]interface{}) []string {
	compiled, err := loadSchemas()
	if err != nil {
		return []string{fmt.Sprintf("config schema unavailable: %v", err)}
	}

	schema, ok := compiled[stepType]
	if !ok {
		return nil
	}

	// Round-trip through JSON so YAML-decoded numbers and typed slices
	// validate the same way as request bodies.
	if config == nil {
		config = map[string]interface{}{}
	}
	raw, err := json.Marshal(config)
	if err != nil {
		return []string{fmt.Sprintf("config is not well-formed: %v", err)}
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return []string{fmt.Sprintf("config is not well-formed: %v", err)}
	}

	err = schema.Validate(instance)
	if err == nil {
		return nil
	}

	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{fmt.Sprintf("config: %v", err)}
	}

	var msgs []string
	collectLeafErrors(ve, &msgs)
	if len(msgs) == 0 {
		msgs = append(msgs, "config: "+oneLine(ve.Error()))
	}
	return msgs
}

func collectLeafErrors(ve *jsonschema.ValidationError, out *[]string) {
	if len(ve.Causes) == 0 {
		path := "/" + strings.Join(ve.InstanceLocation, "/")
		*out = append(*out, fmt.Sprintf("config %s: %s", path, oneLine(ve.Error())))
		return
	}
	for _, cause := range ve.Causes {
		collectLeafErrors(cause, out)
	}
}

func oneLine(s string) string {
	lines := strings.Split(s, "\n")
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(l), "-"))
		if l != "" {
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, "; ")
}

func nonNil(errs []string) []string {
	if errs == nil {
		return []string{}
	}
	return errs
}
