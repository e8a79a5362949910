// Package definition loads reusable workflow templates from YAML.
package definition

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/buffrsign/esign-orchestrator/internal/domain/entity"
	"github.com/goccy/go-yaml"
)

var placeholderPattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Parameter is a value supplied when a template is instantiated
type Parameter struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description,omitempty"`
	Required    bool   `yaml:"required" json:"required"`
	Default     string `yaml:"default" json:"default,omitempty"`
	// Example is substituted when the template is validated on its own
	Example string `yaml:"example" json:"example,omitempty"`
}

// Template is a named, parameterized list of workflow steps.
// String config values may reference parameters as ${name}.
type Template struct {
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description" json:"description,omitempty"`
	Parameters  []Parameter       `yaml:"parameters" json:"parameters,omitempty"`
	Metadata    map[string]string `yaml:"metadata" json:"metadata,omitempty"`
	Steps       []entity.Step     `yaml:"steps" json:"steps"`
}

// Parse decodes a template from YAML
func Parse(data []byte) (*Template, error) {
	var t Template
	if err := yaml.UnmarshalWithOptions(data, &t, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return &t, nil
}

// LoadFile reads and parses a template file
func LoadFile(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Validate reports every problem with the template. Steps are validated
// after substituting each parameter's example or default value.
func (t *Template) Validate() []string {
	var errs []string

	if strings.TrimSpace(t.Name) == "" {
		errs = append(errs, "template name is required")
	}

	declared := make(map[string]bool, len(t.Parameters))
	samples := make(map[string]string, len(t.Parameters))
	for i, p := range t.Parameters {
		if p.Name == "" {
			errs = append(errs, fmt.Sprintf("parameters[%d]: name is required", i))
			continue
		}
		if declared[p.Name] {
			errs = append(errs, fmt.Sprintf("parameters[%d]: duplicate parameter %q", i, p.Name))
		}
		declared[p.Name] = true
		switch {
		case p.Example != "":
			samples[p.Name] = p.Example
		case p.Default != "":
			samples[p.Name] = p.Default
		default:
			samples[p.Name] = "example"
		}
	}

	for _, name := range t.placeholders() {
		if !declared[name] {
			errs = append(errs, fmt.Sprintf("placeholder ${%s} is not a declared parameter", name))
		}
	}

	steps := make([]entity.Step, len(t.Steps))
	for i, s := range t.Steps {
		steps[i] = s.Clone()
		steps[i].Config = substituteMap(s.Config, samples)
	}
	errs = append(errs, entity.ValidateSteps(steps)...)

	return errs
}

// Instantiate returns the template's steps with params substituted.
// Missing required parameters are reported together.
func (t *Template) Instantiate(params map[string]string) ([]entity.Step, error) {
	values := make(map[string]string, len(t.Parameters))
	var missing []string
	for _, p := range t.Parameters {
		if v, ok := params[p.Name]; ok && v != "" {
			values[p.Name] = v
			continue
		}
		if p.Default != "" {
			values[p.Name] = p.Default
			continue
		}
		if p.Required {
			missing = append(missing, p.Name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("template %s: missing required parameters: %s", t.Name, strings.Join(missing, ", "))
	}

	steps := make([]entity.Step, len(t.Steps))
	for i, s := range t.Steps {
		steps[i] = s.Clone()
		steps[i].Config = substituteMap(s.Config, values)
	}
	return steps, nil
}

func (t *Template) placeholders() []string {
	seen := map[string]bool{}
	for _, s := range t.Steps {
		collectPlaceholders(s.Config, seen)
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func collectPlaceholders(v interface{}, seen map[string]bool) {
	switch val := v.(type) {
	case string:
		for _, m := range placeholderPattern.FindAllStringSubmatch(val, -1) {
			seen[m[1]] = true
		}
	case map[string]interface{}:
		for _, item := range val {
			collectPlaceholders(item, seen)
		}
	case []interface{}:
		for _, item := range val {
			collectPlaceholders(item, seen)
		}
	}
}

func substituteMap(m map[string]interface{}, values map[string]string) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = substitute(v, values)
	}
	return out
}

func substitute(v interface{}, values map[string]string) interface{} {
	switch val := v.(type) {
	case string:
		return placeholderPattern.ReplaceAllStringFunc(val, func(match string) string {
			name := placeholderPattern.FindStringSubmatch(match)[1]
			if replacement, ok := values[name]; ok {
				return replacement
			}
			return match
		})
	case map[string]interface{}:
		return substituteMap(val, values)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = substitute(item, values)
		}
		return out
	default:
		return v
	}
}

// Registry holds the templates loaded from a directory
type Registry struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{templates: make(map[string]*Template)}
}

// LoadDir loads every *.yaml and *.yml file in dir. Invalid templates
// fail the whole load so a bad deploy is caught at startup.
func LoadDir(dir string) (*Registry, error) {
	r := NewRegistry()
	if dir == "" {
		return r, nil
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read template dir: %w", err)
	}

	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		t, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		if errs := t.Validate(); len(errs) > 0 {
			return nil, fmt.Errorf("%s: invalid template: %s", path, strings.Join(errs, "; "))
		}
		if err := r.Add(t); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return r, nil
}

// Add registers a template under its name
func (r *Registry) Add(t *Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.templates[t.Name]; exists {
		return fmt.Errorf("duplicate template %q", t.Name)
	}
	r.templates[t.Name] = t
	return nil
}

// Get returns the named template
func (r *Registry) Get(name string) (*Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[name]
	return t, ok
}

// List returns all templates sorted by name
func (r *Registry) List() []*Template {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Template, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
