package template

import (
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/fraudgrid/fraudgrid/internal/domain"
)

// Summary is the list-view projection of a template.
type Summary struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	IntentTypes []string `json:"intent_types"`
	StepsCount  int      `json:"steps_count"`
	FlowType    FlowType `json:"flow_type"`
	Builtin     bool     `json:"builtin"`
}

// Manager holds the registered workflow templates. Built-in templates are
// loaded at construction; custom templates can be added at runtime or loaded
// from YAML. Safe for concurrent use.
type Manager struct {
	mu        sync.RWMutex
	templates map[string]Template
	order     []string
}

// NewManager creates a manager pre-loaded with the built-in templates.
func NewManager() *Manager {
	m := &Manager{templates: make(map[string]Template)}
	for _, t := range BuiltinTemplates() {
		m.templates[t.Name] = t
		m.order = append(m.order, t.Name)
	}
	return m
}

// Get returns the template with the given name.
func (m *Manager) Get(name string) (Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.templates[name]
	if !ok {
		return Template{}, fmt.Errorf("template %q: %w", name, domain.ErrNoTemplate)
	}
	return t, nil
}

// ForIntent returns the template that declares the given intent type.
// There is no fallback: an unknown intent is a caller error, not a reason
// to silently run the wrong workflow.
func (m *Manager) ForIntent(intentType string) (Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, name := range m.order {
		t := m.templates[name]
		for _, it := range t.IntentTypes {
			if it == intentType {
				return t, nil
			}
		}
	}
	return Template{}, fmt.Errorf("intent type %q: %w", intentType, domain.ErrNoTemplate)
}

// Add validates and registers a template. An existing template with the
// same name is replaced.
func (m *Manager) Add(t Template) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.templates[t.Name]; !exists {
		m.order = append(m.order, t.Name)
	}
	m.templates[t.Name] = t
	return nil
}

// List returns summaries of all registered templates in registration order.
func (m *Manager) List() []Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Summary, 0, len(m.order))
	for _, name := range m.order {
		t := m.templates[name]
		out = append(out, Summary{
			Name:        t.Name,
			Description: t.Description,
			IntentTypes: t.IntentTypes,
			StepsCount:  len(t.Steps),
			FlowType:    t.Flow.Type,
			Builtin:     t.Builtin,
		})
	}
	return out
}

// ExportYAML serializes a template to YAML.
func (m *Manager) ExportYAML(name string) ([]byte, error) {
	t, err := m.Get(name)
	if err != nil {
		return nil, err
	}
	data, err := yaml.Marshal(&t)
	if err != nil {
		return nil, fmt.Errorf("export template %q: %w", name, err)
	}
	return data, nil
}

// ImportYAML parses a YAML template and registers it.
func (m *Manager) ImportYAML(data []byte) (Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Template{}, fmt.Errorf("parse template: %w", err)
	}
	if err := m.Add(t); err != nil {
		return Template{}, err
	}
	return t, nil
}
