package prompt

import (
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/cortexmesh/orchestrator/faults"
)

// onDisk mirrors the YAML shape of a prompt source file: a top-level
// "templates" mapping of template key to template body.
type onDisk struct {
	Templates map[string]string `yaml:"templates"`
}

// Registry holds every template loaded at startup, keyed by name.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{templates: make(map[string]Template)}
}

// Load reads a YAML file whose "templates" mapping holds {key: body}
// template pairs and merges them
// into the registry, overwriting any existing entry with the same key.
func (r *Registry) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return faults.Wrap(faults.KindInternal, "prompt: read template source", err)
	}
	var doc onDisk
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return faults.Wrap(faults.KindInternal, "prompt: parse template source", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for key, body := range doc.Templates {
		r.templates[key] = Template{Key: key, Body: body}
	}
	return nil
}

// Register directly adds or replaces a single template, for programmatic
// registration and tests.
func (r *Registry) Register(key, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[key] = Template{Key: key, Body: body}
}

// Get returns the named template.
func (r *Registry) Get(key string) (Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[key]
	if !ok {
		return Template{}, faults.New(faults.KindNotFound, "prompt: unknown template "+key)
	}
	return t, nil
}
