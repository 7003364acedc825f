// Package prompt holds the per-category prompt templates used to drive
// generation. Templates are YAML documents; built-in defaults are embedded and
// can be overridden from a directory that is optionally watched for changes.
package prompt

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/kitchenai/kitchen/internal/event"
)

//go:embed defaults/*.yaml
var defaults embed.FS

// ErrNoTemplate is returned when a category has no template.
var ErrNoTemplate = errors.New("no prompt template")

// Template is the prompt configuration of one generation category.
type Template struct {
	Category    event.Category `yaml:"category"`
	System      string         `yaml:"system"`
	User        string         `yaml:"user"`
	Model       string         `yaml:"model,omitempty"`
	Temperature *float32       `yaml:"temperature,omitempty"`
	MaxTokens   int            `yaml:"max_tokens,omitempty"`
}

// Rendered is a template with its variables substituted.
type Rendered struct {
	System      string
	User        string
	Model       string
	Temperature *float32
	MaxTokens   int
}

// Render substitutes {{key}} variables and appends the output schema to the
// system prompt when one is given.
func (t *Template) Render(vars map[string]string, schema string) Rendered {
	system := replaceVariables(t.System, vars)
	if schema != "" {
		system = strings.TrimRight(system, "\n") +
			"\n\nRespond with a single JSON object matching this JSON schema and nothing else:\n" + schema
	}
	return Rendered{
		System:      system,
		User:        strings.TrimSpace(replaceVariables(t.User, vars)),
		Model:       t.Model,
		Temperature: t.Temperature,
		MaxTokens:   t.MaxTokens,
	}
}

func replaceVariables(text string, vars map[string]string) string {
	result := text
	for key, value := range vars {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}
	return result
}

// Library is a concurrency-safe set of templates keyed by category.
type Library struct {
	mu        sync.RWMutex
	templates map[event.Category]*Template
}

// NewLibrary returns a library holding the embedded default templates.
func NewLibrary() *Library {
	l := &Library{templates: make(map[event.Category]*Template)}
	if _, err := l.load(defaults, "defaults/*.yaml"); err != nil {
		// embedded files are fixed at build time
		panic(fmt.Sprintf("prompt: load defaults: %v", err))
	}
	return l
}

// Get returns the template for a category.
func (l *Library) Get(cat event.Category) (*Template, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.templates[cat]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoTemplate, cat)
	}
	return t, nil
}

// Set installs a template, replacing any previous one for its category.
func (l *Library) Set(t *Template) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.templates[t.Category] = t
}

// Categories returns the categories that have a template.
func (l *Library) Categories() []event.Category {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []event.Category
	for _, c := range event.Categories {
		if _, ok := l.templates[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// LoadDir loads every *.yaml and *.yml file below dir, overriding the
// templates of the categories they name. A missing dir is not an error.
func (l *Library) LoadDir(dir string) (int, error) {
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	return l.load(os.DirFS(dir), "**/*.{yaml,yml}")
}

func (l *Library) load(fsys fs.FS, pattern string) (int, error) {
	matches, err := doublestar.Glob(fsys, pattern)
	if err != nil {
		return 0, fmt.Errorf("glob %s: %w", pattern, err)
	}

	loaded := make([]*Template, 0, len(matches))
	for _, name := range matches {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", name, err)
		}
		t, err := Parse(data)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", path.Base(name), err)
		}
		loaded = append(loaded, t)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range loaded {
		l.templates[t.Category] = t
	}
	return len(loaded), nil
}

// Parse decodes and checks a single template document.
func Parse(data []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	known := false
	for _, c := range event.Categories {
		if c == t.Category {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("unknown category %q", t.Category)
	}
	if strings.TrimSpace(t.User) == "" {
		return nil, errors.New("user prompt is empty")
	}
	return &t, nil
}
