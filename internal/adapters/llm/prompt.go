package llm

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompt.yaml
var defaultPrompt []byte

// PromptData is what the user template can reference.
type PromptData struct {
	University string
	Faculty    string
	Theme      string
	Text       string
}

// Template is a versioned rubric prompt.
type Template struct {
	Version string
	system  string
	user    *template.Template
}

type templateFile struct {
	Version string `yaml:"version"`
	System  string `yaml:"system"`
	User    string `yaml:"user"`
}

// DefaultTemplate returns the rubric compiled into the binary.
func DefaultTemplate() (*Template, error) {
	return ParseTemplate(defaultPrompt)
}

// LoadTemplate reads a template from path, or the embedded one when path is empty.
func LoadTemplate(path string) (*Template, error) {
	if path == "" {
		return DefaultTemplate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt template %s: %w", path, err)
	}
	return ParseTemplate(data)
}

// ParseTemplate decodes a YAML prompt document.
func ParseTemplate(data []byte) (*Template, error) {
	var f templateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
	}
	if f.Version == "" || strings.TrimSpace(f.System) == "" || strings.TrimSpace(f.User) == "" {
		return nil, fmt.Errorf("%w: version, system and user are required", ErrInvalidTemplate)
	}
	user, err := template.New(f.Version).Option("missingkey=error").Parse(f.User)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
	}
	return &Template{Version: f.Version, system: f.System, user: user}, nil
}

// System returns the system message.
func (t *Template) System() string { return t.system }

// Render builds the user message.
func (t *Template) Render(data PromptData) (string, error) {
	var b strings.Builder
	if err := t.user.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", t.Version, err)
	}
	return b.String(), nil
}
