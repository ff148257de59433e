package assistant

import (
	"embed"
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/marigold/pkg/expressions"
)

//go:embed prompts/*.yaml
var promptFiles embed.FS

// Prompt is a prompt template with the JSON schema its answer must follow.
type Prompt struct {
	Name   string         `yaml:"name"`
	System string         `yaml:"system"`
	User   string         `yaml:"user"`
	Schema map[string]any `yaml:"schema"`
}

// Prompts renders prompt templates by name.
type Prompts struct {
	prompts  map[string]Prompt
	template *expressions.Template
}

// LoadPrompts reads and validates every embedded prompt.
func LoadPrompts() (*Prompts, error) {
	return loadPrompts(promptFiles, "prompts/*.yaml")
}

func loadPrompts(fsys fs.FS, pattern string) (*Prompts, error) {
	files, err := fs.Glob(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list prompts: %w", err)
	}

	p := &Prompts{
		prompts:  make(map[string]Prompt, len(files)),
		template: expressions.NewTemplate(expressions.NewEvaluator()),
	}
	for _, file := range files {
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("failed to read prompt %s: %w", file, err)
		}

		var prompt Prompt
		if err := yaml.Unmarshal(data, &prompt); err != nil {
			return nil, fmt.Errorf("failed to parse prompt %s: %w", file, err)
		}
		if prompt.Name == "" || prompt.User == "" || len(prompt.Schema) == 0 {
			return nil, fmt.Errorf("prompt %s needs a name, a user template and a schema", file)
		}
		if err := p.template.Validate(prompt.System + prompt.User); err != nil {
			return nil, fmt.Errorf("prompt %s: %w", file, err)
		}
		if _, ok := p.prompts[prompt.Name]; ok {
			return nil, fmt.Errorf("prompt %s: duplicate name %q", file, prompt.Name)
		}
		p.prompts[prompt.Name] = prompt
	}
	return p, nil
}

// Render fills the named prompt with input, addressed by its json field names.
func (p *Prompts) Render(name string, input any) (Completion, error) {
	prompt, ok := p.prompts[name]
	if !ok {
		return Completion{}, fmt.Errorf("unknown prompt %q", name)
	}

	data, err := expressions.ToData(input)
	if err != nil {
		return Completion{}, err
	}
	system, err := p.template.Render(prompt.System, data)
	if err != nil {
		return Completion{}, fmt.Errorf("failed to render prompt %q: %w", name, err)
	}
	user, err := p.template.Render(prompt.User, data)
	if err != nil {
		return Completion{}, fmt.Errorf("failed to render prompt %q: %w", name, err)
	}

	return Completion{Name: prompt.Name, System: system, User: user, Schema: prompt.Schema}, nil
}
