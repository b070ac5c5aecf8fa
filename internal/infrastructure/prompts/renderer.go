package prompts

import (
	"embed"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/mkarpenko/grounded-chat/internal/core/domain"
	"github.com/mkarpenko/grounded-chat/internal/core/ports"
)

//go:embed templates/*.yaml
var templateFS embed.FS

// appendMarker prefixes a per-request prompt override that should extend the
// built-in system prompt instead of replacing it.
const appendMarker = ">>>"

type promptFile struct {
	System   string `yaml:"system"`
	FewShots []struct {
		Role    string `yaml:"role"`
		Content string `yaml:"content"`
	} `yaml:"few_shots"`
	User string `yaml:"user"`
}

type parsedPrompt struct {
	system    *template.Template
	fewShots  []domain.Message
	user      *template.Template
	rawSystem string
}

// Renderer expands embedded YAML prompt templates. Templates are parsed
// lazily once per name and cached.
type Renderer struct {
	mu     sync.Mutex
	parsed map[string]*parsedPrompt
}

func NewRenderer() *Renderer {
	return &Renderer{parsed: make(map[string]*parsedPrompt)}
}

// Render expands the named template with the given variables. A per-request
// PromptTemplate override replaces the system prompt, or appends to it when
// prefixed with ">>>".
func (r *Renderer) Render(name string, vars ports.PromptVars) (ports.RenderedPrompt, error) {
	prompt, err := r.load(name)
	if err != nil {
		return ports.RenderedPrompt{}, err
	}

	systemTmpl := prompt.system
	if override := strings.TrimSpace(vars.PromptTemplate); override != "" {
		text := override
		if rest, ok := strings.CutPrefix(override, appendMarker); ok {
			text = prompt.rawSystem + "\n" + strings.TrimSpace(rest)
		}
		systemTmpl, err = template.New(name + ":system:override").Parse(text)
		if err != nil {
			return ports.RenderedPrompt{}, fmt.Errorf("parse prompt override for %q: %w", name, err)
		}
	}

	system, err := execute(systemTmpl, vars)
	if err != nil {
		return ports.RenderedPrompt{}, fmt.Errorf("render system prompt %q: %w", name, err)
	}
	user, err := execute(prompt.user, vars)
	if err != nil {
		return ports.RenderedPrompt{}, fmt.Errorf("render user prompt %q: %w", name, err)
	}

	return ports.RenderedPrompt{
		SystemContent:   strings.TrimSpace(system),
		FewShotMessages: prompt.fewShots,
		PastMessages:    vars.PastMessages,
		NewUserContent:  strings.TrimSpace(user),
	}, nil
}

func (r *Renderer) load(name string) (*parsedPrompt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prompt, ok := r.parsed[name]; ok {
		return prompt, nil
	}

	raw, err := templateFS.ReadFile("templates/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("unknown prompt template %q: %w", name, err)
	}

	var file promptFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse prompt template %q: %w", name, err)
	}

	systemTmpl, err := template.New(name + ":system").Parse(file.System)
	if err != nil {
		return nil, fmt.Errorf("parse system template %q: %w", name, err)
	}
	userTmpl, err := template.New(name + ":user").Parse(file.User)
	if err != nil {
		return nil, fmt.Errorf("parse user template %q: %w", name, err)
	}

	prompt := &parsedPrompt{
		system:    systemTmpl,
		user:      userTmpl,
		rawSystem: file.System,
	}
	for _, shot := range file.FewShots {
		prompt.fewShots = append(prompt.fewShots, domain.Message{
			Role:    shot.Role,
			Content: shot.Content,
		})
	}

	r.parsed[name] = prompt
	return prompt, nil
}

func execute(tmpl *template.Template, vars ports.PromptVars) (string, error) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, vars); err != nil {
		return "", err
	}
	return sb.String(), nil
}
