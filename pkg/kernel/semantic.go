package kernel

import (
	"context"
	"fmt"
	"strings"

	"kernelapi/pkg/llm"
)

// CompletionConfig holds the execution settings of a prompt function.
type CompletionConfig struct {
	MaxTokens        int      `json:"max_tokens" yaml:"max_tokens"`
	Temperature      *float64 `json:"temperature" yaml:"temperature"`
	TopP             *float64 `json:"top_p" yaml:"top_p"`
	PresencePenalty  float64  `json:"presence_penalty" yaml:"presence_penalty"`
	FrequencyPenalty float64  `json:"frequency_penalty" yaml:"frequency_penalty"`
	StopSequences    []string `json:"stop_sequences" yaml:"stop_sequences"`
}

// ExecutionSettings converts the config for an llm call.
func (c CompletionConfig) ExecutionSettings() *llm.ExecutionSettings {
	return &llm.ExecutionSettings{
		MaxTokens:        c.MaxTokens,
		Temperature:      c.Temperature,
		TopP:             c.TopP,
		PresencePenalty:  c.PresencePenalty,
		FrequencyPenalty: c.FrequencyPenalty,
		StopSequences:    c.StopSequences,
	}
}

// InputConfig lists the parameters a prompt accepts.
type InputConfig struct {
	Parameters []Parameter `json:"parameters"`
}

// PromptConfig is the config.json stored next to skprompt.txt.
type PromptConfig struct {
	Schema      int              `json:"schema"`
	Type        string           `json:"type"`
	Description string           `json:"description"`
	Completion  CompletionConfig `json:"completion"`
	Input       InputConfig      `json:"input"`
}

// SemanticFunction is a prompt template completed by the LLM.
type SemanticFunction struct {
	set      *FunctionSet
	plugin   string
	name     string
	config   PromptConfig
	template *PromptTemplate
}

// NewSemanticFunction parses template and binds the function to set, which
// supplies both the kernel and the functions the template may call.
func NewSemanticFunction(set *FunctionSet, plugin, name, template string, config PromptConfig) (*SemanticFunction, error) {
	t, err := ParseTemplate(template)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", plugin, name, err)
	}
	return &SemanticFunction{
		set:      set,
		plugin:   plugin,
		name:     name,
		config:   config,
		template: t,
	}, nil
}

func (f *SemanticFunction) Plugin() string          { return f.plugin }
func (f *SemanticFunction) Name() string            { return f.name }
func (f *SemanticFunction) Description() string     { return f.config.Description }
func (f *SemanticFunction) Parameters() []Parameter { return f.config.Input.Parameters }

// Config returns the prompt configuration.
func (f *SemanticFunction) Config() PromptConfig { return f.config }

// Template returns the parsed prompt.
func (f *SemanticFunction) Template() *PromptTemplate { return f.template }

func (f *SemanticFunction) Invoke(ctx context.Context, vars *Variables) (string, error) {
	vars = withDefaults(vars, f.config.Input.Parameters)

	prompt, err := f.template.Render(ctx, vars, f.set)
	if err != nil {
		return "", err
	}

	out, err := f.set.Kernel().Complete(ctx, prompt, f.config.Completion.ExecutionSettings())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
