package kernel

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	promptFile = "skprompt.txt"
	configFile = "config.json"
)

// yamlPrompt is a single-file prompt function.
type yamlPrompt struct {
	Name              string                      `yaml:"name"`
	Description       string                      `yaml:"description"`
	Template          string                      `yaml:"template"`
	TemplateFormat    string                      `yaml:"template_format"`
	InputVariables    []Parameter                 `yaml:"input_variables"`
	ExecutionSettings map[string]CompletionConfig `yaml:"execution_settings"`
}

// completion returns the "default" execution settings, or the first entry
// by service id when no default is declared.
func (p yamlPrompt) completion() CompletionConfig {
	if c, ok := p.ExecutionSettings["default"]; ok {
		return c
	}
	ids := make([]string, 0, len(p.ExecutionSettings))
	for id := range p.ExecutionSettings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) == 0 {
		return CompletionConfig{}
	}
	return p.ExecutionSettings[ids[0]]
}

// ImportSemanticFunctionsFromDirectory loads every prompt function found in
// root/plugin and registers them under plugin.
//
// A function is either a directory holding skprompt.txt (and optionally
// config.json) or a <Function>.yaml file. Entries that do not look like
// functions are skipped. The error wraps ErrPluginNotFound if the directory
// is missing or defines no functions.
func (s *FunctionSet) ImportSemanticFunctionsFromDirectory(root, plugin string) (*Plugin, error) {
	if !validName.MatchString(plugin) {
		return nil, fmt.Errorf("%w: invalid plugin name %q", ErrPluginNotFound, plugin)
	}

	dir := filepath.Join(root, plugin)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, dir)
		}
		return nil, fmt.Errorf("failed to read plugin directory %s: %w", dir, err)
	}

	var fns []Function
	for _, e := range entries {
		var (
			fn  Function
			err error
		)
		switch {
		case e.IsDir():
			fn, err = s.loadPromptDir(plugin, filepath.Join(dir, e.Name()))
		case isYAML(e.Name()):
			fn, err = s.loadPromptYAML(plugin, filepath.Join(dir, e.Name()))
		default:
			continue
		}
		if err != nil {
			return nil, err
		}
		if fn != nil {
			fns = append(fns, fn)
		}
	}

	if len(fns) == 0 {
		return nil, fmt.Errorf("%w: %s defines no functions", ErrPluginNotFound, dir)
	}

	slog.Debug("Plugin imported", "plugin", plugin, "functions", len(fns))
	return s.ImportPlugin(plugin, fns...), nil
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// loadPromptDir returns nil, nil for directories without skprompt.txt.
func (s *FunctionSet) loadPromptDir(plugin, dir string) (Function, error) {
	name := filepath.Base(dir)

	template, err := os.ReadFile(filepath.Join(dir, promptFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Join(dir, promptFile), err)
	}
	if !validName.MatchString(name) {
		slog.Warn("Skipping prompt with invalid function name", "plugin", plugin, "dir", dir)
		return nil, nil
	}

	var cfg PromptConfig
	data, err := os.ReadFile(filepath.Join(dir, configFile))
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Join(dir, configFile), err)
		}
	case errors.Is(err, fs.ErrNotExist):
		cfg = PromptConfig{Schema: 1, Type: "completion"}
	default:
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Join(dir, configFile), err)
	}

	return NewSemanticFunction(s, plugin, name, string(template), cfg)
}

func (s *FunctionSet) loadPromptYAML(plugin, path string) (Function, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var p yamlPrompt
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if !validName.MatchString(p.Name) {
		slog.Warn("Skipping prompt with invalid function name", "plugin", plugin, "file", path)
		return nil, nil
	}
	if p.TemplateFormat != "" && p.TemplateFormat != "semantic-kernel" {
		return nil, fmt.Errorf("%w: %s: unsupported template_format %q", ErrTemplate, path, p.TemplateFormat)
	}

	cfg := PromptConfig{
		Schema:      1,
		Type:        "completion",
		Description: p.Description,
		Completion:  p.completion(),
		Input:       InputConfig{Parameters: p.InputVariables},
	}
	return NewSemanticFunction(s, plugin, p.Name, p.Template, cfg)
}
