package kernel

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// upper is a native function used by the template tests.
func upper(plugin string) Function {
	return NewNativeFunction(plugin, "Upper", "upper-cases input", nil,
		func(_ context.Context, vars *Variables) (string, error) {
			return strings.ToUpper(vars.Input()), nil
		})
}

func greet() Function {
	return NewNativeFunction("Text", "Greet", "greets someone",
		[]Parameter{{Name: "name", DefaultValue: "world"}},
		func(_ context.Context, vars *Variables) (string, error) {
			name, _ := vars.Get("name")
			return "hello " + name, nil
		})
}

func newSet() *FunctionSet {
	set := New(nil).NewFunctionSet()
	set.ImportPlugin("Text", upper("Text"), greet())
	return set
}

func TestTemplate_Render(t *testing.T) {
	tests := []struct {
		name     string
		template string
		vars     map[string]string
		want     string
	}{
		{name: "plain text", template: "no blocks here", want: "no blocks here"},
		{name: "input variable", template: "Joke about {{$input}}.", vars: map[string]string{"input": "cats"}, want: "Joke about cats."},
		{name: "case-insensitive variable", template: "{{$Style}}", vars: map[string]string{"style": "dry"}, want: "dry"},
		{name: "unknown variable renders empty", template: "[{{$missing}}]", want: "[]"},
		{name: "literal value", template: `{{ "a }} b" }}`, want: "a }} b"},
		{name: "call with current input", template: "{{Text.Upper}}", vars: map[string]string{"input": "abc"}, want: "ABC"},
		{name: "call with variable", template: "{{Text.Upper $topic}}", vars: map[string]string{"topic": "dogs"}, want: "DOGS"},
		{name: "call with literal", template: `{{Text.Upper 'x y'}}`, want: "X Y"},
		{name: "bare function name", template: "{{Upper \"q\"}}", want: "Q"},
		{name: "named argument", template: "{{Text.Greet name=$who}}", vars: map[string]string{"who": "Ana"}, want: "hello Ana"},
		{name: "named literal with escape", template: `{{Text.Greet name='O\'Neil'}}`, want: "hello O'Neil"},
		{name: "parameter default", template: "{{Text.Greet}}", want: "hello world"},
		{name: "empty block kept", template: "{{}}", want: "{{}}"},
		{name: "unterminated block kept", template: "a {{ b", want: "a {{ b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := ParseTemplate(tt.template)
			require.NoError(t, err)

			vars := NewVariables("")
			for k, v := range tt.vars {
				vars.Set(k, v)
			}
			got, err := tmpl.Render(context.Background(), vars, newSet())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTemplate_ParseErrors(t *testing.T) {
	for _, raw := range []string{
		"{{$bad-name}}",
		"{{Text.Upper $a $b}}",
		"{{Text.Upper unquoted}}",
		"{{Text.Upper 'open}}",
		"{{a.b.c}}",
	} {
		_, err := ParseTemplate(raw)
		assert.ErrorIs(t, err, ErrTemplate, raw)
	}
}

func TestTemplate_UnknownFunction(t *testing.T) {
	tmpl := MustParseTemplate("{{Text.Nope}}")
	_, err := tmpl.Render(context.Background(), NewVariables(""), newSet())
	assert.ErrorIs(t, err, ErrFunctionNotFound)

	_, err = tmpl.Render(context.Background(), NewVariables(""), nil)
	assert.ErrorIs(t, err, ErrFunctionNotFound)
}

func TestTemplate_CallDoesNotLeakVariables(t *testing.T) {
	tmpl := MustParseTemplate("{{Text.Upper $topic}} {{$input}}")
	vars := NewVariables("orig")
	vars.Set("topic", "t")

	got, err := tmpl.Render(context.Background(), vars, newSet())
	require.NoError(t, err)
	assert.Equal(t, "T orig", got)
	assert.Equal(t, "orig", vars.Input())
}

func TestTemplate_Variables(t *testing.T) {
	tmpl := MustParseTemplate("{{$input}} {{Text.Greet name=$who}} {{$INPUT}}")
	assert.Equal(t, []string{"input", "who"}, tmpl.Variables())
}
