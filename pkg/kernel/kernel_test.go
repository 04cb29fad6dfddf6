package kernel

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"kernelapi/pkg/llm/llmtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePrompt(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func pluginTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writePrompt(t, root, "Fun/Greet/skprompt.txt", "{{$input}}")
	writePrompt(t, root, "Fun/Joke/skprompt.txt", "Tell a {{$style}} joke about {{$input}}")
	writePrompt(t, root, "Fun/Joke/config.json", `{
		"schema": 1,
		"type": "completion",
		"description": "Generate a funny joke",
		"completion": {"max_tokens": 500, "temperature": 0.9, "top_p": 0.5},
		"input": {"parameters": [
			{"name": "input", "description": "Joke subject", "defaultValue": "dinosaurs"},
			{"name": "style", "description": "Joke style", "defaultValue": "silly"}
		]}
	}`)
	writePrompt(t, root, "Fun/Poem.yaml", `
name: Poem
description: Write a short poem
template: |
  Poem about {{$input}}
input_variables:
  - name: input
    description: Poem subject
    default: the sea
execution_settings:
  default:
    max_tokens: 60
    temperature: 0.2
`)
	writePrompt(t, root, "Fun/notes/readme.md", "not a function")
	writePrompt(t, root, "Empty/readme.md", "nothing here")
	return root
}

func TestImportSemanticFunctionsFromDirectory(t *testing.T) {
	root := pluginTree(t)
	set := New(llmtest.Echo()).NewFunctionSet()

	plugin, err := set.ImportSemanticFunctionsFromDirectory(root, "Fun")
	require.NoError(t, err)
	assert.Equal(t, 3, plugin.Len())

	var names []string
	for _, fn := range plugin.Functions() {
		names = append(names, fn.Name())
	}
	assert.Equal(t, []string{"Greet", "Joke", "Poem"}, names)

	joke, ok := plugin.Function("joke")
	require.True(t, ok, "lookup is case-insensitive")
	assert.Equal(t, "Generate a funny joke", joke.Description())
	assert.Len(t, joke.Parameters(), 2)

	poem, err := set.Function("fun", "POEM")
	require.NoError(t, err)
	assert.Equal(t, "Write a short poem", poem.Description())
}

func TestImportSemanticFunctionsFromDirectory_Errors(t *testing.T) {
	root := pluginTree(t)
	set := New(llmtest.Echo()).NewFunctionSet()

	_, err := set.ImportSemanticFunctionsFromDirectory(root, "Missing")
	assert.ErrorIs(t, err, ErrPluginNotFound)

	_, err = set.ImportSemanticFunctionsFromDirectory(root, "Empty")
	assert.ErrorIs(t, err, ErrPluginNotFound)

	_, err = set.ImportSemanticFunctionsFromDirectory(root, "..")
	assert.ErrorIs(t, err, ErrPluginNotFound)

	writePrompt(t, root, "Broken/Bad/skprompt.txt", "x")
	writePrompt(t, root, "Broken/Bad/config.json", "{")
	_, err = set.ImportSemanticFunctionsFromDirectory(root, "Broken")
	assert.Error(t, err)
	assert.Equal(t, 0, set.Len())
}

func TestSemanticFunction_Invoke(t *testing.T) {
	root := pluginTree(t)
	client := llmtest.Echo()
	k := New(client)
	set := k.NewFunctionSet()
	_, err := set.ImportSemanticFunctionsFromDirectory(root, "Fun")
	require.NoError(t, err)

	t.Run("echo round trip", func(t *testing.T) {
		out, err := k.Run(context.Background(), "hi", mustFunction(t, set, "Fun", "Greet"))
		require.NoError(t, err)
		assert.Equal(t, "hi", out)
	})

	t.Run("defaults and execution settings", func(t *testing.T) {
		out, err := k.Run(context.Background(), "", mustFunction(t, set, "Fun", "Joke"))
		require.NoError(t, err)
		assert.Equal(t, "Tell a silly joke about dinosaurs", out)

		settings := client.Settings()
		last := settings[len(settings)-1]
		assert.Equal(t, 500, last.MaxTokens)
		require.NotNil(t, last.Temperature)
		assert.Equal(t, 0.9, *last.Temperature)
	})

	t.Run("yaml prompt", func(t *testing.T) {
		out, err := k.Run(context.Background(), "", mustFunction(t, set, "Fun", "Poem"))
		require.NoError(t, err)
		assert.Equal(t, "Poem about the sea", out)
	})
}

func mustFunction(t *testing.T, set *FunctionSet, plugin, name string) Function {
	t.Helper()
	fn, err := set.Function(plugin, name)
	require.NoError(t, err)
	return fn
}

func TestKernel_RunPipes(t *testing.T) {
	k := New(llmtest.Echo())
	set := k.NewFunctionSet()
	set.ImportPlugin("Text", upper("Text"))
	suffix := NewNativeFunction("Text", "Suffix", "", nil, func(_ context.Context, v *Variables) (string, error) {
		return v.Input() + "!", nil
	})

	out, err := k.Run(context.Background(), "go", mustFunction(t, set, "Text", "Upper"), suffix)
	require.NoError(t, err)
	assert.Equal(t, "GO!", out)

	out, err = k.Run(context.Background(), "unchanged")
	require.NoError(t, err)
	assert.Equal(t, "unchanged", out)
}

func TestKernel_RunWrapsErrors(t *testing.T) {
	boom := errors.New("boom")
	failing := NewNativeFunction("P", "Fail", "", nil, func(context.Context, *Variables) (string, error) {
		return "", boom
	})
	_, err := New(nil).Run(context.Background(), "x", failing)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "P.Fail")
}

func TestKernel_CompleteObserver(t *testing.T) {
	var (
		provider string
		gotErr   error
		calls    int
	)
	k := New(llmtest.Fixed("ok"), WithTimeout(time.Second), WithObserver(func(p string, _ time.Duration, err error) {
		provider, gotErr = p, err
		calls++
	}))

	out, err := k.Complete(context.Background(), "prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, "fake", provider)
	assert.NoError(t, gotErr)
	assert.Equal(t, 1, calls)

	failing := New(llmtest.New(func(string) (string, error) { return "", errors.New("down") }), WithObserver(func(_ string, _ time.Duration, err error) {
		gotErr = err
	}))
	_, err = failing.Complete(context.Background(), "prompt", nil)
	assert.Error(t, err)
	assert.Error(t, gotErr)
}

func TestFunctionSet_AmbiguousBareName(t *testing.T) {
	set := New(nil).NewFunctionSet()
	set.ImportPlugin("A", upper("A"))
	set.ImportPlugin("B", upper("B"))

	_, err := set.Function("", "Upper")
	assert.ErrorIs(t, err, ErrFunctionNotFound)
	assert.Contains(t, err.Error(), "ambiguous")

	_, err = set.Function("C", "Upper")
	assert.ErrorIs(t, err, ErrPluginNotFound)
	assert.Equal(t, 2, set.Len())
	assert.Len(t, set.Functions(), 2)
}

func TestVariables(t *testing.T) {
	v := NewVariables("in")
	v.Set("City", "Paris")
	c := v.Clone()
	c.Set("city", "Rome")

	got, _ := v.Get("CITY")
	assert.Equal(t, "Paris", got)
	got, _ = c.Get("city")
	assert.Equal(t, "Rome", got)
	assert.Equal(t, []string{"City", "input"}, v.Names())

	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"input":"in","City":"Paris"}`, string(data))
}
