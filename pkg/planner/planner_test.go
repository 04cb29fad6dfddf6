package planner

import (
	"context"
	"strings"
	"testing"

	"kernelapi/pkg/kernel"
	"kernelapi/pkg/llm/llmtest"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func native(plugin, name string, fn func(v *kernel.Variables) string) kernel.Function {
	return kernel.NewNativeFunction(plugin, name, name+" function", nil,
		func(_ context.Context, v *kernel.Variables) (string, error) { return fn(v), nil })
}

func testSet(k *kernel.Kernel) *kernel.FunctionSet {
	set := k.NewFunctionSet()
	set.ImportPlugin("FunPlugin",
		native("FunPlugin", "Joke", func(v *kernel.Variables) string { return "joke about " + v.Input() }),
		native("FunPlugin", "Excuses", func(v *kernel.Variables) string { return "excuse for " + v.Input() }),
	)
	set.ImportPlugin("Writer",
		native("Writer", "Translate", func(v *kernel.Variables) string {
			lang, _ := v.Get("language")
			return lang + ":" + v.Input()
		}),
	)
	return set
}

func TestCreatePlan_AndExecute(t *testing.T) {
	client := llmtest.Fixed(`Sure! Here is the plan:
<plan>
  <function.FunPlugin.Joke setContextVariable="JOKE"/>
  <function.Writer.Translate language="French" appendToResult="RESULT__FR"/>
  <function.FunPlugin.Excuses input="$JOKE" appendToResult="RESULT__EXCUSE"/>
</plan>`)
	k := kernel.New(client)
	set := testSet(k)

	plan, err := NewSequentialPlanner(k, Config{}).CreatePlan(context.Background(), "a joke about cats", set)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 3)
	assert.Equal(t, "FunPlugin", plan.Steps[0].Plugin)
	assert.Equal(t, "JOKE", plan.Steps[0].Output)
	assert.Equal(t, []Param{{Name: "language", Value: "French"}}, plan.Steps[1].Parameters)

	prompt := client.Prompts()[0]
	assert.Contains(t, prompt, "FunPlugin.Joke:")
	assert.Contains(t, prompt, "Writer.Translate:")
	assert.Contains(t, prompt, "<goal>a joke about cats</goal>")
	require.NotNil(t, client.Settings()[0].Temperature)
	assert.Equal(t, 0.0, *client.Settings()[0].Temperature)

	result, err := plan.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "French:joke about a joke about cats\nexcuse for joke about a joke about cats", result.Value)

	joke, ok := result.Variables.Get("JOKE")
	require.True(t, ok)
	assert.Equal(t, "joke about a joke about cats", joke)
}

func TestExecute_LastOutputWithoutResults(t *testing.T) {
	k := kernel.New(llmtest.Fixed(`<plan><function.FunPlugin.Joke/><function.FunPlugin.Excuses/></plan>`))
	set := testSet(k)

	plan, err := NewSequentialPlanner(k, DefaultConfig()).CreatePlan(context.Background(), "dogs", set)
	require.NoError(t, err)

	result, err := plan.Execute(context.Background(), kernel.NewVariables("dogs"))
	require.NoError(t, err)
	assert.Equal(t, "excuse for joke about dogs", result.Value)
}

func TestExecute_AppendToVariableSetEarlier(t *testing.T) {
	k := kernel.New(llmtest.Fixed(`<plan>
  <function.FunPlugin.Joke setContextVariable="RESULT__A"/>
  <function.FunPlugin.Excuses appendToResult="RESULT__A"/>
  <function.Writer.Translate language="fr"/>
</plan>`))
	plan, err := NewSequentialPlanner(k, Config{}).CreatePlan(context.Background(), "cats", testSet(k))
	require.NoError(t, err)

	result, err := plan.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "joke about cats\nexcuse for joke about cats", result.Value)
}

func TestExecute_SameVariableForOutputAndResult(t *testing.T) {
	k := kernel.New(llmtest.Fixed(`<plan>
  <function.FunPlugin.Joke setContextVariable="RESULT__J" appendToResult="RESULT__J"/>
  <function.FunPlugin.Excuses/>
</plan>`))
	plan, err := NewSequentialPlanner(k, Config{}).CreatePlan(context.Background(), "cats", testSet(k))
	require.NoError(t, err)

	result, err := plan.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "joke about cats", result.Value)

	v, ok := result.Variables.Get("RESULT__J")
	require.True(t, ok)
	assert.Equal(t, "joke about cats", v)
}

func TestExecute_UnknownReferenceStaysLiteral(t *testing.T) {
	k := kernel.New(llmtest.Fixed(`<plan><function.Writer.Translate language="$NOPE"/></plan>`))
	plan, err := NewSequentialPlanner(k, Config{}).CreatePlan(context.Background(), "x", testSet(k))
	require.NoError(t, err)

	result, err := plan.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "$NOPE:x", result.Value)
}

func TestCreatePlan_Errors(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		cfg    Config
		goal   string
		want   error
	}{
		{name: "blank goal", goal: "  ", want: ErrEmptyGoal},
		{name: "no plan element", answer: "I cannot help with that.", want: ErrInvalidPlan},
		{name: "unterminated plan", answer: "<plan><function.FunPlugin.Joke/>", want: ErrInvalidPlan},
		{name: "broken xml", answer: "<plan><function.FunPlugin.Joke <</plan>", want: ErrInvalidPlan},
		{name: "unknown function", answer: "<plan><function.FunPlugin.Nope/></plan>", want: ErrMissingFunction},
		{name: "empty plan", answer: "<plan/>", want: ErrEmptyPlan},
		{name: "only unknown functions dropped", answer: "<plan><function.X.Y/></plan>", cfg: Config{AllowMissingFunctions: true}, want: ErrEmptyPlan},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := kernel.New(llmtest.Fixed(tt.answer))
			goal := tt.goal
			if goal == "" {
				goal = "tell a joke"
			}
			_, err := NewSequentialPlanner(k, tt.cfg).CreatePlan(context.Background(), goal, testSet(k))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreatePlan_NoFunctions(t *testing.T) {
	k := kernel.New(llmtest.Fixed("<plan/>"))
	set := testSet(k)

	_, err := NewSequentialPlanner(k, Config{}).CreatePlan(context.Background(), "x", k.NewFunctionSet())
	assert.ErrorIs(t, err, ErrNoFunctions)

	_, err = NewSequentialPlanner(k, Config{ExcludedPlugins: []string{"funplugin", "Writer"}}).CreatePlan(context.Background(), "x", set)
	assert.ErrorIs(t, err, ErrNoFunctions)
}

func TestCreatePlan_Exclusions(t *testing.T) {
	client := llmtest.Fixed("<plan><function.FunPlugin.Joke/></plan>")
	k := kernel.New(client)
	p := NewSequentialPlanner(k, Config{ExcludedFunctions: []string{"Writer.Translate", "excuses"}})

	_, err := p.CreatePlan(context.Background(), "x", testSet(k))
	require.NoError(t, err)

	prompt := client.Prompts()[0]
	manual := prompt[strings.Index(prompt, "[AVAILABLE FUNCTIONS]"):]
	assert.Contains(t, manual, "FunPlugin.Joke:")
	assert.NotContains(t, manual, "Writer.Translate:")
	assert.NotContains(t, manual, "FunPlugin.Excuses:")
}

func TestPlan_MarshalJSON(t *testing.T) {
	k := kernel.New(llmtest.Fixed(`<plan><function.FunPlugin.Joke setContextVariable="J"/></plan>`))
	plan, err := NewSequentialPlanner(k, Config{}).CreatePlan(context.Background(), "cats", testSet(k))
	require.NoError(t, err)

	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(plan)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"description": "cats",
		"steps": [{"plugin_name": "FunPlugin", "name": "Joke", "description": "Joke function", "output": "J"}]
	}`, string(data))
}

func TestFunctionManual(t *testing.T) {
	fn := kernel.NewNativeFunction("P", "F", "", []kernel.Parameter{
		{Name: "input", Description: "the subject", DefaultValue: "cats"},
		{Name: "style"},
	}, nil)

	assert.Equal(t, `P.F:
  description: no description
  inputs:
    - input: the subject (default: "cats")
    - style: style
`, FunctionManual([]kernel.Function{fn}))
}
