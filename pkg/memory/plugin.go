package memory

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"kernelapi/pkg/api"
	"kernelapi/pkg/kernel"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PluginName is the plugin the memory functions are imported under.
const PluginName = "MemoryPlugin"

// NoInformation is the answer given when nothing relevant is stored.
const NoInformation = "I could not find any relevant information in memory."

var askPrompt = kernel.MustParseTemplate(`Answer the question using only the facts below.
If the facts do not contain the answer, say that you do not know.

Facts:
{{$facts}}

Question: {{$input}}

Reply with JSON only, in this form: {"answer": "<your answer>"}`)

var askTemperature = 0.0

// Functions returns the MemoryPlugin functions bound to m. Ask completes
// through k.
func (m *Memory) Functions(k *kernel.Kernel) []kernel.Function {
	return []kernel.Function{
		kernel.NewNativeFunction(PluginName, "Search",
			"Finds stored passages about Minecraft related to the input.",
			[]kernel.Parameter{{Name: kernel.InputKey, Description: "What to look for"}},
			m.search),
		kernel.NewNativeFunction(PluginName, "Ask",
			"Answers a question about Minecraft from stored passages. Returns JSON with the answer and its sources.",
			[]kernel.Parameter{{Name: kernel.InputKey, Description: "The question"}},
			func(ctx context.Context, vars *kernel.Variables) (string, error) {
				return m.ask(ctx, k, vars)
			}),
	}
}

func (m *Memory) search(ctx context.Context, vars *kernel.Variables) (string, error) {
	matches, err := m.Search(ctx, vars.Input(), 0)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return NoInformation, nil
	}
	return formatFacts(matches), nil
}

func (m *Memory) ask(ctx context.Context, k *kernel.Kernel, vars *kernel.Variables) (string, error) {
	question := vars.Input()
	matches, err := m.Search(ctx, question, 0)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return encodeAnswer(api.Answer{Answer: NoInformation})
	}

	promptVars := vars.Clone()
	promptVars.Set("facts", formatFacts(matches))
	prompt, err := askPrompt.Render(ctx, promptVars, nil)
	if err != nil {
		return "", err
	}

	out, err := k.Complete(ctx, prompt, kernel.CompletionConfig{MaxTokens: 512, Temperature: &askTemperature}.ExecutionSettings())
	if err != nil {
		return "", err
	}

	answer, kind, perr := api.ParseAnswer(out)
	if kind == api.AnswerMalformed {
		slog.WarnContext(ctx, "Memory answer was not valid JSON, using raw text", "error", perr)
	}
	answer.Answer = strings.TrimSpace(answer.Answer)
	answer.Sources = sources(matches)
	return encodeAnswer(answer)
}

// formatFacts renders matches as one "[source] (score) text" line each.
func formatFacts(matches []Match) string {
	var sb strings.Builder
	for i, m := range matches {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "[%s] (%.2f) %s", m.Source, m.Score, strings.Join(strings.Fields(m.Text), " "))
	}
	return sb.String()
}

// sources lists each matched document once, at its best relevance.
func sources(matches []Match) []api.Source {
	best := map[string]float64{}
	var order []string
	for _, m := range matches {
		score, seen := best[m.Source]
		if !seen {
			order = append(order, m.Source)
		}
		if !seen || float64(m.Score) > score {
			best[m.Source] = float64(m.Score)
		}
	}

	out := make([]api.Source, 0, len(order))
	for _, name := range order {
		out = append(out, api.Source{Name: name, Relevance: best[name]})
	}
	slices.SortStableFunc(out, func(a, b api.Source) int {
		switch {
		case a.Relevance > b.Relevance:
			return -1
		case a.Relevance < b.Relevance:
			return 1
		}
		return 0
	})
	return out
}

func encodeAnswer(a api.Answer) (string, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
