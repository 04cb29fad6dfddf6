package planner

import (
	"fmt"
	"strings"

	"kernelapi/pkg/kernel"
)

const (
	availableFunctionsKey = "available_functions"

	planPrompt = `Create an XML plan, step by step, that satisfies the goal using only the functions listed below.

Rules:
1. The plan is a single <plan> element. Each step is a child element named function.<Plugin>.<Function>, copied exactly from the list of functions.
2. Steps run in order. A step receives the output of the previous step as its input, unless it sets an "input" attribute.
3. Pass function inputs as attributes named after the input, for example <function.Writer.Translate language="French"/>.
4. To reuse a step's output later, add setContextVariable="NAME" and refer to it as $NAME in the attributes of later steps.
5. To include a step's output in the final answer, add appendToResult="RESULT__NAME".
6. Use only the functions listed. If the goal cannot be met with them, answer <plan/>.
7. Answer with the XML plan only, without comments or explanations.

[EXAMPLE]
Writer.Summarize:
  description: summarize the input text
  inputs:
    - input: the text to summarize
Writer.Translate:
  description: translate the input into another language
  inputs:
    - input: the text to translate
    - language: the target language
Email.Send:
  description: e-mail the input
  inputs:
    - input: the message body
    - to: the recipient

<goal>Summarize the input, translate it to French and e-mail it to Jane</goal>
<plan>
  <function.Writer.Summarize/>
  <function.Writer.Translate language="French" setContextVariable="TRANSLATED"/>
  <function.Email.Send input="$TRANSLATED" to="Jane" appendToResult="RESULT__EMAIL"/>
</plan>
[END EXAMPLE]

[AVAILABLE FUNCTIONS]
{{$available_functions}}
[END AVAILABLE FUNCTIONS]

<goal>{{$input}}</goal>
`
)

var planTemplate = kernel.MustParseTemplate(planPrompt)

// FunctionManual describes fns the way the plan prompt expects.
func FunctionManual(fns []kernel.Function) string {
	var sb strings.Builder
	for i, fn := range fns {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s:\n", kernel.QualifiedName(fn))
		desc := fn.Description()
		if desc == "" {
			desc = "no description"
		}
		fmt.Fprintf(&sb, "  description: %s\n", desc)
		sb.WriteString("  inputs:\n")

		params := fn.Parameters()
		if len(params) == 0 {
			sb.WriteString("    - input: the current input\n")
			continue
		}
		for _, p := range params {
			line := p.Description
			if line == "" {
				line = p.Name
			}
			if p.DefaultValue != "" {
				line += fmt.Sprintf(" (default: %q)", p.DefaultValue)
			}
			fmt.Fprintf(&sb, "    - %s: %s\n", p.Name, line)
		}
	}
	return sb.String()
}
