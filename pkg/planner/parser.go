package planner

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"kernelapi/pkg/kernel"
)

const (
	stepPrefix       = "function."
	attrOutput       = "setContextVariable"
	attrAppendResult = "appendToResult"
)

var emptyPlan = regexp.MustCompile(`<plan\s*/>`)

// ParsePlan extracts the <plan> element from text and binds each step to a
// function in set. Unknown functions fail the parse unless allowMissing is
// set, in which case those steps are dropped.
func ParsePlan(goal, text string, set *kernel.FunctionSet, allowMissing bool) (*Plan, error) {
	plan := &Plan{Goal: goal, Steps: []*Step{}}

	start := strings.Index(text, "<plan")
	if start < 0 {
		return nil, fmt.Errorf("%w: no <plan> element in %q", ErrInvalidPlan, truncate(text, 200))
	}
	end := strings.LastIndex(text, "</plan>")
	if end < start {
		if emptyPlan.MatchString(text[start:]) {
			return plan, nil
		}
		return nil, fmt.Errorf("%w: unterminated <plan> element", ErrInvalidPlan)
	}

	d := xml.NewDecoder(strings.NewReader(text[start : end+len("</plan>")]))
	d.Strict = false
	d.Entity = xml.HTMLEntity

	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
		}

		el, ok := tok.(xml.StartElement)
		if !ok || !strings.HasPrefix(el.Name.Local, stepPrefix) {
			continue
		}

		step := newStep(el)
		fn, err := set.Function(step.Plugin, step.Name)
		if err != nil {
			if allowMissing {
				slog.Warn("Dropping plan step with unknown function", "function", step.QualifiedName(), "error", err)
				continue
			}
			return nil, fmt.Errorf("%w: %s: %v", ErrMissingFunction, step.QualifiedName(), err)
		}
		step.bind(fn)
		plan.Steps = append(plan.Steps, step)
	}

	return plan, nil
}

func newStep(el xml.StartElement) *Step {
	full := strings.TrimPrefix(el.Name.Local, stepPrefix)
	step := &Step{Name: full}
	if dot := strings.LastIndex(full, "."); dot >= 0 {
		step.Plugin, step.Name = full[:dot], full[dot+1:]
	}

	for _, a := range el.Attr {
		switch a.Name.Local {
		case attrOutput:
			step.Output = a.Value
		case attrAppendResult:
			step.AppendToResult = a.Value
		default:
			step.Parameters = append(step.Parameters, Param{Name: a.Name.Local, Value: a.Value})
		}
	}
	return step
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
