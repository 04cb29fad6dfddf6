package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

const (
	blockOpen  = "{{"
	blockClose = "}}"

	// maxRenderDepth bounds templates that call functions whose templates
	// call functions in turn.
	maxRenderDepth = 8
)

var functionName = regexp.MustCompile(`^[A-Za-z0-9_]+(\.[A-Za-z0-9_]+)?$`)

type blockKind int

const (
	textBlock blockKind = iota
	varBlock
	valBlock
	codeBlock
)

type argKind int

const (
	argVar argKind = iota
	argVal
)

// argument is one function-call argument. An empty name marks the
// positional argument, which becomes the callee's input.
type argument struct {
	name  string
	kind  argKind
	value string
}

type block struct {
	kind blockKind
	text string // literal text, variable name or quoted value
	fn   string // code blocks: "plugin.func" or "func"
	args []argument
}

// FunctionLookup resolves function calls made from templates.
// An empty plugin asks for a unique match across all plugins.
type FunctionLookup interface {
	Function(plugin, name string) (Function, error)
}

// PromptTemplate is a parsed prompt.
type PromptTemplate struct {
	raw    string
	blocks []block
}

// ParseTemplate parses raw. Text outside {{ }} is kept verbatim; an
// unterminated {{ is treated as text.
func ParseTemplate(raw string) (*PromptTemplate, error) {
	t := &PromptTemplate{raw: raw}

	rest := raw
	for rest != "" {
		start := strings.Index(rest, blockOpen)
		if start < 0 {
			t.appendText(rest)
			break
		}
		end := closeIndex(rest[start+len(blockOpen):])
		if end < 0 {
			t.appendText(rest)
			break
		}
		end += start + len(blockOpen)

		t.appendText(rest[:start])
		content := strings.TrimSpace(rest[start+len(blockOpen) : end])
		if content == "" {
			t.appendText(rest[start : end+len(blockClose)])
		} else {
			b, err := parseBlock(content)
			if err != nil {
				return nil, err
			}
			t.blocks = append(t.blocks, b)
		}
		rest = rest[end+len(blockClose):]
	}
	return t, nil
}

// MustParseTemplate is ParseTemplate for templates known at compile time.
func MustParseTemplate(raw string) *PromptTemplate {
	t, err := ParseTemplate(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// closeIndex finds the }} ending a block, skipping quoted values. If a
// quote never closes it falls back to the first }} so the parse error
// names the bad block.
func closeIndex(s string) int {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case strings.HasPrefix(s[i:], blockClose):
			return i
		}
	}
	return strings.Index(s, blockClose)
}

func (t *PromptTemplate) appendText(s string) {
	if s == "" {
		return
	}
	if n := len(t.blocks); n > 0 && t.blocks[n-1].kind == textBlock {
		t.blocks[n-1].text += s
		return
	}
	t.blocks = append(t.blocks, block{kind: textBlock, text: s})
}

// String returns the template source.
func (t *PromptTemplate) String() string {
	return t.raw
}

// Variables lists the variable names referenced by the template, in order
// of first use.
func (t *PromptTemplate) Variables() []string {
	seen := map[string]bool{}
	var names []string
	add := func(n string) {
		if !seen[strings.ToLower(n)] {
			seen[strings.ToLower(n)] = true
			names = append(names, n)
		}
	}
	for _, b := range t.blocks {
		switch b.kind {
		case varBlock:
			add(b.text)
		case codeBlock:
			for _, a := range b.args {
				if a.kind == argVar {
					add(a.value)
				}
			}
		}
	}
	return names
}

func parseBlock(content string) (block, error) {
	tokens, err := tokenize(content)
	if err != nil {
		return block{}, err
	}

	if len(tokens) == 1 {
		tok := tokens[0]
		switch {
		case strings.HasPrefix(tok, "$"):
			name := tok[1:]
			if !validName.MatchString(name) {
				return block{}, fmt.Errorf("%w: invalid variable name %q", ErrTemplate, tok)
			}
			return block{kind: varBlock, text: name}, nil
		case isQuoted(tok):
			return block{kind: valBlock, text: unquote(tok)}, nil
		}
	}

	b := block{kind: codeBlock, fn: tokens[0]}
	if !functionName.MatchString(b.fn) {
		return block{}, fmt.Errorf("%w: invalid function name %q", ErrTemplate, b.fn)
	}

	for i, tok := range tokens[1:] {
		var a argument
		if eq := strings.Index(tok, "="); eq > 0 && !isQuoted(tok) && !strings.HasPrefix(tok, "$") {
			a.name = tok[:eq]
			if !validName.MatchString(a.name) {
				return block{}, fmt.Errorf("%w: invalid argument name %q", ErrTemplate, a.name)
			}
			tok = tok[eq+1:]
		} else if i > 0 {
			return block{}, fmt.Errorf("%w: %s: only the first argument may be positional", ErrTemplate, b.fn)
		}

		switch {
		case strings.HasPrefix(tok, "$") && validName.MatchString(tok[1:]):
			a.kind, a.value = argVar, tok[1:]
		case isQuoted(tok):
			a.kind, a.value = argVal, unquote(tok)
		default:
			return block{}, fmt.Errorf("%w: %s: argument %q must be a $variable or a quoted value", ErrTemplate, b.fn, tok)
		}
		b.args = append(b.args, a)
	}
	return b, nil
}

// tokenize splits on whitespace outside quotes. Quotes are kept.
func tokenize(s string) ([]string, error) {
	var (
		tokens []string
		cur    strings.Builder
		quote  rune
		escape bool
	)
	for _, r := range s {
		switch {
		case escape:
			cur.WriteRune(r)
			escape = false
		case quote != 0:
			cur.WriteRune(r)
			if r == '\\' {
				escape = true
			} else if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
			cur.WriteRune(r)
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if cur.Len() > 0 {
				tokens = append(tokens, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("%w: unterminated quote in %q", ErrTemplate, s)
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens, nil
}

func isQuoted(tok string) bool {
	if len(tok) < 2 {
		return false
	}
	q := tok[0]
	return (q == '\'' || q == '"') && tok[len(tok)-1] == q
}

func unquote(tok string) string {
	inner := tok[1 : len(tok)-1]
	if !strings.Contains(inner, `\`) {
		return inner
	}
	var sb strings.Builder
	escape := false
	for _, r := range inner {
		if escape {
			sb.WriteRune(r)
			escape = false
			continue
		}
		if r == '\\' {
			escape = true
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

type renderDepthKey struct{}

// Render expands the template against vars. Function calls are resolved
// through lookup, which may be nil for templates without calls.
func (t *PromptTemplate) Render(ctx context.Context, vars *Variables, lookup FunctionLookup) (string, error) {
	depth, _ := ctx.Value(renderDepthKey{}).(int)
	if depth >= maxRenderDepth {
		return "", fmt.Errorf("%w: function calls nested deeper than %d", ErrTemplate, maxRenderDepth)
	}

	var sb strings.Builder
	for _, b := range t.blocks {
		switch b.kind {
		case textBlock, valBlock:
			sb.WriteString(b.text)
		case varBlock:
			v, ok := vars.Get(b.text)
			if !ok {
				slog.DebugContext(ctx, "Template variable not set", "name", b.text)
			}
			sb.WriteString(v)
		case codeBlock:
			out, err := t.call(context.WithValue(ctx, renderDepthKey{}, depth+1), b, vars, lookup)
			if err != nil {
				return "", err
			}
			sb.WriteString(out)
		}
	}
	return sb.String(), nil
}

func (t *PromptTemplate) call(ctx context.Context, b block, vars *Variables, lookup FunctionLookup) (string, error) {
	if lookup == nil {
		return "", fmt.Errorf("%w: %s: no functions available", ErrFunctionNotFound, b.fn)
	}

	plugin, name := "", b.fn
	if dot := strings.Index(b.fn, "."); dot >= 0 {
		plugin, name = b.fn[:dot], b.fn[dot+1:]
	}
	fn, err := lookup.Function(plugin, name)
	if err != nil {
		return "", err
	}

	callVars := vars.Clone()
	for _, a := range b.args {
		value := a.value
		if a.kind == argVar {
			value, _ = vars.Get(a.value)
		}
		if a.name == "" {
			callVars.SetInput(value)
		} else {
			callVars.Set(a.name, value)
		}
	}

	out, err := fn.Invoke(ctx, callVars)
	if err != nil {
		return "", fmt.Errorf("%s: %w", QualifiedName(fn), err)
	}
	return out, nil
}
