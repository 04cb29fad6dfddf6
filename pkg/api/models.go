package api

import (
	"errors"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrEmptyAnswer is returned by ParseAnswer for JSON without an answer field.
var ErrEmptyAnswer = errors.New("structured answer has no \"answer\" field")

// UserAsk is the body of a function invocation.
type UserAsk struct {
	Ask string `json:"ask"`
}

// Source is a memory passage an answer was drawn from.
type Source struct {
	Name      string  `json:"name"`
	Relevance float64 `json:"relevance"`
}

// Answer is the response body of every JSON route.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources,omitempty"`
}

// AnswerKind classifies the text handed to ParseAnswer.
type AnswerKind int

const (
	// AnswerPlain is free text that never claimed to be JSON.
	AnswerPlain AnswerKind = iota
	// AnswerStructured parsed into an Answer.
	AnswerStructured
	// AnswerMalformed looked like JSON but did not parse into an Answer.
	AnswerMalformed
)

func (k AnswerKind) String() string {
	switch k {
	case AnswerStructured:
		return "structured"
	case AnswerMalformed:
		return "malformed"
	default:
		return "plain"
	}
}

// ParseAnswer decodes text as a structured Answer. Text that is not a
// usable Answer falls back to {answer: text}; the kind tells a plain
// answer apart from a structured one that failed to parse, and the error
// says why for the malformed case.
func ParseAnswer(text string) (Answer, AnswerKind, error) {
	body := stripCodeFence(strings.TrimSpace(text))
	if !strings.HasPrefix(body, "{") {
		return Answer{Answer: text}, AnswerPlain, nil
	}

	var a Answer
	if err := json.UnmarshalFromString(body, &a); err != nil {
		return Answer{Answer: text}, AnswerMalformed, err
	}
	if a.Answer == "" {
		return Answer{Answer: text}, AnswerMalformed, ErrEmptyAnswer
	}
	return a, AnswerStructured, nil
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	inner := s[3 : len(s)-3]
	if nl := strings.Index(inner, "\n"); nl >= 0 {
		inner = inner[nl+1:]
	} else {
		inner = strings.TrimPrefix(inner, "json")
	}
	return strings.TrimSpace(inner)
}
