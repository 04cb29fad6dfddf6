// Package llmtest provides a scripted LLMClient for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"kernelapi/pkg/llm"
)

// Responder produces the completion for a rendered prompt.
type Responder func(prompt string) (string, error)

// Client is an in-memory llm.LLMClient. It records every prompt it receives.
type Client struct {
	Respond Responder

	mu       sync.Mutex
	prompts  []string
	settings []*llm.ExecutionSettings
}

// New returns a Client answering with respond.
func New(respond Responder) *Client {
	return &Client{Respond: respond}
}

// Echo returns a Client that answers with the prompt itself.
func Echo() *Client {
	return New(func(prompt string) (string, error) { return prompt, nil })
}

// Fixed returns a Client that always answers text.
func Fixed(text string) *Client {
	return New(func(string) (string, error) { return text, nil })
}

func (c *Client) StreamChat(ctx context.Context, messages []llm.Message, settings *llm.ExecutionSettings) (<-chan llm.StreamChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var sb strings.Builder
	for i, m := range messages {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(m.GetTextContent())
	}
	prompt := sb.String()

	c.mu.Lock()
	c.prompts = append(c.prompts, prompt)
	c.settings = append(c.settings, settings)
	c.mu.Unlock()

	text, err := c.Respond(prompt)
	if err != nil {
		return nil, err
	}

	ch := make(chan llm.StreamChunk, 2)
	ch <- llm.NewTextChunk(text)
	ch <- llm.NewFinalChunk(llm.StopReasonStop, &llm.LLMUsage{CompletionTokens: len(strings.Fields(text))})
	close(ch)
	return ch, nil
}

func (c *Client) IsTransientError(err error) bool { return false }

func (c *Client) Provider() string { return "fake" }

// Prompts returns a copy of every prompt received so far.
func (c *Client) Prompts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.prompts...)
}

// Settings returns the execution settings passed with each call.
func (c *Client) Settings() []*llm.ExecutionSettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*llm.ExecutionSettings(nil), c.settings...)
}

// Calls returns the number of completions served.
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.prompts)
}
