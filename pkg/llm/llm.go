package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// json is the package-wide JSON codec.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrAllProvidersFailed is returned by FallbackClient when every attempt failed.
var ErrAllProvidersFailed = errors.New("all llm providers failed")

// LLMUsage is the provider-neutral usage report.
type LLMUsage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	ThoughtsTokens   int    `json:"thoughts_tokens,omitempty"`
	CachedTokens     int    `json:"cached_tokens,omitempty"`
	StopReason       string `json:"stop_reason,omitempty"`
}

// LogUsage reports token usage at debug level.
func LogUsage(ctx context.Context, model string, usage *LLMUsage) {
	if usage == nil {
		return
	}
	slog.DebugContext(ctx, "LLM usage",
		"model", model,
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
		"total_tokens", usage.TotalTokens,
		"thoughts_tokens", usage.ThoughtsTokens,
		"cached_tokens", usage.CachedTokens,
		"stop_reason", usage.StopReason,
	)
}

// LLMClient is the provider-neutral chat-completion client.
type LLMClient interface {
	// StreamChat streams a completion for messages. settings may be nil.
	// The returned channel is closed after the final or fatal error chunk.
	StreamChat(ctx context.Context, messages []Message, settings *ExecutionSettings) (<-chan StreamChunk, error)

	// IsTransientError reports whether err is worth retrying (503, rate limit).
	IsTransientError(err error) bool

	// Provider names the backend, used for metrics and logs.
	Provider() string
}

// FallbackClient tries each client in order, retrying transient failures.
type FallbackClient struct {
	Clients    []LLMClient
	MaxRetries int
	RetryDelay time.Duration
}

func (f *FallbackClient) StreamChat(ctx context.Context, messages []Message, settings *ExecutionSettings) (<-chan StreamChunk, error) {
	var lastErr error
	for i, client := range f.Clients {
		if i > 0 {
			slog.WarnContext(ctx, "Previous provider failed, trying fallback", "index", i+1, "provider", client.Provider())
		}

		maxRetries := f.MaxRetries
		if maxRetries <= 0 {
			maxRetries = 1
		}

		for retry := 1; retry <= maxRetries; retry++ {
			if retry > 1 {
				slog.InfoContext(ctx, "Retrying provider", "provider", client.Provider(), "attempt", retry, "max", maxRetries)
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(time.Duration(retry-1) * f.RetryDelay):
				}
			}

			ch, err := client.StreamChat(ctx, messages, settings)
			if err == nil {
				return ch, nil
			}

			lastErr = err

			if client.IsTransientError(err) && retry < maxRetries {
				slog.WarnContext(ctx, "Provider failed with transient error", "provider", client.Provider(), "error", err)
				continue
			}

			slog.ErrorContext(ctx, "Provider failed", "provider", client.Provider(), "error", err)
			break
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrAllProvidersFailed, lastErr)
}

// IsTransientError always reports false: the fallback has already retried.
func (f *FallbackClient) IsTransientError(err error) bool {
	return false
}

// Provider reports the first wrapped client's provider.
func (f *FallbackClient) Provider() string {
	if len(f.Clients) == 0 {
		return "fallback"
	}
	return f.Clients[0].Provider()
}
