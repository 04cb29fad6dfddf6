package llm

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyStream is returned when a stream closes without a final chunk.
var ErrEmptyStream = errors.New("llm stream closed without a final chunk")

// Complete runs a single completion and collects the text blocks.
// The channel is always drained so the provider goroutine can exit.
func Complete(ctx context.Context, client LLMClient, messages []Message, settings *ExecutionSettings) (string, error) {
	ch, err := client.StreamChat(ctx, messages, settings)
	if err != nil {
		return "", err
	}

	var (
		sb       strings.Builder
		firstErr error
		final    bool
	)
	for chunk := range ch {
		if chunk.Err != nil && firstErr == nil {
			firstErr = chunk.Err
		}
		for _, block := range chunk.ContentBlocks {
			switch block.Type {
			case BlockTypeText:
				sb.WriteString(block.Text)
			case BlockTypeError:
				if firstErr == nil {
					firstErr = errors.New(block.Text)
				}
			}
		}
		if chunk.IsFinal {
			final = true
			LogUsage(ctx, client.Provider(), chunk.Usage)
		}
	}

	if firstErr != nil {
		return "", firstErr
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !final {
		return "", ErrEmptyStream
	}
	return sb.String(), nil
}
