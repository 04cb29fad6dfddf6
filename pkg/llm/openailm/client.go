package openailm

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"kernelapi/pkg/llm"

	jsoniter "github.com/json-iterator/go"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client is a wrapper around the official OpenAI Go SDK
type Client struct {
	client       *openai.Client
	provider     string
	model        string
	bufferSize   int
	debugEnabled bool
}

// NewClient creates a new OpenAI client
func NewClient(provider string, apiKey string, model string, baseURL string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(opts...)

	return &Client{
		client:     &client,
		provider:   provider,
		model:      model,
		bufferSize: 100,
	}, nil
}

func (c *Client) Provider() string {
	return c.provider
}

func (c *Client) SetDebug(enabled bool) {
	c.debugEnabled = enabled
}

func (c *Client) SetBufferSize(n int) {
	if n > 0 {
		c.bufferSize = n
	}
}

func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())

	// Transient: network-level issues
	if strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") {
		return true
	}

	// Transient: server-side temporary failures and throttling
	if strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "500 internal") ||
		strings.Contains(msg, "502 bad gateway") ||
		strings.Contains(msg, "503 service unavailable") ||
		strings.Contains(msg, "overloaded") {
		return true
	}

	// Everything else (400 Bad Request, 401 Unauthorized, etc.) is non-transient
	return false
}

// requestOptions maps execution settings onto raw JSON fields so unset
// values are omitted instead of sent as zero.
func requestOptions(settings *llm.ExecutionSettings) []option.RequestOption {
	if settings == nil {
		return nil
	}
	var opts []option.RequestOption
	if settings.Temperature != nil {
		opts = append(opts, option.WithJSONSet("temperature", *settings.Temperature))
	}
	if settings.TopP != nil {
		opts = append(opts, option.WithJSONSet("top_p", *settings.TopP))
	}
	if settings.MaxTokens > 0 {
		opts = append(opts, option.WithJSONSet("max_output_tokens", settings.MaxTokens))
	}
	return opts
}

func (c *Client) StreamChat(ctx context.Context, messages []llm.Message, settings *llm.ExecutionSettings) (<-chan llm.StreamChunk, error) {
	chunkCh := make(chan llm.StreamChunk, c.bufferSize)

	params := responses.ResponseNewParams{
		Model: c.model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: c.convertMessages(messages),
		},
	}
	opts := requestOptions(settings)

	var stops []string
	if settings != nil {
		stops = settings.StopSequences
	}

	go func() {
		defer close(chunkCh)

		stream := c.client.Responses.NewStreaming(ctx, params, opts...)
		defer stream.Close()

		var lastFinishReason string
		var lastUsage *llm.LLMUsage

		// StreamDebugger handles file creation and lifecycle
		debugger := llm.NewStreamDebugger(ctx, c.provider, c.debugEnabled)
		defer debugger.Close()

		// The Responses API has no stop parameter; stop sequences are applied
		// client-side by truncating at the first match.
		cut := newStopCutter(stops)
		var thinkingLogBuffer strings.Builder

		for stream.Next() {
			event := stream.Current()

			if raw := rawJSON(event.JSON); raw != "" {
				debugger.WriteString(raw)

				// Fallback thinking capture (DeepSeek-style gateways)
				var rawChoice struct {
					Reasoning        string `json:"reasoning"`
					ReasoningContent string `json:"reasoning_content"`
				}
				if json.Unmarshal([]byte(raw), &rawChoice) == nil {
					thought := rawChoice.Reasoning
					if thought == "" {
						thought = rawChoice.ReasoningContent
					}
					if thought != "" {
						thinkingLogBuffer.WriteString(thought)
						chunkCh <- llm.NewThinkingChunk(thought)
					}
				}
			}

			switch variant := event.AsAny().(type) {
			case responses.ResponseTextDeltaEvent:
				if cut.done {
					continue
				}
				if text := cut.feed(variant.Delta); text != "" {
					chunkCh <- llm.NewTextChunk(text)
				}

			case responses.ResponseReasoningSummaryTextDeltaEvent:
				thinkingLogBuffer.WriteString(variant.Delta)
				chunkCh <- llm.NewThinkingChunk(variant.Delta)

			case responses.ResponseCompletedEvent:
				lastFinishReason = "stop"
				if variant.Response.Usage.TotalTokens > 0 {
					lastUsage = &llm.LLMUsage{
						PromptTokens:     int(variant.Response.Usage.InputTokens),
						CompletionTokens: int(variant.Response.Usage.OutputTokens),
						TotalTokens:      int(variant.Response.Usage.TotalTokens),
						CachedTokens:     int(variant.Response.Usage.InputTokensDetails.CachedTokens),
						ThoughtsTokens:   int(variant.Response.Usage.OutputTokensDetails.ReasoningTokens),
						StopReason:       llm.StopReasonStop,
					}
				}

			case responses.ResponseIncompleteEvent:
				lastFinishReason = "length"

			case responses.ResponseFailedEvent:
				chunkCh <- llm.NewErrorChunk("API Response Failed", fmt.Errorf("openai: response failed: %s", variant.Response.Error.Message), true)
				return

			case responses.ResponseErrorEvent:
				chunkCh <- llm.NewErrorChunk(fmt.Sprintf("API Error: %s", variant.Message), fmt.Errorf("openai: %s", variant.Message), true)
				return
			}
		}
		if thinkingLogBuffer.Len() > 0 {
			slog.DebugContext(ctx, "Captured full thinking process", "provider", c.provider, "content", thinkingLogBuffer.String())
		}

		if err := stream.Err(); err != nil {
			chunkCh <- llm.NewErrorChunk(fmt.Sprintf("Stream error: %v", err), err, true)
			return
		}

		if rest := cut.flush(); rest != "" {
			chunkCh <- llm.NewTextChunk(rest)
		}
		reason := normalizeStopReason(lastFinishReason)
		if cut.done {
			reason = llm.StopReasonStop
		}
		chunkCh <- llm.NewFinalChunk(reason, lastUsage)
	}()

	return chunkCh, nil
}

// rawJSON reads the unexported raw payload from an SDK metadata struct.
func rawJSON(meta any) string {
	rv := reflect.ValueOf(meta)
	if rv.Kind() != reflect.Struct {
		return ""
	}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		if rt.Field(i).Name == "raw" {
			return rv.Field(i).String()
		}
	}
	return ""
}

func (c *Client) convertMessages(messages []llm.Message) []responses.ResponseInputItemUnionParam {
	items := make([]responses.ResponseInputItemUnionParam, 0, len(messages))

	for _, m := range messages {
		var role responses.EasyInputMessageRole
		switch m.Role {
		case llm.RoleSystem:
			role = responses.EasyInputMessageRoleSystem
		case llm.RoleAssistant:
			role = responses.EasyInputMessageRoleAssistant
		default:
			role = responses.EasyInputMessageRoleUser
		}
		items = append(items, responses.ResponseInputItemParamOfMessage(m.GetTextContent(), role))
	}

	return items
}

// normalizeStopReason converts OpenAI-specific finish reasons to
// the normalized constants.
func normalizeStopReason(reason string) string {
	switch strings.ToLower(reason) {
	case "", "stop":
		return llm.StopReasonStop
	case "length":
		return llm.StopReasonLength
	default:
		return reason
	}
}
