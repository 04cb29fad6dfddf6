package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"kernelapi/pkg/llm"

	jsoniter "github.com/json-iterator/go"
	"google.golang.org/genai"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// GeminiClient Google Gemini API client
type GeminiClient struct {
	client       *genai.Client
	model        string
	bufferSize   int
	debugEnabled bool
}

// SetDebug enables raw chunk capture.
func (g *GeminiClient) SetDebug(enabled bool) {
	g.debugEnabled = enabled
}

func (g *GeminiClient) SetBufferSize(n int) {
	if n > 0 {
		g.bufferSize = n
	}
}

// NewGeminiClient creates a Gemini client with a single model and API key
func NewGeminiClient(ctx context.Context, apiKey string, model string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		client:     client,
		model:      model,
		bufferSize: 100,
	}, nil
}

// GenAI exposes the SDK client so embeddings can share it.
func (g *GeminiClient) GenAI() *genai.Client {
	return g.client
}

func (g *GeminiClient) Provider() string {
	return "gemini"
}

// generateConfig maps execution settings onto the GenAI request config.
func generateConfig(system *genai.Content, settings *llm.ExecutionSettings) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{SystemInstruction: system}
	if settings == nil {
		return cfg
	}
	if settings.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*settings.Temperature))
	}
	if settings.TopP != nil {
		cfg.TopP = genai.Ptr(float32(*settings.TopP))
	}
	if settings.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(settings.MaxTokens)
	}
	if settings.PresencePenalty != 0 {
		cfg.PresencePenalty = genai.Ptr(float32(settings.PresencePenalty))
	}
	if settings.FrequencyPenalty != 0 {
		cfg.FrequencyPenalty = genai.Ptr(float32(settings.FrequencyPenalty))
	}
	if len(settings.StopSequences) > 0 {
		cfg.StopSequences = settings.StopSequences
	}
	return cfg
}

// StreamChat implements llm.LLMClient.StreamChat
func (g *GeminiClient) StreamChat(ctx context.Context, messages []llm.Message, settings *llm.ExecutionSettings) (<-chan llm.StreamChunk, error) {
	apiMessages, systemInstruction := g.convertMessages(messages)
	genCfg := generateConfig(systemInstruction, settings)

	chunkCh := make(chan llm.StreamChunk, g.bufferSize)
	startResultCh := make(chan error, 1)

	slog.DebugContext(ctx, "Streaming from Gemini", "model", g.model)

	go func() {
		defer close(chunkCh)

		debugger := llm.NewStreamDebugger(ctx, "gemini", g.debugEnabled)
		defer debugger.Close()

		iter := g.client.Models.GenerateContentStream(ctx, g.model, apiMessages, genCfg)

		started := false
		var lastUsage *llm.LLMUsage
		stopReason := llm.StopReasonStop

		for resp, err := range iter {
			if resp != nil {
				if data, mErr := json.Marshal(resp); mErr == nil {
					debugger.Write(data)
				}
			}
			if err != nil {
				// The iterator may return data along with the error
				if resp == nil {
					slog.ErrorContext(ctx, "Gemini stream error", "error", err)
					if !started {
						startResultCh <- err
					} else {
						chunkCh <- llm.NewErrorChunk(fmt.Sprintf("Stream interrupted: %v", err), err, true)
					}
					return
				}
				slog.WarnContext(ctx, "Gemini stream error with data", "error", err)
			}

			if !started {
				started = true
				startResultCh <- nil
			}

			// Usage metadata usually arrives on the last chunk
			if u := resp.UsageMetadata; u != nil {
				lastUsage = &llm.LLMUsage{
					PromptTokens:     int(u.PromptTokenCount),
					CompletionTokens: int(u.CandidatesTokenCount),
					TotalTokens:      int(u.TotalTokenCount),
					ThoughtsTokens:   int(u.ThoughtsTokenCount),
					CachedTokens:     int(u.CachedContentTokenCount),
				}
			}

			for _, candidate := range resp.Candidates {
				if candidate.FinishReason != "" {
					stopReason = normalizeStopReason(candidate.FinishReason)
				}
				if candidate.Content == nil {
					continue
				}

				var blocks []llm.ContentBlock
				for _, part := range candidate.Content.Parts {
					if part.Text == "" {
						continue
					}
					blockType := llm.BlockTypeText
					if part.Thought {
						blockType = llm.BlockTypeThinking
					}
					blocks = append(blocks, llm.ContentBlock{Type: blockType, Text: part.Text})
				}
				if len(blocks) > 0 {
					chunkCh <- llm.StreamChunk{ContentBlocks: blocks}
				}
			}
		}

		if !started {
			startResultCh <- nil
		}
		if lastUsage != nil {
			lastUsage.StopReason = stopReason
		}
		chunkCh <- llm.NewFinalChunk(stopReason, lastUsage)
	}()

	// Wait for the first chunk or an immediate error
	select {
	case err := <-startResultCh:
		if err != nil {
			return nil, err
		}
		return chunkCh, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// normalizeStopReason maps Gemini finish reasons onto the llm constants.
func normalizeStopReason(reason genai.FinishReason) string {
	switch reason {
	case genai.FinishReasonStop:
		return llm.StopReasonStop
	case genai.FinishReasonMaxTokens:
		return llm.StopReasonLength
	default:
		return strings.ToLower(string(reason))
	}
}

// convertMessages converts message list to GenAI format
func (g *GeminiClient) convertMessages(messages []llm.Message) ([]*genai.Content, *genai.Content) {
	var genaiContents []*genai.Content
	var systemInstruction *genai.Content

	for _, msg := range messages {
		text := msg.GetTextContent()
		if text == "" {
			continue
		}

		switch msg.Role {
		case llm.RoleSystem:
			systemInstruction = genai.NewContentFromText(text, genai.RoleUser)
		case llm.RoleAssistant:
			genaiContents = append(genaiContents, genai.NewContentFromText(text, genai.RoleModel))
		default:
			genaiContents = append(genaiContents, genai.NewContentFromText(text, genai.RoleUser))
		}
	}

	return genaiContents, systemInstruction
}

// IsTransientError implements the llm.LLMClient interface
func (g *GeminiClient) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())

	// 1. Service unavailable / overloaded
	if strings.Contains(errMsg, "503") || strings.Contains(errMsg, "overloaded") {
		return true
	}

	// 2. Too many requests
	if strings.Contains(errMsg, "429") || strings.Contains(errMsg, "resource exhausted") {
		return true
	}

	// 3. Occasional internal errors
	if strings.Contains(errMsg, "500") || strings.Contains(errMsg, "internal error") {
		return true
	}

	return false
}
