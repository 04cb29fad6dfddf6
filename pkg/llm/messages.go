package llm

import (
	"strings"
	"time"
)

//----------------------------------------------------------------
// Message
//----------------------------------------------------------------

// Message is a single turn sent to a provider.
type Message struct {
	Role      string         `json:"role"`    // RoleSystem, RoleUser or RoleAssistant
	Content   []ContentBlock `json:"content"` // ordered content blocks
	Timestamp int64          `json:"timestamp,omitempty"`
}

// ContentBlock is one piece of message or stream content.
type ContentBlock struct {
	Type string `json:"type"` // BlockTypeText, BlockTypeThinking, BlockTypeError
	Text string `json:"text,omitempty"`
}

//----------------------------------------------------------------
// ExecutionSettings
//----------------------------------------------------------------

// ExecutionSettings are the per-call sampling parameters. Nil pointer
// fields and zero values leave the provider default in place.
type ExecutionSettings struct {
	MaxTokens        int      `json:"max_tokens,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	PresencePenalty  float64  `json:"presence_penalty,omitempty"`
	FrequencyPenalty float64  `json:"frequency_penalty,omitempty"`
	StopSequences    []string `json:"stop_sequences,omitempty"`
}

//----------------------------------------------------------------
// StreamChunk
//----------------------------------------------------------------

// StreamChunk is one incremental piece of a provider response.
type StreamChunk struct {
	// Incremental content blocks
	ContentBlocks []ContentBlock `json:"content_blocks,omitempty"`

	// Whether this is the last chunk
	IsFinal bool `json:"is_final"`

	// Normalized stop reason (final chunk only)
	FinishReason string `json:"finish_reason,omitempty"`

	// Usage statistics (final chunk only)
	Usage *LLMUsage `json:"usage,omitempty"`

	// Err is set on error chunks. It never crosses the wire.
	Err error `json:"-"`
}

//----------------------------------------------------------------
// Helper Functions - Message
//----------------------------------------------------------------

// NewTextMessage creates a single-block text message.
func NewTextMessage(role, text string) Message {
	return Message{
		Role:      role,
		Content:   []ContentBlock{NewTextBlock(text)},
		Timestamp: time.Now().Unix(),
	}
}

// NewSystemMessage creates a system message.
func NewSystemMessage(text string) Message {
	return NewTextMessage(RoleSystem, text)
}

// NewUserMessage creates a user message.
func NewUserMessage(text string) Message {
	return NewTextMessage(RoleUser, text)
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(text string) Message {
	return NewTextMessage(RoleAssistant, text)
}

// GetTextContent concatenates all text blocks (thinking excluded).
func (m *Message) GetTextContent() string {
	var sb strings.Builder
	for _, block := range m.Content {
		if block.Type == BlockTypeText {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// NewTextBlock creates a text block.
func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockTypeText, Text: text}
}

//----------------------------------------------------------------
// Helper Functions - StreamChunk
//----------------------------------------------------------------

// NewTextChunk creates a text chunk.
func NewTextChunk(text string) StreamChunk {
	return StreamChunk{ContentBlocks: []ContentBlock{NewTextBlock(text)}}
}

// NewThinkingChunk creates a reasoning chunk.
func NewThinkingChunk(text string) StreamChunk {
	return StreamChunk{ContentBlocks: []ContentBlock{{Type: BlockTypeThinking, Text: text}}}
}

// NewFinalChunk creates the closing chunk carrying usage statistics.
func NewFinalChunk(reason string, usage *LLMUsage) StreamChunk {
	return StreamChunk{
		IsFinal:      true,
		FinishReason: reason,
		Usage:        usage,
	}
}

// NewErrorChunk creates an error chunk. A fatal error chunk also ends the stream.
func NewErrorChunk(text string, err error, fatal bool) StreamChunk {
	c := StreamChunk{
		ContentBlocks: []ContentBlock{{Type: BlockTypeError, Text: text}},
		Err:           err,
		IsFinal:       fatal,
	}
	if fatal {
		c.FinishReason = StopReasonError
	}
	return c
}
