package gemini

import (
	"context"

	"kernelapi/pkg/config"
	"kernelapi/pkg/llm"
)

// GeminiFactory handles creation of Gemini Clients
type GeminiFactory struct{}

// Create implements ProviderFactory
func (f *GeminiFactory) Create(settings config.Settings, sys *config.SystemConfig) (llm.LLMClient, error) {
	client, err := NewGeminiClient(context.Background(), settings.APIKey, settings.Model)
	if err != nil {
		return nil, err
	}
	if sys != nil {
		client.SetDebug(sys.DebugChunks)
		client.SetBufferSize(sys.InternalChannelBuffer)
	}
	return client, nil
}

func init() {
	llm.RegisterProvider("gemini", &GeminiFactory{})
}
