package openailm

import (
	"kernelapi/pkg/config"
	"kernelapi/pkg/llm"
)

// OpenAIFactory handles creation of OpenAI Clients
type OpenAIFactory struct{}

// Create implements ProviderFactory
func (f *OpenAIFactory) Create(settings config.Settings, sys *config.SystemConfig) (llm.LLMClient, error) {
	client, err := NewClient("openai", settings.APIKey, settings.Model, settings.BaseURL)
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
	llm.RegisterProvider("openai", &OpenAIFactory{})
}
