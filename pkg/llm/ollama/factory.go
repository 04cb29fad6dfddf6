package ollama

import (
	"kernelapi/pkg/config"
	"kernelapi/pkg/llm"
)

// OllamaFactory handles creation of Ollama Clients
type OllamaFactory struct{}

// Create implements ProviderFactory
func (f *OllamaFactory) Create(settings config.Settings, sys *config.SystemConfig) (llm.LLMClient, error) {
	client, err := NewOllamaClient(settings.Model, settings.BaseURL)
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
	llm.RegisterProvider("ollama", &OllamaFactory{})
}
