package llm

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kernelapi/pkg/config"
)

// ErrUnknownProvider is returned when settings name an unregistered provider.
var ErrUnknownProvider = errors.New("unknown llm provider")

// NewFromSettings builds the client selected by settings.Provider.
// With MaxRetries above 1 the client is wrapped in a FallbackClient so
// transient failures are retried.
func NewFromSettings(settings config.Settings, sys *config.SystemConfig) (LLMClient, error) {
	factory, ok := GetProviderFactory(settings.Provider)
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownProvider, settings.Provider, Providers())
	}

	client, err := factory.Create(settings, sys)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", settings.Provider, err)
	}

	slog.Info("LLM client initialized", "provider", settings.Provider, "model", settings.Model)

	if sys == nil || sys.MaxRetries <= 1 {
		return client, nil
	}

	return &FallbackClient{
		Clients:    []LLMClient{client},
		MaxRetries: sys.MaxRetries,
		RetryDelay: time.Duration(sys.RetryDelayMs) * time.Millisecond,
	}, nil
}
