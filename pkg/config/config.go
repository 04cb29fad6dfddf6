package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// ErrMissingSetting is returned when a value required to serve is empty.
var ErrMissingSetting = errors.New("missing required setting")

// SettingsFiles lists the JSON files read by LoadSettings, in overlay order.
// Later files override earlier ones.
var SettingsFiles = []string{"appsettings.json", "appsettings.Development.json"}

// Settings holds the business-level values the kernel is bound to.
// It is loaded once at startup and never mutated afterwards; every component
// receives its own copy.
type Settings struct {
	// Model is the chat-completion model identifier (e.g. "gpt-4o-mini").
	Model string `json:"model"`
	// APIKey authenticates against the LLM provider.
	APIKey string `json:"apiKey"`
	// Qdrant is the vector-store address. Empty selects the in-process store.
	Qdrant string `json:"qdrant"`
	// QdrantAPIKey is sent to Qdrant Cloud deployments.
	QdrantAPIKey string `json:"qdrantApiKey,omitempty"`
	// Provider selects the chat-completion backend: "openai", "gemini" or "ollama".
	Provider string `json:"provider,omitempty"`
	// BaseURL overrides the provider endpoint (OpenAI-compatible gateways, remote Ollama).
	BaseURL string `json:"baseUrl,omitempty"`
	// EmbeddingProvider selects the embedding backend. Defaults to Provider.
	// "local" uses the offline feature-hashing embedder.
	EmbeddingProvider string `json:"embeddingProvider,omitempty"`
	// EmbeddingModel overrides the provider's default embedding model.
	EmbeddingModel string `json:"embeddingModel,omitempty"`
}

// appSettings mirrors the layout of appsettings.json, where values live
// under a "Values" section.
type appSettings struct {
	Values Settings `json:"Values"`
}

// Validate ensures the values needed to serve any route are present.
func (s Settings) Validate() error {
	var missing []string
	if s.Model == "" {
		missing = append(missing, "model")
	}
	if s.APIKey == "" {
		missing = append(missing, "apiKey")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingSetting, strings.Join(missing, ", "))
	}
	return nil
}

// Redacted returns a copy safe to log.
func (s Settings) Redacted() Settings {
	if s.APIKey != "" {
		s.APIKey = "***"
	}
	if s.QdrantAPIKey != "" {
		s.QdrantAPIKey = "***"
	}
	return s
}

// fields pairs every setting with its environment variable name.
func (s *Settings) fields() []struct {
	key string
	ptr *string
} {
	return []struct {
		key string
		ptr *string
	}{
		{"model", &s.Model},
		{"apiKey", &s.APIKey},
		{"qdrant", &s.Qdrant},
		{"qdrantApiKey", &s.QdrantAPIKey},
		{"provider", &s.Provider},
		{"baseUrl", &s.BaseURL},
		{"embeddingProvider", &s.EmbeddingProvider},
		{"embeddingModel", &s.EmbeddingModel},
	}
}

// overlay copies every non-empty field of other onto s.
func (s *Settings) overlay(other Settings) {
	dst := s.fields()
	src := other.fields()
	for i := range dst {
		if *src[i].ptr != "" {
			*dst[i].ptr = *src[i].ptr
		}
	}
}

// LoadSettings resolves Settings from the environment, falling back to the
// "Values" section of the appsettings files found in dir.
//
// An environment variable that is set always wins, even when empty, so an
// exported-but-blank apiKey still fails validation. The returned error wraps
// ErrMissingSetting when model or apiKey cannot be resolved.
func LoadSettings(dir string) (Settings, error) {
	var s Settings

	for _, name := range SettingsFiles {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return Settings{}, fmt.Errorf("failed to read %s: %w", name, err)
		}

		var file appSettings
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &file); err != nil {
			return Settings{}, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		s.overlay(file.Values)
	}

	for _, f := range s.fields() {
		if v, ok := os.LookupEnv(f.key); ok {
			*f.ptr = v
		}
	}

	if s.Provider == "" {
		s.Provider = "openai"
	}
	if s.EmbeddingProvider == "" {
		s.EmbeddingProvider = s.Provider
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// SystemConfig defines engine-level technical parameters.
// These settings are stored in system.json and control the
// performance and technical behavior of the server.
type SystemConfig struct {
	// Port is the HTTP listen port.
	Port int `json:"port"`
	// PluginsDir is the root of the semantic function tree
	// (one subfolder per plugin).
	PluginsDir string `json:"plugins_dir"`
	// PlannerPlugin is the plugin imported for the planner and memory routes.
	PlannerPlugin string `json:"planner_plugin"`
	// MaxRetries is the number of attempts made against the LLM provider
	// when it reports a transient error. 1 disables retrying.
	MaxRetries int `json:"max_retries"`
	// RetryDelayMs is the duration to wait (in milliseconds) between
	// consecutive retry attempts.
	RetryDelayMs int `json:"retry_delay_ms"`
	// LLMTimeoutMs is the hard cutoff for a single completion call.
	// 0 leaves the call bounded only by the request context.
	LLMTimeoutMs int `json:"llm_timeout_ms"`
	// InternalChannelBuffer is the size of the chunk channels between
	// provider goroutines and their readers.
	InternalChannelBuffer int `json:"internal_channel_buffer"`
	// PlannerMaxTokens caps the plan-synthesis completion.
	PlannerMaxTokens int `json:"planner_max_tokens"`
	// MemoryCollection names the vector-store collection seeded at startup.
	MemoryCollection string `json:"memory_collection"`
	// MemoryDocs are doublestar globs of extra documents to seed.
	MemoryDocs []string `json:"memory_docs"`
	// MemoryTopK is the number of passages recalled per memory query.
	MemoryTopK int `json:"memory_top_k"`
	// AllowedOrigins feeds the CORS middleware.
	AllowedOrigins []string `json:"allowed_origins"`
	// DebugChunks enables saving every raw LLM response chunk to the /debug
	// folder for inspection and troubleshooting purposes.
	DebugChunks bool `json:"debug_chunks"`
	// LogLevel sets the minimum severity for log output.
	// Accepted values: "debug", "info", "warn", "error". Default: "info".
	LogLevel string `json:"log_level"`
}

// DefaultSystemConfig returns a SystemConfig pointer initialized with hardcoded
// safe default values. This is used as a fallback when the system.json file
// is missing or corrupt, ensuring the engine can always start.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		Port:                  8080,
		PluginsDir:            "Plugins",
		PlannerPlugin:         "FunPlugin",
		MaxRetries:            1,
		RetryDelayMs:          500,
		LLMTimeoutMs:          0,
		InternalChannelBuffer: 100,
		PlannerMaxTokens:      1024,
		MemoryCollection:      "minecraft",
		MemoryTopK:            3,
		AllowedOrigins:        []string{"*"},
		LogLevel:              "info",
	}
}

// LoadSystemConfig attempts to load system settings, returns defaults if it fails
func LoadSystemConfig(path string) *SystemConfig {
	cfg := DefaultSystemConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		return cfg // File not found, use defaults
	}

	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(file, cfg); err != nil {
		return DefaultSystemConfig() // Parse failed, use defaults
	}

	return cfg
}
