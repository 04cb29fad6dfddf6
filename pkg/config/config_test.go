package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every settings variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	var s Settings
	for _, f := range s.fields() {
		t.Setenv(f.key, "")
		os.Unsetenv(f.key)
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestLoadSettings_FromAppSettings(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "appsettings.json", `{"Values":{"model":"gpt-4o-mini","apiKey":"sk-file","qdrant":"http://localhost:6333"}}`)

	s, err := LoadSettings(dir)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", s.Model)
	assert.Equal(t, "sk-file", s.APIKey)
	assert.Equal(t, "http://localhost:6333", s.Qdrant)
	assert.Equal(t, "openai", s.Provider)
	assert.Equal(t, "openai", s.EmbeddingProvider)
}

func TestLoadSettings_DevelopmentOverlay(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "appsettings.json", `{"Values":{"model":"base","apiKey":"sk-base"}}`)
	writeFile(t, dir, "appsettings.Development.json", `{"Values":{"model":"dev"}}`)

	s, err := LoadSettings(dir)
	require.NoError(t, err)
	assert.Equal(t, "dev", s.Model)
	assert.Equal(t, "sk-base", s.APIKey, "fields absent from the overlay are kept")
}

func TestLoadSettings_EnvironmentWins(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "appsettings.json", `{"Values":{"model":"file","apiKey":"sk-file"}}`)
	t.Setenv("model", "env-model")
	t.Setenv("qdrant", "http://qdrant:6333")

	s, err := LoadSettings(dir)
	require.NoError(t, err)
	assert.Equal(t, "env-model", s.Model)
	assert.Equal(t, "sk-file", s.APIKey)
	assert.Equal(t, "http://qdrant:6333", s.Qdrant)
}

func TestLoadSettings_FailsClosed(t *testing.T) {
	tests := []struct {
		name  string
		file  string
		env   map[string]string
		wants string
	}{
		{name: "nothing configured", wants: "model, apiKey"},
		{name: "model only", file: `{"Values":{"model":"m"}}`, wants: "apiKey"},
		{name: "api key only", env: map[string]string{"apiKey": "sk"}, wants: "model"},
		{name: "blank env overrides file", file: `{"Values":{"model":"m","apiKey":"sk"}}`, env: map[string]string{"apiKey": ""}, wants: "apiKey"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			dir := t.TempDir()
			if tt.file != "" {
				writeFile(t, dir, "appsettings.json", tt.file)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := LoadSettings(dir)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMissingSetting)
			assert.Contains(t, err.Error(), tt.wants)
		})
	}
}

func TestLoadSettings_InvalidJSON(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "appsettings.json", `{"Values":`)

	_, err := LoadSettings(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "appsettings.json")
}

func TestSettings_Redacted(t *testing.T) {
	s := Settings{Model: "m", APIKey: "secret", QdrantAPIKey: "q"}
	r := s.Redacted()
	assert.Equal(t, "***", r.APIKey)
	assert.Equal(t, "***", r.QdrantAPIKey)
	assert.Equal(t, "secret", s.APIKey, "original is untouched")
}

func TestLoadSystemConfig(t *testing.T) {
	t.Run("missing file uses defaults", func(t *testing.T) {
		cfg := LoadSystemConfig(filepath.Join(t.TempDir(), "system.json"))
		assert.Equal(t, DefaultSystemConfig(), cfg)
	})

	t.Run("partial file keeps other defaults", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "system.json", `{"port":9000,"memory_docs":["docs/**/*.md"]}`)
		cfg := LoadSystemConfig(filepath.Join(dir, "system.json"))
		assert.Equal(t, 9000, cfg.Port)
		assert.Equal(t, []string{"docs/**/*.md"}, cfg.MemoryDocs)
		assert.Equal(t, "FunPlugin", cfg.PlannerPlugin)
	})

	t.Run("corrupt file uses defaults", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "system.json", `{"port":`)
		assert.Equal(t, DefaultSystemConfig(), LoadSystemConfig(filepath.Join(dir, "system.json")))
	})
}

func TestWatchSettings_ReportsChange(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := WatchSettings(ctx, dir)
	// Give the watcher a moment to register before writing.
	time.Sleep(50 * time.Millisecond)
	writeFile(t, dir, "ignored.json", `{}`)
	writeFile(t, dir, "appsettings.json", `{"Values":{}}`)

	select {
	case name := <-changes:
		assert.Equal(t, "appsettings.json", name)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	for range changes {
	}
}
