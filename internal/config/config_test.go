package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjregee/alterchat/internal/models"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ALTERCHAT_RUNTIME_URL", "")
	t.Setenv("ALTERCHAT_RUNTIME_MODE", "")

	cfg, err := Load(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ModeRemote, cfg.Runtime.Mode)
	assert.Equal(t, defaultRuntimeURL, cfg.Runtime.URL)
	assert.Equal(t, defaultAssistantID, cfg.Runtime.AssistantID)
	assert.True(t, cfg.Runtime.Streaming())
	assert.Equal(t, ModeRemote, cfg.History.Mode)
	assert.Equal(t, filepath.Join(dir, defaultDBName), cfg.History.Path)
	assert.Equal(t, models.DefaultSettings(), cfg.Settings)
	assert.Equal(t, models.DefaultMaxTokensCap, cfg.Limits.MaxTokens)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
runtime:
  mode: local
  url: http://agents.internal:8123/
  stream: false
  timeout: 30s
history:
  mode: local
settings:
  model: gpt-4.1-nano
  temperature: 1.2
  max_tokens: 900
  messages_strategy: trim_tokens
  strategy_number: 512
limits:
  max_tokens: 1000
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	t.Setenv("ALTERCHAT_RUNTIME_URL", "")
	t.Setenv("ALTERCHAT_RUNTIME_MODE", "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ModeLocal, cfg.Runtime.Mode)
	assert.Equal(t, "http://agents.internal:8123", cfg.Runtime.URL)
	assert.False(t, cfg.Runtime.Streaming())
	assert.Equal(t, 30*time.Second, cfg.Runtime.Timeout)
	assert.Equal(t, ModeLocal, cfg.History.Mode)
	assert.Equal(t, "gpt-4.1-nano", cfg.Settings.Model)
	assert.Equal(t, models.MessagesStrategyTrimTokens, cfg.Settings.MessagesStrategy)
	assert.Equal(t, 512, cfg.Settings.StrategyNumber)
	assert.Equal(t, 1000, cfg.Limits.MaxTokens)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("settings:\n  temperature: 3.5\n"), 0600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "temperature")
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ALTERCHAT_RUNTIME_URL", "http://override:9000")
	t.Setenv("ALTERCHAT_RUNTIME_MODE", "")
	t.Setenv("DEEPSEEK_API_KEY", "sk-test")
	t.Setenv("ALTERCHAT_RUNTIME_STREAM", "false")

	cfg, err := Load(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://override:9000", cfg.Runtime.URL)
	assert.Equal(t, "http://override:9000", cfg.History.URL)
	assert.Equal(t, "sk-test", cfg.Providers.DeepSeek.APIKey)
	assert.False(t, cfg.Runtime.Streaming())
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ALTERCHAT_RUNTIME_MODE", "grpc")

	_, err := Load(filepath.Join(dir, "config.yaml"))
	require.Error(t, err)
}
