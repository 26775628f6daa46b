package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zjregee/alterchat/internal/log"
	"github.com/zjregee/alterchat/internal/models"
)

const (
	defaultDir      = ".alterchat"
	defaultFileName = "config.yaml"
	defaultDBName   = "alterchat.db"

	defaultRuntimeURL  = "http://127.0.0.1:8123"
	defaultAssistantID = "agent"
	defaultTimeout     = 5 * time.Minute
)

const (
	ModeRemote = "remote"
	ModeLocal  = "local"
)

type Config struct {
	Runtime   RuntimeConfig   `yaml:"runtime"`
	History   HistoryConfig   `yaml:"history"`
	Settings  models.Settings `yaml:"settings"`
	Limits    models.Limits   `yaml:"limits"`
	Providers ProvidersConfig `yaml:"providers"`
	Log       log.Config      `yaml:"log"`
}

type RuntimeConfig struct {
	// Mode is "remote" for an agent server or "local" for in-process models.
	Mode        string        `yaml:"mode"`
	URL         string        `yaml:"url"`
	AssistantID string        `yaml:"assistant_id"`
	Stream      *bool         `yaml:"stream"`
	Timeout     time.Duration `yaml:"timeout"`
}

func (r RuntimeConfig) Streaming() bool {
	return r.Stream == nil || *r.Stream
}

type HistoryConfig struct {
	Mode string `yaml:"mode"`
	URL  string `yaml:"url"`
	Path string `yaml:"path"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type ProvidersConfig struct {
	OpenAI     ProviderConfig `yaml:"openai"`
	DeepSeek   ProviderConfig `yaml:"deepseek"`
	ByteDance  ProviderConfig `yaml:"bytedance"`
	Moonshot   ProviderConfig `yaml:"moonshot"`
	OpenRouter ProviderConfig `yaml:"openrouter"`
	Ollama     ProviderConfig `yaml:"ollama"`
}

func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, defaultDir, defaultFileName), nil
}

// Load reads the YAML file at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	applyEnv(cfg)
	if err := applyDefaults(cfg, filepath.Dir(path)); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(c *Config, dir string) error {
	c.Runtime.Mode = strings.ToLower(strings.TrimSpace(c.Runtime.Mode))
	if c.Runtime.Mode == "" {
		c.Runtime.Mode = ModeRemote
	}
	if c.Runtime.Mode != ModeRemote && c.Runtime.Mode != ModeLocal {
		return fmt.Errorf("unknown runtime mode: %s", c.Runtime.Mode)
	}
	if c.Runtime.URL == "" {
		c.Runtime.URL = defaultRuntimeURL
	}
	c.Runtime.URL = strings.TrimRight(c.Runtime.URL, "/")
	if c.Runtime.AssistantID == "" {
		c.Runtime.AssistantID = defaultAssistantID
	}
	if c.Runtime.Timeout <= 0 {
		c.Runtime.Timeout = defaultTimeout
	}

	c.History.Mode = strings.ToLower(strings.TrimSpace(c.History.Mode))
	if c.History.Mode == "" {
		c.History.Mode = c.Runtime.Mode
	}
	if c.History.Mode != ModeRemote && c.History.Mode != ModeLocal {
		return fmt.Errorf("unknown history mode: %s", c.History.Mode)
	}
	if c.History.URL == "" {
		c.History.URL = c.Runtime.URL
	}
	c.History.URL = strings.TrimRight(c.History.URL, "/")
	if c.History.Path == "" {
		c.History.Path = filepath.Join(dir, defaultDBName)
	}

	defaults := models.DefaultSettings()
	if c.Settings.Model == "" {
		c.Settings.Model = defaults.Model
	}
	if c.Settings.Temperature == 0 {
		c.Settings.Temperature = defaults.Temperature
	}
	if c.Settings.MaxTokens == 0 {
		c.Settings.MaxTokens = defaults.MaxTokens
	}
	if c.Settings.MessagesStrategy == "" {
		c.Settings.MessagesStrategy = defaults.MessagesStrategy
	}
	if c.Settings.StrategyNumber == 0 {
		c.Settings.StrategyNumber = defaults.StrategyNumber
	}
	if c.Limits.MaxTokens <= 0 {
		c.Limits = models.DefaultLimits()
	}

	if err := c.Settings.Validate(c.Limits); err != nil {
		return fmt.Errorf("invalid default settings: %w", err)
	}
	return nil
}

func applyEnv(c *Config) {
	setString(&c.Runtime.URL, "ALTERCHAT_RUNTIME_URL")
	setString(&c.Runtime.Mode, "ALTERCHAT_RUNTIME_MODE")
	setString(&c.History.URL, "ALTERCHAT_HISTORY_URL")
	setString(&c.History.Path, "ALTERCHAT_HISTORY_PATH")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")

	setString(&c.Providers.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.Providers.DeepSeek.APIKey, "DEEPSEEK_API_KEY")
	setString(&c.Providers.ByteDance.APIKey, "BYTE_DANCE_API_KEY")
	setString(&c.Providers.Moonshot.APIKey, "MOONSHOT_API_KEY")
	setString(&c.Providers.OpenRouter.APIKey, "OPENROUTER_API_KEY")
	setString(&c.Providers.Ollama.BaseURL, "OLLAMA_BASE_URL")

	if value := os.Getenv("ALTERCHAT_RUNTIME_STREAM"); value != "" {
		if stream, err := strconv.ParseBool(value); err == nil {
			c.Runtime.Stream = &stream
		}
	}
}

func setString(target *string, key string) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		*target = value
	}
}
