package local

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/zjregee/alterchat/internal/config"
	"github.com/zjregee/alterchat/internal/models"
)

const (
	Gemma3ModelID             = "gemma3:1b"
	GPT41NanoModelID          = "gpt-4.1-nano"
	ClaudeHaiku3ModelID       = "anthropic/claude-3-haiku"
	DeepSeekChatModelID       = "deepseek-chat"
	DeepSeekReasonerModelID   = "deepseek-reasoner"
	DoubaoSeed18251215ModelID = "doubao-seed-1-8-251215"
	KimiK2TurboModelID        = "kimi-k2-turbo-preview"
	XGrok41FastModelID        = "x-ai/grok-4.1-fast"
	Qwen3CoderModelID         = "qwen/qwen3-coder:free"
)

const (
	OllamaModelProvider     = "Ollama"
	OpenAIModelProvider     = "OpenAI"
	DeepSeekModelProvider   = "DeepSeek"
	ByteDanceModelProvider  = "ByteDance"
	MoonshotModelProvider   = "Moonshot"
	OpenRouterModelProvider = "OpenRouter"
)

const (
	OllamaModelBaseURL     = "http://127.0.0.1:11434/v1"
	OpenAIModelBaseURL     = "https://api.openai.com/v1"
	DeepSeekModelBaseURL   = "https://api.deepseek.com"
	ByteDanceModelBaseURL  = "https://ark.cn-beijing.volces.com/api/v3/chat/completions"
	MoonshotModelBaseURL   = "https://api.moonshot.cn"
	OpenRouterModelBaseURL = "https://openrouter.ai/api/v1"
)

// ollamaAPIKey is sent to the OpenAI compatible endpoint of ollama, which
// ignores it but the client refuses an empty key.
const ollamaAPIKey = "ollama"

var availableModels = []*models.ModelInfo{
	{ID: Gemma3ModelID, Name: "gemma3:1b", Provider: OllamaModelProvider, ContextWindow: "32k"},
	{ID: GPT41NanoModelID, Name: "GPT 4.1 Nano", Provider: OpenAIModelProvider, ContextWindow: "1M"},
	{ID: ClaudeHaiku3ModelID, Name: "Haiku 3", Provider: OpenRouterModelProvider, ContextWindow: "200k"},
	{ID: DeepSeekChatModelID, Name: "deepseek-chat", Provider: DeepSeekModelProvider, ContextWindow: "128k"},
	{ID: DeepSeekReasonerModelID, Name: "deepseek-reasoner", Provider: DeepSeekModelProvider, ContextWindow: "128k"},
	{ID: DoubaoSeed18251215ModelID, Name: "doubao-seed-1.8", Provider: ByteDanceModelProvider, ContextWindow: "256k"},
	{ID: KimiK2TurboModelID, Name: "kimi-k2", Provider: MoonshotModelProvider, ContextWindow: "256k"},
	{ID: XGrok41FastModelID, Name: "grok-4.1-fast", Provider: OpenRouterModelProvider, ContextWindow: "2M"},
	{ID: Qwen3CoderModelID, Name: "qwen3-coder", Provider: OpenRouterModelProvider, ContextWindow: "262k"},
}

// Registry builds eino chat models for the catalogue. Credentials are only
// checked when a model is requested.
type Registry struct {
	providers config.ProvidersConfig
}

func NewRegistry(providers config.ProvidersConfig) *Registry {
	return &Registry{providers: providers}
}

func (r *Registry) ListModels() []*models.ModelInfo {
	infos := make([]*models.ModelInfo, 0, len(availableModels))
	for _, info := range availableModels {
		copied := *info
		infos = append(infos, &copied)
	}
	return infos
}

func (r *Registry) IsAvailable(modelID string) bool {
	return findModel(modelID) != nil
}

func (r *Registry) ChatModel(ctx context.Context, modelID string) (model.BaseChatModel, error) {
	info := findModel(modelID)
	if info == nil {
		return nil, fmt.Errorf("model not found: %s", modelID)
	}

	apiKey, baseURL := r.credentials(info.Provider)
	if apiKey == "" {
		return nil, fmt.Errorf("missing API key for provider %s", info.Provider)
	}

	switch info.Provider {
	case DeepSeekModelProvider:
		return deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:  apiKey,
			BaseURL: baseURL,
			Model:   info.ID,
		})
	case ByteDanceModelProvider:
		return ark.NewChatModel(ctx, &ark.ChatModelConfig{
			APIKey:  apiKey,
			BaseURL: baseURL,
			Model:   info.ID,
		})
	case OllamaModelProvider, OpenAIModelProvider, MoonshotModelProvider, OpenRouterModelProvider:
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:  apiKey,
			BaseURL: baseURL,
			Model:   info.ID,
		})
	default:
	}

	return nil, fmt.Errorf("unsupported model provider: %s", info.Provider)
}

func (r *Registry) credentials(provider string) (string, string) {
	var (
		cfg         config.ProviderConfig
		defaultBase string
	)

	switch provider {
	case OllamaModelProvider:
		cfg, defaultBase = r.providers.Ollama, OllamaModelBaseURL
		if cfg.APIKey == "" {
			cfg.APIKey = ollamaAPIKey
		}
	case OpenAIModelProvider:
		cfg, defaultBase = r.providers.OpenAI, OpenAIModelBaseURL
	case DeepSeekModelProvider:
		cfg, defaultBase = r.providers.DeepSeek, DeepSeekModelBaseURL
	case ByteDanceModelProvider:
		cfg, defaultBase = r.providers.ByteDance, ByteDanceModelBaseURL
	case MoonshotModelProvider:
		cfg, defaultBase = r.providers.Moonshot, MoonshotModelBaseURL
	case OpenRouterModelProvider:
		cfg, defaultBase = r.providers.OpenRouter, OpenRouterModelBaseURL
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBase
	}
	return strings.TrimSpace(cfg.APIKey), baseURL
}

func findModel(modelID string) *models.ModelInfo {
	modelID = strings.TrimSpace(modelID)
	// Settings written for an agent server name ollama models "ollama:<id>".
	modelID = strings.TrimPrefix(modelID, "ollama:")
	for _, info := range availableModels {
		if info.ID == modelID {
			return info
		}
	}
	return nil
}
