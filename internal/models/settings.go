package models

import (
	"fmt"
	"math"
	"strings"
)

type MessagesStrategy string

const (
	MessagesStrategyDelete     MessagesStrategy = "delete"
	MessagesStrategyTrimCount  MessagesStrategy = "trim_count"
	MessagesStrategyTrimTokens MessagesStrategy = "trim_tokens"
	MessagesStrategySummarize  MessagesStrategy = "summarize"
)

const (
	MinTemperature       = 0.0
	MaxTemperature       = 2.0
	MinMaxTokens         = 10
	DefaultMaxTokensCap  = 2000
	DefaultModelID       = "gemma3:1b"
	DefaultTemperature   = 0.7
	DefaultMaxTokens     = 250
	DefaultStrategyCount = 1
)

func (s MessagesStrategy) Valid() bool {
	switch s {
	case MessagesStrategyDelete, MessagesStrategyTrimCount, MessagesStrategyTrimTokens, MessagesStrategySummarize:
		return true
	default:
		return false
	}
}

// Settings is the configuration object the presentational layer owns. The
// controller receives a copy on every submission.
type Settings struct {
	Model            string           `json:"model" yaml:"model"`
	Temperature      float64          `json:"temperature" yaml:"temperature"`
	MaxTokens        int              `json:"max_tokens" yaml:"max_tokens"`
	MessagesStrategy MessagesStrategy `json:"messages_strategy" yaml:"messages_strategy"`
	StrategyNumber   int              `json:"strategy_number" yaml:"strategy_number"`
}

type Limits struct {
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`
}

func DefaultSettings() Settings {
	return Settings{
		Model:            DefaultModelID,
		Temperature:      DefaultTemperature,
		MaxTokens:        DefaultMaxTokens,
		MessagesStrategy: MessagesStrategyDelete,
		StrategyNumber:   DefaultStrategyCount,
	}
}

func DefaultLimits() Limits {
	return Limits{MaxTokens: DefaultMaxTokensCap}
}

func (s Settings) Validate(limits Limits) error {
	maxTokensCap := limits.MaxTokens
	if maxTokensCap <= 0 {
		maxTokensCap = DefaultMaxTokensCap
	}

	if strings.TrimSpace(s.Model) == "" {
		return fmt.Errorf("model is required")
	}
	if math.IsNaN(s.Temperature) || s.Temperature < MinTemperature || s.Temperature > MaxTemperature {
		return fmt.Errorf("temperature %.2f out of range [%.0f, %.0f]", s.Temperature, MinTemperature, MaxTemperature)
	}
	if s.MaxTokens < MinMaxTokens || s.MaxTokens > maxTokensCap {
		return fmt.Errorf("max tokens %d out of range [%d, %d]", s.MaxTokens, MinMaxTokens, maxTokensCap)
	}
	if !s.MessagesStrategy.Valid() {
		return fmt.Errorf("unknown messages strategy: %q", s.MessagesStrategy)
	}
	if s.StrategyNumber < 0 {
		return fmt.Errorf("strategy number must not be negative")
	}
	return nil
}

// Context builds the per-submission generation context.
func (s Settings) Context() GenerationContext {
	return GenerationContext{
		Model:            strings.TrimSpace(s.Model),
		Temperature:      s.Temperature,
		MaxTokens:        s.MaxTokens,
		MessagesStrategy: s.MessagesStrategy,
		StrategyNumber:   s.StrategyNumber,
	}
}

type GenerationContext struct {
	Model            string           `json:"model"`
	Temperature      float64          `json:"temperature"`
	MaxTokens        int              `json:"max_tokens"`
	MessagesStrategy MessagesStrategy `json:"messages_strategy"`
	StrategyNumber   int              `json:"message_strategy_number"`
}
