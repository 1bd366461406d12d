package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Provider constants for LLM provider selection.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrEmptyCompletion is returned when the provider answers without any text.
var ErrEmptyCompletion = errors.New("completion returned no content")

// Config holds LLM client configuration.
type Config struct {
	Provider    string        // "openai" or "anthropic"
	APIKey      string        // Required: API key for the provider
	BaseURL     string        // Optional: custom API endpoint
	Model       string        // Model name; each provider has a default
	MaxTokens   int           // 0 = provider default below
	Temperature *float64      // nil = model default, explicit 0 = deterministic
	Timeout     time.Duration // per request; 0 = no client-side timeout
	MaxRetries  *int          // nil = SDK default
}

// Completer turns an ordered conversation into a single assistant reply.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (*Completion, error)
	Model() string
}

// Message is one conversation entry. System messages may appear anywhere; the
// Anthropic client lifts them into the system prompt.
type Message struct {
	Role    string
	Content string
}

// Completion is the provider's reply plus usage accounting.
type Completion struct {
	Content          string
	FinishReason     string // "stop", "length", or the provider's raw value
	PromptTokens     int
	CompletionTokens int
}

const defaultMaxTokens = 2048

// NewCompleter selects the provider named in cfg.Provider. Defaults to OpenAI,
// the provider the bot originally shipped with.
func NewCompleter(cfg Config) (Completer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	switch cfg.Provider {
	case ProviderOpenAI, "":
		return newOpenAIClient(cfg), nil
	case ProviderAnthropic:
		return newAnthropicClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

func Temp(t float64) *float64 {
	return &t
}

func maxTokens(cfg Config) int64 {
	if cfg.MaxTokens > 0 {
		return int64(cfg.MaxTokens)
	}
	return defaultMaxTokens
}
