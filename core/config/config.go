package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/oarmstrong95/slack-bot/common"
	"github.com/oarmstrong95/slack-bot/core/db"
)

// DefaultPreamble is the system instruction prepended to every completion request.
const DefaultPreamble = `
You are an AI assistant.
You will answer the question as truthfully as possible.
If you're unsure of the answer, say Sorry, I don't know.
`

// DefaultAckText is posted into the thread while the completion is running.
const DefaultAckText = "Got your request. Please wait."

type Config struct {
	OTel     OTelConfig
	Slack    SlackConfig
	LLM      LLMConfig
	Augment  AugmentConfig
	Pipeline PipelineConfig
	Prompt   PromptConfig
	// TurnTimeout caps one turn end to end: placeholder, augmentation and
	// every completion attempt.
	TurnTimeout time.Duration
	Env         string
	Port        string
	// MetricsAddr is where the worker and socket-mode relay expose /metrics.
	// The webhook server serves /metrics on its main port.
	MetricsAddr string
	DB          db.Config
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
	SampleRatio    float64
}

// TransportMode selects how Slack delivers events to the bot.
type TransportMode string

const (
	TransportModeHTTP   TransportMode = "http"
	TransportModeSocket TransportMode = "socket"
)

type SlackConfig struct {
	BotToken      string
	AppToken      string // Socket Mode only
	SigningSecret string // Events API only
	Mode          TransportMode
	DedupTTL      time.Duration
	// ReplyInThreads also answers unmentioned replies in threads the bot has
	// posted in. Off by default: only app_mention events start a turn.
	ReplyInThreads bool
}

type LLMConfig struct {
	Provider    string // "openai" or "anthropic"
	APIKey      string
	BaseURL     string // Optional: for custom endpoints
	Model       string
	MaxTokens   int
	Temperature *float64 // nil = provider default
	Timeout     time.Duration
}

// AugmentConfig bounds the URL content fetches done while building a conversation.
type AugmentConfig struct {
	PerURLTimeout   time.Duration
	Budget          time.Duration
	Concurrency     int
	MaxBodyBytes    int64
	MaxContentChars int
}

type PipelineConfig struct {
	RedisURL       string
	RedisStream    string
	RedisGroup     string
	RedisDLQStream string
	RedisConsumer  string
}

type PromptConfig struct {
	Preamble string
	AckText  string
}

type ServiceType string

const (
	ServiceTypeServer ServiceType = "server"
	ServiceTypeWorker ServiceType = "worker"
	ServiceTypeRelay  ServiceType = "relay"
)

// Load loads configuration from environment variables.
// In development, it loads from service-specific .env files:
//   - .env.server for the Events API webhook server
//   - .env.worker for the queue worker
//   - .env.relay for the socket-mode relay
//
// Falls back to .env, then to a bare "env" file, if the service-specific file doesn't exist.
func Load(serviceType ServiceType) (Config, error) {
	if getEnv("RELAY_ENV", "development") == "development" {
		envFile := fmt.Sprintf(".env.%s", serviceType)
		if err := godotenv.Load(envFile); err != nil {
			if err := godotenv.Load(".env"); err != nil {
				_ = godotenv.Load("env")
			}
		}
	}

	hostname, _ := os.Hostname()
	consumerName, err := common.Slugify(hostname, string(serviceType))
	if err != nil {
		consumerName = string(serviceType)
	}

	provider := getEnv("LLM_PROVIDER", "openai")

	cfg := Config{
		Env:         getEnv("RELAY_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		TurnTimeout: getEnvDuration("TURN_TIMEOUT", 5*time.Minute),
		DB: db.Config{
			DSN:      getEnv("DATABASE_URL", ""),
			MaxConns: getEnvInt32("DB_MAX_CONNS", 5),
			MinConns: getEnvInt32("DB_MIN_CONNS", 1),
		},
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "slack-relay-"+string(serviceType)),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			SampleRatio:    getEnvFloat("OTEL_TRACES_SAMPLE_RATIO", 1.0),
		},
		Slack: SlackConfig{
			BotToken:      getEnv("SLACK_BOT_TOKEN", ""),
			AppToken:      getEnv("SLACK_APP_TOKEN", ""),
			SigningSecret: getEnv("SLACK_SIGNING_SECRET", ""),
			Mode:          TransportMode(getEnv("SLACK_MODE", string(defaultMode(serviceType)))),
			DedupTTL:      getEnvDuration("DEDUP_TTL", time.Hour),

			ReplyInThreads: getEnvBool("SLACK_REPLY_IN_THREADS", false),
		},
		LLM: LLMConfig{
			Provider:    provider,
			APIKey:      getEnv("LLM_API_KEY", providerKey(provider)),
			BaseURL:     getEnv("LLM_BASE_URL", ""),
			Model:       getEnv("LLM_MODEL", ""),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 2048),
			Temperature: getEnvFloatPtr("LLM_TEMPERATURE"),
			Timeout:     getEnvDuration("LLM_TIMEOUT", 2*time.Minute),
		},
		Augment: AugmentConfig{
			PerURLTimeout:   getEnvDuration("AUGMENT_URL_TIMEOUT", 15*time.Second),
			Budget:          getEnvDuration("AUGMENT_BUDGET", 45*time.Second),
			Concurrency:     getEnvInt("AUGMENT_CONCURRENCY", 4),
			MaxBodyBytes:    int64(getEnvInt("EXTRACT_MAX_BYTES", 2<<20)),
			MaxContentChars: getEnvInt("EXTRACT_MAX_CHARS", 20000),
		},
		Pipeline: PipelineConfig{
			RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379/0"),
			RedisStream:    getEnv("REDIS_STREAM", "slack_events"),
			RedisGroup:     getEnv("REDIS_CONSUMER_GROUP", "slack_relay"),
			RedisDLQStream: getEnv("REDIS_DLQ_STREAM", "slack_events_dlq"),
			RedisConsumer:  getEnv("REDIS_CONSUMER_NAME", consumerName),
		},
		Prompt: PromptConfig{
			Preamble: getEnv("SYSTEM_PREAMBLE", DefaultPreamble),
			AckText:  getEnv("ACK_TEXT", DefaultAckText),
		},
	}

	if err := cfg.validate(serviceType); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate(serviceType ServiceType) error {
	if c.Slack.BotToken == "" {
		return fmt.Errorf("SLACK_BOT_TOKEN is required")
	}

	switch c.Slack.Mode {
	case TransportModeHTTP, TransportModeSocket:
	default:
		return fmt.Errorf("SLACK_MODE must be %q or %q, got %q", TransportModeHTTP, TransportModeSocket, c.Slack.Mode)
	}

	if serviceType == ServiceTypeServer && c.Slack.SigningSecret == "" {
		return fmt.Errorf("SLACK_SIGNING_SECRET is required for the events server")
	}
	if serviceType == ServiceTypeRelay && c.Slack.AppToken == "" {
		return fmt.Errorf("SLACK_APP_TOKEN is required for socket mode")
	}

	// The server only verifies and enqueues; it never calls the model.
	if serviceType != ServiceTypeServer && !c.LLM.Enabled() {
		return fmt.Errorf("LLM_API_KEY is required and LLM_PROVIDER must be openai or anthropic")
	}

	if c.Augment.PerURLTimeout <= 0 || c.Augment.Budget <= 0 {
		return fmt.Errorf("AUGMENT_URL_TIMEOUT and AUGMENT_BUDGET must be positive")
	}
	if c.TurnTimeout <= 0 {
		return fmt.Errorf("TURN_TIMEOUT must be positive")
	}

	return nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c LLMConfig) Enabled() bool {
	return c.APIKey != "" && (c.Provider == "openai" || c.Provider == "anthropic")
}

func defaultMode(serviceType ServiceType) TransportMode {
	if serviceType == ServiceTypeRelay {
		return TransportModeSocket
	}
	return TransportModeHTTP
}

func providerKey(provider string) string {
	if provider == "anthropic" {
		return getEnv("ANTHROPIC_API_KEY", "")
	}
	return getEnv("OPENAI_API_KEY", "")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt32(key string, fallback int32) int32 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(i)
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvFloatPtr(key string) *float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return &f
		}
	}
	return nil
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
