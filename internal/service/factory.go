package service

import (
	"fmt"
	"time"

	"github.com/oarmstrong95/slack-bot/common/llm"
	"github.com/oarmstrong95/slack-bot/core/config"
	"github.com/oarmstrong95/slack-bot/internal/conversation"
	"github.com/oarmstrong95/slack-bot/internal/extract"
	"github.com/oarmstrong95/slack-bot/internal/model"
	"github.com/oarmstrong95/slack-bot/internal/store"
)

type ServicesConfig struct {
	Transport Transport
	Stores    *store.Stores
	Bot       model.BotIdentity
	LLM       config.LLMConfig
	Augment   config.AugmentConfig
	Prompt    config.PromptConfig
	// TurnTimeout caps each turn, see TurnConfig.Timeout.
	TurnTimeout time.Duration
}

type Services struct {
	cfg        ServicesConfig
	completer  llm.Completer
	normalizer *conversation.Normalizer
}

// NewServices builds the completion client and the normalization pipeline
// shared by every turn.
func NewServices(cfg ServicesConfig) (*Services, error) {
	completer, err := llm.NewCompleter(llm.Config{
		Provider:    cfg.LLM.Provider,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating completer: %w", err)
	}

	extractor := extract.New(nil, extract.Config{
		MaxBodyBytes: cfg.Augment.MaxBodyBytes,
		MaxChars:     cfg.Augment.MaxContentChars,
	})
	augmenter := conversation.NewAugmenter(extractor, conversation.AugmenterConfig{
		PerURLTimeout: cfg.Augment.PerURLTimeout,
		Budget:        cfg.Augment.Budget,
		Concurrency:   cfg.Augment.Concurrency,
	})

	return &Services{
		cfg:        cfg,
		completer:  completer,
		normalizer: conversation.NewNormalizer(cfg.Prompt.Preamble, augmenter),
	}, nil
}

func (s *Services) Turns() TurnService {
	return NewTurnService(s.cfg.Transport, s.normalizer, s.completer, s.cfg.Stores.Turns(), s.turnConfig())
}

// MaxTurnDuration is the longest a single Dispatch can take, reporting
// included. The worker's reclaimer must wait at least this long.
func (s *Services) MaxTurnDuration() time.Duration {
	return s.turnConfig().MaxDuration()
}

func (s *Services) turnConfig() TurnConfig {
	return TurnConfig{
		Bot:     s.cfg.Bot,
		AckText: s.cfg.Prompt.AckText,
		Timeout: s.cfg.TurnTimeout,
	}
}

func (s *Services) Model() string {
	return s.completer.Model()
}
