package service_test

import (
	"context"
	"sync"

	"github.com/oarmstrong95/slack-bot/common/llm"
	"github.com/oarmstrong95/slack-bot/internal/model"
)

type postedMessage struct {
	ChannelID string
	ThreadTS  string
	Text      string
}

type updatedMessage struct {
	ChannelID string
	TS        string
	Text      string
}

type mockTransport struct {
	mu sync.Mutex

	getThreadFn     func(ctx context.Context, channelID, threadTS string) ([]model.RawThreadMessage, error)
	postMessageFn   func(ctx context.Context, channelID, threadTS, text string) (string, error)
	updateMessageFn func(ctx context.Context, channelID, ts, text string) error

	threadFetches int
	posted        []postedMessage
	updated       []updatedMessage
}

func (m *mockTransport) GetThread(ctx context.Context, channelID, threadTS string) ([]model.RawThreadMessage, error) {
	m.mu.Lock()
	m.threadFetches++
	m.mu.Unlock()
	if m.getThreadFn != nil {
		return m.getThreadFn(ctx, channelID, threadTS)
	}
	return nil, nil
}

func (m *mockTransport) PostMessage(ctx context.Context, channelID, threadTS, text string) (string, error) {
	m.mu.Lock()
	m.posted = append(m.posted, postedMessage{ChannelID: channelID, ThreadTS: threadTS, Text: text})
	m.mu.Unlock()
	if m.postMessageFn != nil {
		return m.postMessageFn(ctx, channelID, threadTS, text)
	}
	return "9.0", nil
}

func (m *mockTransport) UpdateMessage(ctx context.Context, channelID, ts, text string) error {
	m.mu.Lock()
	m.updated = append(m.updated, updatedMessage{ChannelID: channelID, TS: ts, Text: text})
	m.mu.Unlock()
	if m.updateMessageFn != nil {
		return m.updateMessageFn(ctx, channelID, ts, text)
	}
	return nil
}

type mockCompleter struct {
	completeFn func(ctx context.Context, messages []llm.Message) (*llm.Completion, error)
	calls      [][]llm.Message
}

func (m *mockCompleter) Complete(ctx context.Context, messages []llm.Message) (*llm.Completion, error) {
	m.calls = append(m.calls, messages)
	if m.completeFn != nil {
		return m.completeFn(ctx, messages)
	}
	return &llm.Completion{Content: "42", FinishReason: "stop", PromptTokens: 10, CompletionTokens: 1}, nil
}

func (m *mockCompleter) Model() string {
	return "test-model"
}

type mockTurnRecorder struct {
	recordFn func(ctx context.Context, turn model.Turn) error
	turns    []model.Turn
}

func (m *mockTurnRecorder) Record(ctx context.Context, turn model.Turn) error {
	m.turns = append(m.turns, turn)
	if m.recordFn != nil {
		return m.recordFn(ctx, turn)
	}
	return nil
}
