package worker

import (
	"context"

	"github.com/oarmstrong95/slack-bot/internal/model"
	"github.com/oarmstrong95/slack-bot/internal/queue"
)

// Consumer abstracts the message queue for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}

// Dispatcher runs one turn. Mirrors service.TurnService.Dispatch.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev model.MentionEvent) error
}

// MessageHandler processes a single stream message; the reclaimer reuses the worker's.
type MessageHandler func(ctx context.Context, msg queue.Message) error
