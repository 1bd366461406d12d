package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/oarmstrong95/slack-bot/internal/model"
)

type Producer interface {
	Enqueue(ctx context.Context, ev model.MentionEvent) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, ev model.MentionEvent) error {
	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: eventValues(ev, 1),
	}).Err(); err != nil {
		return fmt.Errorf("enqueue event: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued slack event",
		"event_id", ev.EventID,
		"kind", ev.Kind,
		"channel_id", ev.ChannelID,
		"message_ts", ev.MessageTS)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
