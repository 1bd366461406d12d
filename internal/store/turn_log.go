package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/oarmstrong95/slack-bot/internal/model"
)

// Schema is applied at startup; the table only grows by insert.
const Schema = `
CREATE TABLE IF NOT EXISTS slack_turns (
    id                BIGINT PRIMARY KEY,
    event_id          TEXT NOT NULL,
    channel_id        TEXT NOT NULL,
    thread_ts         TEXT NOT NULL,
    trigger_ts        TEXT NOT NULL,
    reply_ts          TEXT NOT NULL DEFAULT '',
    status            TEXT NOT NULL,
    error_kind        TEXT NOT NULL DEFAULT '',
    model             TEXT NOT NULL DEFAULT '',
    prompt_tokens     INTEGER NOT NULL DEFAULT 0,
    completion_tokens INTEGER NOT NULL DEFAULT 0,
    url_count         INTEGER NOT NULL DEFAULT 0,
    latency_ms        BIGINT NOT NULL,
    created_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS slack_turns_thread_idx ON slack_turns (channel_id, thread_ts);
`

const insertTurn = `
INSERT INTO slack_turns (
    id, event_id, channel_id, thread_ts, trigger_ts, reply_ts, status, error_kind,
    model, prompt_tokens, completion_tokens, url_count, latency_ms, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (id) DO NOTHING`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type turnStore struct {
	db execer
}

func newTurnStore(db execer) TurnStore {
	return &turnStore{db: db}
}

func (s *turnStore) Record(ctx context.Context, turn model.Turn) error {
	_, err := s.db.Exec(ctx, insertTurn,
		turn.ID,
		turn.EventID,
		turn.ChannelID,
		turn.ThreadTS,
		turn.TriggerTS,
		turn.ReplyTS,
		string(turn.Status),
		turn.ErrorKind,
		turn.Model,
		turn.PromptTokens,
		turn.CompletionTokens,
		turn.URLCount,
		turn.Latency.Milliseconds(),
		turn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting turn %d: %w", turn.ID, err)
	}
	return nil
}

// Migrate creates the turn table if it does not exist.
func Migrate(ctx context.Context, db execer) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("applying turn schema: %w", err)
	}
	return nil
}

type discardTurnStore struct{}

func (discardTurnStore) Record(ctx context.Context, turn model.Turn) error {
	slog.DebugContext(ctx, "turn audit log disabled, dropping record", "status", turn.Status)
	return nil
}
