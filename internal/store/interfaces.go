package store

import (
	"context"
	"errors"

	"github.com/oarmstrong95/slack-bot/internal/model"
)

// ErrDuplicate is returned when an event key was already claimed.
var ErrDuplicate = errors.New("duplicate event")

// EventDeduper claims event keys so each Slack message starts at most one turn,
// across retries and across replicas.
type EventDeduper interface {
	Claim(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

// TurnStore persists turn audit records.
type TurnStore interface {
	Record(ctx context.Context, turn model.Turn) error
}
