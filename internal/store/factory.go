package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/oarmstrong95/slack-bot/core/db"
)

type Stores struct {
	db *db.DB
}

// NewStores wraps the database handle. A nil handle disables the audit log.
func NewStores(database *db.DB) *Stores {
	return &Stores{db: database}
}

func (s *Stores) Turns() TurnStore {
	if s.db == nil {
		return discardTurnStore{}
	}
	return newTurnStore(s.db.Pool())
}

// Migrate applies the audit schema in one transaction. No-op without a database.
func (s *Stores) Migrate(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		return Migrate(ctx, tx)
	})
}
