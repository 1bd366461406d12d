package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"github.com/oarmstrong95/slack-bot/internal/model"
)

type fakeRedis struct {
	keys map[string]time.Duration
	err  error
}

func (f *fakeRedis) SetNX(_ context.Context, key string, _ any, ttl time.Duration) *redis.BoolCmd {
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, ok := f.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	var n int64
	for _, key := range keys {
		if _, ok := f.keys[key]; ok {
			delete(f.keys, key)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

type fakeExecer struct {
	sql  []string
	args [][]any
	err  error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = append(f.sql, sql)
	f.args = append(f.args, args)
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

var _ = Describe("redisDeduper", func() {
	var (
		ctx    context.Context
		client *fakeRedis
		dedup  EventDeduper
	)

	BeforeEach(func() {
		ctx = context.Background()
		client = &fakeRedis{keys: map[string]time.Duration{}}
		dedup = NewRedisDeduper(client, 10*time.Minute)
	})

	It("claims a key once", func() {
		Expect(dedup.Claim(ctx, "C1:1.0")).To(Succeed())
		Expect(dedup.Claim(ctx, "C1:1.0")).To(MatchError(ErrDuplicate))
		Expect(dedup.Claim(ctx, "C1:2.0")).To(Succeed())
	})

	It("namespaces keys and applies the ttl", func() {
		Expect(dedup.Claim(ctx, "C1:1.0")).To(Succeed())
		Expect(client.keys).To(HaveKeyWithValue("slack_relay:event:C1:1.0", 10*time.Minute))
	})

	It("accepts a key again after release", func() {
		Expect(dedup.Claim(ctx, "C1:1.0")).To(Succeed())
		Expect(dedup.Release(ctx, "C1:1.0")).To(Succeed())
		Expect(client.keys).NotTo(HaveKey("slack_relay:event:C1:1.0"))
		Expect(dedup.Claim(ctx, "C1:1.0")).To(Succeed())
	})

	It("surfaces redis errors", func() {
		client.err = errors.New("connection refused")
		err := dedup.Claim(ctx, "C1:1.0")
		Expect(err).To(MatchError(ContainSubstring("connection refused")))
		Expect(errors.Is(err, ErrDuplicate)).To(BeFalse())
	})
})

var _ = Describe("turnStore", func() {
	It("inserts the audit columns in order", func() {
		db := &fakeExecer{}
		created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

		err := newTurnStore(db).Record(context.Background(), model.Turn{
			ID:               7,
			EventID:          "Ev1",
			ChannelID:        "C1",
			ThreadTS:         "1.0",
			TriggerTS:        "2.0",
			ReplyTS:          "3.0",
			Status:           model.TurnStatusOK,
			Model:            "gpt-4o-mini",
			PromptTokens:     100,
			CompletionTokens: 20,
			URLCount:         1,
			Latency:          1500 * time.Millisecond,
			CreatedAt:        created,
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(db.sql[0]).To(ContainSubstring("INSERT INTO slack_turns"))
		Expect(db.args[0]).To(Equal([]any{
			int64(7), "Ev1", "C1", "1.0", "2.0", "3.0", "ok", "",
			"gpt-4o-mini", 100, 20, 1, int64(1500), created,
		}))
	})

	It("wraps insert errors", func() {
		db := &fakeExecer{err: errors.New("relation does not exist")}
		err := newTurnStore(db).Record(context.Background(), model.Turn{ID: 1})
		Expect(err).To(MatchError(ContainSubstring("inserting turn 1")))
	})

	It("migrates the schema", func() {
		db := &fakeExecer{}
		Expect(Migrate(context.Background(), db)).To(Succeed())
		Expect(db.sql[0]).To(ContainSubstring("CREATE TABLE IF NOT EXISTS slack_turns"))
	})
})

var _ = Describe("Stores", func() {
	It("discards turns when no database is configured", func() {
		turns := NewStores(nil).Turns()
		Expect(turns.Record(context.Background(), model.Turn{ID: 1})).To(Succeed())
	})
})

var _ = Describe("Stores.Migrate", func() {
	It("is a no-op without a database", func() {
		Expect(NewStores(nil).Migrate(context.Background())).To(Succeed())
	})
})
