package logger

import (
	"bytes"
	"context"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/oarmstrong95/slack-bot/core/config"
)

var _ = Describe("LogFields", func() {
	It("returns empty fields for a bare context", func() {
		Expect(GetLogFields(context.Background())).To(Equal(LogFields{}))
	})

	It("merges newer non-empty values over older ones", func() {
		ctx := WithLogFields(context.Background(), LogFields{
			ChannelID: Ptr("C1"),
			Component: "relay.http",
		})
		ctx = WithLogFields(ctx, LogFields{
			TurnID:    Ptr(int64(42)),
			Component: "relay.service.turn",
		})

		fields := GetLogFields(ctx)
		Expect(*fields.ChannelID).To(Equal("C1"))
		Expect(*fields.TurnID).To(Equal(int64(42)))
		Expect(fields.Component).To(Equal("relay.service.turn"))
	})

	It("truncates long strings", func() {
		Expect(Truncate("abcdef", 3)).To(Equal("abc..."))
		Expect(Truncate("abc", 3)).To(Equal("abc"))
	})
})

var _ = Describe("TraceHandler", func() {
	It("adds context fields to every record", func() {
		var buf bytes.Buffer
		log := slog.New(newHandler(config.Config{Env: "test"}, &buf))

		ctx := WithLogFields(context.Background(), LogFields{
			EventID:   Ptr("Ev123"),
			ThreadTS:  Ptr("1700000000.000100"),
			Component: "relay.worker",
		})
		log.InfoContext(ctx, "turn handled")

		out := buf.String()
		Expect(out).To(ContainSubstring("event_id=Ev123"))
		Expect(out).To(ContainSubstring("thread_ts=1700000000.000100"))
		Expect(out).To(ContainSubstring("component=relay.worker"))
	})

	It("writes JSON in production without an OTLP endpoint", func() {
		var buf bytes.Buffer
		log := slog.New(newHandler(config.Config{Env: "production"}, &buf))

		log.InfoContext(WithLogFields(context.Background(), LogFields{TurnID: Ptr(int64(7))}), "done")

		Expect(buf.String()).To(ContainSubstring(`"turn_id":7`))
	})
})

var _ = Describe("StartSpanFromTraceID", func() {
	It("starts a fresh span when the id is malformed", func() {
		sc := StartSpanFromTraceID(context.Background(), "not-hex", "test.span")
		defer sc.End()
		Expect(sc.Context()).NotTo(BeNil())
	})

	It("reuses a valid propagated trace id", func() {
		const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
		sc := StartSpanFromTraceID(context.Background(), traceID, "test.span")
		defer sc.End()
		Expect(TraceIDFromContext(sc.Context())).To(Equal(traceID))
	})
})
