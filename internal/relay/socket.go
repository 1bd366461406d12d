package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/oarmstrong95/slack-bot/common/logger"
	"github.com/oarmstrong95/slack-bot/internal/metrics"
	"github.com/oarmstrong95/slack-bot/internal/model"
	"github.com/oarmstrong95/slack-bot/internal/slack"
	"github.com/oarmstrong95/slack-bot/internal/store"
)

// Dispatcher runs one turn. Mirrors service.TurnService.Dispatch.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev model.MentionEvent) error
}

// SocketRelay receives events over a Socket Mode connection and runs each turn
// in its own goroutine, without the Redis queue.
type SocketRelay struct {
	client     *socketmode.Client
	filter     slack.EventFilter
	deduper    store.EventDeduper
	dispatcher Dispatcher

	inflight sync.WaitGroup
}

func NewSocketRelay(client *socketmode.Client, filter slack.EventFilter, deduper store.EventDeduper, dispatcher Dispatcher) *SocketRelay {
	return &SocketRelay{
		client:     client,
		filter:     filter,
		deduper:    deduper,
		dispatcher: dispatcher,
	}
}

// Run holds the socket open until ctx is cancelled. Turns already started keep
// running; call Wait to drain them.
func (r *SocketRelay) Run(ctx context.Context) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "relay.socket",
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.client.RunContext(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("socket mode connection: %w", err)
			}
			return nil
		case evt, ok := <-r.client.Events:
			if !ok {
				return nil
			}
			r.handleSocketEvent(ctx, evt)
		}
	}
}

// Wait blocks until every dispatched turn has finished.
func (r *SocketRelay) Wait() {
	r.inflight.Wait()
}

func (r *SocketRelay) handleSocketEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		slog.InfoContext(ctx, "socketmode: connecting")
	case socketmode.EventTypeConnected:
		slog.InfoContext(ctx, "socketmode: connected")
	case socketmode.EventTypeConnectionError:
		slog.ErrorContext(ctx, "socketmode: connection error", "error", evt.Data)
	case socketmode.EventTypeEventsAPI:
		e, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if evt.Request != nil {
			// Ack first: Slack redelivers anything not acked within 3 seconds.
			r.client.Ack(*evt.Request)
			if evt.Request.RetryAttempt > 0 {
				slog.InfoContext(ctx, "received retried event",
					"envelope_id", evt.Request.EnvelopeID,
					"retry_attempt", evt.Request.RetryAttempt,
					"retry_reason", evt.Request.RetryReason)
			}
		}
		r.HandleEvent(ctx, e)
	}
}

// HandleEvent filters and de-duplicates e, then dispatches its turn in a new
// goroutine. Reports whether a turn was started.
func (r *SocketRelay) HandleEvent(ctx context.Context, e slackevents.EventsAPIEvent) bool {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		EventID: logger.Ptr(slack.EventID(e)),
	})

	ev, reason := r.filter.ToMentionEvent(e)
	if reason != slack.SkipNone {
		slog.DebugContext(ctx, "ignoring slack event", "reason", reason, "inner_type", e.InnerEvent.Type)
		metrics.EventsDropped.WithLabelValues(string(reason)).Inc()
		return false
	}

	if err := r.deduper.Claim(ctx, ev.Key()); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			slog.InfoContext(ctx, "duplicate slack event", "message_ts", ev.MessageTS)
			metrics.EventsDropped.WithLabelValues("duplicate").Inc()
			return false
		}
		// Without the claim store a duplicate reply is better than none.
		slog.WarnContext(ctx, "failed to claim slack event, dispatching anyway", "error", err)
	}

	metrics.EventsReceived.WithLabelValues(string(ev.Kind), metrics.TransportSocket).Inc()

	// The turn outlives the socket so shutdown can drain it.
	turnCtx := context.WithoutCancel(ctx)
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		r.dispatch(turnCtx, ev)
	}()
	return true
}

func (r *SocketRelay) dispatch(ctx context.Context, ev model.MentionEvent) {
	span := logger.StartSpan(ctx, "relay.socket_event")
	defer span.End()
	ctx = span.Context()

	// Turn panics are reported in the thread by Dispatch; this only catches a
	// panic in Dispatch's own bookkeeping, which has no placeholder to fix.
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("panic: %v", rec)
			span.RecordError(err)
			slog.ErrorContext(ctx, "panic recovered in turn", "panic", rec)
		}
	}()

	if err := r.dispatcher.Dispatch(ctx, ev); err != nil {
		span.RecordError(err)
		slog.ErrorContext(ctx, "turn failure could not be reported", "error", err)
	}
}
