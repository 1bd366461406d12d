package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/oarmstrong95/slack-bot/common/logger"
	"github.com/oarmstrong95/slack-bot/internal/metrics"
	"github.com/oarmstrong95/slack-bot/internal/queue"
)

type Config struct {
	MaxAttempts int
}

// errUnreported marks a turn whose failure could not be shown in Slack.
// Such turns go straight to the DLQ; retrying would post a second placeholder.
var errUnreported = errors.New("turn failure not reported")

type Worker struct {
	consumer   Consumer
	dispatcher Dispatcher
	cfg        Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer Consumer, dispatcher Dispatcher, cfg Config) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Worker{
		consumer:   consumer,
		dispatcher: dispatcher,
		cfg:        cfg,
		stopCh:     make(chan struct{}),
		stoppedCh:  make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "relay.worker",
	})
	slog.InfoContext(ctx, "worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				// Brief backoff on error
				select {
				case <-ctx.Done():
				case <-w.stopCh:
				case <-time.After(time.Second):
				}
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		if err := w.ProcessMessage(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "message processing failed",
				"error", err,
				"message_id", msg.ID,
				"event_id", msg.Event.EventID)
		}
	}

	return nil
}

// ProcessMessage runs the turn for msg and settles it on the stream.
// Exported so it can be reused by the reclaimer.
func (w *Worker) ProcessMessage(ctx context.Context, msg queue.Message) error {
	ev := msg.Event
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		MessageID: logger.Ptr(msg.ID),
		EventID:   logger.Ptr(ev.EventID),
		ChannelID: logger.Ptr(ev.ChannelID),
		EventKind: logger.Ptr(string(ev.Kind)),
	})

	span := logger.StartSpanFromTraceID(ctx, ev.TraceID, "worker.process_message")
	defer span.End()
	ctx = span.Context()
	span.SetAttributes(
		attribute.String("slack.channel_id", ev.ChannelID),
		attribute.String("slack.message_ts", ev.MessageTS),
		attribute.Int("queue.attempt", msg.Attempt),
	)

	slog.InfoContext(ctx, "processing message", "attempt", msg.Attempt)

	if err := w.dispatchSafe(ctx, msg); err != nil {
		span.RecordError(err)
		w.handleFailedMessage(ctx, msg, err)
		return err
	}

	if err := w.consumer.Ack(ctx, msg); err != nil {
		// Log but don't fail: the reclaimer will redeliver and ingress dedup
		// has already let this event through once.
		slog.WarnContext(ctx, "failed to ACK message", "error", err)
		return nil
	}
	metrics.QueueMessages.WithLabelValues("acked").Inc()
	return nil
}

func (w *Worker) dispatchSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in message processing", "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if err := w.dispatcher.Dispatch(ctx, msg.Event); err != nil {
		return fmt.Errorf("%w: %w", errUnreported, err)
	}
	return nil
}

func (w *Worker) handleFailedMessage(ctx context.Context, msg queue.Message, err error) {
	if errors.Is(err, errUnreported) || msg.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "sending message to DLQ",
			"attempts", msg.Attempt,
			"error", err)
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
			return
		}
		metrics.QueueMessages.WithLabelValues("dlq").Inc()
		return
	}

	slog.WarnContext(ctx, "requeuing failed message", "attempt", msg.Attempt)
	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue message", "error", requeueErr)
		return
	}
	metrics.QueueMessages.WithLabelValues("requeued").Inc()
}
