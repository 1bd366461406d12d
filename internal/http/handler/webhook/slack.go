package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	slackgo "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/oarmstrong95/slack-bot/common/logger"
	"github.com/oarmstrong95/slack-bot/internal/metrics"
	"github.com/oarmstrong95/slack-bot/internal/model"
	"github.com/oarmstrong95/slack-bot/internal/slack"
	"github.com/oarmstrong95/slack-bot/internal/store"
)

// Slack caps Events API payloads well below this.
const maxBodyBytes = 1 << 20

// EventEnqueuer hands accepted events to the worker pool. queue.Producer satisfies it.
type EventEnqueuer interface {
	Enqueue(ctx context.Context, ev model.MentionEvent) error
}

type SlackWebhookHandler struct {
	signingSecret string
	filter        slack.EventFilter
	deduper       store.EventDeduper
	enqueuer      EventEnqueuer
}

func NewSlackWebhookHandler(signingSecret string, filter slack.EventFilter, deduper store.EventDeduper, enqueuer EventEnqueuer) *SlackWebhookHandler {
	return &SlackWebhookHandler{
		signingSecret: signingSecret,
		filter:        filter,
		deduper:       deduper,
		enqueuer:      enqueuer,
	}
}

func (h *SlackWebhookHandler) HandleEvent(c *gin.Context) {
	ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{
		Component: "relay.http.webhook.slack",
	})

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	if err := h.verify(c.Request.Header, body); err != nil {
		slog.WarnContext(ctx, "rejected slack request", "error", err)
		metrics.EventsDropped.WithLabelValues("bad_signature").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	// The signature already authenticates the request; verification tokens are deprecated.
	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		slog.WarnContext(ctx, "failed to parse slack event", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	switch event.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid challenge"})
			return
		}
		slog.InfoContext(ctx, "answered url verification challenge")
		c.String(http.StatusOK, challenge.Challenge)

	case slackevents.CallbackEvent:
		h.handleCallback(ctx, c, event)

	default:
		slog.DebugContext(ctx, "ignoring slack envelope", "type", event.Type)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func (h *SlackWebhookHandler) verify(header http.Header, body []byte) error {
	sv, err := slackgo.NewSecretsVerifier(header, h.signingSecret)
	if err != nil {
		return err
	}
	if _, err := sv.Write(body); err != nil {
		return err
	}
	return sv.Ensure()
}

func (h *SlackWebhookHandler) handleCallback(ctx context.Context, c *gin.Context, event slackevents.EventsAPIEvent) {
	eventID := slack.EventID(event)
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		EventID: logger.Ptr(eventID),
	})

	ev, reason := h.filter.ToMentionEvent(event)
	if reason != slack.SkipNone {
		slog.DebugContext(ctx, "ignoring slack event",
			"reason", reason,
			"inner_type", event.InnerEvent.Type)
		metrics.EventsDropped.WithLabelValues(string(reason)).Inc()
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ChannelID: logger.Ptr(ev.ChannelID),
		EventKind: logger.Ptr(string(ev.Kind)),
	})

	if err := h.deduper.Claim(ctx, ev.Key()); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			slog.InfoContext(ctx, "duplicate slack event", "message_ts", ev.MessageTS)
			metrics.EventsDropped.WithLabelValues("duplicate").Inc()
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		slog.ErrorContext(ctx, "failed to claim slack event", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to accept event"})
		return
	}

	ev.TraceID = logger.TraceIDFromContext(ctx)

	if err := h.enqueuer.Enqueue(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue slack event", "error", err)
		// Let Slack's retry through.
		if releaseErr := h.deduper.Release(ctx, ev.Key()); releaseErr != nil {
			slog.WarnContext(ctx, "failed to release event claim", "error", releaseErr)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to accept event"})
		return
	}

	metrics.EventsReceived.WithLabelValues(string(ev.Kind), metrics.TransportHTTP).Inc()
	slog.InfoContext(ctx, "accepted slack event", "message_ts", ev.MessageTS)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
