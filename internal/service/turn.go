package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/oarmstrong95/slack-bot/common/id"
	"github.com/oarmstrong95/slack-bot/common/llm"
	"github.com/oarmstrong95/slack-bot/common/logger"
	"github.com/oarmstrong95/slack-bot/internal/conversation"
	"github.com/oarmstrong95/slack-bot/internal/metrics"
	"github.com/oarmstrong95/slack-bot/internal/model"
)

// Transport is the slice of the Slack Web API a turn needs.
type Transport interface {
	GetThread(ctx context.Context, channelID, threadTS string) ([]model.RawThreadMessage, error)
	PostMessage(ctx context.Context, channelID, threadTS, text string) (string, error)
	MessageUpdater
}

// TurnRecorder persists the audit record of a turn.
type TurnRecorder interface {
	Record(ctx context.Context, turn model.Turn) error
}

type ErrorKind string

const (
	ErrorKindTransport  ErrorKind = "transport"
	ErrorKindCompletion ErrorKind = "completion"
	ErrorKindInternal   ErrorKind = "internal"
)

var (
	// ErrSelfMessage means the event came from the bot itself and was skipped.
	ErrSelfMessage = errors.New("event posted by the bot itself")
	// ErrNotEngaged means a thread reply arrived in a thread the bot never spoke in.
	ErrNotEngaged = errors.New("bot is not part of the thread")
)

// TurnError is a failed turn. ReplyTS is the placeholder to overwrite with the
// error, empty if it was never posted.
type TurnError struct {
	Kind    ErrorKind
	Detail  string
	ReplyTS string
	Err     error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *TurnError) Unwrap() error {
	return e.Err
}

func newTurnError(kind ErrorKind, replyTS string, err error) *TurnError {
	return &TurnError{Kind: kind, Detail: err.Error(), ReplyTS: replyTS, Err: err}
}

// Reply is the outcome of a successful turn.
type Reply struct {
	TS               string
	Model            string
	PromptTokens     int
	CompletionTokens int
	URLs             int
}

type TurnService interface {
	// Handle runs one turn. Skips return ErrSelfMessage or ErrNotEngaged;
	// any other error is a *TurnError.
	Handle(ctx context.Context, ev model.MentionEvent) (*Reply, error)
	// Dispatch runs Handle and surfaces failures in the thread. It returns an
	// error only when the user could not be told about a failure.
	Dispatch(ctx context.Context, ev model.MentionEvent) error
}

// reportTimeout bounds the failure report and audit write that follow a turn.
const reportTimeout = 30 * time.Second

type TurnConfig struct {
	Bot     model.BotIdentity
	AckText string
	// Timeout caps a whole turn, retries included. Zero means no cap.
	Timeout time.Duration
}

type turnService struct {
	transport  Transport
	replies    *ReplyUpdater
	normalizer *conversation.Normalizer
	completer  llm.Completer
	turns      TurnRecorder
	cfg        TurnConfig
}

func NewTurnService(
	transport Transport,
	normalizer *conversation.Normalizer,
	completer llm.Completer,
	turns TurnRecorder,
	cfg TurnConfig,
) TurnService {
	return &turnService{
		transport:  transport,
		replies:    NewReplyUpdater(transport),
		normalizer: normalizer,
		completer:  completer,
		turns:      turns,
		cfg:        cfg,
	}
}

// Handle converts a panic into an internal TurnError carrying the placeholder
// ts, so Dispatch can still overwrite the placeholder.
func (s *turnService) Handle(ctx context.Context, ev model.MentionEvent) (reply *Reply, err error) {
	var replyTS string
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "turn panicked",
				"panic", r,
				"stack", string(debug.Stack()))
			reply, err = nil, newTurnError(ErrorKindInternal, replyTS, fmt.Errorf("panic: %v", r))
		}
	}()
	return s.handle(ctx, ev, &replyTS)
}

func (s *turnService) handle(ctx context.Context, ev model.MentionEvent, placeholder *string) (*Reply, error) {
	if ev.FromSelf(s.cfg.Bot) {
		return nil, ErrSelfMessage
	}
	if ev.ChannelID == "" || ev.MessageTS == "" {
		return nil, newTurnError(ErrorKindInternal, "", fmt.Errorf("event %q has no channel or message ts", ev.EventID))
	}

	sc := logger.StartSpan(ctx, "turn.handle")
	defer sc.End()
	ctx = sc.Context()
	sc.SetAttributes(
		attribute.String("slack.channel_id", ev.ChannelID),
		attribute.String("slack.event_kind", string(ev.Kind)),
	)

	root := ev.ThreadRoot()

	var thread []model.RawThreadMessage
	if ev.Kind == model.EventKindThreadReply {
		var err error
		thread, err = s.transport.GetThread(ctx, ev.ChannelID, root)
		if err != nil {
			sc.RecordError(err)
			return nil, newTurnError(ErrorKindTransport, "", fmt.Errorf("fetching thread: %w", err))
		}
		if !s.participated(thread) {
			return nil, ErrNotEngaged
		}
	}

	replyTS, err := s.transport.PostMessage(ctx, ev.ChannelID, root, s.cfg.AckText)
	if err != nil {
		sc.RecordError(err)
		return nil, newTurnError(ErrorKindTransport, "", fmt.Errorf("posting placeholder: %w", err))
	}
	*placeholder = replyTS

	if thread == nil {
		thread, err = s.transport.GetThread(ctx, ev.ChannelID, root)
		if err != nil {
			sc.RecordError(err)
			return nil, newTurnError(ErrorKindTransport, replyTS, fmt.Errorf("fetching thread: %w", err))
		}
	}
	thread = trimToTrigger(thread, ev)

	messages, stats := s.normalizer.Build(ctx, thread, s.cfg.Bot.UserID)
	slog.DebugContext(ctx, "conversation built",
		"thread_messages", len(thread),
		"context_messages", len(messages),
		"urls", stats.URLs)

	completion, err := s.completer.Complete(ctx, toLLMMessages(messages))
	if err != nil {
		sc.RecordError(err)
		return nil, newTurnError(ErrorKindCompletion, replyTS, err)
	}

	if err := s.replies.UpdateReply(ctx, ev.ChannelID, replyTS, completion.Content); err != nil {
		sc.RecordError(err)
		return nil, newTurnError(ErrorKindTransport, replyTS, fmt.Errorf("updating reply: %w", err))
	}

	return &Reply{
		TS:               replyTS,
		Model:            s.completer.Model(),
		PromptTokens:     completion.PromptTokens,
		CompletionTokens: completion.CompletionTokens,
		URLs:             stats.URLs,
	}, nil
}

func (s *turnService) Dispatch(ctx context.Context, ev model.MentionEvent) error {
	turnID := id.New()
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		TurnID:    logger.Ptr(turnID),
		EventID:   logger.Ptr(ev.EventID),
		ChannelID: logger.Ptr(ev.ChannelID),
		ThreadTS:  logger.Ptr(ev.ThreadRoot()),
		EventKind: logger.Ptr(string(ev.Kind)),
		Component: "relay.service.turn",
	})

	start := time.Now()
	reply, err := s.handleWithTimeout(ctx, ev)
	latency := time.Since(start)

	turn := model.Turn{
		ID:        turnID,
		EventID:   ev.EventID,
		ChannelID: ev.ChannelID,
		ThreadTS:  ev.ThreadRoot(),
		TriggerTS: ev.MessageTS,
		Latency:   latency,
		CreatedAt: start,
	}

	var result error
	switch {
	case err == nil:
		turn.Status = model.TurnStatusOK
		turn.ReplyTS = reply.TS
		turn.Model = reply.Model
		turn.PromptTokens = reply.PromptTokens
		turn.CompletionTokens = reply.CompletionTokens
		turn.URLCount = reply.URLs

		metrics.TurnDuration.Observe(latency.Seconds())
		metrics.CompletionTokens.WithLabelValues("prompt").Add(float64(reply.PromptTokens))
		metrics.CompletionTokens.WithLabelValues("completion").Add(float64(reply.CompletionTokens))
		slog.InfoContext(ctx, "turn completed",
			"model", reply.Model,
			"prompt_tokens", reply.PromptTokens,
			"completion_tokens", reply.CompletionTokens,
			"urls", reply.URLs,
			"duration_ms", latency.Milliseconds())

	case errors.Is(err, ErrSelfMessage), errors.Is(err, ErrNotEngaged):
		turn.Status = model.TurnStatusSkipped
		slog.DebugContext(ctx, "turn skipped", "reason", err)

	default:
		var turnErr *TurnError
		if !errors.As(err, &turnErr) {
			turnErr = newTurnError(ErrorKindInternal, "", err)
		}
		turn.Status = model.TurnStatusFailed
		turn.ErrorKind = string(turnErr.Kind)
		turn.ReplyTS = turnErr.ReplyTS

		slog.ErrorContext(ctx, "turn failed",
			"error_kind", turnErr.Kind,
			"error", turnErr.Err,
			"duration_ms", latency.Milliseconds())

		reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
		result = s.reportFailure(reportCtx, ev, turnErr)
		cancel()
	}

	metrics.TurnsTotal.WithLabelValues(string(turn.Status), turn.ErrorKind).Inc()
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()
	if err := s.turns.Record(recordCtx, turn); err != nil {
		slog.WarnContext(ctx, "failed to record turn", "error", err)
	}

	return result
}

// MaxDuration is the longest a Dispatch call can run when a turn timeout is
// set: the turn itself plus its failure report and audit write.
func (c TurnConfig) MaxDuration() time.Duration {
	if c.Timeout <= 0 {
		return 0
	}
	return c.Timeout + 2*reportTimeout
}

func (s *turnService) handleWithTimeout(ctx context.Context, ev model.MentionEvent) (*Reply, error) {
	if s.cfg.Timeout <= 0 {
		return s.Handle(ctx, ev)
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	reply, err := s.Handle(ctx, ev)
	var turnErr *TurnError
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && errors.As(err, &turnErr) {
		turnErr.Detail = fmt.Sprintf("turn timed out after %s", s.cfg.Timeout)
	}
	return reply, err
}

// ErrorMessage is the text shown in the thread when a turn fails.
func ErrorMessage(detail string) string {
	return "I can't provide a response. Encountered an error:\n`\n" + detail + "\n`"
}

func (s *turnService) reportFailure(ctx context.Context, ev model.MentionEvent, turnErr *TurnError) error {
	text := ErrorMessage(turnErr.Detail)

	var err error
	if turnErr.ReplyTS != "" {
		err = s.replies.UpdateReply(ctx, ev.ChannelID, turnErr.ReplyTS, text)
	} else {
		_, err = s.transport.PostMessage(ctx, ev.ChannelID, ev.ThreadRoot(), text)
	}
	if err != nil {
		slog.ErrorContext(ctx, "could not report turn failure to slack",
			"error", err,
			"turn_error", turnErr.Err)
		return fmt.Errorf("reporting %s failure: %w", turnErr.Kind, err)
	}
	return nil
}

func (s *turnService) participated(thread []model.RawThreadMessage) bool {
	for _, m := range thread {
		if m.SpeakerID == s.cfg.Bot.UserID || (s.cfg.Bot.BotID != "" && m.SpeakerID == s.cfg.Bot.BotID) {
			return true
		}
	}
	return false
}

// trimToTrigger drops messages newer than the trigger (our placeholder among
// them) and guarantees the trigger is the final element.
func trimToTrigger(thread []model.RawThreadMessage, ev model.MentionEvent) []model.RawThreadMessage {
	trimmed := make([]model.RawThreadMessage, 0, len(thread)+1)
	for _, m := range thread {
		if compareTS(m.Timestamp, ev.MessageTS) <= 0 {
			trimmed = append(trimmed, m)
		}
	}

	if n := len(trimmed); n == 0 || trimmed[n-1].Timestamp != ev.MessageTS {
		// Slack can lag behind the event; fall back to the event's own copy.
		trimmed = append(trimmed, model.RawThreadMessage{
			SpeakerID: ev.SpeakerID,
			Text:      ev.Text,
			Timestamp: ev.MessageTS,
		})
	}
	return trimmed
}

// compareTS orders Slack timestamps ("seconds.micros") numerically.
func compareTS(a, b string) int {
	as, af, _ := strings.Cut(a, ".")
	bs, bf, _ := strings.Cut(b, ".")
	if c := compareInt(as, bs); c != 0 {
		return c
	}
	return compareInt(af, bf)
}

func compareInt(a, b string) int {
	x, errA := strconv.ParseInt(a, 10, 64)
	y, errB := strconv.ParseInt(b, 10, 64)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func toLLMMessages(messages []model.ChatMessage) []llm.Message {
	out := make([]llm.Message, len(messages))
	for i, m := range messages {
		out[i] = llm.Message{Role: string(m.Role), Content: m.Content}
	}
	return out
}
