package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Handlers enrich the context once per turn; everything downstream logs with the
// turn, channel and thread attached without passing them around.
type LogFields struct {
	TurnID    *int64  // Snowflake id of the turn being handled
	EventID   *string // Slack event id (Ev...)
	ChannelID *string // Slack channel id
	ThreadTS  *string // Root timestamp of the thread
	MessageID *string // Redis stream message ID
	EventKind *string // "app_mention" or "thread_reply"
	Component string  // Component name, e.g. "relay.service.turn"
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.TurnID != nil {
		result.TurnID = new.TurnID
	}
	if new.EventID != nil {
		result.EventID = new.EventID
	}
	if new.ChannelID != nil {
		result.ChannelID = new.ChannelID
	}
	if new.ThreadTS != nil {
		result.ThreadTS = new.ThreadTS
	}
	if new.MessageID != nil {
		result.MessageID = new.MessageID
	}
	if new.EventKind != nil {
		result.EventKind = new.EventKind
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{TurnID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen bytes, appending "..." if truncated.
// Message text is never logged whole; use this for previews and error bodies.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
