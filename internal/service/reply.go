package service

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"github.com/oarmstrong95/slack-bot/internal/slack"
)

type MessageUpdater interface {
	UpdateMessage(ctx context.Context, channelID, ts, text string) error
}

// ReplyUpdater overwrites the placeholder message with the final reply.
type ReplyUpdater struct {
	messages MessageUpdater
}

func NewReplyUpdater(messages MessageUpdater) *ReplyUpdater {
	return &ReplyUpdater{messages: messages}
}

// UpdateReply replaces the text of replyTS in a single chat.update call.
// Repeating it with the same text is harmless. Errors are returned as is.
func (r *ReplyUpdater) UpdateReply(ctx context.Context, channelID, replyTS, text string) error {
	if n := utf8.RuneCountInString(text); n > slack.MaxMessageChars {
		slog.WarnContext(ctx, "reply truncated to slack limit", "chars", n)
		text = string([]rune(text)[:slack.MaxMessageChars])
	}
	return r.messages.UpdateMessage(ctx, channelID, replyTS, text)
}
