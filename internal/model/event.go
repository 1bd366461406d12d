package model

// EventKind says how a MentionEvent reached the bot.
type EventKind string

const (
	// EventKindAppMention is an app_mention event: the bot was @-mentioned.
	EventKindAppMention EventKind = "app_mention"
	// EventKindThreadReply is a plain message in a thread the bot may be part of.
	EventKindThreadReply EventKind = "thread_reply"
)

func (k EventKind) IsValid() bool {
	return k == EventKindAppMention || k == EventKindThreadReply
}

// MentionEvent is the transport-neutral form of an inbound Slack event.
// The webhook server serializes it onto the Redis stream; socket mode hands it
// straight to the turn service.
type MentionEvent struct {
	EventID      string
	Kind         EventKind
	ChannelID    string
	MessageTS    string // the triggering message
	ThreadTS     string // empty when the trigger is a top-level message
	SpeakerID    string
	SpeakerBotID string
	Text         string
	TraceID      string
}

// ThreadRoot is the ts replies are posted under.
func (e MentionEvent) ThreadRoot() string {
	if e.ThreadTS != "" {
		return e.ThreadTS
	}
	return e.MessageTS
}

// Key identifies the triggering message. Slack retries and the message /
// app_mention pair for one post share it.
func (e MentionEvent) Key() string {
	return e.ChannelID + ":" + e.MessageTS
}

// FromSelf reports whether the event was posted by the bot itself or by an
// unidentified speaker. Such events must never trigger a completion.
func (e MentionEvent) FromSelf(bot BotIdentity) bool {
	if e.SpeakerID == "" {
		return true
	}
	if bot.UserID != "" && e.SpeakerID == bot.UserID {
		return true
	}
	return bot.BotID != "" && e.SpeakerBotID == bot.BotID
}
