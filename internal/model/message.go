package model

// Role is the author role of a ChatMessage sent to the completion provider.
type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleAssistant, RoleUser:
		return true
	}
	return false
}

// RawThreadMessage is one message of a Slack thread as the transport returns it.
// Text is raw Slack markup: mention tokens like <@U123> and angle-bracket URLs.
type RawThreadMessage struct {
	SpeakerID string // user id, or bot_id for bot posts without a user
	Text      string
	Timestamp string // Slack ts, e.g. "1700000000.000100"
}

// ChatMessage is a normalized, provider-agnostic conversation entry.
type ChatMessage struct {
	Role    Role
	Content string
}

// BotIdentity is resolved once at startup from auth.test.
type BotIdentity struct {
	UserID string // used for role assignment and mention detection
	BotID  string // only used by the self-message guard
}

// MentionToken is the Slack markup for a mention of the given user id.
func MentionToken(userID string) string {
	return "<@" + userID + ">"
}
