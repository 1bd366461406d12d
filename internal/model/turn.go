package model

import "time"

type TurnStatus string

const (
	TurnStatusOK      TurnStatus = "ok"
	TurnStatusFailed  TurnStatus = "failed"
	TurnStatusSkipped TurnStatus = "skipped"
)

// Turn is the audit record of one handled event. It never carries message text.
type Turn struct {
	ID               int64
	EventID          string
	ChannelID        string
	ThreadTS         string
	TriggerTS        string
	ReplyTS          string
	Status           TurnStatus
	ErrorKind        string
	Model            string
	PromptTokens     int
	CompletionTokens int
	URLCount         int
	Latency          time.Duration
	CreatedAt        time.Time
}
