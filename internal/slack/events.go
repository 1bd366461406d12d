package slack

import (
	"strings"

	"github.com/slack-go/slack/slackevents"

	"github.com/oarmstrong95/slack-bot/internal/model"
)

// SkipReason says why an inbound event does not start a turn.
type SkipReason string

const (
	SkipNone        SkipReason = ""
	SkipSelf        SkipReason = "self"
	SkipUnsupported SkipReason = "unsupported"
)

// EventID returns the Events API envelope id (Ev...), or "" for non-callback events.
func EventID(e slackevents.EventsAPIEvent) string {
	if cb, ok := e.Data.(*slackevents.EventsAPICallbackEvent); ok {
		return cb.EventID
	}
	return ""
}

// EventFilter decides which Events API callbacks start a turn.
type EventFilter struct {
	Bot model.BotIdentity
	// ReplyInThreads accepts unmentioned human replies as candidate turns.
	// When false only app_mention events are answered.
	ReplyInThreads bool
}

// ToMentionEvent converts e with the default filter: app mentions only.
func ToMentionEvent(e slackevents.EventsAPIEvent, bot model.BotIdentity) (model.MentionEvent, SkipReason) {
	return EventFilter{Bot: bot}.ToMentionEvent(e)
}

// ToMentionEvent converts an Events API callback into a MentionEvent.
//
// app_mention events are always accepted. With ReplyInThreads, plain message
// events are accepted as candidate thread replies: threaded, no subtype,
// human, and not mentioning the bot (those also arrive as app_mention).
// Whether the bot is part of the thread is decided later against the fetched
// thread.
func (f EventFilter) ToMentionEvent(e slackevents.EventsAPIEvent) (model.MentionEvent, SkipReason) {
	bot := f.Bot
	if e.Type != slackevents.CallbackEvent {
		return model.MentionEvent{}, SkipUnsupported
	}
	eventID := EventID(e)

	switch ev := e.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		out := model.MentionEvent{
			EventID:      eventID,
			Kind:         model.EventKindAppMention,
			ChannelID:    ev.Channel,
			MessageTS:    ev.TimeStamp,
			ThreadTS:     ev.ThreadTimeStamp,
			SpeakerID:    ev.User,
			SpeakerBotID: ev.BotID,
			Text:         ev.Text,
		}
		if out.FromSelf(bot) {
			return model.MentionEvent{}, SkipSelf
		}
		return out, SkipNone

	case *slackevents.MessageEvent:
		if ev.SubType != "" || ev.BotID != "" {
			if ev.BotID != "" && ev.BotID == bot.BotID {
				return model.MentionEvent{}, SkipSelf
			}
			return model.MentionEvent{}, SkipUnsupported
		}
		if ev.ThreadTimeStamp == "" || ev.ThreadTimeStamp == ev.TimeStamp {
			return model.MentionEvent{}, SkipUnsupported
		}
		if strings.Contains(ev.Text, model.MentionToken(bot.UserID)) {
			return model.MentionEvent{}, SkipUnsupported
		}

		out := model.MentionEvent{
			EventID:   eventID,
			Kind:      model.EventKindThreadReply,
			ChannelID: ev.Channel,
			MessageTS: ev.TimeStamp,
			ThreadTS:  ev.ThreadTimeStamp,
			SpeakerID: ev.User,
			Text:      ev.Text,
		}
		if out.FromSelf(bot) {
			return model.MentionEvent{}, SkipSelf
		}
		if !f.ReplyInThreads {
			return model.MentionEvent{}, SkipUnsupported
		}
		return out, SkipNone
	}

	return model.MentionEvent{}, SkipUnsupported
}
