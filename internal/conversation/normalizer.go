package conversation

import (
	"context"

	"github.com/oarmstrong95/slack-bot/internal/model"
)

// Stats describes what Build did, for the turn audit log.
type Stats struct {
	URLs int // URL references augmented, duplicates included
}

// Normalizer turns a raw Slack thread into the message sequence sent to the model.
type Normalizer struct {
	preamble  string
	augmenter *Augmenter
}

func NewNormalizer(preamble string, augmenter *Augmenter) *Normalizer {
	return &Normalizer{preamble: preamble, augmenter: augmenter}
}

// Normalize converts the history of a thread, excluding its final message,
// which is always the trigger. The result starts with the system preamble and
// keeps thread order; messages the bot should not see are left out.
func (n *Normalizer) Normalize(ctx context.Context, thread []model.RawThreadMessage, botID string) []model.ChatMessage {
	ctx, cancel := n.withBudget(ctx)
	defer cancel()

	messages, _ := n.normalize(ctx, thread, botID)
	return messages
}

// Build is Normalize plus the trigger appended as the final user message.
// The trigger is dropped if nothing is left of it after cleaning. All URL
// fetches of the call share one augmentation budget.
func (n *Normalizer) Build(ctx context.Context, thread []model.RawThreadMessage, botID string) ([]model.ChatMessage, Stats) {
	ctx, cancel := n.withBudget(ctx)
	defer cancel()

	messages, stats := n.normalize(ctx, thread, botID)
	if len(thread) == 0 {
		return messages, stats
	}

	trigger := thread[len(thread)-1]
	text, urls := n.augment(ctx, trigger.Text)
	stats.URLs += urls

	if question := CleanQuestion(text, botID); question != "" {
		messages = append(messages, model.ChatMessage{Role: model.RoleUser, Content: question})
	}
	return messages, stats
}

func (n *Normalizer) normalize(ctx context.Context, thread []model.RawThreadMessage, botID string) ([]model.ChatMessage, Stats) {
	messages := []model.ChatMessage{{Role: model.RoleSystem, Content: n.preamble}}
	var stats Stats

	if len(thread) == 0 {
		return messages, stats
	}

	for _, msg := range thread[:len(thread)-1] {
		role := model.RoleUser
		if msg.SpeakerID == botID {
			role = model.RoleAssistant
		}

		text := msg.Text
		if role == model.RoleUser {
			var urls int
			text, urls = n.augment(ctx, text)
			stats.URLs += urls
		}

		content, ok := Clean(text, role, botID)
		if !ok || content == "" {
			continue
		}
		messages = append(messages, model.ChatMessage{Role: role, Content: content})
	}

	return messages, stats
}

func (n *Normalizer) withBudget(ctx context.Context) (context.Context, context.CancelFunc) {
	if n.augmenter == nil {
		return ctx, func() {}
	}
	return n.augmenter.WithBudget(ctx)
}

func (n *Normalizer) augment(ctx context.Context, text string) (string, int) {
	urls := ExtractURLs(text)
	if urls == nil || n.augmenter == nil {
		return text, 0
	}
	return n.augmenter.Augment(ctx, text, urls), len(urls)
}
