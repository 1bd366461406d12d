package conversation

import (
	"strings"

	"github.com/oarmstrong95/slack-bot/internal/model"
)

// Clean strips mentions of the bot from text and reports whether the message
// belongs in the conversation sent to the model.
//
// Assistant messages are always eligible, even when they clean down to "".
// User messages are eligible only when they mention the bot; anything else is
// people talking to each other inside the thread.
func Clean(text string, role model.Role, botID string) (string, bool) {
	mention := model.MentionToken(botID)

	if role == model.RoleUser && !strings.Contains(text, mention) {
		return "", false
	}

	return strings.TrimSpace(strings.ReplaceAll(text, mention, "")), true
}

// CleanQuestion cleans the triggering message. The trigger is always
// addressed to the bot, either by mention or by replying in its thread.
func CleanQuestion(text, botID string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, model.MentionToken(botID), ""))
}
