package slack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	slackgo "github.com/slack-go/slack"

	"github.com/oarmstrong95/slack-bot/internal/model"
)

// MaxMessageChars is Slack's hard limit on message text.
const MaxMessageChars = 40000

const (
	repliesPageSize = 200
	maxRateRetries  = 3
)

// Client adapts the Slack Web API to the operations the bot needs.
type Client struct {
	api *slackgo.Client
}

func New(api *slackgo.Client) *Client {
	return &Client{api: api}
}

// NewFromConfig builds the underlying API client. appToken is only needed for
// socket mode and may be empty.
func NewFromConfig(botToken, appToken string, opts ...slackgo.Option) *Client {
	if appToken != "" {
		opts = append(opts, slackgo.OptionAppLevelToken(appToken))
	}
	return New(slackgo.New(botToken, opts...))
}

// API exposes the raw client for socket mode.
func (c *Client) API() *slackgo.Client {
	return c.api
}

// Identity resolves the bot's own ids via auth.test.
func (c *Client) Identity(ctx context.Context) (model.BotIdentity, error) {
	resp, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return model.BotIdentity{}, fmt.Errorf("auth test: %w", err)
	}
	if resp.UserID == "" {
		return model.BotIdentity{}, fmt.Errorf("auth test: empty user id")
	}

	slog.InfoContext(ctx, "slack identity resolved",
		"user_id", resp.UserID,
		"bot_id", resp.BotID,
		"team", resp.Team)

	return model.BotIdentity{UserID: resp.UserID, BotID: resp.BotID}, nil
}

// GetThread returns every message of the thread rooted at threadTS, oldest
// first, root included.
func (c *Client) GetThread(ctx context.Context, channelID, threadTS string) ([]model.RawThreadMessage, error) {
	params := &slackgo.GetConversationRepliesParameters{
		ChannelID: channelID,
		Timestamp: threadTS,
		Inclusive: true,
		Limit:     repliesPageSize,
	}

	var thread []model.RawThreadMessage
	for {
		var (
			msgs    []slackgo.Message
			hasMore bool
			cursor  string
		)
		err := withRateLimitRetry(ctx, func() error {
			var err error
			msgs, hasMore, cursor, err = c.api.GetConversationRepliesContext(ctx, params)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("conversations.replies: %w", err)
		}

		for _, m := range msgs {
			thread = append(thread, toRawMessage(m))
		}

		if !hasMore || cursor == "" {
			break
		}
		params.Cursor = cursor
	}

	slog.DebugContext(ctx, "thread fetched", "messages", len(thread))
	return thread, nil
}

// PostMessage posts text into the thread and returns the new message ts.
func (c *Client) PostMessage(ctx context.Context, channelID, threadTS, text string) (string, error) {
	var ts string
	err := withRateLimitRetry(ctx, func() error {
		var err error
		_, ts, err = c.api.PostMessageContext(ctx, channelID,
			slackgo.MsgOptionText(text, false),
			slackgo.MsgOptionTS(threadTS),
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("chat.postMessage: %w", err)
	}
	return ts, nil
}

// UpdateMessage replaces the text of an existing message.
func (c *Client) UpdateMessage(ctx context.Context, channelID, ts, text string) error {
	err := withRateLimitRetry(ctx, func() error {
		_, _, _, err := c.api.UpdateMessageContext(ctx, channelID, ts, slackgo.MsgOptionText(text, false))
		return err
	})
	if err != nil {
		return fmt.Errorf("chat.update: %w", err)
	}
	return nil
}

func toRawMessage(m slackgo.Message) model.RawThreadMessage {
	speaker := m.User
	if speaker == "" {
		speaker = m.BotID
	}
	return model.RawThreadMessage{
		SpeakerID: speaker,
		Text:      m.Text,
		Timestamp: m.Timestamp,
	}
}

// withRateLimitRetry retries fn when Slack answers 429, waiting as long as
// Slack asks. Other errors are returned immediately.
func withRateLimitRetry(ctx context.Context, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()

		var rateErr *slackgo.RateLimitedError
		if err == nil || !errors.As(err, &rateErr) || attempt >= maxRateRetries {
			return err
		}

		wait := rateErr.RetryAfter
		if wait <= 0 {
			wait = time.Second
		}
		slog.WarnContext(ctx, "slack rate limited, backing off", "retry_after", wait, "attempt", attempt+1)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
