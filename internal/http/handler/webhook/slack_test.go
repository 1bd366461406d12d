package webhook_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/oarmstrong95/slack-bot/internal/http/handler/webhook"
	"github.com/oarmstrong95/slack-bot/internal/model"
	"github.com/oarmstrong95/slack-bot/internal/slack"
	"github.com/oarmstrong95/slack-bot/internal/store"
)

const signingSecret = "8f742231b10e8888abcd99yyyzzz85a5"

type fakeDeduper struct {
	claimed  map[string]bool
	released []string
	err      error
}

func (f *fakeDeduper) Claim(_ context.Context, key string) error {
	if f.err != nil {
		return f.err
	}
	if f.claimed[key] {
		return store.ErrDuplicate
	}
	f.claimed[key] = true
	return nil
}

func (f *fakeDeduper) Release(_ context.Context, key string) error {
	delete(f.claimed, key)
	f.released = append(f.released, key)
	return nil
}

type fakeEnqueuer struct {
	events []model.MentionEvent
	err    error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, ev model.MentionEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func signedRequest(body string, secret string) *http.Request {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%s:%s", ts, body)

	req := httptest.NewRequest(http.MethodPost, "/slack/events", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Slack-Request-Timestamp", ts)
	req.Header.Set("X-Slack-Signature", "v0="+hex.EncodeToString(mac.Sum(nil)))
	return req
}

func callback(eventID, inner string) string {
	return fmt.Sprintf(`{"token":"t","team_id":"T1","api_app_id":"A1","type":"event_callback","event_id":%q,"event_time":1700000000,"event":%s}`, eventID, inner)
}

const mentionEvent = `{"type":"app_mention","user":"U1","text":"<@UBOT> summarise <https://go.dev>","ts":"1700000000.000100","channel":"C1","event_ts":"1700000000.000100"}`

var _ = Describe("SlackWebhookHandler", func() {
	var (
		deduper  *fakeDeduper
		enqueuer *fakeEnqueuer
		router   *gin.Engine
	)

	BeforeEach(func() {
		deduper = &fakeDeduper{claimed: map[string]bool{}}
		enqueuer = &fakeEnqueuer{}
		h := webhook.NewSlackWebhookHandler(signingSecret, slack.EventFilter{Bot: model.BotIdentity{UserID: "UBOT", BotID: "BBOT"}}, deduper, enqueuer)

		router = gin.New()
		router.POST("/slack/events", h.HandleEvent)
	})

	serve := func(req *http.Request) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	It("answers the url verification challenge", func() {
		w := serve(signedRequest(`{"token":"t","challenge":"3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P","type":"url_verification"}`, signingSecret))

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(Equal("3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P"))
	})

	It("rejects requests signed with another secret", func() {
		w := serve(signedRequest(callback("Ev1", mentionEvent), "wrong-secret"))

		Expect(w.Code).To(Equal(http.StatusUnauthorized))
		Expect(enqueuer.events).To(BeEmpty())
	})

	It("rejects unsigned requests", func() {
		req := httptest.NewRequest(http.MethodPost, "/slack/events", bytes.NewBufferString(callback("Ev1", mentionEvent)))
		w := serve(req)

		Expect(w.Code).To(Equal(http.StatusUnauthorized))
	})

	It("enqueues an app mention", func() {
		w := serve(signedRequest(callback("Ev1", mentionEvent), signingSecret))

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(enqueuer.events).To(HaveLen(1))
		ev := enqueuer.events[0]
		Expect(ev.EventID).To(Equal("Ev1"))
		Expect(ev.Kind).To(Equal(model.EventKindAppMention))
		Expect(ev.ChannelID).To(Equal("C1"))
		Expect(ev.MessageTS).To(Equal("1700000000.000100"))
		Expect(ev.Text).To(Equal("<@UBOT> summarise <https://go.dev>"))
		Expect(deduper.claimed).To(HaveKey("C1:1700000000.000100"))
	})

	It("drops a redelivered event", func() {
		Expect(serve(signedRequest(callback("Ev1", mentionEvent), signingSecret)).Code).To(Equal(http.StatusOK))
		Expect(serve(signedRequest(callback("Ev2", mentionEvent), signingSecret)).Code).To(Equal(http.StatusOK))

		Expect(enqueuer.events).To(HaveLen(1))
	})

	It("ignores the bot's own messages", func() {
		own := `{"type":"app_mention","user":"UBOT","text":"<@UBOT> echo","ts":"1.0","channel":"C1","event_ts":"1.0"}`
		w := serve(signedRequest(callback("Ev1", own), signingSecret))

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(enqueuer.events).To(BeEmpty())
		Expect(deduper.claimed).To(BeEmpty())
	})

	It("ignores top-level channel messages", func() {
		msg := `{"type":"message","user":"U1","text":"hello","ts":"1.0","channel":"C1","event_ts":"1.0","channel_type":"channel"}`
		w := serve(signedRequest(callback("Ev1", msg), signingSecret))

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(enqueuer.events).To(BeEmpty())
	})

	It("ignores unmentioned thread replies", func() {
		reply := `{"type":"message","user":"U2","text":"thanks!","ts":"2.0","thread_ts":"1.0","channel":"C1","event_ts":"2.0","channel_type":"channel"}`
		w := serve(signedRequest(callback("Ev1", reply), signingSecret))

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(enqueuer.events).To(BeEmpty())
		Expect(deduper.claimed).To(BeEmpty())
	})

	It("releases the claim when the enqueue fails", func() {
		enqueuer.err = errors.New("redis down")
		w := serve(signedRequest(callback("Ev1", mentionEvent), signingSecret))

		Expect(w.Code).To(Equal(http.StatusInternalServerError))
		Expect(deduper.released).To(ConsistOf("C1:1700000000.000100"))
		Expect(deduper.claimed).To(BeEmpty())
	})

	It("fails when the claim store is unavailable", func() {
		deduper.err = errors.New("redis down")
		w := serve(signedRequest(callback("Ev1", mentionEvent), signingSecret))

		Expect(w.Code).To(Equal(http.StatusInternalServerError))
		Expect(enqueuer.events).To(BeEmpty())
	})

	It("rejects signed garbage", func() {
		w := serve(signedRequest(`{not json`, signingSecret))
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})
})
