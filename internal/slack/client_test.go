package slack_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	slackgo "github.com/slack-go/slack"

	"github.com/oarmstrong95/slack-bot/internal/model"
	"github.com/oarmstrong95/slack-bot/internal/slack"
)

// fakeSlackAPI records calls per Web API method and answers from handlers.
type fakeSlackAPI struct {
	mu       sync.Mutex
	calls    map[string][]map[string]string
	handlers map[string]func(form map[string]string) any
}

func newFakeSlackAPI() *fakeSlackAPI {
	return &fakeSlackAPI{
		calls:    map[string][]map[string]string{},
		handlers: map[string]func(map[string]string) any{},
	}
}

func (f *fakeSlackAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	form := map[string]string{}
	for k := range r.Form {
		form[k] = r.Form.Get(k)
	}
	method := strings.TrimPrefix(r.URL.Path, "/")

	f.mu.Lock()
	f.calls[method] = append(f.calls[method], form)
	handler := f.handlers[method]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if handler == nil {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "unknown_method"})
		return
	}
	_ = json.NewEncoder(w).Encode(handler(form))
}

func (f *fakeSlackAPI) callsTo(method string) []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

var _ = Describe("Client", func() {
	var (
		ctx    context.Context
		api    *fakeSlackAPI
		server *httptest.Server
		client *slack.Client
	)

	BeforeEach(func() {
		ctx = context.Background()
		api = newFakeSlackAPI()
		server = httptest.NewServer(api)
		client = slack.NewFromConfig("xoxb-test", "", slackgo.OptionAPIURL(server.URL+"/"))
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("Identity", func() {
		It("resolves user and bot ids", func() {
			api.handlers["auth.test"] = func(map[string]string) any {
				return map[string]any{"ok": true, "user_id": "UBOT", "bot_id": "BBOT", "team": "acme"}
			}

			id, err := client.Identity(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal(model.BotIdentity{UserID: "UBOT", BotID: "BBOT"}))
		})

		It("fails on invalid auth", func() {
			api.handlers["auth.test"] = func(map[string]string) any {
				return map[string]any{"ok": false, "error": "invalid_auth"}
			}

			_, err := client.Identity(ctx)
			Expect(err).To(MatchError(ContainSubstring("invalid_auth")))
		})
	})

	Describe("GetThread", func() {
		It("follows cursors and keeps order", func() {
			api.handlers["conversations.replies"] = func(form map[string]string) any {
				if form["cursor"] == "" {
					return map[string]any{
						"ok": true,
						"messages": []map[string]any{
							{"user": "U1", "text": "<@UBOT> hi", "ts": "1.0"},
							{"bot_id": "BBOT", "text": "hello", "ts": "2.0"},
						},
						"has_more":          true,
						"response_metadata": map[string]any{"next_cursor": "page2"},
					}
				}
				return map[string]any{
					"ok":       true,
					"messages": []map[string]any{{"user": "U2", "text": "thanks", "ts": "3.0"}},
					"has_more": false,
				}
			}

			thread, err := client.GetThread(ctx, "C1", "1.0")
			Expect(err).NotTo(HaveOccurred())
			Expect(thread).To(Equal([]model.RawThreadMessage{
				{SpeakerID: "U1", Text: "<@UBOT> hi", Timestamp: "1.0"},
				{SpeakerID: "BBOT", Text: "hello", Timestamp: "2.0"},
				{SpeakerID: "U2", Text: "thanks", Timestamp: "3.0"},
			}))

			calls := api.callsTo("conversations.replies")
			Expect(calls).To(HaveLen(2))
			Expect(calls[0]["channel"]).To(Equal("C1"))
			Expect(calls[0]["ts"]).To(Equal("1.0"))
			Expect(calls[0]["inclusive"]).To(BeElementOf("1", "true"))
			Expect(calls[1]["cursor"]).To(Equal("page2"))
		})

		It("returns API errors", func() {
			api.handlers["conversations.replies"] = func(map[string]string) any {
				return map[string]any{"ok": false, "error": "thread_not_found"}
			}

			_, err := client.GetThread(ctx, "C1", "1.0")
			Expect(err).To(MatchError(ContainSubstring("thread_not_found")))
		})
	})

	Describe("PostMessage and UpdateMessage", func() {
		It("posts into the thread and returns the new ts", func() {
			api.handlers["chat.postMessage"] = func(form map[string]string) any {
				return map[string]any{"ok": true, "channel": form["channel"], "ts": "9.0"}
			}

			ts, err := client.PostMessage(ctx, "C1", "1.0", "Got your request. Please wait.")
			Expect(err).NotTo(HaveOccurred())
			Expect(ts).To(Equal("9.0"))

			call := api.callsTo("chat.postMessage")[0]
			Expect(call["thread_ts"]).To(Equal("1.0"))
			Expect(call["text"]).To(Equal("Got your request. Please wait."))
		})

		It("updates the message in place", func() {
			api.handlers["chat.update"] = func(form map[string]string) any {
				return map[string]any{"ok": true, "channel": form["channel"], "ts": form["ts"], "text": form["text"]}
			}

			Expect(client.UpdateMessage(ctx, "C1", "9.0", "the answer")).To(Succeed())

			call := api.callsTo("chat.update")[0]
			Expect(call["ts"]).To(Equal("9.0"))
			Expect(call["text"]).To(Equal("the answer"))
		})
	})
})
