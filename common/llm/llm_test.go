package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/oarmstrong95/slack-bot/common/llm"
)

type capturedRequest struct {
	Path string
	Body map[string]any
}

func fakeProvider(status int, response string, captured *capturedRequest) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		captured.Path = r.URL.Path
		_ = json.Unmarshal(raw, &captured.Body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
}

var conversation = []llm.Message{
	{Role: llm.RoleSystem, Content: "You are an AI assistant."},
	{Role: llm.RoleUser, Content: "what is go?"},
	{Role: llm.RoleAssistant, Content: "a language"},
	{Role: llm.RoleUser, Content: "who made it?"},
}

var noRetries = 0

var _ = Describe("NewCompleter", func() {
	It("requires an API key", func() {
		_, err := llm.NewCompleter(llm.Config{Provider: llm.ProviderOpenAI})
		Expect(err).To(MatchError(ContainSubstring("API key is required")))
	})

	It("rejects unknown providers", func() {
		_, err := llm.NewCompleter(llm.Config{Provider: "cohere", APIKey: "k"})
		Expect(err).To(MatchError(ContainSubstring("unsupported LLM provider")))
	})

	It("applies provider default models", func() {
		c, err := llm.NewCompleter(llm.Config{APIKey: "k"})
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Model()).To(Equal("gpt-4o-mini"))

		c, err = llm.NewCompleter(llm.Config{Provider: llm.ProviderAnthropic, APIKey: "k", Model: "claude-x"})
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Model()).To(Equal("claude-x"))
	})
})

var _ = Describe("OpenAI completer", func() {
	var (
		captured capturedRequest
		server   *httptest.Server
	)

	AfterEach(func() {
		server.Close()
	})

	It("sends the conversation in order and returns the reply", func() {
		server = fakeProvider(http.StatusOK, `{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Google"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 1, "total_tokens": 13}
		}`, &captured)

		c, err := llm.NewCompleter(llm.Config{APIKey: "k", BaseURL: server.URL + "/v1/", Temperature: llm.Temp(0), MaxRetries: &noRetries})
		Expect(err).NotTo(HaveOccurred())

		got, err := c.Complete(context.Background(), conversation)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Content).To(Equal("Google"))
		Expect(got.FinishReason).To(Equal("stop"))
		Expect(got.PromptTokens).To(Equal(12))

		Expect(captured.Path).To(Equal("/v1/chat/completions"))
		msgs := captured.Body["messages"].([]any)
		Expect(msgs).To(HaveLen(4))
		Expect(msgs[0].(map[string]any)["role"]).To(Equal("system"))
		Expect(msgs[2].(map[string]any)["role"]).To(Equal("assistant"))
		Expect(captured.Body["temperature"]).To(BeNumerically("==", 0))
	})

	It("treats an empty reply as an error", func() {
		server = fakeProvider(http.StatusOK, `{
			"id": "chatcmpl-2", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
			"choices": [], "usage": {"prompt_tokens": 1, "completion_tokens": 0, "total_tokens": 1}
		}`, &captured)

		c, _ := llm.NewCompleter(llm.Config{APIKey: "k", BaseURL: server.URL + "/v1/", MaxRetries: &noRetries})
		_, err := c.Complete(context.Background(), conversation)
		Expect(errors.Is(err, llm.ErrEmptyCompletion)).To(BeTrue())
		Expect(llm.IsRetryable(context.Background(), err)).To(BeFalse())
	})

	It("classifies provider errors by status", func() {
		server = fakeProvider(http.StatusTooManyRequests, `{"error": {"message": "slow down", "type": "rate_limit"}}`, &captured)

		c, _ := llm.NewCompleter(llm.Config{APIKey: "k", BaseURL: server.URL + "/v1/", MaxRetries: &noRetries})
		_, err := c.Complete(context.Background(), conversation)
		Expect(err).To(HaveOccurred())
		Expect(llm.IsRetryable(context.Background(), err)).To(BeTrue())
	})
})

var _ = Describe("Anthropic completer", func() {
	var (
		captured capturedRequest
		server   *httptest.Server
	)

	AfterEach(func() {
		server.Close()
	})

	It("lifts the system prompt and merges same-role turns", func() {
		server = fakeProvider(http.StatusOK, `{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-x",
			"content": [{"type": "text", "text": "Rob Pike"}, {"type": "text", "text": " et al."}],
			"stop_reason": "end_turn", "usage": {"input_tokens": 20, "output_tokens": 4}
		}`, &captured)

		c, err := llm.NewCompleter(llm.Config{Provider: llm.ProviderAnthropic, APIKey: "k", BaseURL: server.URL, MaxRetries: &noRetries})
		Expect(err).NotTo(HaveOccurred())

		got, err := c.Complete(context.Background(), []llm.Message{
			{Role: llm.RoleSystem, Content: "preamble"},
			{Role: llm.RoleUser, Content: "first"},
			{Role: llm.RoleUser, Content: "second"},
			{Role: llm.RoleAssistant, Content: ""},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Content).To(Equal("Rob Pike et al."))
		Expect(got.FinishReason).To(Equal("stop"))
		Expect(got.CompletionTokens).To(Equal(4))

		Expect(captured.Path).To(Equal("/v1/messages"))
		system := captured.Body["system"].([]any)
		Expect(system[0].(map[string]any)["text"]).To(Equal("preamble"))

		msgs := captured.Body["messages"].([]any)
		Expect(msgs).To(HaveLen(1))
		content := msgs[0].(map[string]any)["content"].([]any)
		Expect(content[0].(map[string]any)["text"]).To(Equal("first\n\nsecond"))
	})

	It("does not retry client errors", func() {
		server = fakeProvider(http.StatusBadRequest, `{"type": "error", "error": {"type": "invalid_request_error", "message": "bad"}}`, &captured)

		c, _ := llm.NewCompleter(llm.Config{Provider: llm.ProviderAnthropic, APIKey: "k", BaseURL: server.URL, MaxRetries: &noRetries})
		_, err := c.Complete(context.Background(), conversation)
		Expect(err).To(HaveOccurred())
		Expect(llm.IsRetryable(context.Background(), err)).To(BeFalse())
	})
})

var _ = Describe("IsRetryable", func() {
	It("never retries a cancelled context", func() {
		Expect(llm.IsRetryable(context.Background(), context.Canceled)).To(BeFalse())
	})

	It("retries plain network failures", func() {
		Expect(llm.IsRetryable(context.Background(), errors.New("connection reset"))).To(BeTrue())
	})

	It("is false for nil", func() {
		Expect(llm.IsRetryable(context.Background(), nil)).To(BeFalse())
	})
})
