package model_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/oarmstrong95/slack-bot/internal/model"
)

var _ = Describe("MentionEvent", func() {
	It("replies under the thread root when the trigger is a reply", func() {
		ev := model.MentionEvent{MessageTS: "2.0", ThreadTS: "1.0"}
		Expect(ev.ThreadRoot()).To(Equal("1.0"))
	})

	It("starts a thread on a top-level trigger", func() {
		ev := model.MentionEvent{MessageTS: "2.0"}
		Expect(ev.ThreadRoot()).To(Equal("2.0"))
	})
})

var _ = DescribeTable("Role.IsValid",
	func(r model.Role, valid bool) {
		Expect(r.IsValid()).To(Equal(valid))
	},
	Entry("system", model.RoleSystem, true),
	Entry("assistant", model.RoleAssistant, true),
	Entry("user", model.RoleUser, true),
	Entry("tool", model.Role("tool"), false),
)

var _ = Describe("MentionToken", func() {
	It("wraps the user id in Slack mention markup", func() {
		Expect(model.MentionToken("U123")).To(Equal("<@U123>"))
	})
})

var _ = Describe("MentionEvent.Key", func() {
	It("is stable across event ids for the same message", func() {
		a := model.MentionEvent{EventID: "Ev1", ChannelID: "C1", MessageTS: "1.0"}
		b := model.MentionEvent{EventID: "Ev2", ChannelID: "C1", MessageTS: "1.0"}
		Expect(a.Key()).To(Equal(b.Key()))
		Expect(a.Key()).To(Equal("C1:1.0"))
	})
})

var _ = DescribeTable("MentionEvent.FromSelf",
	func(ev model.MentionEvent, self bool) {
		bot := model.BotIdentity{UserID: "UBOT", BotID: "BBOT"}
		Expect(ev.FromSelf(bot)).To(Equal(self))
	},
	Entry("human", model.MentionEvent{SpeakerID: "U1"}, false),
	Entry("bot user id", model.MentionEvent{SpeakerID: "UBOT"}, true),
	Entry("bot id", model.MentionEvent{SpeakerID: "U2", SpeakerBotID: "BBOT"}, true),
	Entry("empty speaker", model.MentionEvent{}, true),
	Entry("another bot", model.MentionEvent{SpeakerID: "U3", SpeakerBotID: "BOTHER"}, false),
)
