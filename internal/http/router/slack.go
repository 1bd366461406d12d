package router

import (
	"github.com/gin-gonic/gin"

	"github.com/oarmstrong95/slack-bot/internal/http/handler/webhook"
)

func SlackRouter(router *gin.RouterGroup, handler *webhook.SlackWebhookHandler) {
	router.POST("/events", handler.HandleEvent)
}
