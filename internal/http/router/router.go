package router

import (
	"github.com/gin-gonic/gin"

	"github.com/oarmstrong95/slack-bot/internal/http/handler"
	"github.com/oarmstrong95/slack-bot/internal/http/handler/webhook"
)

type RouterConfig struct {
	SlackWebhook *webhook.SlackWebhookHandler
	Health       *handler.HealthHandler
}

func SetupRoutes(router *gin.Engine, cfg RouterConfig) {
	OpsRouter(router, cfg.Health)
	SlackRouter(router.Group("/slack"), cfg.SlackWebhook)
}
