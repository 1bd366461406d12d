package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oarmstrong95/slack-bot/internal/http/handler"
)

// OpsRouter serves probes and the Prometheus scrape endpoint. The worker and
// socket relay run it alone on METRICS_ADDR.
func OpsRouter(router *gin.Engine, health *handler.HealthHandler) {
	router.GET("/health", health.Live)
	router.GET("/healthz", health.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
