package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/oarmstrong95/slack-bot/common/id"
	"github.com/oarmstrong95/slack-bot/common/logger"
	"github.com/oarmstrong95/slack-bot/common/otel"
	"github.com/oarmstrong95/slack-bot/core/config"
	"github.com/oarmstrong95/slack-bot/internal/http/handler"
	"github.com/oarmstrong95/slack-bot/internal/http/handler/webhook"
	"github.com/oarmstrong95/slack-bot/internal/http/middleware"
	httprouter "github.com/oarmstrong95/slack-bot/internal/http/router"
	"github.com/oarmstrong95/slack-bot/internal/queue"
	"github.com/oarmstrong95/slack-bot/internal/slack"
	"github.com/oarmstrong95/slack-bot/internal/store"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "slack relay server starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	slackClient := slack.NewFromConfig(cfg.Slack.BotToken, "")
	bot, err := slackClient.Identity(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to resolve bot identity", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "slack identity resolved", "user_id", bot.UserID, "bot_id", bot.BotID)

	redisOpts, err := redis.ParseURL(cfg.Pipeline.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Pipeline.RedisStream)

	// Closes redisClient.
	eventProducer := queue.NewRedisProducer(redisClient, cfg.Pipeline.RedisStream, nil)
	defer eventProducer.Close()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, httprouter.RouterConfig{
		SlackWebhook: webhook.NewSlackWebhookHandler(
			cfg.Slack.SigningSecret,
			slack.EventFilter{Bot: bot, ReplyInThreads: cfg.Slack.ReplyInThreads},
			store.NewRedisDeduper(redisClient, cfg.Slack.DedupTTL),
			eventProducer,
		),
		Health: handler.NewHealthHandler(map[string]handler.Pinger{
			"redis": handler.PingerFunc(func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			}),
		}),
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, routes httprouter.RouterConfig) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger("/health", "/healthz", "/metrics"))
	router.Use(middleware.Metrics())

	httprouter.SetupRoutes(router, routes)

	return router
}

const banner = `
 ___  _            _      ___     _             ___                          
/ __|| | __ _  __ | |__  | _ \ ___| | __ _  _  _/ __| ___  _ _ __ __ ___  _ _ 
\__ \| |/ _' |/ _|| / /  |   // -_) |/ _' || || \__ \/ -_)| '_|\ V // -_)| '_|
|___/|_|\__,_|\__||_\_\  |_|_\\___|_|\__,_| \_, |___/\___||_|   \_/ \___||_|  
                                            |__/                              
`
