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
	"github.com/slack-go/slack/socketmode"

	"github.com/oarmstrong95/slack-bot/common/id"
	"github.com/oarmstrong95/slack-bot/common/logger"
	"github.com/oarmstrong95/slack-bot/common/otel"
	"github.com/oarmstrong95/slack-bot/core/config"
	"github.com/oarmstrong95/slack-bot/core/db"
	"github.com/oarmstrong95/slack-bot/internal/http/handler"
	"github.com/oarmstrong95/slack-bot/internal/http/middleware"
	httprouter "github.com/oarmstrong95/slack-bot/internal/http/router"
	"github.com/oarmstrong95/slack-bot/internal/relay"
	"github.com/oarmstrong95/slack-bot/internal/service"
	"github.com/oarmstrong95/slack-bot/internal/slack"
	"github.com/oarmstrong95/slack-bot/internal/store"
)

// relay runs the whole bot in one process over Socket Mode: no public
// endpoint, no queue. Suited to development and single-replica installs.
func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeRelay)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)
	slog.InfoContext(ctx, "slack socket relay starting", "env", cfg.Env, "llm_provider", cfg.LLM.Provider)

	if err := id.Init(3); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	var database *db.DB
	if cfg.DB.Enabled() {
		database, err = db.New(ctx, cfg.DB)
		if err != nil {
			slog.ErrorContext(ctx, "failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer database.Close()
	}

	stores := store.NewStores(database)
	if err := stores.Migrate(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to migrate turn audit schema", "error", err)
		os.Exit(1)
	}

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
	defer redisClient.Close()

	slackClient := slack.NewFromConfig(cfg.Slack.BotToken, cfg.Slack.AppToken)
	bot, err := slackClient.Identity(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to resolve bot identity", "error", err)
		os.Exit(1)
	}

	services, err := service.NewServices(service.ServicesConfig{
		Transport: slackClient,
		Stores:    stores,
		Bot:       bot,
		LLM:       cfg.LLM,
		Augment:   cfg.Augment,
		Prompt:    cfg.Prompt,

		TurnTimeout: cfg.TurnTimeout,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create services", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "turn pipeline ready", "model", services.Model(), "bot_user_id", bot.UserID)

	socketRelay := relay.NewSocketRelay(
		socketmode.New(slackClient.API()),
		slack.EventFilter{Bot: bot, ReplyInThreads: cfg.Slack.ReplyInThreads},
		store.NewRedisDeduper(redisClient, cfg.Slack.DedupTTL),
		services.Turns(),
	)

	metricsServer := newMetricsServer(cfg, redisClient)
	go func() {
		slog.InfoContext(ctx, "metrics server starting", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "metrics server error", "error", err)
		}
	}()

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := socketRelay.Run(runCtx); err != nil {
		slog.ErrorContext(ctx, "socket relay stopped", "error", err)
	}

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	drained := make(chan struct{})
	go func() {
		socketRelay.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded with turns in flight")
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "metrics server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "shutdown complete")
}

func newMetricsServer(cfg config.Config, redisClient *redis.Client) *http.Server {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.Recovery())
	httprouter.OpsRouter(router, handler.NewHealthHandler(map[string]handler.Pinger{
		"redis": handler.PingerFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}),
	}))

	return &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

const banner = `
 ___  _            _      ___     _            
/ __|| | __ _  __ | |__  | _ \ ___| | __ _  _  _ 
\__ \| |/ _' |/ _|| / /  |   // -_) |/ _' || || |
|___/|_|\__,_|\__||_\_\  |_|_\\___|_|\__,_| \_, |
                                            |__/ 
`
