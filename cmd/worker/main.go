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

	"github.com/oarmstrong95/slack-bot/common/id"
	"github.com/oarmstrong95/slack-bot/common/logger"
	"github.com/oarmstrong95/slack-bot/common/otel"
	"github.com/oarmstrong95/slack-bot/core/config"
	"github.com/oarmstrong95/slack-bot/core/db"
	"github.com/oarmstrong95/slack-bot/internal/http/handler"
	"github.com/oarmstrong95/slack-bot/internal/http/middleware"
	httprouter "github.com/oarmstrong95/slack-bot/internal/http/router"
	"github.com/oarmstrong95/slack-bot/internal/queue"
	"github.com/oarmstrong95/slack-bot/internal/service"
	"github.com/oarmstrong95/slack-bot/internal/slack"
	"github.com/oarmstrong95/slack-bot/internal/store"
	"github.com/oarmstrong95/slack-bot/internal/worker"
)

const maxAttempts = 3

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
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

	slog.InfoContext(ctx, "slack relay worker starting",
		"env", cfg.Env,
		"llm_provider", cfg.LLM.Provider,
		"consumer_group", cfg.Pipeline.RedisGroup,
		"consumer_name", cfg.Pipeline.RedisConsumer)

	// Different node ID than the server and socket relay
	if err := id.Init(2); err != nil {
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
		slog.InfoContext(ctx, "database connected")
	} else {
		slog.InfoContext(ctx, "turn audit log disabled (no DATABASE_URL)")
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
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Pipeline.RedisStream)

	slackClient := slack.NewFromConfig(cfg.Slack.BotToken, "")
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

	consumer, err := queue.NewRedisConsumer(redisClient, queue.ConsumerConfig{
		Stream:       cfg.Pipeline.RedisStream,
		Group:        cfg.Pipeline.RedisGroup,
		Consumer:     cfg.Pipeline.RedisConsumer,
		DLQStream:    cfg.Pipeline.RedisDLQStream,
		BatchSize:    1, // One turn at a time
		Block:        5 * time.Second,
		MaxAttempts:  maxAttempts,
		RequeueDelay: time.Second,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	w := worker.New(consumer, services.Turns(), worker.Config{
		MaxAttempts: maxAttempts,
	})

	// Every turn is capped by TURN_TIMEOUT, so a message idle for longer than
	// the capped turn plus its reporting belongs to a dead consumer.
	reclaimer := worker.NewRedisReclaimer(redisClient, worker.RedisReclaimerConfig{
		Stream:    cfg.Pipeline.RedisStream,
		Group:     cfg.Pipeline.RedisGroup,
		Consumer:  cfg.Pipeline.RedisConsumer + "-reclaimer",
		MinIdle:   services.MaxTurnDuration() + time.Minute,
		Interval:  time.Minute,
		BatchSize: 10,
	}, consumer, w.ProcessMessage)

	metricsServer := newMetricsServer(cfg, redisClient)
	go func() {
		slog.InfoContext(ctx, "metrics server starting", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "metrics server error", "error", err)
		}
	}()

	errCh := make(chan error, 2)
	go func() {
		errCh <- w.Run(ctx)
	}()
	go func() {
		reclaimer.Run(ctx)
		errCh <- nil
	}()

	slog.InfoContext(ctx, "worker initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Reclaimer first (quick), then the worker, which may be mid-turn
	stopped := make(chan struct{})
	go func() {
		reclaimer.Stop()
		w.Stop()
		close(stopped)
	}()

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case <-stopped:
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "metrics server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
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
 ___  _            _      ___     _              __      __          _            
/ __|| | __ _  __ | |__  | _ \ ___| | __ _  _  _  \ \    / /___  _ _ | |__ ___  _ _ 
\__ \| |/ _' |/ _|| / /  |   // -_) |/ _' || || |  \ \/\/ // _ \| '_|| / // -_)| '_|
|___/|_|\__,_|\__||_\_\  |_|_\\___|_|\__,_| \_, |   \_/\_/ \___/|_|  |_\_\\___||_|  
                                            |__/                                    
`
