package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	cli "github.com/spf13/pflag"

	"stubot/internal/api"
	"stubot/internal/config"
	"stubot/internal/events"
	"stubot/internal/exchange"
	"stubot/internal/nlu"
	"stubot/internal/repository"
	"stubot/internal/retention"
	"stubot/internal/storage"
	"stubot/internal/tts"
)

var logLevelMap = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	logLevel := cli.StringP("log", "l", "", "Log level (overrides LOG_LEVEL)")
	cli.Parse()

	// Load .env file if it exists (ignore error if file doesn't exist)
	envErr := godotenv.Load(*envFile)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	level := cfg.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	logger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      logLevelMap[strings.ToLower(level)],
		TimeFormat: time.DateTime,
	}))
	slog.SetDefault(logger)

	if envErr != nil {
		logger.Debug("No .env file found, using environment variables", "path", *envFile)
	}

	// Set Gin mode (default to release mode)
	if cfg.GinMode == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := storage.NewAudioStore(cfg.AudioDir)

	repo, err := repository.NewSQLiteRepository(cfg.DatabasePath, store, logger)
	if err != nil {
		logger.Error("Failed to open conversation log", "path", cfg.DatabasePath, "err", err)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("Conversation log ready", "path", cfg.DatabasePath)

	deps := exchange.Deps{
		Artifacts: store,
		NLU:       nlu.NewClient(cfg.NLUURL, nil, logger),
		Log:       repo,
		AudioURL: func(filename string) string {
			return strings.TrimRight(cfg.AudioURLPrefix, "/") + "/" + filename
		},
		Logger: logger,
	}

	// A broken TTS setup leaves the bot text-only rather than down.
	provider, err := tts.NewProvider(ctx, cfg.TTS, logger)
	if err != nil {
		logger.Error("TTS provider not available, continuing without speech", "provider", cfg.TTS.Provider, "err", err)
	} else if provider != nil {
		deps.Synthesizer = tts.NewSynthesizer(provider, store, cfg.TTS.Language, logger)
		logger.Info("TTS provider initialized", "provider", provider.Name())
	}

	if cfg.RedisURL != "" {
		pub, err := events.NewRedisPublisher(cfg.RedisURL, cfg.EventsChannel)
		if err != nil {
			logger.Error("Invalid REDIS_URL, exchange events disabled", "err", err)
		} else {
			defer pub.Close()
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := pub.Ping(pingCtx); err != nil {
				logger.Warn("Redis not reachable, publishing anyway on each exchange", "err", err)
			}
			cancel()
			deps.Events = pub
			logger.Info("Publishing exchange events", "channel", pub.Channel())
		}
	}

	if cfg.SweepSchedule != "" {
		sweeper := retention.NewSweeper(store, repo, cfg.SweepMinAge, logger)
		if err := sweeper.Start(cfg.SweepSchedule); err != nil {
			logger.Error("Failed to start artifact sweeper", "err", err)
			os.Exit(1)
		}
		defer sweeper.Stop()
	}

	orchestrator := exchange.NewOrchestrator(deps)

	r := gin.New()
	r.Use(gin.Recovery())
	// Add CORS middleware for browser front ends
	r.Use(api.CORSMiddleware())

	// Register routes
	api.NewHandler(orchestrator, repo, api.Options{
		AudioDir:       cfg.AudioDir,
		AudioURLPrefix: cfg.AudioURLPrefix,
		AdminToken:     cfg.AdminToken,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, logger).RegisterRoutes(r)

	if cfg.AdminToken == "" {
		logger.Warn("ADMIN_TOKEN not set, admin endpoints are unauthenticated")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Graceful shutdown failed", "err", err)
		}
	}()

	logger.Info("stubot backend running", "port", cfg.Port, "nlu", cfg.NLUURL)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Failed to start server", "err", err)
		os.Exit(1)
	}
	<-shutdownDone
}
