package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voiceagent-platform/internal/audio"
	"voiceagent-platform/internal/auth"
	"voiceagent-platform/internal/calls"
	"voiceagent-platform/internal/config"
	"voiceagent-platform/internal/conversation"
	"voiceagent-platform/internal/notify"
	"voiceagent-platform/internal/orchestrator"
	"voiceagent-platform/internal/session"
	"voiceagent-platform/internal/speech"
	"voiceagent-platform/internal/telephony"
	"voiceagent-platform/pkg/logger"
	"voiceagent-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/robfig/cron/v3"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	store := calls.NewPostgresStore(db)
	gateway := telephony.NewTwilioGateway(cfg.Twilio)

	cleaner := audio.NewCleaner(log)
	if err := cleaner.Start(); err != nil {
		log.Error("audio cleaner start failed", "err", err)
		os.Exit(1)
	}
	defer cleaner.Stop()

	// Without an API key the deterministic fallback carries every turn and
	// recording transcription is disabled.
	var generator conversation.Generator = conversation.FallbackGenerator{}
	var transcriber speech.Transcriber
	if cfg.OpenAI.APIKey != "" {
		generator = conversation.NewOpenAIGenerator(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
		transcriber = speech.NewWhisperTranscriber(cfg.OpenAI.APIKey, cleaner, log)
	} else {
		log.Warn("OPENAI_API_KEY unset, using deterministic fallback generator")
	}

	orch := orchestrator.New(
		session.NewRegistry(),
		store,
		gateway,
		generator,
		notify.NewRedisNotifier(rdb, "", log),
		orchestrator.NewRedisDialLimiter(rdb),
		orchestrator.CallbackURLs{Base: cfg.App.PublicBaseURL},
		orchestrator.Config{
			DefaultLanguage:   cfg.Voice.DefaultLanguage,
			DefaultVoice:      cfg.Voice.DefaultVoice,
			CampaignDialLimit: cfg.Voice.MaxConcurrentCallsPerCampaign,
		},
		log,
	)
	if transcriber != nil {
		orch.WithTranscriber(transcriber)
	}

	// Idle-session reaper: finalizes calls whose carrier callbacks stopped.
	reaper := cron.New()
	if _, err := reaper.AddFunc("* * * * *", func() {
		if n := orch.ReapIdle(rootCtx, cfg.Voice.SessionIdleTimeout); n > 0 {
			log.Warn("idle sessions reaped", "count", n)
		}
	}); err != nil {
		log.Error("reaper schedule failed", "err", err)
		os.Exit(1)
	}
	reaper.Start()
	defer reaper.Stop()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		Auth:  authManager,
		Orch:  orch,
		Store: store,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}

type routeDeps struct {
	Auth  *auth.Manager
	Orch  *orchestrator.Orchestrator
	Store calls.Store
}
