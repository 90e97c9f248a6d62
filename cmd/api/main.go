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

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/suman7063/ifindLife-sub000/internal/auth"
	"github.com/suman7063/ifindLife-sub000/internal/config"
	"github.com/suman7063/ifindLife-sub000/internal/media"
	"github.com/suman7063/ifindLife-sub000/internal/orchestrator"
	"github.com/suman7063/ifindLife-sub000/internal/pricing"
	"github.com/suman7063/ifindLife-sub000/internal/realtime"
	"github.com/suman7063/ifindLife-sub000/internal/sessionlog"
	"github.com/suman7063/ifindLife-sub000/internal/signaling"
	"github.com/suman7063/ifindLife-sub000/internal/wallet"
	"github.com/suman7063/ifindLife-sub000/pkg/logger"
	"github.com/suman7063/ifindLife-sub000/pkg/utils"
)

// A caller slot outlives any realistic call; archive releases it earlier.
const limiterSlotTTL = 6 * time.Hour

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

	clock := clockwork.NewRealClock()

	var (
		bus     signaling.Bus
		store   signaling.RequestStore
		limiter orchestrator.Limiter
	)
	// Live sessions and media channels stay in this process: run one API
	// instance per deployment even on the redis backend.
	switch cfg.Signaling.Backend {
	case config.SignalingMemory:
		bus = signaling.NewMemoryBus()
		store = signaling.NewMemoryRequestStore()
	default:
		var rdb *redis.Client
		rdb, err = utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		bus = signaling.NewRedisBus(rdb, log)
		store = signaling.NewRedisRequestStore(rdb, 0)
		limiter = utils.NewConcurrencyLimiter(rdb, "call:active:", cfg.Call.MaxActivePerUser, limiterSlotTTL)
	}

	channel := signaling.NewChannel(bus, store, clock,
		signaling.WithRequestTTL(cfg.Call.RequestTTL),
		signaling.WithLogger(log),
	)
	defer channel.Close()

	credentials, err := media.NewCredentialIssuer(cfg.Media.CredentialSecret, cfg.Auth.JWTIssuer, cfg.Media.CredentialTTL)
	if err != nil {
		log.Error("media credentials init failed", "err", err)
		os.Exit(1)
	}
	transport := media.NewWebhookTransport()

	deps := orchestrator.Deps{
		Ledger:      wallet.NewPostgresLedger(db),
		Signaling:   channel,
		Media:       transport,
		Rates:       pricing.NewService(pricing.NewPostgresRepo(db), cfg.Call.FreeAllowanceSeconds),
		Log:         sessionlog.NewService(sessionlog.NewPostgresRepo(db)),
		Credentials: credentials,
		Limiter:     limiter,
		Clock:       clock,
		Logger:      log,
	}

	orch, err := orchestrator.New(orchestratorConfig(cfg.Call), deps)
	if err != nil {
		log.Error("orchestrator init failed", "err", err)
		os.Exit(1)
	}
	orchDone := make(chan struct{})
	go func() {
		defer close(orchDone)
		orch.Run(rootCtx)
	}()

	hub := realtime.NewHub(bus, log)
	defer hub.Close()
	ws := realtime.NewServer(hub, orch, realtime.Options{}, log)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		auth:      authManager,
		sessions:  orch,
		ws:        ws,
		transport: transport,
		media:     cfg.Media,
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
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "signaling", cfg.Signaling.Backend)
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

	select {
	case <-orchDone:
	case <-shutdownCtx.Done():
		log.Warn("orchestrator did not stop in time")
	}
}

func orchestratorConfig(c config.CallConfig) orchestrator.Config {
	return orchestrator.Config{
		DefaultFreeAllowanceSeconds: c.FreeAllowanceSeconds,
		RequestTTL:                  c.RequestTTL,
		NoShowWarningAfter:          c.NoShowWarningAfter,
		NoShowHardAfter:             c.NoShowHardAfter,
		DisconnectGrace:             c.DisconnectGrace,
		ExtensionSeconds:            c.ExtensionSeconds,
		MediaJoinTimeout:            c.MediaJoinTimeout,
		TickInterval:                c.TickInterval,
		CallTimeout:                 c.LedgerTimeout,
		RetryInitial:                c.LedgerRetryMin,
		RetryMax:                    c.LedgerRetryMax,
		ReserveRetries:              uint64(c.ReserveRetries),
	}
}
