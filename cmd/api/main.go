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

	"sipcall-backend/internal/audit"
	"sipcall-backend/internal/auth"
	"sipcall-backend/internal/calls"
	"sipcall-backend/internal/config"
	"sipcall-backend/internal/encryption"
	"sipcall-backend/internal/httpapi"
	"sipcall-backend/internal/pricing"
	"sipcall-backend/internal/privacy"
	"sipcall-backend/internal/ratelimit"
	"sipcall-backend/internal/reporting"
	"sipcall-backend/internal/telephony"
	"sipcall-backend/internal/users"
	"sipcall-backend/pkg/logger"
	"sipcall-backend/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Local development convenience; absent .env is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	codec, err := encryption.NewCodec(cfg.Encryption.MasterSecret)
	if err != nil {
		log.Error("encryption init failed", "err", err)
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

	gateway, err := telephony.NewESLGateway(telephony.ESLConfig{
		Host:           cfg.Switch.Host,
		Port:           cfg.Switch.Port,
		Password:       cfg.Switch.Password,
		Gateway:        cfg.Switch.Gateway,
		CommandTimeout: cfg.Switch.CommandTimeout,
	}, log)
	if err != nil {
		log.Error("switch gateway init failed", "err", err)
		os.Exit(1)
	}

	limit := cfg.RateLimit.MaxCallsPerWindow
	if limit <= 0 {
		limit = ratelimit.DefaultLimit
	}
	window := cfg.RateLimit.Window
	if window <= 0 {
		window = ratelimit.DefaultWindow
	}
	limiter := ratelimit.NewLimiter(ratelimit.NewRedisStore(rdb), limit, window)

	userSvc := users.NewService(users.NewPostgresRepo(db))
	callRepo := calls.NewPostgresRepo(db)
	pricer := pricing.NewService(pricing.NewPostgresRepo(db))
	callMgr := calls.NewManager(callRepo, gateway, limiter, codec, log).WithPricer(pricer)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	privacySvc := privacy.NewService(userSvc, callRepo, auditSvc, codec, privacy.NewPostgresPurger(db), log)
	reportSvc := reporting.NewService(reporting.NewPostgresRepo(db))

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	h := httpapi.Handlers{
		Auth:    authManager,
		Users:   userSvc,
		Calls:   callMgr,
		Privacy: privacySvc,
		Reports: reportSvc,
	}
	registerRoutes(r, h, authManager, userSvc)

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
	if err := gateway.Close(); err != nil {
		log.Error("switch gateway close failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
