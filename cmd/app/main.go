package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"edu-subscription-payments/internal/config"
	pg "edu-subscription-payments/internal/infra/db/postgres"
	"edu-subscription-payments/internal/infra/logging"
	"edu-subscription-payments/internal/infra/metrics"
	"edu-subscription-payments/internal/infra/payment"
	red "edu-subscription-payments/internal/infra/redis"
	"edu-subscription-payments/internal/infra/sched"
	"edu-subscription-payments/internal/infra/web"
	"edu-subscription-payments/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, no sampling)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	rateLimiter := red.NewRateLimiter(redisClient)

	// ---- Repositories ----
	planRepo := pg.NewPlanRepoCacheDecorator(pg.NewPlanRepo(pool), redisClient)
	couponRepo := pg.NewCouponRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	gatewayRepo := pg.NewGatewayRepo(pool)
	tm := pg.NewTxManager(pool)

	// ---- Gateway adapter ----
	zibal := payment.NewZibalGateway(
		cfg.Gateway.Zibal.Merchant,
		cfg.Gateway.Zibal.CallbackURL,
		cfg.Gateway.Zibal.BaseURL,
		cfg.Gateway.Zibal.Timeout,
	)
	logger.Info().Str("gateway", zibal.Name()).Msg("payment gateway configured")

	// ---- Use cases ----
	couponEngine := usecase.NewCouponEngine(couponRepo, logger)
	ledger := usecase.NewSubscriptionLedger(subRepo, pool, logger)
	orchestrator := usecase.NewPaymentOrchestrator(planRepo, gatewayRepo, couponEngine, ledger, zibal, tm, locker, logger)

	// ---- HTTP server ----
	auth := web.NewAuthManager(cfg.Auth.JWTSecret)
	srv := web.NewServer(orchestrator, ledger, planRepo, rateLimiter, cfg.RateLimit.StartPerMinute, auth, logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.Router(),
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Workers ----
	reconciler := sched.NewPaymentReconciler(orchestrator, gatewayRepo, cfg.Workers.ReconcileInterval, cfg.Workers.ReconcileStaleAfter, logger)
	go func() { _ = reconciler.Run(ctx) }()

	reaper := sched.NewReserveReaper(cfg.Workers.SweepInterval, cfg.Workers.ReserveTTL, ledger, logger)
	go func() { _ = reaper.Run(ctx) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
}
