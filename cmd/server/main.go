package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/edgeoftrust/watch-relay/internal/config"
	"github.com/edgeoftrust/watch-relay/internal/database"
	"github.com/edgeoftrust/watch-relay/internal/handler"
	"github.com/edgeoftrust/watch-relay/internal/jobs"
	"github.com/edgeoftrust/watch-relay/internal/middleware"
	"github.com/edgeoftrust/watch-relay/internal/push"
	"github.com/edgeoftrust/watch-relay/internal/redis"
	"github.com/edgeoftrust/watch-relay/internal/repository"
	"github.com/edgeoftrust/watch-relay/internal/service"
	"github.com/edgeoftrust/watch-relay/internal/sse"
	"github.com/edgeoftrust/watch-relay/internal/store"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	approvalStore := store.NewApprovalStore(redisClient)
	pairingStore := store.NewPairingStore(redisClient)
	sessionStore := store.NewSessionControlStore(redisClient)
	auditRepo := repository.NewDecisionAuditRepository(db.DB)

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	dispatcher := push.NewHTTPDispatcher(cfg.PushGatewayURL, redisClient)

	approvalService := service.NewApprovalService(
		approvalStore, pairingStore, auditRepo, dispatcher, broker,
		cfg.RequestTTL(), cfg.ConnectionTTL(),
	)
	pairingService := service.NewPairingService(
		pairingStore, cfg.PairingTTL(), cfg.ConnectionTTL(),
	)
	sessionService := service.NewSessionControlService(
		sessionStore, pairingStore, cfg.ConnectionTTL(),
	)

	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	pairRateLimit := middleware.NewRedisRateLimitMiddleware(
		redisClient.Client, middleware.KeyByIP, cfg.PairAttemptsPerMin,
	)
	submitRateLimit := middleware.NewRedisRateLimitMiddleware(
		redisClient.Client, middleware.KeyByPairingID, cfg.SubmitRequestsPerMin,
	)

	approvalHandler := handler.NewApprovalHandler(approvalService)
	pairingHandler := handler.NewPairingHandler(pairingService)
	sessionHandler := handler.NewSessionHandler(sessionService)
	auditHandler := handler.NewAuditHandler(approvalService)
	eventsHandler := handler.NewEventsHandler(broker, approvalService)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/approval", func(r chi.Router) {
		r.Use(submitRateLimit.Handler)
		r.Mount("/", approvalHandler.Routes())
	})

	r.Route("/pair", func(r chi.Router) {
		r.Use(pairRateLimit.Handler)
		r.Mount("/", pairingHandler.Routes())
	})

	r.Mount("/session", sessionHandler.Routes())
	r.Mount("/audit", auditHandler.Routes())

	r.Get("/events/{pairingId}", eventsHandler.ServeHTTP)

	cleanupJob := jobs.NewCleanupJob(auditRepo, cfg.AuditRetention(), config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
