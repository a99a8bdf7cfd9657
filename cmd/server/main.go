package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nomina/internal/payroll/audit"
	"nomina/internal/payroll/authority"
	"nomina/internal/payroll/handler"
	"nomina/internal/payroll/lock"
	"nomina/internal/payroll/metrics"
	"nomina/internal/payroll/pipeline"
	"nomina/internal/payroll/signer"
	"nomina/internal/payroll/store"
	"nomina/internal/payroll/xmlgen"
	"nomina/internal/platform/config"
	"nomina/internal/platform/httpserver"
	"nomina/internal/platform/logger"
	"nomina/internal/platform/postgres"
	"nomina/internal/platform/redis"
	"nomina/pkg/platform/middleware/requestid"
	"nomina/pkg/platform/middleware/requesttime"
)

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal/payroll packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.New(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		log.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	documents := store.NewPostgres(db)

	// The signature engine loads the bundle lazily, but a bad certificate
	// should stop the deploy, not the first pipeline run.
	engine := signer.NewEngine(cfg.Certificate.Path, cfg.Certificate.Password)
	info, err := engine.Info(time.Now())
	if err != nil {
		log.Error("certificate bundle unusable", "path", cfg.Certificate.Path, "error", err)
		os.Exit(1)
	}
	if info.Expired {
		log.Warn("signing certificate is expired", "subject", info.Subject, "not_after", info.NotAfter)
	}

	baseURL := cfg.Authority.BaseURL
	if baseURL == "" {
		baseURL = authority.TestBaseURL
		if cfg.Authority.Production {
			baseURL = authority.ProductionBaseURL
		}
	}
	client, err := authority.New(authority.Config{
		BaseURL:     baseURL,
		TestSetID:   cfg.Authority.TestSetID,
		Timeout:     cfg.Authority.Timeout,
		MaxAttempts: cfg.Authority.MaxAttempts,
		RetryDelay:  cfg.Authority.RetryDelay,
	}, authority.WithLogger(log))
	if err != nil {
		log.Error("authority client", "error", err)
		os.Exit(1)
	}

	var locker lock.Locker = lock.NewInMemory()
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		locker = lock.NewRedis(redisClient.Client)
		log.Info("using distributed document locks")
	}

	var trail audit.Publisher = audit.NewRecorder()
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaTrail, err := audit.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.Error("kafka unavailable", "error", err)
			os.Exit(1)
		}
		trail = kafkaTrail
		log.Info("audit trail publishing to kafka", "topic", cfg.Kafka.Topic)
	}
	defer trail.Close()

	service, err := pipeline.New(documents, xmlgen.New(cfg.Authority.Production), engine, client,
		pipeline.WithLocker(locker),
		pipeline.WithAuditTrail(trail),
		pipeline.WithMetrics(metrics.New()),
		pipeline.WithLogger(log),
	)
	if err != nil {
		log.Error("pipeline", "error", err)
		os.Exit(1)
	}

	router := chi.NewRouter()
	router.Use(requestid.Middleware)
	router.Use(requesttime.Middleware)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", promhttp.Handler())
	handler.New(service, engine, log).Register(router)

	srv := httpserver.New(cfg.Server.Addr, router)

	go func() {
		log.Info("starting nomina server",
			"addr", cfg.Server.Addr,
			"production", cfg.Authority.Production,
			"certificate_subject", info.Subject,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
