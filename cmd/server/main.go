// Command server runs the privacy and compliance core: masking rules, the
// access audit trail, the consent ledger, DSAR workflow, breach register, and
// compliance program tracker behind one HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"custodia/internal/audit"
	auditpublisher "custodia/internal/audit/publisher"
	"custodia/internal/breach"
	"custodia/internal/compliance"
	"custodia/internal/consent"
	"custodia/internal/dsar"
	"custodia/internal/masking"
	"custodia/internal/platform/config"
	"custodia/internal/platform/db"
	"custodia/internal/platform/httpserver"
	"custodia/internal/platform/logger"
	"custodia/internal/platform/metrics"
	"custodia/internal/platform/middleware"
	platformredis "custodia/internal/platform/redis"
	httptransport "custodia/internal/transport/http"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	ctx := context.Background()

	database, err := db.Open(ctx, cfg.Database)
	if err != nil {
		log.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	m := metrics.New()

	// Optional Redis for accessor-activity counters; without it the anomaly
	// heuristic counts through the relational store.
	var auditStore audit.Store = audit.NewPostgresStore(database)
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		auditStore = audit.NewRedisActivityStore(auditStore, redisClient.Client, log)
		log.Info("redis activity counters enabled")
	}

	// Optional Kafka mirror of the audit trail.
	var publisher audit.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := auditpublisher.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			log.Error("kafka unavailable", "error", err)
			os.Exit(1)
		}
		defer kafka.Close()
		publisher = kafka
		log.Info("audit kafka publisher enabled", "topic", cfg.Kafka.Topic)
	}

	maskingStore := masking.NewPostgresStore(database)
	maskingEngine := masking.NewEngine(maskingStore, log, m, cfg.Masking.RuleCacheTTL)
	auditService := audit.NewService(auditStore, publisher, log, m)
	consentService := consent.NewService(consent.NewPostgresStore(database), log, m)
	dsarService := dsar.NewService(dsar.NewPostgresStore(database), log, m)
	breachService := breach.NewService(breach.NewPostgresStore(database), log, m)
	complianceService := compliance.NewService(compliance.NewPostgresStore(database), log, m)

	if cfg.Audit.SeedPacks {
		if err := complianceService.SeedDefaultPacks(ctx); err != nil {
			log.Error("seeding default packs failed", "error", err)
			os.Exit(1)
		}
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:       log,
		Metrics:      m,
		Masking:      maskingEngine,
		MaskingRules: maskingStore,
		Audit:        auditService,
		Consent:      consentService,
		DSAR:         dsarService,
		Breach:       breachService,
		Compliance:   complianceService,
		Validator:    middleware.NewJWTValidator(cfg.Auth.JWTSigningKey),
		Timeout:      cfg.Server.RequestTimeout,
	})

	srv := httpserver.New(cfg.Server.Addr, router)
	go func() {
		log.Info("server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
