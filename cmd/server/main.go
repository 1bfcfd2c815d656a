package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"custoda/internal/audit"
	"custoda/internal/captoken"
	"custoda/internal/credential"
	"custoda/internal/document"
	"custoda/internal/jwttoken"
	"custoda/internal/owner"
	"custoda/internal/permission"
	"custoda/internal/platform/config"
	"custoda/internal/platform/httpserver"
	"custoda/internal/platform/logger"
	"custoda/internal/platform/metrics"
	platformredis "custoda/internal/platform/redis"
	"custoda/internal/record"
	"custoda/internal/signer"
	"custoda/internal/syncer"
	httptransport "custoda/internal/transport/http"
	"custoda/internal/vault"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Backends. Redis serves the vault and credential store when configured;
	// both fall back to in-memory for local development.
	var (
		ownerVault vault.Vault
		credStore  credential.Store
	)
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		ownerVault = vault.NewRedisVault(redisClient.Client)
		credStore = credential.NewRedisStore(redisClient.Client)
		log.Info("redis backends configured")
	} else {
		ownerVault = vault.NewInMemoryVault()
		credStore = credential.NewInMemoryStore()
		log.Info("in-memory backends configured")
	}

	// Audit trail. With Postgres configured, events flow through a buffered
	// channel so request handling never waits on the database.
	var auditStore audit.Store = audit.NewInMemoryStore()
	if cfg.Postgres.DSN != "" {
		pg, err := audit.OpenPostgres(ctx, cfg.Postgres.DSN)
		if err != nil {
			log.Error("audit database connection failed", "error", err)
			os.Exit(1)
		}
		defer pg.Close()

		inbox := make(chan audit.Event, 256)
		worker := audit.NewWorker(pg, inbox)
		go func() {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit worker stopped", "error", err)
			}
		}()
		auditStore = audit.NewChannelSink(inbox, pg)
		log.Info("durable audit trail configured")
	}
	auditor := audit.NewPublisher(auditStore, log)

	// Stores and services.
	ownerStore := owner.NewInMemoryStore()
	gate := owner.NewGate(ownerStore)

	recordService := record.NewService(record.NewInMemoryStore(), ownerVault, gate, auditor, log, m, cfg.BackendTimeout)
	permissionService := permission.NewService(permission.NewInMemoryStore(), gate, auditor, log)
	documentService := document.NewService(document.NewInMemoryStore(), document.NewInMemoryBlobStore(), cfg.DocumentKey, gate, auditor, log)
	tokenService := captoken.NewService(captoken.NewInMemoryStore(), documentService, signer.NewHMAC(cfg.TokenSigningKey), auditor, log, m)
	syncService := syncer.NewService(ownerStore, recordService, ownerVault, credStore, auditor, log, m, cfg.BackendTimeout)
	registry := owner.NewRegistry(ownerStore, ownerVault, credStore, permissionService, recordService, documentService, tokenService, syncService, auditor, log, m)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "custoda", "custoda-api")

	handler := httptransport.NewHandler(log, jwtService, registry, recordService, permissionService, documentService, tokenService, syncService, auditStore)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler))

	log.Info("starting custoda", "addr", cfg.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
