package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/geocoder89/rolegate/internal/access"
	"github.com/geocoder89/rolegate/internal/account"
	"github.com/geocoder89/rolegate/internal/auth"
	"github.com/geocoder89/rolegate/internal/config"
	"github.com/geocoder89/rolegate/internal/db"
	"github.com/geocoder89/rolegate/internal/domain/user"
	httpx "github.com/geocoder89/rolegate/internal/http"
	"github.com/geocoder89/rolegate/internal/http/handlers"
	"github.com/geocoder89/rolegate/internal/http/middlewares"
	"github.com/geocoder89/rolegate/internal/observability"
	"github.com/geocoder89/rolegate/internal/redisclient"
	"github.com/geocoder89/rolegate/internal/repo/memory"
	"github.com/geocoder89/rolegate/internal/repo/postgres"
	"github.com/geocoder89/rolegate/internal/security"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const serviceName = "rolegate"

type store interface {
	account.Store
	access.StatusReader
}

func main() {
	// Load the config set up
	cfg := config.Load()

	// start up the observability logger
	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx := context.Background()

	shutdownTracer, err := observability.InitTracer(ctx, serviceName, cfg.OTelEndpoint, cfg.TracingEnabled)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		tctx, cancel := config.WithTimeout(5 * time.Second)
		defer cancel()
		_ = shutdownTracer(tctx)
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	checks := map[string]handlers.Pinger{}

	var users store
	switch cfg.StoreBackend {
	case "memory":
		log.Warn("using in-memory store; data is lost on restart")
		users = memory.NewUsersRepo(user.RoleAdmin, user.RoleUser)
	default:
		pool, err := db.NewPool(cfg.DBURL, cfg.DBMaxConns)
		if err != nil {
			return fmt.Errorf("connect db: %w", err)
		}
		defer pool.Close()

		if cfg.AutoMigrate {
			if err := db.Migrate(ctx, pool); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}

		users = postgres.NewUsersRepo(pool, prom)
		checks["db"] = pool.Ping
	}

	secret := cfg.JWTSecret
	if secret == "" {
		secret = randomSecret()
		log.Warn("JWT_SECRET not set; using a random secret, tokens will not survive a restart", "env", cfg.Env)
	}

	tokens := auth.NewManager([]byte(secret))
	hasher := security.NewHasher(cfg.BcryptCost, cfg.HashConcurrency, security.WithObserver(prom))
	svc := account.NewService(users, hasher, tokens, log)
	gate := access.NewGate(tokens, users, prom)

	seedCtx, cancelSeed := config.WithTimeout(10 * time.Second)
	err = db.EnsureAdminUser(seedCtx, svc, cfg)
	cancelSeed()
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	var counter middlewares.WindowCounter = middlewares.NewMemoryCounter()
	if cfg.RedisAddr != "" {
		rdb := redisclient.New(redisclient.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		counter = rdb
		checks["redis"] = rdb.Ping
	}

	var draining atomic.Bool

	router := httpx.NewRouter(httpx.Deps{
		Log:            log,
		Env:            cfg.Env,
		ServiceName:    serviceName,
		Accounts:       svc,
		Gate:           gate,
		Prom:           prom,
		Gatherer:       reg,
		Limiter:        middlewares.NewRateLimiter(counter, cfg.RateLimit, cfg.RateLimitWindow, prom, log),
		ReadyChecks:    checks,
		Draining:       draining.Load,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.StoreBackend)
		err := srv.ListenAndServe()

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-stop:
	}

	log.Info("server shutting down")
	draining.Store(true)

	shutdownCtx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info("shutdown complete")
	return nil
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
