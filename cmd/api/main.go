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
	"github.com/prometheus/client_golang/prometheus"

	"campus/internal/attendance"
	"campus/internal/config"
	"campus/internal/httpapi"
	"campus/internal/logging"
	"campus/internal/metrics"
	"campus/internal/queue"
	"campus/internal/store"
	"campus/internal/tokens"
)

func main() {
	cfg := config.Load()
	log := logging.New(os.Stderr, cfg.Production(), slog.LevelInfo)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, log); err != nil {
		log.Error(context.Background(), "http server failed", "err", err)
		os.Exit(1)
	}
}

func runHTTP(cfg config.App, log logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	switch {
	case db == nil:
		return err
	case err != nil:
		// served as degraded on /healthz until the database comes up and is migrated
		log.Warn(ctx, "db not reachable, retrying in background", "err", err)
		go migrateWhenReady(ctx, db, log)
	default:
		if err := db.Migrate(ctx); err != nil {
			return err
		}
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var (
		q          queue.Queue
		tokenStore tokens.Store
	)
	if cfg.QueueBackend == "memory" {
		// single-process dev setup: the worker cannot see these
		q = queue.NewInMemory(64)
		tokenStore = tokens.NewMemory(time.Now)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
		tokenStore = tokens.NewRedisStore(redisClient.Client, "")
	}

	srv := httpapi.New(httpapi.Options{
		SigningKey:      cfg.JWTSigningKey,
		Issuer:          cfg.JWTIssuer,
		AccessTTL:       cfg.AccessTTL,
		RefreshTTL:      cfg.RefreshTTL,
		Location:        cfg.Location(),
		RateLimitPerMin: cfg.RateLimitPerMin,
		Production:      cfg.Production(),
		Health: map[string]func(context.Context) bool{
			"db":    db.Healthy,
			"redis": redisClient.Healthy,
		},
	},
		attendance.NewRepository(db.Client),
		tokens.NewMinter(tokenStore, cfg.TokenTTL, time.Now),
		q,
		metrics.New(prometheus.DefaultRegisterer),
		log,
	)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting server", "addr", httpSrv.Addr, "env", cfg.Env, "timezone", cfg.Timezone)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info(context.Background(), "shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, "server forced shutdown", "err", err)
	}
	log.Info(shutdownCtx, "server exited")
	return nil
}

func migrateWhenReady(ctx context.Context, db *store.DB, log logging.Logger) {
	if err := db.WaitReady(ctx, 5*time.Second); err != nil {
		return
	}
	if err := db.Migrate(ctx); err != nil {
		log.Error(ctx, "db migration failed", "err", err)
		return
	}
	log.Info(ctx, "db reachable, schema migrated")
}
