package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/geocoder89/backoffice/internal/config"
	"github.com/geocoder89/backoffice/internal/db"
	httpx "github.com/geocoder89/backoffice/internal/http"
	"github.com/geocoder89/backoffice/internal/observability"
	"github.com/geocoder89/backoffice/internal/queue/redisclient"
	"github.com/geocoder89/backoffice/internal/realtime"
	"github.com/geocoder89/backoffice/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()
	log := observability.NewLogger(cfg.Env)

	if err := run(cfg, log); err != nil {
		log.Error("api stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracingConfig{
		ServiceName: cfg.OTelServiceName,
		Endpoint:    cfg.OTelEndpoint,
		Env:         cfg.Env,
		SampleRatio: cfg.OTelSampleRatio,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(sctx)
	}()

	pool, err := db.NewPool(ctx, cfg.DBURL, cfg.DBMaxConns)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	store, err := storage.NewFSStore(cfg.StorageDir, cfg.StoragePublicURL, cfg.UploadMaxBytes,
		storage.BucketProducts, storage.BucketServices, storage.BucketAvatars)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	hub := realtime.NewHub(realtime.WithMetrics(prom))

	deps := httpx.Wire(cfg, log, pool, prom, store, hub)
	deps.Gatherer = reg
	router := httpx.NewRouter(deps)

	// WriteTimeout stays unset: realtime streams are long lived.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runChangeFeed(gctx, cfg, pool, hub, log)
	})

	g.Go(func() error {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("server shutting down")

		// close streams first so Shutdown is not held up by open SSE requests
		hub.Close()

		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
			return err
		}
		return nil
	})

	err = g.Wait()
	log.Info("shutdown complete")
	return err
}

// runChangeFeed feeds the hub from Redis when configured, otherwise from a
// Postgres listener owned by this process.
func runChangeFeed(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, hub *realtime.Hub, log *slog.Logger) error {
	if cfg.RedisEnabled() {
		rc := redisclient.New(redisclient.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rc.Close()

		log.Info("realtime source", "kind", "redis", "channel", cfg.RealtimeChannel)
		return realtime.NewRedisBridge(rc, cfg.RealtimeChannel, log).Run(ctx, hub)
	}

	log.Info("realtime source", "kind", "postgres", "channel", db.ChangeFeedChannel)
	return realtime.NewPGListener(realtime.PoolAcquirer(pool), db.ChangeFeedChannel, hub, log).Run(ctx)
}
