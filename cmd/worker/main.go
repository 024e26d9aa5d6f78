package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/geocoder89/backoffice/internal/config"
	"github.com/geocoder89/backoffice/internal/db"
	"github.com/geocoder89/backoffice/internal/notifications"
	"github.com/geocoder89/backoffice/internal/observability"
	"github.com/geocoder89/backoffice/internal/queue/redisclient"
	"github.com/geocoder89/backoffice/internal/queue/worker"
	"github.com/geocoder89/backoffice/internal/realtime"
	"github.com/geocoder89/backoffice/internal/repo/postgres"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()
	log := observability.NewLogger(cfg.Env)

	if err := run(cfg, log); err != nil {
		log.Error("worker stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracingConfig{
		ServiceName: cfg.OTelServiceName + "-worker",
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

	jobsRepo := postgres.NewJobsRepo(pool, prom)

	notifier := notifications.NewProtectedNotifier(
		notifications.NewLogNotifier(log),
		notifications.ProtectedNotifierConfig{Timeout: cfg.NotifierTimeout},
	)

	host, _ := os.Hostname()
	workerID := host + "-" + strconv.Itoa(os.Getpid())

	w := worker.New(worker.Config{
		WorkerID:      workerID,
		Concurrency:   cfg.WorkerConcurrency,
		PollInterval:  cfg.WorkerPollInterval,
		ShutdownGrace: 10 * time.Second,
	}, worker.Deps{
		Jobs:       jobsRepo,
		Deliveries: postgres.NewDeliveriesRepo(pool, prom),
		Settings:   postgres.NewSettingsRepo(pool, prom),
		Notifier:   notifier,
		Log:        log,
		Prom:       prom,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", w.HealthHandler(worker.HealthDeps{
		DB:      pool,
		Counter: jobsRepo,
		Breaker: notifier.State,
	}))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WorkerHealthPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("worker started", "worker_id", workerID, "concurrency", cfg.WorkerConcurrency)
		return w.Run(gctx)
	})

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	// API instances read changes from Redis; the worker is their only listener.
	if cfg.RedisEnabled() {
		rc := redisclient.New(redisclient.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rc.Close()

		relay := realtime.NewRedisBridge(rc, cfg.RealtimeChannel, log).Relay(gctx)
		g.Go(func() error {
			return realtime.NewPGListener(realtime.PoolAcquirer(pool), db.ChangeFeedChannel, relay, log).Run(gctx)
		})
	}

	err = g.Wait()
	log.Info("worker shutdown complete")
	return err
}
