package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/geocoder89/backoffice/internal/domain/job"
	"github.com/geocoder89/backoffice/internal/notifications"
	"github.com/geocoder89/backoffice/internal/observability"
	"golang.org/x/sync/errgroup"
)

type JobsRepository interface {
	ClaimNext(ctx context.Context, workerID string) (job.Job, error)
	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errMsg string) error
	Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error
	RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error)
}

// DeliveryLedger records which notifications went out so a retried job
// never sends the same message twice.
type DeliveryLedger interface {
	TryStart(ctx context.Context, kind, refID, jobID, recipient string) error
	MarkSent(ctx context.Context, kind, refID string, providerMessageID *string) error
	MarkFailed(ctx context.Context, kind, refID, errMsg string) error
}

type SettingsReader interface {
	GetAll(ctx context.Context) (map[string]string, error)
}

type Config struct {
	WorkerID      string
	Concurrency   int
	PollInterval  time.Duration
	JobTimeout    time.Duration
	ShutdownGrace time.Duration
	LockTTL       time.Duration
	StaleEvery    time.Duration
}

func (c Config) withDefaults() Config {
	if c.WorkerID == "" {
		c.WorkerID = "worker"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 30 * time.Second
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 10 * time.Second
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 2 * time.Minute
	}
	if c.StaleEvery <= 0 {
		c.StaleEvery = 30 * time.Second
	}
	return c
}

type Deps struct {
	Jobs       JobsRepository
	Deliveries DeliveryLedger
	Settings   SettingsReader
	Notifier   notifications.Notifier
	Log        *slog.Logger
	Metrics    *observability.JobMetrics
	Prom       *observability.Prom
}

type Worker struct {
	cfg Config

	repo       JobsRepository
	deliveries DeliveryLedger
	settings   SettingsReader
	notifier   notifications.Notifier
	log        *slog.Logger
	metrics    *observability.JobMetrics
	prom       *observability.Prom

	backoff func(attempt int) time.Duration
	now     func() time.Time

	ready atomic.Bool
}

func New(cfg Config, deps Deps) *Worker {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NewJobMetrics()
	}

	return &Worker{
		cfg:        cfg.withDefaults(),
		repo:       deps.Jobs,
		deliveries: deps.Deliveries,
		settings:   deps.Settings,
		notifier:   deps.Notifier,
		log:        deps.Log.With("worker_id", cfg.WorkerID),
		metrics:    deps.Metrics,
		prom:       deps.Prom,
		backoff:    ExponentialBackoff,
		now:        time.Now,
	}
}

func (w *Worker) Ready() bool { return w.ready.Load() }

func (w *Worker) Metrics() *observability.JobMetrics { return w.metrics }

// Run polls for jobs with cfg.Concurrency loops until ctx is cancelled.
// Jobs already executing get ShutdownGrace to finish.
func (w *Worker) Run(ctx context.Context) error {
	w.ready.Store(true)
	defer w.ready.Store(false)

	w.log.Info("worker started", "concurrency", w.cfg.Concurrency)

	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < w.cfg.Concurrency; i++ {
		g.Go(func() error {
			return w.loop(gctx)
		})
	}

	g.Go(func() error {
		return w.requeueLoop(gctx)
	})

	err := g.Wait()
	w.log.Info("worker stopped")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Worker) loop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		processed, err := w.ProcessOne(ctx)
		if err != nil {
			w.log.Error("process job", "err", err)
		}

		// drain the queue without waiting while there is work
		if processed {
			continue
		}

		t := time.NewTimer(w.cfg.PollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (w *Worker) requeueLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.StaleEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := w.repo.RequeueStaleProcessing(ctx, w.cfg.LockTTL)
			if err != nil {
				if ctx.Err() == nil {
					w.log.Error("requeue stale jobs", "err", err)
				}
				continue
			}
			if n > 0 {
				w.log.Warn("requeued stale jobs", "count", n)
			}
		}
	}
}
