package worker

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/backoffice/internal/domain/job"
	"github.com/geocoder89/backoffice/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// permanentError marks failures a retry cannot fix, such as a payload that
// does not decode. Those jobs are dead-lettered on the first attempt.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return permanentError{err: err} }

func isPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// ProcessOne claims and runs a single job. processed is false when the queue
// had nothing runnable.
func (w *Worker) ProcessOne(ctx context.Context) (processed bool, err error) {
	claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	j, err := w.repo.ClaimNext(claimCtx, w.cfg.WorkerID)
	cancel()

	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) || ctx.Err() != nil {
			return false, nil
		}
		return false, err
	}

	w.metrics.IncClaimed()
	if w.prom != nil {
		w.prom.JobsInFlight.Inc()
		defer w.prom.JobsInFlight.Dec()
	}

	log := w.log.With("job_id", j.ID, "job_type", j.Type, "attempt", j.Attempts+1)

	// shutdown should not abort a send halfway through
	execCtx, cancelExec := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.JobTimeout)
	defer cancelExec()

	execCtx, span := observability.Tracer().Start(execCtx, "job "+j.Type,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("job.id", j.ID),
			attribute.String("job.type", j.Type),
			attribute.Int("job.attempt", j.Attempts+1),
		))
	defer span.End()

	start := w.now()
	execErr := w.execute(execCtx, j)
	elapsed := w.now().Sub(start)
	w.metrics.ObserveDuration(elapsed)

	if execErr != nil {
		span.RecordError(execErr)
		span.SetStatus(codes.Error, execErr.Error())
	}

	// repo writes after execution also outlive shutdown
	finishCtx, cancelFinish := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.ShutdownGrace)
	defer cancelFinish()

	if execErr != nil {
		result, err := w.handleFailure(finishCtx, j, execErr)
		w.observe(j.Type, result, elapsed)
		log.Warn("job failed", "result", result, "err", execErr)
		return true, err
	}

	if err := w.repo.MarkDone(finishCtx, j.ID); err != nil {
		_ = w.repo.MarkFailed(finishCtx, j.ID, "mark_done_failed: "+err.Error())
		return true, err
	}

	w.metrics.IncDone()
	w.observe(j.Type, "done", elapsed)
	log.Info("job done", "duration_ms", elapsed.Milliseconds())

	return true, nil
}

// handleFailure reschedules the job with backoff or dead-letters it once
// its attempts are spent.
func (w *Worker) handleFailure(ctx context.Context, j job.Job, execErr error) (string, error) {
	msg := execErr.Error()

	if isPermanent(execErr) || j.Attempts+1 >= j.MaxAttempts {
		w.metrics.IncDeadLettered()
		return "failed", w.repo.MarkFailed(ctx, j.ID, msg)
	}

	w.metrics.IncRetried()
	runAt := w.now().Add(w.backoff(j.Attempts))
	return "retry", w.repo.Reschedule(ctx, j.ID, runAt, msg)
}

func (w *Worker) observe(jobType, result string, d time.Duration) {
	if w.prom == nil {
		return
	}
	w.prom.JobDuration.WithLabelValues(jobType, result).Observe(d.Seconds())
	w.prom.JobResults.WithLabelValues(jobType, result).Inc()
}
