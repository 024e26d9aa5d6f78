package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/backoffice/internal/domain/job"
	"github.com/geocoder89/backoffice/internal/domain/product"
	"github.com/geocoder89/backoffice/internal/domain/setting"
	"github.com/geocoder89/backoffice/internal/jobs"
	"github.com/geocoder89/backoffice/internal/notifications"
	"github.com/geocoder89/backoffice/internal/observability"
	"github.com/geocoder89/backoffice/internal/repo/postgres"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	goleak.VerifyTestMain(m)
}

type outcome struct {
	status job.Status
	runAt  time.Time
	errMsg string
}

type fakeJobs struct {
	mu       sync.Mutex
	queue    []job.Job
	outcomes map[string]outcome
}

func newFakeJobs(js ...job.Job) *fakeJobs {
	return &fakeJobs{queue: js, outcomes: map[string]outcome{}}
}

func (f *fakeJobs) ClaimNext(_ context.Context, _ string) (job.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return job.Job{}, job.ErrJobNotFound
	}
	j := f.queue[0]
	f.queue = f.queue[1:]
	return j, nil
}

func (f *fakeJobs) set(id string, o outcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[id] = o
	return nil
}

func (f *fakeJobs) get(id string) outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outcomes[id]
}

func (f *fakeJobs) MarkDone(_ context.Context, id string) error {
	return f.set(id, outcome{status: job.StatusDone})
}

func (f *fakeJobs) MarkFailed(_ context.Context, id, msg string) error {
	return f.set(id, outcome{status: job.StatusFailed, errMsg: msg})
}

func (f *fakeJobs) Reschedule(_ context.Context, id string, runAt time.Time, msg string) error {
	return f.set(id, outcome{status: job.StatusPending, runAt: runAt, errMsg: msg})
}

func (f *fakeJobs) RequeueStaleProcessing(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

func (f *fakeJobs) CountByStatus(context.Context) (map[job.Status]int, error) {
	return map[job.Status]int{job.StatusPending: 2, job.StatusFailed: 1}, nil
}

type fakeLedger struct {
	mu     sync.Mutex
	sent   map[string]string
	failed map[string]string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{sent: map[string]string{}, failed: map[string]string{}}
}

func (l *fakeLedger) TryStart(_ context.Context, kind, ref, _, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.sent[kind+"/"+ref]; ok {
		return postgres.ErrAlreadySent
	}
	return nil
}

func (l *fakeLedger) MarkSent(_ context.Context, kind, ref string, id *string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent[kind+"/"+ref] = *id
	return nil
}

func (l *fakeLedger) MarkFailed(_ context.Context, kind, ref, msg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failed[kind+"/"+ref] = msg
	return nil
}

type fakeSettings map[string]string

func (s fakeSettings) GetAll(context.Context) (map[string]string, error) { return s, nil }

type fakeNotifier struct {
	mu       sync.Mutex
	err      error
	alerts   []notifications.LowStockAlertInput
	bookings []notifications.BookingConfirmationInput
}

func (n *fakeNotifier) SendLowStockAlert(_ context.Context, in notifications.LowStockAlertInput) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return "", n.err
	}
	n.alerts = append(n.alerts, in)
	return "m-alert", nil
}

func (n *fakeNotifier) SendBookingConfirmation(_ context.Context, in notifications.BookingConfirmationInput) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return "", n.err
	}
	n.bookings = append(n.bookings, in)
	return "m-booking", nil
}

func bookingJob(t *testing.T, attempts, maxAttempts int) job.Job {
	t.Helper()
	payload, err := jobs.EncodePayload(jobs.JobBookingConfirmation, jobs.BookingConfirmationPayload{
		BookingID:   "6f1c2b7e-3d1a-4c55-9a0e-1f2b3c4d5e6f",
		Email:       "ana@example.com",
		Name:        "Ana",
		ServiceName: "Haircut",
		StartAt:     time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	j := job.New(job.CreateRequest{
		Type:        string(jobs.JobBookingConfirmation),
		Payload:     payload,
		MaxAttempts: maxAttempts,
	})
	j.Attempts = attempts
	return j
}

func lowStockProduct() product.Product {
	return product.Product{
		ID:                "0b6f5a1e-8c1d-4e2f-9a3b-7c6d5e4f3a2b",
		SKU:               "SHAMPOO-250",
		Name:              "Shampoo 250ml",
		Stock:             2,
		LowStockThreshold: 5,
		Active:            true,
	}
}

func newTestWorker(repo *fakeJobs, ledger *fakeLedger, n *fakeNotifier, s fakeSettings) *Worker {
	w := New(Config{WorkerID: "w-test", PollInterval: 5 * time.Millisecond}, Deps{
		Jobs:       repo,
		Deliveries: ledger,
		Settings:   s,
		Notifier:   n,
		Log:        observability.NopLogger(),
	})
	w.backoff = func(int) time.Duration { return time.Minute }
	w.now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	return w
}

func TestProcessOne_EmptyQueue(t *testing.T) {
	w := newTestWorker(newFakeJobs(), newFakeLedger(), &fakeNotifier{}, nil)

	processed, err := w.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestProcessOne_BookingConfirmationSent(t *testing.T) {
	j := bookingJob(t, 0, 8)
	repo, ledger, n := newFakeJobs(j), newFakeLedger(), &fakeNotifier{}
	w := newTestWorker(repo, ledger, n, fakeSettings{setting.KeyTimezone: "Europe/Lisbon"})

	processed, err := w.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)

	assert.Equal(t, job.StatusDone, repo.get(j.ID).status)
	require.Len(t, n.bookings, 1)
	assert.Equal(t, "Europe/Lisbon", n.bookings[0].Timezone)
	assert.Equal(t, "m-booking", ledger.sent[deliveryBookingConfirmation+"/6f1c2b7e-3d1a-4c55-9a0e-1f2b3c4d5e6f"])
	assert.Equal(t, uint64(1), w.Metrics().Snapshot().Done)
}

func TestProcessOne_AlreadySentIsNotResent(t *testing.T) {
	j := bookingJob(t, 0, 8)
	repo, ledger, n := newFakeJobs(j), newFakeLedger(), &fakeNotifier{}
	ledger.sent[deliveryBookingConfirmation+"/6f1c2b7e-3d1a-4c55-9a0e-1f2b3c4d5e6f"] = "earlier"
	w := newTestWorker(repo, ledger, n, nil)

	_, err := w.ProcessOne(context.Background())
	require.NoError(t, err)

	assert.Equal(t, job.StatusDone, repo.get(j.ID).status)
	assert.Empty(t, n.bookings)
}

func TestProcessOne_FailureReschedulesWithBackoff(t *testing.T) {
	j := bookingJob(t, 1, 8)
	repo, ledger := newFakeJobs(j), newFakeLedger()
	w := newTestWorker(repo, ledger, &fakeNotifier{err: errors.New("smtp down")}, nil)

	processed, err := w.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)

	got := repo.get(j.ID)
	assert.Equal(t, job.StatusPending, got.status)
	assert.Equal(t, time.Date(2024, 1, 1, 12, 1, 0, 0, time.UTC), got.runAt)
	assert.Equal(t, "smtp down", got.errMsg)
	assert.NotEmpty(t, ledger.failed)
	assert.Equal(t, uint64(1), w.Metrics().Snapshot().Retried)
}

func TestProcessOne_LastAttemptDeadLetters(t *testing.T) {
	j := bookingJob(t, 7, 8)
	repo := newFakeJobs(j)
	w := newTestWorker(repo, newFakeLedger(), &fakeNotifier{err: errors.New("smtp down")}, nil)

	_, err := w.ProcessOne(context.Background())
	require.NoError(t, err)

	assert.Equal(t, job.StatusFailed, repo.get(j.ID).status)
	assert.Equal(t, uint64(1), w.Metrics().Snapshot().DeadLettered)
}

func TestProcessOne_BadPayloadFailsImmediately(t *testing.T) {
	j := job.New(job.CreateRequest{
		Type:        string(jobs.JobLowStockAlert),
		Payload:     json.RawMessage(`{"productId":""}`),
		MaxAttempts: 5,
	})
	repo := newFakeJobs(j)
	w := newTestWorker(repo, newFakeLedger(), &fakeNotifier{}, nil)

	_, err := w.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, repo.get(j.ID).status)
}

func TestProcessOne_LowStockWithoutContactIsSkipped(t *testing.T) {
	req, err := jobs.NewLowStockAlert(lowStockProduct(), time.Now(), nil)
	require.NoError(t, err)
	j := job.New(req)

	repo, n := newFakeJobs(j), &fakeNotifier{}
	w := newTestWorker(repo, newFakeLedger(), n, fakeSettings{})

	_, err = w.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.Equal(t, job.StatusDone, repo.get(j.ID).status)
	assert.Empty(t, n.alerts)
}

func TestProcessOne_LowStockKeyedByIdempotencyKey(t *testing.T) {
	req, err := jobs.NewLowStockAlert(lowStockProduct(), time.Now(), nil)
	require.NoError(t, err)
	j := job.New(req)

	repo, ledger, n := newFakeJobs(j), newFakeLedger(), &fakeNotifier{}
	w := newTestWorker(repo, ledger, n, fakeSettings{setting.KeyContactEmail: "owner@shop.example"})

	_, err = w.ProcessOne(context.Background())
	require.NoError(t, err)

	require.Len(t, n.alerts, 1)
	assert.Equal(t, "owner@shop.example", n.alerts[0].Recipient)
	assert.Contains(t, ledger.sent, deliveryLowStock+"/"+*j.IdempotencyKey)
}

func TestRun_DrainsQueueAndStops(t *testing.T) {
	repo := newFakeJobs(bookingJob(t, 0, 8), bookingJob(t, 0, 8))
	w := newTestWorker(repo, newFakeLedger(), &fakeNotifier{}, nil)
	w.cfg.Concurrency = 2

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		return w.Metrics().Snapshot().Done == 2
	}, time.Second, 5*time.Millisecond)
	assert.True(t, w.Ready())

	cancel()
	require.NoError(t, <-done)
	assert.False(t, w.Ready())
}

func TestExponentialBackoff(t *testing.T) {
	d := ExponentialBackoff(0)
	assert.GreaterOrEqual(t, d, 2*time.Second)
	assert.Less(t, d, 2*time.Second+250*time.Millisecond)

	d = ExponentialBackoff(3)
	assert.GreaterOrEqual(t, d, 16*time.Second)

	d = ExponentialBackoff(100)
	assert.GreaterOrEqual(t, d, 5*time.Minute)
	assert.Less(t, d, 5*time.Minute+250*time.Millisecond)
}

type pingErr struct{ err error }

func (p pingErr) Ping(context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	repo := newFakeJobs()
	w := newTestWorker(repo, newFakeLedger(), &fakeNotifier{}, nil)
	h := w.HealthHandler(HealthDeps{
		DB:      pingErr{},
		Counter: repo,
		Breaker: func() string { return "closed" },
	})

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	assert.Equal(t, http.StatusOK, get("/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get("/readyz").Code)

	w.ready.Store(true)
	assert.Equal(t, http.StatusOK, get("/readyz").Code)

	rec := get("/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		WorkerID        string         `json:"workerId"`
		Queue           map[string]int `json:"queue"`
		NotifierCircuit string         `json:"notifierCircuit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "w-test", body.WorkerID)
	assert.Equal(t, 2, body.Queue["pending"])
	assert.Equal(t, "closed", body.NotifierCircuit)

	h = w.HealthHandler(HealthDeps{DB: pingErr{err: errors.New("down")}})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
