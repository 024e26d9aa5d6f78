package integration__test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/backoffice/internal/notifications"
	"github.com/geocoder89/backoffice/internal/queue/worker"
	"github.com/geocoder89/backoffice/internal/repo/postgres"
)

type recordingNotifier struct {
	mu       sync.Mutex
	lowStock []notifications.LowStockAlertInput
	bookings []notifications.BookingConfirmationInput
}

func (n *recordingNotifier) SendLowStockAlert(_ context.Context, in notifications.LowStockAlertInput) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lowStock = append(n.lowStock, in)
	return "msg-low-stock", nil
}

func (n *recordingNotifier) SendBookingConfirmation(_ context.Context, in notifications.BookingConfirmationInput) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bookings = append(n.bookings, in)
	return "msg-booking", nil
}

func newTestWorker(env testEnv, n notifications.Notifier) *worker.Worker {
	return worker.New(worker.Config{WorkerID: "it-worker"}, worker.Deps{
		Jobs:       postgres.NewJobsRepo(env.pool, nil),
		Deliveries: postgres.NewDeliveriesRepo(env.pool, nil),
		Settings:   postgres.NewSettingsRepo(env.pool, nil),
		Notifier:   n,
	})
}

func drain(t *testing.T, w *worker.Worker) int {
	t.Helper()
	n := 0
	for {
		processed, err := w.ProcessOne(context.Background())
		if err != nil {
			t.Fatalf("process: %v", err)
		}
		if !processed {
			return n
		}
		n++
	}
}

func TestPipeline_OrderDropsStockAndAlertsOnce(t *testing.T) {
	env := setupEnv(t)
	session, _ := login(t, env)
	token := session.AccessToken
	ctx := context.Background()

	rr := doRequest(env.router, http.MethodPut, "/settings", map[string]any{
		"businessName":       "Corner Shop",
		"currency":           "USD",
		"timezone":           "UTC",
		"lowStockThreshold":  5,
		"bookingSlotMinutes": 30,
		"contactEmail":       "owner@example.com",
	}, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("settings: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doRequest(env.router, http.MethodPost, "/products", map[string]any{
		"sku":               "MUG-001",
		"name":              "Coffee mug",
		"priceCents":        1250,
		"stock":             6,
		"lowStockThreshold": 3,
	}, token)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create product: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	prod := mustReadJSON[struct {
		ID    string `json:"id"`
		Stock int    `json:"stock"`
	}](t, rr)

	rr = doRequest(env.router, http.MethodPost, "/orders", map[string]any{
		"productId":    prod.ID,
		"customerName": "Ada Lovelace",
		"quantity":     4,
	}, token)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create order: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	ord := mustReadJSON[struct {
		ID         string `json:"id"`
		TotalCents int64  `json:"totalCents"`
		Status     string `json:"status"`
	}](t, rr)
	if ord.TotalCents != 5000 || ord.Status != "pending" {
		t.Fatalf("unexpected order: %+v", ord)
	}

	// more than what is left is refused and leaves stock alone
	rr = doRequest(env.router, http.MethodPost, "/orders", map[string]any{
		"productId":    prod.ID,
		"customerName": "Charles Babbage",
		"quantity":     3,
	}, token)
	if rr.Code != http.StatusConflict {
		t.Fatalf("oversell: expected 409, got %d", rr.Code)
	}
	if got := mustReadJSON[errorBody](t, rr).Error.Code; got != "insufficient_stock" {
		t.Fatalf("oversell: expected insufficient_stock, got %q", got)
	}

	var stock int
	if err := env.pool.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, prod.ID).Scan(&stock); err != nil {
		t.Fatalf("read stock: %v", err)
	}
	if stock != 2 {
		t.Fatalf("expected stock 2, got %d", stock)
	}

	var pending int
	if err := env.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM jobs WHERE type = 'inventory.low_stock_alert' AND status = 'pending'`).Scan(&pending); err != nil {
		t.Fatalf("count jobs: %v", err)
	}
	if pending != 1 {
		t.Fatalf("expected 1 pending low stock job, got %d", pending)
	}

	notifier := &recordingNotifier{}
	w := newTestWorker(env, notifier)
	if n := drain(t, w); n != 1 {
		t.Fatalf("expected 1 processed job, got %d", n)
	}

	if len(notifier.lowStock) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(notifier.lowStock))
	}
	alert := notifier.lowStock[0]
	if alert.Recipient != "owner@example.com" || alert.SKU != "MUG-001" || alert.Stock != 2 {
		t.Fatalf("unexpected alert: %+v", alert)
	}

	var status, msgID string
	err := env.pool.QueryRow(ctx,
		`SELECT status, provider_message_id FROM notification_deliveries WHERE kind = 'low_stock_alert'`).Scan(&status, &msgID)
	if err != nil {
		t.Fatalf("read delivery: %v", err)
	}
	if status != "sent" || msgID != "msg-low-stock" {
		t.Fatalf("unexpected delivery: status=%s msg=%s", status, msgID)
	}

	// a second drop the same day shares the idempotency key
	rr = doRequest(env.router, http.MethodPost, "/products/"+prod.ID+"/stock",
		map[string]any{"delta": -1, "reason": "breakage"}, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("adjust: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	drain(t, w)
	if len(notifier.lowStock) != 1 {
		t.Fatalf("expected alert to stay deduplicated, got %d", len(notifier.lowStock))
	}

	// cancelling restores stock
	rr = doRequest(env.router, http.MethodPatch, "/orders/"+ord.ID+"/status",
		map[string]string{"status": "cancelled"}, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if err := env.pool.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, prod.ID).Scan(&stock); err != nil {
		t.Fatalf("read stock: %v", err)
	}
	if stock != 5 {
		t.Fatalf("expected stock 5 after cancel, got %d", stock)
	}

	var audited int
	if err := env.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM activity_logs WHERE entity = 'orders'`).Scan(&audited); err != nil {
		t.Fatalf("count activity: %v", err)
	}
	if audited < 2 {
		t.Fatalf("expected order activity to be recorded, got %d rows", audited)
	}
}

func TestPipeline_BookingSlotsAndConfirmation(t *testing.T) {
	env := setupEnv(t)
	session, _ := login(t, env)
	token := session.AccessToken

	rr := doRequest(env.router, http.MethodPost, "/services", map[string]any{
		"name":            "Haircut",
		"priceCents":      3000,
		"durationMinutes": 60,
	}, token)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create service: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	svc := mustReadJSON[struct {
		ID string `json:"id"`
	}](t, rr)

	start := time.Now().UTC().Add(72 * time.Hour).Truncate(time.Hour)

	rr = doRequest(env.router, http.MethodPost, "/bookings", map[string]any{
		"serviceId":     svc.ID,
		"customerName":  "Grace Hopper",
		"customerEmail": "grace@example.com",
		"startAt":       start,
		"status":        "confirmed",
	}, token)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create booking: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}

	// overlaps the first booking by half an hour
	rr = doRequest(env.router, http.MethodPost, "/bookings", map[string]any{
		"serviceId":    svc.ID,
		"customerName": "Alan Turing",
		"startAt":      start.Add(30 * time.Minute),
	}, token)
	if rr.Code != http.StatusConflict {
		t.Fatalf("overlap: expected 409, got %d", rr.Code)
	}
	if got := mustReadJSON[errorBody](t, rr).Error.Code; got != "slot_taken" {
		t.Fatalf("overlap: expected slot_taken, got %q", got)
	}

	// back to back is fine
	rr = doRequest(env.router, http.MethodPost, "/bookings", map[string]any{
		"serviceId":    svc.ID,
		"customerName": "Alan Turing",
		"startAt":      start.Add(time.Hour),
	}, token)
	if rr.Code != http.StatusCreated {
		t.Fatalf("adjacent: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}

	notifier := &recordingNotifier{}
	drain(t, newTestWorker(env, notifier))

	if len(notifier.bookings) != 1 {
		t.Fatalf("expected 1 confirmation, got %d", len(notifier.bookings))
	}
	if got := notifier.bookings[0]; got.Email != "grace@example.com" || got.ServiceName != "Haircut" || !got.StartAt.Equal(start) {
		t.Fatalf("unexpected confirmation: %+v", got)
	}
}
