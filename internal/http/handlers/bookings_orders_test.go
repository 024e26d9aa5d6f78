package handlers_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/geocoder89/backoffice/internal/domain/activity"
	"github.com/geocoder89/backoffice/internal/domain/booking"
	"github.com/geocoder89/backoffice/internal/domain/catalog"
	"github.com/geocoder89/backoffice/internal/domain/order"
	"github.com/geocoder89/backoffice/internal/domain/product"
	"github.com/geocoder89/backoffice/internal/domain/setting"
	"github.com/geocoder89/backoffice/internal/http/handlers"
	"github.com/geocoder89/backoffice/internal/rowquery"
	"github.com/gin-gonic/gin"
)

type fakeBookings struct {
	window    booking.CalendarWindow
	query     rowquery.Query
	items     []booking.Booking
	createErr error
	statusErr error
	current   booking.Booking
}

func (f *fakeBookings) List(_ context.Context, q rowquery.Query, w booking.CalendarWindow) ([]booking.Booking, int, error) {
	f.query, f.window = q, w
	return f.items, len(f.items), nil
}

func (f *fakeBookings) GetByID(_ context.Context, id string) (booking.Booking, error) {
	if f.current.ID != id {
		return booking.Booking{}, booking.ErrNotFound
	}
	return f.current, nil
}

func (f *fakeBookings) Create(_ context.Context, req booking.CreateBookingRequest) (booking.Booking, error) {
	if f.createErr != nil {
		return booking.Booking{}, f.createErr
	}
	return booking.Booking{ID: someID, ServiceID: &req.ServiceID, StartAt: req.StartAt, Status: booking.StatusPending}, nil
}

func (f *fakeBookings) Update(_ context.Context, id string, req booking.UpdateBookingRequest) (booking.Booking, error) {
	if f.current.Status.IsTerminal() {
		return booking.Booking{}, booking.ErrClosed
	}
	f.current.StartAt = req.StartAt
	return f.current, nil
}

func (f *fakeBookings) ChangeStatus(_ context.Context, id string, req booking.StatusChangeRequest) (booking.Booking, booking.Status, error) {
	if f.statusErr != nil {
		return booking.Booking{}, "", f.statusErr
	}
	from := f.current.Status
	if !booking.CanTransition(from, req.Status) {
		return booking.Booking{}, "", booking.ErrInvalidTransition
	}
	f.current.Status = req.Status
	return f.current, from, nil
}

func (f *fakeBookings) Delete(_ context.Context, id string) error {
	if f.current.ID != id {
		return booking.ErrNotFound
	}
	return nil
}

func bookingsRouter(store handlers.BookingsStore, settings handlers.SettingsReader, audit *fakeAudit) *gin.Engine {
	h := handlers.NewBookingsHandler(store, settings, audit)
	r := gin.New()
	r.Use(as(staffID, "staff"))
	r.GET("/bookings", h.List)
	r.GET("/bookings/:id", h.Get)
	r.POST("/bookings", h.Create)
	r.PUT("/bookings/:id", h.Update)
	r.PATCH("/bookings/:id/status", h.ChangeStatus)
	r.DELETE("/bookings/:id", h.Delete)
	return r
}

func TestBookingsList_PassesCalendarWindow(t *testing.T) {
	store := &fakeBookings{items: []booking.Booking{{ID: someID}}}
	r := bookingsRouter(store, nil, &fakeAudit{})

	w := do(r, http.MethodGet, "/bookings?from=2026-03-01&to=2026-03-08T00:00:00Z&status=eq.confirmed", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d body=%s", w.Code, w.Body.String())
	}
	if store.window.From == nil || !store.window.From.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("from not parsed: %+v", store.window.From)
	}
	if store.window.To == nil || store.window.To.Day() != 8 {
		t.Fatalf("to not parsed: %+v", store.window.To)
	}
	if len(store.query.Predicates) != 1 || store.query.Predicates[0].Column != "status" {
		t.Fatalf("status filter lost: %+v", store.query.Predicates)
	}
	if w.Header().Get("X-Total-Count") != "1" || w.Header().Get("ETag") == "" {
		t.Fatalf("missing list headers: %v", w.Header())
	}
}

func TestBookingsList_RejectsBadWindowAndFilters(t *testing.T) {
	r := bookingsRouter(&fakeBookings{}, nil, &fakeAudit{})

	for _, target := range []string{
		"/bookings?from=2026-03-08&to=2026-03-01",
		"/bookings?from=yesterday",
		"/bookings?bogus=eq.1",
	} {
		w := do(r, http.MethodGet, target, nil)
		if w.Code != http.StatusBadRequest || errorCode(t, w) != "invalid_query" {
			t.Fatalf("%s: got %d body=%s", target, w.Code, w.Body.String())
		}
	}
}

func TestBookingsCreate_MapsErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{catalog.ErrNotFound, http.StatusUnprocessableEntity, "service_not_found"},
		{booking.ErrServiceUnavailable, http.StatusConflict, "service_unavailable"},
		{booking.ErrSlotTaken, http.StatusConflict, "slot_taken"},
	}

	body := map[string]any{
		"serviceId":    someID,
		"customerName": "Ann Lee",
		"startAt":      "2026-03-02T10:00:00Z",
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			audit := &fakeAudit{}
			r := bookingsRouter(&fakeBookings{createErr: tt.err}, nil, audit)

			w := do(r, http.MethodPost, "/bookings", body)
			if w.Code != tt.status || errorCode(t, w) != tt.code {
				t.Fatalf("got %d body=%s", w.Code, w.Body.String())
			}
			if audit.count() != 0 {
				t.Fatalf("failed create was audited")
			}
		})
	}
}

func TestBookingsCreate_RecordsActivity(t *testing.T) {
	audit := &fakeAudit{}
	r := bookingsRouter(&fakeBookings{}, nil, audit)

	w := do(r, http.MethodPost, "/bookings", map[string]any{
		"serviceId":    someID,
		"customerName": "Ann Lee",
		"startAt":      "2026-03-02T10:00:00Z",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("got %d body=%s", w.Code, w.Body.String())
	}

	got := audit.last(t)
	if got.Action != activity.ActionCreate || got.Entity != activity.EntityBooking || got.Actor.UserID != staffID {
		t.Fatalf("unexpected audit %+v", got)
	}
}

func TestBookingsChangeStatus(t *testing.T) {
	audit := &fakeAudit{}
	store := &fakeBookings{current: booking.Booking{ID: someID, Status: booking.StatusPending}}
	r := bookingsRouter(store, nil, audit)

	w := do(r, http.MethodPatch, "/bookings/"+someID+"/status", map[string]string{"status": "confirmed"})
	if w.Code != http.StatusOK {
		t.Fatalf("got %d body=%s", w.Code, w.Body.String())
	}
	details := audit.last(t).Details.(gin.H)
	if details["from"] != booking.StatusPending || details["to"] != booking.StatusConfirmed {
		t.Fatalf("unexpected details %+v", details)
	}

	w = do(r, http.MethodPatch, "/bookings/"+someID+"/status", map[string]string{"status": "pending"})
	if w.Code != http.StatusConflict || errorCode(t, w) != "invalid_transition" {
		t.Fatalf("got %d body=%s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodPatch, "/bookings/"+someID+"/status", map[string]string{"status": "archived"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown status accepted: %d", w.Code)
	}
}

func TestBookingsUpdate_ClosedBooking(t *testing.T) {
	store := &fakeBookings{current: booking.Booking{ID: someID, Status: booking.StatusCompleted}}
	r := bookingsRouter(store, nil, &fakeAudit{})

	w := do(r, http.MethodPut, "/bookings/"+someID, map[string]any{
		"customerName": "Ann Lee",
		"startAt":      "2026-03-02T11:00:00Z",
	})
	if w.Code != http.StatusConflict || errorCode(t, w) != "booking_closed" {
		t.Fatalf("got %d body=%s", w.Code, w.Body.String())
	}
}

func TestBookingsGetAndDelete(t *testing.T) {
	store := &fakeBookings{current: booking.Booking{ID: someID, Status: booking.StatusPending}}
	r := bookingsRouter(store, nil, &fakeAudit{})

	if w := do(r, http.MethodGet, "/bookings/not-a-uuid", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id: got %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/bookings/"+staffID, nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing: got %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/bookings/"+someID, nil); w.Code != http.StatusOK {
		t.Fatalf("get: got %d", w.Code)
	}
	if w := do(r, http.MethodDelete, "/bookings/"+someID, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete: got %d", w.Code)
	}
}

type fakeSettings struct {
	s   setting.Settings
	err error
}

func (f fakeSettings) Current(context.Context) (setting.Settings, error) { return f.s, f.err }

func TestBookings_StartMustFallOnSlot(t *testing.T) {
	s := setting.Defaults()
	s.BookingSlotMinutes = 45
	s.Timezone = "Europe/Berlin"
	store := &fakeBookings{current: booking.Booking{ID: someID, Status: booking.StatusPending}}
	r := bookingsRouter(store, fakeSettings{s: s}, &fakeAudit{})

	// 10:00 UTC is 11:00 in Berlin, minute 660 of the day, not a multiple of 45
	w := do(r, http.MethodPost, "/bookings", map[string]any{
		"serviceId":    someID,
		"customerName": "Ann Lee",
		"startAt":      "2026-03-02T10:00:00Z",
	})
	if w.Code != http.StatusUnprocessableEntity || errorCode(t, w) != "slot_misaligned" {
		t.Fatalf("create: got %d body=%s", w.Code, w.Body.String())
	}

	// 11:15 Berlin is minute 675
	w = do(r, http.MethodPost, "/bookings", map[string]any{
		"serviceId":    someID,
		"customerName": "Ann Lee",
		"startAt":      "2026-03-02T10:15:00Z",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("aligned create: got %d body=%s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodPut, "/bookings/"+someID, map[string]any{
		"customerName": "Ann Lee",
		"startAt":      "2026-03-02T10:20:00Z",
	})
	if w.Code != http.StatusUnprocessableEntity || errorCode(t, w) != "slot_misaligned" {
		t.Fatalf("update: got %d body=%s", w.Code, w.Body.String())
	}
}

func TestBookings_SettingsUnavailable(t *testing.T) {
	r := bookingsRouter(&fakeBookings{}, fakeSettings{err: context.DeadlineExceeded}, &fakeAudit{})

	w := do(r, http.MethodPost, "/bookings", map[string]any{
		"serviceId":    someID,
		"customerName": "Ann Lee",
		"startAt":      "2026-03-02T10:00:00Z",
	})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("got %d body=%s", w.Code, w.Body.String())
	}
}

type fakeOrders struct {
	createErr error
	deleteErr error
	current   order.Order
	from, to  *time.Time
}

func (f *fakeOrders) List(_ context.Context, _ rowquery.Query, from, to *time.Time) ([]order.Order, int, error) {
	f.from, f.to = from, to
	return nil, 0, nil
}

func (f *fakeOrders) GetByID(_ context.Context, id string) (order.Order, error) {
	if f.current.ID != id {
		return order.Order{}, order.ErrNotFound
	}
	return f.current, nil
}

func (f *fakeOrders) Create(_ context.Context, req order.CreateOrderRequest) (order.Order, error) {
	if f.createErr != nil {
		return order.Order{}, f.createErr
	}
	pid := req.ProductID
	return order.Order{ID: someID, ProductID: &pid, Quantity: req.Quantity, UnitPriceCents: 250, TotalCents: 250 * int64(req.Quantity), Status: order.StatusPending}, nil
}

func (f *fakeOrders) ChangeStatus(_ context.Context, id string, to order.Status) (order.Order, order.Status, error) {
	from := f.current.Status
	if !order.CanTransition(from, to) {
		return order.Order{}, "", order.ErrInvalidTransition
	}
	f.current.Status = to
	return f.current, from, nil
}

func (f *fakeOrders) Delete(_ context.Context, id string) error { return f.deleteErr }

func ordersRouter(store handlers.OrdersStore, audit *fakeAudit) *gin.Engine {
	h := handlers.NewOrdersHandler(store, audit)
	r := gin.New()
	r.Use(as(staffID, "staff"))
	r.GET("/orders", h.List)
	r.GET("/orders/:id", h.Get)
	r.POST("/orders", h.Create)
	r.PATCH("/orders/:id/status", h.ChangeStatus)
	r.DELETE("/orders/:id", h.Delete)
	return r
}

func TestOrdersCreate_MapsErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{product.ErrNotFound, http.StatusUnprocessableEntity, "product_not_found"},
		{product.ErrInactive, http.StatusConflict, "product_inactive"},
		{product.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			r := ordersRouter(&fakeOrders{createErr: tt.err}, &fakeAudit{})
			w := do(r, http.MethodPost, "/orders", map[string]any{"productId": someID, "customerName": "Bo Chen", "quantity": 3})
			if w.Code != tt.status || errorCode(t, w) != tt.code {
				t.Fatalf("got %d body=%s", w.Code, w.Body.String())
			}
		})
	}
}

func TestOrdersCreate_Succeeds(t *testing.T) {
	audit := &fakeAudit{}
	r := ordersRouter(&fakeOrders{}, audit)

	w := do(r, http.MethodPost, "/orders", map[string]any{"productId": someID, "customerName": "Bo Chen", "quantity": 3})
	if w.Code != http.StatusCreated {
		t.Fatalf("got %d body=%s", w.Code, w.Body.String())
	}
	if o := decode[order.Order](t, w); o.TotalCents != 750 {
		t.Fatalf("unexpected order %+v", o)
	}
	if got := audit.last(t); got.Entity != activity.EntityOrder || got.Action != activity.ActionCreate {
		t.Fatalf("unexpected audit %+v", got)
	}
}

func TestOrdersChangeStatus_RecordsStockRestore(t *testing.T) {
	audit := &fakeAudit{}
	r := ordersRouter(&fakeOrders{current: order.Order{ID: someID, Status: order.StatusPaid}}, audit)

	w := do(r, http.MethodPatch, "/orders/"+someID+"/status", map[string]string{"status": "refunded"})
	if w.Code != http.StatusOK {
		t.Fatalf("got %d body=%s", w.Code, w.Body.String())
	}
	details := audit.last(t).Details.(gin.H)
	if details["stockRestored"] != true || details["from"] != order.StatusPaid {
		t.Fatalf("unexpected details %+v", details)
	}

	w = do(r, http.MethodPatch, "/orders/"+someID+"/status", map[string]string{"status": "shipped"})
	if w.Code != http.StatusConflict || errorCode(t, w) != "invalid_transition" {
		t.Fatalf("got %d body=%s", w.Code, w.Body.String())
	}
}

func TestOrdersDelete_ActiveOrder(t *testing.T) {
	r := ordersRouter(&fakeOrders{deleteErr: order.ErrActive}, &fakeAudit{})

	w := do(r, http.MethodDelete, "/orders/"+someID, nil)
	if w.Code != http.StatusConflict || errorCode(t, w) != "order_active" {
		t.Fatalf("got %d body=%s", w.Code, w.Body.String())
	}
}

func TestOrdersList_EmptyPage(t *testing.T) {
	store := &fakeOrders{}
	r := ordersRouter(store, &fakeAudit{})

	w := do(r, http.MethodGet, "/orders?from=2026-01-01", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d body=%s", w.Code, w.Body.String())
	}
	page := decode[handlers.Page[order.Order]](t, w)
	if page.Items == nil || page.Total != 0 || page.Limit == 0 {
		t.Fatalf("unexpected page %+v", page)
	}
	if store.from == nil || store.to != nil {
		t.Fatalf("window not passed through")
	}
}
