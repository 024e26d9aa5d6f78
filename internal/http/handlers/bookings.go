package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/geocoder89/backoffice/internal/domain/activity"
	"github.com/geocoder89/backoffice/internal/domain/booking"
	"github.com/geocoder89/backoffice/internal/domain/catalog"
	"github.com/geocoder89/backoffice/internal/repo/postgres"
	"github.com/geocoder89/backoffice/internal/rowquery"
	"github.com/gin-gonic/gin"
)

type BookingsStore interface {
	List(ctx context.Context, q rowquery.Query, w booking.CalendarWindow) ([]booking.Booking, int, error)
	GetByID(ctx context.Context, id string) (booking.Booking, error)
	Create(ctx context.Context, req booking.CreateBookingRequest) (booking.Booking, error)
	Update(ctx context.Context, id string, req booking.UpdateBookingRequest) (booking.Booking, error)
	ChangeStatus(ctx context.Context, id string, req booking.StatusChangeRequest) (booking.Booking, booking.Status, error)
	Delete(ctx context.Context, id string) error
}

type BookingsHandler struct {
	bookings BookingsStore
	settings SettingsReader
	audit    ActivityRecorder
}

func NewBookingsHandler(bookings BookingsStore, settings SettingsReader, audit ActivityRecorder) *BookingsHandler {
	return &BookingsHandler{bookings: bookings, settings: settings, audit: audit}
}

// onSlot rejects start times that do not fall on the configured booking
// slot grid, counted in the business timezone.
func (h *BookingsHandler) onSlot(ctx *gin.Context, cctx context.Context, start time.Time) bool {
	s, err := currentSettings(cctx, h.settings)
	if err != nil {
		RespondInternal(ctx, "Could not load settings")
		return false
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		loc = time.UTC
	}
	if !booking.OnSlotBoundary(start, s.BookingSlotMinutes, loc) {
		RespondError(ctx, http.StatusUnprocessableEntity, "slot_misaligned",
			fmt.Sprintf("startAt must fall on a %d minute slot boundary.", s.BookingSlotMinutes),
			gin.H{"slotMinutes": s.BookingSlotMinutes})
		return false
	}
	return true
}

func (h *BookingsHandler) respondErr(ctx *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, booking.ErrNotFound):
		RespondNotFound(ctx, "Booking not found")
	case errors.Is(err, catalog.ErrNotFound):
		RespondError(ctx, http.StatusUnprocessableEntity, "service_not_found", "Service does not exist.", nil)
	case errors.Is(err, booking.ErrServiceUnavailable):
		RespondConflict(ctx, "service_unavailable", "Service is not active.")
	case errors.Is(err, booking.ErrSlotTaken):
		RespondConflict(ctx, "slot_taken", "That time slot is already booked.")
	case errors.Is(err, booking.ErrInvalidTransition):
		RespondConflict(ctx, "invalid_transition", "Booking cannot move to that status.")
	case errors.Is(err, booking.ErrClosed):
		RespondConflict(ctx, "booking_closed", "Booking can no longer be changed.")
	default:
		RespondInternal(ctx, fallback)
	}
}

// GET /bookings?from=&to=
func (h *BookingsHandler) List(ctx *gin.Context) {
	q, ok := parseQuery(ctx, postgres.BookingSchema, "from", "to")
	if !ok {
		return
	}

	from, ok := optionalTime(ctx, "from")
	if !ok {
		return
	}
	to, ok := optionalTime(ctx, "to")
	if !ok {
		return
	}
	if from != nil && to != nil && !from.Before(*to) {
		RespondInvalidQuery(ctx, "from must be before to")
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	items, total, err := h.bookings.List(cctx, q, booking.CalendarWindow{From: from, To: to})
	if err != nil {
		RespondInternal(ctx, "Could not list bookings")
		return
	}

	RespondPage(ctx, items, total, q.Limit, q.Offset)
}

// GET /bookings/:id
func (h *BookingsHandler) Get(ctx *gin.Context) {
	id, ok := validID(ctx, "id")
	if !ok {
		return
	}

	cctx, cancel := withTimeout(ctx, 2*time.Second)
	defer cancel()

	b, err := h.bookings.GetByID(cctx, id)
	if err != nil {
		h.respondErr(ctx, err, "Could not fetch booking")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, b)
}

// POST /bookings
func (h *BookingsHandler) Create(ctx *gin.Context) {
	var req booking.CreateBookingRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	if !h.onSlot(ctx, cctx, req.StartAt) {
		return
	}

	b, err := h.bookings.Create(cctx, req)
	if err != nil {
		h.respondErr(ctx, err, "Could not create booking")
		return
	}

	h.audit.Record(cctx, activity.ActionCreate, activity.EntityBooking, b.ID, gin.H{
		"serviceId": b.ServiceID,
		"startAt":   b.StartAt,
		"status":    b.Status,
	})
	ctx.JSON(http.StatusCreated, b)
}

// PUT /bookings/:id
func (h *BookingsHandler) Update(ctx *gin.Context) {
	id, ok := validID(ctx, "id")
	if !ok {
		return
	}

	var req booking.UpdateBookingRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	if !h.onSlot(ctx, cctx, req.StartAt) {
		return
	}

	b, err := h.bookings.Update(cctx, id, req)
	if err != nil {
		h.respondErr(ctx, err, "Could not update booking")
		return
	}

	h.audit.Record(cctx, activity.ActionUpdate, activity.EntityBooking, b.ID, gin.H{"startAt": b.StartAt, "endAt": b.EndAt})
	ctx.JSON(http.StatusOK, b)
}

// PATCH /bookings/:id/status
func (h *BookingsHandler) ChangeStatus(ctx *gin.Context) {
	id, ok := validID(ctx, "id")
	if !ok {
		return
	}

	var req booking.StatusChangeRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	b, from, err := h.bookings.ChangeStatus(cctx, id, req)
	if err != nil {
		h.respondErr(ctx, err, "Could not change booking status")
		return
	}

	details := gin.H{"from": from, "to": b.Status}
	if req.Reason != "" {
		details["reason"] = req.Reason
	}
	h.audit.Record(cctx, activity.ActionStatusChange, activity.EntityBooking, b.ID, details)
	ctx.JSON(http.StatusOK, b)
}

// DELETE /bookings/:id
func (h *BookingsHandler) Delete(ctx *gin.Context) {
	id, ok := validID(ctx, "id")
	if !ok {
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := h.bookings.Delete(cctx, id); err != nil {
		h.respondErr(ctx, err, "Could not delete booking")
		return
	}

	h.audit.Record(cctx, activity.ActionDelete, activity.EntityBooking, id, nil)
	ctx.Status(http.StatusNoContent)
}
