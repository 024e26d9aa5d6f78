package booking

import (
	"errors"
	"strings"
	"time"

	"github.com/geocoder89/backoffice/internal/domain/catalog"
	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusNoShow},
}

// CanTransition reports whether a booking may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal bookings can no longer be edited or moved.
func (s Status) IsTerminal() bool {
	_, open := transitions[s]
	return !open
}

type Booking struct {
	ID            string    `json:"id"`
	ServiceID     *string   `json:"serviceId"`
	ServiceName   string    `json:"serviceName"`
	CustomerName  string    `json:"customerName"`
	CustomerEmail string    `json:"customerEmail,omitempty"`
	CustomerPhone string    `json:"customerPhone,omitempty"`
	StartAt       time.Time `json:"startAt"`
	EndAt         time.Time `json:"endAt"`
	Status        Status    `json:"status"`
	Notes         string    `json:"notes,omitempty"`
	CancelReason  string    `json:"cancelReason,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

var (
	ErrNotFound           = errors.New("booking not found")
	ErrSlotTaken          = errors.New("time slot is already booked")
	ErrInvalidTransition  = errors.New("invalid booking status transition")
	ErrServiceUnavailable = errors.New("service is not available for booking")
	ErrClosed             = errors.New("booking can no longer be changed")
)

// OnSlotBoundary reports whether t starts a slot of slotMinutes counted from
// midnight in loc. A non-positive slot size accepts any time.
func OnSlotBoundary(t time.Time, slotMinutes int, loc *time.Location) bool {
	if slotMinutes <= 0 {
		return true
	}
	if loc != nil {
		t = t.In(loc)
	}
	if t.Second() != 0 || t.Nanosecond() != 0 {
		return false
	}
	return (t.Hour()*60+t.Minute())%slotMinutes == 0
}

type CreateBookingRequest struct {
	ServiceID     string    `json:"serviceId" binding:"required,uuid"`
	CustomerName  string    `json:"customerName" binding:"required,min=2,max=120"`
	CustomerEmail string    `json:"customerEmail" binding:"omitempty,email"`
	CustomerPhone string    `json:"customerPhone" binding:"omitempty,max=40"`
	StartAt       time.Time `json:"startAt" binding:"required"`
	Notes         string    `json:"notes" binding:"omitempty,max=1000"`
	Status        Status    `json:"status" binding:"omitempty,oneof=pending confirmed"`
}

type UpdateBookingRequest struct {
	CustomerName  string    `json:"customerName" binding:"required,min=2,max=120"`
	CustomerEmail string    `json:"customerEmail" binding:"omitempty,email"`
	CustomerPhone string    `json:"customerPhone" binding:"omitempty,max=40"`
	StartAt       time.Time `json:"startAt" binding:"required"`
	Notes         string    `json:"notes" binding:"omitempty,max=1000"`
}

type StatusChangeRequest struct {
	Status Status `json:"status" binding:"required,oneof=pending confirmed completed cancelled no_show"`
	Reason string `json:"reason" binding:"omitempty,max=300"`
}

// CalendarWindow restricts a listing to bookings overlapping [From, To).
type CalendarWindow struct {
	From *time.Time
	To   *time.Time
}

func NewFromCreateRequest(req CreateBookingRequest, svc catalog.Service) Booking {
	now := time.Now().UTC()

	status := req.Status
	if status == "" {
		status = StatusPending
	}

	start := req.StartAt.UTC()

	return Booking{
		ID:            uuid.NewString(),
		ServiceID:     &svc.ID,
		ServiceName:   svc.Name,
		CustomerName:  strings.TrimSpace(req.CustomerName),
		CustomerEmail: strings.TrimSpace(req.CustomerEmail),
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		StartAt:       start,
		EndAt:         start.Add(svc.Duration()),
		Status:        status,
		Notes:         req.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
