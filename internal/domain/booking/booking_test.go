package booking

import (
	"testing"
	"time"

	"github.com/geocoder89/backoffice/internal/domain/catalog"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusNoShow, true},
		{StatusConfirmed, StatusPending, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusCompleted, StatusCancelled, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Fatalf("%s -> %s: got %v want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusCancelled, StatusNoShow} {
		if !s.IsTerminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusConfirmed} {
		if s.IsTerminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}

func TestNewFromCreateRequest_EndFromServiceDuration(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.FixedZone("X", 3600))
	svc := catalog.Service{ID: "svc-1", Name: "Haircut", DurationMinutes: 45}

	b := NewFromCreateRequest(CreateBookingRequest{
		ServiceID:    "svc-1",
		CustomerName: "Ada",
		StartAt:      start,
	}, svc)

	if b.Status != StatusPending {
		t.Fatalf("status = %s", b.Status)
	}
	if !b.EndAt.Equal(start.Add(45 * time.Minute)) {
		t.Fatalf("end = %s", b.EndAt)
	}
	if b.StartAt.Location() != time.UTC {
		t.Fatalf("start should be stored in UTC")
	}
	if b.ServiceName != "Haircut" {
		t.Fatalf("service name snapshot missing")
	}
}

func TestOnSlotBoundary(t *testing.T) {
	kolkata := time.FixedZone("IST", 5*3600+1800)

	tests := []struct {
		name string
		at   time.Time
		slot int
		loc  *time.Location
		want bool
	}{
		{"on the hour", time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), 30, time.UTC, true},
		{"half past", time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC), 30, time.UTC, true},
		{"quarter past", time.Date(2026, 3, 2, 10, 15, 0, 0, time.UTC), 30, time.UTC, false},
		{"stray seconds", time.Date(2026, 3, 2, 10, 0, 5, 0, time.UTC), 30, time.UTC, false},
		{"counted in local time", time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC), 60, kolkata, false},
		{"local hour", time.Date(2026, 3, 2, 4, 30, 0, 0, time.UTC), 60, kolkata, true},
		{"no slot size", time.Date(2026, 3, 2, 10, 7, 0, 0, time.UTC), 0, time.UTC, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OnSlotBoundary(tt.at, tt.slot, tt.loc); got != tt.want {
				t.Fatalf("OnSlotBoundary(%s, %d) = %v, want %v", tt.at, tt.slot, got, tt.want)
			}
		})
	}
}
