package jobs

import (
	"time"

	"github.com/geocoder89/backoffice/internal/domain/booking"
	"github.com/geocoder89/backoffice/internal/domain/job"
	"github.com/geocoder89/backoffice/internal/domain/product"
	"github.com/geocoder89/backoffice/internal/utils"
)

// NewLowStockAlert builds the queue request for a product at or under its
// threshold. The idempotency key limits alerts to one per product per day.
func NewLowStockAlert(p product.Product, now time.Time, actorID *string) (job.CreateRequest, error) {
	payload, err := EncodePayload(JobLowStockAlert, LowStockAlertPayload{
		ProductID: p.ID,
		SKU:       p.SKU,
		Name:      p.Name,
		Stock:     p.Stock,
		Threshold: p.LowStockThreshold,
	})
	if err != nil {
		return job.CreateRequest{}, err
	}

	key := utils.LowStockIdempotencyKey(p.ID, now)
	return job.CreateRequest{
		Type:           string(JobLowStockAlert),
		Payload:        payload,
		RunAt:          now,
		MaxAttempts:    5,
		IdempotencyKey: &key,
		Priority:       PriorityLowStockAlert,
		UserID:         actorID,
	}, nil
}

func NewBookingConfirmation(b booking.Booking, actorID *string) (job.CreateRequest, error) {
	payload, err := EncodePayload(JobBookingConfirmation, BookingConfirmationPayload{
		BookingID:   b.ID,
		Email:       b.CustomerEmail,
		Name:        b.CustomerName,
		ServiceName: b.ServiceName,
		StartAt:     b.StartAt,
	})
	if err != nil {
		return job.CreateRequest{}, err
	}

	key := utils.BookingConfirmationIdempotencyKey(b.ID)
	return job.CreateRequest{
		Type:           string(JobBookingConfirmation),
		Payload:        payload,
		MaxAttempts:    8,
		IdempotencyKey: &key,
		Priority:       PriorityBookingConfirmation,
		UserID:         actorID,
	}, nil
}
