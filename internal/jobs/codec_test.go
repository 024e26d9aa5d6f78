package jobs

import (
	"testing"
	"time"

	"github.com/geocoder89/backoffice/internal/domain/booking"
	"github.com/geocoder89/backoffice/internal/domain/job"
	"github.com/geocoder89/backoffice/internal/domain/product"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLowStockAlert_EncodeDecode(t *testing.T) {
	p := product.Product{ID: "p-1", SKU: "HAM-01", Name: "Hammer", Stock: 2, LowStockThreshold: 5}
	now := time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)

	req, err := NewLowStockAlert(p, now, nil)
	require.NoError(t, err)
	assert.Equal(t, string(JobLowStockAlert), req.Type)
	require.NotNil(t, req.IdempotencyKey)
	assert.Equal(t, "inventory:low_stock:p-1:2024-06-01", *req.IdempotencyKey)

	decoded, err := DecodePayload(job.New(req))
	require.NoError(t, err)

	got, ok := decoded.(LowStockAlertPayload)
	require.True(t, ok, "got %T", decoded)
	assert.Equal(t, LowStockAlertPayload{ProductID: "p-1", SKU: "HAM-01", Name: "Hammer", Stock: 2, Threshold: 5}, got)
}

func TestBookingConfirmation_RequiresEmail(t *testing.T) {
	b := booking.Booking{ID: "b-1", CustomerName: "Ann", StartAt: time.Now()}

	_, err := NewBookingConfirmation(b, nil)
	assert.ErrorIs(t, err, ErrInvalidJobPayload)

	b.CustomerEmail = "ann@example.com"
	req, err := NewBookingConfirmation(b, nil)
	require.NoError(t, err)
	assert.Equal(t, "booking:confirm:b-1", *req.IdempotencyKey)
	assert.Equal(t, PriorityBookingConfirmation, req.Priority)
}

func TestEncodePayload_TypeMismatch(t *testing.T) {
	_, err := EncodePayload(JobLowStockAlert, BookingConfirmationPayload{BookingID: "b"})
	assert.ErrorIs(t, err, ErrPayloadTypeMismatch)
}

func TestDecodePayload_Errors(t *testing.T) {
	_, err := DecodePayload(job.Job{Type: "unknown", Payload: []byte(`{}`)})
	assert.ErrorIs(t, err, ErrInvalidJobType)

	_, err = DecodePayload(job.Job{Type: string(JobLowStockAlert)})
	assert.ErrorIs(t, err, ErrInvalidJobPayload)

	_, err = DecodePayload(job.Job{Type: string(JobLowStockAlert), Payload: []byte(`{"productId":""}`)})
	assert.ErrorIs(t, err, ErrInvalidJobPayload)

	_, err = DecodePayload(job.Job{Type: string(JobBookingConfirmation), Payload: []byte(`not json`)})
	assert.ErrorIs(t, err, ErrInvalidJobPayload)
}
