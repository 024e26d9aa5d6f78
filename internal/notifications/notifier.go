package notifications

import (
	"context"
	"time"
)

type LowStockAlertInput struct {
	Recipient string
	ProductID string
	SKU       string
	Name      string
	Stock     int
	Threshold int
}

type BookingConfirmationInput struct {
	BookingID   string
	Email       string
	Name        string
	ServiceName string
	StartAt     time.Time
	Timezone    string
}

// Notifier sends messages on behalf of the business. Implementations return
// the provider's message id when they have one.
type Notifier interface {
	SendLowStockAlert(ctx context.Context, in LowStockAlertInput) (string, error)
	SendBookingConfirmation(ctx context.Context, in BookingConfirmationInput) (string, error)
}
