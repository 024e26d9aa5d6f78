package jobs

import "time"

// LowStockAlertPayload snapshots the product at the moment it crossed its
// threshold; the executor does not re-read the product.
type LowStockAlertPayload struct {
	ProductID string `json:"productId"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Stock     int    `json:"stock"`
	Threshold int    `json:"threshold"`
}

type BookingConfirmationPayload struct {
	BookingID   string    `json:"bookingId"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	ServiceName string    `json:"serviceName"`
	StartAt     time.Time `json:"startAt"`
}
