package utils

import "time"

const (
	SettingsCacheKey = "settings:v1"
	dashboardPrefix  = "dashboard:v1:"
)

// DashboardCacheKey buckets the dashboard by UTC day so "today" figures never
// leak across midnight.
func DashboardCacheKey(now time.Time) string {
	return dashboardPrefix + now.UTC().Format("2006-01-02")
}

// LowStockIdempotencyKey allows one low-stock alert per product per day.
func LowStockIdempotencyKey(productID string, now time.Time) string {
	return "inventory:low_stock:" + productID + ":" + now.UTC().Format("2006-01-02")
}

func BookingConfirmationIdempotencyKey(bookingID string) string {
	return "booking:confirm:" + bookingID
}
