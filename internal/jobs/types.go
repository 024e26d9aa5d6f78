package jobs

type JobType string

const (
	JobLowStockAlert       JobType = "inventory.low_stock_alert"
	JobBookingConfirmation JobType = "booking.confirmation"
)

func (t JobType) IsValid() bool {
	switch t {
	case JobLowStockAlert, JobBookingConfirmation:
		return true
	default:
		return false
	}
}

// Priorities: confirmations are customer facing, alerts are internal.
const (
	PriorityLowStockAlert       = 0
	PriorityBookingConfirmation = 10
)
