package jobs

import "strings"

// ValidatePayload checks the fields an executor cannot do without.
func ValidatePayload(t JobType, payload any) error {
	if !t.IsValid() {
		return ErrInvalidJobType
	}

	blank := func(s string) bool { return strings.TrimSpace(s) == "" }

	switch t {
	case JobLowStockAlert:
		var p LowStockAlertPayload
		switch v := payload.(type) {
		case LowStockAlertPayload:
			p = v
		case *LowStockAlertPayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if blank(p.ProductID) || blank(p.SKU) || p.Stock < 0 {
			return ErrInvalidJobPayload
		}
		return nil

	case JobBookingConfirmation:
		var p BookingConfirmationPayload
		switch v := payload.(type) {
		case BookingConfirmationPayload:
			p = v
		case *BookingConfirmationPayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if blank(p.BookingID) || blank(p.Email) || p.StartAt.IsZero() {
			return ErrInvalidJobPayload
		}
		return nil

	default:
		return ErrInvalidJobType
	}
}
