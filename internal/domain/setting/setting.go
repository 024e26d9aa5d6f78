package setting

import (
	"strconv"
	"strings"
)

// Settings are the business-wide preferences edited on the settings screen.
type Settings struct {
	BusinessName       string `json:"businessName"`
	Currency           string `json:"currency"`
	Timezone           string `json:"timezone"`
	LowStockThreshold  int    `json:"lowStockThreshold"`
	BookingSlotMinutes int    `json:"bookingSlotMinutes"`
	ContactEmail       string `json:"contactEmail,omitempty"`
}

const (
	KeyBusinessName       = "business_name"
	KeyCurrency           = "currency"
	KeyTimezone           = "timezone"
	KeyLowStockThreshold  = "low_stock_threshold"
	KeyBookingSlotMinutes = "booking_slot_minutes"
	KeyContactEmail       = "contact_email"
)

func Defaults() Settings {
	return Settings{
		BusinessName:       "My Shop",
		Currency:           "USD",
		Timezone:           "UTC",
		LowStockThreshold:  5,
		BookingSlotMinutes: 30,
	}
}

type UpdateSettingsRequest struct {
	BusinessName       string `json:"businessName" binding:"required,min=2,max=120"`
	Currency           string `json:"currency" binding:"required,iso4217"`
	Timezone           string `json:"timezone" binding:"required,timezone"`
	LowStockThreshold  int    `json:"lowStockThreshold" binding:"min=0,max=100000"`
	BookingSlotMinutes int    `json:"bookingSlotMinutes" binding:"required,min=5,max=240"`
	ContactEmail       string `json:"contactEmail" binding:"omitempty,email"`
}

func (r UpdateSettingsRequest) Settings() Settings {
	return Settings{
		BusinessName:       strings.TrimSpace(r.BusinessName),
		Currency:           strings.ToUpper(r.Currency),
		Timezone:           r.Timezone,
		LowStockThreshold:  r.LowStockThreshold,
		BookingSlotMinutes: r.BookingSlotMinutes,
		ContactEmail:       strings.TrimSpace(r.ContactEmail),
	}
}

// ToMap flattens settings into the key/value rows of the settings table.
func (s Settings) ToMap() map[string]string {
	return map[string]string{
		KeyBusinessName:       s.BusinessName,
		KeyCurrency:           s.Currency,
		KeyTimezone:           s.Timezone,
		KeyLowStockThreshold:  strconv.Itoa(s.LowStockThreshold),
		KeyBookingSlotMinutes: strconv.Itoa(s.BookingSlotMinutes),
		KeyContactEmail:       s.ContactEmail,
	}
}

// FromMap overlays stored rows on the defaults; unknown keys and
// unparsable numbers are ignored.
func FromMap(m map[string]string) Settings {
	s := Defaults()

	if v, ok := m[KeyBusinessName]; ok && v != "" {
		s.BusinessName = v
	}
	if v, ok := m[KeyCurrency]; ok && v != "" {
		s.Currency = v
	}
	if v, ok := m[KeyTimezone]; ok && v != "" {
		s.Timezone = v
	}
	if v, ok := m[KeyLowStockThreshold]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.LowStockThreshold = n
		}
	}
	if v, ok := m[KeyBookingSlotMinutes]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.BookingSlotMinutes = n
		}
	}
	if v, ok := m[KeyContactEmail]; ok {
		s.ContactEmail = v
	}

	return s
}
