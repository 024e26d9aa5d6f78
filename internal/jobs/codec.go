package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/geocoder89/backoffice/internal/domain/job"
)

func EncodePayload(t JobType, payload any) (json.RawMessage, error) {
	if err := ValidatePayload(t, payload); err != nil {
		return nil, err
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
	}

	return b, nil
}

// DecodePayload unmarshals j.Payload into the typed payload for j.Type.
func DecodePayload(j job.Job) (any, error) {
	t := JobType(j.Type)
	if !t.IsValid() {
		return nil, ErrInvalidJobType
	}
	if len(j.Payload) == 0 {
		return nil, ErrInvalidJobPayload
	}

	var p any
	switch t {
	case JobLowStockAlert:
		var v LowStockAlertPayload
		if err := json.Unmarshal(j.Payload, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
		}
		p = v
	case JobBookingConfirmation:
		var v BookingConfirmationPayload
		if err := json.Unmarshal(j.Payload, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
		}
		p = v
	}

	if err := ValidatePayload(t, p); err != nil {
		return nil, err
	}
	return p, nil
}
