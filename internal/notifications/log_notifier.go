package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

var ErrSimulatedOutage = errors.New("provider down (simulated)")

// LogNotifier writes messages to the log instead of a provider. Delay and
// Fail simulate a slow or broken provider in local runs.
type LogNotifier struct {
	log   *slog.Logger
	Delay time.Duration
	Fail  bool
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) simulate(ctx context.Context) error {
	if n.Delay > 0 {
		t := time.NewTimer(n.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if n.Fail {
		return ErrSimulatedOutage
	}
	return nil
}

func (n *LogNotifier) SendLowStockAlert(ctx context.Context, in LowStockAlertInput) (string, error) {
	if err := n.simulate(ctx); err != nil {
		return "", err
	}

	id := uuid.NewString()
	n.log.InfoContext(ctx, "notification.low_stock_alert",
		"message_id", id,
		"to", in.Recipient,
		"product_id", in.ProductID,
		"sku", in.SKU,
		"name", in.Name,
		"stock", in.Stock,
		"threshold", in.Threshold,
	)
	return id, nil
}

func (n *LogNotifier) SendBookingConfirmation(ctx context.Context, in BookingConfirmationInput) (string, error) {
	if err := n.simulate(ctx); err != nil {
		return "", err
	}

	start := in.StartAt
	if loc, err := time.LoadLocation(in.Timezone); err == nil && in.Timezone != "" {
		start = start.In(loc)
	}

	id := uuid.NewString()
	n.log.InfoContext(ctx, "notification.booking_confirmation",
		"message_id", id,
		"booking_id", in.BookingID,
		"email", in.Email,
		"name", in.Name,
		"service", in.ServiceName,
		"start_at", start.Format(time.RFC1123),
	)
	return id, nil
}
