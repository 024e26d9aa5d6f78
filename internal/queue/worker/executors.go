package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/geocoder89/backoffice/internal/domain/job"
	"github.com/geocoder89/backoffice/internal/domain/setting"
	"github.com/geocoder89/backoffice/internal/jobs"
	"github.com/geocoder89/backoffice/internal/notifications"
	"github.com/geocoder89/backoffice/internal/repo/postgres"
)

const (
	deliveryLowStock            = "low_stock_alert"
	deliveryBookingConfirmation = "booking_confirmation"
)

func (w *Worker) execute(ctx context.Context, j job.Job) error {
	payload, err := jobs.DecodePayload(j)
	if err != nil {
		return permanent(err)
	}

	switch p := payload.(type) {
	case jobs.LowStockAlertPayload:
		return w.sendLowStockAlert(ctx, j, p)
	case jobs.BookingConfirmationPayload:
		return w.sendBookingConfirmation(ctx, j, p)
	default:
		return permanent(fmt.Errorf("%w: %s", jobs.ErrInvalidJobType, j.Type))
	}
}

func (w *Worker) loadSettings(ctx context.Context) setting.Settings {
	if w.settings == nil {
		return setting.Defaults()
	}
	m, err := w.settings.GetAll(ctx)
	if err != nil {
		w.log.Warn("load settings, using defaults", "err", err)
		return setting.Defaults()
	}
	return setting.FromMap(m)
}

func (w *Worker) sendLowStockAlert(ctx context.Context, j job.Job, p jobs.LowStockAlertPayload) error {
	s := w.loadSettings(ctx)
	if s.ContactEmail == "" {
		w.log.Info("low stock alert skipped, no contact email", "product_id", p.ProductID)
		return nil
	}

	// one alert per product per day; the idempotency key carries the day
	ref := j.ID
	if j.IdempotencyKey != nil {
		ref = *j.IdempotencyKey
	}

	return w.deliver(ctx, deliveryLowStock, ref, j.ID, s.ContactEmail, func(ctx context.Context) (string, error) {
		return w.notifier.SendLowStockAlert(ctx, notifications.LowStockAlertInput{
			Recipient: s.ContactEmail,
			ProductID: p.ProductID,
			SKU:       p.SKU,
			Name:      p.Name,
			Stock:     p.Stock,
			Threshold: p.Threshold,
		})
	})
}

func (w *Worker) sendBookingConfirmation(ctx context.Context, j job.Job, p jobs.BookingConfirmationPayload) error {
	s := w.loadSettings(ctx)

	return w.deliver(ctx, deliveryBookingConfirmation, p.BookingID, j.ID, p.Email, func(ctx context.Context) (string, error) {
		return w.notifier.SendBookingConfirmation(ctx, notifications.BookingConfirmationInput{
			BookingID:   p.BookingID,
			Email:       p.Email,
			Name:        p.Name,
			ServiceName: p.ServiceName,
			StartAt:     p.StartAt,
			Timezone:    s.Timezone,
		})
	})
}

// deliver wraps send with the delivery ledger: a message already sent is a
// no-op and the outcome of this attempt is recorded either way.
func (w *Worker) deliver(ctx context.Context, kind, ref, jobID, recipient string, send func(context.Context) (string, error)) error {
	err := w.deliveries.TryStart(ctx, kind, ref, jobID, recipient)
	switch {
	case errors.Is(err, postgres.ErrAlreadySent):
		w.log.Info("notification already sent", "kind", kind, "ref", ref)
		return nil
	case err != nil:
		return err
	}

	msgID, sendErr := send(ctx)
	if sendErr != nil {
		if err := w.deliveries.MarkFailed(ctx, kind, ref, sendErr.Error()); err != nil {
			w.log.Error("record failed delivery", "kind", kind, "ref", ref, "err", err)
		}
		return sendErr
	}

	var providerID *string
	if msgID != "" {
		providerID = &msgID
	}
	return w.deliveries.MarkSent(ctx, kind, ref, providerID)
}
