package postgres

import (
	"context"
	"errors"

	"github.com/geocoder89/backoffice/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrAlreadySent = errors.New("notification already sent")
	ErrInProgress  = errors.New("notification delivery in progress")
)

// DeliveriesRepo records each outbound notification by (kind, ref) so a
// retried job does not message a customer twice.
type DeliveriesRepo struct {
	base
}

func NewDeliveriesRepo(pool *pgxpool.Pool, prom *observability.Prom) *DeliveriesRepo {
	return &DeliveriesRepo{base{pool: pool, prom: prom}}
}

// TryStart claims the delivery for jobID. It returns ErrAlreadySent when a
// previous attempt succeeded and ErrInProgress when another attempt holds it.
func (r *DeliveriesRepo) TryStart(ctx context.Context, kind, refID, jobID, recipient string) error {
	return r.inTx(ctx, "deliveries.try_start", func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO notification_deliveries (kind, ref_id, job_id, recipient, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 'sending', NOW(), NOW())
			ON CONFLICT (kind, ref_id) DO NOTHING`, kind, refID, jobID, recipient)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 1 {
			return nil
		}

		var status string
		var holder *string
		err = tx.QueryRow(ctx, `
			SELECT status, job_id::text FROM notification_deliveries
			WHERE kind = $1 AND ref_id = $2
			FOR UPDATE`, kind, refID).Scan(&status, &holder)
		if err != nil {
			return err
		}

		switch {
		case status == "sent":
			return ErrAlreadySent
		// the same job retrying after a crash mid-send may take it back
		case status == "failed" || (holder != nil && *holder == jobID):
			_, err = tx.Exec(ctx, `
				UPDATE notification_deliveries
				SET status = 'sending', job_id = $3, recipient = $4, last_error = NULL, updated_at = NOW()
				WHERE kind = $1 AND ref_id = $2`, kind, refID, jobID, recipient)
			return err
		default:
			return ErrInProgress
		}
	})
}

func (r *DeliveriesRepo) MarkSent(ctx context.Context, kind, refID string, providerMessageID *string) error {
	return r.observe("deliveries.mark_sent", func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE notification_deliveries
			SET status = 'sent', sent_at = NOW(), provider_message_id = $3, last_error = NULL, updated_at = NOW()
			WHERE kind = $1 AND ref_id = $2`, kind, refID, providerMessageID)
		return err
	})
}

func (r *DeliveriesRepo) MarkFailed(ctx context.Context, kind, refID, errMsg string) error {
	return r.observe("deliveries.mark_failed", func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE notification_deliveries
			SET status = 'failed', last_error = $3, updated_at = NOW()
			WHERE kind = $1 AND ref_id = $2`, kind, refID, errMsg)
		return err
	})
}
