package postgres

import (
	"context"
	"time"

	"github.com/geocoder89/backoffice/internal/actorctx"
	"github.com/geocoder89/backoffice/internal/domain/booking"
	"github.com/geocoder89/backoffice/internal/domain/catalog"
	"github.com/geocoder89/backoffice/internal/jobs"
	"github.com/geocoder89/backoffice/internal/observability"
	"github.com/geocoder89/backoffice/internal/rowquery"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var BookingSchema = rowquery.Schema{
	Table: "bookings",
	Columns: map[string]rowquery.ColumnType{
		"id":             rowquery.UUID,
		"service_id":     rowquery.UUID,
		"customer_name":  rowquery.Text,
		"customer_email": rowquery.Text,
		"status":         rowquery.Text,
		"start_at":       rowquery.Time,
		"end_at":         rowquery.Time,
		"created_at":     rowquery.Time,
	},
	SearchColumns: []string{"customer_name", "customer_email", "service_name"},
	DefaultOrder:  []rowquery.Order{{Column: "start_at"}},
	DefaultLimit:  50,
	MaxLimit:      500,
}

const bookingColumns = `id, service_id, service_name, customer_name, customer_email, customer_phone,
	start_at, end_at, status, notes, cancel_reason, created_at, updated_at`

type BookingsRepo struct {
	base
	jobs *JobsRepo
}

func NewBookingsRepo(pool *pgxpool.Pool, prom *observability.Prom, jobsRepo *JobsRepo) *BookingsRepo {
	return &BookingsRepo{base: base{pool: pool, prom: prom}, jobs: jobsRepo}
}

func scanBooking(row pgx.Row, extra ...any) (booking.Booking, error) {
	var b booking.Booking
	var status string
	dest := []any{
		&b.ID, &b.ServiceID, &b.ServiceName, &b.CustomerName, &b.CustomerEmail, &b.CustomerPhone,
		&b.StartAt, &b.EndAt, &status, &b.Notes, &b.CancelReason, &b.CreatedAt, &b.UpdatedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	b.Status = booking.Status(status)
	return b, err
}

// List returns bookings matching q that overlap the window, if one is given.
func (r *BookingsRepo) List(ctx context.Context, q rowquery.Query, w booking.CalendarWindow) ([]booking.Booking, int, error) {
	if w.From != nil {
		q.And("end_at > ?", *w.From)
	}
	if w.To != nil {
		q.And("start_at < ?", *w.To)
	}
	sql, args := q.Select(bookingColumns)

	out := make([]booking.Booking, 0, q.Limit)
	total := 0

	err := r.observe("bookings.list", func() error {
		rows, err := r.pool.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var t int
			b, err := scanBooking(rows, &t)
			if err != nil {
				return err
			}
			total = t
			out = append(out, b)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}

	return out, total, nil
}

func (r *BookingsRepo) GetByID(ctx context.Context, id string) (booking.Booking, error) {
	var b booking.Booking
	err := r.observe("bookings.get_by_id", func() error {
		var err error
		b, err = scanBooking(r.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
		return err
	})
	if err != nil {
		return booking.Booking{}, mapNoRows(err, booking.ErrNotFound)
	}
	return b, nil
}

// lockService serializes booking writes per service so the overlap check
// below cannot race with another insert.
func lockService(ctx context.Context, tx pgx.Tx, id string) (catalog.Service, error) {
	s, err := scanService(tx.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return catalog.Service{}, mapNoRows(err, catalog.ErrNotFound)
	}
	return s, nil
}

func slotTaken(ctx context.Context, tx pgx.Tx, serviceID string, start, end time.Time, exceptID string) (bool, error) {
	var taken bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE service_id = $1
			  AND status <> 'cancelled'
			  AND start_at < $3
			  AND end_at > $2
			  AND id <> $4
		)`, serviceID, start, end, exceptID).Scan(&taken)
	return taken, err
}

func (r *BookingsRepo) Create(ctx context.Context, req booking.CreateBookingRequest) (booking.Booking, error) {
	var b booking.Booking

	err := r.inTx(ctx, "bookings.create", func(tx pgx.Tx) error {
		svc, err := lockService(ctx, tx, req.ServiceID)
		if err != nil {
			return err
		}
		if !svc.Active {
			return booking.ErrServiceUnavailable
		}

		b = booking.NewFromCreateRequest(req, svc)

		taken, err := slotTaken(ctx, tx, svc.ID, b.StartAt, b.EndAt, b.ID)
		if err != nil {
			return err
		}
		if taken {
			return booking.ErrSlotTaken
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO bookings (`+bookingColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			b.ID, b.ServiceID, b.ServiceName, b.CustomerName, b.CustomerEmail, b.CustomerPhone,
			b.StartAt, b.EndAt, string(b.Status), b.Notes, b.CancelReason, b.CreatedAt, b.UpdatedAt)
		if err != nil {
			return err
		}

		if b.Status == booking.StatusConfirmed {
			return r.enqueueConfirmation(ctx, tx, b)
		}
		return nil
	})
	if err != nil {
		return booking.Booking{}, err
	}

	return b, nil
}

// Update reschedules or edits customer details of an open booking.
func (r *BookingsRepo) Update(ctx context.Context, id string, req booking.UpdateBookingRequest) (booking.Booking, error) {
	var b booking.Booking

	err := r.inTx(ctx, "bookings.update", func(tx pgx.Tx) error {
		cur, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return mapNoRows(err, booking.ErrNotFound)
		}
		if cur.Status.IsTerminal() {
			return booking.ErrClosed
		}

		if cur.ServiceID == nil {
			return booking.ErrServiceUnavailable
		}
		svc, err := lockService(ctx, tx, *cur.ServiceID)
		if err != nil {
			return err
		}

		start := req.StartAt.UTC()
		end := start.Add(svc.Duration())

		taken, err := slotTaken(ctx, tx, svc.ID, start, end, id)
		if err != nil {
			return err
		}
		if taken {
			return booking.ErrSlotTaken
		}

		b, err = scanBooking(tx.QueryRow(ctx,
			`UPDATE bookings
			SET customer_name = $2, customer_email = $3, customer_phone = $4,
			    start_at = $5, end_at = $6, notes = $7, updated_at = NOW()
			WHERE id = $1
			RETURNING `+bookingColumns,
			id, req.CustomerName, req.CustomerEmail, req.CustomerPhone, start, end, req.Notes))
		return err
	})
	if err != nil {
		return booking.Booking{}, err
	}

	return b, nil
}

// ChangeStatus moves a booking along its lifecycle. Confirming a booking with
// a customer email queues the confirmation message in the same transaction.
func (r *BookingsRepo) ChangeStatus(ctx context.Context, id string, req booking.StatusChangeRequest) (booking.Booking, booking.Status, error) {
	var (
		b    booking.Booking
		from booking.Status
	)

	err := r.inTx(ctx, "bookings.change_status", func(tx pgx.Tx) error {
		cur, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return mapNoRows(err, booking.ErrNotFound)
		}
		from = cur.Status

		if !booking.CanTransition(cur.Status, req.Status) {
			return booking.ErrInvalidTransition
		}

		reason := cur.CancelReason
		if req.Status == booking.StatusCancelled {
			reason = req.Reason
		}

		b, err = scanBooking(tx.QueryRow(ctx,
			`UPDATE bookings SET status = $2, cancel_reason = $3, updated_at = NOW()
			WHERE id = $1
			RETURNING `+bookingColumns, id, string(req.Status), reason))
		if err != nil {
			return err
		}

		if b.Status == booking.StatusConfirmed {
			return r.enqueueConfirmation(ctx, tx, b)
		}
		return nil
	})
	if err != nil {
		return booking.Booking{}, "", err
	}

	return b, from, nil
}

func (r *BookingsRepo) Delete(ctx context.Context, id string) error {
	var affected int64
	err := r.observe("bookings.delete", func() error {
		tag, err := r.pool.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return booking.ErrNotFound
	}
	return nil
}

func (r *BookingsRepo) enqueueConfirmation(ctx context.Context, tx pgx.Tx, b booking.Booking) error {
	if r.jobs == nil || b.CustomerEmail == "" {
		return nil
	}

	var actorID *string
	if id, ok := actorctx.UserIDFrom(ctx); ok {
		actorID = &id
	}

	req, err := jobs.NewBookingConfirmation(b, actorID)
	if err != nil {
		return err
	}

	_, _, err = r.jobs.EnqueueTx(ctx, tx, req)
	return err
}
