package postgres

import (
	"context"

	"github.com/geocoder89/backoffice/internal/domain/catalog"
	"github.com/geocoder89/backoffice/internal/observability"
	"github.com/geocoder89/backoffice/internal/rowquery"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ServiceSchema = rowquery.Schema{
	Table: "services",
	Columns: map[string]rowquery.ColumnType{
		"id":               rowquery.UUID,
		"name":             rowquery.Text,
		"category":         rowquery.Text,
		"price_cents":      rowquery.Int,
		"duration_minutes": rowquery.Int,
		"active":           rowquery.Bool,
		"created_at":       rowquery.Time,
	},
	SearchColumns: []string{"name", "category"},
	DefaultOrder:  []rowquery.Order{{Column: "name"}},
	DefaultLimit:  20,
	MaxLimit:      100,
}

const serviceColumns = `id, name, description, category, price_cents, duration_minutes, active, image_url, created_at, updated_at`

type ServicesRepo struct {
	base
}

func NewServicesRepo(pool *pgxpool.Pool, prom *observability.Prom) *ServicesRepo {
	return &ServicesRepo{base{pool: pool, prom: prom}}
}

func scanService(row pgx.Row, extra ...any) (catalog.Service, error) {
	var s catalog.Service
	dest := []any{
		&s.ID, &s.Name, &s.Description, &s.Category, &s.PriceCents,
		&s.DurationMinutes, &s.Active, &s.ImageURL, &s.CreatedAt, &s.UpdatedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	return s, err
}

func (r *ServicesRepo) List(ctx context.Context, q rowquery.Query) ([]catalog.Service, int, error) {
	sql, args := q.Select(serviceColumns)

	out := make([]catalog.Service, 0, q.Limit)
	total := 0

	err := r.observe("services.list", func() error {
		rows, err := r.pool.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var t int
			s, err := scanService(rows, &t)
			if err != nil {
				return err
			}
			total = t
			out = append(out, s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}

	return out, total, nil
}

func (r *ServicesRepo) GetByID(ctx context.Context, id string) (catalog.Service, error) {
	var s catalog.Service
	err := r.observe("services.get_by_id", func() error {
		var err error
		s, err = scanService(r.pool.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id))
		return err
	})
	if err != nil {
		return catalog.Service{}, mapNoRows(err, catalog.ErrNotFound)
	}
	return s, nil
}

func (r *ServicesRepo) Create(ctx context.Context, req catalog.CreateServiceRequest) (catalog.Service, error) {
	s := catalog.NewFromCreateRequest(req)

	err := r.observe("services.create", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO services (`+serviceColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			s.ID, s.Name, s.Description, s.Category, s.PriceCents, s.DurationMinutes,
			s.Active, s.ImageURL, s.CreatedAt, s.UpdatedAt)
		return err
	})
	if err != nil {
		return catalog.Service{}, err
	}

	return s, nil
}

// Update changes the service. Existing bookings keep their end time; a new
// duration applies to bookings made or rescheduled afterwards.
func (r *ServicesRepo) Update(ctx context.Context, id string, req catalog.UpdateServiceRequest) (catalog.Service, error) {
	var s catalog.Service
	err := r.observe("services.update", func() error {
		var err error
		s, err = scanService(r.pool.QueryRow(ctx,
			`UPDATE services
			SET name = $2, description = $3, category = $4, price_cents = $5,
			    duration_minutes = $6, active = $7, updated_at = NOW()
			WHERE id = $1
			RETURNING `+serviceColumns,
			id, req.Name, req.Description, req.Category, *req.PriceCents, req.DurationMinutes, *req.Active))
		return err
	})
	if err != nil {
		return catalog.Service{}, mapNoRows(err, catalog.ErrNotFound)
	}
	return s, nil
}

// Delete refuses while the service has upcoming bookings that are not
// cancelled. Remaining bookings keep service_name and lose service_id.
func (r *ServicesRepo) Delete(ctx context.Context, id string) error {
	return r.inTx(ctx, "services.delete", func(tx pgx.Tx) error {
		var exists, upcoming bool
		err := tx.QueryRow(ctx, `
			SELECT
				EXISTS (SELECT 1 FROM services WHERE id = $1),
				EXISTS (SELECT 1 FROM bookings WHERE service_id = $1 AND status <> 'cancelled' AND end_at > NOW())`,
			id).Scan(&exists, &upcoming)
		if err != nil {
			return err
		}
		if !exists {
			return catalog.ErrNotFound
		}
		if upcoming {
			return catalog.ErrInUse
		}

		_, err = tx.Exec(ctx, `DELETE FROM services WHERE id = $1`, id)
		if isForeignKeyViolation(err) {
			return catalog.ErrInUse
		}
		return err
	})
}

func (r *ServicesRepo) SetImageURL(ctx context.Context, id, url string) (catalog.Service, error) {
	var s catalog.Service
	err := r.observe("services.set_image", func() error {
		var err error
		s, err = scanService(r.pool.QueryRow(ctx,
			`UPDATE services SET image_url = $2, updated_at = NOW() WHERE id = $1 RETURNING `+serviceColumns, id, url))
		return err
	})
	if err != nil {
		return catalog.Service{}, mapNoRows(err, catalog.ErrNotFound)
	}
	return s, nil
}
