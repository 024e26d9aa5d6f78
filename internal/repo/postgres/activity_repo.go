package postgres

import (
	"context"
	"fmt"

	"github.com/geocoder89/backoffice/internal/domain/activity"
	"github.com/geocoder89/backoffice/internal/observability"
	"github.com/geocoder89/backoffice/internal/rowquery"
	"github.com/geocoder89/backoffice/internal/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ActivitySchema has no ordering options; the log is always newest first.
var ActivitySchema = rowquery.Schema{
	Table: "activity_logs",
	Columns: map[string]rowquery.ColumnType{
		"action":      rowquery.Text,
		"entity":      rowquery.Text,
		"entity_id":   rowquery.Text,
		"actor_id":    rowquery.UUID,
		"actor_email": rowquery.Text,
		"created_at":  rowquery.Time,
	},
	SearchColumns: []string{"actor_email", "entity_id"},
	DefaultLimit:  50,
	MaxLimit:      200,
}

const activityColumns = `id, actor_id, actor_email, action, entity, entity_id, details, ip_address, created_at`

type ActivityRepo struct {
	base
}

func NewActivityRepo(pool *pgxpool.Pool, prom *observability.Prom) *ActivityRepo {
	return &ActivityRepo{base{pool: pool, prom: prom}}
}

func scanEntry(row pgx.Row) (activity.Entry, error) {
	var e activity.Entry
	var action string
	err := row.Scan(&e.ID, &e.ActorID, &e.ActorEmail, &action, &e.Entity, &e.EntityID, &e.Details, &e.IPAddress, &e.CreatedAt)
	e.Action = activity.Action(action)
	return e, err
}

func (r *ActivityRepo) Insert(ctx context.Context, e activity.Entry) error {
	return r.observe("activity.insert", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO activity_logs (`+activityColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			e.ID, e.ActorID, e.ActorEmail, string(e.Action), e.Entity, e.EntityID, e.Details, e.IPAddress, e.CreatedAt)
		return err
	})
}

// List pages the log with a keyset cursor. q's order and offset are ignored.
func (r *ActivityRepo) List(ctx context.Context, q rowquery.Query, cursor *utils.ActivityCursor) (items []activity.Entry, nextCursor *string, err error) {
	if cursor != nil {
		q.And("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	where, args := q.Where()

	sql := `SELECT ` + activityColumns + ` FROM activity_logs` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT %d", q.Limit+1)

	out := make([]activity.Entry, 0, q.Limit)
	err = r.observe("activity.list", func() error {
		rows, err := r.pool.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			e, err := scanEntry(rows)
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, nil, err
	}

	if len(out) > q.Limit {
		out = out[:q.Limit]
		last := out[len(out)-1]

		cur, err := utils.EncodeActivityCursor(last.CreatedAt, last.ID)
		if err != nil {
			return nil, nil, err
		}
		nextCursor = &cur
	}

	return out, nextCursor, nil
}
