package postgres

import (
	"context"

	"github.com/geocoder89/backoffice/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SettingsRepo struct {
	base
}

func NewSettingsRepo(pool *pgxpool.Pool, prom *observability.Prom) *SettingsRepo {
	return &SettingsRepo{base{pool: pool, prom: prom}}
}

func (r *SettingsRepo) GetAll(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}

	err := r.observe("settings.get_all", func() error {
		rows, err := r.pool.Query(ctx, `SELECT key, value FROM settings`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var k, v string
			if err := rows.Scan(&k, &v); err != nil {
				return err
			}
			out[k] = v
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// PutAll upserts every key in one transaction. Unchanged values are not
// rewritten so the change feed only carries real edits.
func (r *SettingsRepo) PutAll(ctx context.Context, values map[string]string) error {
	return r.inTx(ctx, "settings.put_all", func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for k, v := range values {
			batch.Queue(`
				INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, NOW())
				ON CONFLICT (key) DO UPDATE
				SET value = EXCLUDED.value, updated_at = NOW()
				WHERE settings.value IS DISTINCT FROM EXCLUDED.value`, k, v)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}
