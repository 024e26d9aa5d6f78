package postgres

import (
	"context"
	"time"

	"github.com/geocoder89/backoffice/internal/observability"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DashboardRepo runs the aggregate queries behind the dashboard. Each method
// is a single round trip so callers can run them concurrently.
type DashboardRepo struct {
	base
}

func NewDashboardRepo(pool *pgxpool.Pool, prom *observability.Prom) *DashboardRepo {
	return &DashboardRepo{base{pool: pool, prom: prom}}
}

// RevenueSince sums orders that count as revenue created at or after since.
func (r *DashboardRepo) RevenueSince(ctx context.Context, since time.Time) (int64, error) {
	var cents int64
	err := r.observe("dashboard.revenue_since", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT COALESCE(SUM(total_cents), 0)
			FROM orders
			WHERE status IN ('paid', 'shipped', 'completed') AND created_at >= $1`, since).Scan(&cents)
	})
	return cents, err
}

func (r *DashboardRepo) OrderCountsByStatus(ctx context.Context) (map[string]int, error) {
	out := map[string]int{}
	err := r.observe("dashboard.order_counts", func() error {
		rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var s string
			var n int
			if err := rows.Scan(&s, &n); err != nil {
				return err
			}
			out[s] = n
		}
		return rows.Err()
	})
	return out, err
}

func (r *DashboardRepo) LowStockCount(ctx context.Context) (int, error) {
	return r.count(ctx, "dashboard.low_stock",
		`SELECT COUNT(*) FROM products WHERE active AND stock <= low_stock_threshold`)
}

func (r *DashboardRepo) UpcomingBookings(ctx context.Context, from, to time.Time) (int, error) {
	return r.count(ctx, "dashboard.upcoming_bookings",
		`SELECT COUNT(*) FROM bookings
		WHERE status IN ('pending', 'confirmed') AND start_at >= $1 AND start_at < $2`, from, to)
}

func (r *DashboardRepo) ActiveProducts(ctx context.Context) (int, error) {
	return r.count(ctx, "dashboard.active_products", `SELECT COUNT(*) FROM products WHERE active`)
}

func (r *DashboardRepo) ActiveServices(ctx context.Context) (int, error) {
	return r.count(ctx, "dashboard.active_services", `SELECT COUNT(*) FROM services WHERE active`)
}

func (r *DashboardRepo) count(ctx context.Context, op, sql string, args ...any) (int, error) {
	var n int
	err := r.observe(op, func() error {
		return r.pool.QueryRow(ctx, sql, args...).Scan(&n)
	})
	return n, err
}
