package postgres

import (
	"context"
	"time"

	"github.com/geocoder89/backoffice/internal/domain/order"
	"github.com/geocoder89/backoffice/internal/domain/product"
	"github.com/geocoder89/backoffice/internal/observability"
	"github.com/geocoder89/backoffice/internal/rowquery"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var OrderSchema = rowquery.Schema{
	Table: "orders",
	Columns: map[string]rowquery.ColumnType{
		"id":             rowquery.UUID,
		"product_id":     rowquery.UUID,
		"customer_name":  rowquery.Text,
		"customer_email": rowquery.Text,
		"status":         rowquery.Text,
		"quantity":       rowquery.Int,
		"total_cents":    rowquery.Int,
		"created_at":     rowquery.Time,
	},
	SearchColumns: []string{"customer_name", "customer_email", "product_name"},
	DefaultOrder:  []rowquery.Order{{Column: "created_at", Desc: true}},
	DefaultLimit:  20,
	MaxLimit:      100,
}

const orderColumns = `id, product_id, product_name, customer_name, customer_email, quantity,
	unit_price_cents, total_cents, status, notes, created_at, updated_at`

// OrdersRepo keeps product stock in step with orders. Stock changes reuse
// the products repo so low-stock alerts fire the same way as manual
// adjustments.
type OrdersRepo struct {
	base
	products *ProductsRepo
}

func NewOrdersRepo(pool *pgxpool.Pool, prom *observability.Prom, products *ProductsRepo) *OrdersRepo {
	return &OrdersRepo{base: base{pool: pool, prom: prom}, products: products}
}

func scanOrder(row pgx.Row, extra ...any) (order.Order, error) {
	var o order.Order
	var status string
	dest := []any{
		&o.ID, &o.ProductID, &o.ProductName, &o.CustomerName, &o.CustomerEmail, &o.Quantity,
		&o.UnitPriceCents, &o.TotalCents, &status, &o.Notes, &o.CreatedAt, &o.UpdatedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	o.Status = order.Status(status)
	return o, err
}

// List applies q plus an optional [from, to) window on created_at.
func (r *OrdersRepo) List(ctx context.Context, q rowquery.Query, from, to *time.Time) ([]order.Order, int, error) {
	if from != nil {
		q.And("created_at >= ?", *from)
	}
	if to != nil {
		q.And("created_at < ?", *to)
	}
	sql, args := q.Select(orderColumns)

	out := make([]order.Order, 0, q.Limit)
	total := 0

	err := r.observe("orders.list", func() error {
		rows, err := r.pool.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var t int
			o, err := scanOrder(rows, &t)
			if err != nil {
				return err
			}
			total = t
			out = append(out, o)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}

	return out, total, nil
}

func (r *OrdersRepo) GetByID(ctx context.Context, id string) (order.Order, error) {
	var o order.Order
	err := r.observe("orders.get_by_id", func() error {
		var err error
		o, err = scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
		return err
	})
	if err != nil {
		return order.Order{}, mapNoRows(err, order.ErrNotFound)
	}
	return o, nil
}

// Create reserves stock and records the order atomically.
func (r *OrdersRepo) Create(ctx context.Context, req order.CreateOrderRequest) (order.Order, error) {
	var o order.Order

	err := r.inTx(ctx, "orders.create", func(tx pgx.Tx) error {
		p, err := scanProduct(tx.QueryRow(ctx,
			`SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, req.ProductID))
		if err != nil {
			return mapNoRows(err, product.ErrNotFound)
		}
		if !p.Active {
			return product.ErrInactive
		}
		if p.Stock < req.Quantity {
			return product.ErrInsufficientStock
		}

		o = order.NewFromProduct(req, p)

		p, err = scanProduct(tx.QueryRow(ctx,
			`UPDATE products SET stock = stock - $2, updated_at = NOW()
			WHERE id = $1
			RETURNING `+productColumns, p.ID, req.Quantity))
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO orders (`+orderColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			o.ID, o.ProductID, o.ProductName, o.CustomerName, o.CustomerEmail, o.Quantity,
			o.UnitPriceCents, o.TotalCents, string(o.Status), o.Notes, o.CreatedAt, o.UpdatedAt)
		if err != nil {
			return err
		}

		return r.products.afterStockChange(ctx, tx, p)
	})
	if err != nil {
		return order.Order{}, err
	}

	return o, nil
}

// ChangeStatus applies a lifecycle transition. Cancelling or refunding puts
// the quantity back on the product if it still exists.
func (r *OrdersRepo) ChangeStatus(ctx context.Context, id string, to order.Status) (order.Order, order.Status, error) {
	var (
		o    order.Order
		from order.Status
	)

	err := r.inTx(ctx, "orders.change_status", func(tx pgx.Tx) error {
		cur, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return mapNoRows(err, order.ErrNotFound)
		}
		from = cur.Status

		if !order.CanTransition(cur.Status, to) {
			return order.ErrInvalidTransition
		}

		if to.RestoresStock() && !cur.Status.RestoresStock() && cur.ProductID != nil {
			_, err := tx.Exec(ctx,
				`UPDATE products SET stock = stock + $2, updated_at = NOW() WHERE id = $1`,
				*cur.ProductID, cur.Quantity)
			if err != nil {
				return err
			}
		}

		o, err = scanOrder(tx.QueryRow(ctx,
			`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING `+orderColumns,
			id, string(to)))
		return err
	})
	if err != nil {
		return order.Order{}, "", err
	}

	return o, from, nil
}

// Delete only removes orders that no longer hold stock or revenue.
func (r *OrdersRepo) Delete(ctx context.Context, id string) error {
	return r.inTx(ctx, "orders.delete", func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&status)
		if err != nil {
			return mapNoRows(err, order.ErrNotFound)
		}
		if !order.Status(status).RestoresStock() {
			return order.ErrActive
		}

		_, err = tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
		return err
	})
}
