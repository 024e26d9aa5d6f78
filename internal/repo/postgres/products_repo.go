package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/backoffice/internal/actorctx"
	"github.com/geocoder89/backoffice/internal/domain/product"
	"github.com/geocoder89/backoffice/internal/jobs"
	"github.com/geocoder89/backoffice/internal/observability"
	"github.com/geocoder89/backoffice/internal/rowquery"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ProductSchema = rowquery.Schema{
	Table: "products",
	Columns: map[string]rowquery.ColumnType{
		"id":                  rowquery.UUID,
		"sku":                 rowquery.Text,
		"name":                rowquery.Text,
		"category":            rowquery.Text,
		"price_cents":         rowquery.Int,
		"stock":               rowquery.Int,
		"low_stock_threshold": rowquery.Int,
		"active":              rowquery.Bool,
		"created_at":          rowquery.Time,
		"updated_at":          rowquery.Time,
	},
	SearchColumns: []string{"name", "sku", "category"},
	DefaultOrder:  []rowquery.Order{{Column: "name"}},
	DefaultLimit:  20,
	MaxLimit:      100,
}

const productColumns = `id, sku, name, description, category, price_cents, stock, low_stock_threshold,
	active, image_url, created_at, updated_at`

type ProductsRepo struct {
	base
	jobs *JobsRepo
	now  func() time.Time
}

func NewProductsRepo(pool *pgxpool.Pool, prom *observability.Prom, jobsRepo *JobsRepo) *ProductsRepo {
	return &ProductsRepo{base: base{pool: pool, prom: prom}, jobs: jobsRepo, now: time.Now}
}

func scanProduct(row pgx.Row, extra ...any) (product.Product, error) {
	var p product.Product
	dest := []any{
		&p.ID, &p.SKU, &p.Name, &p.Description, &p.Category, &p.PriceCents,
		&p.Stock, &p.LowStockThreshold, &p.Active, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	return p, err
}

func mapProductErr(err error) error {
	if isConstraint(err, "23505", "products_sku_uniq") {
		return product.ErrSKUTaken
	}
	return mapNoRows(err, product.ErrNotFound)
}

// List applies q; lowStock restricts to products at or under their threshold.
func (r *ProductsRepo) List(ctx context.Context, q rowquery.Query, lowStock bool) ([]product.Product, int, error) {
	if lowStock {
		q.And("stock <= low_stock_threshold")
	}
	sql, args := q.Select(productColumns)

	out := make([]product.Product, 0, q.Limit)
	total := 0

	err := r.observe("products.list", func() error {
		rows, err := r.pool.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var t int
			p, err := scanProduct(rows, &t)
			if err != nil {
				return err
			}
			total = t
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}

	return out, total, nil
}

func (r *ProductsRepo) GetByID(ctx context.Context, id string) (product.Product, error) {
	var p product.Product
	err := r.observe("products.get_by_id", func() error {
		var err error
		p, err = scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
		return err
	})
	if err != nil {
		return product.Product{}, mapProductErr(err)
	}
	return p, nil
}

func (r *ProductsRepo) Create(ctx context.Context, req product.CreateProductRequest) (product.Product, error) {
	p := product.NewFromCreateRequest(req)

	err := r.inTx(ctx, "products.create", func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO products (`+productColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			p.ID, p.SKU, p.Name, p.Description, p.Category, p.PriceCents, p.Stock,
			p.LowStockThreshold, p.Active, p.ImageURL, p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return err
		}
		return r.afterStockChange(ctx, tx, p)
	})
	if err != nil {
		return product.Product{}, mapProductErr(err)
	}

	return p, nil
}

func (r *ProductsRepo) Update(ctx context.Context, id string, req product.UpdateProductRequest) (product.Product, error) {
	var p product.Product

	err := r.inTx(ctx, "products.update", func(tx pgx.Tx) error {
		var err error
		p, err = scanProduct(tx.QueryRow(ctx,
			`UPDATE products
			SET sku = $2, name = $3, description = $4, category = $5, price_cents = $6,
			    low_stock_threshold = $7, active = $8, updated_at = NOW()
			WHERE id = $1
			RETURNING `+productColumns,
			id, product.NormalizeSKU(req.SKU), req.Name, req.Description, req.Category,
			*req.PriceCents, *req.LowStockThreshold, *req.Active))
		if err != nil {
			return err
		}
		// a raised threshold can put current stock under it
		return r.afterStockChange(ctx, tx, p)
	})
	if err != nil {
		return product.Product{}, mapProductErr(err)
	}

	return p, nil
}

func (r *ProductsRepo) Delete(ctx context.Context, id string) error {
	var affected int64
	err := r.observe("products.delete", func() error {
		tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
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
		return product.ErrNotFound
	}
	return nil
}

// AdjustStock adds delta to the product's stock in one statement; the
// WHERE clause refuses to go below zero.
func (r *ProductsRepo) AdjustStock(ctx context.Context, id string, delta int) (product.Product, error) {
	var p product.Product

	err := r.inTx(ctx, "products.adjust_stock", func(tx pgx.Tx) error {
		var err error
		p, err = scanProduct(tx.QueryRow(ctx,
			`UPDATE products
			SET stock = stock + $2, updated_at = NOW()
			WHERE id = $1 AND stock + $2 >= 0
			RETURNING `+productColumns, id, delta))
		if err == nil {
			return r.afterStockChange(ctx, tx, p)
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		// tell a missing product apart from an insufficient one
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return product.ErrInsufficientStock
		}
		return product.ErrNotFound
	})
	if err != nil {
		return product.Product{}, mapProductErr(err)
	}

	return p, nil
}

func (r *ProductsRepo) SetImageURL(ctx context.Context, id, url string) (product.Product, error) {
	var p product.Product
	err := r.observe("products.set_image", func() error {
		var err error
		p, err = scanProduct(r.pool.QueryRow(ctx,
			`UPDATE products SET image_url = $2, updated_at = NOW() WHERE id = $1 RETURNING `+productColumns, id, url))
		return err
	})
	if err != nil {
		return product.Product{}, mapProductErr(err)
	}
	return p, nil
}

// afterStockChange enqueues a low-stock alert inside tx when p is at or
// under its threshold. Inactive products never alert.
func (r *ProductsRepo) afterStockChange(ctx context.Context, tx pgx.Tx, p product.Product) error {
	if r.jobs == nil || !p.Active || !p.IsLowStock() {
		return nil
	}

	var actorID *string
	if id, ok := actorctx.UserIDFrom(ctx); ok {
		actorID = &id
	}

	req, err := jobs.NewLowStockAlert(p, r.now(), actorID)
	if err != nil {
		return err
	}

	_, _, err = r.jobs.EnqueueTx(ctx, tx, req)
	return err
}
