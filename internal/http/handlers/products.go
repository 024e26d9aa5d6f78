package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/geocoder89/backoffice/internal/domain/activity"
	"github.com/geocoder89/backoffice/internal/domain/product"
	"github.com/geocoder89/backoffice/internal/repo/postgres"
	"github.com/geocoder89/backoffice/internal/rowquery"
	"github.com/geocoder89/backoffice/internal/storage"
	"github.com/gin-gonic/gin"
)

type ProductsStore interface {
	List(ctx context.Context, q rowquery.Query, lowStock bool) ([]product.Product, int, error)
	GetByID(ctx context.Context, id string) (product.Product, error)
	Create(ctx context.Context, req product.CreateProductRequest) (product.Product, error)
	Update(ctx context.Context, id string, req product.UpdateProductRequest) (product.Product, error)
	Delete(ctx context.Context, id string) error
	AdjustStock(ctx context.Context, id string, delta int) (product.Product, error)
	SetImageURL(ctx context.Context, id, url string) (product.Product, error)
}

type ProductsHandler struct {
	products ProductsStore
	settings SettingsReader
	audit    ActivityRecorder
	uploader *Uploader
}

func NewProductsHandler(products ProductsStore, settings SettingsReader, audit ActivityRecorder, uploader *Uploader) *ProductsHandler {
	return &ProductsHandler{products: products, settings: settings, audit: audit, uploader: uploader}
}

func (h *ProductsHandler) respondErr(ctx *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, product.ErrNotFound):
		RespondNotFound(ctx, "Product not found")
	case errors.Is(err, product.ErrSKUTaken):
		RespondConflict(ctx, "sku_taken", "SKU is already in use.")
	case errors.Is(err, product.ErrInsufficientStock):
		RespondConflict(ctx, "insufficient_stock", "Not enough stock for this change.")
	default:
		RespondInternal(ctx, fallback)
	}
}

// GET /products[?low_stock=true]
func (h *ProductsHandler) List(ctx *gin.Context) {
	q, ok := parseQuery(ctx, postgres.ProductSchema, "low_stock")
	if !ok {
		return
	}

	lowStock := false
	switch ctx.Query("low_stock") {
	case "", "false":
	case "true":
		lowStock = true
	default:
		RespondInvalidQuery(ctx, "low_stock must be true or false")
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	items, total, err := h.products.List(cctx, q, lowStock)
	if err != nil {
		RespondInternal(ctx, "Could not list products")
		return
	}

	RespondPage(ctx, items, total, q.Limit, q.Offset)
}

// GET /products/:id
func (h *ProductsHandler) Get(ctx *gin.Context) {
	id, ok := validID(ctx, "id")
	if !ok {
		return
	}

	cctx, cancel := withTimeout(ctx, 2*time.Second)
	defer cancel()

	p, err := h.products.GetByID(cctx, id)
	if err != nil {
		h.respondErr(ctx, err, "Could not fetch product")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, p)
}

// POST /products
func (h *ProductsHandler) Create(ctx *gin.Context) {
	var req product.CreateProductRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	// new products inherit the shop-wide threshold unless one is given
	if req.LowStockThreshold == nil {
		s, err := currentSettings(cctx, h.settings)
		if err != nil {
			RespondInternal(ctx, "Could not load settings")
			return
		}
		threshold := s.LowStockThreshold
		req.LowStockThreshold = &threshold
	}

	p, err := h.products.Create(cctx, req)
	if err != nil {
		h.respondErr(ctx, err, "Could not create product")
		return
	}

	h.audit.Record(cctx, activity.ActionCreate, activity.EntityProduct, p.ID, gin.H{"sku": p.SKU, "name": p.Name})
	ctx.JSON(http.StatusCreated, p)
}

// PUT /products/:id
func (h *ProductsHandler) Update(ctx *gin.Context) {
	id, ok := validID(ctx, "id")
	if !ok {
		return
	}

	var req product.UpdateProductRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	p, err := h.products.Update(cctx, id, req)
	if err != nil {
		h.respondErr(ctx, err, "Could not update product")
		return
	}

	h.audit.Record(cctx, activity.ActionUpdate, activity.EntityProduct, p.ID, gin.H{"sku": p.SKU, "priceCents": p.PriceCents, "active": p.Active})
	ctx.JSON(http.StatusOK, p)
}

// DELETE /products/:id
func (h *ProductsHandler) Delete(ctx *gin.Context) {
	id, ok := validID(ctx, "id")
	if !ok {
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	current, err := h.products.GetByID(cctx, id)
	if err != nil {
		h.respondErr(ctx, err, "Could not delete product")
		return
	}

	if err := h.products.Delete(cctx, id); err != nil {
		h.respondErr(ctx, err, "Could not delete product")
		return
	}
	h.uploader.discard(cctx, storage.BucketProducts, current.ImageURL)

	h.audit.Record(cctx, activity.ActionDelete, activity.EntityProduct, id, gin.H{"sku": current.SKU})
	ctx.Status(http.StatusNoContent)
}

// POST /products/:id/stock
func (h *ProductsHandler) AdjustStock(ctx *gin.Context) {
	id, ok := validID(ctx, "id")
	if !ok {
		return
	}

	var req product.StockAdjustmentRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	p, err := h.products.AdjustStock(cctx, id, req.Delta)
	if err != nil {
		h.respondErr(ctx, err, "Could not adjust stock")
		return
	}

	h.audit.Record(cctx, activity.ActionStockAdjust, activity.EntityProduct, p.ID, gin.H{
		"delta":  req.Delta,
		"reason": req.Reason,
		"stock":  p.Stock,
	})
	ctx.JSON(http.StatusOK, p)
}

// POST /products/:id/image
func (h *ProductsHandler) UploadImage(ctx *gin.Context) {
	id, ok := validID(ctx, "id")
	if !ok {
		return
	}

	cctx, cancel := withTimeout(ctx, 40*time.Second)
	defer cancel()

	current, err := h.products.GetByID(cctx, id)
	if err != nil {
		h.respondErr(ctx, err, "Could not update image")
		return
	}

	obj, ok := h.uploader.receive(ctx, storage.BucketProducts)
	if !ok {
		return
	}

	p, err := h.products.SetImageURL(cctx, id, obj.URL)
	if err != nil {
		h.uploader.discard(cctx, storage.BucketProducts, obj.URL)
		h.respondErr(ctx, err, "Could not update image")
		return
	}
	h.uploader.discard(cctx, storage.BucketProducts, current.ImageURL)

	h.audit.Record(cctx, activity.ActionUpload, activity.EntityProduct, id, gin.H{"imageUrl": obj.URL})
	ctx.JSON(http.StatusOK, p)
}
