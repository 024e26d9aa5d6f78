package product

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Product struct {
	ID                string    `json:"id"`
	SKU               string    `json:"sku"`
	Name              string    `json:"name"`
	Description       string    `json:"description,omitempty"`
	Category          string    `json:"category,omitempty"`
	PriceCents        int64     `json:"priceCents"`
	Stock             int       `json:"stock"`
	LowStockThreshold int       `json:"lowStockThreshold"`
	Active            bool      `json:"active"`
	ImageURL          string    `json:"imageUrl,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func (p Product) IsLowStock() bool {
	return p.Stock <= p.LowStockThreshold
}

var (
	ErrNotFound          = errors.New("product not found")
	ErrSKUTaken          = errors.New("sku already in use")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInactive          = errors.New("product is not active")
)

const DefaultLowStockThreshold = 5

type CreateProductRequest struct {
	SKU               string `json:"sku" binding:"required,sku"`
	Name              string `json:"name" binding:"required,min=2,max=120"`
	Description       string `json:"description" binding:"omitempty,max=2000"`
	Category          string `json:"category" binding:"omitempty,max=60"`
	PriceCents        *int64 `json:"priceCents" binding:"required,min=0"`
	Stock             int    `json:"stock" binding:"omitempty,min=0,max=1000000"`
	LowStockThreshold *int   `json:"lowStockThreshold" binding:"omitempty,min=0,max=100000"`
	Active            *bool  `json:"active"`
}

// UpdateProductRequest is a full update of the editable fields. Stock is
// only changed through stock adjustments and orders.
type UpdateProductRequest struct {
	SKU               string `json:"sku" binding:"required,sku"`
	Name              string `json:"name" binding:"required,min=2,max=120"`
	Description       string `json:"description" binding:"omitempty,max=2000"`
	Category          string `json:"category" binding:"omitempty,max=60"`
	PriceCents        *int64 `json:"priceCents" binding:"required,min=0"`
	LowStockThreshold *int   `json:"lowStockThreshold" binding:"required,min=0,max=100000"`
	Active            *bool  `json:"active" binding:"required"`
}

type StockAdjustmentRequest struct {
	Delta  int    `json:"delta" binding:"required,min=-1000000,max=1000000"`
	Reason string `json:"reason" binding:"required,min=2,max=200"`
}

func NewFromCreateRequest(req CreateProductRequest) Product {
	now := time.Now().UTC()

	threshold := DefaultLowStockThreshold
	if req.LowStockThreshold != nil {
		threshold = *req.LowStockThreshold
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	var price int64
	if req.PriceCents != nil {
		price = *req.PriceCents
	}

	return Product{
		ID:                uuid.NewString(),
		SKU:               NormalizeSKU(req.SKU),
		Name:              strings.TrimSpace(req.Name),
		Description:       req.Description,
		Category:          strings.TrimSpace(req.Category),
		PriceCents:        price,
		Stock:             req.Stock,
		LowStockThreshold: threshold,
		Active:            active,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func NormalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}
