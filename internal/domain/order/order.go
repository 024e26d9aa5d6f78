package order

import (
	"errors"
	"strings"
	"time"

	"github.com/geocoder89/backoffice/internal/domain/product"
	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusPaid, StatusCancelled},
	StatusPaid:      {StatusShipped, StatusCancelled, StatusRefunded},
	StatusShipped:   {StatusCompleted},
	StatusCompleted: {StatusRefunded},
}

func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// RestoresStock is true for statuses that put the ordered quantity back.
func (s Status) RestoresStock() bool {
	return s == StatusCancelled || s == StatusRefunded
}

// CountsAsRevenue is true once money has been taken and not returned.
func (s Status) CountsAsRevenue() bool {
	return s == StatusPaid || s == StatusShipped || s == StatusCompleted
}

type Order struct {
	ID             string    `json:"id"`
	ProductID      *string   `json:"productId"`
	ProductName    string    `json:"productName"`
	CustomerName   string    `json:"customerName"`
	CustomerEmail  string    `json:"customerEmail,omitempty"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unitPriceCents"`
	TotalCents     int64     `json:"totalCents"`
	Status         Status    `json:"status"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

var (
	ErrNotFound          = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrActive            = errors.New("only cancelled or refunded orders can be deleted")
)

type CreateOrderRequest struct {
	ProductID     string `json:"productId" binding:"required,uuid"`
	CustomerName  string `json:"customerName" binding:"required,min=2,max=120"`
	CustomerEmail string `json:"customerEmail" binding:"omitempty,email"`
	Quantity      int    `json:"quantity" binding:"required,min=1,max=10000"`
	Notes         string `json:"notes" binding:"omitempty,max=1000"`
}

type StatusChangeRequest struct {
	Status Status `json:"status" binding:"required,oneof=pending paid shipped completed cancelled refunded"`
}

// NewFromProduct prices the order from the product as it is right now.
func NewFromProduct(req CreateOrderRequest, p product.Product) Order {
	now := time.Now().UTC()
	productID := p.ID

	return Order{
		ID:             uuid.NewString(),
		ProductID:      &productID,
		ProductName:    p.Name,
		CustomerName:   strings.TrimSpace(req.CustomerName),
		CustomerEmail:  strings.TrimSpace(req.CustomerEmail),
		Quantity:       req.Quantity,
		UnitPriceCents: p.PriceCents,
		TotalCents:     p.PriceCents * int64(req.Quantity),
		Status:         StatusPending,
		Notes:          req.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
