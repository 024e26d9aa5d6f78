package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/geocoder89/backoffice/internal/domain/activity"
	"github.com/geocoder89/backoffice/internal/domain/order"
	"github.com/geocoder89/backoffice/internal/domain/product"
	"github.com/geocoder89/backoffice/internal/repo/postgres"
	"github.com/geocoder89/backoffice/internal/rowquery"
	"github.com/gin-gonic/gin"
)

type OrdersStore interface {
	List(ctx context.Context, q rowquery.Query, from, to *time.Time) ([]order.Order, int, error)
	GetByID(ctx context.Context, id string) (order.Order, error)
	Create(ctx context.Context, req order.CreateOrderRequest) (order.Order, error)
	ChangeStatus(ctx context.Context, id string, to order.Status) (order.Order, order.Status, error)
	Delete(ctx context.Context, id string) error
}

type OrdersHandler struct {
	orders OrdersStore
	audit  ActivityRecorder
}

func NewOrdersHandler(orders OrdersStore, audit ActivityRecorder) *OrdersHandler {
	return &OrdersHandler{orders: orders, audit: audit}
}

func (h *OrdersHandler) respondErr(ctx *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, order.ErrNotFound):
		RespondNotFound(ctx, "Order not found")
	case errors.Is(err, product.ErrNotFound):
		RespondError(ctx, http.StatusUnprocessableEntity, "product_not_found", "Product does not exist.", nil)
	case errors.Is(err, product.ErrInactive):
		RespondConflict(ctx, "product_inactive", "Product is not active.")
	case errors.Is(err, product.ErrInsufficientStock):
		RespondConflict(ctx, "insufficient_stock", "Not enough stock for this order.")
	case errors.Is(err, order.ErrInvalidTransition):
		RespondConflict(ctx, "invalid_transition", "Order cannot move to that status.")
	case errors.Is(err, order.ErrActive):
		RespondConflict(ctx, "order_active", "Only cancelled or refunded orders can be deleted.")
	default:
		RespondInternal(ctx, fallback)
	}
}

// GET /orders?from=&to=
func (h *OrdersHandler) List(ctx *gin.Context) {
	q, ok := parseQuery(ctx, postgres.OrderSchema, "from", "to")
	if !ok {
		return
	}

	from, ok := optionalTime(ctx, "from")
	if !ok {
		return
	}
	to, ok := optionalTime(ctx, "to")
	if !ok {
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	items, total, err := h.orders.List(cctx, q, from, to)
	if err != nil {
		RespondInternal(ctx, "Could not list orders")
		return
	}

	RespondPage(ctx, items, total, q.Limit, q.Offset)
}

// GET /orders/:id
func (h *OrdersHandler) Get(ctx *gin.Context) {
	id, ok := validID(ctx, "id")
	if !ok {
		return
	}

	cctx, cancel := withTimeout(ctx, 2*time.Second)
	defer cancel()

	o, err := h.orders.GetByID(cctx, id)
	if err != nil {
		h.respondErr(ctx, err, "Could not fetch order")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, o)
}

// POST /orders
func (h *OrdersHandler) Create(ctx *gin.Context) {
	var req order.CreateOrderRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	o, err := h.orders.Create(cctx, req)
	if err != nil {
		h.respondErr(ctx, err, "Could not create order")
		return
	}

	h.audit.Record(cctx, activity.ActionCreate, activity.EntityOrder, o.ID, gin.H{
		"productId":  o.ProductID,
		"quantity":   o.Quantity,
		"totalCents": o.TotalCents,
	})
	ctx.JSON(http.StatusCreated, o)
}

// PATCH /orders/:id/status
func (h *OrdersHandler) ChangeStatus(ctx *gin.Context) {
	id, ok := validID(ctx, "id")
	if !ok {
		return
	}

	var req order.StatusChangeRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	o, from, err := h.orders.ChangeStatus(cctx, id, req.Status)
	if err != nil {
		h.respondErr(ctx, err, "Could not change order status")
		return
	}

	h.audit.Record(cctx, activity.ActionStatusChange, activity.EntityOrder, o.ID, gin.H{
		"from":          from,
		"to":            o.Status,
		"stockRestored": o.Status.RestoresStock(),
	})
	ctx.JSON(http.StatusOK, o)
}

// DELETE /orders/:id
func (h *OrdersHandler) Delete(ctx *gin.Context) {
	id, ok := validID(ctx, "id")
	if !ok {
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := h.orders.Delete(cctx, id); err != nil {
		h.respondErr(ctx, err, "Could not delete order")
		return
	}

	h.audit.Record(cctx, activity.ActionDelete, activity.EntityOrder, id, nil)
	ctx.Status(http.StatusNoContent)
}
