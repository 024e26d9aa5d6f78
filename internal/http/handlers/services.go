package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/geocoder89/backoffice/internal/domain/activity"
	"github.com/geocoder89/backoffice/internal/domain/catalog"
	"github.com/geocoder89/backoffice/internal/repo/postgres"
	"github.com/geocoder89/backoffice/internal/rowquery"
	"github.com/geocoder89/backoffice/internal/storage"
	"github.com/gin-gonic/gin"
)

type ServicesStore interface {
	List(ctx context.Context, q rowquery.Query) ([]catalog.Service, int, error)
	GetByID(ctx context.Context, id string) (catalog.Service, error)
	Create(ctx context.Context, req catalog.CreateServiceRequest) (catalog.Service, error)
	Update(ctx context.Context, id string, req catalog.UpdateServiceRequest) (catalog.Service, error)
	Delete(ctx context.Context, id string) error
	SetImageURL(ctx context.Context, id, url string) (catalog.Service, error)
}

type ServicesHandler struct {
	services ServicesStore
	audit    ActivityRecorder
	uploader *Uploader
}

func NewServicesHandler(services ServicesStore, audit ActivityRecorder, uploader *Uploader) *ServicesHandler {
	return &ServicesHandler{services: services, audit: audit, uploader: uploader}
}

func (h *ServicesHandler) respondErr(ctx *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		RespondNotFound(ctx, "Service not found")
	case errors.Is(err, catalog.ErrInUse):
		RespondConflict(ctx, "service_in_use", "Service has upcoming bookings.")
	default:
		RespondInternal(ctx, fallback)
	}
}

// GET /services
func (h *ServicesHandler) List(ctx *gin.Context) {
	q, ok := parseQuery(ctx, postgres.ServiceSchema)
	if !ok {
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	items, total, err := h.services.List(cctx, q)
	if err != nil {
		RespondInternal(ctx, "Could not list services")
		return
	}

	RespondPage(ctx, items, total, q.Limit, q.Offset)
}

// GET /services/:id
func (h *ServicesHandler) Get(ctx *gin.Context) {
	id, ok := validID(ctx, "id")
	if !ok {
		return
	}

	cctx, cancel := withTimeout(ctx, 2*time.Second)
	defer cancel()

	s, err := h.services.GetByID(cctx, id)
	if err != nil {
		h.respondErr(ctx, err, "Could not fetch service")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, s)
}

// POST /services
func (h *ServicesHandler) Create(ctx *gin.Context) {
	var req catalog.CreateServiceRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	s, err := h.services.Create(cctx, req)
	if err != nil {
		h.respondErr(ctx, err, "Could not create service")
		return
	}

	h.audit.Record(cctx, activity.ActionCreate, activity.EntityService, s.ID, gin.H{"name": s.Name})
	ctx.JSON(http.StatusCreated, s)
}

// PUT /services/:id
func (h *ServicesHandler) Update(ctx *gin.Context) {
	id, ok := validID(ctx, "id")
	if !ok {
		return
	}

	var req catalog.UpdateServiceRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	s, err := h.services.Update(cctx, id, req)
	if err != nil {
		h.respondErr(ctx, err, "Could not update service")
		return
	}

	h.audit.Record(cctx, activity.ActionUpdate, activity.EntityService, s.ID, gin.H{
		"name":            s.Name,
		"durationMinutes": s.DurationMinutes,
		"active":          s.Active,
	})
	ctx.JSON(http.StatusOK, s)
}

// DELETE /services/:id
func (h *ServicesHandler) Delete(ctx *gin.Context) {
	id, ok := validID(ctx, "id")
	if !ok {
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	current, err := h.services.GetByID(cctx, id)
	if err != nil {
		h.respondErr(ctx, err, "Could not delete service")
		return
	}

	if err := h.services.Delete(cctx, id); err != nil {
		h.respondErr(ctx, err, "Could not delete service")
		return
	}
	h.uploader.discard(cctx, storage.BucketServices, current.ImageURL)

	h.audit.Record(cctx, activity.ActionDelete, activity.EntityService, id, gin.H{"name": current.Name})
	ctx.Status(http.StatusNoContent)
}

// POST /services/:id/image
func (h *ServicesHandler) UploadImage(ctx *gin.Context) {
	id, ok := validID(ctx, "id")
	if !ok {
		return
	}

	cctx, cancel := withTimeout(ctx, 40*time.Second)
	defer cancel()

	current, err := h.services.GetByID(cctx, id)
	if err != nil {
		h.respondErr(ctx, err, "Could not update image")
		return
	}

	obj, ok := h.uploader.receive(ctx, storage.BucketServices)
	if !ok {
		return
	}

	s, err := h.services.SetImageURL(cctx, id, obj.URL)
	if err != nil {
		h.uploader.discard(cctx, storage.BucketServices, obj.URL)
		h.respondErr(ctx, err, "Could not update image")
		return
	}
	h.uploader.discard(cctx, storage.BucketServices, current.ImageURL)

	h.audit.Record(cctx, activity.ActionUpload, activity.EntityService, id, gin.H{"imageUrl": obj.URL})
	ctx.JSON(http.StatusOK, s)
}
