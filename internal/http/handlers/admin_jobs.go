package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/geocoder89/backoffice/internal/domain/job"
	"github.com/geocoder89/backoffice/internal/utils"
	"github.com/gin-gonic/gin"
)

type AdminJobsRepo interface {
	ListCursor(ctx context.Context, status *job.Status, limit int, cursor *utils.JobCursor) (items []job.Job, nextCursor *string, err error)
	GetByID(ctx context.Context, id string) (job.Job, error)
	Retry(ctx context.Context, id string) error
	RetryManyFailed(ctx context.Context, limit int) (int64, error)
}

type AdminJobsHandler struct {
	repo AdminJobsRepo
}

func NewAdminJobsHandler(repo AdminJobsRepo) *AdminJobsHandler {
	return &AdminJobsHandler{repo: repo}
}

func parseIntDefault(s string, fallback int) (int, bool) {
	if s == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// GET /admin/jobs?status=failed&limit=20&cursor=
func (h *AdminJobsHandler) List(ctx *gin.Context) {
	limit, ok := parseIntDefault(ctx.Query("limit"), 20)
	if !ok || limit < 1 || limit > 100 {
		RespondInvalidQuery(ctx, "limit must be between 1 and 100")
		return
	}

	var status *job.Status
	if s := ctx.Query("status"); s != "" {
		st := job.Status(s)
		if !st.IsValid() {
			RespondInvalidQuery(ctx, "status is invalid")
			return
		}
		status = &st
	}

	var cursor *utils.JobCursor
	if raw := ctx.Query("cursor"); raw != "" {
		cur, err := utils.DecodeJobCursor(raw)
		if err != nil {
			RespondInvalidQuery(ctx, "cursor is invalid")
			return
		}
		cursor = &cur
	}

	cctx, cancel := withTimeout(ctx, 2*time.Second)
	defer cancel()

	items, next, err := h.repo.ListCursor(cctx, status, limit, cursor)
	if err != nil {
		RespondInternal(ctx, "Could not list jobs")
		return
	}
	if items == nil {
		items = []job.Job{}
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{
		"limit":      limit,
		"count":      len(items),
		"items":      items,
		"hasMore":    next != nil,
		"nextCursor": next,
	})
}

// GET /admin/jobs/:id
func (h *AdminJobsHandler) GetByID(ctx *gin.Context) {
	id, ok := validID(ctx, "id")
	if !ok {
		return
	}

	cctx, cancel := withTimeout(ctx, 2*time.Second)
	defer cancel()

	j, err := h.repo.GetByID(cctx, id)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			RespondNotFound(ctx, "Job not found")
			return
		}
		RespondInternal(ctx, "Could not fetch job")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, j)
}

// POST /admin/jobs/:id/retry
func (h *AdminJobsHandler) Retry(ctx *gin.Context) {
	id, ok := validID(ctx, "id")
	if !ok {
		return
	}

	cctx, cancel := withTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := h.repo.Retry(cctx, id); err != nil {
		switch {
		case errors.Is(err, job.ErrJobNotFound):
			RespondNotFound(ctx, "Job not found")
		case errors.Is(err, job.ErrJobNotFailed):
			RespondConflict(ctx, "job_not_failed", "Only failed jobs can be retried")
		default:
			RespondInternal(ctx, "Could not retry job")
		}
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"jobId":  id,
		"status": job.StatusPending,
	})
}

// POST /admin/jobs/reprocess-dead?limit=50
func (h *AdminJobsHandler) ReprocessDead(ctx *gin.Context) {
	limit, ok := parseIntDefault(ctx.Query("limit"), 50)
	if !ok {
		RespondInvalidQuery(ctx, "limit must be a number")
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	n, err := h.repo.RetryManyFailed(cctx, limit)
	if err != nil {
		RespondInternal(ctx, "Could not reprocess dead jobs")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"requeued": n})
}
