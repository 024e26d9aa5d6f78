package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/geocoder89/backoffice/internal/domain/activity"
	"github.com/geocoder89/backoffice/internal/repo/postgres"
	"github.com/geocoder89/backoffice/internal/rowquery"
	"github.com/geocoder89/backoffice/internal/utils"
	"github.com/gin-gonic/gin"
)

type ActivityStore interface {
	List(ctx context.Context, q rowquery.Query, cursor *utils.ActivityCursor) ([]activity.Entry, *string, error)
}

type ActivityHandler struct {
	store ActivityStore
}

func NewActivityHandler(store ActivityStore) *ActivityHandler {
	return &ActivityHandler{store: store}
}

// GET /activity?cursor=&limit=&entity=
func (h *ActivityHandler) List(ctx *gin.Context) {
	q, ok := parseQuery(ctx, postgres.ActivitySchema, "cursor")
	if !ok {
		return
	}

	var cursor *utils.ActivityCursor
	if raw := ctx.Query("cursor"); raw != "" {
		cur, err := utils.DecodeActivityCursor(raw)
		if err != nil {
			RespondInvalidQuery(ctx, "cursor is invalid")
			return
		}
		cursor = &cur
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	items, next, err := h.store.List(cctx, q, cursor)
	if err != nil {
		RespondInternal(ctx, "Could not list activity")
		return
	}
	if items == nil {
		items = []activity.Entry{}
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{
		"items":      items,
		"limit":      q.Limit,
		"hasMore":    next != nil,
		"nextCursor": next,
	})
}
