package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/geocoder89/backoffice/internal/domain/user"
	"github.com/geocoder89/backoffice/internal/http/middlewares"
	"github.com/geocoder89/backoffice/internal/realtime"
	"github.com/gin-gonic/gin"
)

type ChangeSubscriber interface {
	Subscribe(table string) (*realtime.Subscription, error)
}

type RealtimeHandler struct {
	hub       ChangeSubscriber
	heartbeat time.Duration
}

func NewRealtimeHandler(hub ChangeSubscriber) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, heartbeat: 25 * time.Second}
}

// GET /realtime/:table streams row changes as Server-Sent Events.
func (h *RealtimeHandler) Stream(ctx *gin.Context) {
	table := ctx.Param("table")
	if !realtime.KnownTable(table) {
		RespondNotFound(ctx, "Unknown table")
		return
	}
	if role, _ := middlewares.RoleFromContext(ctx); table == "users" && role != string(user.RoleAdmin) {
		RespondForbidden(ctx, "forbidden", "Admin role required")
		return
	}

	sub, err := h.hub.Subscribe(table)
	if err != nil {
		if errors.Is(err, realtime.ErrUnknownTable) {
			RespondNotFound(ctx, "Unknown table")
			return
		}
		RespondError(ctx, http.StatusServiceUnavailable, "unavailable", "Change feed is shutting down", nil)
		return
	}
	defer sub.Close()

	ctx.Header("Content-Type", "text/event-stream")
	ctx.Header("Cache-Control", "no-cache")
	ctx.Header("Connection", "keep-alive")
	ctx.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	done := ctx.Request.Context().Done()

	ctx.SSEvent("ready", gin.H{"table": table})
	ctx.Writer.Flush()

	ctx.Stream(func(io.Writer) bool {
		select {
		case <-done:
			return false
		case c, ok := <-sub.Changes():
			if !ok {
				return false
			}
			ctx.SSEvent("change", c)
			return true
		case t := <-ticker.C:
			ctx.SSEvent("heartbeat", gin.H{"at": t.UTC()})
			return true
		}
	})
}
