package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/geocoder89/backoffice/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
	Details   any    `json:"details,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	if id := ctx.GetString(middlewares.CtxRequestID); id != "" {
		return id
	}
	return ctx.GetHeader("X-Request-Id")
}

// withTimeout derives from the request context so the actor and request id
// travel with it into repos.
func withTimeout(ctx *gin.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), d)
}

func RespondError(ctx *gin.Context, status int, code, message string, details any) {
	ctx.AbortWithStatusJSON(status, gin.H{
		"error": APIError{
			Code:      code,
			Message:   message,
			RequestID: requestIDFrom(ctx),
			Details:   details,
		},
	})
}

func RespondBadRequest(ctx *gin.Context, message string, details any) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

func RespondInvalidQuery(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusBadRequest, "invalid_query", message, nil)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message, nil)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message, nil)
}

func RespondConflict(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusConflict, code, message, nil)
}

func RespondUnAuthorized(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusUnauthorized, code, message, nil)
}

func RespondForbidden(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusForbidden, code, message, nil)
}

// Page is the envelope of offset-paginated list endpoints.
type Page[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func RespondPage[T any](ctx *gin.Context, items []T, total, limit, offset int) {
	if items == nil {
		items = []T{}
	}
	ctx.Header("X-Total-Count", strconv.Itoa(total))
	RespondJSONWithETag(ctx, http.StatusOK, Page[T]{Items: items, Total: total, Limit: limit, Offset: offset})
}

// validID rejects malformed ids before they reach Postgres as a uuid cast error.
func validID(ctx *gin.Context, param string) (string, bool) {
	id := ctx.Param(param)
	if !isUUID(id) {
		RespondBadRequest(ctx, "invalid id", gin.H{"param": param})
		return "", false
	}
	return id, true
}
