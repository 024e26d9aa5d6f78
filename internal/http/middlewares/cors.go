package middlewares

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

var (
	corsMethods = strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions,
	}, ",")
	corsAllowHeaders  = "Authorization,Content-Type,If-None-Match,X-Request-Id,Last-Event-ID"
	corsExposeHeaders = "ETag,X-Request-Id,X-Total-Count"
	corsMaxAge        = strconv.Itoa(600)
)

// CORSMiddleware allows credentialed requests from the listed console
// origins. Preflights from anywhere else are refused.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(o, "/")] = true
	}

	return func(ctx *gin.Context) {
		origin := ctx.GetHeader("Origin")
		ok := origin != "" && allowed[origin]

		if origin != "" {
			ctx.Header("Vary", "Origin")
		}
		if ok {
			h := ctx.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
		}

		if ctx.Request.Method != http.MethodOptions || ctx.GetHeader("Access-Control-Request-Method") == "" {
			ctx.Next()
			return
		}

		if !ok {
			ctx.AbortWithStatus(http.StatusForbidden)
			return
		}
		h := ctx.Writer.Header()
		h.Set("Access-Control-Allow-Methods", corsMethods)
		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		h.Set("Access-Control-Max-Age", corsMaxAge)
		ctx.AbortWithStatus(http.StatusNoContent)
	}
}
