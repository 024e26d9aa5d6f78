package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RespondJSONWithETag writes payload with a content hash ETag and answers
// 304 when a GET or HEAD presents a matching If-None-Match.
func RespondJSONWithETag(ctx *gin.Context, status int, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		ctx.JSON(status, payload)
		return
	}

	sum := sha256.Sum256(b)
	etag := `W/"` + hex.EncodeToString(sum[:16]) + `"`
	ctx.Header("ETag", etag)

	method := ctx.Request.Method
	if (method == http.MethodGet || method == http.MethodHead) && etagMatches(ctx.GetHeader("If-None-Match"), etag) {
		ctx.Status(http.StatusNotModified)
		return
	}

	ctx.Data(status, "application/json; charset=utf-8", b)
}

func etagMatches(header, etag string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}

	want := opaqueTag(etag)
	for _, part := range strings.Split(header, ",") {
		if opaqueTag(part) == want {
			return true
		}
	}
	return false
}

// opaqueTag drops the weak prefix; If-None-Match uses weak comparison.
func opaqueTag(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "W/")
}
