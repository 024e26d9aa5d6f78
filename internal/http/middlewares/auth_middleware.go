package middlewares

import (
	"net/http"
	"strings"

	"github.com/geocoder89/backoffice/internal/actorctx"
	"github.com/geocoder89/backoffice/internal/auth"
	"github.com/gin-gonic/gin"
)

// Keep this small interface so tests can fake it easily.
type TokenVerifier interface {
	VerifyAccessToken(token string) (*auth.Claims, error)
}

type AuthMiddleware struct {
	jwt TokenVerifier
}

func NewAuthMiddleware(jwt TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{
			"code":      "unauthorized",
			"message":   message,
			"requestId": c.GetString(CtxRequestID),
		},
	})
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return m.requireAuth(false)
}

// RequireStreamAuth also accepts ?access_token= on GET, since EventSource
// cannot set headers. Mount it on stream routes only.
func (m *AuthMiddleware) RequireStreamAuth() gin.HandlerFunc {
	return m.requireAuth(true)
}

func (m *AuthMiddleware) requireAuth(queryToken bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)

		if raw == "" && queryToken && c.Request.Method == http.MethodGet {
			raw = c.Query("access_token")
		}

		if raw == "" {
			abortUnauthorized(c, "Missing or invalid Authorization header")
			return
		}

		claims, err := m.jwt.VerifyAccessToken(raw)
		if err != nil {
			abortUnauthorized(c, "Invalid or expired access token")
			return
		}

		c.Set(CtxUserID, claims.UserID)
		c.Set(CtxEmail, claims.Email)
		c.Set(CtxRole, claims.Role)

		c.Request = c.Request.WithContext(actorctx.With(c.Request.Context(), actorctx.Actor{
			UserID: claims.UserID,
			Email:  claims.Email,
			Role:   claims.Role,
			IP:     clientIP(c),
		}))

		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

// Helpers so handlers don't need to know the context keys.

func UserIDFromContext(c *gin.Context) (string, bool) {
	id := c.GetString(CtxUserID)
	return id, id != ""
}

func RoleFromContext(c *gin.Context) (string, bool) {
	role := c.GetString(CtxRole)
	return role, role != ""
}
