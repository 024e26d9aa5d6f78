package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/geocoder89/backoffice/internal/auth"
	"github.com/geocoder89/backoffice/internal/http/handlers"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRouter(t *testing.T, ping func(context.Context) error) (*gin.Engine, *auth.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jwtManager := auth.NewManager("router-test-secret", time.Minute, time.Hour)
	r := NewRouter(Deps{
		Env:      "test",
		Verifier: jwtManager,
		Gatherer: prometheus.NewRegistry(),
		Health:   handlers.NewHealthHandler(ping),
	})
	return r, jwtManager
}

func bearer(t *testing.T, m *auth.Manager, role string) string {
	t.Helper()
	tok, err := m.GenerateAccessToken(auth.Identity{UserID: "6f1c6e2a-8d7b-4c47-9a36-2f0d7b1c9e02", Email: role + "@example.com", Role: role})
	require.NoError(t, err)
	return "Bearer " + tok
}

func serve(r http.Handler, method, path, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_PublicEndpoints(t *testing.T) {
	r, _ := testRouter(t, func(context.Context) error { return nil })

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/readyz", "").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/metrics", "").Code)

	w := serve(r, http.MethodGet, "/healthz", "")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestRouter_ReadyzReportsDatabase(t *testing.T) {
	r, _ := testRouter(t, func(context.Context) error { return errors.New("down") })

	assert.Equal(t, http.StatusServiceUnavailable, serve(r, http.MethodGet, "/readyz", "").Code)
}

func TestRouter_RoleGating(t *testing.T) {
	r, m := testRouter(t, nil)
	staff := bearer(t, m, "staff")
	viewer := bearer(t, m, "viewer")

	cases := []struct {
		name   string
		method string
		path   string
		authz  string
		want   int
	}{
		{"no token", http.MethodGet, "/products", "", http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/products", "Bearer nope", http.StatusUnauthorized},
		{"unknown role", http.MethodGet, "/products", viewer, http.StatusForbidden},
		{"staff on users", http.MethodGet, "/users", staff, http.StatusForbidden},
		{"staff on jobs", http.MethodGet, "/admin/jobs", staff, http.StatusForbidden},
		{"staff deleting product", http.MethodDelete, "/products/0b7c4a3e-3f57-4b8e-9a53-5a1b1f1f2a10", staff, http.StatusForbidden},
		{"staff writing settings", http.MethodPut, "/settings", staff, http.StatusForbidden},
		{"me without token", http.MethodGet, "/auth/me", "", http.StatusUnauthorized},
		{"query token on list", http.MethodGet, "/products?access_token=" + strings.TrimPrefix(staff, "Bearer "), "", http.StatusUnauthorized},
		{"query token on stream", http.MethodGet, "/realtime/products?access_token=" + strings.TrimPrefix(viewer, "Bearer "), "", http.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(r, tc.method, tc.path, tc.authz)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
}
