package integration__test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/geocoder89/backoffice/internal/config"
	"github.com/geocoder89/backoffice/internal/db"
	apphttp "github.com/geocoder89/backoffice/internal/http"
	"github.com/geocoder89/backoffice/internal/realtime"
	"github.com/geocoder89/backoffice/internal/repo/postgres"
	"github.com/geocoder89/backoffice/internal/security"
	"github.com/geocoder89/backoffice/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "correct-horse-battery"
)

type testEnv struct {
	router *gin.Engine
	pool   *pgxpool.Pool
	cfg    config.Config
}

func testConfig(dsn string) config.Config {
	return config.Config{
		Env:                 "test",
		DBURL:               dsn,
		JWTSecret:           "test-secret",
		JWTAccessTTLMinutes: 60,
		JWTRefreshTTLDays:   7,
		AdminEmail:          adminEmail,
		AdminPassword:       adminPassword,
		AdminName:           "Test Admin",
		UploadMaxBytes:      1 << 20,
	}
}

// setupEnv builds the full router against TEST_DB_DSN. The suite is skipped
// when no database is configured.
func setupEnv(t *testing.T) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	security.Cost = bcrypt.MinCost

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pg pool: %v", err)
	}
	t.Cleanup(pool.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))

	if _, err := db.Migrate(ctx, pool, logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := testConfig(dsn)
	store, err := storage.NewFSStore(t.TempDir(), "http://localhost/files", cfg.UploadMaxBytes,
		storage.BucketProducts, storage.BucketServices, storage.BucketAvatars)
	if err != nil {
		t.Fatalf("storage: %v", err)
	}

	hub := realtime.NewHub()
	t.Cleanup(hub.Close)

	router := apphttp.NewRouter(apphttp.Wire(cfg, logger, pool, nil, store, hub))

	env := testEnv{router: router, pool: pool, cfg: cfg}
	resetDB(t, pool)
	t.Cleanup(func() { resetDB(t, pool) })

	if _, err := db.EnsureAdminUser(ctx, postgres.NewUsersRepo(pool, nil), cfg); err != nil {
		t.Fatalf("seed admin: %v", err)
	}

	return env
}

func resetDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		TRUNCATE notification_deliveries, jobs, activity_logs, orders, bookings,
		         products, services, settings, refresh_tokens, users
		RESTART IDENTITY CASCADE
	`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

func refreshCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == "refresh_token" {
			return c
		}
	}
	return nil
}

func doRequest(router http.Handler, method, path string, body any, token string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func mustReadJSON[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode json: %v body=%s", err, rr.Body.String())
	}
	return out
}

type loginResponse struct {
	AccessToken string `json:"accessToken"`
	User        struct {
		ID   string `json:"id"`
		Role string `json:"role"`
	} `json:"user"`
}

type errorBody struct {
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
}

func login(t *testing.T, env testEnv) (loginResponse, *http.Cookie) {
	t.Helper()
	return loginAs(t, env, adminEmail, adminPassword)
}

func loginAs(t *testing.T, env testEnv, email, password string) (loginResponse, *http.Cookie) {
	t.Helper()
	rr := doRequest(env.router, http.MethodPost, "/auth/login",
		map[string]string{"email": email, "password": password}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	c := refreshCookie(rr)
	if c == nil {
		t.Fatal("login: missing refresh cookie")
	}
	return mustReadJSON[loginResponse](t, rr), c
}
