package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/backoffice/internal/actorctx"
	"github.com/geocoder89/backoffice/internal/auth"
	"github.com/geocoder89/backoffice/internal/config"
	"github.com/geocoder89/backoffice/internal/domain/activity"
	"github.com/geocoder89/backoffice/internal/domain/user"
	"github.com/geocoder89/backoffice/internal/http/middlewares"
	"github.com/geocoder89/backoffice/internal/repo/postgres"
	"github.com/geocoder89/backoffice/internal/security"
	"github.com/gin-gonic/gin"
)

const refreshCookieName = "refresh_token"

type AuthUserStore interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	TouchLastLogin(ctx context.Context, id string) error
}

type SessionStore interface {
	Issue(ctx context.Context, row postgres.RefreshTokenRow) error
	Rotate(ctx context.Context, oldID, presentedHash string, next postgres.RefreshTokenRow) error
	RevokeByID(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}

// ActivityRecorder is implemented by *activity.Recorder.
type ActivityRecorder interface {
	Record(ctx context.Context, action activity.Action, entity, entityID string, details any)
	RecordAs(ctx context.Context, a actorctx.Actor, action activity.Action, entity, entityID string, details any)
}

type AuthHandler struct {
	users    AuthUserStore
	sessions SessionStore
	jwt      *auth.Manager
	audit    ActivityRecorder
	secure   bool
	now      func() time.Time
}

func NewAuthHandler(users AuthUserStore, sessions SessionStore, jwtManager *auth.Manager, audit ActivityRecorder, cfg config.Config) *AuthHandler {
	return &AuthHandler{
		users:    users,
		sessions: sessions,
		jwt:      jwtManager,
		audit:    audit,
		secure:   cfg.Env != "dev" && cfg.Env != "test",
		now:      time.Now,
	}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresIn   int       `json:"expiresIn"`
	User        user.User `json:"user"`
}

func identityOf(u user.User) auth.Identity {
	return auth.Identity{UserID: u.ID, Email: u.Email, Role: string(u.Role)}
}

// POST /auth/login
func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := h.users.GetByEmail(cctx, req.Email)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			RespondInternal(ctx, "Could not sign in")
			return
		}
		// same cost as a real comparison so unknown emails are not observable
		security.BurnCompare(req.Password)
		RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
		return
	}

	if err := security.CheckPassword(u.PasswordHash, req.Password); err != nil || !u.Active {
		RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
		return
	}

	access, refresh, err := h.mint(u)
	if err != nil {
		RespondInternal(ctx, "Could not create session")
		return
	}

	if err := h.sessions.Issue(cctx, h.refreshRow(u.ID, refresh)); err != nil {
		RespondInternal(ctx, "Could not create session")
		return
	}

	if err := h.users.TouchLastLogin(cctx, u.ID); err != nil {
		slog.WarnContext(cctx, "touch last login", "user_id", u.ID, "err", err)
	}

	h.audit.RecordAs(cctx, actorctx.Actor{
		UserID: u.ID,
		Email:  u.Email,
		Role:   string(u.Role),
		IP:     ctx.ClientIP(),
	}, activity.ActionLogin, activity.EntityUser, u.ID, nil)

	h.setRefreshCookie(ctx, refresh.Raw, refresh.ExpiresAt)
	ctx.JSON(http.StatusOK, h.tokenResponse(access, u))
}

// POST /auth/refresh
func (h *AuthHandler) Refresh(ctx *gin.Context) {
	raw, err := ctx.Cookie(refreshCookieName)
	if err != nil || raw == "" {
		RespondUnAuthorized(ctx, "no_refresh", "Missing refresh token")
		return
	}

	claims, err := h.jwt.VerifyRefreshToken(raw)
	if err != nil {
		h.clearRefreshCookie(ctx)
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token")
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	// role and active flag come from the database, not the old token
	u, err := h.users.GetByID(cctx, claims.UserID)
	if err != nil || !u.Active {
		if err != nil && !errors.Is(err, user.ErrNotFound) {
			RespondInternal(ctx, "Could not refresh session")
			return
		}
		h.clearRefreshCookie(ctx)
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token")
		return
	}

	access, refresh, err := h.mint(u)
	if err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	err = h.sessions.Rotate(cctx, claims.JTI, h.jwt.HashRefreshToken(raw), h.refreshRow(u.ID, refresh))
	switch {
	case err == nil:
	case errors.Is(err, postgres.ErrRefreshTokenReused):
		slog.WarnContext(cctx, "refresh token reuse, sessions revoked", "user_id", u.ID)
		h.clearRefreshCookie(ctx)
		RespondUnAuthorized(ctx, "refresh_reused", "Session was revoked. Please sign in again.")
		return
	case errors.Is(err, postgres.ErrRefreshTokenExpired):
		h.clearRefreshCookie(ctx)
		RespondUnAuthorized(ctx, "expired_refresh", "Refresh token expired.")
		return
	case errors.Is(err, postgres.ErrRefreshTokenNotFound):
		h.clearRefreshCookie(ctx)
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token")
		return
	default:
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	h.setRefreshCookie(ctx, refresh.Raw, refresh.ExpiresAt)
	ctx.JSON(http.StatusOK, h.tokenResponse(access, u))
}

// POST /auth/logout[?all=true]
func (h *AuthHandler) Logout(ctx *gin.Context) {
	defer func() {
		h.clearRefreshCookie(ctx)
		ctx.Status(http.StatusNoContent)
	}()

	raw, err := ctx.Cookie(refreshCookieName)
	if err != nil || raw == "" {
		return
	}

	claims, err := h.jwt.VerifyRefreshToken(raw)
	if err != nil {
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	if ctx.Query("all") == "true" {
		err = h.sessions.RevokeAllForUser(cctx, claims.UserID)
	} else {
		err = h.sessions.RevokeByID(cctx, claims.JTI)
	}
	if err != nil {
		slog.WarnContext(cctx, "revoke on logout", "user_id", claims.UserID, "err", err)
	}

	h.audit.RecordAs(cctx, actorctx.Actor{
		UserID: claims.UserID,
		Email:  claims.Email,
		Role:   claims.Role,
		IP:     ctx.ClientIP(),
	}, activity.ActionLogout, activity.EntityUser, claims.UserID, nil)
}

// GET /auth/me
func (h *AuthHandler) Me(ctx *gin.Context) {
	id, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	cctx, cancel := withTimeout(ctx, 2*time.Second)
	defer cancel()

	u, err := h.users.GetByID(cctx, id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondUnAuthorized(ctx, "unauthorized", "User no longer exists")
			return
		}
		RespondInternal(ctx, "Could not load user")
		return
	}

	ctx.JSON(http.StatusOK, u)
}

func (h *AuthHandler) mint(u user.User) (string, auth.RefreshToken, error) {
	access, err := h.jwt.GenerateAccessToken(identityOf(u))
	if err != nil {
		return "", auth.RefreshToken{}, err
	}
	refresh, err := h.jwt.GenerateRefreshToken(identityOf(u))
	if err != nil {
		return "", auth.RefreshToken{}, err
	}
	return access, refresh, nil
}

func (h *AuthHandler) refreshRow(userID string, t auth.RefreshToken) postgres.RefreshTokenRow {
	return postgres.RefreshTokenRow{
		ID:        t.JTI,
		UserID:    userID,
		TokenHash: h.jwt.HashRefreshToken(t.Raw),
		ExpiresAt: t.ExpiresAt,
		CreatedAt: h.now().UTC(),
	}
}

func (h *AuthHandler) tokenResponse(access string, u user.User) tokenResponse {
	return tokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.jwt.AccessTTL().Seconds()),
		User:        u,
	}
}

func (h *AuthHandler) setRefreshCookie(ctx *gin.Context, raw string, expiresAt time.Time) {
	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(refreshCookieName, raw, int(expiresAt.Sub(h.now()).Seconds()), "/auth", "", h.secure, true)
}

func (h *AuthHandler) clearRefreshCookie(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(refreshCookieName, "", -1, "/auth", "", h.secure, true)
}
