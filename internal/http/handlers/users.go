package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/geocoder89/backoffice/internal/domain/activity"
	"github.com/geocoder89/backoffice/internal/domain/user"
	"github.com/geocoder89/backoffice/internal/http/middlewares"
	"github.com/geocoder89/backoffice/internal/repo/postgres"
	"github.com/geocoder89/backoffice/internal/rowquery"
	"github.com/geocoder89/backoffice/internal/security"
	"github.com/geocoder89/backoffice/internal/storage"
	"github.com/gin-gonic/gin"
)

type UsersStore interface {
	List(ctx context.Context, q rowquery.Query) ([]user.User, int, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	Create(ctx context.Context, u user.User) (user.User, error)
	Update(ctx context.Context, id string, req user.UpdateUserRequest, newPasswordHash *string) (user.User, error)
	Delete(ctx context.Context, id string) error
	SetAvatarURL(ctx context.Context, id, url string) (user.User, error)
}

type UsersHandler struct {
	users    UsersStore
	audit    ActivityRecorder
	uploader *Uploader
}

func NewUsersHandler(users UsersStore, audit ActivityRecorder, uploader *Uploader) *UsersHandler {
	return &UsersHandler{users: users, audit: audit, uploader: uploader}
}

func (h *UsersHandler) respondErr(ctx *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, user.ErrNotFound):
		RespondNotFound(ctx, "User not found")
	case errors.Is(err, user.ErrEmailTaken):
		RespondConflict(ctx, "email_taken", "Email is already in use.")
	case errors.Is(err, user.ErrLastAdmin):
		RespondConflict(ctx, "last_admin", "At least one active admin is required.")
	default:
		RespondInternal(ctx, fallback)
	}
}

// GET /users
func (h *UsersHandler) List(ctx *gin.Context) {
	q, ok := parseQuery(ctx, postgres.UserSchema)
	if !ok {
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	items, total, err := h.users.List(cctx, q)
	if err != nil {
		RespondInternal(ctx, "Could not list users")
		return
	}

	RespondPage(ctx, items, total, q.Limit, q.Offset)
}

// GET /users/:id
func (h *UsersHandler) Get(ctx *gin.Context) {
	id, ok := validID(ctx, "id")
	if !ok {
		return
	}

	cctx, cancel := withTimeout(ctx, 2*time.Second)
	defer cancel()

	u, err := h.users.GetByID(cctx, id)
	if err != nil {
		h.respondErr(ctx, err, "Could not fetch user")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, u)
}

// POST /users
func (h *UsersHandler) Create(ctx *gin.Context) {
	var req user.CreateUserRequest
	if !BindJSON(ctx, &req) {
		return
	}

	hash, err := security.HashPassword(req.Password)
	if err != nil {
		RespondInternal(ctx, "Could not create user")
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := h.users.Create(cctx, user.NewFromCreateRequest(req, hash))
	if err != nil {
		h.respondErr(ctx, err, "Could not create user")
		return
	}

	h.audit.Record(cctx, activity.ActionCreate, activity.EntityUser, u.ID, gin.H{"email": u.Email, "role": u.Role})
	ctx.JSON(http.StatusCreated, u)
}

// PUT /users/:id
func (h *UsersHandler) Update(ctx *gin.Context) {
	id, ok := validID(ctx, "id")
	if !ok {
		return
	}

	var req user.UpdateUserRequest
	if !BindJSON(ctx, &req) {
		return
	}

	self, _ := middlewares.UserIDFromContext(ctx)
	if id == self && (req.Active != nil && !*req.Active) {
		RespondConflict(ctx, "cannot_deactivate_self", "You cannot deactivate your own account.")
		return
	}

	var newHash *string
	if req.Password != nil {
		hash, err := security.HashPassword(*req.Password)
		if err != nil {
			RespondInternal(ctx, "Could not update user")
			return
		}
		newHash = &hash
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := h.users.Update(cctx, id, req, newHash)
	if err != nil {
		h.respondErr(ctx, err, "Could not update user")
		return
	}

	details := gin.H{}
	if req.Name != nil {
		details["name"] = u.Name
	}
	if req.Role != nil {
		details["role"] = u.Role
	}
	if req.Active != nil {
		details["active"] = u.Active
	}
	if req.Password != nil {
		details["passwordReset"] = true
	}
	h.audit.Record(cctx, activity.ActionUpdate, activity.EntityUser, u.ID, details)

	ctx.JSON(http.StatusOK, u)
}

// DELETE /users/:id
func (h *UsersHandler) Delete(ctx *gin.Context) {
	id, ok := validID(ctx, "id")
	if !ok {
		return
	}

	if self, _ := middlewares.UserIDFromContext(ctx); self == id {
		RespondConflict(ctx, "cannot_delete_self", "You cannot delete your own account.")
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := h.users.Delete(cctx, id); err != nil {
		h.respondErr(ctx, err, "Could not delete user")
		return
	}

	h.audit.Record(cctx, activity.ActionDelete, activity.EntityUser, id, nil)
	ctx.Status(http.StatusNoContent)
}

// POST /users/:id/avatar, admins or the user themself
func (h *UsersHandler) UploadAvatar(ctx *gin.Context) {
	id, ok := validID(ctx, "id")
	if !ok {
		return
	}

	self, _ := middlewares.UserIDFromContext(ctx)
	role, _ := middlewares.RoleFromContext(ctx)
	if id != self && role != string(user.RoleAdmin) {
		RespondForbidden(ctx, "forbidden", "You can only change your own avatar.")
		return
	}

	cctx, cancel := withTimeout(ctx, 40*time.Second)
	defer cancel()

	current, err := h.users.GetByID(cctx, id)
	if err != nil {
		h.respondErr(ctx, err, "Could not update avatar")
		return
	}

	obj, ok := h.uploader.receive(ctx, storage.BucketAvatars)
	if !ok {
		return
	}

	u, err := h.users.SetAvatarURL(cctx, id, obj.URL)
	if err != nil {
		h.uploader.discard(cctx, storage.BucketAvatars, obj.URL)
		h.respondErr(ctx, err, "Could not update avatar")
		return
	}
	h.uploader.discard(cctx, storage.BucketAvatars, current.AvatarURL)

	h.audit.Record(cctx, activity.ActionUpload, activity.EntityUser, id, gin.H{"avatarUrl": obj.URL})
	ctx.JSON(http.StatusOK, u)
}
