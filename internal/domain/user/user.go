package user

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
)

func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleStaff
}

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"` // never expose hash in JSON
	Name         string     `json:"name"`
	Role         Role       `json:"role"`
	Active       bool       `json:"active"`
	AvatarURL    string     `json:"avatarUrl,omitempty"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

var (
	ErrNotFound         = errors.New("user not found")
	ErrEmailTaken       = errors.New("email already in use")
	ErrLastAdmin        = errors.New("at least one active admin is required")
	ErrCannotDeleteSelf = errors.New("users cannot delete themselves")
)

type CreateUserRequest struct {
	Email    string `json:"email" binding:"required,email,max=254"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	Name     string `json:"name" binding:"required,min=2,max=80"`
	Role     Role   `json:"role" binding:"required,oneof=admin staff"`
}

// UpdateUserRequest is a partial update; nil fields are left unchanged.
type UpdateUserRequest struct {
	Name     *string `json:"name" binding:"omitempty,min=2,max=80"`
	Role     *Role   `json:"role" binding:"omitempty,oneof=admin staff"`
	Active   *bool   `json:"active"`
	Password *string `json:"password" binding:"omitempty,min=8,max=72"`
}

// RemovesAdmin reports whether applying req to u takes away an active admin.
func (req UpdateUserRequest) RemovesAdmin(u User) bool {
	if u.Role != RoleAdmin || !u.Active {
		return false
	}
	if req.Role != nil && *req.Role != RoleAdmin {
		return true
	}
	return req.Active != nil && !*req.Active
}

// Apply returns u with the non-nil fields of req applied. The password is
// handled by the caller since it needs hashing.
func (req UpdateUserRequest) Apply(u User) User {
	if req.Name != nil {
		u.Name = strings.TrimSpace(*req.Name)
	}
	if req.Role != nil {
		u.Role = *req.Role
	}
	if req.Active != nil {
		u.Active = *req.Active
	}
	return u
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func NewFromCreateRequest(req CreateUserRequest, passwordHash string) User {
	now := time.Now().UTC()

	return User{
		ID:           uuid.NewString(),
		Email:        NormalizeEmail(req.Email),
		PasswordHash: passwordHash,
		Name:         strings.TrimSpace(req.Name),
		Role:         req.Role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
