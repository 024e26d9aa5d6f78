package db

import (
	"context"
	"errors"

	"github.com/geocoder89/backoffice/internal/config"
	"github.com/geocoder89/backoffice/internal/domain/user"
	"github.com/geocoder89/backoffice/internal/security"
)

var ErrAdminCredentialsMissing = errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set")

type UserEnsurer interface {
	EnsureUser(ctx context.Context, u user.User) (bool, error)
}

// EnsureAdminUser creates the configured admin unless a user with that email
// already exists. created is false when nothing was inserted.
func EnsureAdminUser(ctx context.Context, users UserEnsurer, cfg config.Config) (created bool, err error) {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return false, ErrAdminCredentialsMissing
	}

	hash, err := security.HashPassword(cfg.AdminPassword)
	if err != nil {
		return false, err
	}

	u := user.NewFromCreateRequest(user.CreateUserRequest{
		Email:    cfg.AdminEmail,
		Password: cfg.AdminPassword,
		Name:     cfg.AdminName,
		Role:     user.RoleAdmin,
	}, hash)

	return users.EnsureUser(ctx, u)
}
