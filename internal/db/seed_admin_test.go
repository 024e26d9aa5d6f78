package db

import (
	"context"
	"errors"
	"testing"

	"github.com/geocoder89/backoffice/internal/config"
	"github.com/geocoder89/backoffice/internal/domain/user"
	"github.com/geocoder89/backoffice/internal/security"
	"golang.org/x/crypto/bcrypt"
)

type fakeEnsurer struct {
	got user.User
}

func (f *fakeEnsurer) EnsureUser(_ context.Context, u user.User) (bool, error) {
	f.got = u
	return true, nil
}

func TestEnsureAdminUser(t *testing.T) {
	security.Cost = bcrypt.MinCost

	f := &fakeEnsurer{}
	created, err := EnsureAdminUser(context.Background(), f, config.Config{
		AdminEmail:    " Owner@Shop.Example ",
		AdminPassword: "correct horse",
		AdminName:     "Owner",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatal("expected created")
	}
	if f.got.Email != "owner@shop.example" || f.got.Role != user.RoleAdmin || !f.got.Active {
		t.Fatalf("unexpected user: %+v", f.got)
	}
	if err := security.CheckPassword(f.got.PasswordHash, "correct horse"); err != nil {
		t.Fatalf("stored hash does not match: %v", err)
	}
}

func TestEnsureAdminUser_RequiresCredentials(t *testing.T) {
	_, err := EnsureAdminUser(context.Background(), &fakeEnsurer{}, config.Config{AdminEmail: "a@b.c"})
	if !errors.Is(err, ErrAdminCredentialsMissing) {
		t.Fatalf("got %v, want ErrAdminCredentialsMissing", err)
	}
}
