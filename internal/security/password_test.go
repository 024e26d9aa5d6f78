package security

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	Cost = bcrypt.MinCost
	m.Run()
}

func TestHashAndCheck(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	if err := CheckPassword(hash, "correct horse"); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	if err := CheckPassword(hash, "wrong"); err != ErrPasswordMismatch {
		t.Fatalf("expected ErrPasswordMismatch, got %v", err)
	}
}

func TestCheckPasswordMalformedHash(t *testing.T) {
	if err := CheckPassword("not-bcrypt", "x"); err == nil || err == ErrPasswordMismatch {
		t.Fatalf("expected a hash error, got %v", err)
	}
}
