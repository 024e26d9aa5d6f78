package actorctx

import (
	"context"
	"testing"
)

func TestWithAndFrom(t *testing.T) {
	ctx := With(context.Background(), Actor{UserID: "u1", Email: "a@b.c", Role: "admin", IP: "10.0.0.1"})

	a, ok := From(ctx)
	if !ok {
		t.Fatal("expected actor")
	}
	if a.Email != "a@b.c" || a.IP != "10.0.0.1" {
		t.Fatalf("unexpected actor %+v", a)
	}

	id, ok := UserIDFrom(ctx)
	if !ok || id != "u1" {
		t.Fatalf("got %q %v", id, ok)
	}
}

func TestFromEmptyContext(t *testing.T) {
	if _, ok := From(context.Background()); ok {
		t.Fatal("expected no actor")
	}
	if _, ok := From(With(context.Background(), Actor{IP: "1.2.3.4"})); ok {
		t.Fatal("actor without user id should not count")
	}
}
