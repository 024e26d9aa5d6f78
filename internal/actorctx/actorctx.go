// Package actorctx carries the authenticated actor through context.Context so
// code below the HTTP layer (activity recording, job enqueueing) can attribute
// changes without depending on gin.
package actorctx

import "context"

type Actor struct {
	UserID string
	Email  string
	Role   string
	IP     string
}

type ctxKey struct{}

func With(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

func From(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(Actor)
	return a, ok && a.UserID != ""
}

func UserIDFrom(ctx context.Context) (string, bool) {
	a, ok := From(ctx)
	return a.UserID, ok
}
