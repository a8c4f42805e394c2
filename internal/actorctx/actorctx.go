// Package actorctx carries the authenticated caller through request contexts
// so service-level logs can name who performed an admin action.
package actorctx

import "context"

type key struct{}

type Actor struct {
	UserID string
	Role   string
}

func With(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, key{}, a)
}

func From(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(key{}).(Actor)

	return a, ok && a.UserID != ""
}
