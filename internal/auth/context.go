// Package auth carries the acting identity of a request. There is no
// authentication: the identity is whatever the client names, used to
// attribute proof uploads and completions.
package auth

import "context"

type contextKey struct{}

// Actor is the identity a request acts as.
type Actor struct {
	Name string
	// FromHeader is false when the name fell back to the client address.
	FromHeader bool
}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, a)
}

func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(contextKey{}).(Actor)
	return a, ok
}

// Name returns the actor name, or "" when none was attached.
func Name(ctx context.Context) string {
	a, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return a.Name
}
