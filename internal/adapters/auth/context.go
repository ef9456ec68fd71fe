package auth

import (
	"context"

	"github.com/okian/scorenft/internal/domain/model"
)

type callerKey struct{}

// WithCaller returns a context carrying an authenticated caller.
func WithCaller(ctx context.Context, caller model.Identity) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom returns the authenticated caller, if any.
func CallerFrom(ctx context.Context) (model.Identity, bool) {
	caller, ok := ctx.Value(callerKey{}).(model.Identity)
	if !ok || caller.IsZero() {
		return "", false
	}
	return caller, true
}
