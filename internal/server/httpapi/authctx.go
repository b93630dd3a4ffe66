package httpapi

import (
	"context"

	"github.com/and161185/loandocs/internal/access"
	"github.com/and161185/loandocs/internal/model"
)

type ctxKey string

const (
	principalKey  ctxKey = "ld.principal"
	resolutionKey ctxKey = "ld.resolution"
)

// WithPrincipal stores the authenticated principal in context.
func WithPrincipal(ctx context.Context, p access.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromCtx fetches the principal; the zero (anonymous) principal when absent.
func PrincipalFromCtx(ctx context.Context) access.Principal {
	p, _ := ctx.Value(principalKey).(access.Principal)
	return p
}

// UserFromCtx fetches the authenticated user, if the principal is one.
func UserFromCtx(ctx context.Context) (model.User, bool) {
	return PrincipalFromCtx(ctx).User()
}

func withResolution(ctx context.Context, r model.Resolution) context.Context {
	return context.WithValue(ctx, resolutionKey, r)
}

func resolutionFromCtx(ctx context.Context) (model.Resolution, bool) {
	r, ok := ctx.Value(resolutionKey).(model.Resolution)
	return r, ok
}
