package api

import (
	"context"

	"github.com/keyfold/keyfold-server/internal/model"
)

type ctxKey int

const (
	identityKey ctxKey = iota
	sessionKey
)

func withIdentity(ctx context.Context, u *model.User, s *model.Session) context.Context {
	ctx = context.WithValue(ctx, identityKey, u)
	return context.WithValue(ctx, sessionKey, s)
}

// IdentityFrom returns the authenticated user placed on the context by the
// auth middleware.
func IdentityFrom(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(identityKey).(*model.User)
	return u, ok
}

// SessionFrom returns the session backing the current request.
func SessionFrom(ctx context.Context) (*model.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*model.Session)
	return s, ok
}
