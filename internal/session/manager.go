// Package session implements the server-side session gate: opaque tokens
// persisted in the store, with a per-session anti-forgery token required on
// unsafe methods. It is an explicit issue/validate/invalidate interface so
// the access-control core tests without a transport stack.
package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"time"

	"github.com/keyfold/keyfold-server/internal/model"
	"github.com/keyfold/keyfold-server/internal/store"
)

type Manager struct {
	sessions store.Sessions
	ttl      time.Duration
}

func NewManager(s store.Sessions, ttl time.Duration) *Manager {
	return &Manager{sessions: s, ttl: ttl}
}

// Issue creates a fresh session for the user. Login always issues a new
// session rather than reusing one, so a pre-login token can never be fixated.
func (m *Manager) Issue(ctx context.Context, userID int64) (*model.Session, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	csrf, err := newToken()
	if err != nil {
		return nil, err
	}
	s := &model.Session{
		Token:     token,
		CSRFToken: csrf,
		UserID:    userID,
		ExpiresAt: time.Now().UTC().Add(m.ttl),
	}
	if err := m.sessions.Create(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate resolves a presented token to a live session. Unknown and expired
// tokens both come back as ErrAuthenticationRequired.
func (m *Manager) Validate(ctx context.Context, token string) (*model.Session, error) {
	if token == "" {
		return nil, model.ErrAuthenticationRequired
	}
	s, err := m.sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.ErrAuthenticationRequired
		}
		return nil, err
	}
	return s, nil
}

// Invalidate removes the session. Removing an already-gone token is not an
// error; logout must be idempotent at this layer.
func (m *Manager) Invalidate(ctx context.Context, token string) error {
	err := m.sessions.Delete(ctx, token)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	return err
}

// VerifyCSRF compares the presented anti-forgery token against the session's
// in constant time.
func (m *Manager) VerifyCSRF(s *model.Session, presented string) bool {
	if presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s.CSRFToken), []byte(presented)) == 1
}

// PurgeExpired removes expired session rows; called periodically by the
// service runner.
func (m *Manager) PurgeExpired(ctx context.Context) (int64, error) {
	return m.sessions.DeleteExpired(ctx, time.Now().UTC())
}

// 32 bytes from crypto/rand, base64url without padding.
func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
