package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/keyfold/keyfold-server/internal/model"
	"github.com/keyfold/keyfold-server/internal/store"
	"github.com/keyfold/keyfold-server/internal/store/sqlite"
)

func newTestManager(t *testing.T, ttl time.Duration) (*Manager, store.Store) {
	t.Helper()
	st, err := sqlite.New(filepath.Join(t.TempDir(), "vault.db"))
	if err != nil {
		t.Fatalf("sqlite store: %v", err)
	}
	return NewManager(st.Sessions(), ttl), st
}

func newTestUser(t *testing.T, st store.Store) *model.User {
	t.Helper()
	u, err := st.Users().Create(context.Background(), &model.User{
		Email:        "a@example.com",
		PasswordHash: "x",
		IsActive:     true,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestIssueAndValidate(t *testing.T) {
	m, st := newTestManager(t, time.Hour)
	u := newTestUser(t, st)
	ctx := context.Background()

	s1, err := m.Issue(ctx, u.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	s2, err := m.Issue(ctx, u.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if s1.Token == s2.Token || s1.CSRFToken == s2.CSRFToken {
		t.Fatal("tokens must be unique per session")
	}

	got, err := m.Validate(ctx, s1.Token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got.UserID != u.ID {
		t.Fatalf("wrong user %d", got.UserID)
	}
}

func TestValidateRejectsUnknownAndEmptyTokens(t *testing.T) {
	m, _ := newTestManager(t, time.Hour)
	ctx := context.Background()

	if _, err := m.Validate(ctx, ""); !errors.Is(err, model.ErrAuthenticationRequired) {
		t.Fatalf("empty token: expected auth required, got %v", err)
	}
	if _, err := m.Validate(ctx, "bogus"); !errors.Is(err, model.ErrAuthenticationRequired) {
		t.Fatalf("unknown token: expected auth required, got %v", err)
	}
}

func TestValidateRejectsExpiredSession(t *testing.T) {
	m, st := newTestManager(t, -time.Minute)
	u := newTestUser(t, st)
	ctx := context.Background()

	s, err := m.Issue(ctx, u.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Validate(ctx, s.Token); !errors.Is(err, model.ErrAuthenticationRequired) {
		t.Fatalf("expired session: expected auth required, got %v", err)
	}
}

func TestInvalidateIsIdempotent(t *testing.T) {
	m, st := newTestManager(t, time.Hour)
	u := newTestUser(t, st)
	ctx := context.Background()

	s, err := m.Issue(ctx, u.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := m.Invalidate(ctx, s.Token); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if err := m.Invalidate(ctx, s.Token); err != nil {
		t.Fatalf("second invalidate: %v", err)
	}
	if _, err := m.Validate(ctx, s.Token); !errors.Is(err, model.ErrAuthenticationRequired) {
		t.Fatalf("validate after invalidate: expected auth required, got %v", err)
	}
}

func TestVerifyCSRF(t *testing.T) {
	m, st := newTestManager(t, time.Hour)
	u := newTestUser(t, st)

	s, err := m.Issue(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !m.VerifyCSRF(s, s.CSRFToken) {
		t.Fatal("matching csrf token rejected")
	}
	if m.VerifyCSRF(s, "") || m.VerifyCSRF(s, "forged") {
		t.Fatal("non-matching csrf token accepted")
	}
}

func TestPurgeExpired(t *testing.T) {
	m, st := newTestManager(t, -time.Minute)
	u := newTestUser(t, st)
	ctx := context.Background()

	if _, err := m.Issue(ctx, u.ID); err != nil {
		t.Fatalf("issue: %v", err)
	}
	n, err := m.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged session, got %d", n)
	}
}
