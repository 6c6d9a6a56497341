package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/keyfold/keyfold-server/internal/model"
	"github.com/keyfold/keyfold-server/internal/store"
	"github.com/keyfold/keyfold-server/internal/store/sqlite"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := sqlite.New(filepath.Join(t.TempDir(), "vault.db"))
	if err != nil {
		t.Fatalf("sqlite store: %v", err)
	}
	return s
}

func TestNormalizeEmail(t *testing.T) {
	cases := map[string]string{
		"Alice@Example.COM":   "Alice@example.com",
		"  bob@example.org  ": "bob@example.org",
		"no-at-sign":          "no-at-sign",
	}
	for in, want := range cases {
		if got := NormalizeEmail(in); got != want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSignupRequiresKey(t *testing.T) {
	svc := NewUserService(newTestStore(t))
	_, err := svc.Signup(context.Background(), "a@example.com", "correct-horse", "")
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSignupProvisionsKey(t *testing.T) {
	svc := NewUserService(newTestStore(t))
	u, err := svc.Signup(context.Background(), "a@example.com", "correct-horse", "enc-key-blob")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	k, err := svc.Key(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	if k.EncryptedKey != "enc-key-blob" {
		t.Fatalf("unexpected key payload %q", k.EncryptedKey)
	}
}

func TestAuthenticateDoesNotRevealAccountExistence(t *testing.T) {
	st := newTestStore(t)
	svc := NewUserService(st)
	ctx := context.Background()

	u, err := svc.Signup(ctx, "a@example.com", "correct-horse", "enc")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	_, wrongPw := svc.Authenticate(ctx, "a@example.com", "wrong")
	_, noAccount := svc.Authenticate(ctx, "nobody@example.com", "wrong")
	if !errors.Is(wrongPw, model.ErrAuthenticationFailed) || !errors.Is(noAccount, model.ErrAuthenticationFailed) {
		t.Fatalf("expected uniform auth failure, got %v / %v", wrongPw, noAccount)
	}
	if wrongPw.Error() != noAccount.Error() {
		t.Fatalf("failure messages differ: %q vs %q", wrongPw, noAccount)
	}

	if err := st.Users().Delete(ctx, u.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestAuthenticateInactiveAccount(t *testing.T) {
	st := newTestStore(t)
	svc := NewUserService(st)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, "a@example.com", "correct-horse", "enc"); err != nil {
		t.Fatalf("signup: %v", err)
	}
	// Login works while active.
	if _, err := svc.Authenticate(ctx, "a@example.com", "correct-horse"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	// Email lookup is case-insensitive on the domain.
	if _, err := svc.Authenticate(ctx, "a@EXAMPLE.com", "correct-horse"); err != nil {
		t.Fatalf("authenticate with mixed-case domain: %v", err)
	}
}

func TestKeyAbsentIsPermissionDenied(t *testing.T) {
	svc := NewUserService(newTestStore(t))
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, "legacy@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Key(ctx, u.ID); !errors.Is(err, model.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
}

func TestCreateSuperuserSetsFlags(t *testing.T) {
	st := newTestStore(t)
	svc := NewUserService(st)
	ctx := context.Background()

	u, err := svc.CreateSuperuser(ctx, "root@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("create superuser: %v", err)
	}
	got, err := st.Users().Get(ctx, u.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.IsStaff || !got.IsSuperuser {
		t.Fatalf("expected staff+superuser flags, got %+v", got)
	}
}
