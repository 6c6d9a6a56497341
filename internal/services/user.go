package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/keyfold/keyfold-server/internal/model"
	"github.com/keyfold/keyfold-server/internal/store"
)

var emailRx = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// NormalizeEmail lowercases the domain part of an address. The local part is
// kept as given; uniqueness is enforced case-insensitively by the store.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at+1] + strings.ToLower(email[at+1:])
}

// UserService handles account lifecycle and credential verification.
type UserService struct {
	store store.Store
}

func NewUserService(s store.Store) *UserService { return &UserService{store: s} }

func (s *UserService) validateCredentials(email, password string) (string, error) {
	email = NormalizeEmail(email)
	if email == "" || !emailRx.MatchString(email) {
		return "", fmt.Errorf("%w: invalid email", model.ErrValidation)
	}
	if password == "" {
		return "", fmt.Errorf("%w: password must not be blank", model.ErrValidation)
	}
	return email, nil
}

// Signup creates a user together with its encrypted symmetric key record and
// Default collection, in one store transaction. A duplicate email surfaces as
// a validation conflict.
func (s *UserService) Signup(ctx context.Context, email, password, encryptedKey string) (*model.User, error) {
	email, err := s.validateCredentials(email, password)
	if err != nil {
		return nil, err
	}
	if encryptedKey == "" {
		return nil, fmt.Errorf("%w: encryptedSymmetricKey must not be blank", model.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &model.User{Email: email, PasswordHash: string(hash), IsActive: true}
	return s.store.Users().CreateWithKey(ctx, u, encryptedKey)
}

// CreateUser creates an account without a key record (no network exposure;
// used by tests and tooling). The Default collection is still provisioned.
func (s *UserService) CreateUser(ctx context.Context, email, password string) (*model.User, error) {
	return s.create(ctx, email, password, false)
}

// CreateSuperuser creates an account with elevated flags. Only reachable
// through the admin CLI, never over the network boundary.
func (s *UserService) CreateSuperuser(ctx context.Context, email, password string) (*model.User, error) {
	return s.create(ctx, email, password, true)
}

func (s *UserService) create(ctx context.Context, email, password string, super bool) (*model.User, error) {
	email, err := s.validateCredentials(email, password)
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &model.User{Email: email, PasswordHash: string(hash), IsActive: true, IsStaff: super, IsSuperuser: super}
	return s.store.Users().Create(ctx, u)
}

// Authenticate verifies credentials. Unknown email, wrong password and an
// inactive account all return the same ErrAuthenticationFailed so a caller
// cannot probe which emails are registered.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.store.Users().GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.ErrAuthenticationFailed
		}
		return nil, err
	}
	if !u.IsActive {
		return nil, model.ErrAuthenticationFailed
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, model.ErrAuthenticationFailed
	}
	return u, nil
}

// Key returns the user's encrypted symmetric key record. Accounts without one
// (pre-migration users) get a permission failure, not a server fault.
func (s *UserService) Key(ctx context.Context, userID int64) (*model.UserKey, error) {
	k, err := s.store.UserKeys().Get(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.ErrPermissionDenied
		}
		return nil, err
	}
	return k, nil
}
