package api

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/keyfold/keyfold-server/internal/api/respond"
	"github.com/keyfold/keyfold-server/internal/api/validate"
	"github.com/keyfold/keyfold-server/internal/model"
	"github.com/keyfold/keyfold-server/internal/ratelimit"
	"github.com/keyfold/keyfold-server/internal/services"
	"github.com/keyfold/keyfold-server/internal/session"
)

type AuthHandler struct {
	users    *services.UserService
	sessions *session.Manager
	limiter  *ratelimit.SignupLimiter
	secure   bool
}

func NewAuthHandler(users *services.UserService, sessions *session.Manager, limiter *ratelimit.SignupLimiter, secure bool) *AuthHandler {
	return &AuthHandler{users: users, sessions: sessions, limiter: limiter, secure: secure}
}

// Signup handles POST /api/auth/signup. Accounts are throttled per client
// origin; a successful signup does not log the user in.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow(clientIP(r)) {
		writeServiceError(w, r, model.ErrThrottled)
		return
	}
	var in struct {
		Email        string `json:"email"`
		Password     string `json:"password"`
		EncryptedKey string `json:"encryptedKey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond.WriteBadRequest(w, "invalid json")
		return
	}
	fields := map[string]string{}
	if err := validate.Email(in.Email); err != nil {
		fields["email"] = err.Error()
	}
	if err := validate.Password(in.Password); err != nil {
		fields["password"] = err.Error()
	}
	if err := validate.NonEmpty("encryptedKey", in.EncryptedKey); err != nil {
		fields["encryptedKey"] = err.Error()
	}
	if len(fields) > 0 {
		respond.WriteFieldErrors(w, fields)
		return
	}
	u, err := h.users.Signup(r.Context(), in.Email, in.Password, in.EncryptedKey)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, u)
}

// Login handles POST /api/auth/login. On success it sets the session and
// CSRF cookies and returns the account's encrypted symmetric key so the
// client can unlock its vault.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond.WriteBadRequest(w, "invalid json")
		return
	}
	fields := map[string]string{}
	if err := validate.Email(in.Email); err != nil {
		fields["email"] = err.Error()
	}
	if err := validate.NonEmpty("password", in.Password); err != nil {
		fields["password"] = err.Error()
	}
	if len(fields) > 0 {
		respond.WriteFieldErrors(w, fields)
		return
	}
	u, err := h.users.Authenticate(r.Context(), in.Email, in.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	// An account without a key record cannot unlock anything; refuse the
	// login before any session exists.
	k, err := h.users.Key(r.Context(), u.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	sess, err := h.sessions.Issue(r.Context(), u.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	setSessionCookies(w, sess, h.secure)

	out := struct {
		*model.User
		CSRFToken    string `json:"csrfToken"`
		EncryptedKey string `json:"encryptedKey"`
	}{User: u, CSRFToken: sess.CSRFToken, EncryptedKey: k.EncryptedKey}
	respond.WriteJSON(w, http.StatusOK, out)
}

// Logout handles POST /api/auth/logout. Invalidation is idempotent; the
// cookies are cleared either way.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := SessionFrom(r.Context()); ok {
		if err := h.sessions.Invalidate(r.Context(), sess.Token); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}
	clearSessionCookies(w, h.secure)
	w.WriteHeader(http.StatusNoContent)
}

// clientIP prefers the first hop of X-Forwarded-For and falls back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, ok := strings.Cut(xff, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
