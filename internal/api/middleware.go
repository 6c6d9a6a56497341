package api

import (
	"net/http"

	"github.com/keyfold/keyfold-server/internal/model"
	"github.com/keyfold/keyfold-server/internal/session"
	"github.com/keyfold/keyfold-server/internal/store"
)

// Auth gates protected routes behind a valid session cookie and, for unsafe
// methods, a matching CSRF header.
type Auth struct {
	sessions *session.Manager
	users    store.Users
}

func NewAuth(sessions *session.Manager, users store.Users) *Auth {
	return &Auth{sessions: sessions, users: users}
}

// Require wraps a handler so it only runs for authenticated requests. The
// resolved user and session are placed on the request context.
func (a *Auth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookie)
		if err != nil {
			writeServiceError(w, r, model.ErrAuthenticationRequired)
			return
		}
		sess, err := a.sessions.Validate(r.Context(), cookie.Value)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if !safeMethod(r.Method) && !a.sessions.VerifyCSRF(sess, r.Header.Get(CSRFHeader)) {
			writeServiceError(w, r, model.ErrCSRFRejected)
			return
		}
		u, err := a.users.Get(r.Context(), sess.UserID)
		if err != nil || !u.IsActive {
			writeServiceError(w, r, model.ErrAuthenticationRequired)
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), u, sess)))
	})
}

func safeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
