package api

import (
	"net/http"
	"time"

	"github.com/keyfold/keyfold-server/internal/model"
)

const (
	// SessionCookie carries the opaque session token. HttpOnly keeps it
	// out of reach of page scripts.
	SessionCookie = "vault_session"

	// CSRFCookie is readable by the client so it can echo the value back
	// in the CSRFHeader on unsafe requests.
	CSRFCookie = "vault_csrf"

	// CSRFHeader is required on every non-safe method.
	CSRFHeader = "X-CSRF-Token"
)

func setSessionCookies(w http.ResponseWriter, s *model.Session, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    s.Token,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookie,
		Value:    s.CSRFToken,
		Path:     "/",
		Expires:  s.ExpiresAt,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookies(w http.ResponseWriter, secure bool) {
	expired := time.Unix(0, 0)
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  expired,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookie,
		Value:    "",
		Path:     "/",
		Expires:  expired,
		MaxAge:   -1,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
