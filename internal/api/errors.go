package api

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/keyfold/keyfold-server/internal/api/respond"
	"github.com/keyfold/keyfold-server/internal/model"
)

// writeServiceError translates service and store sentinels into the HTTP
// error surface. Anything unmatched is a server fault and gets logged with
// its stack.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		respond.WriteBadRequest(w, err.Error())
	case errors.Is(err, model.ErrConflict):
		respond.WriteBadRequest(w, "an account with this email already exists")
	case errors.Is(err, model.ErrAuthenticationFailed):
		respond.WriteForbidden(w, err.Error())
	case errors.Is(err, model.ErrAuthenticationRequired):
		respond.WriteForbidden(w, err.Error())
	case errors.Is(err, model.ErrCSRFRejected):
		// Same status as a missing session; the distinction lives in logs only.
		log.Warn().
			Str("method", r.Method).
			Str("url", r.URL.String()).
			Str("remote", r.RemoteAddr).
			Msg("csrf rejected")
		respond.WriteForbidden(w, model.ErrAuthenticationRequired.Error())
	case errors.Is(err, model.ErrPermissionDenied):
		respond.WriteForbidden(w, err.Error())
	case errors.Is(err, model.ErrNotFound):
		respond.WriteNotFound(w, "not found")
	case errors.Is(err, model.ErrThrottled):
		respond.WriteTooManyRequests(w, err.Error())
	default:
		log.Error().Stack().Err(err).
			Str("method", r.Method).
			Str("url", r.URL.String()).
			Msg("request failed")
		respond.WriteInternalError(w, "internal server error")
	}
}
