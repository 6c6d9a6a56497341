package api

import (
	"net/http"

	"github.com/keyfold/keyfold-server/internal/api/respond"
	"github.com/keyfold/keyfold-server/internal/model"
	"github.com/keyfold/keyfold-server/internal/services"
	"github.com/keyfold/keyfold-server/internal/store"
)

type UserHandler struct {
	users  *services.UserService
	store  store.Store
	secure bool
}

func NewUserHandler(users *services.UserService, st store.Store, secure bool) *UserHandler {
	return &UserHandler{users: users, store: st, secure: secure}
}

// Me handles GET /api/users/me.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := IdentityFrom(r.Context())
	if !ok {
		writeServiceError(w, r, model.ErrAuthenticationRequired)
		return
	}
	respond.WriteJSON(w, http.StatusOK, u)
}

// Key handles GET /api/users/me/key.
func (h *UserHandler) Key(w http.ResponseWriter, r *http.Request) {
	u, ok := IdentityFrom(r.Context())
	if !ok {
		writeServiceError(w, r, model.ErrAuthenticationRequired)
		return
	}
	k, err := h.users.Key(r.Context(), u.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, k)
}

// Delete handles DELETE /api/users/me. The account and everything under it
// go in one cascade; the session cookie dies with it.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	u, ok := IdentityFrom(r.Context())
	if !ok {
		writeServiceError(w, r, model.ErrAuthenticationRequired)
		return
	}
	if err := h.store.Users().Delete(r.Context(), u.ID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	clearSessionCookies(w, h.secure)
	w.WriteHeader(http.StatusNoContent)
}
