package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/keyfold/keyfold-server/internal/api/respond"
	"github.com/keyfold/keyfold-server/internal/api/validate"
	"github.com/keyfold/keyfold-server/internal/model"
	"github.com/keyfold/keyfold-server/internal/services"
)

type CollectionHandler struct {
	svc *services.VaultService
}

func NewCollectionHandler(svc *services.VaultService) *CollectionHandler {
	return &CollectionHandler{svc: svc}
}

func (h *CollectionHandler) CreateCollection(w http.ResponseWriter, r *http.Request) {
	u, ok := IdentityFrom(r.Context())
	if !ok {
		writeServiceError(w, r, model.ErrAuthenticationRequired)
		return
	}
	var in struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond.WriteBadRequest(w, "invalid json")
		return
	}
	if err := validate.CollectionName(in.Name); err != nil {
		respond.WriteFieldErrors(w, map[string]string{"name": err.Error()})
		return
	}
	c, err := h.svc.CreateCollection(r.Context(), u.ID, in.Name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, c)
}

func (h *CollectionHandler) ListCollections(w http.ResponseWriter, r *http.Request) {
	u, ok := IdentityFrom(r.Context())
	if !ok {
		writeServiceError(w, r, model.ErrAuthenticationRequired)
		return
	}
	cs, err := h.svc.ListCollections(r.Context(), u.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"collections": cs,
		"count":       len(cs),
	})
}

func (h *CollectionHandler) GetCollection(w http.ResponseWriter, r *http.Request) {
	u, ok := IdentityFrom(r.Context())
	if !ok {
		writeServiceError(w, r, model.ErrAuthenticationRequired)
		return
	}
	id, err := validate.UUID("collectionId", mux.Vars(r)["collectionId"])
	if err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	c, err := h.svc.GetCollection(r.Context(), u.ID, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, c)
}

func (h *CollectionHandler) RenameCollection(w http.ResponseWriter, r *http.Request) {
	u, ok := IdentityFrom(r.Context())
	if !ok {
		writeServiceError(w, r, model.ErrAuthenticationRequired)
		return
	}
	id, err := validate.UUID("collectionId", mux.Vars(r)["collectionId"])
	if err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	var in struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond.WriteBadRequest(w, "invalid json")
		return
	}
	if err := validate.CollectionName(in.Name); err != nil {
		respond.WriteFieldErrors(w, map[string]string{"name": err.Error()})
		return
	}
	c, err := h.svc.RenameCollection(r.Context(), u.ID, id, in.Name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, c)
}

func (h *CollectionHandler) DeleteCollection(w http.ResponseWriter, r *http.Request) {
	u, ok := IdentityFrom(r.Context())
	if !ok {
		writeServiceError(w, r, model.ErrAuthenticationRequired)
		return
	}
	id, err := validate.UUID("collectionId", mux.Vars(r)["collectionId"])
	if err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if err := h.svc.DeleteCollection(r.Context(), u.ID, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListCollectionItems handles GET /api/collections/{collectionId}/items and
// returns the item UUIDs in the collection.
func (h *CollectionHandler) ListCollectionItems(w http.ResponseWriter, r *http.Request) {
	u, ok := IdentityFrom(r.Context())
	if !ok {
		writeServiceError(w, r, model.ErrAuthenticationRequired)
		return
	}
	id, err := validate.UUID("collectionId", mux.Vars(r)["collectionId"])
	if err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	uuids, err := h.svc.CollectionItemUUIDs(r.Context(), u.ID, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if uuids == nil {
		uuids = []string{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"items": uuids,
		"count": len(uuids),
	})
}
