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

type ItemHandler struct {
	svc *services.VaultService
}

func NewItemHandler(svc *services.VaultService) *ItemHandler { return &ItemHandler{svc: svc} }

func (h *ItemHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	u, ok := IdentityFrom(r.Context())
	if !ok {
		writeServiceError(w, r, model.ErrAuthenticationRequired)
		return
	}
	var in struct {
		CollectionUUID string `json:"collectionUuid"`
		EncryptedData  string `json:"encryptedData"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond.WriteBadRequest(w, "invalid json")
		return
	}
	collectionUUID, err := validate.UUID("collectionUuid", in.CollectionUUID)
	if err != nil {
		respond.WriteFieldErrors(w, map[string]string{"collectionUuid": err.Error()})
		return
	}
	if err := validate.NonEmpty("encryptedData", in.EncryptedData); err != nil {
		respond.WriteFieldErrors(w, map[string]string{"encryptedData": err.Error()})
		return
	}
	item, err := h.svc.CreateItem(r.Context(), u.ID, collectionUUID, in.EncryptedData)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, item)
}

// ListItems handles GET /api/items with an optional collection filter,
// GET /api/items?collection=<uuid>.
func (h *ItemHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	u, ok := IdentityFrom(r.Context())
	if !ok {
		writeServiceError(w, r, model.ErrAuthenticationRequired)
		return
	}
	collectionUUID := ""
	if raw := r.URL.Query().Get("collection"); raw != "" {
		var err error
		collectionUUID, err = validate.UUID("collection", raw)
		if err != nil {
			respond.WriteBadRequest(w, err.Error())
			return
		}
	}
	items, err := h.svc.ListItems(r.Context(), u.ID, collectionUUID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"count": len(items),
	})
}

func (h *ItemHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	u, ok := IdentityFrom(r.Context())
	if !ok {
		writeServiceError(w, r, model.ErrAuthenticationRequired)
		return
	}
	id, err := validate.UUID("itemId", mux.Vars(r)["itemId"])
	if err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	item, err := h.svc.GetItem(r.Context(), u.ID, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, item)
}

// UpdateItem handles PUT /api/items/{itemId}. A collectionUuid in the body
// moves the item; omitting it leaves the item where it is.
func (h *ItemHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	u, ok := IdentityFrom(r.Context())
	if !ok {
		writeServiceError(w, r, model.ErrAuthenticationRequired)
		return
	}
	id, err := validate.UUID("itemId", mux.Vars(r)["itemId"])
	if err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	var in struct {
		EncryptedData  string  `json:"encryptedData"`
		CollectionUUID *string `json:"collectionUuid,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond.WriteBadRequest(w, "invalid json")
		return
	}
	if err := validate.NonEmpty("encryptedData", in.EncryptedData); err != nil {
		respond.WriteFieldErrors(w, map[string]string{"encryptedData": err.Error()})
		return
	}
	if in.CollectionUUID != nil {
		target, err := validate.UUID("collectionUuid", *in.CollectionUUID)
		if err != nil {
			respond.WriteFieldErrors(w, map[string]string{"collectionUuid": err.Error()})
			return
		}
		in.CollectionUUID = &target
	}
	item, err := h.svc.UpdateItem(r.Context(), u.ID, id, in.EncryptedData, in.CollectionUUID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, item)
}

func (h *ItemHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	u, ok := IdentityFrom(r.Context())
	if !ok {
		writeServiceError(w, r, model.ErrAuthenticationRequired)
		return
	}
	id, err := validate.UUID("itemId", mux.Vars(r)["itemId"])
	if err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if err := h.svc.DeleteItem(r.Context(), u.ID, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
