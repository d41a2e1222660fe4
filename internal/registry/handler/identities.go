package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"registry/internal/transport/http/shared"
)

// handleCreateIdentity serves both the server-assigned and the caller-assigned id
// routes; the identityId URL parameter is empty on the former.
func (h *Handler) handleCreateIdentity(w http.ResponseWriter, r *http.Request) {
	doc, err := decodeObject(r, true)
	if err != nil {
		h.writeError(w, r, "createIdentity", err)
		return
	}
	id, err := h.service.CreateIdentity(r.Context(), chi.URLParam(r, "personId"), chi.URLParam(r, "identityId"), doc)
	if err != nil {
		h.writeError(w, r, "createIdentity", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]string{"identityId": id})
}

func (h *Handler) handleReadIdentity(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.ReadIdentity(r.Context(), chi.URLParam(r, "personId"), chi.URLParam(r, "identityId"))
	if err != nil {
		h.writeError(w, r, "readIdentity", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleListIdentities(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.ListIdentities(r.Context(), chi.URLParam(r, "personId"))
	if err != nil {
		h.writeError(w, r, "readIdentities", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, docs)
}

func (h *Handler) handleReplaceIdentity(w http.ResponseWriter, r *http.Request) {
	doc, err := decodeObject(r, true)
	if err != nil {
		h.writeError(w, r, "updateIdentity", err)
		return
	}
	err = h.service.ReplaceIdentity(r.Context(), chi.URLParam(r, "personId"), chi.URLParam(r, "identityId"), doc)
	if err != nil {
		h.writeError(w, r, "updateIdentity", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePatchIdentity(w http.ResponseWriter, r *http.Request) {
	patch, err := decodeObject(r, true)
	if err != nil {
		h.writeError(w, r, "partialUpdateIdentity", err)
		return
	}
	err = h.service.PatchIdentity(r.Context(), chi.URLParam(r, "personId"), chi.URLParam(r, "identityId"), patch)
	if err != nil {
		h.writeError(w, r, "partialUpdateIdentity", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteIdentity(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteIdentity(r.Context(), chi.URLParam(r, "personId"), chi.URLParam(r, "identityId")); err != nil {
		h.writeError(w, r, "deleteIdentity", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMoveIdentity(w http.ResponseWriter, r *http.Request) {
	err := h.service.MoveIdentity(r.Context(),
		chi.URLParam(r, "personId"), chi.URLParam(r, "sourceId"), chi.URLParam(r, "identityId"))
	if err != nil {
		h.writeError(w, r, "moveIdentity", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetIdentityStatus(w http.ResponseWriter, r *http.Request) {
	err := h.service.SetIdentityStatus(r.Context(),
		chi.URLParam(r, "personId"), chi.URLParam(r, "identityId"), r.URL.Query().Get("status"))
	if err != nil {
		h.writeError(w, r, "setIdentityStatus", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDefineReference(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DefineReference(r.Context(), chi.URLParam(r, "personId"), chi.URLParam(r, "identityId")); err != nil {
		h.writeError(w, r, "defineReference", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReadReference(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.ReadReference(r.Context(), chi.URLParam(r, "personId"))
	if err != nil {
		h.writeError(w, r, "readReference", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, doc)
}
