package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"registry/internal/transport/http/shared"
)

func (h *Handler) handleCreatePerson(w http.ResponseWriter, r *http.Request) {
	doc, err := decodeObject(r, true)
	if err != nil {
		h.writeError(w, r, "createPerson", err)
		return
	}
	if err := h.service.CreatePerson(r.Context(), chi.URLParam(r, "personId"), doc); err != nil {
		h.writeError(w, r, "createPerson", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) handleCreatePersonWithUIN(w http.ResponseWriter, r *http.Request) {
	doc, err := decodeObject(r, false)
	if err != nil {
		h.writeError(w, r, "createPersonWithUIN", err)
		return
	}
	attrs := map[string]string{}
	for _, k := range []string{"gender", "dateOfBirth"} {
		if v := r.URL.Query().Get(k); v != "" {
			attrs[k] = v
		}
	}
	id, err := h.service.CreatePersonWithUIN(r.Context(), attrs, doc)
	if err != nil {
		h.writeError(w, r, "createPersonWithUIN", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, map[string]string{"personId": id})
}

// handleGetPerson reads the person, or the named attributes of its reference
// identity when attributeNames are given or no transactionId is supplied.
func (h *Handler) handleGetPerson(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "personId")
	q := r.URL.Query()
	names := q["attributeNames"]
	if len(names) > 0 || !q.Has("transactionId") {
		attrs, err := h.service.ReadPersonAttributes(r.Context(), personID, names)
		if err != nil {
			h.writeError(w, r, "readPersonAttributes", err)
			return
		}
		shared.WriteJSON(w, http.StatusOK, attrs)
		return
	}

	doc, err := h.service.ReadPerson(r.Context(), personID)
	if err != nil {
		h.writeError(w, r, "readPerson", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleUpdatePerson(w http.ResponseWriter, r *http.Request) {
	doc, err := decodeObject(r, true)
	if err != nil {
		h.writeError(w, r, "updatePerson", err)
		return
	}
	if err := h.service.UpdatePerson(r.Context(), chi.URLParam(r, "personId"), doc); err != nil {
		h.writeError(w, r, "updatePerson", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeletePerson(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeletePerson(r.Context(), chi.URLParam(r, "personId")); err != nil {
		h.writeError(w, r, "deletePerson", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMergePersons(w http.ResponseWriter, r *http.Request) {
	err := h.service.MergePersons(r.Context(), chi.URLParam(r, "personId"), chi.URLParam(r, "sourceId"))
	if err != nil {
		h.writeError(w, r, "mergePerson", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
