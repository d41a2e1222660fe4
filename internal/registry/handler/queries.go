package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"registry/internal/registry/document"
	"registry/internal/registry/query"
	"registry/internal/registry/service"
	"registry/internal/transport/http/shared"
)

func (h *Handler) handleFindPersons(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var opts query.Options
	var err error
	if opts.Group, err = boolParam(q, "group"); err != nil {
		h.writeError(w, r, "findPersons", err)
		return
	}
	if opts.Reference, err = boolParam(q, "reference"); err != nil {
		h.writeError(w, r, "findPersons", err)
		return
	}
	if opts.Offset, opts.Limit, err = pageParams(q, query.DefaultLimit); err != nil {
		h.writeError(w, r, "findPersons", err)
		return
	}
	opts.Gallery = q.Get("gallery")

	expressions, err := decodeValue(r)
	if err != nil {
		h.writeError(w, r, "findPersons", err)
		return
	}
	rows, err := h.service.FindPersons(r.Context(), expressions, opts)
	if err != nil {
		h.writeError(w, r, "findPersons", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, rows)
}

// handleQueryPersonList turns every query parameter except names, offset, limit and
// transactionId into an equality filter.
func (h *Handler) handleQueryPersonList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, limit, err := pageParams(q, query.DefaultLimit)
	if err != nil {
		h.writeError(w, r, "queryPersonList", err)
		return
	}
	filters := map[string]string{}
	for k, v := range q {
		switch k {
		case "names", "offset", "limit", "transactionId":
			continue
		}
		filters[k] = v[0]
	}

	result, err := h.service.QueryPersonList(r.Context(), filters, q["names"], offset, limit)
	if err != nil {
		h.writeError(w, r, "queryPersonList", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	expressions, err := decodeValue(r)
	if err != nil {
		h.writeError(w, r, "verifyPersonAttributes", err)
		return
	}
	ok, err := h.service.VerifyPersonAttributes(r.Context(), chi.URLParam(r, "personId"), expressions)
	if err != nil {
		h.writeError(w, r, "verifyPersonAttributes", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, ok)
}

func (h *Handler) handleMatch(w http.ResponseWriter, r *http.Request) {
	attrs, err := decodeObject(r, true)
	if err != nil {
		h.writeError(w, r, "matchPersonAttributes", err)
		return
	}
	mismatches, err := h.service.MatchPersonAttributes(r.Context(), chi.URLParam(r, "personId"), attrs)
	if err != nil {
		h.writeError(w, r, "matchPersonAttributes", err)
		return
	}
	if mismatches == nil {
		mismatches = []service.Mismatch{}
	}
	shared.WriteJSON(w, http.StatusOK, mismatches)
}

func (h *Handler) handleGalleries(w http.ResponseWriter, r *http.Request) {
	names, err := h.service.Galleries(r.Context())
	if err != nil {
		h.writeError(w, r, "readGalleries", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, names)
}

func (h *Handler) handleGalleryContent(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := pageParams(r.URL.Query(), 0)
	if err != nil {
		h.writeError(w, r, "readGalleryContent", err)
		return
	}
	rows, err := h.service.GalleryContent(r.Context(), chi.URLParam(r, "galleryId"), offset, limit)
	if err != nil {
		h.writeError(w, r, "readGalleryContent", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, rows)
}

func (h *Handler) handleReadDocument(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := document.Request{
		DocType:      q.Get("doctype"),
		Format:       q.Get("format"),
		SecondaryUIN: q.Get("secondaryUin"),
	}
	parts, err := h.service.ReadDocument(r.Context(), chi.URLParam(r, "personId"), req)
	if err != nil {
		h.writeError(w, r, "readDocument", err)
		return
	}
	if err := document.Write(w, r, parts); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to write document", "error", err)
	}
}
