// Package handler exposes the registry operations over HTTP under /v1.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"registry/internal/platform/middleware"
	"registry/internal/registry/document"
	"registry/internal/registry/query"
	"registry/internal/registry/service"
	"registry/internal/transport/http/shared"
	dErrors "registry/pkg/domain-errors"
)

// Service is the registry application service consumed by the handlers.
type Service interface {
	CreatePerson(ctx context.Context, personID string, doc map[string]any) error
	CreatePersonWithUIN(ctx context.Context, attrs map[string]string, doc map[string]any) (string, error)
	ReadPerson(ctx context.Context, personID string) (map[string]any, error)
	UpdatePerson(ctx context.Context, personID string, doc map[string]any) error
	DeletePerson(ctx context.Context, personID string) error
	MergePersons(ctx context.Context, targetID, sourceID string) error

	CreateIdentity(ctx context.Context, personID, identityID string, doc map[string]any) (string, error)
	ReadIdentity(ctx context.Context, personID, identityID string) (map[string]any, error)
	ListIdentities(ctx context.Context, personID string) ([]map[string]any, error)
	ReplaceIdentity(ctx context.Context, personID, identityID string, doc map[string]any) error
	PatchIdentity(ctx context.Context, personID, identityID string, patch map[string]any) error
	DeleteIdentity(ctx context.Context, personID, identityID string) error
	MoveIdentity(ctx context.Context, targetID, sourceID, identityID string) error
	SetIdentityStatus(ctx context.Context, personID, identityID, status string) error
	DefineReference(ctx context.Context, personID, identityID string) error
	ReadReference(ctx context.Context, personID string) (map[string]any, error)

	FindPersons(ctx context.Context, expressions any, opts query.Options) ([]query.Row, error)
	QueryPersonList(ctx context.Context, filters map[string]string, names []string, offset, limit int) ([]any, error)
	ReadPersonAttributes(ctx context.Context, personID string, names []string) (map[string]any, error)
	VerifyPersonAttributes(ctx context.Context, personID string, expressions any) (bool, error)
	MatchPersonAttributes(ctx context.Context, personID string, attrs map[string]any) ([]service.Mismatch, error)

	Galleries(ctx context.Context) ([]string, error)
	GalleryContent(ctx context.Context, gallery string, offset, limit int) ([]query.Row, error)
	ReadDocument(ctx context.Context, personID string, req document.Request) ([]document.Part, error)
}

// Handler serves the /v1 API.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New creates a Handler.
func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// Register mounts the /v1 routes on r. Most routes require a transactionId; the
// data access routes (attribute read, match, verify, list query, document) accept
// calls without one.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireTransactionID)

			r.Post("/persons", h.handleFindPersons)
			r.Post("/persons/uin", h.handleCreatePersonWithUIN)
			r.Post("/persons/{personId}", h.handleCreatePerson)
			r.Put("/persons/{personId}", h.handleUpdatePerson)
			r.Delete("/persons/{personId}", h.handleDeletePerson)
			r.Post("/persons/{personId}/merge/{sourceId}", h.handleMergePersons)

			r.Post("/persons/{personId}/identities", h.handleCreateIdentity)
			r.Get("/persons/{personId}/identities", h.handleListIdentities)
			r.Post("/persons/{personId}/identities/{identityId}", h.handleCreateIdentity)
			r.Get("/persons/{personId}/identities/{identityId}", h.handleReadIdentity)
			r.Put("/persons/{personId}/identities/{identityId}", h.handleReplaceIdentity)
			r.Patch("/persons/{personId}/identities/{identityId}", h.handlePatchIdentity)
			r.Delete("/persons/{personId}/identities/{identityId}", h.handleDeleteIdentity)
			r.Put("/persons/{personId}/identities/{identityId}/status", h.handleSetIdentityStatus)
			r.Put("/persons/{personId}/identities/{identityId}/reference", h.handleDefineReference)
			r.Post("/persons/{personId}/move/{sourceId}/identities/{identityId}", h.handleMoveIdentity)
			r.Get("/persons/{personId}/reference", h.handleReadReference)

			r.Get("/galleries", h.handleGalleries)
			r.Get("/galleries/{galleryId}", h.handleGalleryContent)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalTransactionID)

			r.Get("/persons", h.handleQueryPersonList)
			r.Get("/persons/{personId}", h.handleGetPerson)
			r.Post("/persons/{personId}/match", h.handleMatch)
			r.Post("/persons/{personId}/verify", h.handleVerify)
			r.Get("/persons/{personId}/document", h.handleReadDocument)
		})
	})
}

// writeError logs the failure at a level matching its status and writes the
// error response.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	code := dErrors.CodeInternal
	if de, ok := dErrors.As(err); ok {
		code = de.Code
	}
	attrs := []any{
		"request_id", middleware.GetRequestID(ctx),
		"operation", op,
		"code", string(code),
		"error", err.Error(),
	}
	if shared.StatusFor(code) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "request failed", attrs...)
	} else {
		h.logger.WarnContext(ctx, "request rejected", attrs...)
	}
	shared.WriteError(w, err)
}
