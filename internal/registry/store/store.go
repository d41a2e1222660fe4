// Package store defines the storage contract of the registry. Backends live in the
// memory and postgres subpackages; both run every operation inside RunInTx.
package store

import (
	"context"

	"registry/internal/registry/models"
	"registry/internal/registry/query"
)

// Store is the transactional view handed to RunInTx callbacks.
//
// Lookups return sentinel.ErrNotFound for missing rows and inserts return
// sentinel.ErrConflict for duplicate keys. Returned models are copies: mutating
// them has no effect until they are written back.
type Store interface {
	FindPerson(ctx context.Context, personID string) (*models.Person, error)
	CreatePerson(ctx context.Context, p *models.Person) error
	UpdatePerson(ctx context.Context, p *models.Person) error
	// DeletePerson removes the person and cascades to its identities and their children.
	DeletePerson(ctx context.Context, personID string) error

	// ListIdentities returns the person's identities ordered by position.
	ListIdentities(ctx context.Context, personID string) ([]*models.Identity, error)
	FindIdentity(ctx context.Context, personID, identityID string) (*models.Identity, error)
	// InsertIdentity stores a new identity and assigns its Key.
	InsertIdentity(ctx context.Context, i *models.Identity) error
	// ReplaceIdentity rewrites the identity addressed by Key, children included.
	ReplaceIdentity(ctx context.Context, i *models.Identity) error
	// UpdateIdentityState writes owner, position, status and reference flag only.
	UpdateIdentityState(ctx context.Context, i *models.Identity) error
	DeleteIdentity(ctx context.Context, personID, identityID string) error

	Select(ctx context.Context, plan *query.Plan) ([]query.Row, error)
	Galleries(ctx context.Context) ([]string, error)
	GalleryMembers(ctx context.Context, gallery string, offset, limit int) ([]query.Row, error)
	GalleryExists(ctx context.Context, gallery string) (bool, error)
	Counts(ctx context.Context) (Counts, error)
}

// Backend owns the storage and opens transactions on it.
type Backend interface {
	RunInTx(ctx context.Context, fn func(s Store) error) error
	Ping(ctx context.Context) error
}

// Counts feeds the registry gauges.
type Counts struct {
	Persons       int64 `db:"persons"`
	Identities    int64 `db:"identities"`
	BiometricData int64 `db:"biometric_data"`
}
