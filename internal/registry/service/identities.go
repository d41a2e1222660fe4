package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"registry/internal/registry/custo"
	"registry/internal/registry/models"
	"registry/internal/registry/store"
	dErrors "registry/pkg/domain-errors"
	"registry/pkg/platform/sentinel"
)

// NewIdentityID returns a server-assigned identity id: 32 lowercase hex characters.
func NewIdentityID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// CreateIdentity adds an identity to the person and returns its id. An empty
// identityID is assigned by the server. Schema defaults apply to absent fields.
func (s *Service) CreateIdentity(ctx context.Context, personID, identityID string, doc map[string]any) (id string, err error) {
	if identityID == "" {
		identityID = NewIdentityID()
	}
	ctx, done := s.begin(ctx, "createIdentity",
		attribute.String("person_id", personID), attribute.String("identity_id", identityID))
	defer done(&err)

	ident, err := s.loadIdentity(doc)
	if err != nil {
		return "", err
	}
	ident.PersonID = personID
	ident.IdentityID = identityID
	ident.IsReference = false
	s.ser.ApplyDefaults(ident)

	err = s.backend.RunInTx(ctx, func(st store.Store) error {
		if _, err := findPerson(ctx, st, personID); err != nil {
			return err
		}
		existing, err := st.ListIdentities(ctx, personID)
		if err != nil {
			return err
		}
		ident.Position = nextPosition(existing)
		err = st.InsertIdentity(ctx, ident)
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Newf(dErrors.CodeConflict, "identityId [%s] already present in person [%s]", identityID, personID)
		}
		return err
	})
	if err != nil {
		return "", translate(err, "failed to create identity")
	}

	if len(ident.Galleries) > 0 {
		s.invalidateGalleries(ctx)
	}
	s.log(ctx).InfoContext(ctx, "identity created", "person_id", personID, "identity_id", identityID)
	return identityID, nil
}

// ReadIdentity returns the external document of one identity.
func (s *Service) ReadIdentity(ctx context.Context, personID, identityID string) (doc map[string]any, err error) {
	ctx, done := s.begin(ctx, "readIdentity",
		attribute.String("person_id", personID), attribute.String("identity_id", identityID))
	defer done(&err)

	var ident *models.Identity
	err = s.backend.RunInTx(ctx, func(st store.Store) error {
		var err error
		ident, err = findIdentity(ctx, st, personID, identityID)
		return err
	})
	if err != nil {
		return nil, translate(err, "failed to read identity")
	}
	return s.ser.DumpIdentity(ident), nil
}

// ListIdentities returns the person's identities in position order.
func (s *Service) ListIdentities(ctx context.Context, personID string) (docs []map[string]any, err error) {
	ctx, done := s.begin(ctx, "readIdentities", attribute.String("person_id", personID))
	defer done(&err)

	var identities []*models.Identity
	err = s.backend.RunInTx(ctx, func(st store.Store) error {
		if _, err := findPerson(ctx, st, personID); err != nil {
			return err
		}
		var err error
		identities, err = st.ListIdentities(ctx, personID)
		return err
	})
	if err != nil {
		return nil, translate(err, "failed to read identities")
	}

	docs = make([]map[string]any, 0, len(identities))
	for _, i := range identities {
		docs = append(docs, s.ser.DumpIdentity(i))
	}
	return docs, nil
}

// ReplaceIdentity rewrites a CLAIMED identity from doc. The identity keeps its id and
// position; every absent field falls back to its default and the reference flag is
// cleared.
func (s *Service) ReplaceIdentity(ctx context.Context, personID, identityID string, doc map[string]any) (err error) {
	ctx, done := s.begin(ctx, "updateIdentity",
		attribute.String("person_id", personID), attribute.String("identity_id", identityID))
	defer done(&err)

	next, err := s.loadIdentity(doc)
	if err != nil {
		return err
	}
	s.ser.ApplyDefaults(next)

	err = s.backend.RunInTx(ctx, func(st store.Store) error {
		cur, err := findIdentity(ctx, st, personID, identityID)
		if err != nil {
			return err
		}
		if cur.Status != models.IdentityClaimed {
			return dErrors.New(dErrors.CodeForbidden, "Illegal status of the identity - update is forbidden")
		}
		next.Key = cur.Key
		next.PersonID = cur.PersonID
		next.IdentityID = cur.IdentityID
		next.Position = cur.Position
		next.IsReference = false
		return st.ReplaceIdentity(ctx, next)
	})
	if err != nil {
		return translate(err, "failed to update identity")
	}
	s.invalidateGalleries(ctx)
	return nil
}

// PatchIdentity applies a JSON merge patch to the identity, whatever its status.
func (s *Service) PatchIdentity(ctx context.Context, personID, identityID string, patch map[string]any) (err error) {
	ctx, done := s.begin(ctx, "partialUpdateIdentity",
		attribute.String("person_id", personID), attribute.String("identity_id", identityID))
	defer done(&err)

	if patch == nil {
		patch = map[string]any{}
	}
	if msg := s.validator.ValidatePatch(patch); msg != "" {
		return dErrors.New(dErrors.CodeValidation, msg)
	}

	err = s.backend.RunInTx(ctx, func(st store.Store) error {
		cur, err := findIdentity(ctx, st, personID, identityID)
		if err != nil {
			return err
		}
		next, err := s.ser.Patch(cur, patch)
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return st.ReplaceIdentity(ctx, next)
	})
	if err != nil {
		return translate(err, "failed to update identity")
	}
	s.invalidateGalleries(ctx)
	return nil
}

// DeleteIdentity removes one identity of the person.
func (s *Service) DeleteIdentity(ctx context.Context, personID, identityID string) (err error) {
	ctx, done := s.begin(ctx, "deleteIdentity",
		attribute.String("person_id", personID), attribute.String("identity_id", identityID))
	defer done(&err)

	err = s.backend.RunInTx(ctx, func(st store.Store) error {
		if _, err := findIdentity(ctx, st, personID, identityID); err != nil {
			return err
		}
		return st.DeleteIdentity(ctx, personID, identityID)
	})
	if err != nil {
		return translate(err, "failed to delete identity")
	}
	s.invalidateGalleries(ctx)
	return nil
}

// MoveIdentity re-parents one identity from source to target, appending it after
// the target's identities. The moved identity loses its reference flag.
func (s *Service) MoveIdentity(ctx context.Context, targetID, sourceID, identityID string) (err error) {
	ctx, done := s.begin(ctx, "moveIdentity",
		attribute.String("person_id", targetID),
		attribute.String("source_person_id", sourceID),
		attribute.String("identity_id", identityID))
	defer done(&err)

	err = s.backend.RunInTx(ctx, func(st store.Store) error {
		if _, err := findPerson(ctx, st, sourceID); err != nil {
			return err
		}
		if _, err := findPerson(ctx, st, targetID); err != nil {
			return err
		}
		ident, err := findIdentity(ctx, st, sourceID, identityID)
		if err != nil {
			return err
		}
		targets, err := st.ListIdentities(ctx, targetID)
		if err != nil {
			return err
		}
		for _, i := range targets {
			if i.IdentityID == identityID {
				return dErrors.Newf(dErrors.CodeConflict, "identityId [%s] already present in person [%s]", identityID, targetID)
			}
		}
		ident.PersonID = targetID
		ident.Position = nextPosition(targets)
		ident.IsReference = false
		return st.UpdateIdentityState(ctx, ident)
	})
	if err != nil {
		return translate(err, "failed to move identity")
	}

	if s.metrics != nil {
		s.metrics.IdentitiesMoved.Inc()
	}
	s.log(ctx).InfoContext(ctx, "identity moved",
		"person_id", targetID, "source_person_id", sourceID, "identity_id", identityID)
	s.publish(ctx, EventIdentityMoved, map[string]string{
		"personId":       targetID,
		"sourcePersonId": sourceID,
		"identityId":     identityID,
	})
	return nil
}

// SetIdentityStatus changes the status of an identity. No transition is forbidden.
func (s *Service) SetIdentityStatus(ctx context.Context, personID, identityID, status string) (err error) {
	ctx, done := s.begin(ctx, "setIdentityStatus",
		attribute.String("person_id", personID), attribute.String("identity_id", identityID))
	defer done(&err)

	st, ok := models.ParseIdentityStatus(status)
	if !ok {
		return dErrors.Newf(dErrors.CodeBadRequest, "Invalid status [%s]", status)
	}

	err = s.backend.RunInTx(ctx, func(tx store.Store) error {
		ident, err := findIdentity(ctx, tx, personID, identityID)
		if err != nil {
			return err
		}
		ident.Status = st
		return tx.UpdateIdentityState(ctx, ident)
	})
	return translate(err, "failed to set identity status")
}

// DefineReference makes a VALID identity the reference of its person and demotes the
// previous reference in the same transaction.
func (s *Service) DefineReference(ctx context.Context, personID, identityID string) (err error) {
	ctx, done := s.begin(ctx, "defineReference",
		attribute.String("person_id", personID), attribute.String("identity_id", identityID))
	defer done(&err)

	err = s.backend.RunInTx(ctx, func(st store.Store) error {
		if _, err := findPerson(ctx, st, personID); err != nil {
			return err
		}
		identities, err := st.ListIdentities(ctx, personID)
		if err != nil {
			return err
		}
		var target *models.Identity
		for _, i := range identities {
			if i.IdentityID == identityID {
				target = i
			}
		}
		if target == nil {
			return dErrors.Newf(dErrors.CodeNotFound, "identity [%s] not found in person [%s]", identityID, personID)
		}
		if target.Status != models.IdentityValid {
			return dErrors.New(dErrors.CodeForbidden, "Illegal status of the identity - defineReference is forbidden")
		}

		// Demote first: the store allows a single reference per person at any time.
		for _, i := range identities {
			if i.IsReference && i.IdentityID != identityID {
				i.IsReference = false
				if err := st.UpdateIdentityState(ctx, i); err != nil {
					return err
				}
			}
		}
		if target.IsReference {
			return nil
		}
		target.IsReference = true
		return st.UpdateIdentityState(ctx, target)
	})
	if err != nil {
		return translate(err, "failed to define reference")
	}

	s.publish(ctx, EventReferenceDefined, map[string]string{"personId": personID, "identityId": identityID})
	return nil
}

// ReadReference returns the person's reference identity.
func (s *Service) ReadReference(ctx context.Context, personID string) (doc map[string]any, err error) {
	ctx, done := s.begin(ctx, "readReference", attribute.String("person_id", personID))
	defer done(&err)

	var ident *models.Identity
	err = s.backend.RunInTx(ctx, func(st store.Store) error {
		var err error
		ident, err = reference(ctx, st, personID)
		return err
	})
	if err != nil {
		return nil, translate(err, "failed to read reference")
	}
	return s.ser.DumpIdentity(ident), nil
}

// loadIdentity validates doc against the Identity schema and maps it to a model.
func (s *Service) loadIdentity(doc map[string]any) (*models.Identity, error) {
	if doc == nil {
		doc = map[string]any{}
	}
	if err := s.validate(custo.DefIdentity, doc); err != nil {
		return nil, err
	}
	ident, err := s.ser.LoadIdentity(doc)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, err.Error())
	}
	return ident, nil
}
