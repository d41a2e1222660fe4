package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"registry/internal/registry/custo"
	"registry/internal/registry/models"
	"registry/internal/registry/serializer"
	"registry/internal/registry/store"
	dErrors "registry/pkg/domain-errors"
	"registry/pkg/platform/sentinel"
	"registry/pkg/requestcontext"
)

// ReservedPersonID cannot name a person: POST /v1/persons/uin creates a person
// with a generated id.
const ReservedPersonID = "uin"

// CreatePerson stores a new person. doc may carry status and physicalStatus.
func (s *Service) CreatePerson(ctx context.Context, personID string, doc map[string]any) (err error) {
	ctx, done := s.begin(ctx, "createPerson", attribute.String("person_id", personID))
	defer done(&err)

	if personID == ReservedPersonID {
		return dErrors.Newf(dErrors.CodeBadRequest, "person id [%s] is reserved", personID)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	if err := s.validate(custo.DefPerson, doc); err != nil {
		return err
	}
	p := serializer.LoadPerson(personID, doc)

	err = s.backend.RunInTx(ctx, func(st store.Store) error {
		return st.CreatePerson(ctx, p)
	})
	if errors.Is(err, sentinel.ErrConflict) {
		return dErrors.Newf(dErrors.CodeConflict, "person [%s] already exists", personID)
	}
	if err != nil {
		return translate(err, "failed to create person")
	}

	if s.metrics != nil {
		s.metrics.PersonsCreated.Inc()
	}
	s.log(ctx).InfoContext(ctx, "person created", "person_id", personID)
	return nil
}

// CreatePersonWithUIN asks the UIN generator for a new person id, then creates the
// person. attrs carries the generator hints (gender, dateOfBirth).
func (s *Service) CreatePersonWithUIN(ctx context.Context, attrs map[string]string, doc map[string]any) (personID string, err error) {
	ctx, done := s.begin(ctx, "createPersonWithUIN")
	defer done(&err)

	if s.uin == nil {
		return "", dErrors.New(dErrors.CodeInternal, "UIN generator is not configured")
	}
	uin, err := s.uin.Generate(ctx, requestcontext.TransactionID(ctx), attrs)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate UIN")
	}
	if err := s.CreatePerson(ctx, uin, doc); err != nil {
		return "", err
	}
	return uin, nil
}

// ReadPerson returns the external form of the person, without identities.
func (s *Service) ReadPerson(ctx context.Context, personID string) (doc map[string]any, err error) {
	ctx, done := s.begin(ctx, "readPerson", attribute.String("person_id", personID))
	defer done(&err)

	var p *models.Person
	err = s.backend.RunInTx(ctx, func(st store.Store) error {
		var err error
		p, err = findPerson(ctx, st, personID)
		return err
	})
	if err != nil {
		return nil, translate(err, "failed to read person")
	}
	return serializer.DumpPerson(p), nil
}

// UpdatePerson overwrites the status fields present in doc.
func (s *Service) UpdatePerson(ctx context.Context, personID string, doc map[string]any) (err error) {
	ctx, done := s.begin(ctx, "updatePerson", attribute.String("person_id", personID))
	defer done(&err)

	if doc == nil {
		doc = map[string]any{}
	}
	if err := s.validate(custo.DefPerson, doc); err != nil {
		return err
	}

	err = s.backend.RunInTx(ctx, func(st store.Store) error {
		p, err := findPerson(ctx, st, personID)
		if err != nil {
			return err
		}
		if v, ok := doc["status"].(string); ok {
			p.Status = models.PersonStatus(v)
		}
		if v, ok := doc["physicalStatus"].(string); ok {
			p.PhysicalStatus = models.PhysicalStatus(v)
		}
		return st.UpdatePerson(ctx, p)
	})
	return translate(err, "failed to update person")
}

// DeletePerson removes the person with all its identities.
func (s *Service) DeletePerson(ctx context.Context, personID string) (err error) {
	ctx, done := s.begin(ctx, "deletePerson", attribute.String("person_id", personID))
	defer done(&err)

	err = s.backend.RunInTx(ctx, func(st store.Store) error {
		if _, err := findPerson(ctx, st, personID); err != nil {
			return err
		}
		return st.DeletePerson(ctx, personID)
	})
	if err != nil {
		return translate(err, "failed to delete person")
	}

	s.log(ctx).InfoContext(ctx, "person deleted", "person_id", personID)
	s.invalidateGalleries(ctx)
	s.publish(ctx, EventPersonDeleted, map[string]string{"personId": personID})
	return nil
}

// MergePersons moves every identity of source into target and deletes source. Moved
// identities lose their reference flag. Nothing changes when an identity id exists
// in both persons.
func (s *Service) MergePersons(ctx context.Context, targetID, sourceID string) (err error) {
	ctx, done := s.begin(ctx, "mergePerson",
		attribute.String("person_id", targetID), attribute.String("source_person_id", sourceID))
	defer done(&err)

	if targetID == sourceID {
		return dErrors.New(dErrors.CodeBadRequest, "cannot merge a person into itself")
	}

	moved := 0
	err = s.backend.RunInTx(ctx, func(st store.Store) error {
		if _, err := findPerson(ctx, st, sourceID); err != nil {
			return err
		}
		if _, err := findPerson(ctx, st, targetID); err != nil {
			return err
		}
		targets, err := st.ListIdentities(ctx, targetID)
		if err != nil {
			return err
		}
		sources, err := st.ListIdentities(ctx, sourceID)
		if err != nil {
			return err
		}

		taken := make(map[string]bool, len(targets))
		for _, i := range targets {
			taken[i.IdentityID] = true
		}
		for _, i := range sources {
			if taken[i.IdentityID] {
				return dErrors.Newf(dErrors.CodeConflict, "identityId [%s] already present in person [%s]", i.IdentityID, targetID)
			}
		}

		pos := nextPosition(targets)
		for _, i := range sources {
			i.PersonID = targetID
			i.Position = pos
			i.IsReference = false
			pos++
			if err := st.UpdateIdentityState(ctx, i); err != nil {
				return err
			}
		}
		moved = len(sources)
		return st.DeletePerson(ctx, sourceID)
	})
	if err != nil {
		return translate(err, "failed to merge persons")
	}

	if s.metrics != nil {
		s.metrics.PersonsMerged.Inc()
	}
	s.log(ctx).InfoContext(ctx, "persons merged", "person_id", targetID, "source_person_id", sourceID, "identities", moved)
	s.publish(ctx, EventPersonsMerged, map[string]string{"personId": targetID, "sourcePersonId": sourceID})
	return nil
}
