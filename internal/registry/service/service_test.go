package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Notifier,UINGenerator,GalleryCache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"registry/internal/registry/custo"
	"registry/internal/registry/document"
	"registry/internal/registry/metrics"
	"registry/internal/registry/query"
	"registry/internal/registry/service/mocks"
	"registry/internal/registry/store/memory"
	dErrors "registry/pkg/domain-errors"
	"registry/pkg/requestcontext"
)

// =============================================================================
// Registry Service Test Suite
// =============================================================================
// The service runs over the in-memory store; collaborators (notifier, UIN
// generator, gallery cache) are mocked to assert what leaves the process.

type ServiceSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	notifier *mocks.MockNotifier
	uin      *mocks.MockUINGenerator
	cache    *mocks.MockGalleryCache
	metrics  *metrics.Metrics
	backend  *memory.Store
	service  *Service
	ctx      context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.uin = mocks.NewMockUINGenerator(s.ctrl)
	s.cache = mocks.NewMockGalleryCache(s.ctrl)
	s.cache.EXPECT().Invalidate(gomock.Any()).Return(nil).AnyTimes()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.backend = memory.New()

	var err error
	s.service, err = New(s.backend, custo.Default(),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithNotifier(s.notifier),
		WithUINGenerator(s.uin),
		WithGalleryCache(s.cache),
	)
	s.Require().NoError(err)
	s.ctx = requestcontext.WithTransactionID(context.Background(), "T-1")
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) decode(body string) map[string]any {
	var doc map[string]any
	s.Require().NoError(s.decodeInto(body, &doc))
	return doc
}

func (s *ServiceSuite) decodeAny(body string) any {
	var v any
	s.Require().NoError(s.decodeInto(body, &v))
	return v
}

func (s *ServiceSuite) decodeInto(body string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	return dec.Decode(v)
}

func (s *ServiceSuite) createPerson(id string) {
	s.Require().NoError(s.service.CreatePerson(s.ctx, id, s.decode(`{"status":"ACTIVE","physicalStatus":"ALIVE"}`)))
}

func (s *ServiceSuite) createIdentity(personID, identityID, body string) {
	_, err := s.service.CreateIdentity(s.ctx, personID, identityID, s.decode(body))
	s.Require().NoError(err)
}

// createReference creates a VALID identity and makes it the reference.
func (s *ServiceSuite) createReference(personID, identityID, body string) {
	s.notifier.EXPECT().Publish(gomock.Any(), EventReferenceDefined, gomock.Any()).Return(nil)
	s.createIdentity(personID, identityID, body)
	s.Require().NoError(s.service.SetIdentityStatus(s.ctx, personID, identityID, "VALID"))
	s.Require().NoError(s.service.DefineReference(s.ctx, personID, identityID))
}

func (s *ServiceSuite) assertCode(err error, code dErrors.Code) {
	s.T().Helper()
	s.Require().Error(err)
	s.True(dErrors.Is(err, code), "expected %s, got %v", code, err)
}

func (s *ServiceSuite) TestNew() {
	s.Run("nil backend returns error", func() {
		_, err := New(nil, custo.Default())
		s.Error(err)
		s.Contains(err.Error(), "store backend is required")
	})

	s.Run("defaults apply without options", func() {
		svc, err := New(memory.New(), custo.Default())
		s.Require().NoError(err)
		s.NoError(svc.Health(context.Background()))
	})
}

// =============================================================================
// Persons
// =============================================================================

func (s *ServiceSuite) TestCreatePersonRejectsReservedID() {
	err := s.service.CreatePerson(s.ctx, ReservedPersonID, nil)
	s.assertCode(err, dErrors.CodeBadRequest)
	de, _ := dErrors.As(err)
	s.Equal("person id [uin] is reserved", de.Message)

	_, err = s.service.ReadPerson(s.ctx, ReservedPersonID)
	s.assertCode(err, dErrors.CodeNotFound)
}

func (s *ServiceSuite) TestPersonLifecycle() {
	s.createPerson("A001")

	s.Run("duplicate create is a conflict", func() {
		err := s.service.CreatePerson(s.ctx, "A001", nil)
		s.assertCode(err, dErrors.CodeConflict)
	})

	s.Run("invalid status is rejected by the schema", func() {
		err := s.service.CreatePerson(s.ctx, "A002", s.decode(`{"status":"GONE"}`))
		s.assertCode(err, dErrors.CodeValidation)
	})

	s.Run("update changes only the supplied fields", func() {
		s.Require().NoError(s.service.UpdatePerson(s.ctx, "A001", s.decode(`{"physicalStatus":"DEAD"}`)))

		doc, err := s.service.ReadPerson(s.ctx, "A001")
		s.Require().NoError(err)
		s.Equal(map[string]any{"personId": "A001", "status": "ACTIVE", "physicalStatus": "DEAD"}, doc)
	})

	s.Run("update of a missing person is not found", func() {
		err := s.service.UpdatePerson(s.ctx, "NOPE", nil)
		s.assertCode(err, dErrors.CodeNotFound)
	})

	s.Run("delete cascades and notifies", func() {
		s.createIdentity("A001", "001", `{"biographicData":{"firstName":"Jane"}}`)
		s.notifier.EXPECT().
			Publish(gomock.Any(), EventPersonDeleted, map[string]string{"personId": "A001"}).
			Return(nil)

		s.Require().NoError(s.service.DeletePerson(s.ctx, "A001"))

		_, err := s.service.ReadIdentity(s.ctx, "A001", "001")
		s.assertCode(err, dErrors.CodeNotFound)
		_, err = s.service.ReadPerson(s.ctx, "A001")
		s.assertCode(err, dErrors.CodeNotFound)
	})

	s.Run("delete of a missing person is not found", func() {
		err := s.service.DeletePerson(s.ctx, "A001")
		s.assertCode(err, dErrors.CodeNotFound)
	})

	s.Equal(float64(1), testutil.ToFloat64(s.metrics.PersonsCreated))
}

func (s *ServiceSuite) TestCreatePersonWithUIN() {
	s.Run("uses the generated id", func() {
		s.uin.EXPECT().
			Generate(gomock.Any(), "T-1", map[string]string{"gender": "F"}).
			Return("2851112345", nil)

		id, err := s.service.CreatePersonWithUIN(s.ctx, map[string]string{"gender": "F"}, nil)
		s.Require().NoError(err)
		s.Equal("2851112345", id)

		_, err = s.service.ReadPerson(s.ctx, id)
		s.NoError(err)
	})

	s.Run("generator failure is internal and creates nothing", func() {
		s.uin.EXPECT().Generate(gomock.Any(), gomock.Any(), gomock.Any()).Return("", errors.New("dial tcp: refused"))

		_, err := s.service.CreatePersonWithUIN(s.ctx, nil, nil)
		s.assertCode(err, dErrors.CodeInternal)

		counts, err := s.service.Counts(s.ctx)
		s.Require().NoError(err)
		s.Equal(int64(1), counts.Persons)
	})
}

// =============================================================================
// Identities
// =============================================================================

func (s *ServiceSuite) TestCreateIdentity() {
	s.createPerson("A001")

	s.Run("server assigns a 32 hex character id", func() {
		id, err := s.service.CreateIdentity(s.ctx, "A001", "", s.decode(`{"biographicData":{"firstName":"Jane"}}`))
		s.Require().NoError(err)
		s.Regexp(regexp.MustCompile(`^[0-9a-f]{32}$`), id)
	})

	s.Run("defaults apply to absent fields", func() {
		s.createIdentity("A001", "001", `{"biographicData":{"firstName":"Jane"}}`)

		doc, err := s.service.ReadIdentity(s.ctx, "A001", "001")
		s.Require().NoError(err)
		s.Equal("CLAIMED", doc["status"])
		s.Equal(map[string]any{"firstName": "Jane", "nationality": "USA"}, doc["biographicData"])
	})

	s.Run("duplicate id is a conflict with an explanation", func() {
		_, err := s.service.CreateIdentity(s.ctx, "A001", "001", s.decode(`{"biographicData":{"firstName":"Jane"}}`))
		s.assertCode(err, dErrors.CodeConflict)
		de, _ := dErrors.As(err)
		s.Equal("identityId [001] already present in person [A001]", de.Message)
	})

	s.Run("missing person is not found", func() {
		_, err := s.service.CreateIdentity(s.ctx, "NOPE", "001", s.decode(`{"biographicData":{"firstName":"Jane"}}`))
		s.assertCode(err, dErrors.CodeNotFound)
	})

	s.Run("schema violations are validation errors", func() {
		_, err := s.service.CreateIdentity(s.ctx, "A001", "002", s.decode(`{"biographicData":{"lastName":"Doe"}}`))
		s.assertCode(err, dErrors.CodeValidation)
		de, _ := dErrors.As(err)
		s.Equal(dErrors.ReasonSchema, de.Reason)
	})

	s.Run("identities are listed in creation order", func() {
		s.createIdentity("A001", "000", `{"biographicData":{"firstName":"Jim"}}`)

		docs, err := s.service.ListIdentities(s.ctx, "A001")
		s.Require().NoError(err)
		s.Require().Len(docs, 3)
		s.Equal("001", docs[1]["identityId"])
		s.Equal("000", docs[2]["identityId"])
	})
}

func (s *ServiceSuite) TestReplaceIdentity() {
	s.createPerson("A001")
	s.createIdentity("A001", "001", `{"galleries":["G1"],"biographicData":{"firstName":"Jane","lastName":"Doe"}}`)

	s.Run("claimed identity is replaced wholesale", func() {
		err := s.service.ReplaceIdentity(s.ctx, "A001", "001", s.decode(`{"biographicData":{"firstName":"Janet"}}`))
		s.Require().NoError(err)

		doc, err := s.service.ReadIdentity(s.ctx, "A001", "001")
		s.Require().NoError(err)
		s.Equal(map[string]any{"firstName": "Janet", "nationality": "USA"}, doc["biographicData"])
		s.NotContains(doc, "galleries")
	})

	s.Run("non claimed identity cannot be replaced", func() {
		s.Require().NoError(s.service.SetIdentityStatus(s.ctx, "A001", "001", "VALID"))

		err := s.service.ReplaceIdentity(s.ctx, "A001", "001", s.decode(`{"biographicData":{"firstName":"X"}}`))
		s.assertCode(err, dErrors.CodeForbidden)
		de, _ := dErrors.As(err)
		s.Equal("Illegal status of the identity - update is forbidden", de.Message)
	})

	s.Run("missing identity is not found", func() {
		err := s.service.ReplaceIdentity(s.ctx, "A001", "999", s.decode(`{"biographicData":{"firstName":"X"}}`))
		s.assertCode(err, dErrors.CodeNotFound)
	})
}

func (s *ServiceSuite) TestPatchIdentity() {
	s.createPerson("A001")
	s.createIdentity("A001", "001", `{"biographicData":{"firstName":"Jane","lastName":"Doe","gender":"F"}}`)
	s.Require().NoError(s.service.SetIdentityStatus(s.ctx, "A001", "001", "VALID"))

	s.Run("patch applies in any status", func() {
		err := s.service.PatchIdentity(s.ctx, "A001", "001", s.decode(`{"biographicData":{"lastName":"Smith","gender":null}}`))
		s.Require().NoError(err)

		doc, err := s.service.ReadIdentity(s.ctx, "A001", "001")
		s.Require().NoError(err)
		s.Equal("VALID", doc["status"])
		s.Equal(map[string]any{"firstName": "Jane", "lastName": "Smith", "nationality": "USA"}, doc["biographicData"])
	})

	s.Run("invalid patch is rejected", func() {
		err := s.service.PatchIdentity(s.ctx, "A001", "001", s.decode(`{"status":"UNKNOWN"}`))
		s.assertCode(err, dErrors.CodeValidation)
	})
}

func (s *ServiceSuite) TestSetIdentityStatus() {
	s.createPerson("A001")
	s.createIdentity("A001", "001", `{"biographicData":{"firstName":"Jane"}}`)

	s.Run("unknown status is a bad request", func() {
		err := s.service.SetIdentityStatus(s.ctx, "A001", "001", "LOST")
		s.assertCode(err, dErrors.CodeBadRequest)
	})

	s.Run("any transition is allowed", func() {
		for _, st := range []string{"REVOKED", "CLAIMED", "INVALID", "VALID"} {
			s.Require().NoError(s.service.SetIdentityStatus(s.ctx, "A001", "001", st))
		}
		doc, err := s.service.ReadIdentity(s.ctx, "A001", "001")
		s.Require().NoError(err)
		s.Equal("VALID", doc["status"])
	})

	s.Run("missing identity is not found", func() {
		err := s.service.SetIdentityStatus(s.ctx, "A001", "002", "VALID")
		s.assertCode(err, dErrors.CodeNotFound)
	})
}

// =============================================================================
// Reference identity
// =============================================================================

func (s *ServiceSuite) TestReadAttributesOnceReferenceIsDefined() {
	s.createPerson("A001")
	s.createIdentity("A001", "001", `{"biographicData":{"firstName":"Jane","lastName":"Doe"}}`)
	names := []string{"firstName", "lastName"}

	_, err := s.service.ReadPersonAttributes(s.ctx, "A001", names)
	s.assertCode(err, dErrors.CodeNotFound)

	s.Require().NoError(s.service.SetIdentityStatus(s.ctx, "A001", "001", "VALID"))
	s.notifier.EXPECT().
		Publish(gomock.Any(), EventReferenceDefined, map[string]string{"personId": "A001", "identityId": "001"}).
		Return(nil)
	s.Require().NoError(s.service.DefineReference(s.ctx, "A001", "001"))

	attrs, err := s.service.ReadPersonAttributes(s.ctx, "A001", names)
	s.Require().NoError(err)
	s.Equal(map[string]any{"firstName": "Jane", "lastName": "Doe"}, attrs)
}

func (s *ServiceSuite) TestDefineReference() {
	s.createPerson("A001")
	s.createReference("A001", "001", `{"biographicData":{"firstName":"Jane"}}`)

	s.Run("claimed identity cannot become the reference", func() {
		s.createIdentity("A001", "002", `{"biographicData":{"firstName":"Jane"}}`)

		err := s.service.DefineReference(s.ctx, "A001", "002")
		s.assertCode(err, dErrors.CodeForbidden)
		de, _ := dErrors.As(err)
		s.Equal("Illegal status of the identity - defineReference is forbidden", de.Message)
	})

	s.Run("new reference demotes the previous one", func() {
		s.Require().NoError(s.service.SetIdentityStatus(s.ctx, "A001", "002", "VALID"))
		s.notifier.EXPECT().Publish(gomock.Any(), EventReferenceDefined, gomock.Any()).Return(nil)

		s.Require().NoError(s.service.DefineReference(s.ctx, "A001", "002"))

		ref, err := s.service.ReadReference(s.ctx, "A001")
		s.Require().NoError(err)
		s.Equal("002", ref["identityId"])

		rows, err := s.service.FindPersons(s.ctx, s.decodeAny(`[]`), query.Options{Reference: true})
		s.Require().NoError(err)
		s.Equal([]query.Row{{PersonID: "A001", IdentityID: "002"}}, rows)
	})

	s.Run("notification failure does not fail the call", func() {
		s.notifier.EXPECT().Publish(gomock.Any(), EventReferenceDefined, gomock.Any()).Return(errors.New("broker down"))

		s.NoError(s.service.DefineReference(s.ctx, "A001", "001"))
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.NotifyFailures))
	})

	s.Run("missing identity is not found", func() {
		err := s.service.DefineReference(s.ctx, "A001", "999")
		s.assertCode(err, dErrors.CodeNotFound)
	})
}

func (s *ServiceSuite) TestReadReferenceWithoutReference() {
	s.createPerson("A001")
	s.createIdentity("A001", "001", `{"biographicData":{"firstName":"Jane"}}`)

	_, err := s.service.ReadReference(s.ctx, "A001")
	s.assertCode(err, dErrors.CodeNotFound)
}

// =============================================================================
// Merge and move
// =============================================================================

func (s *ServiceSuite) TestMergePersons() {
	s.createPerson("P1")
	s.createPerson("P2")
	s.createIdentity("P1", "001", `{"biographicData":{"firstName":"Jane"}}`)
	s.createReference("P2", "002", `{"biographicData":{"firstName":"Jane"}}`)
	s.createIdentity("P2", "001", `{"biographicData":{"firstName":"Janet"}}`)

	s.Run("collision fails without any change", func() {
		err := s.service.MergePersons(s.ctx, "P1", "P2")
		s.assertCode(err, dErrors.CodeConflict)

		p1, err := s.service.ListIdentities(s.ctx, "P1")
		s.Require().NoError(err)
		s.Len(p1, 1)
		p2, err := s.service.ListIdentities(s.ctx, "P2")
		s.Require().NoError(err)
		s.Len(p2, 2)
	})

	s.Run("merge into itself is a bad request", func() {
		err := s.service.MergePersons(s.ctx, "P1", "P1")
		s.assertCode(err, dErrors.CodeBadRequest)
	})

	s.Run("merge moves identities and deletes the source", func() {
		s.Require().NoError(s.service.DeleteIdentity(s.ctx, "P2", "001"))
		s.notifier.EXPECT().
			Publish(gomock.Any(), EventPersonsMerged, map[string]string{"personId": "P1", "sourcePersonId": "P2"}).
			Return(nil)

		s.Require().NoError(s.service.MergePersons(s.ctx, "P1", "P2"))

		docs, err := s.service.ListIdentities(s.ctx, "P1")
		s.Require().NoError(err)
		s.Require().Len(docs, 2)
		s.Equal("001", docs[0]["identityId"])
		s.Equal("002", docs[1]["identityId"])

		_, err = s.service.ReadReference(s.ctx, "P1")
		s.assertCode(err, dErrors.CodeNotFound)
		_, err = s.service.ReadPerson(s.ctx, "P2")
		s.assertCode(err, dErrors.CodeNotFound)
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.PersonsMerged))
	})

	s.Run("missing source is not found", func() {
		err := s.service.MergePersons(s.ctx, "P1", "P2")
		s.assertCode(err, dErrors.CodeNotFound)
	})
}

func (s *ServiceSuite) TestMoveIdentity() {
	s.createPerson("P1")
	s.createPerson("P2")
	s.createIdentity("P1", "001", `{"biographicData":{"firstName":"Jane"}}`)
	s.createReference("P2", "001", `{"biographicData":{"firstName":"Jane"}}`)
	s.createIdentity("P2", "002", `{"biographicData":{"firstName":"Jane"}}`)

	s.Run("existing id in the target is a conflict", func() {
		err := s.service.MoveIdentity(s.ctx, "P1", "P2", "001")
		s.assertCode(err, dErrors.CodeConflict)
	})

	s.Run("identity missing from the source is not found", func() {
		err := s.service.MoveIdentity(s.ctx, "P1", "P2", "999")
		s.assertCode(err, dErrors.CodeNotFound)
	})

	s.Run("move re-parents and notifies", func() {
		s.Require().NoError(s.service.SetIdentityStatus(s.ctx, "P2", "002", "VALID"))
		s.notifier.EXPECT().Publish(gomock.Any(), EventReferenceDefined, gomock.Any()).Return(nil)
		s.Require().NoError(s.service.DefineReference(s.ctx, "P2", "002"))
		s.notifier.EXPECT().
			Publish(gomock.Any(), EventIdentityMoved, map[string]string{
				"personId": "P1", "sourcePersonId": "P2", "identityId": "002",
			}).
			Return(nil)

		s.Require().NoError(s.service.MoveIdentity(s.ctx, "P1", "P2", "002"))

		doc, err := s.service.ReadIdentity(s.ctx, "P1", "002")
		s.Require().NoError(err)
		s.Equal("002", doc["identityId"])
		_, err = s.service.ReadReference(s.ctx, "P1")
		s.assertCode(err, dErrors.CodeNotFound)
		_, err = s.service.ReadIdentity(s.ctx, "P2", "002")
		s.assertCode(err, dErrors.CodeNotFound)
	})
}

// =============================================================================
// Queries
// =============================================================================

func (s *ServiceSuite) seedDoes() {
	s.createPerson("P1")
	s.createPerson("P2")
	s.createPerson("P3")
	s.createReference("P1", "001", `{"galleries":["G1"],"biographicData":{"firstName":"Jane","lastName":"Doe","dateOfBirth":"1985-11-30"}}`)
	s.createIdentity("P1", "002", `{"biographicData":{"firstName":"Janet","lastName":"Doe"}}`)
	s.createReference("P2", "003", `{"galleries":["G1","G2"],"biographicData":{"firstName":"John","lastName":"Doe"}}`)
	s.createReference("P3", "004", `{"biographicData":{"firstName":"Bob","lastName":"Smith"}}`)
}

func (s *ServiceSuite) TestFindPersons() {
	s.seedDoes()
	expr := s.decodeAny(`[{"attributeName":"lastName","operator":"=","value":"Doe"}]`)

	s.Run("group returns distinct persons in id order", func() {
		rows, err := s.service.FindPersons(s.ctx, expr, query.Options{Group: true, Limit: query.DefaultLimit})
		s.Require().NoError(err)
		s.Equal([]query.Row{{PersonID: "P1"}, {PersonID: "P2"}}, rows)
	})

	s.Run("ungrouped returns every identity", func() {
		rows, err := s.service.FindPersons(s.ctx, expr, query.Options{Limit: query.DefaultLimit})
		s.Require().NoError(err)
		s.Len(rows, 3)
	})

	s.Run("gallery and paging compose", func() {
		rows, err := s.service.FindPersons(s.ctx, expr, query.Options{Gallery: "G1", Offset: 1, Limit: 1})
		s.Require().NoError(err)
		s.Equal([]query.Row{{PersonID: "P2", IdentityID: "003"}}, rows)
	})

	s.Run("unknown attribute rejects the query", func() {
		_, err := s.service.FindPersons(s.ctx, s.decodeAny(`[{"attributeName":"shoeSize","operator":"=","value":"42"}]`), query.Options{})
		s.assertCode(err, dErrors.CodeBadRequest)
	})

	s.Run("malformed expressions fail validation", func() {
		_, err := s.service.FindPersons(s.ctx, s.decodeAny(`[{"attributeName":"lastName"}]`), query.Options{})
		s.assertCode(err, dErrors.CodeValidation)
	})
}

func (s *ServiceSuite) TestQueryPersonList() {
	s.seedDoes()

	s.Run("without names returns person ids of reference identities", func() {
		ids, err := s.service.QueryPersonList(s.ctx, map[string]string{"lastName": "Doe"}, nil, 0, query.DefaultLimit)
		s.Require().NoError(err)
		s.Equal([]any{"P1", "P2"}, ids)
	})

	s.Run("with names returns the attributes", func() {
		objs, err := s.service.QueryPersonList(s.ctx, map[string]string{"firstName": "Jane"}, []string{"lastName", "dateOfBirth"}, 0, query.DefaultLimit)
		s.Require().NoError(err)
		s.Equal([]any{map[string]any{"lastName": "Doe", "dateOfBirth": "1985-11-30"}}, objs)
	})

	s.Run("unknown name is a bad request", func() {
		_, err := s.service.QueryPersonList(s.ctx, map[string]string{"lastName": "Doe"}, []string{"shoeSize"}, 0, query.DefaultLimit)
		s.assertCode(err, dErrors.CodeBadRequest)
		de, _ := dErrors.As(err)
		s.Equal(dErrors.ReasonUnknownName, de.Reason)
		s.Equal("Unknown name [shoeSize]", de.Message)
	})
}

func (s *ServiceSuite) TestReadPersonAttributes() {
	s.seedDoes()

	s.Run("no names is a bad request", func() {
		_, err := s.service.ReadPersonAttributes(s.ctx, "P1", nil)
		s.assertCode(err, dErrors.CodeBadRequest)
	})

	s.Run("unknown names are reported inline", func() {
		attrs, err := s.service.ReadPersonAttributes(s.ctx, "P1", []string{"firstName", "status", "shoeSize"})
		s.Require().NoError(err)
		s.Equal(map[string]any{
			"firstName": "Jane",
			"status":    "VALID",
			"shoeSize":  map[string]any{"code": 2, "message": "Unknown attribute name [shoeSize]"},
		}, attrs)
	})

	s.Run("missing person is not found", func() {
		_, err := s.service.ReadPersonAttributes(s.ctx, "NOPE", []string{"firstName"})
		s.assertCode(err, dErrors.CodeNotFound)
	})
}

func (s *ServiceSuite) TestVerifyPersonAttributes() {
	s.seedDoes()

	ok, err := s.service.VerifyPersonAttributes(s.ctx, "P1", s.decodeAny(`[{"attributeName":"dateOfBirth","operator":"<","value":"1990"}]`))
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.service.VerifyPersonAttributes(s.ctx, "P1", s.decodeAny(`[{"attributeName":"firstName","operator":"=","value":"Janet"}]`))
	s.Require().NoError(err)
	s.False(ok, "only the reference identity is verified")

	_, err = s.service.VerifyPersonAttributes(s.ctx, "NOPE", s.decodeAny(`[]`))
	s.assertCode(err, dErrors.CodeNotFound)
}

func (s *ServiceSuite) TestMatchPersonAttributes() {
	s.seedDoes()

	mismatches, err := s.service.MatchPersonAttributes(s.ctx, "P1", s.decode(
		`{"firstName":"Jane","lastName":"Smith","shoeSize":42,"status":"VALID"}`))
	s.Require().NoError(err)
	s.Equal([]Mismatch{
		{AttributeName: "lastName", ErrorCode: MismatchValue},
		{AttributeName: "shoeSize", ErrorCode: MismatchUnknown},
	}, mismatches)

	_, err = s.service.MatchPersonAttributes(s.ctx, "P3", nil)
	s.NoError(err)

	s.createPerson("P4")
	_, err = s.service.MatchPersonAttributes(s.ctx, "P4", s.decode(`{"firstName":"Jane"}`))
	s.assertCode(err, dErrors.CodeNotFound)
}

// =============================================================================
// Galleries and documents
// =============================================================================

func (s *ServiceSuite) TestGalleries() {
	s.seedDoes()

	s.Run("miss reads the store and fills the cache", func() {
		s.cache.EXPECT().Get(gomock.Any()).Return(nil, false, nil)
		s.cache.EXPECT().Set(gomock.Any(), []string{"G1", "G2"}).Return(nil)

		names, err := s.service.Galleries(s.ctx)
		s.Require().NoError(err)
		s.Equal([]string{"G1", "G2"}, names)
	})

	s.Run("hit is served from the cache", func() {
		s.cache.EXPECT().Get(gomock.Any()).Return([]string{"CACHED"}, true, nil)

		names, err := s.service.Galleries(s.ctx)
		s.Require().NoError(err)
		s.Equal([]string{"CACHED"}, names)
	})

	s.Run("cache failure falls back to the store", func() {
		s.cache.EXPECT().Get(gomock.Any()).Return(nil, false, errors.New("redis down"))
		s.cache.EXPECT().Set(gomock.Any(), gomock.Any()).Return(errors.New("redis down"))

		names, err := s.service.Galleries(s.ctx)
		s.Require().NoError(err)
		s.Equal([]string{"G1", "G2"}, names)
	})

	s.Run("content lists members in insertion order", func() {
		rows, err := s.service.GalleryContent(s.ctx, "G1", 0, 0)
		s.Require().NoError(err)
		s.Equal([]query.Row{{PersonID: "P1", IdentityID: "001"}, {PersonID: "P2", IdentityID: "003"}}, rows)
	})

	s.Run("unknown gallery is not found", func() {
		_, err := s.service.GalleryContent(s.ctx, "G9", 0, 0)
		s.assertCode(err, dErrors.CodeNotFound)
	})

	s.Run("write during a miss skips the cache fill", func() {
		s.cache.EXPECT().Get(gomock.Any()).DoAndReturn(func(context.Context) ([]string, bool, error) {
			s.createIdentity("P3", "005", `{"galleries":["G3"],"biographicData":{"firstName":"Bob"}}`)
			return nil, false, nil
		})

		names, err := s.service.Galleries(s.ctx)
		s.Require().NoError(err)
		s.Equal([]string{"G1", "G2", "G3"}, names)
	})
}

func (s *ServiceSuite) TestReadDocument() {
	s.createPerson("P1")
	s.createReference("P1", "001", `{"biographicData":{"firstName":"Jane"},"documentData":[
		{"documentType":"ID_CARD","parts":[
			{"data":"AQID","mimeType":"image/jpeg"},
			{"dataRef":"http://docs/back.jpg","mimeType":"image/jpeg"},
			{"data":"JVBERg==","mimeType":"application/pdf"}]}]}`)

	s.Run("matching parts in order", func() {
		parts, err := s.service.ReadDocument(s.ctx, "P1", document.Request{DocType: "ID_CARD", Format: "jpeg"})
		s.Require().NoError(err)
		s.Equal([]document.Part{
			{Data: []byte{1, 2, 3}, MimeType: "image/jpeg"},
			{Ref: "http://docs/back.jpg", MimeType: "image/jpeg"},
		}, parts)
	})

	s.Run("no match is not found", func() {
		_, err := s.service.ReadDocument(s.ctx, "P1", document.Request{DocType: "PASSPORT", Format: "pdf"})
		s.assertCode(err, dErrors.CodeNotFound)
	})

	s.Run("invalid parameters are rejected first", func() {
		_, err := s.service.ReadDocument(s.ctx, "NOPE", document.Request{DocType: "ID_CARD", Format: "tiff"})
		s.assertCode(err, dErrors.CodeBadRequest)
	})
}
