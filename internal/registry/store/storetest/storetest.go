// Package storetest holds the behaviour every store.Backend must share. Backend
// packages embed Suite in their own test suites.
package storetest

import (
	"context"
	"errors"
	"time"

	"github.com/stretchr/testify/suite"

	"registry/internal/registry/custo"
	"registry/internal/registry/models"
	"registry/internal/registry/query"
	"registry/internal/registry/store"
	"registry/pkg/platform/sentinel"
)

// Suite runs against the backend returned by NewBackend, called once per test
// with an empty store.
type Suite struct {
	suite.Suite
	NewBackend func() store.Backend
	Registry   *custo.Registry

	backend store.Backend
	ctx     context.Context
}

func (s *Suite) SetupTest() {
	if s.Registry == nil {
		s.Registry = Registry()
	}
	s.backend = s.NewBackend()
	s.ctx = context.Background()
}

func (s *Suite) tx(fn func(st store.Store) error) error {
	return s.backend.RunInTx(s.ctx, fn)
}

func (s *Suite) mustTx(fn func(st store.Store) error) {
	s.Require().NoError(s.tx(fn))
}

func strPtr(v string) *string { return &v }
func intPtr(v int) *int       { return &v }

func (s *Suite) seedPerson(id string) {
	s.mustTx(func(st store.Store) error {
		return st.CreatePerson(s.ctx, &models.Person{ID: id, Status: models.PersonActive, PhysicalStatus: models.PhysicalAlive})
	})
}

func (s *Suite) seedIdentity(i *models.Identity) *models.Identity {
	if i.Status == "" {
		i.Status = models.IdentityClaimed
	}
	s.mustTx(func(st store.Store) error {
		return st.InsertIdentity(s.ctx, i)
	})
	return i
}

func identity(person, id string, position int, attrs map[string]any) *models.Identity {
	return &models.Identity{PersonID: person, IdentityID: id, Position: position, Attributes: attrs}
}

func (s *Suite) TestPersons() {
	s.Run("creates and finds", func() {
		s.seedPerson("P1")
		s.mustTx(func(st store.Store) error {
			p, err := st.FindPerson(s.ctx, "P1")
			s.Require().NoError(err)
			s.Equal(models.PersonActive, p.Status)
			s.Equal(models.PhysicalAlive, p.PhysicalStatus)
			return nil
		})
	})

	s.Run("rejects a duplicate id", func() {
		err := s.tx(func(st store.Store) error {
			return st.CreatePerson(s.ctx, &models.Person{ID: "P1", Status: models.PersonActive, PhysicalStatus: models.PhysicalAlive})
		})
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("updates status", func() {
		s.mustTx(func(st store.Store) error {
			return st.UpdatePerson(s.ctx, &models.Person{ID: "P1", Status: models.PersonInactive, PhysicalStatus: models.PhysicalDead})
		})
		s.mustTx(func(st store.Store) error {
			p, err := st.FindPerson(s.ctx, "P1")
			s.Require().NoError(err)
			s.Equal(models.PersonInactive, p.Status)
			s.Equal(models.PhysicalDead, p.PhysicalStatus)
			return nil
		})
	})

	s.Run("reports unknown persons", func() {
		err := s.tx(func(st store.Store) error {
			_, err := st.FindPerson(s.ctx, "nope")
			return err
		})
		s.ErrorIs(err, sentinel.ErrNotFound)

		err = s.tx(func(st store.Store) error {
			return st.UpdatePerson(s.ctx, &models.Person{ID: "nope", Status: models.PersonActive, PhysicalStatus: models.PhysicalAlive})
		})
		s.ErrorIs(err, sentinel.ErrNotFound)

		err = s.tx(func(st store.Store) error { return st.DeletePerson(s.ctx, "nope") })
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *Suite) TestIdentityRoundTrip() {
	s.seedPerson("P1")
	captured := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	enrolled := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	in := &models.Identity{
		PersonID:     "P1",
		IdentityID:   "001",
		IdentityType: strPtr("CIVIL"),
		Status:       models.IdentityValid,
		IsReference:  true,
		Galleries:    []string{"G2", "G1"},
		ClientData:   []byte{0x01, 0x02},
		Attributes: map[string]any{
			"bgd_firstName":      "Jane",
			"bgd_dateOfBirth":    "1985-11-30",
			"bgd_gender":         "F",
			"ctx_enrollmentDate": enrolled,
		},
		BiometricData: []models.BiometricData{{
			BiometricType:    "FINGER",
			BiometricSubType: strPtr("RIGHT_INDEX"),
			Image:            []byte("png"),
			CaptureDate:      &captured,
			Width:            intPtr(500),
			Missing:          []models.Missing{{BiometricSubType: "LEFT_THUMB", Presence: "BANDAGED"}},
		}},
		DocumentData: []models.DocumentData{{
			DocumentType: "ID_CARD",
			Instance:     strPtr("1"),
			Parts: []models.DocumentPart{
				{Pages: []int{1}, Data: []byte("front"), MimeType: strPtr("image/png")},
				{Pages: []int{2}, DataRef: strPtr("http://files/back")},
			},
		}},
	}
	s.seedIdentity(in)
	s.NotZero(in.Key)

	s.mustTx(func(st store.Store) error {
		got, err := st.FindIdentity(s.ctx, "P1", "001")
		s.Require().NoError(err)
		s.Equal(in.Key, got.Key)
		s.Equal("CIVIL", *got.IdentityType)
		s.Equal(models.IdentityValid, got.Status)
		s.True(got.IsReference)
		s.Equal([]string{"G2", "G1"}, got.Galleries)
		s.Equal([]byte{0x01, 0x02}, got.ClientData)
		s.Equal("Jane", got.Attributes["bgd_firstName"])
		s.Equal("1985-11-30", got.Attributes["bgd_dateOfBirth"])
		s.Equal("F", got.Attributes["bgd_gender"])
		s.NotContains(got.Attributes, "bgd_lastName")
		gotEnrolled, ok := got.Attributes["ctx_enrollmentDate"].(time.Time)
		s.Require().True(ok)
		s.True(enrolled.Equal(gotEnrolled))

		s.Require().Len(got.BiometricData, 1)
		bio := got.BiometricData[0]
		s.Equal("FINGER", bio.BiometricType)
		s.Equal("RIGHT_INDEX", *bio.BiometricSubType)
		s.Equal([]byte("png"), bio.Image)
		s.True(captured.Equal(*bio.CaptureDate))
		s.Equal(500, *bio.Width)
		s.Equal([]models.Missing{{BiometricSubType: "LEFT_THUMB", Presence: "BANDAGED"}}, bio.Missing)

		s.Require().Len(got.DocumentData, 1)
		doc := got.DocumentData[0]
		s.Equal("ID_CARD", doc.DocumentType)
		s.Require().Len(doc.Parts, 2)
		s.Equal([]int{1}, doc.Parts[0].Pages)
		s.Equal([]byte("front"), doc.Parts[0].Data)
		s.Equal("http://files/back", *doc.Parts[1].DataRef)
		return nil
	})
}

func (s *Suite) TestIdentityConstraints() {
	s.seedPerson("P1")
	s.seedIdentity(identity("P1", "001", 0, nil))

	s.Run("duplicate identity id", func() {
		err := s.tx(func(st store.Store) error {
			return st.InsertIdentity(s.ctx, &models.Identity{PersonID: "P1", IdentityID: "001", Status: models.IdentityClaimed})
		})
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("unknown owner", func() {
		err := s.tx(func(st store.Store) error {
			return st.InsertIdentity(s.ctx, &models.Identity{PersonID: "P9", IdentityID: "001", Status: models.IdentityClaimed})
		})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("unknown identity", func() {
		err := s.tx(func(st store.Store) error {
			_, err := st.FindIdentity(s.ctx, "P1", "404")
			return err
		})
		s.ErrorIs(err, sentinel.ErrNotFound)

		err = s.tx(func(st store.Store) error { return st.DeleteIdentity(s.ctx, "P1", "404") })
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *Suite) TestListIdentitiesByPosition() {
	s.seedPerson("P1")
	s.seedIdentity(identity("P1", "b", 2, nil))
	s.seedIdentity(identity("P1", "a", 1, nil))
	s.seedIdentity(identity("P1", "c", 3, nil))

	s.mustTx(func(st store.Store) error {
		list, err := st.ListIdentities(s.ctx, "P1")
		s.Require().NoError(err)
		ids := make([]string, len(list))
		for n, i := range list {
			ids[n] = i.IdentityID
		}
		s.Equal([]string{"a", "b", "c"}, ids)

		empty, err := st.ListIdentities(s.ctx, "P9")
		s.Require().NoError(err)
		s.Empty(empty)
		return nil
	})
}

func (s *Suite) TestReplaceIdentityRewritesChildren() {
	s.seedPerson("P1")
	i := s.seedIdentity(&models.Identity{
		PersonID:      "P1",
		IdentityID:    "001",
		Galleries:     []string{"G1"},
		Attributes:    map[string]any{"bgd_firstName": "Jane", "bgd_lastName": "Doe"},
		BiometricData: []models.BiometricData{{BiometricType: "FACE"}},
	})

	i.Galleries = []string{"G3"}
	i.Attributes = map[string]any{"bgd_firstName": "Janet"}
	i.BiometricData = nil
	i.DocumentData = []models.DocumentData{{DocumentType: "PASSPORT", Parts: []models.DocumentPart{{Data: []byte("p")}}}}
	s.mustTx(func(st store.Store) error { return st.ReplaceIdentity(s.ctx, i) })

	s.mustTx(func(st store.Store) error {
		got, err := st.FindIdentity(s.ctx, "P1", "001")
		s.Require().NoError(err)
		s.Equal(i.Key, got.Key)
		s.Equal([]string{"G3"}, got.Galleries)
		s.Equal(map[string]any{"bgd_firstName": "Janet"}, got.Attributes)
		s.Empty(got.BiometricData)
		s.Require().Len(got.DocumentData, 1)
		s.Equal("PASSPORT", got.DocumentData[0].DocumentType)
		return nil
	})
}

func (s *Suite) TestUpdateIdentityStateMovesIdentity() {
	s.seedPerson("P1")
	s.seedPerson("P2")
	i := s.seedIdentity(&models.Identity{
		PersonID:      "P1",
		IdentityID:    "001",
		Attributes:    map[string]any{"bgd_firstName": "Jane"},
		BiometricData: []models.BiometricData{{BiometricType: "FACE"}},
	})

	i.PersonID = "P2"
	i.Position = 5
	i.Status = models.IdentityRevoked
	i.IsReference = true
	s.mustTx(func(st store.Store) error { return st.UpdateIdentityState(s.ctx, i) })

	s.mustTx(func(st store.Store) error {
		_, err := st.FindIdentity(s.ctx, "P1", "001")
		s.ErrorIs(err, sentinel.ErrNotFound)

		got, err := st.FindIdentity(s.ctx, "P2", "001")
		s.Require().NoError(err)
		s.Equal(5, got.Position)
		s.Equal(models.IdentityRevoked, got.Status)
		s.True(got.IsReference)
		s.Equal("Jane", got.Attributes["bgd_firstName"])
		s.Len(got.BiometricData, 1)
		return nil
	})
}

func (s *Suite) TestDeletePersonCascades() {
	s.seedPerson("P1")
	s.seedPerson("P2")
	s.seedIdentity(&models.Identity{PersonID: "P1", IdentityID: "001", Galleries: []string{"G1"}, BiometricData: []models.BiometricData{{BiometricType: "FACE"}}})
	s.seedIdentity(identity("P2", "001", 0, nil))

	s.mustTx(func(st store.Store) error { return st.DeletePerson(s.ctx, "P1") })

	s.mustTx(func(st store.Store) error {
		counts, err := st.Counts(s.ctx)
		s.Require().NoError(err)
		s.Equal(store.Counts{Persons: 1, Identities: 1, BiometricData: 0}, counts)

		exists, err := st.GalleryExists(s.ctx, "G1")
		s.Require().NoError(err)
		s.False(exists)
		return nil
	})
}

func (s *Suite) TestFailedTransactionRollsBack() {
	boom := errors.New("boom")
	err := s.tx(func(st store.Store) error {
		if err := st.CreatePerson(s.ctx, &models.Person{ID: "P1", Status: models.PersonActive, PhysicalStatus: models.PhysicalAlive}); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	err = s.tx(func(st store.Store) error {
		_, err := st.FindPerson(s.ctx, "P1")
		return err
	})
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *Suite) TestCancelledContextAbortsTransaction() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.backend.RunInTx(ctx, func(store.Store) error {
		called = true
		return nil
	})
	s.Error(err)
	s.False(called)
}

func (s *Suite) TestNumericAttributesRoundTrip() {
	s.seedPerson("P1")
	s.seedIdentity(identity("P1", "001", 0, map[string]any{
		"bgd_firstName": "Jane",
		"ctx_weight":    1.1,
		"ctx_height":    1.1,
	}))

	s.mustTx(func(st store.Store) error {
		got, err := st.FindIdentity(s.ctx, "P1", "001")
		s.Require().NoError(err)
		s.Equal(1.1, got.Attributes["ctx_weight"])
		s.Equal(1.1, got.Attributes["ctx_height"])
		return nil
	})

	for _, name := range []string{"weight", "height"} {
		s.Run(name+" matches the stored value exactly", func() {
			rows := s.selectRows([]query.Predicate{{AttributeName: name, Operator: "=", Value: 1.1}}, query.Options{})
			s.Equal([]query.Row{{PersonID: "P1", IdentityID: "001"}}, rows)
		})
	}
}

func (s *Suite) seedQueryData() {
	for _, p := range []string{"P1", "P2", "P3"} {
		s.seedPerson(p)
	}
	s.seedIdentity(&models.Identity{PersonID: "P1", IdentityID: "001", IsReference: true, Galleries: []string{"G1"},
		Attributes: map[string]any{"bgd_firstName": "Jane", "bgd_lastName": "Doe", "bgd_dateOfBirth": "1985-11-30"}})
	s.seedIdentity(&models.Identity{PersonID: "P1", IdentityID: "002",
		Attributes: map[string]any{"bgd_firstName": "Janet", "bgd_lastName": "Doe", "bgd_dateOfBirth": "1986-01-02"}})
	s.seedIdentity(&models.Identity{PersonID: "P2", IdentityID: "001", IsReference: true, Galleries: []string{"G1", "G2"},
		Attributes: map[string]any{"bgd_firstName": "John", "bgd_lastName": "Doe"}})
	s.seedIdentity(&models.Identity{PersonID: "P3", IdentityID: "001",
		Attributes: map[string]any{"bgd_lastName": "Smith"}})
}

func (s *Suite) selectRows(preds []query.Predicate, opts query.Options) []query.Row {
	plan, err := query.NewEngine(s.Registry).Compile(preds, opts)
	s.Require().NoError(err)
	var rows []query.Row
	s.mustTx(func(st store.Store) error {
		var err error
		rows, err = st.Select(s.ctx, plan)
		return err
	})
	return rows
}

func (s *Suite) TestSelect() {
	s.seedQueryData()
	doe := []query.Predicate{{AttributeName: "lastName", Operator: "=", Value: "Doe"}}

	s.Run("ungrouped in insertion order", func() {
		s.Equal([]query.Row{{PersonID: "P1", IdentityID: "001"}, {PersonID: "P1", IdentityID: "002"}, {PersonID: "P2", IdentityID: "001"}},
			s.selectRows(doe, query.Options{}))
	})

	s.Run("grouped by person", func() {
		s.Equal([]query.Row{{PersonID: "P1"}, {PersonID: "P2"}}, s.selectRows(doe, query.Options{Group: true}))
	})

	s.Run("reference only", func() {
		s.Equal([]query.Row{{PersonID: "P1", IdentityID: "001"}, {PersonID: "P2", IdentityID: "001"}},
			s.selectRows(doe, query.Options{Reference: true}))
	})

	s.Run("gallery restricted", func() {
		s.Equal([]query.Row{{PersonID: "P2", IdentityID: "001"}}, s.selectRows(doe, query.Options{Gallery: "G2"}))
	})

	s.Run("paged", func() {
		s.Equal([]query.Row{{PersonID: "P1", IdentityID: "002"}}, s.selectRows(doe, query.Options{Offset: 1, Limit: 1}))
	})

	s.Run("absent attributes never match", func() {
		rows := s.selectRows([]query.Predicate{{AttributeName: "firstName", Operator: "!=", Value: "Jane"}}, query.Options{})
		s.Equal([]query.Row{{PersonID: "P1", IdentityID: "002"}, {PersonID: "P2", IdentityID: "001"}}, rows)
	})

	s.Run("partial date bound", func() {
		rows := s.selectRows([]query.Predicate{{AttributeName: "dateOfBirth", Operator: ">=", Value: "1986"}}, query.Options{})
		s.Equal([]query.Row{{PersonID: "P1", IdentityID: "002"}}, rows)
	})

	s.Run("person id", func() {
		rows := s.selectRows([]query.Predicate{{AttributeName: query.PersonIDAttribute, Operator: ">", Value: "P1"}}, query.Options{Group: true})
		s.Equal([]query.Row{{PersonID: "P2"}, {PersonID: "P3"}}, rows)
	})

	s.Run("no match is an empty list", func() {
		rows := s.selectRows([]query.Predicate{{AttributeName: "lastName", Operator: "=", Value: "Nobody"}}, query.Options{})
		s.NotNil(rows)
		s.Empty(rows)
	})
}

func (s *Suite) TestGalleries() {
	s.seedQueryData()

	s.mustTx(func(st store.Store) error {
		names, err := st.Galleries(s.ctx)
		s.Require().NoError(err)
		s.Equal([]string{"G1", "G2"}, names)

		members, err := st.GalleryMembers(s.ctx, "G1", 0, 0)
		s.Require().NoError(err)
		s.Equal([]query.Row{{PersonID: "P1", IdentityID: "001"}, {PersonID: "P2", IdentityID: "001"}}, members)

		members, err = st.GalleryMembers(s.ctx, "G1", 1, 10)
		s.Require().NoError(err)
		s.Equal([]query.Row{{PersonID: "P2", IdentityID: "001"}}, members)

		exists, err := st.GalleryExists(s.ctx, "G3")
		s.Require().NoError(err)
		s.False(exists)
		return nil
	})
}

func (s *Suite) TestCounts() {
	s.seedPerson("P1")
	s.seedIdentity(&models.Identity{PersonID: "P1", IdentityID: "001", BiometricData: []models.BiometricData{{BiometricType: "FACE"}, {BiometricType: "IRIS"}}})
	s.seedIdentity(identity("P1", "002", 1, nil))

	s.mustTx(func(st store.Store) error {
		counts, err := st.Counts(s.ctx)
		s.Require().NoError(err)
		s.Equal(store.Counts{Persons: 1, Identities: 2, BiometricData: 2}, counts)
		return nil
	})
}
