//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/suite"

	"registry/internal/registry/models"
	"registry/internal/registry/store"
	"registry/internal/registry/store/postgres"
	"registry/internal/registry/store/storetest"
	"registry/pkg/platform/sentinel"
	"registry/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	storetest.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.Registry = storetest.Registry()
	s.store = postgres.New(s.postgres.DB, s.Registry, postgres.WithIsolation(sql.LevelRepeatableRead))
	s.Require().NoError(s.store.Migrate(context.Background()))
	s.NewBackend = func() store.Backend {
		err := s.postgres.TruncateTables(context.Background(), "person", "identity", "gallery",
			"biometric_data", "biometric_data_missing", "document_data", "document_part")
		s.Require().NoError(err)
		return s.store
	}
}

func (s *PostgresStoreSuite) TestMigrateIsIdempotent() {
	s.Require().NoError(s.store.Migrate(context.Background()))
}

func (s *PostgresStoreSuite) TestSingleReferencePerPerson() {
	ctx := context.Background()
	s.Require().NoError(s.store.RunInTx(ctx, func(tx store.Store) error {
		if err := tx.CreatePerson(ctx, &models.Person{ID: "P1", Status: models.PersonActive, PhysicalStatus: models.PhysicalAlive}); err != nil {
			return err
		}
		return tx.InsertIdentity(ctx, &models.Identity{PersonID: "P1", IdentityID: "001", Status: models.IdentityClaimed, IsReference: true})
	}))

	err := s.store.RunInTx(ctx, func(tx store.Store) error {
		return tx.InsertIdentity(ctx, &models.Identity{PersonID: "P1", IdentityID: "002", Status: models.IdentityClaimed, IsReference: true})
	})
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestEnumColumnRejectsUnknownValue() {
	ctx := context.Background()
	err := s.store.RunInTx(ctx, func(tx store.Store) error {
		if err := tx.CreatePerson(ctx, &models.Person{ID: "P1", Status: models.PersonActive, PhysicalStatus: models.PhysicalAlive}); err != nil {
			return err
		}
		return tx.InsertIdentity(ctx, &models.Identity{PersonID: "P1", IdentityID: "001", Status: models.IdentityClaimed,
			Attributes: map[string]any{"bgd_gender": "X"}})
	})
	s.Error(err)
}
