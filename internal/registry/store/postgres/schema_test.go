package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registry/internal/registry/custo"
	"registry/internal/registry/query"
	"registry/internal/registry/store/storetest"
)

func TestSchemaAddsCustomizedColumns(t *testing.T) {
	ddl := DDL(custo.Default())

	assert.Contains(t, ddl, `ALTER TABLE identity ADD COLUMN IF NOT EXISTS "bgd_firstName" VARCHAR(255)`)
	assert.Contains(t, ddl, `ADD COLUMN IF NOT EXISTS "bgd_nationality" VARCHAR(3)`)
	assert.Contains(t, ddl, `ADD COLUMN IF NOT EXISTS "bgd_dateOfBirth" DATE`)
	assert.Contains(t, ddl, `"bgd_gender" VARCHAR(1) CHECK ("bgd_gender" IN ('M', 'F', 'O'))`)
	assert.Contains(t, ddl, `ADD COLUMN IF NOT EXISTS "ctx_enrollmentDate" TIMESTAMPTZ`)
	assert.Contains(t, ddl, "identity_single_reference")
	assert.True(t, strings.HasSuffix(ddl, ";\n"))
}

func TestSchemaStoresFloatsInDoublePrecision(t *testing.T) {
	ddl := DDL(storetest.Registry())

	assert.Contains(t, ddl, `ADD COLUMN IF NOT EXISTS "ctx_weight" DOUBLE PRECISION`)
	assert.Contains(t, ddl, `ADD COLUMN IF NOT EXISTS "ctx_height" DOUBLE PRECISION`)
	assert.NotContains(t, ddl, "REAL")
}

func TestRenderSelect(t *testing.T) {
	engine := query.NewEngine(custo.Default())

	t.Run("grouped with gallery and paging", func(t *testing.T) {
		plan, err := engine.Compile([]query.Predicate{
			{AttributeName: "lastName", Operator: "=", Value: "Doe"},
			{AttributeName: "dateOfBirth", Operator: "<", Value: "1990"},
		}, query.Options{Group: true, Reference: true, Gallery: "G1", Offset: 10, Limit: 5})
		require.NoError(t, err)

		sql, args := renderSelect(plan)
		assert.Equal(t, `SELECT i.person_id FROM identity i`+
			` JOIN gallery g ON g.identity_key = i.id AND g.gallery_id = $1`+
			` WHERE i.is_reference AND i."bgd_lastName" COLLATE "C" = $2`+
			` AND to_char(i."bgd_dateOfBirth", 'YYYY-MM-DD') COLLATE "C" < $3`+
			` GROUP BY i.person_id ORDER BY MIN(i.id) LIMIT 5 OFFSET 10`, sql)
		assert.Equal(t, []any{"G1", "Doe", "1990"}, args)
	})

	t.Run("plain listing", func(t *testing.T) {
		plan, err := engine.Compile(nil, query.Options{})
		require.NoError(t, err)

		sql, args := renderSelect(plan)
		assert.Equal(t, `SELECT i.person_id, i.identity_id FROM identity i ORDER BY i.id`, sql)
		assert.Empty(t, args)
	})

	t.Run("person id", func(t *testing.T) {
		plan, err := engine.Compile([]query.Predicate{{AttributeName: "personId", Operator: "!=", Value: "P1"}}, query.Options{})
		require.NoError(t, err)

		sql, _ := renderSelect(plan)
		assert.Contains(t, sql, `WHERE i."person_id" COLLATE "C" != $1`)
	})
}
