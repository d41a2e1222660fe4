package postgres

import (
	"fmt"
	"strings"

	"registry/internal/registry/custo"
)

// Schema returns the DDL statements for the registry tables, the customized
// identity columns included. Every statement is idempotent.
func Schema(reg *custo.Registry) []string {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS person (
  person_id VARCHAR(100) PRIMARY KEY,
  status VARCHAR(16) NOT NULL DEFAULT 'ACTIVE' CHECK (status IN ('ACTIVE', 'INACTIVE')),
  physical_status VARCHAR(16) NOT NULL DEFAULT 'ALIVE' CHECK (physical_status IN ('ALIVE', 'DEAD'))
)`,
		`CREATE TABLE IF NOT EXISTS identity (
  id BIGSERIAL PRIMARY KEY,
  person_id VARCHAR(100) NOT NULL REFERENCES person (person_id) ON DELETE CASCADE,
  identity_id VARCHAR(100) NOT NULL,
  identity_type VARCHAR(100),
  status VARCHAR(16) NOT NULL DEFAULT 'CLAIMED' CHECK (status IN ('CLAIMED', 'VALID', 'INVALID', 'REVOKED')),
  is_reference BOOLEAN NOT NULL DEFAULT FALSE,
  ordinal INTEGER NOT NULL,
  client_data BYTEA,
  UNIQUE (person_id, identity_id)
)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS identity_single_reference ON identity (person_id) WHERE is_reference`,
	}
	for _, f := range reg.Fields() {
		stmts = append(stmts, fmt.Sprintf(`ALTER TABLE identity ADD COLUMN IF NOT EXISTS %s %s`, quote(f.Column), columnType(f)))
	}
	stmts = append(stmts,
		`CREATE TABLE IF NOT EXISTS gallery (
  gallery_id VARCHAR(100) NOT NULL,
  identity_key BIGINT NOT NULL REFERENCES identity (id) ON DELETE CASCADE,
  ordinal INTEGER NOT NULL,
  PRIMARY KEY (gallery_id, identity_key)
)`,
		`CREATE INDEX IF NOT EXISTS gallery_identity ON gallery (identity_key)`,
		`CREATE TABLE IF NOT EXISTS biometric_data (
  id BIGSERIAL PRIMARY KEY,
  identity_key BIGINT NOT NULL REFERENCES identity (id) ON DELETE CASCADE,
  ordinal INTEGER NOT NULL,
  biometric_type VARCHAR(16) NOT NULL,
  biometric_sub_type VARCHAR(64),
  instance VARCHAR(100),
  image BYTEA,
  image_ref VARCHAR(255),
  capture_date TIMESTAMPTZ,
  capture_device VARCHAR(255),
  impression_type VARCHAR(64),
  width INTEGER,
  height INTEGER,
  bitdepth INTEGER,
  mime_type VARCHAR(100),
  resolution INTEGER,
  compression VARCHAR(16),
  metadata VARCHAR(1024),
  comment VARCHAR(1024),
  template BYTEA,
  template_ref VARCHAR(255),
  template_format VARCHAR(100),
  quality INTEGER,
  quality_format VARCHAR(100),
  algorithm VARCHAR(100),
  vendor VARCHAR(100)
)`,
		`CREATE INDEX IF NOT EXISTS biometric_data_identity ON biometric_data (identity_key)`,
		`CREATE TABLE IF NOT EXISTS biometric_data_missing (
  id BIGSERIAL PRIMARY KEY,
  biometric_data_id BIGINT NOT NULL REFERENCES biometric_data (id) ON DELETE CASCADE,
  ordinal INTEGER NOT NULL,
  biometric_sub_type VARCHAR(64) NOT NULL,
  presence VARCHAR(16) NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS document_data (
  id BIGSERIAL PRIMARY KEY,
  identity_key BIGINT NOT NULL REFERENCES identity (id) ON DELETE CASCADE,
  ordinal INTEGER NOT NULL,
  document_type VARCHAR(32) NOT NULL,
  document_type_other VARCHAR(100),
  instance VARCHAR(100)
)`,
		`CREATE INDEX IF NOT EXISTS document_data_identity ON document_data (identity_key)`,
		`CREATE TABLE IF NOT EXISTS document_part (
  id BIGSERIAL PRIMARY KEY,
  document_data_id BIGINT NOT NULL REFERENCES document_data (id) ON DELETE CASCADE,
  ordinal INTEGER NOT NULL,
  pages JSONB,
  data BYTEA,
  data_ref VARCHAR(255),
  width INTEGER,
  height INTEGER,
  mime_type VARCHAR(100),
  capture_date TIMESTAMPTZ,
  capture_device VARCHAR(255)
)`,
	)
	return stmts
}

// DDL returns the schema as one script.
func DDL(reg *custo.Registry) string {
	return strings.Join(Schema(reg), ";\n\n") + ";\n"
}

func columnType(f custo.Field) string {
	switch f.Kind {
	case custo.KindString:
		return fmt.Sprintf("VARCHAR(%d)", f.MaxLength)
	case custo.KindEnum:
		quoted := make([]string, len(f.Enum))
		width := 1
		for i, v := range f.Enum {
			quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
			width = max(width, len(v))
		}
		return fmt.Sprintf("VARCHAR(%d) CHECK (%s IN (%s))", width, quote(f.Column), strings.Join(quoted, ", "))
	case custo.KindDate:
		return "DATE"
	case custo.KindDateTime:
		return "TIMESTAMPTZ"
	case custo.KindBytes:
		return "BYTEA"
	case custo.KindBool:
		return "BOOLEAN"
	case custo.KindInt32:
		return "INTEGER"
	case custo.KindInt64:
		return "BIGINT"
	case custo.KindFloat, custo.KindDouble:
		// float values travel as float64; a REAL column would round them.
		return "DOUBLE PRECISION"
	default:
		return "JSONB"
	}
}

// quote returns a quoted identifier; custo column names are restricted to
// letters, digits and underscores.
func quote(column string) string {
	return `"` + column + `"`
}
