// Package postgres is the PostgreSQL registry backend built on sqlx and the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"registry/internal/registry/custo"
	"registry/internal/registry/models"
	"registry/internal/registry/query"
	"registry/internal/registry/store"
	dErrors "registry/pkg/domain-errors"
	"registry/pkg/platform/sentinel"
)

const (
	defaultTxTimeout = 10 * time.Second

	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Store is the PostgreSQL backend.
type Store struct {
	db        *sqlx.DB
	reg       *custo.Registry
	isolation sql.IsolationLevel
	timeout   time.Duration
}

// Option configures the Store.
type Option func(*Store)

// WithIsolation sets the isolation level of every transaction.
func WithIsolation(level sql.IsolationLevel) Option {
	return func(s *Store) {
		s.isolation = level
	}
}

// WithTxTimeout bounds transactions started without a deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// New returns a Store over db for the given customization.
func New(db *sqlx.DB, reg *custo.Registry, opts ...Option) *Store {
	s := &Store{db: db, reg: reg, isolation: sql.LevelRepeatableRead, timeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the tables and the customized columns.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range Schema(s.reg) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RunInTx runs fn in one database transaction; any error rolls it back.
func (s *Store) RunInTx(ctx context.Context, fn func(store.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: s.isolation})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(&txStore{tx: tx, reg: s.reg}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx  *sqlx.Tx
	reg *custo.Registry
}

type personRow struct {
	ID             string `db:"person_id"`
	Status         string `db:"status"`
	PhysicalStatus string `db:"physical_status"`
}

func (t *txStore) FindPerson(ctx context.Context, personID string) (*models.Person, error) {
	var row personRow
	err := t.tx.GetContext(ctx, &row, `SELECT person_id, status, physical_status FROM person WHERE person_id = $1`, personID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find person: %w", err)
	}
	return &models.Person{ID: row.ID, Status: models.PersonStatus(row.Status), PhysicalStatus: models.PhysicalStatus(row.PhysicalStatus)}, nil
}

func (t *txStore) CreatePerson(ctx context.Context, p *models.Person) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO person (person_id, status, physical_status) VALUES ($1, $2, $3)`,
		p.ID, string(p.Status), string(p.PhysicalStatus))
	if err != nil {
		return fmt.Errorf("create person: %w", translate(err))
	}
	return nil
}

func (t *txStore) UpdatePerson(ctx context.Context, p *models.Person) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE person SET status = $2, physical_status = $3 WHERE person_id = $1`,
		p.ID, string(p.Status), string(p.PhysicalStatus))
	if err != nil {
		return fmt.Errorf("update person: %w", err)
	}
	return requireRow(res)
}

func (t *txStore) DeletePerson(ctx context.Context, personID string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM person WHERE person_id = $1`, personID)
	if err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	return requireRow(res)
}

func (t *txStore) identityColumns() string {
	cols := []string{"id", "person_id", "identity_id", "identity_type", "status", "is_reference", "ordinal", "client_data"}
	for _, f := range t.reg.Fields() {
		cols = append(cols, quote(f.Column))
	}
	return strings.Join(cols, ", ")
}

func (t *txStore) ListIdentities(ctx context.Context, personID string) ([]*models.Identity, error) {
	q := `SELECT ` + t.identityColumns() + ` FROM identity WHERE person_id = $1 ORDER BY ordinal, id`
	idents, err := t.queryIdentities(ctx, q, personID)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	if err := t.loadChildren(ctx, idents); err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	return idents, nil
}

func (t *txStore) FindIdentity(ctx context.Context, personID, identityID string) (*models.Identity, error) {
	q := `SELECT ` + t.identityColumns() + ` FROM identity WHERE person_id = $1 AND identity_id = $2`
	idents, err := t.queryIdentities(ctx, q, personID, identityID)
	if err != nil {
		return nil, fmt.Errorf("find identity: %w", err)
	}
	if len(idents) == 0 {
		return nil, sentinel.ErrNotFound
	}
	if err := t.loadChildren(ctx, idents); err != nil {
		return nil, fmt.Errorf("find identity: %w", err)
	}
	return idents[0], nil
}

func (t *txStore) queryIdentities(ctx context.Context, q string, args ...any) ([]*models.Identity, error) {
	rows, err := t.tx.QueryxContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := t.reg.Fields()
	var out []*models.Identity
	for rows.Next() {
		var (
			i            models.Identity
			identityType sql.NullString
			status       string
		)
		holders := make([]any, len(fields))
		dest := []any{&i.Key, &i.PersonID, &i.IdentityID, &identityType, &status, &i.IsReference, &i.Position, &i.ClientData}
		for j, f := range fields {
			holders[j] = scanTarget(f.Kind)
			dest = append(dest, holders[j])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if identityType.Valid {
			i.IdentityType = &identityType.String
		}
		i.Status = models.IdentityStatus(status)
		i.Attributes = make(map[string]any, len(fields))
		for j, f := range fields {
			v, ok, err := fromScan(f.Kind, holders[j])
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", f.Column, err)
			}
			if ok {
				i.Attributes[f.Column] = v
			}
		}
		out = append(out, &i)
	}
	return out, rows.Err()
}

type biometricRow struct {
	ID          int64 `db:"id"`
	IdentityKey int64 `db:"identity_key"`
	models.BiometricData
}

type missingRow struct {
	BiometricDataID int64 `db:"biometric_data_id"`
	models.Missing
}

type documentRow struct {
	ID          int64 `db:"id"`
	IdentityKey int64 `db:"identity_key"`
	models.DocumentData
}

type partRow struct {
	DocumentDataID int64  `db:"document_data_id"`
	PagesJSON      []byte `db:"pages"`
	models.DocumentPart
}

const (
	biometricColumns = `biometric_type, biometric_sub_type, instance, image, image_ref, capture_date, capture_device,
  impression_type, width, height, bitdepth, mime_type, resolution, compression, metadata, comment, template,
  template_ref, template_format, quality, quality_format, algorithm, vendor`
	partColumns = `data, data_ref, width, height, mime_type, capture_date, capture_device`
)

// loadChildren fills galleries, biometric and document data of idents in bulk.
func (t *txStore) loadChildren(ctx context.Context, idents []*models.Identity) error {
	if len(idents) == 0 {
		return nil
	}
	byKey := make(map[int64]*models.Identity, len(idents))
	keys := make([]int64, len(idents))
	for n, i := range idents {
		byKey[i.Key] = i
		keys[n] = i.Key
	}

	rows, err := t.tx.QueryxContext(ctx,
		`SELECT identity_key, gallery_id FROM gallery WHERE identity_key = ANY($1) ORDER BY identity_key, ordinal`, pq.Array(keys))
	if err != nil {
		return fmt.Errorf("load galleries: %w", err)
	}
	for rows.Next() {
		var key int64
		var gallery string
		if err := rows.Scan(&key, &gallery); err != nil {
			rows.Close()
			return fmt.Errorf("scan gallery: %w", err)
		}
		byKey[key].Galleries = append(byKey[key].Galleries, gallery)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load galleries: %w", err)
	}

	var bios []biometricRow
	if err := t.tx.SelectContext(ctx, &bios,
		`SELECT id, identity_key, `+biometricColumns+` FROM biometric_data WHERE identity_key = ANY($1) ORDER BY identity_key, ordinal`,
		pq.Array(keys)); err != nil {
		return fmt.Errorf("load biometric data: %w", err)
	}
	if len(bios) > 0 {
		bioIDs := make([]int64, len(bios))
		for n, b := range bios {
			bioIDs[n] = b.ID
		}
		var missing []missingRow
		if err := t.tx.SelectContext(ctx, &missing,
			`SELECT biometric_data_id, biometric_sub_type, presence FROM biometric_data_missing WHERE biometric_data_id = ANY($1) ORDER BY biometric_data_id, ordinal`,
			pq.Array(bioIDs)); err != nil {
			return fmt.Errorf("load missing biometrics: %w", err)
		}
		byBio := map[int64][]models.Missing{}
		for _, m := range missing {
			byBio[m.BiometricDataID] = append(byBio[m.BiometricDataID], m.Missing)
		}
		for _, b := range bios {
			b.BiometricData.Missing = byBio[b.ID]
			ident := byKey[b.IdentityKey]
			ident.BiometricData = append(ident.BiometricData, b.BiometricData)
		}
	}

	var docs []documentRow
	if err := t.tx.SelectContext(ctx, &docs,
		`SELECT id, identity_key, document_type, document_type_other, instance FROM document_data WHERE identity_key = ANY($1) ORDER BY identity_key, ordinal`,
		pq.Array(keys)); err != nil {
		return fmt.Errorf("load document data: %w", err)
	}
	if len(docs) > 0 {
		docIDs := make([]int64, len(docs))
		for n, d := range docs {
			docIDs[n] = d.ID
		}
		var parts []partRow
		if err := t.tx.SelectContext(ctx, &parts,
			`SELECT document_data_id, pages, `+partColumns+` FROM document_part WHERE document_data_id = ANY($1) ORDER BY document_data_id, ordinal`,
			pq.Array(docIDs)); err != nil {
			return fmt.Errorf("load document parts: %w", err)
		}
		byDoc := map[int64][]models.DocumentPart{}
		for _, p := range parts {
			if len(p.PagesJSON) > 0 {
				if err := json.Unmarshal(p.PagesJSON, &p.DocumentPart.Pages); err != nil {
					return fmt.Errorf("decode pages: %w", err)
				}
			}
			byDoc[p.DocumentDataID] = append(byDoc[p.DocumentDataID], p.DocumentPart)
		}
		for _, d := range docs {
			d.DocumentData.Parts = byDoc[d.ID]
			if d.DocumentData.Parts == nil {
				d.DocumentData.Parts = []models.DocumentPart{}
			}
			ident := byKey[d.IdentityKey]
			ident.DocumentData = append(ident.DocumentData, d.DocumentData)
		}
	}
	return nil
}

func (t *txStore) InsertIdentity(ctx context.Context, i *models.Identity) error {
	cols := []string{"person_id", "identity_id", "identity_type", "status", "is_reference", "ordinal", "client_data"}
	args := []any{i.PersonID, i.IdentityID, i.IdentityType, string(i.Status), i.IsReference, i.Position, i.ClientData}
	for _, f := range t.reg.Fields() {
		cols = append(cols, quote(f.Column))
		args = append(args, bindValue(i.Attributes[f.Column]))
	}
	q := fmt.Sprintf(`INSERT INTO identity (%s) VALUES (%s) RETURNING id`, strings.Join(cols, ", "), placeholders(1, len(cols)))
	if err := t.tx.QueryRowxContext(ctx, q, args...).Scan(&i.Key); err != nil {
		return fmt.Errorf("insert identity: %w", translate(err))
	}
	if err := t.insertChildren(ctx, i); err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

func (t *txStore) ReplaceIdentity(ctx context.Context, i *models.Identity) error {
	sets := []string{"person_id = $2", "identity_id = $3", "identity_type = $4", "status = $5", "is_reference = $6", "ordinal = $7", "client_data = $8"}
	args := []any{i.Key, i.PersonID, i.IdentityID, i.IdentityType, string(i.Status), i.IsReference, i.Position, i.ClientData}
	for _, f := range t.reg.Fields() {
		args = append(args, bindValue(i.Attributes[f.Column]))
		sets = append(sets, fmt.Sprintf("%s = $%d", quote(f.Column), len(args)))
	}
	res, err := t.tx.ExecContext(ctx, `UPDATE identity SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
	if err != nil {
		return fmt.Errorf("replace identity: %w", translate(err))
	}
	if err := requireRow(res); err != nil {
		return err
	}
	for _, table := range []string{"gallery", "biometric_data", "document_data"} {
		if _, err := t.tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE identity_key = $1`, i.Key); err != nil {
			return fmt.Errorf("replace identity: clear %s: %w", table, err)
		}
	}
	if err := t.insertChildren(ctx, i); err != nil {
		return fmt.Errorf("replace identity: %w", err)
	}
	return nil
}

func (t *txStore) insertChildren(ctx context.Context, i *models.Identity) error {
	for n, g := range i.Galleries {
		if _, err := t.tx.ExecContext(ctx,
			`INSERT INTO gallery (gallery_id, identity_key, ordinal) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			g, i.Key, n); err != nil {
			return fmt.Errorf("insert gallery: %w", err)
		}
	}

	for n, b := range i.BiometricData {
		row := biometricRow{IdentityKey: i.Key, BiometricData: b}
		q, args, err := t.tx.BindNamed(`INSERT INTO biometric_data (identity_key, ordinal, `+biometricColumns+`)
VALUES (:identity_key, `+fmt.Sprint(n)+`, :biometric_type, :biometric_sub_type, :instance, :image, :image_ref, :capture_date,
  :capture_device, :impression_type, :width, :height, :bitdepth, :mime_type, :resolution, :compression, :metadata,
  :comment, :template, :template_ref, :template_format, :quality, :quality_format, :algorithm, :vendor)
RETURNING id`, row)
		if err != nil {
			return fmt.Errorf("bind biometric data: %w", err)
		}
		var id int64
		if err := t.tx.QueryRowxContext(ctx, q, args...).Scan(&id); err != nil {
			return fmt.Errorf("insert biometric data: %w", err)
		}
		for m, miss := range b.Missing {
			if _, err := t.tx.ExecContext(ctx,
				`INSERT INTO biometric_data_missing (biometric_data_id, ordinal, biometric_sub_type, presence) VALUES ($1, $2, $3, $4)`,
				id, m, miss.BiometricSubType, miss.Presence); err != nil {
				return fmt.Errorf("insert missing biometric: %w", err)
			}
		}
	}

	for n, d := range i.DocumentData {
		var id int64
		if err := t.tx.QueryRowxContext(ctx,
			`INSERT INTO document_data (identity_key, ordinal, document_type, document_type_other, instance) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			i.Key, n, d.DocumentType, d.DocumentTypeOther, d.Instance).Scan(&id); err != nil {
			return fmt.Errorf("insert document data: %w", err)
		}
		for m, p := range d.Parts {
			var pages any
			if p.Pages != nil {
				raw, err := json.Marshal(p.Pages)
				if err != nil {
					return fmt.Errorf("encode pages: %w", err)
				}
				pages = string(raw)
			}
			if _, err := t.tx.ExecContext(ctx,
				`INSERT INTO document_part (document_data_id, ordinal, pages, `+partColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				id, m, pages, p.Data, p.DataRef, p.Width, p.Height, p.MimeType, p.CaptureDate, p.CaptureDevice); err != nil {
				return fmt.Errorf("insert document part: %w", err)
			}
		}
	}
	return nil
}

func (t *txStore) UpdateIdentityState(ctx context.Context, i *models.Identity) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE identity SET person_id = $2, ordinal = $3, status = $4, is_reference = $5 WHERE id = $1`,
		i.Key, i.PersonID, i.Position, string(i.Status), i.IsReference)
	if err != nil {
		return fmt.Errorf("update identity state: %w", translate(err))
	}
	return requireRow(res)
}

func (t *txStore) DeleteIdentity(ctx context.Context, personID, identityID string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM identity WHERE person_id = $1 AND identity_id = $2`, personID, identityID)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	return requireRow(res)
}

func (t *txStore) Select(ctx context.Context, plan *query.Plan) ([]query.Row, error) {
	q, args := renderSelect(plan)
	rows, err := t.tx.QueryxContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select identities: %w", err)
	}
	defer rows.Close()

	out := []query.Row{}
	for rows.Next() {
		var r query.Row
		dest := []any{&r.PersonID}
		if !plan.Options.Group {
			dest = append(dest, &r.IdentityID)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan identity row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *txStore) Galleries(ctx context.Context) ([]string, error) {
	names := []string{}
	if err := t.tx.SelectContext(ctx, &names, `SELECT DISTINCT gallery_id COLLATE "C" AS gallery_id FROM gallery ORDER BY 1`); err != nil {
		return nil, fmt.Errorf("list galleries: %w", err)
	}
	return names, nil
}

func (t *txStore) GalleryMembers(ctx context.Context, gallery string, offset, limit int) ([]query.Row, error) {
	q := `SELECT i.person_id, i.identity_id FROM gallery g JOIN identity i ON i.id = g.identity_key
WHERE g.gallery_id = $1 ORDER BY i.id` + pageClause(offset, limit)
	rows, err := t.tx.QueryxContext(ctx, q, gallery)
	if err != nil {
		return nil, fmt.Errorf("list gallery members: %w", err)
	}
	defer rows.Close()

	out := []query.Row{}
	for rows.Next() {
		var r query.Row
		if err := rows.Scan(&r.PersonID, &r.IdentityID); err != nil {
			return nil, fmt.Errorf("scan gallery member: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *txStore) GalleryExists(ctx context.Context, gallery string) (bool, error) {
	var exists bool
	if err := t.tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM gallery WHERE gallery_id = $1)`, gallery); err != nil {
		return false, fmt.Errorf("check gallery: %w", err)
	}
	return exists, nil
}

func (t *txStore) Counts(ctx context.Context) (store.Counts, error) {
	var c store.Counts
	err := t.tx.GetContext(ctx, &c, `SELECT
  (SELECT count(*) FROM person) AS persons,
  (SELECT count(*) FROM identity) AS identities,
  (SELECT count(*) FROM biometric_data) AS biometric_data`)
	if err != nil {
		return store.Counts{}, fmt.Errorf("count rows: %w", err)
	}
	return c, nil
}

// translate maps constraint violations to sentinel errors.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, sentinel.ErrConflict)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, sentinel.ErrNotFound)
		}
	}
	return err
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func placeholders(from, n int) string {
	ph := make([]string, n)
	for k := range ph {
		ph[k] = fmt.Sprintf("$%d", from+k)
	}
	return strings.Join(ph, ", ")
}
