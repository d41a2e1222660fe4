package service

import (
	"bytes"
	"context"
	"encoding/json"
	"reflect"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"registry/internal/registry/custo"
	"registry/internal/registry/document"
	"registry/internal/registry/models"
	"registry/internal/registry/query"
	"registry/internal/registry/store"
	dErrors "registry/pkg/domain-errors"
)

// GalleryDefaultLimit is the page size of gallery listings.
const GalleryDefaultLimit = 1000

// Mismatch reports one attribute of a match request that differs from the
// reference identity.
type Mismatch struct {
	AttributeName string `json:"attributeName"`
	ErrorCode     int    `json:"errorCode"`
}

// Mismatch error codes.
const (
	MismatchUnknown = 0
	MismatchValue   = 1
)

// FindPersons runs a free-form predicate query. expressions is the decoded request
// body and is validated before compilation.
func (s *Service) FindPersons(ctx context.Context, expressions any, opts query.Options) (rows []query.Row, err error) {
	ctx, done := s.begin(ctx, "findPersons",
		attribute.Bool("group", opts.Group), attribute.Bool("reference", opts.Reference))
	defer done(&err)

	preds, err := s.predicates(expressions)
	if err != nil {
		return nil, err
	}
	return s.selectRows(ctx, preds, opts)
}

// QueryPersonList runs an equality query built from filters over reference identities.
// Without names the result is the list of matching person ids; with names, one object
// per match holding those attributes.
func (s *Service) QueryPersonList(ctx context.Context, filters map[string]string, names []string, offset, limit int) (result []any, err error) {
	ctx, done := s.begin(ctx, "queryPersonList")
	defer done(&err)

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	preds := make([]query.Predicate, 0, len(keys))
	for _, k := range keys {
		preds = append(preds, query.Predicate{AttributeName: k, Operator: string(query.OpEq), Value: filters[k]})
	}
	plan, err := s.engine.Compile(preds, query.Options{Reference: true, Offset: offset, Limit: limit})
	if err != nil {
		return nil, err
	}

	result = []any{}
	err = s.backend.RunInTx(ctx, func(st store.Store) error {
		rows, err := st.Select(ctx, plan)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if len(names) == 0 {
				result = append(result, row.PersonID)
				continue
			}
			ident, err := st.FindIdentity(ctx, row.PersonID, row.IdentityID)
			if err != nil {
				return err
			}
			doc := s.ser.DumpIdentity(ident)
			obj := make(map[string]any, len(names))
			for _, name := range names {
				v, ok := lookupName(doc, name)
				if !ok {
					return dErrors.Newf(dErrors.CodeBadRequest, "Unknown name [%s]", name).
						WithReason(dErrors.ReasonUnknownName)
				}
				obj[name] = v
			}
			result = append(result, obj)
		}
		return nil
	})
	if err != nil {
		return nil, translate(err, "failed to query persons")
	}
	return result, nil
}

// ReadPersonAttributes returns the named attributes of the person's reference
// identity. Unknown names are reported inline instead of failing the call.
func (s *Service) ReadPersonAttributes(ctx context.Context, personID string, names []string) (attrs map[string]any, err error) {
	ctx, done := s.begin(ctx, "readPersonAttributes", attribute.String("person_id", personID))
	defer done(&err)

	if len(names) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "No names specified").WithReason(dErrors.ReasonUnknownName)
	}

	var ident *models.Identity
	err = s.backend.RunInTx(ctx, func(st store.Store) error {
		var err error
		ident, err = reference(ctx, st, personID)
		return err
	})
	if err != nil {
		return nil, translate(err, "failed to read person attributes")
	}

	doc := s.ser.DumpIdentity(ident)
	attrs = make(map[string]any, len(names))
	for _, name := range names {
		v, ok := lookupName(doc, name)
		if !ok {
			v = map[string]any{
				"code":    dErrors.ReasonUnknownName,
				"message": "Unknown attribute name [" + name + "]",
			}
		}
		attrs[name] = v
	}
	return attrs, nil
}

// VerifyPersonAttributes reports whether the person's reference identity satisfies
// every expression.
func (s *Service) VerifyPersonAttributes(ctx context.Context, personID string, expressions any) (ok bool, err error) {
	ctx, done := s.begin(ctx, "verifyPersonAttributes", attribute.String("person_id", personID))
	defer done(&err)

	preds, err := s.predicates(expressions)
	if err != nil {
		return false, err
	}
	preds = append(preds, query.Predicate{AttributeName: query.PersonIDAttribute, Operator: string(query.OpEq), Value: personID})
	plan, err := s.engine.Compile(preds, query.Options{Reference: true, Group: true, Limit: query.DefaultLimit})
	if err != nil {
		return false, err
	}

	err = s.backend.RunInTx(ctx, func(st store.Store) error {
		if _, err := findPerson(ctx, st, personID); err != nil {
			return err
		}
		rows, err := st.Select(ctx, plan)
		ok = len(rows) > 0
		return err
	})
	if err != nil {
		return false, translate(err, "failed to verify person attributes")
	}
	return ok, nil
}

// MatchPersonAttributes compares attrs with the person's reference identity and lists
// the attributes that are unknown or differ, ordered by name.
func (s *Service) MatchPersonAttributes(ctx context.Context, personID string, attrs map[string]any) (mismatches []Mismatch, err error) {
	ctx, done := s.begin(ctx, "matchPersonAttributes", attribute.String("person_id", personID))
	defer done(&err)

	if attrs == nil {
		attrs = map[string]any{}
	}
	if err := s.validate(custo.DefMatch, attrs); err != nil {
		return nil, err
	}

	var ident *models.Identity
	err = s.backend.RunInTx(ctx, func(st store.Store) error {
		var err error
		ident, err = reference(ctx, st, personID)
		return err
	})
	if err != nil {
		return nil, translate(err, "failed to match person attributes")
	}

	doc := s.ser.DumpIdentity(ident)
	names := make([]string, 0, len(attrs))
	for k := range attrs {
		names = append(names, k)
	}
	sort.Strings(names)

	mismatches = []Mismatch{}
	for _, name := range names {
		v, ok := lookupName(doc, name)
		switch {
		case !ok:
			mismatches = append(mismatches, Mismatch{AttributeName: name, ErrorCode: MismatchUnknown})
		case !jsonEqual(v, attrs[name]):
			mismatches = append(mismatches, Mismatch{AttributeName: name, ErrorCode: MismatchValue})
		}
	}
	return mismatches, nil
}

// Galleries returns the sorted gallery names, from the cache when it holds them.
// A list read while an identity write invalidated the cache is returned but not
// cached.
func (s *Service) Galleries(ctx context.Context) (names []string, err error) {
	ctx, done := s.begin(ctx, "readGalleries")
	defer done(&err)

	gen := s.galleryGen.Load()
	names, ok, err := s.galleries.Get(ctx)
	if err != nil {
		s.log(ctx).WarnContext(ctx, "gallery cache read failed", "error", err)
	}
	if ok {
		return names, nil
	}

	err = s.backend.RunInTx(ctx, func(st store.Store) error {
		var err error
		names, err = st.Galleries(ctx)
		return err
	})
	if err != nil {
		return nil, translate(err, "failed to read galleries")
	}
	if s.galleryGen.Load() != gen {
		return names, nil
	}
	if err := s.galleries.Set(ctx, names); err != nil {
		s.log(ctx).WarnContext(ctx, "gallery cache write failed", "error", err)
	}
	return names, nil
}

// GalleryContent lists the identities of a gallery in insertion order. A zero limit
// selects GalleryDefaultLimit.
func (s *Service) GalleryContent(ctx context.Context, gallery string, offset, limit int) (rows []query.Row, err error) {
	ctx, done := s.begin(ctx, "readGalleryContent", attribute.String("gallery", gallery))
	defer done(&err)

	if offset < 0 || limit < 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "offset and limit must not be negative")
	}
	if limit == 0 {
		limit = GalleryDefaultLimit
	}

	err = s.backend.RunInTx(ctx, func(st store.Store) error {
		exists, err := st.GalleryExists(ctx, gallery)
		if err != nil {
			return err
		}
		if !exists {
			return dErrors.Newf(dErrors.CodeNotFound, "gallery [%s] not found", gallery)
		}
		rows, err = st.GalleryMembers(ctx, gallery, offset, limit)
		return err
	})
	if err != nil {
		return nil, translate(err, "failed to read gallery content")
	}
	return rows, nil
}

// ReadDocument returns the parts of the reference identity's documents matching req.
func (s *Service) ReadDocument(ctx context.Context, personID string, req document.Request) (parts []document.Part, err error) {
	ctx, done := s.begin(ctx, "readDocument",
		attribute.String("person_id", personID), attribute.String("doctype", req.DocType))
	defer done(&err)

	if err := req.Validate(); err != nil {
		return nil, err
	}

	var ident *models.Identity
	err = s.backend.RunInTx(ctx, func(st store.Store) error {
		var err error
		ident, err = reference(ctx, st, personID)
		return err
	})
	if err != nil {
		return nil, translate(err, "failed to read document")
	}

	parts = document.Collect(ident, req.DocType, req.MimeType())
	if len(parts) == 0 {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "no %s document in %s format", req.DocType, req.Format)
	}
	return parts, nil
}

func (s *Service) selectRows(ctx context.Context, preds []query.Predicate, opts query.Options) ([]query.Row, error) {
	plan, err := s.engine.Compile(preds, opts)
	if err != nil {
		return nil, err
	}
	var rows []query.Row
	err = s.backend.RunInTx(ctx, func(st store.Store) error {
		var err error
		rows, err = st.Select(ctx, plan)
		return err
	})
	if err != nil {
		return nil, translate(err, "failed to query persons")
	}
	return rows, nil
}

// predicates validates a decoded Expressions body and converts it.
func (s *Service) predicates(expressions any) ([]query.Predicate, error) {
	if expressions == nil {
		expressions = []any{}
	}
	if err := s.validate(custo.DefExpressions, expressions); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(expressions)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid query expression")
	}
	var preds []query.Predicate
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&preds); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid query expression")
	}
	return preds, nil
}

// lookupName resolves a name in the biographic group, then the contextual group, then
// the top level of an identity document.
func lookupName(doc map[string]any, name string) (any, bool) {
	for _, g := range custo.Groups {
		if group, ok := doc[g.DocumentKey()].(map[string]any); ok {
			if v, ok := group[name]; ok {
				return v, true
			}
		}
	}
	v, ok := doc[name]
	return v, ok
}

// jsonEqual compares two values by their JSON meaning, so 5, 5.0 and json.Number("5")
// are equal.
func jsonEqual(a, b any) bool {
	na, errA := normalize(a)
	nb, errB := normalize(b)
	if errA != nil || errB != nil {
		return false
	}
	return reflect.DeepEqual(na, nb)
}

func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	err = json.Unmarshal(raw, &out)
	return out, err
}
