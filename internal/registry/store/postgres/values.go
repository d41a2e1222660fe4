package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"registry/internal/registry/custo"
	"registry/internal/registry/query"
)

const dateLayout = "2006-01-02"

// scanTarget returns a nullable holder for a customized column.
func scanTarget(k custo.Kind) any {
	switch k {
	case custo.KindDate, custo.KindDateTime:
		return new(sql.NullTime)
	case custo.KindBool:
		return new(sql.NullBool)
	case custo.KindInt32, custo.KindInt64:
		return new(sql.NullInt64)
	case custo.KindFloat, custo.KindDouble:
		return new(sql.NullFloat64)
	case custo.KindBytes, custo.KindObject:
		return new([]byte)
	default:
		return new(sql.NullString)
	}
}

// fromScan converts a scanned holder to the attribute representation.
// ok is false for NULL.
func fromScan(k custo.Kind, holder any) (v any, ok bool, err error) {
	switch h := holder.(type) {
	case *sql.NullTime:
		if !h.Valid {
			return nil, false, nil
		}
		if k == custo.KindDate {
			return h.Time.Format(dateLayout), true, nil
		}
		return h.Time.UTC(), true, nil
	case *sql.NullBool:
		return h.Bool, h.Valid, nil
	case *sql.NullInt64:
		return h.Int64, h.Valid, nil
	case *sql.NullFloat64:
		return h.Float64, h.Valid, nil
	case *sql.NullString:
		return h.String, h.Valid, nil
	case *[]byte:
		if *h == nil {
			return nil, false, nil
		}
		if k == custo.KindObject {
			return json.RawMessage(*h), true, nil
		}
		return *h, true, nil
	}
	return nil, false, fmt.Errorf("unexpected holder %T", holder)
}

// bindValue converts an attribute to a driver argument; nil binds NULL.
func bindValue(v any) any {
	if v == nil {
		return nil
	}
	switch t := v.(type) {
	case json.RawMessage:
		return string(t)
	case time.Time:
		return t
	}
	return v
}

// renderSelect turns a plan into SQL. The ordering matches the in-memory
// evaluation: identities by key, groups by their first identity.
func renderSelect(plan *query.Plan) (string, []any) {
	var (
		b     strings.Builder
		args  []any
		where []string
	)
	opts := plan.Options
	if opts.Group {
		b.WriteString(`SELECT i.person_id FROM identity i`)
	} else {
		b.WriteString(`SELECT i.person_id, i.identity_id FROM identity i`)
	}
	if opts.Gallery != "" {
		args = append(args, opts.Gallery)
		fmt.Fprintf(&b, ` JOIN gallery g ON g.identity_key = i.id AND g.gallery_id = $%d`, len(args))
	}
	if opts.Reference {
		where = append(where, `i.is_reference`)
	}
	for _, c := range plan.Conditions {
		args = append(args, conditionArg(c))
		where = append(where, fmt.Sprintf(`%s %s $%d`, conditionOperand(c), c.Op, len(args)))
	}
	if len(where) > 0 {
		b.WriteString(` WHERE `)
		b.WriteString(strings.Join(where, ` AND `))
	}
	if opts.Group {
		b.WriteString(` GROUP BY i.person_id ORDER BY MIN(i.id)`)
	} else {
		b.WriteString(` ORDER BY i.id`)
	}
	b.WriteString(pageClause(opts.Offset, opts.Limit))
	return b.String(), args
}

// conditionOperand compares text byte-wise so that ordering does not depend on
// the database collation; dates compare on their ISO form to allow partial bounds.
func conditionOperand(c query.Condition) string {
	col := "i." + quote(c.Column())
	if c.PersonID {
		return col + ` COLLATE "C"`
	}
	switch c.Field.Kind {
	case custo.KindString, custo.KindEnum:
		return col + ` COLLATE "C"`
	case custo.KindDate:
		return `to_char(` + col + `, 'YYYY-MM-DD') COLLATE "C"`
	}
	return col
}

func conditionArg(c query.Condition) any {
	if c.PersonID {
		return c.Value
	}
	return bindValue(c.Value)
}

func pageClause(offset, limit int) string {
	var s string
	if limit > 0 {
		s += fmt.Sprintf(" LIMIT %d", limit)
	}
	if offset > 0 {
		s += fmt.Sprintf(" OFFSET %d", offset)
	}
	return s
}
