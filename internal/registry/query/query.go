// Package query compiles attribute predicates into a validated Plan.
//
// A Plan is backend-neutral: the in-memory store evaluates it with Apply and the
// Postgres store renders it to SQL. Compilation resolves every attribute name against
// the customization and coerces every value to the attribute's type, so a plan that
// compiles can be executed without further checks.
package query

import (
	"encoding/json"
	"fmt"

	"registry/internal/registry/custo"
	"registry/internal/registry/models"
	dErrors "registry/pkg/domain-errors"
)

// Operator is a comparison operator.
type Operator string

const (
	OpEq Operator = "="
	OpNe Operator = "!="
	OpLt Operator = "<"
	OpGt Operator = ">"
	OpLe Operator = "<="
	OpGe Operator = ">="
)

// DefaultLimit is the page size used when the caller supplies none.
const DefaultLimit = 100

// PersonIDAttribute addresses the owning Person's key.
const PersonIDAttribute = "personId"

// Predicate is one (attribute, operator, value) filter term.
type Predicate struct {
	AttributeName string `json:"attributeName"`
	Operator      string `json:"operator"`
	Value         any    `json:"value"`
}

// Options shape the result set. A zero Limit means no limit.
type Options struct {
	Group     bool
	Reference bool
	Gallery   string
	Offset    int
	Limit     int
}

// Condition is a compiled predicate.
type Condition struct {
	// PersonID is set when the condition targets the Person key instead of a field.
	PersonID bool
	Field    custo.Field
	Op       Operator
	Value    any
}

// Column returns the identity column the condition compares.
func (c Condition) Column() string {
	if c.PersonID {
		return "person_id"
	}
	return c.Field.Column
}

// Plan is a compiled query.
type Plan struct {
	Conditions []Condition
	Options    Options
}

// Row is one query result. IdentityID is empty for grouped queries.
type Row struct {
	PersonID   string `json:"personId"`
	IdentityID string `json:"identityId,omitempty"`
}

// Engine compiles predicates against a customization.
type Engine struct {
	reg *custo.Registry
}

// NewEngine returns an Engine resolving attributes in reg's biographic group.
func NewEngine(reg *custo.Registry) *Engine {
	return &Engine{reg: reg}
}

// Compile validates and types every predicate. The first unresolvable attribute or
// unsupported operator rejects the whole query with a bad-request error.
func (e *Engine) Compile(preds []Predicate, opts Options) (*Plan, error) {
	if opts.Offset < 0 || opts.Limit < 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "offset and limit must not be negative")
	}
	plan := &Plan{Options: opts, Conditions: make([]Condition, 0, len(preds))}
	for _, p := range preds {
		c, err := e.compile(p)
		if err != nil {
			return nil, err
		}
		plan.Conditions = append(plan.Conditions, c)
	}
	return plan, nil
}

func (e *Engine) compile(p Predicate) (Condition, error) {
	var c Condition
	if p.AttributeName == PersonIDAttribute {
		c.PersonID = true
	} else {
		f, ok := e.reg.Lookup(custo.GroupBiographic, p.AttributeName)
		if !ok {
			return c, dErrors.Newf(dErrors.CodeBadRequest, "Unknown attribute [%s] in query expression", p.AttributeName)
		}
		c.Field = f
	}

	switch op := Operator(p.Operator); op {
	case OpEq, OpNe, OpLt, OpGt, OpLe, OpGe:
		c.Op = op
	default:
		return c, dErrors.Newf(dErrors.CodeBadRequest, "Invalid operator [%s] in query expression", p.Operator)
	}

	if c.PersonID {
		c.Value = stringValue(p.Value)
		return c, nil
	}
	if !c.Field.Kind.Queryable() {
		return c, dErrors.Newf(dErrors.CodeBadRequest, "Attribute [%s] cannot be used in query expression", p.AttributeName)
	}
	v, err := c.Field.Kind.Coerce(p.Value)
	if err != nil {
		return c, dErrors.Newf(dErrors.CodeBadRequest, "Invalid value for attribute [%s] in query expression: %v", p.AttributeName, err)
	}
	c.Value = v
	return c, nil
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	}
	return fmt.Sprint(v)
}

// Matches evaluates the conditions against one identity, ignoring options.
// An absent attribute never matches, whatever the operator.
func (p *Plan) Matches(i *models.Identity) bool {
	for _, c := range p.Conditions {
		var cmp int
		if c.PersonID {
			cmp = compareStrings(i.PersonID, c.Value.(string))
		} else {
			v, ok := i.Attributes[c.Field.Column]
			if !ok || v == nil {
				return false
			}
			cmp = c.Field.Kind.Compare(v, c.Value)
		}
		if !c.Op.holds(cmp) {
			return false
		}
	}
	return true
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (op Operator) holds(cmp int) bool {
	switch op {
	case OpEq:
		return cmp == 0
	case OpNe:
		return cmp != 0
	case OpLt:
		return cmp < 0
	case OpGt:
		return cmp > 0
	case OpLe:
		return cmp <= 0
	case OpGe:
		return cmp >= 0
	}
	return false
}

// Apply runs the plan over identities, which must be ordered by Key. Filters apply
// first, then grouping (first occurrence wins), then offset and limit.
func (p *Plan) Apply(identities []*models.Identity) []Row {
	rows := []Row{}
	seen := map[string]bool{}
	skipped := 0
	for _, i := range identities {
		if p.Options.Reference && !i.IsReference {
			continue
		}
		if p.Options.Gallery != "" && !i.InGallery(p.Options.Gallery) {
			continue
		}
		if !p.Matches(i) {
			continue
		}
		row := Row{PersonID: i.PersonID, IdentityID: i.IdentityID}
		if p.Options.Group {
			if seen[i.PersonID] {
				continue
			}
			seen[i.PersonID] = true
			row.IdentityID = ""
		}
		if skipped < p.Options.Offset {
			skipped++
			continue
		}
		rows = append(rows, row)
		if p.Options.Limit > 0 && len(rows) == p.Options.Limit {
			break
		}
	}
	return rows
}
