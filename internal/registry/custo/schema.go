package custo

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Definitions validated by the HTTP layer.
const (
	DefPerson      = "Person"
	DefIdentity    = "Identity"
	DefExpressions = "Expressions"
	DefMatch       = "MatchRequest"
)

// patchable lists the definitions whose properties become optional and nullable
// in the partial-update variant. Nested list items keep their full schema because
// a patch replaces a list wholesale.
var patchable = []string{DefIdentity, string(GroupBiographic), string(GroupContextual)}

//go:embed registry.schema.json
var baseSchema []byte

// SchemaDocument returns the Draft 7 document with the customized groups in place of
// the built-in placeholders. With patch set, the partial-update variant is returned.
func (r *Registry) SchemaDocument(patch bool) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(baseSchema, &doc); err != nil {
		return nil, fmt.Errorf("decode base schema: %w", err)
	}
	defs := doc["definitions"].(map[string]any)
	for _, g := range Groups {
		defs[string(g)] = r.groupSchema(g)
	}
	if patch {
		for _, name := range patchable {
			defs[name] = relax(defs[name].(map[string]any))
		}
	}
	return doc, nil
}

func (r *Registry) groupSchema(g Group) map[string]any {
	props := map[string]any{}
	var required []string
	for _, f := range r.GroupFields(g) {
		props[f.Name] = f.propertySchema()
		if f.Required {
			required = append(required, f.Name)
		}
	}
	s := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func (f Field) propertySchema() map[string]any {
	var s map[string]any
	switch f.Kind {
	case KindString:
		s = map[string]any{"type": "string", "maxLength": f.MaxLength}
	case KindEnum:
		s = map[string]any{"type": "string", "enum": f.Enum}
	case KindDate:
		s = map[string]any{"type": "string", "format": "date"}
	case KindDateTime:
		s = map[string]any{"type": "string", "format": "date-time"}
	case KindBytes:
		s = map[string]any{"type": "string", "contentEncoding": "base64"}
	case KindBool:
		s = map[string]any{"type": "boolean"}
	case KindInt32:
		s = map[string]any{"type": "integer", "minimum": -2147483648, "maximum": 2147483647}
	case KindInt64:
		s = map[string]any{"type": "integer"}
	case KindFloat, KindDouble:
		s = map[string]any{"type": "number"}
	default:
		s = map[string]any{"type": "object"}
	}
	if f.HasDefault {
		s["default"] = f.Kind.Encode(f.Default)
	}
	return s
}

func relax(def map[string]any) map[string]any {
	out := make(map[string]any, len(def))
	for k, v := range def {
		out[k] = v
	}
	delete(out, "required")
	if props, ok := def["properties"].(map[string]any); ok {
		nullable := make(map[string]any, len(props))
		for name, p := range props {
			nullable[name] = map[string]any{"anyOf": []any{p, map[string]any{"type": "null"}}}
		}
		out["properties"] = nullable
	}
	return out
}

// Validator checks request bodies against the customized schema.
type Validator struct {
	full  map[string]*jsonschema.Schema
	patch *jsonschema.Schema
}

// NewValidator compiles the full and partial-update documents.
func NewValidator(r *Registry) (*Validator, error) {
	full, err := r.SchemaDocument(false)
	if err != nil {
		return nil, err
	}
	patch, err := r.SchemaDocument(true)
	if err != nil {
		return nil, err
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	if err := addResource(c, "registry.json", full); err != nil {
		return nil, err
	}
	if err := addResource(c, "registry-patch.json", patch); err != nil {
		return nil, err
	}

	v := &Validator{full: map[string]*jsonschema.Schema{}}
	for _, def := range []string{DefPerson, DefIdentity, DefExpressions, DefMatch} {
		s, err := c.Compile("registry.json#/definitions/" + def)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", def, err)
		}
		v.full[def] = s
	}
	if v.patch, err = c.Compile("registry-patch.json#/definitions/" + DefIdentity); err != nil {
		return nil, fmt.Errorf("compile patch schema: %w", err)
	}
	return v, nil
}

func addResource(c *jsonschema.Compiler, url string, doc map[string]any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	return nil
}

// Validate checks a decoded JSON value against a named definition. It returns a
// human-readable message, or "" when the value is valid.
func (v *Validator) Validate(def string, value any) string {
	s, ok := v.full[def]
	if !ok {
		return "unknown schema " + def
	}
	return message(s.Validate(value))
}

// ValidatePatch checks a partial Identity document.
func (v *Validator) ValidatePatch(value any) string {
	return message(v.patch.Validate(value))
}

func message(err error) string {
	if err == nil {
		return ""
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}
	var leaves []string
	collect(ve, &leaves)
	sort.Strings(leaves)
	return strings.Join(leaves, "; ")
}

func collect(ve *jsonschema.ValidationError, out *[]string) {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		*out = append(*out, fmt.Sprintf("%s: %s", loc, ve.Message))
		return
	}
	for _, c := range ve.Causes {
		collect(c, out)
	}
}
