// Package custo compiles the deployment customization (the extra biographic and
// contextual attributes of an Identity) into a fixed list of typed field descriptors.
//
// The descriptors are consulted by the serializer, the query engine, the storage
// mappers and the JSON Schema builder. A Registry is immutable once built.
package custo

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

// Group is a logical attribute group of an Identity.
type Group string

const (
	GroupBiographic Group = "BiographicData"
	GroupContextual Group = "ContextualData"
)

// Groups lists the groups in storage order.
var Groups = []Group{GroupBiographic, GroupContextual}

// Prefix returns the storage column prefix of the group.
func (g Group) Prefix() string {
	if g == GroupContextual {
		return "ctx_"
	}
	return "bgd_"
}

// DocumentKey returns the key of the group in the external Identity document.
func (g Group) DocumentKey() string {
	if g == GroupContextual {
		return "contextualData"
	}
	return "biographicData"
}

const defaultMaxLength = 255

// Field describes one customized attribute.
type Field struct {
	Group      Group
	Name       string
	Column     string
	Kind       Kind
	Enum       []string
	MaxLength  int
	Required   bool
	Default    any
	HasDefault bool
}

// Registry is the compiled customization.
type Registry struct {
	fields   []Field
	byColumn map[string]int
	byName   map[Group]map[string]int
}

//go:embed default_custo.yaml
var defaultDefinition []byte

var namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,58}$`)

// Default returns the built-in customization.
func Default() *Registry {
	r, err := Parse(bytes.NewReader(defaultDefinition))
	if err != nil {
		panic(fmt.Sprintf("custo: invalid built-in definition: %v", err))
	}
	return r
}

// LoadFile parses the definition at path. Groups absent from the file keep
// their built-in definition.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open custo definition: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse compiles a YAML (or JSON) definition.
func Parse(r io.Reader) (*Registry, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse custo definition: %w", err)
	}

	groups := map[string]*yaml.Node{}
	if len(doc.Content) > 0 {
		root := doc.Content[0]
		if root.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("custo definition must be a mapping")
		}
		for i := 0; i+1 < len(root.Content); i += 2 {
			groups[root.Content[i].Value] = root.Content[i+1]
		}
	}

	var builtin map[string]*yaml.Node
	reg := &Registry{byColumn: map[string]int{}, byName: map[Group]map[string]int{}}
	for _, g := range Groups {
		node, ok := groups[string(g)]
		if !ok {
			if builtin == nil {
				var err error
				if builtin, err = builtinGroups(); err != nil {
					return nil, err
				}
			}
			node = builtin[string(g)]
		}
		if node == nil {
			reg.byName[g] = map[string]int{}
			continue
		}
		if err := reg.addGroup(g, node); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func builtinGroups() (map[string]*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(defaultDefinition, &doc); err != nil {
		return nil, fmt.Errorf("parse built-in custo: %w", err)
	}
	out := map[string]*yaml.Node{}
	root := doc.Content[0]
	for i := 0; i+1 < len(root.Content); i += 2 {
		out[root.Content[i].Value] = root.Content[i+1]
	}
	return out, nil
}

type propertySpec struct {
	Type      string   `yaml:"type"`
	Format    string   `yaml:"format"`
	Enum      []string `yaml:"enum"`
	MaxLength *int     `yaml:"maxLength"`
	Required  bool     `yaml:"required"`
}

func (r *Registry) addGroup(g Group, node *yaml.Node) error {
	r.byName[g] = map[string]int{}

	var properties *yaml.Node
	var required []string
	for i := 0; i+1 < len(node.Content); i += 2 {
		switch node.Content[i].Value {
		case "properties":
			properties = node.Content[i+1]
		case "required":
			if err := node.Content[i+1].Decode(&required); err != nil {
				return fmt.Errorf("%s: invalid required list: %w", g, err)
			}
		}
	}
	if properties == nil {
		return nil
	}
	if properties.Kind != yaml.MappingNode {
		return fmt.Errorf("%s: properties must be a mapping", g)
	}

	for i := 0; i+1 < len(properties.Content); i += 2 {
		name := properties.Content[i].Value
		field, err := compileField(g, name, properties.Content[i+1])
		if err != nil {
			return err
		}
		if _, dup := r.byName[g][name]; dup {
			return fmt.Errorf("%s: field %q defined twice", g, name)
		}
		r.byName[g][name] = len(r.fields)
		r.byColumn[field.Column] = len(r.fields)
		r.fields = append(r.fields, field)
	}

	for _, name := range required {
		idx, ok := r.byName[g][name]
		if !ok {
			return fmt.Errorf("%s: required field %q is not defined", g, name)
		}
		r.fields[idx].Required = true
	}
	return nil
}

func compileField(g Group, name string, node *yaml.Node) (Field, error) {
	if !namePattern.MatchString(name) {
		return Field{}, fmt.Errorf("%s: invalid field name %q", g, name)
	}
	var spec propertySpec
	if err := node.Decode(&spec); err != nil {
		return Field{}, fmt.Errorf("%s.%s: %w", g, name, err)
	}

	f := Field{Group: g, Name: name, Column: g.Prefix() + name, Required: spec.Required}
	illegal := fmt.Errorf("illegal type/format in custo definition for field %s.%s (%s/%s)", g, name, spec.Type, spec.Format)

	switch spec.Type {
	case "string":
		switch spec.Format {
		case "":
			if len(spec.Enum) > 0 {
				f.Kind, f.Enum = KindEnum, spec.Enum
			} else {
				f.Kind, f.MaxLength = KindString, defaultMaxLength
				if spec.MaxLength != nil {
					if *spec.MaxLength <= 0 {
						return Field{}, fmt.Errorf("%s.%s: maxLength must be positive", g, name)
					}
					f.MaxLength = *spec.MaxLength
				}
			}
		case "date":
			f.Kind = KindDate
		case "date-time":
			f.Kind = KindDateTime
		case "byte":
			f.Kind = KindBytes
		default:
			return Field{}, illegal
		}
		if spec.Format != "" && len(spec.Enum) > 0 {
			return Field{}, fmt.Errorf("%s.%s: enum cannot be combined with format %q", g, name, spec.Format)
		}
	case "boolean":
		if spec.Format != "" {
			return Field{}, illegal
		}
		f.Kind = KindBool
	case "integer":
		switch spec.Format {
		case "", "int32":
			f.Kind = KindInt32
		case "int64":
			f.Kind = KindInt64
		default:
			return Field{}, illegal
		}
	case "number":
		switch spec.Format {
		case "", "float":
			f.Kind = KindFloat
		case "double":
			f.Kind = KindDouble
		default:
			return Field{}, illegal
		}
	case "object":
		f.Kind = KindObject
	default:
		return Field{}, illegal
	}

	if def := mappingValue(node, "default"); def != nil {
		v, err := defaultValue(f.Kind, def)
		if err != nil {
			return Field{}, fmt.Errorf("%s.%s: invalid default: %w", g, name, err)
		}
		if f.Kind == KindEnum && !contains(f.Enum, v.(string)) {
			return Field{}, fmt.Errorf("%s.%s: default %q is not in enum", g, name, v)
		}
		f.Default, f.HasDefault = v, true
	}
	return f, nil
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

// defaultValue reads a default from its YAML node. Scalars are taken verbatim so that
// YAML's own timestamp and number resolution does not alter them.
func defaultValue(k Kind, node *yaml.Node) (any, error) {
	switch k {
	case KindObject:
		var v any
		if err := node.Decode(&v); err != nil {
			return nil, err
		}
		return k.Decode(v)
	case KindBool:
		b, err := strconv.ParseBool(node.Value)
		if err != nil {
			return nil, err
		}
		return b, nil
	case KindInt32, KindInt64, KindFloat, KindDouble:
		return k.Decode(json.Number(node.Value))
	}
	if node.Kind != yaml.ScalarNode {
		return nil, fmt.Errorf("expected scalar")
	}
	return k.Decode(node.Value)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Fields returns all descriptors, biographic first, in definition order.
func (r *Registry) Fields() []Field {
	return r.fields
}

// GroupFields returns the descriptors of one group in definition order.
func (r *Registry) GroupFields(g Group) []Field {
	out := make([]Field, 0, len(r.byName[g]))
	for _, f := range r.fields {
		if f.Group == g {
			out = append(out, f)
		}
	}
	return out
}

// Lookup resolves a field by group and logical name.
func (r *Registry) Lookup(g Group, name string) (Field, bool) {
	idx, ok := r.byName[g][name]
	if !ok {
		return Field{}, false
	}
	return r.fields[idx], true
}

// ByColumn resolves a field by its storage column.
func (r *Registry) ByColumn(column string) (Field, bool) {
	idx, ok := r.byColumn[column]
	if !ok {
		return Field{}, false
	}
	return r.fields[idx], true
}

// Loader compiles the customization once, on first use.
type Loader struct {
	path string
	once sync.Once
	reg  *Registry
	err  error
}

// NewLoader returns a Loader for path; an empty path selects the built-in definition.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Registry returns the compiled customization, loading it on the first call.
func (l *Loader) Registry() (*Registry, error) {
	l.once.Do(func() {
		if l.path == "" {
			l.reg = Default()
			return
		}
		l.reg, l.err = LoadFile(l.path)
	})
	return l.reg, l.err
}
