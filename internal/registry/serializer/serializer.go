// Package serializer maps Identities and Persons between their storage form and the
// external JSON document, and applies merge patches on the document form.
package serializer

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"registry/internal/registry/custo"
	"registry/internal/registry/models"
	strutil "registry/pkg/platform/strings"
)

// Serializer converts between storage models and external documents.
type Serializer struct {
	reg *custo.Registry
}

// New returns a Serializer for the given customization.
func New(reg *custo.Registry) *Serializer {
	return &Serializer{reg: reg}
}

// Registry returns the customization the serializer was built with.
func (s *Serializer) Registry() *custo.Registry {
	return s.reg
}

// DumpPerson returns the external form of p. Identities are never included.
func DumpPerson(p *models.Person) map[string]any {
	return map[string]any{
		"personId":       p.ID,
		"status":         string(p.Status),
		"physicalStatus": string(p.PhysicalStatus),
	}
}

// LoadPerson builds a Person from its external form, applying the status defaults.
func LoadPerson(id string, doc map[string]any) *models.Person {
	p := &models.Person{ID: id, Status: models.PersonActive, PhysicalStatus: models.PhysicalAlive}
	if v, ok := doc["status"].(string); ok {
		p.Status = models.PersonStatus(v)
	}
	if v, ok := doc["physicalStatus"].(string); ok {
		p.PhysicalStatus = models.PhysicalStatus(v)
	}
	return p
}

// DumpIdentity returns the external document of i. Absent columns, empty lists and
// empty attribute groups are omitted.
func (s *Serializer) DumpIdentity(i *models.Identity) map[string]any {
	doc := map[string]any{"identityId": i.IdentityID}
	if i.IdentityType != nil {
		doc["identityType"] = *i.IdentityType
	}
	if i.Status != "" {
		doc["status"] = string(i.Status)
	}
	if len(i.Galleries) > 0 {
		doc["galleries"] = append([]string(nil), i.Galleries...)
	}
	if i.ClientData != nil {
		doc["clientData"] = base64.StdEncoding.EncodeToString(i.ClientData)
	}
	for _, g := range custo.Groups {
		group := map[string]any{}
		for _, f := range s.reg.GroupFields(g) {
			v, ok := i.Attributes[f.Column]
			if !ok || v == nil {
				continue
			}
			group[f.Name] = f.Kind.Encode(v)
		}
		if len(group) > 0 {
			doc[g.DocumentKey()] = group
		}
	}
	if len(i.BiometricData) > 0 {
		doc["biometricData"] = i.BiometricData
	}
	if len(i.DocumentData) > 0 {
		doc["documentData"] = i.DocumentData
	}
	return doc
}

// LoadIdentity builds an Identity from an external document. identityId is dump-only
// and ignored; null values are treated as absent. No defaults are applied.
func (s *Serializer) LoadIdentity(doc map[string]any) (*models.Identity, error) {
	ident := &models.Identity{Attributes: map[string]any{}}
	for key, v := range doc {
		if v == nil {
			continue
		}
		var err error
		switch key {
		case "identityId":
		case "identityType":
			t, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("identityType: expected string")
			}
			ident.IdentityType = &t
		case "status":
			st, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("status: expected string")
			}
			if ident.Status, ok = models.ParseIdentityStatus(st); !ok {
				return nil, fmt.Errorf("status: invalid value %q", st)
			}
		case "galleries":
			if err = convert(v, &ident.Galleries); err == nil {
				ident.Galleries = strutil.DedupeAndTrim(ident.Galleries)
			}
		case "clientData":
			ident.ClientData, err = decodeBase64(v)
		case "biographicData":
			err = s.loadGroup(custo.GroupBiographic, v, ident.Attributes)
		case "contextualData":
			err = s.loadGroup(custo.GroupContextual, v, ident.Attributes)
		case "biometricData":
			err = convert(v, &ident.BiometricData)
		case "documentData":
			err = convert(v, &ident.DocumentData)
		default:
			err = fmt.Errorf("unknown field")
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
	}
	for i := range ident.DocumentData {
		if ident.DocumentData[i].Parts == nil {
			ident.DocumentData[i].Parts = []models.DocumentPart{}
		}
	}
	return ident, nil
}

func (s *Serializer) loadGroup(g custo.Group, v any, into map[string]any) error {
	m, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("expected object")
	}
	for name, raw := range m {
		if raw == nil {
			continue
		}
		f, ok := s.reg.Lookup(g, name)
		if !ok {
			return fmt.Errorf("unknown attribute %q", name)
		}
		val, err := f.Kind.Decode(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		into[f.Column] = val
	}
	return nil
}

// ApplyDefaults sets the insertion defaults on every absent field: status CLAIMED,
// an empty identityType and the customized attribute defaults.
func (s *Serializer) ApplyDefaults(i *models.Identity) {
	if i.Status == "" {
		i.Status = models.IdentityClaimed
	}
	if i.IdentityType == nil {
		empty := ""
		i.IdentityType = &empty
	}
	if i.Attributes == nil {
		i.Attributes = map[string]any{}
	}
	for _, f := range s.reg.Fields() {
		if !f.HasDefault {
			continue
		}
		if _, ok := i.Attributes[f.Column]; !ok {
			i.Attributes[f.Column] = f.Default
		}
	}
}

// Patch applies a JSON merge patch to the document form of i and returns the
// resulting Identity. Storage identity (key, owner, id, position, reference flag)
// is preserved; a removed status falls back to CLAIMED.
func (s *Serializer) Patch(i *models.Identity, patch map[string]any) (*models.Identity, error) {
	merged, ok := MergePatch(s.DumpIdentity(i), patch).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("patch must be an object")
	}
	n, err := s.LoadIdentity(merged)
	if err != nil {
		return nil, err
	}
	n.Key = i.Key
	n.PersonID = i.PersonID
	n.IdentityID = i.IdentityID
	n.Position = i.Position
	n.IsReference = i.IsReference
	if n.Status == "" {
		n.Status = models.IdentityClaimed
	}
	return n, nil
}

// MergePatch applies patch to target following RFC 7386: objects merge recursively,
// null removes a key, any other value (lists included) replaces the target wholesale.
func MergePatch(target, patch any) any {
	p, ok := patch.(map[string]any)
	if !ok {
		return patch
	}
	out := map[string]any{}
	if t, ok := target.(map[string]any); ok {
		for k, v := range t {
			out[k] = v
		}
	}
	for k, v := range p {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = MergePatch(out[k], v)
	}
	return out
}

func decodeBase64(v any) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected base64 string")
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	return b, nil
}

// convert re-decodes a generic JSON value into a typed target.
func convert(v any, target any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}
