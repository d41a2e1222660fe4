package models

import (
	"encoding/json"
	"slices"
	"time"
)

// PersonStatus is the administrative status of a Person.
type PersonStatus string

const (
	PersonActive   PersonStatus = "ACTIVE"
	PersonInactive PersonStatus = "INACTIVE"
)

// PhysicalStatus records whether the Person is alive.
type PhysicalStatus string

const (
	PhysicalAlive PhysicalStatus = "ALIVE"
	PhysicalDead  PhysicalStatus = "DEAD"
)

// IdentityStatus is the lifecycle state of an Identity.
type IdentityStatus string

const (
	IdentityClaimed IdentityStatus = "CLAIMED"
	IdentityValid   IdentityStatus = "VALID"
	IdentityInvalid IdentityStatus = "INVALID"
	IdentityRevoked IdentityStatus = "REVOKED"
)

// ParseIdentityStatus validates s.
func ParseIdentityStatus(s string) (IdentityStatus, bool) {
	switch st := IdentityStatus(s); st {
	case IdentityClaimed, IdentityValid, IdentityInvalid, IdentityRevoked:
		return st, true
	}
	return "", false
}

// Person is the top-level registry subject. Its identities are loaded separately.
type Person struct {
	ID             string
	Status         PersonStatus
	PhysicalStatus PhysicalStatus
}

// Identity is one biographic record of a Person.
//
// Attributes holds the customized fields keyed by storage column (bgd_*, ctx_*);
// an absent key is a NULL column. Key is the storage surrogate and defines the
// stable query order; it is never exposed.
type Identity struct {
	Key           int64
	PersonID      string
	IdentityID    string
	IdentityType  *string
	Status        IdentityStatus
	IsReference   bool
	Position      int
	Galleries     []string
	ClientData    []byte
	Attributes    map[string]any
	BiometricData []BiometricData
	DocumentData  []DocumentData
}

// BiometricData is one biometric sample of an Identity.
type BiometricData struct {
	BiometricType    string     `json:"biometricType" db:"biometric_type"`
	BiometricSubType *string    `json:"biometricSubType,omitempty" db:"biometric_sub_type"`
	Instance         *string    `json:"instance,omitempty" db:"instance"`
	Image            []byte     `json:"image,omitempty" db:"image"`
	ImageRef         *string    `json:"imageRef,omitempty" db:"image_ref"`
	CaptureDate      *time.Time `json:"captureDate,omitempty" db:"capture_date"`
	CaptureDevice    *string    `json:"captureDevice,omitempty" db:"capture_device"`
	ImpressionType   *string    `json:"impressionType,omitempty" db:"impression_type"`
	Width            *int       `json:"width,omitempty" db:"width"`
	Height           *int       `json:"height,omitempty" db:"height"`
	Bitdepth         *int       `json:"bitdepth,omitempty" db:"bitdepth"`
	MimeType         *string    `json:"mimeType,omitempty" db:"mime_type"`
	Resolution       *int       `json:"resolution,omitempty" db:"resolution"`
	Compression      *string    `json:"compression,omitempty" db:"compression"`
	Missing          []Missing  `json:"missing,omitempty" db:"-"`
	Metadata         *string    `json:"metadata,omitempty" db:"metadata"`
	Comment          *string    `json:"comment,omitempty" db:"comment"`
	Template         []byte     `json:"template,omitempty" db:"template"`
	TemplateRef      *string    `json:"templateRef,omitempty" db:"template_ref"`
	TemplateFormat   *string    `json:"templateFormat,omitempty" db:"template_format"`
	Quality          *int       `json:"quality,omitempty" db:"quality"`
	QualityFormat    *string    `json:"qualityFormat,omitempty" db:"quality_format"`
	Algorithm        *string    `json:"algorithm,omitempty" db:"algorithm"`
	Vendor           *string    `json:"vendor,omitempty" db:"vendor"`
}

// Missing records a biometric that could not be captured.
type Missing struct {
	BiometricSubType string `json:"biometricSubType" db:"biometric_sub_type"`
	Presence         string `json:"presence" db:"presence"`
}

// DocumentTypeOther is the escape value that requires DocumentTypeOther to be set.
const DocumentTypeOther = "OTHER"

// DocumentData is one document attached to an Identity.
type DocumentData struct {
	DocumentType      string         `json:"documentType" db:"document_type"`
	DocumentTypeOther *string        `json:"documentTypeOther,omitempty" db:"document_type_other"`
	Instance          *string        `json:"instance,omitempty" db:"instance"`
	Parts             []DocumentPart `json:"parts" db:"-"`
}

// Matches reports whether the document is of the requested logical type: either the
// type itself or an OTHER document whose free-text type equals it.
func (d DocumentData) Matches(docType string) bool {
	if d.DocumentType == docType {
		return true
	}
	return d.DocumentType == DocumentTypeOther && d.DocumentTypeOther != nil && *d.DocumentTypeOther == docType
}

// DocumentPart is one page range of a document, inline or referenced.
type DocumentPart struct {
	Pages         []int      `json:"pages,omitempty" db:"-"`
	Data          []byte     `json:"data,omitempty" db:"data"`
	DataRef       *string    `json:"dataRef,omitempty" db:"data_ref"`
	Width         *int       `json:"width,omitempty" db:"width"`
	Height        *int       `json:"height,omitempty" db:"height"`
	MimeType      *string    `json:"mimeType,omitempty" db:"mime_type"`
	CaptureDate   *time.Time `json:"captureDate,omitempty" db:"capture_date"`
	CaptureDevice *string    `json:"captureDevice,omitempty" db:"capture_device"`
}

// InGallery reports whether the Identity belongs to gallery.
func (i *Identity) InGallery(gallery string) bool {
	return slices.Contains(i.Galleries, gallery)
}

// Clone returns a deep copy.
func (i *Identity) Clone() *Identity {
	c := *i
	c.IdentityType = clonePtr(i.IdentityType)
	c.Galleries = slices.Clone(i.Galleries)
	c.ClientData = slices.Clone(i.ClientData)
	if i.Attributes != nil {
		c.Attributes = make(map[string]any, len(i.Attributes))
		for k, v := range i.Attributes {
			c.Attributes[k] = cloneValue(v)
		}
	}
	c.BiometricData = nil
	for _, b := range i.BiometricData {
		c.BiometricData = append(c.BiometricData, b.clone())
	}
	c.DocumentData = nil
	for _, d := range i.DocumentData {
		c.DocumentData = append(c.DocumentData, d.clone())
	}
	return &c
}

func (b BiometricData) clone() BiometricData {
	c := b
	c.BiometricSubType = clonePtr(b.BiometricSubType)
	c.Instance = clonePtr(b.Instance)
	c.Image = slices.Clone(b.Image)
	c.ImageRef = clonePtr(b.ImageRef)
	c.CaptureDate = clonePtr(b.CaptureDate)
	c.CaptureDevice = clonePtr(b.CaptureDevice)
	c.ImpressionType = clonePtr(b.ImpressionType)
	c.Width = clonePtr(b.Width)
	c.Height = clonePtr(b.Height)
	c.Bitdepth = clonePtr(b.Bitdepth)
	c.MimeType = clonePtr(b.MimeType)
	c.Resolution = clonePtr(b.Resolution)
	c.Compression = clonePtr(b.Compression)
	c.Missing = slices.Clone(b.Missing)
	c.Metadata = clonePtr(b.Metadata)
	c.Comment = clonePtr(b.Comment)
	c.Template = slices.Clone(b.Template)
	c.TemplateRef = clonePtr(b.TemplateRef)
	c.TemplateFormat = clonePtr(b.TemplateFormat)
	c.Quality = clonePtr(b.Quality)
	c.QualityFormat = clonePtr(b.QualityFormat)
	c.Algorithm = clonePtr(b.Algorithm)
	c.Vendor = clonePtr(b.Vendor)
	return c
}

func (d DocumentData) clone() DocumentData {
	c := d
	c.DocumentTypeOther = clonePtr(d.DocumentTypeOther)
	c.Instance = clonePtr(d.Instance)
	c.Parts = make([]DocumentPart, 0, len(d.Parts))
	for _, p := range d.Parts {
		pc := p
		pc.Pages = slices.Clone(p.Pages)
		pc.Data = slices.Clone(p.Data)
		pc.DataRef = clonePtr(p.DataRef)
		pc.Width = clonePtr(p.Width)
		pc.Height = clonePtr(p.Height)
		pc.MimeType = clonePtr(p.MimeType)
		pc.CaptureDate = clonePtr(p.CaptureDate)
		pc.CaptureDevice = clonePtr(p.CaptureDevice)
		c.Parts = append(c.Parts, pc)
	}
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return slices.Clone(t)
	case json.RawMessage:
		return slices.Clone(t)
	}
	return v
}
