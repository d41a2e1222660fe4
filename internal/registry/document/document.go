// Package document selects the parts of a stored document matching a requested type
// and format, and renders them as a single body, a redirect or a multipart/mixed body.
package document

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"registry/internal/registry/models"
	dErrors "registry/pkg/domain-errors"
)

// Boundary separates the parts of a multipart response.
const Boundary = "xx--BOUNDARY--xx"

// Formats maps the supported format names to the stored mime types.
var Formats = map[string]string{
	"pdf":  "application/pdf",
	"jpeg": "image/jpeg",
	"png":  "image/png",
}

// Request is a document retrieval request.
type Request struct {
	DocType      string
	Format       string
	SecondaryUIN string
}

// Validate rejects secondary UINs and unknown types or formats.
func (r Request) Validate() error {
	if r.SecondaryUIN != "" {
		return dErrors.New(dErrors.CodeBadRequest, "readDocument: secondaryUin is not supported").
			WithReason(dErrors.ReasonSecondaryUIN)
	}
	if _, ok := Formats[r.Format]; r.DocType == "" || !ok {
		return dErrors.New(dErrors.CodeBadRequest, "readDocument: incorrect parameters for doctype or format").
			WithReason(dErrors.ReasonDocumentParameter)
	}
	return nil
}

// MimeType returns the stored mime type of the requested format.
func (r Request) MimeType() string {
	return Formats[r.Format]
}

// Part is one selected document part. Exactly one of Data and Ref is set.
type Part struct {
	Data     []byte
	MimeType string
	Ref      string
}

// Collect returns the parts of the identity's documents of type docType stored with
// the given mime type, in document then part order. Inline data wins over a reference.
func Collect(i *models.Identity, docType, mimeType string) []Part {
	var parts []Part
	for _, doc := range i.DocumentData {
		if !doc.Matches(docType) {
			continue
		}
		for _, p := range doc.Parts {
			if p.MimeType == nil || *p.MimeType != mimeType {
				continue
			}
			switch {
			case len(p.Data) > 0:
				parts = append(parts, Part{Data: p.Data, MimeType: mimeType})
			case p.DataRef != nil && *p.DataRef != "":
				parts = append(parts, Part{Ref: *p.DataRef, MimeType: mimeType})
			}
		}
	}
	return parts
}

// Write renders parts. A single inline part is written as the body, a single reference
// as a 302 redirect, and several parts as multipart/mixed where references become
// text/uri-list parts carrying a Location header. parts must not be empty.
func Write(w http.ResponseWriter, r *http.Request, parts []Part) error {
	if len(parts) == 0 {
		return fmt.Errorf("no document part to write")
	}
	if len(parts) == 1 {
		p := parts[0]
		if p.Ref != "" {
			http.Redirect(w, r, p.Ref, http.StatusFound)
			return nil
		}
		w.Header().Set("Content-Type", p.MimeType)
		w.WriteHeader(http.StatusOK)
		_, err := w.Write(p.Data)
		return err
	}

	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(Boundary); err != nil {
		return fmt.Errorf("set multipart boundary: %w", err)
	}
	w.Header().Set("Content-Type", "multipart/mixed; boundary="+mw.Boundary())
	w.WriteHeader(http.StatusOK)
	for _, p := range parts {
		header := textproto.MIMEHeader{"Content-Type": {p.MimeType}}
		body := p.Data
		if p.Ref != "" {
			header = textproto.MIMEHeader{"Content-Type": {"text/uri-list"}, "Location": {p.Ref}}
			body = []byte(p.Ref)
		}
		pw, err := mw.CreatePart(header)
		if err != nil {
			return fmt.Errorf("create part: %w", err)
		}
		if _, err := pw.Write(body); err != nil {
			return fmt.Errorf("write part: %w", err)
		}
	}
	return mw.Close()
}
