package justification

import (
	"errors"
	"fmt"

	"github.com/gabriel-vasile/mimetype"

	"github.com/iancossa/attendance-fullstack/internal/validation"
)

const (
	MaxDocuments    = 5
	MaxDocumentSize = 5 << 20
)

// AllowedTypes are the content types accepted as supporting documents.
var AllowedTypes = []string{"application/pdf", "image/jpeg", "image/png"}

// Document is a supporting file attached to a justification.
type Document struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Data        []byte `json:"-"`
}

// NewDocument builds a Document, sniffing its content type from data.
func NewDocument(name string, data []byte) Document {
	return Document{
		Name:        name,
		ContentType: mimetype.Detect(data).String(),
		Size:        int64(len(data)),
		Data:        data,
	}
}

func allowedType(data []byte) bool {
	mt := mimetype.Detect(data)
	for _, t := range AllowedTypes {
		if mt.Is(t) {
			return true
		}
	}
	return false
}

func documentSize(d Document) int64 {
	if n := int64(len(d.Data)); n > d.Size {
		return n
	}
	return d.Size
}

// checkAttach rejects d when the draft already holds have documents or d is too large.
func checkAttach(have int, d Document) error {
	if have >= MaxDocuments {
		return validation.NewError(errors.New("too many documents"), validation.FieldError{
			Field: "documents",
			Error: fmt.Sprintf("at most %d documents may be attached", MaxDocuments),
		})
	}
	if documentSize(d) > MaxDocumentSize {
		return validation.NewError(errors.New("document too large"), validation.FieldError{
			Field: "documents",
			Error: fmt.Sprintf("%s exceeds the %d MB limit", d.Name, MaxDocumentSize>>20),
		})
	}
	return nil
}

// ValidateDocuments returns one field error per violated constraint.
func ValidateDocuments(docs []Document) []validation.FieldError {
	var errs []validation.FieldError
	if len(docs) > MaxDocuments {
		errs = append(errs, validation.FieldError{
			Field: "documents",
			Error: fmt.Sprintf("at most %d documents may be attached", MaxDocuments),
		})
	}
	for _, d := range docs {
		if documentSize(d) > MaxDocumentSize {
			errs = append(errs, validation.FieldError{
				Field: "documents",
				Error: fmt.Sprintf("%s exceeds the %d MB limit", d.Name, MaxDocumentSize>>20),
			})
			continue
		}
		if !allowedType(d.Data) {
			errs = append(errs, validation.FieldError{
				Field: "documents",
				Error: fmt.Sprintf("%s must be a PDF, JPEG or PNG file", d.Name),
			})
		}
	}
	return errs
}
