package justification

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func pngBytes() []byte {
	return append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)
}

func pdfBytes() []byte {
	return []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n%%EOF\n")
}

func TestNewDocumentSniffsType(t *testing.T) {
	assert.Equal(t, "image/png", NewDocument("a.png", pngBytes()).ContentType)
	assert.Equal(t, "application/pdf", NewDocument("a.pdf", pdfBytes()).ContentType)
	assert.Equal(t, int64(len(pdfBytes())), NewDocument("a.pdf", pdfBytes()).Size)
}

func TestValidateDocuments(t *testing.T) {
	tests := []struct {
		name     string
		docs     []Document
		wantErrs int
		contains string
	}{
		{name: "none", docs: nil},
		{name: "png and pdf", docs: []Document{NewDocument("a.png", pngBytes()), NewDocument("b.pdf", pdfBytes())}},
		{name: "plain text", docs: []Document{NewDocument("notes.txt", []byte("just some notes"))}, wantErrs: 1, contains: "PDF, JPEG or PNG"},
		{name: "renamed text keeps its real type", docs: []Document{{Name: "fake.pdf", ContentType: "application/pdf", Data: []byte("not a pdf")}}, wantErrs: 1},
		{name: "too large", docs: []Document{{Name: "huge.pdf", Data: append(pdfBytes(), bytes.Repeat([]byte{0}, MaxDocumentSize)...)}}, wantErrs: 1, contains: "5 MB"},
		{name: "declared size too large", docs: []Document{{Name: "big.png", Size: MaxDocumentSize + 1, Data: pngBytes()}}, wantErrs: 1},
		{name: "too many", docs: []Document{
			NewDocument("1.png", pngBytes()), NewDocument("2.png", pngBytes()), NewDocument("3.png", pngBytes()),
			NewDocument("4.png", pngBytes()), NewDocument("5.png", pngBytes()), NewDocument("6.png", pngBytes()),
		}, wantErrs: 1, contains: "at most 5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateDocuments(tt.docs)
			assert.Len(t, errs, tt.wantErrs)
			for _, e := range errs {
				assert.Equal(t, "documents", e.Field)
			}
			if tt.contains != "" && len(errs) > 0 {
				assert.True(t, strings.Contains(errs[0].Error, tt.contains), errs[0].Error)
			}
		})
	}
}

func TestRequestValidateIncludesDocuments(t *testing.T) {
	req := Request{
		TargetID:    "lecture-1",
		Reason:      ReasonTransport,
		Description: "Flooded road near campus",
		Documents:   []Document{NewDocument("x.txt", []byte("hello"))},
	}
	err := req.Validate()
	assert.Error(t, err)

	req.Documents = []Document{NewDocument("x.png", pngBytes())}
	assert.NoError(t, req.Validate())
}

func TestParseReason(t *testing.T) {
	r, ok := ParseReason(" Medical ")
	assert.True(t, ok)
	assert.Equal(t, ReasonMedical, r)
	_, ok = ParseReason("vacation")
	assert.False(t, ok)
}
