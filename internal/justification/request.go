package justification

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/iancossa/attendance-fullstack/internal/validation"
)

// Reason is one of the fixed absence categories.
type Reason string

const (
	ReasonMedical   Reason = "medical"
	ReasonFamily    Reason = "family"
	ReasonTransport Reason = "transport"
	ReasonAcademic  Reason = "academic"
	ReasonReligious Reason = "religious"
	ReasonOther     Reason = "other"
)

var Reasons = []Reason{ReasonMedical, ReasonFamily, ReasonTransport, ReasonAcademic, ReasonReligious, ReasonOther}

// Valid reports whether r is one of Reasons.
func (r Reason) Valid() bool {
	for _, v := range Reasons {
		if v == r {
			return true
		}
	}
	return false
}

// ParseReason normalises s and reports whether it names a known reason.
func ParseReason(s string) (Reason, bool) {
	r := Reason(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

const MinDescriptionLength = 10

var (
	reasonTag  = "reason"
	reasonText = "{0} must be one of " + joinReasons()

	minTrimTag  = "mintrim"
	minTrimText = fmt.Sprintf("{0} must contain at least %d characters", MinDescriptionLength)
)

func init() {
	_ = validation.Validate.RegisterValidation(reasonTag, func(fl validator.FieldLevel) bool {
		return Reason(fl.Field().String()).Valid()
	})
	validation.RegisterCustomTranslation(reasonTag, reasonText)

	_ = validation.Validate.RegisterValidation(minTrimTag, minTrimValidation)
	validation.RegisterCustomTranslation(minTrimTag, minTrimText)
}

// minTrimValidation counts characters after trimming surrounding whitespace.
func minTrimValidation(fl validator.FieldLevel) bool {
	var min int
	if _, err := fmt.Sscanf(fl.Param(), "%d", &min); err != nil {
		return false
	}
	return utf8.RuneCountInString(strings.TrimSpace(fl.Field().String())) >= min
}

func joinReasons() string {
	parts := make([]string, len(Reasons))
	for i, r := range Reasons {
		parts[i] = string(r)
	}
	return strings.Join(parts, ", ")
}

// Request is an absence justification as collected by the form.
type Request struct {
	TargetID    string     `json:"target_id" validate:"required"`
	Reason      Reason     `json:"reason" validate:"required,reason"`
	Description string     `json:"description" validate:"mintrim=10"`
	Documents   []Document `json:"documents" validate:"-"`
}

// Validate checks the submit invariants and the attached documents.
func (r Request) Validate() error {
	r.TargetID = strings.TrimSpace(r.TargetID)
	err := validation.Struct(r)
	return validation.Merge(err, ValidateDocuments(r.Documents)...)
}

func (r Request) clone() Request {
	out := r
	out.Documents = append([]Document(nil), r.Documents...)
	return out
}
