package validation

import (
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/pkg/errors"
)

var (
	Validate   *validator.Validate
	Translator ut.Translator

	requiredTag  = "required"
	requiredText = "this field is required"
)

func init() {
	Validate = validator.New()
	uni := ut.New(en.New())
	Translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(Validate, Translator)

	// report JSON names instead of Go field names
	Validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	RegisterCustomTranslation(requiredTag, requiredText, true)
}

// RegisterCustomTranslation registers a message for the given validation tag.
func RegisterCustomTranslation(tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = Validate.RegisterTranslation(
		tag, Translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// FieldError is an error on a single named field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// Error is returned when input fails validation. It never reaches the store.
type Error struct {
	Err    error
	Fields []FieldError
}

// NewError builds an *Error from a cause and field errors.
func NewError(err error, flds ...FieldError) error {
	return &Error{Err: err, Fields: flds}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "validation failed"
	}
	return e.Err.Error()
}

// Map returns field name → message; the first message per field wins.
func (e *Error) Map() map[string]string {
	out := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		if _, ok := out[f.Field]; !ok {
			out[f.Field] = f.Error
		}
	}
	return out
}

// Has reports whether the error carries a message for field.
func (e *Error) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// Struct validates v and converts validator errors to *Error.
func Struct(v interface{}) error {
	err := Validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	return FromValidator(verrs)
}

// FromValidator translates validator errors into field errors sorted by field name.
func FromValidator(verrs validator.ValidationErrors) *Error {
	flds := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		flds = append(flds, FieldError{Field: fe.Field(), Error: fe.Translate(Translator)})
	}
	sort.SliceStable(flds, func(i, j int) bool { return flds[i].Field < flds[j].Field })
	return &Error{Err: errors.New("invalid input"), Fields: flds}
}

// Merge appends extra field errors to err, creating an *Error when err is nil.
func Merge(err error, flds ...FieldError) error {
	if len(flds) == 0 {
		return err
	}
	if err == nil {
		return &Error{Err: errors.New("invalid input"), Fields: flds}
	}
	var verr *Error
	if errors.As(err, &verr) {
		verr.Fields = append(verr.Fields, flds...)
		return verr
	}
	return err
}

// As extracts *Error from err.
func As(err error) (*Error, bool) {
	var verr *Error
	ok := errors.As(err, &verr)
	return verr, ok
}
