// Package catalog holds the administrative records behind the class, department,
// faculty, student and event forms.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/iancossa/attendance-fullstack/internal/validation"
)

type Kind string

const (
	KindClass      Kind = "class"
	KindDepartment Kind = "department"
	KindFaculty    Kind = "faculty"
	KindStudent    Kind = "student"
	KindEvent      Kind = "event"
)

var Kinds = []Kind{KindClass, KindDepartment, KindFaculty, KindStudent, KindEvent}

var (
	ErrUnknownKind    = errors.New("unknown record kind")
	ErrInvalidPayload = errors.New("invalid record payload")
	ErrDuplicate      = errors.New("record already exists")
)

// ParseKind accepts the singular kind or its plural path form.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	switch s {
	case "classes":
		return KindClass, nil
	case "faculties":
		return KindFaculty, nil
	case "departments", "students", "events":
		return Kind(strings.TrimSuffix(s, "s")), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Record is one of the typed catalog payloads.
type Record interface {
	Kind() Kind
}

type Class struct {
	ID         string  `json:"id,omitempty"`
	Code       string  `json:"code" validate:"required,max=20"`
	Name       string  `json:"name" validate:"required,max=120"`
	Department string  `json:"department" validate:"required"`
	FacultyID  *string `json:"faculty_id,omitempty"`
	Semester   int     `json:"semester" validate:"required,gte=1,lte=12"`
	Credits    int     `json:"credits" validate:"gte=0,lte=30"`
	Room       *string `json:"room,omitempty"`
	Schedule   *string `json:"schedule,omitempty"`
}

type Department struct {
	ID          string  `json:"id,omitempty"`
	Code        string  `json:"code" validate:"required,max=10"`
	Name        string  `json:"name" validate:"required,max=120"`
	Description *string `json:"description,omitempty"`
	Head        *string `json:"head,omitempty"`
}

type Faculty struct {
	ID          string  `json:"id,omitempty"`
	EmployeeID  string  `json:"employee_id" validate:"required"`
	Name        string  `json:"name" validate:"required"`
	Email       string  `json:"email" validate:"required,email"`
	Department  string  `json:"department" validate:"required"`
	Designation *string `json:"designation,omitempty"`
	Phone       *string `json:"phone,omitempty"`
}

type Student struct {
	ID          string  `json:"id,omitempty"`
	StudentID   string  `json:"student_id" validate:"required"`
	Name        string  `json:"name" validate:"required"`
	Email       string  `json:"email" validate:"required,email"`
	Department  string  `json:"department" validate:"required"`
	Year        int     `json:"year" validate:"required,gte=1,lte=6"`
	Section     *string `json:"section,omitempty"`
	ParentEmail *string `json:"parent_email,omitempty" validate:"omitempty,email"`
	ParentPhone *string `json:"parent_phone,omitempty" validate:"omitempty,e164"`
}

type EventType string

type Event struct {
	ID          string    `json:"id,omitempty"`
	Title       string    `json:"title" validate:"required,max=200"`
	Type        EventType `json:"type" validate:"required,oneof=lecture lab exam seminar holiday meeting"`
	Date        Date      `json:"date" validate:"required"`
	StartTime   *string   `json:"start_time,omitempty" validate:"omitempty,datetime=15:04"`
	EndTime     *string   `json:"end_time,omitempty" validate:"omitempty,datetime=15:04"`
	Location    *string   `json:"location,omitempty"`
	ClassCode   *string   `json:"class_code,omitempty"`
	Description *string   `json:"description,omitempty"`
}

func (Class) Kind() Kind      { return KindClass }
func (Department) Kind() Kind { return KindDepartment }
func (Faculty) Kind() Kind    { return KindFaculty }
func (Student) Kind() Kind    { return KindStudent }
func (Event) Kind() Kind      { return KindEvent }

// Date is a calendar day encoded as YYYY-MM-DD.
type Date struct {
	time.Time
}

const DateLayout = "2006-01-02"

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(DateLayout))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

func init() {
	// validate Date as its underlying time so "required" sees the zero value
	validation.Validate.RegisterCustomTypeFunc(func(v reflect.Value) interface{} {
		return v.Interface().(Date).Time
	}, Date{})
}

func newRecord(kind Kind) (Record, error) {
	switch kind {
	case KindClass:
		return &Class{}, nil
	case KindDepartment:
		return &Department{}, nil
	case KindFaculty:
		return &Faculty{}, nil
	case KindStudent:
		return &Student{}, nil
	case KindEvent:
		return &Event{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// Decode parses and validates a JSON payload of the given kind.
// Unknown fields are rejected. The returned Record is a pointer to the typed struct.
func Decode(kind Kind, payload []byte) (Record, error) {
	rec, err := newRecord(kind)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(rec); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, kind, err)
	}
	normalize(rec)
	if err := validation.Struct(rec); err != nil {
		return nil, err
	}
	if ev, ok := rec.(*Event); ok {
		if err := validateEventTimes(ev); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

func validateEventTimes(ev *Event) error {
	if ev.StartTime == nil || ev.EndTime == nil {
		return nil
	}
	start, _ := time.Parse("15:04", *ev.StartTime)
	end, _ := time.Parse("15:04", *ev.EndTime)
	if !end.After(start) {
		return validation.NewError(nil, validation.FieldError{Field: "end_time", Error: "must be after start_time"})
	}
	return nil
}

// normalize trims strings and turns blank optionals into nil.
func normalize(rec Record) {
	trim := func(s *string) { *s = strings.TrimSpace(*s) }
	opt := func(p **string) {
		if *p == nil {
			return
		}
		v := strings.TrimSpace(**p)
		if v == "" {
			*p = nil
			return
		}
		*p = &v
	}
	switch r := rec.(type) {
	case *Class:
		trim(&r.Code)
		trim(&r.Name)
		trim(&r.Department)
		opt(&r.FacultyID)
		opt(&r.Room)
		opt(&r.Schedule)
	case *Department:
		trim(&r.Code)
		trim(&r.Name)
		opt(&r.Description)
		opt(&r.Head)
	case *Faculty:
		trim(&r.EmployeeID)
		trim(&r.Name)
		trim(&r.Email)
		trim(&r.Department)
		opt(&r.Designation)
		opt(&r.Phone)
	case *Student:
		trim(&r.StudentID)
		trim(&r.Name)
		trim(&r.Email)
		trim(&r.Department)
		opt(&r.Section)
		opt(&r.ParentEmail)
		opt(&r.ParentPhone)
	case *Event:
		trim(&r.Title)
		opt(&r.StartTime)
		opt(&r.EndTime)
		opt(&r.Location)
		opt(&r.ClassCode)
		opt(&r.Description)
	}
}
