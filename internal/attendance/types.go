package attendance

import (
	"time"

	"github.com/iancossa/attendance-fullstack/internal/risk"
)

// Status is a student's mark for one session.
type Status string

const (
	Present Status = "present"
	Absent  Status = "absent"
	Late    Status = "late"
	Excused Status = "excused"
)

// Counts reports whether the status counts toward the attendance rate.
func (s Status) Counts() bool {
	return s == Present || s == Late || s == Excused
}

type ReviewStatus string

const (
	Pending  ReviewStatus = "pending"
	Approved ReviewStatus = "approved"
	Rejected ReviewStatus = "rejected"
)

// Valid reports whether s is a known review status.
func (s ReviewStatus) Valid() bool {
	return s == Pending || s == Approved || s == Rejected
}

type Student struct {
	ID          string
	StudentID   string
	Name        string
	Email       string
	ParentEmail *string
	ParentPhone *string
}

type StoredDocument struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	ContentType string  `json:"content_type"`
	Size        int64   `json:"size"`
	URL         *string `json:"url,omitempty"`
}

// Justification is a persisted absence justification.
type Justification struct {
	ID           string           `json:"id"`
	AttendanceID string           `json:"attendance_id"`
	StudentID    string           `json:"student_id"`
	Reason       string           `json:"reason"`
	Description  string           `json:"description"`
	Status       ReviewStatus     `json:"status"`
	ReviewNote   *string          `json:"review_note,omitempty"`
	ReviewedBy   *string          `json:"reviewed_by,omitempty"`
	SubmittedAt  time.Time        `json:"submitted_at"`
	ReviewedAt   *time.Time       `json:"reviewed_at,omitempty"`
	Documents    []StoredDocument `json:"documents,omitempty"`
}

type Filter struct {
	StudentID    string
	AttendanceID string
	Status       ReviewStatus
	Limit     int
	Offset    int
}

// Risk is a student's attendance standing.
type Risk struct {
	StudentID           string        `json:"student_id"`
	Name                string        `json:"name"`
	Sessions            int           `json:"sessions"`
	Attended            int           `json:"attended"`
	Rate                float64       `json:"rate"`
	ConsecutiveAbsences int           `json:"consecutive_absences"`
	Severity            risk.Severity `json:"severity"`
	Label               string        `json:"label"`
	Color               string        `json:"color"`
}
