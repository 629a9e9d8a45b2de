package alert

import (
	"errors"

	"github.com/iancossa/attendance-fullstack/internal/risk"
)

// Channel is a delivery route for an alert.
type Channel string

const (
	Notification Channel = "notification"
	StudentEmail Channel = "student-email"
	ParentEmail  Channel = "parent-email"
	ParentSMS    Channel = "parent-sms"
)

var Channels = []Channel{Notification, StudentEmail, ParentEmail, ParentSMS}

// Valid reports whether c is one of Channels.
func (c Channel) Valid() bool {
	for _, v := range Channels {
		if v == c {
			return true
		}
	}
	return false
}

// Parent channels address the guardian rather than the student.
func (c Channel) Parent() bool {
	return c == ParentEmail || c == ParentSMS
}

// Recipients used when parent contact data is missing.
const (
	PlaceholderParentEmail = "parent@example.com"
	PlaceholderParentPhone = "+1234567890"
)

var (
	ErrUnknownChannel       = errors.New("unknown alert channel")
	ErrPlaceholderRecipient = errors.New("recipient is a placeholder; parent contact details are missing")
	ErrNoSender             = errors.New("no sender configured for channel")
	ErrNoRecipient          = errors.New("alert has no recipient")
)

// Student is the data an alert is composed from.
type Student struct {
	ID                  string  `json:"id"`
	StudentID           string  `json:"student_id" validate:"required"`
	Name                string  `json:"name" validate:"required"`
	Email               string  `json:"email,omitempty" validate:"omitempty,email"`
	AttendanceRate      float64 `json:"attendance_rate" validate:"gte=0,lte=100"`
	ConsecutiveAbsences int     `json:"consecutive_absences" validate:"gte=0"`
	ParentEmail         string  `json:"parent_email,omitempty" validate:"omitempty,email"`
	ParentPhone         string  `json:"parent_phone,omitempty"`
}

// Message is a composed alert, ready to preview or send once.
type Message struct {
	ID          string        `json:"id"`
	Channel     Channel       `json:"channel"`
	Recipient   string        `json:"recipient"`
	Subject     string        `json:"subject,omitempty"`
	Body        string        `json:"body"`
	Severity    risk.Severity `json:"severity"`
	StudentID   string        `json:"student_id"`
	Placeholder bool          `json:"placeholder"`
}
