package alert

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"

	"github.com/iancossa/attendance-fullstack/internal/risk"
)

// Composer renders alert messages from per-channel templates.
type Composer struct {
	tmpls map[Channel]compiled
}

// NewComposer compiles tmpls. A nil map uses the built-in templates.
func NewComposer(tmpls Templates) (*Composer, error) {
	if tmpls == nil {
		var err error
		if tmpls, err = DefaultTemplates(); err != nil {
			return nil, err
		}
	}
	c, err := tmpls.compile()
	if err != nil {
		return nil, err
	}
	return &Composer{tmpls: c}, nil
}

type templateData struct {
	Name                string
	StudentID           string
	Rate                string
	ConsecutiveAbsences int
	Severity            string
	MinimumRate         string
}

func dataFor(s Student) templateData {
	return templateData{
		Name:                s.Name,
		StudentID:           s.StudentID,
		Rate:                strconv.FormatFloat(s.AttendanceRate, 'f', 1, 64),
		ConsecutiveAbsences: s.ConsecutiveAbsences,
		Severity:            risk.Classify(s.AttendanceRate).Label(),
		MinimumRate:         strconv.FormatFloat(risk.Thresholds.Good, 'f', 0, 64),
	}
}

// Compose builds the message for channel. Parent channels fall back to placeholder contact
// data when the student has none; such messages are flagged and Dispatcher.Send refuses them.
func (c *Composer) Compose(channel Channel, s Student) (Message, error) {
	t, ok := c.tmpls[channel]
	if !ok {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	data := dataFor(s)

	msg := Message{
		ID:        ulid.Make().String(),
		Channel:   channel,
		Severity:  risk.Classify(s.AttendanceRate),
		StudentID: s.StudentID,
	}
	msg.Recipient, msg.Placeholder = recipient(channel, s)

	var sb strings.Builder
	if t.subject != nil {
		if err := t.subject.Execute(&sb, data); err != nil {
			return Message{}, errors.Wrapf(err, "render %s subject", channel)
		}
		msg.Subject = sb.String()
		sb.Reset()
	}
	if err := t.body.Execute(&sb, data); err != nil {
		return Message{}, errors.Wrapf(err, "render %s body", channel)
	}
	msg.Body = sb.String()
	return msg, nil
}

// Preview renders every channel for s without sending anything.
func (c *Composer) Preview(s Student) ([]Message, error) {
	out := make([]Message, 0, len(Channels))
	for _, ch := range Channels {
		if _, ok := c.tmpls[ch]; !ok {
			continue
		}
		msg, err := c.Compose(ch, s)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

func recipient(channel Channel, s Student) (string, bool) {
	switch channel {
	case Notification:
		return s.StudentID, false
	case StudentEmail:
		return strings.TrimSpace(s.Email), false
	case ParentEmail:
		if v := strings.TrimSpace(s.ParentEmail); v != "" {
			return v, false
		}
		return PlaceholderParentEmail, true
	case ParentSMS:
		if v := strings.TrimSpace(s.ParentPhone); v != "" {
			return v, false
		}
		return PlaceholderParentPhone, true
	}
	return "", false
}
