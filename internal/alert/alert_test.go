package alert

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iancossa/attendance-fullstack/internal/logging"
	"github.com/iancossa/attendance-fullstack/internal/notify"
	"github.com/iancossa/attendance-fullstack/internal/risk"
)

func student() Student {
	return Student{
		ID:                  "6f1c",
		StudentID:           "STU-0042",
		Name:                "Amina Njeri",
		Email:               "amina@uni.test",
		AttendanceRate:      58.3,
		ConsecutiveAbsences: 4,
		ParentEmail:         "guardian@home.test",
		ParentPhone:         "+254700000001",
	}
}

func newComposer(t *testing.T) *Composer {
	t.Helper()
	c, err := NewComposer(nil)
	require.NoError(t, err)
	return c
}

func TestCompose(t *testing.T) {
	c := newComposer(t)
	s := student()

	tests := []struct {
		channel   Channel
		recipient string
		subject   bool
	}{
		{Notification, "STU-0042", false},
		{StudentEmail, "amina@uni.test", true},
		{ParentEmail, "guardian@home.test", true},
		{ParentSMS, "+254700000001", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.channel), func(t *testing.T) {
			msg, err := c.Compose(tt.channel, s)
			require.NoError(t, err)
			assert.Equal(t, tt.channel, msg.Channel)
			assert.Equal(t, tt.recipient, msg.Recipient)
			assert.False(t, msg.Placeholder)
			assert.Equal(t, risk.Critical, msg.Severity)
			assert.NotEmpty(t, msg.ID)
			assert.Equal(t, tt.subject, msg.Subject != "")
			assert.Contains(t, msg.Body, "Amina Njeri")
			assert.Contains(t, msg.Body, "58.3%")
			assert.Contains(t, msg.Body, "STU-0042")
			assert.Contains(t, msg.Body, "4 consecutive")
		})
	}
}

func TestComposeUnknownChannel(t *testing.T) {
	_, err := newComposer(t).Compose("fax", student())
	assert.ErrorIs(t, err, ErrUnknownChannel)
}

func TestComposeParentPlaceholders(t *testing.T) {
	c := newComposer(t)
	s := student()
	s.ParentEmail = ""
	s.ParentPhone = "  "

	msg, err := c.Compose(ParentEmail, s)
	require.NoError(t, err)
	assert.True(t, msg.Placeholder)
	assert.Equal(t, PlaceholderParentEmail, msg.Recipient)

	msg, err = c.Compose(ParentSMS, s)
	require.NoError(t, err)
	assert.True(t, msg.Placeholder)
	assert.Equal(t, PlaceholderParentPhone, msg.Recipient)
}

func TestPreviewRendersEveryChannel(t *testing.T) {
	msgs, err := newComposer(t).Preview(student())
	require.NoError(t, err)
	require.Len(t, msgs, len(Channels))
	for i, ch := range Channels {
		assert.Equal(t, ch, msgs[i].Channel)
	}
}

func TestLoadTemplatesOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("parent-sms:\n  body: \"{{.Name}} at {{.Rate}}%\"\n"), 0o600))

	tmpls, err := LoadTemplates(path)
	require.NoError(t, err)
	c, err := NewComposer(tmpls)
	require.NoError(t, err)

	msg, err := c.Compose(ParentSMS, student())
	require.NoError(t, err)
	assert.Equal(t, "Amina Njeri at 58.3%", msg.Body)

	msg, err = c.Compose(StudentEmail, student())
	require.NoError(t, err)
	assert.Contains(t, msg.Body, "academic advisor")
}

func TestLoadTemplatesRejectsUnknownChannel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pigeon:\n  body: coo\n"), 0o600))
	_, err := LoadTemplates(path)
	assert.ErrorIs(t, err, ErrUnknownChannel)
}

func TestComposeMissingKeyFails(t *testing.T) {
	c, err := NewComposer(Templates{Notification: {Body: "{{.Nope}}"}})
	require.NoError(t, err)
	_, err = c.Compose(Notification, student())
	assert.Error(t, err)
}

func TestDispatcherSend(t *testing.T) {
	c := newComposer(t)
	feed := notify.NewMemory(10)
	console := NewConsole("Attendance", logging.Discard())
	d := NewDispatcher(logging.Discard()).
		Register(NotificationSender{Notifier: feed}, Notification).
		Register(console, StudentEmail, ParentEmail)

	ctx := context.Background()
	for _, ch := range []Channel{Notification, StudentEmail, ParentEmail} {
		msg, err := c.Compose(ch, student())
		require.NoError(t, err)
		require.NoError(t, d.Send(ctx, msg))
	}

	events, err := feed.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Message, "Amina Njeri")
	assert.Len(t, console.Sent(), 2)

	msg, err := c.Compose(ParentSMS, student())
	require.NoError(t, err)
	assert.ErrorIs(t, d.Send(ctx, msg), ErrNoSender)
}

func TestDispatcherRefusesPlaceholderAndEmptyRecipients(t *testing.T) {
	c := newComposer(t)
	var calls int
	d := NewDispatcher(nil).Register(SenderFunc(func(context.Context, Message) error {
		calls++
		return nil
	}), Channels...)

	s := student()
	s.ParentEmail = ""
	s.Email = ""

	msg, err := c.Compose(ParentEmail, s)
	require.NoError(t, err)
	assert.ErrorIs(t, d.Send(context.Background(), msg), ErrPlaceholderRecipient)

	msg, err = c.Compose(StudentEmail, s)
	require.NoError(t, err)
	assert.ErrorIs(t, d.Send(context.Background(), msg), ErrNoRecipient)
	assert.Zero(t, calls)
}

func TestDispatcherPropagatesSenderError(t *testing.T) {
	boom := errors.New("gateway down")
	d := NewDispatcher(nil).Register(SenderFunc(func(context.Context, Message) error { return boom }), ParentSMS)
	msg, err := newComposer(t).Compose(ParentSMS, student())
	require.NoError(t, err)
	assert.ErrorIs(t, d.Send(context.Background(), msg), boom)
}

func TestSMSGateway(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	msg, err := newComposer(t).Compose(ParentSMS, student())
	require.NoError(t, err)
	require.NoError(t, NewSMSGateway(srv.URL+"/", "secret", "UNIV").Send(context.Background(), msg))
	assert.Equal(t, "+254700000001", got["to"])
	assert.Equal(t, "UNIV", got["from"])
	assert.Equal(t, msg.ID, got["reference"])
}

func TestSMSGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewSMSGateway(srv.URL, "", "UNIV").Send(context.Background(), Message{ID: "x", Recipient: "+1", Body: "hi"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "quota exceeded"))
}

func TestSendGridPreparesMail(t *testing.T) {
	sg := NewSendGrid("key", "Attendance", "noreply@uni.test")
	m := sg.prepare(Message{ID: "01H", Recipient: "amina@uni.test", Subject: "Low attendance", Body: "hello"})
	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "[Attendance] Low attendance", m.Personalizations[0].Subject)
	assert.Equal(t, "amina@uni.test", m.Personalizations[0].To[0].Address)
	assert.Equal(t, "noreply@uni.test", m.From.Address)
}
