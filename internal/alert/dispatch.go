package alert

import (
	"context"
	"fmt"
	"strings"

	"github.com/iancossa/attendance-fullstack/internal/logging"
	"github.com/iancossa/attendance-fullstack/internal/metrics"
	"github.com/iancossa/attendance-fullstack/internal/notify"
)

// Sender delivers a composed message over one transport.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Dispatcher routes messages to the sender registered for their channel.
type Dispatcher struct {
	senders map[Channel]Sender
	logger  logging.Logger
}

// NewDispatcher creates a dispatcher with no senders.
func NewDispatcher(logger logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Dispatcher{senders: make(map[Channel]Sender), logger: logger}
}

// Register sets the sender for each given channel. Call before serving.
func (d *Dispatcher) Register(s Sender, channels ...Channel) *Dispatcher {
	for _, ch := range channels {
		d.senders[ch] = s
	}
	return d
}

// Send delivers msg once. Messages addressed to placeholder contact data are refused.
func (d *Dispatcher) Send(ctx context.Context, msg Message) error {
	if !msg.Channel.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, msg.Channel)
	}
	if msg.Placeholder {
		metrics.Alerts.WithLabelValues(string(msg.Channel), "refused").Inc()
		return ErrPlaceholderRecipient
	}
	if strings.TrimSpace(msg.Recipient) == "" {
		metrics.Alerts.WithLabelValues(string(msg.Channel), "refused").Inc()
		return ErrNoRecipient
	}
	s, ok := d.senders[msg.Channel]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSender, msg.Channel)
	}
	if err := s.Send(ctx, msg); err != nil {
		metrics.Alerts.WithLabelValues(string(msg.Channel), "failed").Inc()
		d.logger.Error("alert send failed", err, map[string]interface{}{"id": msg.ID, "channel": msg.Channel})
		return err
	}
	metrics.Alerts.WithLabelValues(string(msg.Channel), "sent").Inc()
	d.logger.Info("alert sent", map[string]interface{}{"id": msg.ID, "channel": msg.Channel, "student_id": msg.StudentID})
	return nil
}

// NotificationSender raises in-app notifications.
type NotificationSender struct {
	Notifier notify.Notifier
}

func (s NotificationSender) Send(ctx context.Context, msg Message) error {
	s.Notifier.Notify(ctx, notify.Event{Message: msg.Body, Type: notify.Error})
	return nil
}
