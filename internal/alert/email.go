package alert

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/iancossa/attendance-fullstack/internal/logging"
)

var (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// SendGrid delivers email alerts through the SendGrid v3 API.
type SendGrid struct {
	key        string
	host       string
	from       *sgmail.Email
	subjPrefix string
}

var _ Sender = (*SendGrid)(nil)

// NewSendGrid creates a SendGrid email sender.
func NewSendGrid(key, appName, fromEmail string) *SendGrid {
	return &SendGrid{
		key:        key,
		host:       sendgridHost,
		from:       sgmail.NewEmail(appName, fromEmail),
		subjPrefix: "[" + appName + "] ",
	}
}

// WithHost points the sender at another API host (tests, regional endpoints).
func (s *SendGrid) WithHost(host string) *SendGrid {
	s.host = strings.TrimRight(host, "/")
	return s
}

func (s *SendGrid) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = s.subjPrefix + msg.Subject
	p.AddTos(sgmail.NewEmail("", msg.Recipient))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", msg.Body))
	m.SetHeader("X-Alert-ID", msg.ID)
	return m
}

func (s *SendGrid) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req := sendgrid.GetRequest(s.key, sendgridEndpoint, s.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(msg))

	res, err := sendgrid.API(req)
	if err != nil {
		return errors.Wrap(err, "sendgrid request")
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid error %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

// Console writes email alerts to the logger and keeps them for inspection.
type Console struct {
	logger     logging.Logger
	subjPrefix string

	mu   sync.Mutex
	sent []Message
}

var _ Sender = (*Console)(nil)

// NewConsole creates an email sender that only logs.
func NewConsole(appName string, logger logging.Logger) *Console {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Console{logger: logger, subjPrefix: "[" + appName + "] "}
}

func (c *Console) Send(_ context.Context, msg Message) error {
	body := new(strings.Builder)
	_, _ = fmt.Fprintf(body, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	_, _ = fmt.Fprintf(body, "To: %s\r\n", msg.Recipient)
	if msg.Subject != "" {
		_, _ = fmt.Fprintf(body, "Subject: %s\r\n", c.subjPrefix+msg.Subject)
	}
	_, _ = fmt.Fprintf(body, "\r\n%s\r\n", msg.Body)
	c.logger.Info("alert message "+string(msg.Channel)+"\n"+body.String())

	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()
	return nil
}

// Sent returns the messages delivered so far.
func (c *Console) Sent() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.sent...)
}
