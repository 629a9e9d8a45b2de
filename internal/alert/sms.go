package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SMSGateway posts parent SMS alerts to an HTTP gateway.
type SMSGateway struct {
	BaseURL string
	Token   string
	Sender  string
	HTTP    *http.Client
}

var _ Sender = (*SMSGateway)(nil)

// NewSMSGateway creates a sender for the HTTP gateway at baseURL.
func NewSMSGateway(baseURL, token, sender string) *SMSGateway {
	return &SMSGateway{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Sender:  sender,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (g *SMSGateway) Send(ctx context.Context, msg Message) error {
	body, _ := json.Marshal(map[string]string{
		"from":      g.Sender,
		"to":        msg.Recipient,
		"text":      msg.Body,
		"reference": msg.ID,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}

	resp, err := g.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("sms gateway error %s: %s", resp.Status, string(b))
	}
	return nil
}
