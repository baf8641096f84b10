package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendGridHost     = "https://api.sendgrid.com"
	sendGridEndpoint = "/v3/mail/send"
)

// SendGridEmail delivers email through the SendGrid v3 API.
type SendGridEmail struct {
	apiKey string
	host   string
}

// NewSendGridEmail returns a SendGrid sender. An empty host uses the
// public API.
func NewSendGridEmail(apiKey, host string) *SendGridEmail {
	if host == "" {
		host = sendGridHost
	}
	return &SendGridEmail{apiKey: apiKey, host: host}
}

// SendEmail implements EmailSender.
func (s *SendGridEmail) SendEmail(ctx context.Context, e Email) error {
	m := mail.NewV3MailInit(
		mail.NewEmail("", e.From),
		e.Subject,
		mail.NewEmail("", e.To),
		mail.NewContent("text/html", e.HTML),
	)

	req := sendgrid.GetRequest(s.apiKey, sendGridEndpoint, s.host)
	req.Method = "POST"
	req.Body = mail.GetRequestBody(m)

	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("notify: sendgrid: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notify: sendgrid returned %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
