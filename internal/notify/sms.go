package notify

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// messageCreator is the part of the Twilio API client used for SMS.
type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// TwilioSMS delivers text messages through Twilio.
type TwilioSMS struct {
	api  messageCreator
	from string
}

// NewTwilioSMS returns a Twilio sender authenticated with the account
// SID and auth token.
func NewTwilioSMS(accountSID, authToken, from string) *TwilioSMS {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSMS{api: client.Api, from: from}
}

// SendSMS implements SMSSender. The Twilio client has no context support,
// so cancellation is only checked before the request.
func (t *TwilioSMS) SendSMS(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("notify: twilio: %w", err)
	}
	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(t.from)
	params.SetBody(body)

	if _, err := t.api.CreateMessage(params); err != nil {
		return fmt.Errorf("notify: twilio: %w", err)
	}
	return nil
}
