package mail

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const sendEndpoint = "/v3/mail/send"

// SendGridSender delivers through the SendGrid v3 API.
type SendGridSender struct {
	apiKey string
	from   *sgmail.Email
	// host overrides the API host; empty means api.sendgrid.com.
	host string
}

// NewSendGridSender parses from as an RFC 5322 address ("Name <addr>" or a bare address).
func NewSendGridSender(apiKey, from, host string) (*SendGridSender, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("mail: sendgrid api key is required")
	}
	addr, err := sgmail.ParseEmail(from)
	if err != nil {
		return nil, fmt.Errorf("mail: parsing from address %q: %w", from, err)
	}
	return &SendGridSender{apiKey: apiKey, from: addr, host: host}, nil
}

// Send posts msg. A status of 300 or above is treated as a failure.
func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	to, err := sgmail.ParseEmail(msg.To)
	if err != nil {
		return fmt.Errorf("%w: parsing recipient %q: %w", ErrSend, msg.To, err)
	}

	m := sgmail.NewSingleEmail(s.from, msg.Subject, to, msg.TextBody, msg.HTMLBody)

	// The client carries the request body, so each send gets its own.
	client := sendgrid.NewSendClient(s.apiKey)
	if s.host != "" {
		client.BaseURL = s.host + sendEndpoint
	}

	resp, err := client.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSend, err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: sendgrid returned status %d: %s", ErrSend, resp.StatusCode, resp.Body)
	}
	return nil
}
