// Package mail delivers digest emails.
//
// A Sender is a transport; Notifier sits on top of one and turns delivery failures into a
// logged boolean so a batch caller never has to handle transport errors itself.
package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// DigestSubject is the subject line of every digest email.
const DigestSubject = "PyPanchang: Your Daily Panchang"

const digestText = "Your daily panchang is attached as HTML. Open this email in an HTML-capable client to read it."

// ErrSend is wrapped by every transport delivery failure.
var ErrSend = errors.New("mail: send failed")

// Message is a single outgoing email.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// Sender delivers one message. Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Notifier sends digests through a Sender.
type Notifier struct {
	sender Sender
	logger *slog.Logger
}

func NewNotifier(sender Sender, logger *slog.Logger) *Notifier {
	return &Notifier{sender: sender, logger: logger}
}

// SendDigest sends html to the address to and reports whether delivery succeeded.
// Failures are logged, never returned.
func (n *Notifier) SendDigest(ctx context.Context, to, html string) bool {
	err := n.sender.Send(ctx, Message{
		To:       to,
		Subject:  DigestSubject,
		HTMLBody: html,
		TextBody: digestText,
	})
	if err != nil {
		n.logger.Error("failed to send digest",
			slog.String("to", to),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// Transport names accepted by NewSender.
const (
	ProviderSendGrid = "sendgrid"
	ProviderSMTP     = "smtp"
	ProviderLog      = "log"
)

// Config selects and configures a transport.
type Config struct {
	Provider    string
	SendGridKey string
	From        string
	// SendGridHost overrides the API host, for tests and proxies.
	SendGridHost string
	SMTP         SMTPConfig
}

// NewSender builds the transport named by cfg.Provider. An empty provider means the log
// transport.
func NewSender(cfg Config, logger *slog.Logger) (Sender, error) {
	switch cfg.Provider {
	case ProviderSendGrid:
		s, err := NewSendGridSender(cfg.SendGridKey, cfg.From, cfg.SendGridHost)
		if err != nil {
			return nil, err
		}
		return s, nil
	case ProviderSMTP:
		s, err := NewSMTPSender(cfg.SMTP, cfg.From)
		if err != nil {
			return nil, err
		}
		return s, nil
	case ProviderLog, "":
		return NewLogSender(logger), nil
	default:
		return nil, fmt.Errorf("mail: unknown provider %q", cfg.Provider)
	}
}
