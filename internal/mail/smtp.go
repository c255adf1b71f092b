package mail

import (
	"context"
	"fmt"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// TLS modes for SMTPConfig.TLS.
const (
	SMTPStartTLS = "starttls"
	SMTPSSL      = "ssl"
	SMTPNoTLS    = "none"
)

const smtpTimeout = 30 * time.Second

// SMTPConfig describes a relay. Username empty means no authentication.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// TLS is one of SMTPStartTLS (the default), SMTPSSL or SMTPNoTLS.
	TLS string
}

// SMTPSender delivers through an SMTP relay. Every Send dials its own connection.
type SMTPSender struct {
	host string
	from string
	opts []gomail.Option
}

func NewSMTPSender(cfg SMTPConfig, from string) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("mail: smtp host is required")
	}
	if err := gomail.NewMsg().From(from); err != nil {
		return nil, fmt.Errorf("mail: parsing from address %q: %w", from, err)
	}

	opts := []gomail.Option{gomail.WithTimeout(smtpTimeout)}
	switch cfg.TLS {
	case SMTPStartTLS, "":
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	case SMTPSSL:
		opts = append(opts, gomail.WithSSL())
	case SMTPNoTLS:
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	default:
		return nil, fmt.Errorf("mail: unknown smtp tls mode %q", cfg.TLS)
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthAutoDiscover),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	if cfg.Port != 0 {
		opts = append(opts, gomail.WithPort(cfg.Port))
	}

	return &SMTPSender{host: cfg.Host, from: from, opts: opts}, nil
}

// Send builds a multipart/alternative message with the text body first.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m := gomail.NewMsg()
	if err := m.From(s.from); err != nil {
		return fmt.Errorf("%w: %w", ErrSend, err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("%w: parsing recipient %q: %w", ErrSend, msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.TextBody)
	m.AddAlternativeString(gomail.TypeTextHTML, msg.HTMLBody)

	client, err := gomail.NewClient(s.host, s.opts...)
	if err != nil {
		return fmt.Errorf("%w: configuring smtp client: %w", ErrSend, err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("%w: %w", ErrSend, err)
	}
	return nil
}
