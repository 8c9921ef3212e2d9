// Package notify sends the account-created email.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wneessen/go-mail"
)

const (
	subject = "User Created"
	body    = "Hi, there! User account created successfully"
)

// Sender delivers a confirmation to one address.
type Sender interface {
	Send(ctx context.Context, to string) error
}

// SMTPConfig is the outgoing server. Secure selects implicit TLS (port 465);
// otherwise STARTTLS is used when the server offers it.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Secure   bool
}

// Mailer sends through SMTP. The sender address is the login user.
type Mailer struct {
	cfg SMTPConfig
}

var _ Sender = (*Mailer)(nil)

func NewMailer(cfg SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// New returns an SMTP mailer, or a sender that only logs when no host is set.
func New(cfg SMTPConfig, logger *slog.Logger) Sender {
	if cfg.Host == "" {
		logger.Warn("EMAIL_HOSTNAME not set, confirmation emails are disabled")
		return &logSender{logger: logger}
	}
	return NewMailer(cfg)
}

func (m *Mailer) buildMessage(to string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.Username); err != nil {
		return nil, fmt.Errorf("notify: setting sender: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("notify: setting recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

func (m *Mailer) Send(ctx context.Context, to string) error {
	msg, err := m.buildMessage(to)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
	}
	if m.cfg.Secure {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}

	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("notify: creating smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("notify: sending to %s: %w", to, err)
	}
	return nil
}

type logSender struct {
	logger *slog.Logger
}

func (s *logSender) Send(_ context.Context, to string) error {
	s.logger.Info("email skipped, no smtp host", slog.String("to", to))
	return nil
}
