package notification

import (
	"context"

	"github.com/core-tools/hsu-monitor/pkg/errors"
	"github.com/core-tools/hsu-monitor/pkg/logging"

	"gopkg.in/gomail.v2"
)

// Message is one notification email.
type Message struct {
	Subject   string
	HTMLBody  string
	Sender    string // display name
	Recipient string
}

// Mailer delivers a message. A nil error means the server accepted it.
type Mailer interface {
	Send(ctx context.Context, message Message) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
}

type smtpMailer struct {
	config SMTPConfig
	logger logging.Logger
}

// NewSMTPMailer returns a Mailer that authenticates as config.User and sends from that address.
func NewSMTPMailer(config SMTPConfig, logger logging.Logger) Mailer {
	return &smtpMailer{
		config: config,
		logger: logger,
	}
}

func (m *smtpMailer) Send(ctx context.Context, message Message) error {
	if m.config.User == "" || m.config.Password == "" {
		return errors.NewConfigurationError("SMTP credentials are not configured", nil).WithContext("host", m.config.Host)
	}
	if message.Recipient == "" {
		return errors.NewConfigurationError("recipient is not configured", nil)
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.config.User, message.Sender)
	msg.SetHeader("To", message.Recipient)
	msg.SetHeader("Subject", message.Subject)
	msg.SetBody("text/html", message.HTMLBody)

	dialer := gomail.NewDialer(m.config.Host, m.config.Port, m.config.User, m.config.Password)

	m.logger.Debugf("Sending email, host: %s, port: %d, recipient: %s", m.config.Host, m.config.Port, message.Recipient)

	// gomail has no context support, so the send is raced against ctx
	result := make(chan error, 1)
	go func() {
		result <- dialer.DialAndSend(msg)
	}()

	select {
	case err := <-result:
		if err != nil {
			return errors.NewNotificationError("failed to send email", err).
				WithContext("host", m.config.Host).
				WithContext("recipient", message.Recipient)
		}
		return nil
	case <-ctx.Done():
		return errors.NewTimeoutError("email send cancelled", ctx.Err()).WithContext("host", m.config.Host)
	}
}
