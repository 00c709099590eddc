package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/absence-notifier/internal/domain"
	"github.com/wneessen/go-mail"
)

const (
	defaultSMTPPort    = 587
	defaultSMTPTimeout = 30 * time.Second
	smtpStatusOK       = 250
)

// SMTPConfig holds the mail server settings and credentials.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

type mailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPProvider delivers notifications over SMTP with mandatory STARTTLS.
// Every Send dials a fresh connection and closes it once the message is handed off.
type SMTPProvider struct {
	from      string
	newClient func() (mailSender, error)
}

func NewSMTPProvider(cfg SMTPConfig) (*SMTPProvider, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = defaultSMTPPort
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid smtp port %d", cfg.Port)
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("sender address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTimeout(cfg.Timeout),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	return &SMTPProvider{
		from: strings.TrimSpace(cfg.From),
		newClient: func() (mailSender, error) {
			return mail.NewClient(host, opts...)
		},
	}, nil
}

func (p *SMTPProvider) Send(ctx context.Context, notification domain.Notification) (*ProviderResponse, error) {
	if p == nil || p.newClient == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}
	if err := notification.Validate(); err != nil {
		return nil, fmt.Errorf("invalid notification: %w", err)
	}

	msg, err := p.buildMessage(notification)
	if err != nil {
		return nil, err
	}

	client, err := p.newClient()
	if err != nil {
		return nil, &ProviderError{
			Recipient: notification.Recipient,
			Message:   "failed to create smtp client",
			Cause:     err,
		}
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return nil, &ProviderError{
			Recipient: notification.Recipient,
			Message:   "smtp delivery failed",
			Transient: isTransientSMTPError(err),
			Cause:     err,
		}
	}

	return &ProviderResponse{
		StatusCode: smtpStatusOK,
		MessageID:  firstHeader(msg, mail.HeaderMessageID),
	}, nil
}

func (p *SMTPProvider) buildMessage(notification domain.Notification) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(p.from); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(notification.Recipient); err != nil {
		return nil, &ProviderError{
			Recipient: notification.Recipient,
			Message:   "invalid recipient address",
			Cause:     err,
		}
	}
	msg.Subject(notification.Subject)
	msg.SetBodyString(mail.TypeTextPlain, notification.Body)
	msg.SetMessageID()

	return msg, nil
}

func isTransientSMTPError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	var sendErr *mail.SendError
	if errors.As(err, &sendErr) {
		return sendErr.IsTemp()
	}

	return true
}

func firstHeader(msg *mail.Msg, header mail.Header) string {
	values := msg.GetGenHeader(header)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
