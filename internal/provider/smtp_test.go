package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/wneessen/go-mail"
)

type fakeMailSender struct {
	sendFn func(ctx context.Context, messages ...*mail.Msg) error
}

func (f *fakeMailSender) DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error {
	if f.sendFn == nil {
		return nil
	}
	return f.sendFn(ctx, messages...)
}

func newTestSMTPProvider(t *testing.T, sender *fakeMailSender) *SMTPProvider {
	t.Helper()

	p, err := NewSMTPProvider(SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "mailer@example.com",
		Password: "secret",
		From:     "mailer@example.com",
	})
	if err != nil {
		t.Fatalf("NewSMTPProvider() error = %v", err)
	}

	p.newClient = func() (mailSender, error) {
		return sender, nil
	}

	return p
}

func TestNewSMTPProviderValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  SMTPConfig
	}{
		{name: "missing host", cfg: SMTPConfig{From: "a@example.com"}},
		{name: "invalid port", cfg: SMTPConfig{Host: "smtp.example.com", Port: 70000, From: "a@example.com"}},
		{name: "missing sender", cfg: SMTPConfig{Host: "smtp.example.com"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := NewSMTPProvider(tt.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSMTPProviderSendBuildsMessage(t *testing.T) {
	t.Parallel()

	var sent []*mail.Msg
	sender := &fakeMailSender{
		sendFn: func(ctx context.Context, messages ...*mail.Msg) error {
			sent = append(sent, messages...)
			return nil
		},
	}
	p := newTestSMTPProvider(t, sender)

	resp, err := p.Send(context.Background(), testNotification())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if resp.StatusCode != smtpStatusOK {
		t.Fatalf("StatusCode = %d, want %d", resp.StatusCode, smtpStatusOK)
	}
	if resp.MessageID == "" {
		t.Fatal("MessageID should be set")
	}

	if len(sent) != 1 {
		t.Fatalf("messages sent = %d, want 1", len(sent))
	}

	recipients, err := sent[0].GetRecipients()
	if err != nil {
		t.Fatalf("GetRecipients() error = %v", err)
	}
	if len(recipients) != 1 || recipients[0] != "alice@x.com" {
		t.Fatalf("recipients = %v, want [alice@x.com]", recipients)
	}
	if subject := sent[0].GetGenHeader(mail.HeaderSubject); len(subject) != 1 || subject[0] != "Absence Notification" {
		t.Fatalf("subject = %v, want [Absence Notification]", subject)
	}
}

func TestSMTPProviderSendFailureIsProviderError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		err           error
		wantTransient bool
	}{
		{name: "connection error is transient", err: errors.New("dial tcp: connection refused"), wantTransient: true},
		{name: "canceled context is permanent", err: context.Canceled, wantTransient: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := newTestSMTPProvider(t, &fakeMailSender{
				sendFn: func(ctx context.Context, messages ...*mail.Msg) error {
					return tt.err
				},
			})

			_, err := p.Send(context.Background(), testNotification())

			var providerErr *ProviderError
			if !errors.As(err, &providerErr) {
				t.Fatalf("Send() error = %v, want ProviderError", err)
			}
			if got := IsTransient(err); got != tt.wantTransient {
				t.Fatalf("IsTransient() = %v, want %v", got, tt.wantTransient)
			}
		})
	}
}

func TestSMTPProviderClientCreationFailure(t *testing.T) {
	t.Parallel()

	p := newTestSMTPProvider(t, &fakeMailSender{})
	p.newClient = func() (mailSender, error) {
		return nil, errors.New("bad option")
	}

	_, err := p.Send(context.Background(), testNotification())
	if err == nil {
		t.Fatal("expected error")
	}
	if IsTransient(err) {
		t.Fatal("client creation failure should be permanent")
	}
}

func TestFailureReason(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "canceled", err: context.Canceled, want: "canceled"},
		{name: "transient", err: &ProviderError{Transient: true}, want: "transient_error"},
		{name: "permanent", err: &ProviderError{}, want: "permanent_error"},
		{name: "deadline", err: context.DeadlineExceeded, want: "transient_error"},
	}

	for _, tt := range tests {
		if got := FailureReason(tt.err); got != tt.want {
			t.Errorf("%s: FailureReason() = %q, want %q", tt.name, got, tt.want)
		}
	}
}
