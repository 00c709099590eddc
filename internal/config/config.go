package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/kursadbilgin/absence-notifier/internal/attendance"
	"github.com/kursadbilgin/absence-notifier/internal/domain"
)

const (
	TransportSMTP    = "smtp"
	TransportWebhook = "webhook"
)

type Config struct {
	APIPort         int    `env:"API_PORT,default=5000"`
	LogLevel        string `env:"LOG_LEVEL,default=info"`
	UploadDir       string `env:"UPLOAD_DIR,default=uploads"`
	MaxUploadBytes  int    `env:"MAX_UPLOAD_BYTES,default=10485760"`
	DuplicatePolicy string `env:"DUPLICATE_POLICY,default=last"`

	MailTransport      string `env:"MAIL_TRANSPORT,default=smtp"`
	SMTPHost           string `env:"SMTP_HOST,default=smtp.gmail.com"`
	SMTPPort           int    `env:"SMTP_PORT,default=587"`
	SMTPUsername       string `env:"SMTP_USERNAME"`
	SMTPPassword       string `env:"SMTP_PASSWORD"`
	MailFrom           string `env:"MAIL_FROM"`
	SMTPTimeoutSeconds int    `env:"SMTP_TIMEOUT_SECONDS,default=30"`
	WebhookURL         string `env:"WEBHOOK_URL"`

	DatabaseDSN     string `env:"DATABASE_DSN"`
	RedisURL        string `env:"REDIS_URL"`
	RateLimitPerSec int    `env:"RATE_LIMIT_PER_SEC,default=5"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.MailTransport = strings.ToLower(strings.TrimSpace(cfg.MailTransport))
	if strings.TrimSpace(cfg.MailFrom) == "" {
		cfg.MailFrom = cfg.SMTPUsername
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings each mail transport depends on.
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("%w: API_PORT must be between 1 and 65535", domain.ErrValidation)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("%w: MAX_UPLOAD_BYTES must be positive", domain.ErrValidation)
	}
	if strings.TrimSpace(c.UploadDir) == "" {
		return fmt.Errorf("%w: UPLOAD_DIR is required", domain.ErrValidation)
	}
	if _, err := attendance.ParseDuplicatePolicy(c.DuplicatePolicy); err != nil {
		return err
	}
	if c.RateLimitPerSec < 0 {
		return fmt.Errorf("%w: RATE_LIMIT_PER_SEC must not be negative", domain.ErrValidation)
	}

	switch c.MailTransport {
	case TransportSMTP:
		if strings.TrimSpace(c.SMTPHost) == "" {
			return fmt.Errorf("%w: SMTP_HOST is required for smtp transport", domain.ErrValidation)
		}
		if strings.TrimSpace(c.SMTPUsername) == "" || c.SMTPPassword == "" {
			return fmt.Errorf("%w: SMTP_USERNAME and SMTP_PASSWORD are required for smtp transport", domain.ErrValidation)
		}
		if strings.TrimSpace(c.MailFrom) == "" {
			return fmt.Errorf("%w: MAIL_FROM is required for smtp transport", domain.ErrValidation)
		}
	case TransportWebhook:
		if _, err := url.ParseRequestURI(strings.TrimSpace(c.WebhookURL)); err != nil {
			return fmt.Errorf("%w: WEBHOOK_URL must be a valid URL for webhook transport", domain.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unsupported MAIL_TRANSPORT %q", domain.ErrValidation, c.MailTransport)
	}

	return nil
}

func (c *Config) SMTPTimeout() time.Duration {
	return time.Duration(c.SMTPTimeoutSeconds) * time.Second
}

// SenderIdentity names the account that sends mail: the from address for smtp,
// the webhook host for webhook.
func (c *Config) SenderIdentity() string {
	switch c.MailTransport {
	case TransportWebhook:
		parsed, err := url.Parse(strings.TrimSpace(c.WebhookURL))
		if err != nil {
			return ""
		}
		return parsed.Host
	default:
		if from := strings.TrimSpace(c.MailFrom); from != "" {
			return from
		}
		return strings.TrimSpace(c.SMTPUsername)
	}
}

func (c *Config) PersistenceEnabled() bool {
	return strings.TrimSpace(c.DatabaseDSN) != ""
}

func (c *Config) RateLimitEnabled() bool {
	return strings.TrimSpace(c.RedisURL) != "" && c.RateLimitPerSec > 0
}
