package provider

import (
	"context"

	"github.com/kursadbilgin/absence-notifier/internal/domain"
)

// Provider is the outbound mail delivery port.
type Provider interface {
	Send(ctx context.Context, notification domain.Notification) (*ProviderResponse, error)
}

// ProviderResponse stores transport metadata for the dispatch audit trail.
type ProviderResponse struct {
	StatusCode int
	Body       string
	MessageID  string
}
