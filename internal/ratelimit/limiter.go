package ratelimit

import (
	"context"
	"strings"
)

// RateLimiter throttles outbound sends per bucket (one bucket per sender account).
type RateLimiter interface {
	Allow(ctx context.Context, bucket string) (bool, error)
	Wait(ctx context.Context, bucket string) error
}

// SenderBucket names the bucket for one sender account on a transport, e.g.
// "smtp:coordinator@example.com". An empty sender falls back to the transport.
func SenderBucket(transport, sender string) string {
	transport = strings.ToLower(strings.TrimSpace(transport))
	sender = strings.ToLower(strings.TrimSpace(sender))
	if sender == "" {
		return transport
	}
	return transport + ":" + sender
}

// Unlimited never throttles. It is used when no shared limiter is configured.
type Unlimited struct{}

var _ RateLimiter = Unlimited{}

func (Unlimited) Allow(context.Context, string) (bool, error) { return true, nil }

func (Unlimited) Wait(ctx context.Context, _ string) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
