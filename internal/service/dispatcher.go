package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/absence-notifier/internal/domain"
	"github.com/kursadbilgin/absence-notifier/internal/notify"
	"github.com/kursadbilgin/absence-notifier/internal/observability"
	"github.com/kursadbilgin/absence-notifier/internal/provider"
	"github.com/kursadbilgin/absence-notifier/internal/ratelimit"
	"github.com/kursadbilgin/absence-notifier/internal/repository"
	"go.uber.org/zap"
)

const (
	reasonInvalidRecipient = "invalid_recipient"
	reasonRateLimiter      = "rate_limiter_error"

	missingEmailLabel = "(missing email)"
)

// FailedRecipient is a learner whose notification could not be delivered.
type FailedRecipient struct {
	Email       string `json:"email"`
	StudentName string `json:"studentName"`
	Reason      string `json:"reason"`
}

// DispatchResult holds the per-recipient outcome of one dispatch run.
type DispatchResult struct {
	Sent   []string
	Failed []FailedRecipient
}

func (r DispatchResult) SentCount() int   { return len(r.Sent) }
func (r DispatchResult) FailedCount() int { return len(r.Failed) }

// Summary renders the human-readable outcome returned to the uploader.
func (r DispatchResult) Summary() string {
	summary := fmt.Sprintf("✅ Emails sent to %d learner(s).", len(r.Sent))
	if len(r.Failed) == 0 {
		return summary
	}

	emails := make([]string, 0, len(r.Failed))
	for _, failed := range r.Failed {
		email := failed.Email
		if email == "" {
			email = missingEmailLabel
		}
		emails = append(emails, email)
	}

	return fmt.Sprintf("%s ⚠️ Failed to notify %d learner(s): %s.", summary, len(r.Failed), strings.Join(emails, ", "))
}

// Dispatcher renders and sends one notification per absence record, in order.
// A failed recipient never stops the loop; only context cancellation does.
type Dispatcher struct {
	provider    provider.Provider
	rateLimiter ratelimit.RateLimiter
	attempts    repository.AttemptRepository
	logger      *zap.Logger
	metrics     *observability.Metrics
	transport   string
	bucket      string
	now         func() time.Time
}

func NewDispatcher(
	provider provider.Provider,
	rateLimiter ratelimit.RateLimiter,
	transport string,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if provider == nil {
		return nil, fmt.Errorf("mail provider is required")
	}
	if rateLimiter == nil {
		rateLimiter = ratelimit.Unlimited{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport = strings.ToLower(strings.TrimSpace(transport))
	if transport == "" {
		transport = "unknown"
	}

	return &Dispatcher{
		provider:    provider,
		rateLimiter: rateLimiter,
		logger:      logger,
		transport:   transport,
		bucket:      transport,
		now:         time.Now,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// SetSender scopes rate limiting to one sender account so distinct senders
// sharing a limiter keep separate windows.
func (d *Dispatcher) SetSender(sender string) {
	if d == nil {
		return
	}
	d.bucket = ratelimit.SenderBucket(d.transport, sender)
}

// SetAttemptRepository enables the per-recipient audit trail.
func (d *Dispatcher) SetAttemptRepository(attempts repository.AttemptRepository) {
	if d == nil {
		return
	}
	d.attempts = attempts
}

// Dispatch sends a notification to every record. The batch id for the audit
// trail is read from ctx (see observability.WithBatchID).
func (d *Dispatcher) Dispatch(ctx context.Context, records []domain.AbsenceRecord, sessionName string) DispatchResult {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := observability.WithContextLogger(d.logger, ctx)
	result := DispatchResult{
		Sent:   make([]string, 0, len(records)),
		Failed: make([]FailedRecipient, 0),
	}

	for i, record := range records {
		if err := ctx.Err(); err != nil {
			logger.Warn("dispatch interrupted",
				zap.Int("remaining", len(records)-i),
				zap.Error(err),
			)
			for _, rest := range records[i:] {
				d.fail(ctx, &result, rest, err, provider.FailureReason(err))
			}
			break
		}

		notification := notify.Render(record, sessionName, d.now())
		if err := d.send(ctx, notification); err != nil {
			reason := failureReason(err)
			logger.Warn("absence notification failed",
				zap.String("recipient", record.Email),
				zap.String("reason", reason),
				zap.Error(err),
			)
			d.fail(ctx, &result, record, err, reason)
			continue
		}

		logger.Info("absence notification sent",
			zap.String("recipient", record.Email),
			zap.Int("absences", len(record.AbsenceDates)),
		)
		result.Sent = append(result.Sent, record.Email)
		d.metrics.IncNotificationSent(d.transport)
		d.recordAttempt(ctx, record, nil)
	}

	return result
}

func (d *Dispatcher) send(ctx context.Context, notification domain.Notification) error {
	if err := notification.Validate(); err != nil {
		return err
	}
	if err := d.rateLimiter.Wait(ctx, d.bucket); err != nil {
		return &rateLimitError{cause: err}
	}

	sendStart := d.now()
	_, err := d.provider.Send(ctx, notification)
	d.metrics.ObserveNotificationSendDuration(d.transport, d.now().Sub(sendStart))

	return err
}

func (d *Dispatcher) fail(ctx context.Context, result *DispatchResult, record domain.AbsenceRecord, err error, reason string) {
	result.Failed = append(result.Failed, FailedRecipient{
		Email:       record.Email,
		StudentName: record.StudentName,
		Reason:      err.Error(),
	})
	d.metrics.IncNotificationFailed(d.transport, reason)
	d.recordAttempt(ctx, record, err)
}

func (d *Dispatcher) recordAttempt(ctx context.Context, record domain.AbsenceRecord, sendErr error) {
	if d.attempts == nil {
		return
	}
	batchID, ok := observability.BatchIDFromContext(ctx)
	if !ok {
		return
	}

	attempt := &domain.DispatchAttempt{
		ID:           uuid.NewString(),
		BatchID:      batchID,
		Recipient:    record.Email,
		StudentName:  record.StudentName,
		AbsenceDates: record.AbsenceDates,
		Status:       domain.StatusSent,
		CreatedAt:    d.now().UTC(),
	}
	if sendErr != nil {
		value := sendErr.Error()
		attempt.Status = domain.StatusFailed
		attempt.Error = &value
	}

	// The upload may have been cancelled; the audit row is still written.
	if err := d.attempts.Create(context.WithoutCancel(ctx), attempt); err != nil {
		observability.WithContextLogger(d.logger, ctx).Error("failed to record dispatch attempt",
			zap.String("recipient", record.Email),
			zap.Error(err),
		)
	}
}

type rateLimitError struct {
	cause error
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limiter wait failed: %v", e.cause)
}

func (e *rateLimitError) Unwrap() error { return e.cause }

func failureReason(err error) string {
	var limitErr *rateLimitError
	switch {
	case errors.Is(err, domain.ErrValidation):
		return reasonInvalidRecipient
	case errors.As(err, &limitErr) && !errors.Is(err, context.Canceled):
		return reasonRateLimiter
	default:
		return provider.FailureReason(err)
	}
}
