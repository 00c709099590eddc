package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kursadbilgin/absence-notifier/internal/domain"
	"github.com/kursadbilgin/absence-notifier/internal/observability"
	"github.com/kursadbilgin/absence-notifier/internal/provider"
	"github.com/kursadbilgin/absence-notifier/internal/ratelimit"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var fixedNow = func() time.Time { return time.Date(2026, time.January, 15, 9, 0, 0, 0, time.UTC) }

func newTestDispatcher(t *testing.T, p provider.Provider, limiter ratelimit.RateLimiter) *Dispatcher {
	t.Helper()

	dispatcher, err := NewDispatcher(p, limiter, "smtp", zap.NewNop())
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	dispatcher.now = fixedNow
	return dispatcher
}

func TestDispatcherSendsEveryRecordInOrder(t *testing.T) {
	t.Parallel()

	var sent []domain.Notification
	providerClient := &fakeProvider{
		sendFn: func(ctx context.Context, n domain.Notification) (*provider.ProviderResponse, error) {
			sent = append(sent, n)
			return &provider.ProviderResponse{StatusCode: 250}, nil
		},
	}
	var buckets []string
	limiter := &fakeRateLimiter{
		waitFn: func(ctx context.Context, bucket string) error {
			buckets = append(buckets, bucket)
			return nil
		},
	}

	dispatcher := newTestDispatcher(t, providerClient, limiter)
	records := []domain.AbsenceRecord{
		{Email: "alice@x.com", StudentName: "Alice", AbsenceDates: []string{"12-01"}},
		{Email: "bob@x.com", StudentName: "Bob", AbsenceDates: []string{"12-01", "12-03"}},
	}

	result := dispatcher.Dispatch(context.Background(), records, "VLSI Design")

	if result.SentCount() != 2 || result.FailedCount() != 0 {
		t.Fatalf("sent=%d failed=%d, want 2/0", result.SentCount(), result.FailedCount())
	}
	if got := result.Summary(); got != "✅ Emails sent to 2 learner(s)." {
		t.Fatalf("Summary() = %q", got)
	}
	if len(sent) != 2 || sent[0].Recipient != "alice@x.com" || sent[1].Recipient != "bob@x.com" {
		t.Fatalf("send order = %+v, want alice then bob", sent)
	}
	if !strings.Contains(sent[1].Body, "12-01-2026, 12-03-2026") {
		t.Fatalf("body should carry year-stamped dates, got %q", sent[1].Body)
	}
	if !strings.Contains(sent[0].Body, "enrolled course VLSI Design") {
		t.Fatalf("body should carry the session name, got %q", sent[0].Body)
	}
	if len(buckets) != 2 || buckets[0] != "smtp" {
		t.Fatalf("rate limiter buckets = %v, want smtp per send", buckets)
	}
}

func TestDispatcherRateLimitsPerSender(t *testing.T) {
	t.Parallel()

	providerClient := &fakeProvider{
		sendFn: func(ctx context.Context, n domain.Notification) (*provider.ProviderResponse, error) {
			return &provider.ProviderResponse{StatusCode: 250}, nil
		},
	}
	var buckets []string
	limiter := &fakeRateLimiter{
		waitFn: func(ctx context.Context, bucket string) error {
			buckets = append(buckets, bucket)
			return nil
		},
	}

	first := newTestDispatcher(t, providerClient, limiter)
	first.SetSender("Coordinator@Example.com")
	second := newTestDispatcher(t, providerClient, limiter)
	second.SetSender("registrar@example.com")

	records := []domain.AbsenceRecord{{Email: "alice@x.com", StudentName: "Alice", AbsenceDates: []string{"12-01"}}}
	first.Dispatch(context.Background(), records, "VLSI Design")
	second.Dispatch(context.Background(), records, "VLSI Design")

	want := []string{"smtp:coordinator@example.com", "smtp:registrar@example.com"}
	if len(buckets) != len(want) || buckets[0] != want[0] || buckets[1] != want[1] {
		t.Fatalf("rate limiter buckets = %v, want %v", buckets, want)
	}
}

func TestDispatcherIsolatesRecipientFailures(t *testing.T) {
	t.Parallel()

	providerClient := &fakeProvider{
		sendFn: func(ctx context.Context, n domain.Notification) (*provider.ProviderResponse, error) {
			if n.Recipient == "bob@x.com" {
				return nil, &provider.ProviderError{Recipient: n.Recipient, Message: "mailbox unavailable"}
			}
			return &provider.ProviderResponse{}, nil
		},
	}

	dispatcher := newTestDispatcher(t, providerClient, nil)
	records := []domain.AbsenceRecord{
		{Email: "alice@x.com", StudentName: "Alice", AbsenceDates: []string{"12-01"}},
		{Email: "bob@x.com", StudentName: "Bob", AbsenceDates: []string{"12-01"}},
		{Email: "carol@x.com", StudentName: "Carol", AbsenceDates: []string{"12-02"}},
	}

	result := dispatcher.Dispatch(context.Background(), records, "")

	if strings.Join(result.Sent, ",") != "alice@x.com,carol@x.com" {
		t.Fatalf("sent = %v, want alice and carol", result.Sent)
	}
	if result.FailedCount() != 1 || result.Failed[0].Email != "bob@x.com" {
		t.Fatalf("failed = %+v, want bob", result.Failed)
	}
	want := "✅ Emails sent to 2 learner(s). ⚠️ Failed to notify 1 learner(s): bob@x.com."
	if got := result.Summary(); got != want {
		t.Fatalf("Summary() = %q, want %q", got, want)
	}
}

func TestDispatcherSkipsInvalidRecipients(t *testing.T) {
	t.Parallel()

	var sendCalls int
	providerClient := &fakeProvider{
		sendFn: func(ctx context.Context, n domain.Notification) (*provider.ProviderResponse, error) {
			sendCalls++
			return &provider.ProviderResponse{}, nil
		},
	}
	limiter := &fakeRateLimiter{
		waitFn: func(ctx context.Context, bucket string) error {
			t.Fatal("rate limiter should not be consulted for invalid recipients")
			return nil
		},
	}

	dispatcher := newTestDispatcher(t, providerClient, limiter)
	records := []domain.AbsenceRecord{
		{Email: "not-an-email", StudentName: "Dave", AbsenceDates: []string{"12-01"}},
		{Email: "", StudentName: "Eve", AbsenceDates: []string{"12-01"}},
	}

	result := dispatcher.Dispatch(context.Background(), records, "")

	if sendCalls != 0 {
		t.Fatalf("provider calls = %d, want 0", sendCalls)
	}
	if result.FailedCount() != 2 {
		t.Fatalf("failed = %d, want 2", result.FailedCount())
	}
	want := "✅ Emails sent to 0 learner(s). ⚠️ Failed to notify 2 learner(s): not-an-email, (missing email)."
	if got := result.Summary(); got != want {
		t.Fatalf("Summary() = %q, want %q", got, want)
	}
}

func TestDispatcherStopsOnCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sendCalls int
	providerClient := &fakeProvider{
		sendFn: func(ctx context.Context, n domain.Notification) (*provider.ProviderResponse, error) {
			sendCalls++
			cancel()
			return &provider.ProviderResponse{}, nil
		},
	}

	dispatcher := newTestDispatcher(t, providerClient, nil)
	records := []domain.AbsenceRecord{
		{Email: "alice@x.com", StudentName: "Alice", AbsenceDates: []string{"12-01"}},
		{Email: "bob@x.com", StudentName: "Bob", AbsenceDates: []string{"12-01"}},
		{Email: "carol@x.com", StudentName: "Carol", AbsenceDates: []string{"12-01"}},
	}

	result := dispatcher.Dispatch(ctx, records, "")

	if sendCalls != 1 {
		t.Fatalf("provider calls = %d, want 1", sendCalls)
	}
	if result.SentCount() != 1 || result.FailedCount() != 2 {
		t.Fatalf("sent=%d failed=%d, want 1/2", result.SentCount(), result.FailedCount())
	}
	for _, failed := range result.Failed {
		if failed.Reason != context.Canceled.Error() {
			t.Fatalf("failure reason = %q, want %q", failed.Reason, context.Canceled.Error())
		}
	}
}

func TestDispatcherRateLimiterFailureIsPerRecipient(t *testing.T) {
	t.Parallel()

	calls := 0
	limiter := &fakeRateLimiter{
		waitFn: func(ctx context.Context, bucket string) error {
			calls++
			if calls == 1 {
				return errors.New("redis unavailable")
			}
			return nil
		},
	}

	dispatcher := newTestDispatcher(t, &fakeProvider{}, limiter)
	records := []domain.AbsenceRecord{
		{Email: "alice@x.com", StudentName: "Alice", AbsenceDates: []string{"12-01"}},
		{Email: "bob@x.com", StudentName: "Bob", AbsenceDates: []string{"12-01"}},
	}

	result := dispatcher.Dispatch(context.Background(), records, "")

	if result.SentCount() != 1 || result.Sent[0] != "bob@x.com" {
		t.Fatalf("sent = %v, want bob", result.Sent)
	}
	if !strings.Contains(result.Failed[0].Reason, "rate limiter wait failed") {
		t.Fatalf("failure reason = %q", result.Failed[0].Reason)
	}
}

func TestDispatcherRecordsAttemptsForBatch(t *testing.T) {
	t.Parallel()

	var attempts []*domain.DispatchAttempt
	attemptRepo := &fakeAttemptRepo{
		createFn: func(ctx context.Context, a *domain.DispatchAttempt) error {
			attempts = append(attempts, a)
			return nil
		},
	}
	providerClient := &fakeProvider{
		sendFn: func(ctx context.Context, n domain.Notification) (*provider.ProviderResponse, error) {
			if n.Recipient == "bob@x.com" {
				return nil, errors.New("connection reset")
			}
			return &provider.ProviderResponse{}, nil
		},
	}

	dispatcher := newTestDispatcher(t, providerClient, nil)
	dispatcher.SetAttemptRepository(attemptRepo)

	ctx := observability.WithBatchID(context.Background(), "batch-1")
	dispatcher.Dispatch(ctx, []domain.AbsenceRecord{
		{Email: "alice@x.com", StudentName: "Alice", AbsenceDates: []string{"12-01"}},
		{Email: "bob@x.com", StudentName: "Bob", AbsenceDates: []string{"12-02"}},
	}, "")

	if len(attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(attempts))
	}
	if attempts[0].BatchID != "batch-1" || attempts[0].Status != domain.StatusSent || attempts[0].Error != nil {
		t.Fatalf("first attempt = %+v, want SENT for batch-1", attempts[0])
	}
	if attempts[1].Status != domain.StatusFailed || attempts[1].Error == nil || *attempts[1].Error != "connection reset" {
		t.Fatalf("second attempt = %+v, want FAILED with error", attempts[1])
	}
	if !attempts[1].CreatedAt.Equal(fixedNow()) {
		t.Fatalf("created at = %v, want %v", attempts[1].CreatedAt, fixedNow())
	}
}

func TestDispatcherAttemptStoreErrorDoesNotFailSend(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.ErrorLevel)
	dispatcher, err := NewDispatcher(&fakeProvider{}, nil, "webhook", zap.New(core))
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	dispatcher.SetAttemptRepository(&fakeAttemptRepo{
		createFn: func(ctx context.Context, a *domain.DispatchAttempt) error {
			return errors.New("db down")
		},
	})

	ctx := observability.WithBatchID(context.Background(), "batch-2")
	result := dispatcher.Dispatch(ctx, []domain.AbsenceRecord{
		{Email: "alice@x.com", StudentName: "Alice", AbsenceDates: []string{"12-01"}},
	}, "")

	if result.SentCount() != 1 {
		t.Fatalf("sent = %d, want 1", result.SentCount())
	}
	entries := recorded.FilterMessage("failed to record dispatch attempt").All()
	if len(entries) != 1 {
		t.Fatalf("error log entries = %d, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["batchId"]; got != "batch-2" {
		t.Fatalf("batchId = %v, want batch-2", got)
	}
}

func TestFailureReason(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "invalid recipient", err: domain.ErrValidation, want: reasonInvalidRecipient},
		{name: "rate limiter", err: &rateLimitError{cause: errors.New("boom")}, want: reasonRateLimiter},
		{name: "rate limiter cancelled", err: &rateLimitError{cause: context.Canceled}, want: "canceled"},
		{name: "transient provider", err: &provider.ProviderError{Transient: true}, want: "transient_error"},
		{name: "permanent provider", err: &provider.ProviderError{}, want: "permanent_error"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := failureReason(tt.err); got != tt.want {
				t.Fatalf("failureReason() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewDispatcherRequiresProvider(t *testing.T) {
	t.Parallel()

	if _, err := NewDispatcher(nil, nil, "smtp", nil); err == nil {
		t.Fatal("expected error for nil provider")
	}
}

type fakeProvider struct {
	sendFn func(ctx context.Context, notification domain.Notification) (*provider.ProviderResponse, error)
}

func (f *fakeProvider) Send(ctx context.Context, notification domain.Notification) (*provider.ProviderResponse, error) {
	if f.sendFn != nil {
		return f.sendFn(ctx, notification)
	}
	return &provider.ProviderResponse{}, nil
}

type fakeRateLimiter struct {
	allowFn func(ctx context.Context, bucket string) (bool, error)
	waitFn  func(ctx context.Context, bucket string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, bucket string) (bool, error) {
	if f.allowFn != nil {
		return f.allowFn(ctx, bucket)
	}
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, bucket string) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, bucket)
	}
	return nil
}

var _ ratelimit.RateLimiter = (*fakeRateLimiter)(nil)

type fakeAttemptRepo struct {
	createFn        func(ctx context.Context, a *domain.DispatchAttempt) error
	listByBatchIDFn func(ctx context.Context, batchID string) ([]domain.DispatchAttempt, error)
}

func (f *fakeAttemptRepo) Create(ctx context.Context, a *domain.DispatchAttempt) error {
	if f.createFn != nil {
		return f.createFn(ctx, a)
	}
	return nil
}

func (f *fakeAttemptRepo) ListByBatchID(ctx context.Context, batchID string) ([]domain.DispatchAttempt, error) {
	if f.listByBatchIDFn != nil {
		return f.listByBatchIDFn(ctx, batchID)
	}
	return nil, nil
}
