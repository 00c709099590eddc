package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/absence-notifier/internal/attendance"
	"github.com/kursadbilgin/absence-notifier/internal/domain"
	"github.com/kursadbilgin/absence-notifier/internal/observability"
	"github.com/kursadbilgin/absence-notifier/internal/repository"
	"go.uber.org/zap"
)

// Report is the outcome of processing one attendance export.
type Report struct {
	BatchID     string
	SessionName string
	Status      domain.BatchStatus
	Summary     string
	Total       int
	Sent        int
	Failed      []FailedRecipient
}

// BatchDetails is a persisted batch together with its per-learner attempts.
type BatchDetails struct {
	Batch    *domain.Batch
	Attempts []domain.DispatchAttempt
}

// AttendanceService runs the extract, aggregate and dispatch pipeline for one file.
type AttendanceService struct {
	dispatcher *Dispatcher
	policy     attendance.DuplicatePolicy
	batches    repository.BatchRepository
	attempts   repository.AttemptRepository
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
	newID      func() string
}

func NewAttendanceService(
	dispatcher *Dispatcher,
	policy attendance.DuplicatePolicy,
	logger *zap.Logger,
) (*AttendanceService, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if policy == "" {
		policy = attendance.DuplicateLastWins
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AttendanceService{
		dispatcher: dispatcher,
		policy:     policy,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}, nil
}

func (s *AttendanceService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
	s.dispatcher.SetMetrics(metrics)
}

// SetRepositories turns on the batch audit trail. Both repositories are required.
func (s *AttendanceService) SetRepositories(batches repository.BatchRepository, attempts repository.AttemptRepository) {
	if s == nil {
		return
	}
	s.batches = batches
	s.attempts = attempts
	s.dispatcher.SetAttemptRepository(attempts)
}

// Process reads the export at path and notifies every learner with absences.
// A malformed table is not an error: the returned report carries the rejection
// summary and nothing is sent. Errors are reserved for I/O and storage failures.
func (s *AttendanceService) Process(ctx context.Context, path string) (*Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	batchID := s.newID()
	ctx = observability.WithBatchID(ctx, batchID)
	logger := observability.WithContextLogger(s.logger, ctx)

	lines, err := attendance.ReadLines(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read attendance file: %w", err)
	}
	sessionName := attendance.ExtractSessionName(lines)

	batch := &domain.Batch{
		ID:          batchID,
		FileName:    filepath.Base(path),
		SessionName: sessionName,
		Status:      domain.BatchStatusProcessing,
		CreatedAt:   s.now().UTC(),
		UpdatedAt:   s.now().UTC(),
	}
	if s.batches != nil {
		if err := s.batches.Create(ctx, batch); err != nil {
			return nil, fmt.Errorf("failed to create batch: %w", err)
		}
	}

	table, err := attendance.LoadTable(path)
	if err != nil {
		if !errors.Is(err, domain.ErrValidation) {
			return nil, fmt.Errorf("failed to load attendance table: %w", err)
		}

		report := &Report{
			BatchID:     batchID,
			SessionName: sessionName,
			Status:      domain.BatchStatusRejected,
			Summary:     rejectionSummary(err),
			Failed:      []FailedRecipient{},
		}
		logger.Warn("attendance file rejected", zap.String("summary", report.Summary))
		s.finish(ctx, batch, report)
		return report, nil
	}

	records := attendance.Aggregate(table, s.policy).Records()
	logger.Info("attendance file parsed",
		zap.String("session", sessionName),
		zap.Int("rows", len(table.Rows)),
		zap.Int("learnersWithAbsences", len(records)),
	)

	result := s.dispatcher.Dispatch(ctx, records, sessionName)
	report := &Report{
		BatchID:     batchID,
		SessionName: sessionName,
		Status:      domain.BatchStatusFor(result.SentCount(), result.FailedCount()),
		Summary:     result.Summary(),
		Total:       len(records),
		Sent:        result.SentCount(),
		Failed:      result.Failed,
	}

	logger.Info("attendance file processed",
		zap.String("status", report.Status.String()),
		zap.Int("sent", report.Sent),
		zap.Int("failed", len(report.Failed)),
	)
	s.finish(ctx, batch, report)

	return report, nil
}

// GetBatch returns a persisted batch and its attempts.
func (s *AttendanceService) GetBatch(ctx context.Context, batchID string) (*BatchDetails, error) {
	if s.batches == nil || s.attempts == nil {
		return nil, domain.ErrNotFound
	}

	id := strings.TrimSpace(batchID)
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}

	batch, err := s.batches.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	attempts, err := s.attempts.ListByBatchID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list dispatch attempts: %w", err)
	}

	return &BatchDetails{Batch: batch, Attempts: attempts}, nil
}

func (s *AttendanceService) finish(ctx context.Context, batch *domain.Batch, report *Report) {
	s.metrics.ObserveUpload(report.Status.String(), report.Total)

	if s.batches == nil {
		return
	}

	batch.TotalCount = report.Total
	batch.SentCount = report.Sent
	batch.FailedCount = len(report.Failed)
	batch.Status = report.Status
	batch.Summary = report.Summary

	// Mail has already gone out; a storage failure only loses the audit row.
	if err := s.batches.Finish(context.WithoutCancel(ctx), batch); err != nil {
		observability.WithContextLogger(s.logger, ctx).Error("failed to finish batch", zap.Error(err))
	}
}

func rejectionSummary(err error) string {
	var missing *attendance.MissingColumnError
	if errors.As(err, &missing) {
		return missing.Error()
	}

	message := strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": ")
	if message == "" {
		return err.Error()
	}
	return strings.ToUpper(message[:1]) + message[1:]
}
