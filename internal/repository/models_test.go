package repository

import (
	"reflect"
	"testing"
	"time"

	"github.com/kursadbilgin/absence-notifier/internal/domain"
)

func TestAttemptModelRoundTripKeepsDateOrder(t *testing.T) {
	t.Parallel()

	reason := "smtp delivery failed"
	attempt := &domain.DispatchAttempt{
		ID:           "a1",
		BatchID:      "b1",
		Recipient:    "alice@x.com",
		StudentName:  "Alice",
		AbsenceDates: []string{"12-02", "12-01"},
		Status:       domain.StatusFailed,
		Error:        &reason,
		CreatedAt:    time.Unix(1_700_000_000, 0).UTC(),
	}

	model := attemptModelFromDomain(attempt)
	if model.AbsenceDates != "12-02,12-01" {
		t.Fatalf("AbsenceDates column = %q, want 12-02,12-01", model.AbsenceDates)
	}

	if got := attemptModelToDomain(model); !reflect.DeepEqual(got, attempt) {
		t.Fatalf("attemptModelToDomain() = %+v, want %+v", got, attempt)
	}
}

func TestAttemptModelEmptyDates(t *testing.T) {
	t.Parallel()

	got := attemptModelToDomain(&DispatchAttemptModel{ID: "a2", Status: domain.StatusSent})
	if got.AbsenceDates != nil {
		t.Fatalf("AbsenceDates = %q, want nil", got.AbsenceDates)
	}
	if attemptModelFromDomain(nil) != nil || attemptModelToDomain(nil) != nil {
		t.Fatal("nil inputs should map to nil")
	}
}

func TestBatchModelMapping(t *testing.T) {
	t.Parallel()

	batch := &domain.Batch{
		ID:          "b1",
		FileName:    "attendance.csv",
		SessionName: "VLSI",
		TotalCount:  3,
		SentCount:   2,
		FailedCount: 1,
		Status:      domain.BatchStatusPartialFailure,
		Summary:     "summary",
	}

	if got := batchModelToDomain(batchModelFromDomain(batch)); !reflect.DeepEqual(got, batch) {
		t.Fatalf("batch mapping = %+v, want %+v", got, batch)
	}
}
