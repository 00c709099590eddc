package domain

import "time"

// BatchStatus represents the processing state of one uploaded attendance file.
type BatchStatus string

const (
	BatchStatusProcessing     BatchStatus = "PROCESSING"
	BatchStatusCompleted      BatchStatus = "COMPLETED"
	BatchStatusPartialFailure BatchStatus = "PARTIAL_FAILURE"
	BatchStatusFailed         BatchStatus = "FAILED"
	BatchStatusRejected       BatchStatus = "REJECTED"
)

func (s BatchStatus) String() string { return string(s) }

func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusProcessing, BatchStatusCompleted, BatchStatusPartialFailure,
		BatchStatusFailed, BatchStatusRejected:
		return true
	}
	return false
}

// BatchStatusFor derives the final batch status from dispatch counts.
func BatchStatusFor(sent, failed int) BatchStatus {
	switch {
	case failed == 0:
		return BatchStatusCompleted
	case sent == 0:
		return BatchStatusFailed
	default:
		return BatchStatusPartialFailure
	}
}

// Batch groups the notifications dispatched for one attendance file.
type Batch struct {
	ID          string
	FileName    string
	SessionName string
	TotalCount  int
	SentCount   int
	FailedCount int
	Status      BatchStatus
	Summary     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
