package domain

import "time"

// DispatchAttempt records the delivery outcome for one learner of a batch.
type DispatchAttempt struct {
	ID           string
	BatchID      string
	Recipient    string
	StudentName  string
	AbsenceDates []string
	Status       Status
	Error        *string
	CreatedAt    time.Time
}
