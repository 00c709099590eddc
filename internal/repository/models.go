package repository

import (
	"strings"
	"time"

	"github.com/kursadbilgin/absence-notifier/internal/domain"
)

const absenceDateSeparator = ","

// BatchModel is the persistence model for the batches table.
type BatchModel struct {
	ID          string             `gorm:"type:uuid;primaryKey"`
	FileName    string             `gorm:"type:varchar(255);not null"`
	SessionName string             `gorm:"type:varchar(255)"`
	TotalCount  int                `gorm:"not null;default:0"`
	SentCount   int                `gorm:"not null;default:0"`
	FailedCount int                `gorm:"not null;default:0"`
	Status      domain.BatchStatus `gorm:"type:varchar(20);not null"`
	Summary     string             `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (BatchModel) TableName() string {
	return "batches"
}

// DispatchAttemptModel is the persistence model for dispatch_attempts.
type DispatchAttemptModel struct {
	ID           string        `gorm:"type:uuid;primaryKey"`
	BatchID      string        `gorm:"type:uuid;not null"`
	Recipient    string        `gorm:"type:varchar(255);not null"`
	StudentName  string        `gorm:"type:varchar(255)"`
	AbsenceDates string        `gorm:"type:text"`
	Status       domain.Status `gorm:"type:varchar(10);not null"`
	Error        *string       `gorm:"type:text"`
	CreatedAt    time.Time
}

func (DispatchAttemptModel) TableName() string {
	return "dispatch_attempts"
}

func batchModelFromDomain(b *domain.Batch) *BatchModel {
	if b == nil {
		return nil
	}

	return &BatchModel{
		ID:          b.ID,
		FileName:    b.FileName,
		SessionName: b.SessionName,
		TotalCount:  b.TotalCount,
		SentCount:   b.SentCount,
		FailedCount: b.FailedCount,
		Status:      b.Status,
		Summary:     b.Summary,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

func batchModelToDomain(m *BatchModel) *domain.Batch {
	if m == nil {
		return nil
	}

	return &domain.Batch{
		ID:          m.ID,
		FileName:    m.FileName,
		SessionName: m.SessionName,
		TotalCount:  m.TotalCount,
		SentCount:   m.SentCount,
		FailedCount: m.FailedCount,
		Status:      m.Status,
		Summary:     m.Summary,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func attemptModelFromDomain(a *domain.DispatchAttempt) *DispatchAttemptModel {
	if a == nil {
		return nil
	}

	return &DispatchAttemptModel{
		ID:           a.ID,
		BatchID:      a.BatchID,
		Recipient:    a.Recipient,
		StudentName:  a.StudentName,
		AbsenceDates: strings.Join(a.AbsenceDates, absenceDateSeparator),
		Status:       a.Status,
		Error:        a.Error,
		CreatedAt:    a.CreatedAt,
	}
}

func attemptModelToDomain(m *DispatchAttemptModel) *domain.DispatchAttempt {
	if m == nil {
		return nil
	}

	var dates []string
	if m.AbsenceDates != "" {
		dates = strings.Split(m.AbsenceDates, absenceDateSeparator)
	}

	return &domain.DispatchAttempt{
		ID:           m.ID,
		BatchID:      m.BatchID,
		Recipient:    m.Recipient,
		StudentName:  m.StudentName,
		AbsenceDates: dates,
		Status:       m.Status,
		Error:        m.Error,
		CreatedAt:    m.CreatedAt,
	}
}
