package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/absence-notifier/internal/domain"
	"gorm.io/gorm"
)

type BatchRepository interface {
	Create(ctx context.Context, b *domain.Batch) error
	GetByID(ctx context.Context, id string) (*domain.Batch, error)
	Finish(ctx context.Context, b *domain.Batch) error
}

type GormBatchRepo struct {
	db *gorm.DB
}

func NewGormBatchRepo(db *gorm.DB) *GormBatchRepo {
	return &GormBatchRepo{db: db}
}

func (r *GormBatchRepo) Create(ctx context.Context, b *domain.Batch) error {
	model := batchModelFromDomain(b)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if b != nil {
		*b = *batchModelToDomain(model)
	}
	return nil
}

func (r *GormBatchRepo) GetByID(ctx context.Context, id string) (*domain.Batch, error) {
	var model BatchModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return batchModelToDomain(&model), nil
}

// Finish stores the final counts, status and summary of a batch.
func (r *GormBatchRepo) Finish(ctx context.Context, b *domain.Batch) error {
	if b == nil {
		return errors.New("batch is required")
	}

	result := r.db.WithContext(ctx).
		Model(&BatchModel{}).
		Where("id = ?", b.ID).
		Updates(map[string]any{
			"session_name": b.SessionName,
			"total_count":  b.TotalCount,
			"sent_count":   b.SentCount,
			"failed_count": b.FailedCount,
			"status":       b.Status,
			"summary":      b.Summary,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
