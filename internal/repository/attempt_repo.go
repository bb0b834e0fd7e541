package repository

import (
	"context"

	"github.com/kursadbilgin/hookrelay/internal/domain"
	"gorm.io/gorm"
)

// AttemptRepository reads attempt history. Attempts are written only through
// DeliveryRepository.RecordOutcome so that the delivery row and its history stay in step.
type AttemptRepository interface {
	ListByDeliveryID(ctx context.Context, deliveryID string) ([]domain.Attempt, error)
	CountByDeliveryID(ctx context.Context, deliveryID string) (int64, error)
}

type GormAttemptRepo struct {
	db *gorm.DB
}

func NewGormAttemptRepo(db *gorm.DB) *GormAttemptRepo {
	return &GormAttemptRepo{db: db}
}

func (r *GormAttemptRepo) ListByDeliveryID(ctx context.Context, deliveryID string) ([]domain.Attempt, error) {
	var models []AttemptModel
	err := r.db.WithContext(ctx).
		Where("delivery_id = ?", deliveryID).
		Order("attempt_number ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	attempts := make([]domain.Attempt, 0, len(models))
	for i := range models {
		attempts = append(attempts, *attemptModelToDomain(&models[i]))
	}

	return attempts, nil
}

func (r *GormAttemptRepo) CountByDeliveryID(ctx context.Context, deliveryID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&AttemptModel{}).
		Where("delivery_id = ?", deliveryID).
		Count(&count).Error
	return count, err
}
