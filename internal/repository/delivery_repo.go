package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/hookrelay/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OutcomeRecord is what a worker reports back after one dispatch try.
type OutcomeRecord struct {
	DeliveryID    string
	ClaimToken    string
	Attempt       domain.Attempt
	Status        domain.Status
	NextAttemptAt *time.Time
	RecordedAt    time.Time
}

type DeliveryRepository interface {
	Create(ctx context.Context, d *domain.Delivery) error
	GetByID(ctx context.Context, id string) (*domain.Delivery, error)
	ListBySubscription(ctx context.Context, subscriptionID string, limit int) ([]domain.Delivery, error)
	ClaimDue(ctx context.Context, limit int, now time.Time) ([]domain.Delivery, error)
	RenewClaim(ctx context.Context, id, claimToken string, now time.Time) error
	RecordOutcome(ctx context.Context, rec OutcomeRecord) error
	RequeueStuck(ctx context.Context, claimedBefore, now time.Time) (int64, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
	CountByStatus(ctx context.Context) (map[domain.Status]int64, error)
}

type GormDeliveryRepo struct {
	db *gorm.DB
}

func NewGormDeliveryRepo(db *gorm.DB) *GormDeliveryRepo {
	return &GormDeliveryRepo{db: db}
}

func (r *GormDeliveryRepo) Create(ctx context.Context, d *domain.Delivery) error {
	if d == nil {
		return fmt.Errorf("%w: delivery is required", domain.ErrValidation)
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = domain.StatusPending
	}
	if d.NextAttemptAt != nil {
		next := d.NextAttemptAt.UTC()
		d.NextAttemptAt = &next
	}

	model := deliveryModelFromDomain(d)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}

	d.CreatedAt = model.CreatedAt
	d.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *GormDeliveryRepo) GetByID(ctx context.Context, id string) (*domain.Delivery, error) {
	var model DeliveryModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: delivery %s", domain.ErrNotFound, id)
		}
		return nil, err
	}

	return deliveryModelToDomain(&model), nil
}

func (r *GormDeliveryRepo) ListBySubscription(ctx context.Context, subscriptionID string, limit int) ([]domain.Delivery, error) {
	var models []DeliveryModel
	err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	return deliveryModelsToDomain(models), nil
}

// ClaimDue moves up to limit due deliveries into IN_PROGRESS and returns them with a
// fresh claim token. Each row is taken with a conditional update on the state that was
// read, so two concurrent callers can never both win the same delivery.
func (r *GormDeliveryRepo) ClaimDue(ctx context.Context, limit int, now time.Time) ([]domain.Delivery, error) {
	if limit <= 0 {
		return nil, nil
	}
	now = now.UTC()

	var claimed []domain.Delivery
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Where("status IN ? AND next_attempt_at <= ?", domain.ClaimableStatuses(), now).
			Order("next_attempt_at ASC").
			Limit(limit)
		if supportsSkipLocked(tx) {
			query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		var candidates []DeliveryModel
		if err := query.Find(&candidates).Error; err != nil {
			return err
		}

		won, err := claimCandidates(tx, candidates, now)
		if err != nil {
			return err
		}
		claimed = won
		return nil
	})
	if err != nil {
		return nil, err
	}

	return claimed, nil
}

// claimCandidates takes each candidate with an update conditioned on the state it was
// read in. A candidate changed by someone else since the read is skipped.
func claimCandidates(tx *gorm.DB, candidates []DeliveryModel, now time.Time) ([]domain.Delivery, error) {
	var claimed []domain.Delivery
	for i := range candidates {
		candidate := candidates[i]
		token := uuid.NewString()

		result := tx.Model(&DeliveryModel{}).
			Where("id = ? AND status = ? AND attempt_count = ? AND next_attempt_at <= ?",
				candidate.ID, candidate.Status, candidate.AttemptCount, now).
			Updates(map[string]any{
				"status":      domain.StatusInProgress,
				"claim_token": token,
				"claimed_at":  now,
				"updated_at":  now,
			})
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			continue
		}

		claimedAt := now
		candidate.Status = domain.StatusInProgress
		candidate.ClaimToken = &token
		candidate.ClaimedAt = &claimedAt
		candidate.UpdatedAt = now
		claimed = append(claimed, *deliveryModelToDomain(&candidate))
	}
	return claimed, nil
}

// RenewClaim restarts the stuck clock of a held claim right before its request goes
// out. It returns ErrConflict when the claim was swept or taken over.
func (r *GormDeliveryRepo) RenewClaim(ctx context.Context, id, claimToken string, now time.Time) error {
	now = now.UTC()
	result := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("id = ? AND claim_token = ? AND status = ?", id, claimToken, domain.StatusInProgress).
		Updates(map[string]any{
			"claimed_at": now,
			"updated_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: delivery %s is not claimed with this token", domain.ErrConflict, id)
	}
	return nil
}

// RecordOutcome appends the attempt and applies the resulting transition atomically.
// It only succeeds for the holder of the current claim. Replaying an already recorded
// attempt number is a no-op.
func (r *GormDeliveryRepo) RecordOutcome(ctx context.Context, rec OutcomeRecord) error {
	if err := validateOutcome(rec); err != nil {
		return err
	}

	recordedAt := rec.RecordedAt.UTC()
	attempt := rec.Attempt
	attempt.DeliveryID = rec.DeliveryID
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	attempt.StartedAt = attempt.StartedAt.UTC()

	var nextAttemptAt any
	if rec.Status == domain.StatusRetryScheduled {
		nextAttemptAt = rec.NextAttemptAt.UTC()
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		err := tx.Model(&AttemptModel{}).
			Where("delivery_id = ? AND attempt_number = ?", rec.DeliveryID, attempt.AttemptNumber).
			Count(&existing).Error
		if err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}

		result := tx.Model(&DeliveryModel{}).
			Where("id = ? AND status = ? AND claim_token = ? AND attempt_count = ?",
				rec.DeliveryID, domain.StatusInProgress, rec.ClaimToken, attempt.AttemptNumber-1).
			Updates(map[string]any{
				"status":          rec.Status,
				"attempt_count":   attempt.AttemptNumber,
				"next_attempt_at": nextAttemptAt,
				"claim_token":     nil,
				"claimed_at":      nil,
				"last_attempt_at": attempt.StartedAt,
				"updated_at":      recordedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: delivery %s is not claimed with this token", domain.ErrConflict, rec.DeliveryID)
		}

		model := attemptModelFromDomain(&attempt)
		model.CreatedAt = recordedAt
		return tx.Create(model).Error
	})
}

// RequeueStuck returns deliveries whose claim is older than claimedBefore to
// RETRY_SCHEDULED, due immediately. The attempt count is left untouched.
func (r *GormDeliveryRepo) RequeueStuck(ctx context.Context, claimedBefore, now time.Time) (int64, error) {
	now = now.UTC()
	result := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("status = ? AND claimed_at < ?", domain.StatusInProgress, claimedBefore.UTC()).
		Updates(map[string]any{
			"status":          domain.StatusRetryScheduled,
			"next_attempt_at": now,
			"claim_token":     nil,
			"claimed_at":      nil,
			"updated_at":      now,
		})
	return result.RowsAffected, result.Error
}

// PurgeOlderThan deletes at most batchSize terminal deliveries last updated before
// cutoff, together with their attempts. Non-terminal deliveries are never touched.
func (r *GormDeliveryRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		return 0, nil
	}
	cutoff = cutoff.UTC()
	terminal := domain.TerminalStatuses()

	var purged int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		err := tx.Model(&DeliveryModel{}).
			Where("status IN ? AND updated_at < ?", terminal, cutoff).
			Order("updated_at ASC").
			Limit(batchSize).
			Pluck("id", &ids).Error
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.Where("delivery_id IN ?", ids).Delete(&AttemptModel{}).Error; err != nil {
			return err
		}

		result := tx.Where("id IN ? AND status IN ?", ids, terminal).Delete(&DeliveryModel{})
		if result.Error != nil {
			return result.Error
		}
		purged = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}

	return purged, nil
}

func (r *GormDeliveryRepo) CountByStatus(ctx context.Context) (map[domain.Status]int64, error) {
	var rows []struct {
		Status domain.Status
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[domain.Status]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func validateOutcome(rec OutcomeRecord) error {
	if rec.DeliveryID == "" {
		return fmt.Errorf("%w: delivery id is required", domain.ErrValidation)
	}
	if rec.ClaimToken == "" {
		return fmt.Errorf("%w: claim token is required", domain.ErrValidation)
	}
	rec.Attempt.DeliveryID = rec.DeliveryID
	if err := rec.Attempt.Validate(); err != nil {
		return err
	}

	switch rec.Status {
	case domain.StatusSucceeded, domain.StatusFailedPermanent:
	case domain.StatusRetryScheduled:
		if rec.NextAttemptAt == nil {
			return fmt.Errorf("%w: next attempt time is required for %s", domain.ErrValidation, rec.Status)
		}
	default:
		return fmt.Errorf("%w: %s is not a valid outcome status", domain.ErrValidation, rec.Status)
	}

	if rec.Status == domain.StatusSucceeded && rec.Attempt.Outcome != domain.OutcomeSuccess {
		return fmt.Errorf("%w: succeeded delivery requires a successful attempt", domain.ErrValidation)
	}
	return nil
}

func supportsSkipLocked(db *gorm.DB) bool {
	return db.Dialector != nil && db.Dialector.Name() == "postgres"
}

func deliveryModelsToDomain(models []DeliveryModel) []domain.Delivery {
	deliveries := make([]domain.Delivery, 0, len(models))
	for i := range models {
		deliveries = append(deliveries, *deliveryModelToDomain(&models[i]))
	}
	return deliveries
}
