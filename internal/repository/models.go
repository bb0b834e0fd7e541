package repository

import (
	"time"

	"github.com/kursadbilgin/hookrelay/internal/domain"
)

// SubscriptionModel is the persistence model for the subscriptions table.
type SubscriptionModel struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Name      string `gorm:"type:varchar(100);not null"`
	TargetURL string `gorm:"type:text;not null"`
	SecretKey string `gorm:"type:varchar(64);not null"`
	Active    bool   `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SubscriptionModel) TableName() string {
	return "subscriptions"
}

// DeliveryModel is the persistence model for the deliveries table.
type DeliveryModel struct {
	ID             string        `gorm:"type:uuid;primaryKey"`
	SubscriptionID string        `gorm:"type:uuid;not null"`
	Payload        []byte        `gorm:"type:jsonb;not null"`
	Status         domain.Status `gorm:"type:varchar(20);not null"`
	AttemptCount   int           `gorm:"not null;default:0"`
	NextAttemptAt  *time.Time
	ClaimToken     *string `gorm:"type:varchar(36)"`
	ClaimedAt      *time.Time
	LastAttemptAt  *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (DeliveryModel) TableName() string {
	return "deliveries"
}

// AttemptModel is the persistence model for delivery_attempts.
type AttemptModel struct {
	ID              string         `gorm:"type:uuid;primaryKey"`
	DeliveryID      string         `gorm:"type:uuid;not null;uniqueIndex:idx_attempts_delivery_number,priority:1"`
	AttemptNumber   int            `gorm:"not null;uniqueIndex:idx_attempts_delivery_number,priority:2"`
	StartedAt       time.Time      `gorm:"not null"`
	ResponseStatus  *int           `gorm:"type:int"`
	ResponseExcerpt *string        `gorm:"type:text"`
	Error           *string        `gorm:"type:text"`
	Outcome         domain.Outcome `gorm:"type:varchar(10);not null"`
	LatencyMs       int64          `gorm:"not null;default:0"`
	CreatedAt       time.Time
}

func (AttemptModel) TableName() string {
	return "delivery_attempts"
}

func subscriptionModelFromDomain(s *domain.Subscription) *SubscriptionModel {
	if s == nil {
		return nil
	}

	return &SubscriptionModel{
		ID:        s.ID,
		Name:      s.Name,
		TargetURL: s.TargetURL,
		SecretKey: s.SecretKey,
		Active:    s.Active,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func subscriptionModelToDomain(m *SubscriptionModel) *domain.Subscription {
	if m == nil {
		return nil
	}

	return &domain.Subscription{
		ID:        m.ID,
		Name:      m.Name,
		TargetURL: m.TargetURL,
		SecretKey: m.SecretKey,
		Active:    m.Active,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func deliveryModelFromDomain(d *domain.Delivery) *DeliveryModel {
	if d == nil {
		return nil
	}

	return &DeliveryModel{
		ID:             d.ID,
		SubscriptionID: d.SubscriptionID,
		Payload:        []byte(d.Payload),
		Status:         d.Status,
		AttemptCount:   d.AttemptCount,
		NextAttemptAt:  d.NextAttemptAt,
		ClaimToken:     d.ClaimToken,
		ClaimedAt:      d.ClaimedAt,
		LastAttemptAt:  d.LastAttemptAt,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func deliveryModelToDomain(m *DeliveryModel) *domain.Delivery {
	if m == nil {
		return nil
	}

	return &domain.Delivery{
		ID:             m.ID,
		SubscriptionID: m.SubscriptionID,
		Payload:        append([]byte(nil), m.Payload...),
		Status:         m.Status,
		AttemptCount:   m.AttemptCount,
		NextAttemptAt:  m.NextAttemptAt,
		ClaimToken:     m.ClaimToken,
		ClaimedAt:      m.ClaimedAt,
		LastAttemptAt:  m.LastAttemptAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func attemptModelFromDomain(a *domain.Attempt) *AttemptModel {
	if a == nil {
		return nil
	}

	return &AttemptModel{
		ID:              a.ID,
		DeliveryID:      a.DeliveryID,
		AttemptNumber:   a.AttemptNumber,
		StartedAt:       a.StartedAt,
		ResponseStatus:  a.ResponseStatus,
		ResponseExcerpt: a.ResponseExcerpt,
		Error:           a.Error,
		Outcome:         a.Outcome,
		LatencyMs:       a.LatencyMs,
	}
}

func attemptModelToDomain(m *AttemptModel) *domain.Attempt {
	if m == nil {
		return nil
	}

	return &domain.Attempt{
		ID:              m.ID,
		DeliveryID:      m.DeliveryID,
		AttemptNumber:   m.AttemptNumber,
		StartedAt:       m.StartedAt,
		ResponseStatus:  m.ResponseStatus,
		ResponseExcerpt: m.ResponseExcerpt,
		Error:           m.Error,
		Outcome:         m.Outcome,
		LatencyMs:       m.LatencyMs,
	}
}
