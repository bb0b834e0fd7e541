package repository

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/kursadbilgin/hookrelay/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "hookrelay.db") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		t.Fatalf("gorm.Open() error = %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB() error = %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := db.AutoMigrate(&SubscriptionModel{}, &DeliveryModel{}, &AttemptModel{}); err != nil {
		t.Fatalf("AutoMigrate() error = %v", err)
	}

	return db
}

func seedSubscription(t *testing.T, repo *GormSubscriptionRepo) *domain.Subscription {
	t.Helper()

	faker := gofakeit.New(0)
	sub := &domain.Subscription{
		Name:      faker.Company(),
		TargetURL: "https://" + faker.DomainName() + "/hooks",
		SecretKey: faker.LetterN(40),
		Active:    true,
	}
	if err := repo.Create(context.Background(), sub); err != nil {
		t.Fatalf("Create(subscription) error = %v", err)
	}
	return sub
}

func seedDelivery(t *testing.T, repo *GormDeliveryRepo, subscriptionID string, nextAttemptAt time.Time) *domain.Delivery {
	t.Helper()

	payload, err := json.Marshal(map[string]any{
		"event_type": "order.created",
		"data":       map[string]any{"id": gofakeit.UUID(), "amount": gofakeit.Price(1, 500)},
	})
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	next := nextAttemptAt
	d := &domain.Delivery{
		SubscriptionID: subscriptionID,
		Payload:        payload,
		Status:         domain.StatusPending,
		NextAttemptAt:  &next,
		CreatedAt:      nextAttemptAt,
		UpdatedAt:      nextAttemptAt,
	}
	if err := repo.Create(context.Background(), d); err != nil {
		t.Fatalf("Create(delivery) error = %v", err)
	}
	return d
}

func failedAttempt(number int, at time.Time) domain.Attempt {
	status := 503
	excerpt := "unavailable"
	return domain.Attempt{
		AttemptNumber:   number,
		StartedAt:       at,
		ResponseStatus:  &status,
		ResponseExcerpt: &excerpt,
		Outcome:         domain.OutcomeFailure,
		LatencyMs:       12,
	}
}

func successfulAttempt(number int, at time.Time) domain.Attempt {
	status := 200
	return domain.Attempt{
		AttemptNumber:  number,
		StartedAt:      at,
		ResponseStatus: &status,
		Outcome:        domain.OutcomeSuccess,
		LatencyMs:      8,
	}
}

func claimOne(t *testing.T, repo *GormDeliveryRepo, now time.Time) domain.Delivery {
	t.Helper()

	claimed, err := repo.ClaimDue(context.Background(), 1, now)
	if err != nil {
		t.Fatalf("ClaimDue() error = %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("ClaimDue() claimed %d, want 1", len(claimed))
	}
	return claimed[0]
}
