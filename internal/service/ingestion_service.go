package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/hookrelay/internal/domain"
	"github.com/kursadbilgin/hookrelay/internal/observability"
	"github.com/kursadbilgin/hookrelay/internal/queue"
	"github.com/kursadbilgin/hookrelay/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// IngestionService accepts events for a subscription and answers delivery status queries.
type IngestionService struct {
	deliveries    repository.DeliveryRepository
	attempts      repository.AttemptRepository
	subscriptions SubscriptionResolver
	publisher     queue.Publisher
	logger        *zap.Logger
	metrics       *observability.Metrics
	now           func() time.Time
}

// DeliveryDetail is a delivery together with its attempt history, oldest attempt first.
type DeliveryDetail struct {
	Delivery domain.Delivery
	Attempts []domain.Attempt
}

func NewIngestionService(
	deliveries repository.DeliveryRepository,
	attempts repository.AttemptRepository,
	subscriptions SubscriptionResolver,
	publisher queue.Publisher,
	logger *zap.Logger,
) (*IngestionService, error) {
	if deliveries == nil {
		return nil, errors.New("delivery repository is required")
	}
	if attempts == nil {
		return nil, errors.New("attempt repository is required")
	}
	if subscriptions == nil {
		return nil, errors.New("subscription resolver is required")
	}
	if publisher == nil {
		publisher = queue.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &IngestionService{
		deliveries:    deliveries,
		attempts:      attempts,
		subscriptions: subscriptions,
		publisher:     publisher,
		logger:        logger,
		now:           time.Now,
	}, nil
}

func (s *IngestionService) SetMetrics(metrics *observability.Metrics) {
	s.metrics = metrics
}

// Ingest stores payload as a PENDING delivery due immediately. Nothing is stored when the
// subscription is unknown or inactive.
func (s *IngestionService) Ingest(ctx context.Context, subscriptionID string, payload []byte) (*domain.Delivery, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if !isUUID(subscriptionID) {
		return nil, fmt.Errorf("%w: subscription %s", domain.ErrNotFound, subscriptionID)
	}
	if err := domain.ValidatePayload(payload); err != nil {
		return nil, err
	}

	sub, err := s.subscriptions.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if !sub.Active {
		return nil, fmt.Errorf("%w: %s", domain.ErrSubscriptionInactive, sub.ID)
	}

	now := s.now().UTC()
	delivery := &domain.Delivery{
		ID:             uuid.NewString(),
		SubscriptionID: sub.ID,
		Payload:        append([]byte(nil), payload...),
		Status:         domain.StatusPending,
		NextAttemptAt:  &now,
	}
	if err := s.deliveries.Create(ctx, delivery); err != nil {
		return nil, fmt.Errorf("failed to create delivery: %w", err)
	}
	s.metrics.IncIngested()

	logger := observability.LoggerFromContext(ctx, s.logger)
	requestID, _ := observability.RequestIDFromContext(ctx)
	msg := queue.DeliveryMessage{
		DeliveryID:     delivery.ID,
		SubscriptionID: sub.ID,
		RequestID:      requestID,
	}
	if err := s.publisher.Publish(ctx, msg); err != nil {
		logger.Warn("failed to publish delivery nudge, workers will pick it up on poll",
			zap.String("deliveryId", delivery.ID),
			zap.Error(err),
		)
	}

	logger.Info("delivery accepted",
		zap.String("deliveryId", delivery.ID),
		zap.String("subscriptionId", sub.ID),
	)
	return delivery, nil
}

func (s *IngestionService) GetDelivery(ctx context.Context, id string) (*DeliveryDetail, error) {
	id = strings.TrimSpace(id)
	if !isUUID(id) {
		return nil, fmt.Errorf("%w: delivery %s", domain.ErrNotFound, id)
	}

	delivery, err := s.deliveries.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	attempts, err := s.attempts.ListByDeliveryID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load attempts: %w", err)
	}

	return &DeliveryDetail{Delivery: *delivery, Attempts: attempts}, nil
}

// ListDeliveries returns the subscription's deliveries, most recent first. A zero limit
// means the default page size.
func (s *IngestionService) ListDeliveries(ctx context.Context, subscriptionID string, limit int) ([]domain.Delivery, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if !isUUID(subscriptionID) {
		return nil, fmt.Errorf("%w: subscription %s", domain.ErrNotFound, subscriptionID)
	}

	switch {
	case limit == 0:
		limit = defaultListLimit
	case limit < 0 || limit > maxListLimit:
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, maxListLimit)
	}

	return s.deliveries.ListBySubscription(ctx, subscriptionID, limit)
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
