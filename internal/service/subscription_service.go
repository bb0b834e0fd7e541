package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kursadbilgin/hookrelay/internal/domain"
	"github.com/kursadbilgin/hookrelay/internal/repository"
	"go.uber.org/zap"
)

// CacheInvalidator drops cached copies of a subscription after it changes.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, id string) error
}

type SubscriptionService struct {
	subscriptions repository.SubscriptionRepository
	cache         CacheInvalidator
	logger        *zap.Logger
}

func NewSubscriptionService(
	subscriptions repository.SubscriptionRepository,
	cache CacheInvalidator,
	logger *zap.Logger,
) (*SubscriptionService, error) {
	if subscriptions == nil {
		return nil, errors.New("subscription repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SubscriptionService{
		subscriptions: subscriptions,
		cache:         cache,
		logger:        logger,
	}, nil
}

func (s *SubscriptionService) Create(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	if sub == nil {
		return nil, fmt.Errorf("%w: subscription is required", domain.ErrValidation)
	}

	normalizeSubscription(sub)
	sub.ID = uuid.NewString()
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	if err := s.subscriptions.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	s.logger.Info("subscription created", zap.String("subscriptionId", sub.ID))
	return sub, nil
}

func (s *SubscriptionService) Get(ctx context.Context, id string) (*domain.Subscription, error) {
	id = strings.TrimSpace(id)
	if !isUUID(id) {
		return nil, fmt.Errorf("%w: subscription %s", domain.ErrNotFound, id)
	}
	return s.subscriptions.GetByID(ctx, id)
}

func (s *SubscriptionService) List(ctx context.Context, limit, offset int) ([]domain.Subscription, error) {
	switch {
	case limit == 0:
		limit = defaultListLimit
	case limit < 0 || limit > maxListLimit:
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, maxListLimit)
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", domain.ErrValidation)
	}

	return s.subscriptions.List(ctx, limit, offset)
}

// Update replaces the mutable fields of an existing subscription and drops it from the cache.
func (s *SubscriptionService) Update(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	if sub == nil {
		return nil, fmt.Errorf("%w: subscription is required", domain.ErrValidation)
	}

	normalizeSubscription(sub)
	if !isUUID(sub.ID) {
		return nil, fmt.Errorf("%w: subscription %s", domain.ErrNotFound, sub.ID)
	}
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	if err := s.subscriptions.Update(ctx, sub); err != nil {
		return nil, err
	}
	s.invalidate(ctx, sub.ID)

	updated, err := s.subscriptions.GetByID(ctx, sub.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("subscription updated",
		zap.String("subscriptionId", sub.ID),
		zap.Bool("active", updated.Active),
	)
	return updated, nil
}

// Delete removes the subscription. Deliveries already queued for it fail permanently
// on their next attempt.
func (s *SubscriptionService) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if !isUUID(id) {
		return fmt.Errorf("%w: subscription %s", domain.ErrNotFound, id)
	}

	if err := s.subscriptions.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)

	s.logger.Info("subscription deleted", zap.String("subscriptionId", id))
	return nil
}

// invalidate never fails the mutation; a stale entry expires with its TTL.
func (s *SubscriptionService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.Warn("failed to invalidate cached subscription",
			zap.String("subscriptionId", id),
			zap.Error(err),
		)
	}
}

func normalizeSubscription(sub *domain.Subscription) {
	sub.ID = strings.TrimSpace(sub.ID)
	sub.Name = strings.TrimSpace(sub.Name)
	sub.TargetURL = strings.TrimSpace(sub.TargetURL)
	sub.SecretKey = strings.TrimSpace(sub.SecretKey)
}
