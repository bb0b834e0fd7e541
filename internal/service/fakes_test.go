package service

import (
	"context"
	"time"

	"github.com/kursadbilgin/hookrelay/internal/domain"
	"github.com/kursadbilgin/hookrelay/internal/queue"
	"github.com/kursadbilgin/hookrelay/internal/repository"
	"github.com/kursadbilgin/hookrelay/internal/webhook"
)

type fakeDeliveryRepo struct {
	createFn             func(ctx context.Context, d *domain.Delivery) error
	getByIDFn            func(ctx context.Context, id string) (*domain.Delivery, error)
	listBySubscriptionFn func(ctx context.Context, subscriptionID string, limit int) ([]domain.Delivery, error)
	claimDueFn           func(ctx context.Context, limit int, now time.Time) ([]domain.Delivery, error)
	renewClaimFn         func(ctx context.Context, id, claimToken string, now time.Time) error
	recordOutcomeFn      func(ctx context.Context, rec repository.OutcomeRecord) error
	requeueStuckFn       func(ctx context.Context, claimedBefore, now time.Time) (int64, error)
	purgeOlderThanFn     func(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
	countByStatusFn      func(ctx context.Context) (map[domain.Status]int64, error)
}

func (f *fakeDeliveryRepo) Create(ctx context.Context, d *domain.Delivery) error {
	if f.createFn != nil {
		return f.createFn(ctx, d)
	}
	return nil
}

func (f *fakeDeliveryRepo) GetByID(ctx context.Context, id string) (*domain.Delivery, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeDeliveryRepo) ListBySubscription(ctx context.Context, subscriptionID string, limit int) ([]domain.Delivery, error) {
	if f.listBySubscriptionFn != nil {
		return f.listBySubscriptionFn(ctx, subscriptionID, limit)
	}
	return nil, nil
}

func (f *fakeDeliveryRepo) ClaimDue(ctx context.Context, limit int, now time.Time) ([]domain.Delivery, error) {
	if f.claimDueFn != nil {
		return f.claimDueFn(ctx, limit, now)
	}
	return nil, nil
}

func (f *fakeDeliveryRepo) RenewClaim(ctx context.Context, id, claimToken string, now time.Time) error {
	if f.renewClaimFn != nil {
		return f.renewClaimFn(ctx, id, claimToken, now)
	}
	return nil
}

func (f *fakeDeliveryRepo) RecordOutcome(ctx context.Context, rec repository.OutcomeRecord) error {
	if f.recordOutcomeFn != nil {
		return f.recordOutcomeFn(ctx, rec)
	}
	return nil
}

func (f *fakeDeliveryRepo) RequeueStuck(ctx context.Context, claimedBefore, now time.Time) (int64, error) {
	if f.requeueStuckFn != nil {
		return f.requeueStuckFn(ctx, claimedBefore, now)
	}
	return 0, nil
}

func (f *fakeDeliveryRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if f.purgeOlderThanFn != nil {
		return f.purgeOlderThanFn(ctx, cutoff, batchSize)
	}
	return 0, nil
}

func (f *fakeDeliveryRepo) CountByStatus(ctx context.Context) (map[domain.Status]int64, error) {
	if f.countByStatusFn != nil {
		return f.countByStatusFn(ctx)
	}
	return map[domain.Status]int64{}, nil
}

type fakeAttemptRepo struct {
	listByDeliveryIDFn  func(ctx context.Context, deliveryID string) ([]domain.Attempt, error)
	countByDeliveryIDFn func(ctx context.Context, deliveryID string) (int64, error)
}

func (f *fakeAttemptRepo) ListByDeliveryID(ctx context.Context, deliveryID string) ([]domain.Attempt, error) {
	if f.listByDeliveryIDFn != nil {
		return f.listByDeliveryIDFn(ctx, deliveryID)
	}
	return nil, nil
}

func (f *fakeAttemptRepo) CountByDeliveryID(ctx context.Context, deliveryID string) (int64, error) {
	if f.countByDeliveryIDFn != nil {
		return f.countByDeliveryIDFn(ctx, deliveryID)
	}
	return 0, nil
}

type fakeSubscriptionRepo struct {
	createFn  func(ctx context.Context, s *domain.Subscription) error
	getByIDFn func(ctx context.Context, id string) (*domain.Subscription, error)
	listFn    func(ctx context.Context, limit, offset int) ([]domain.Subscription, error)
	updateFn  func(ctx context.Context, s *domain.Subscription) error
	deleteFn  func(ctx context.Context, id string) error
}

func (f *fakeSubscriptionRepo) Create(ctx context.Context, s *domain.Subscription) error {
	if f.createFn != nil {
		return f.createFn(ctx, s)
	}
	return nil
}

func (f *fakeSubscriptionRepo) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeSubscriptionRepo) List(ctx context.Context, limit, offset int) ([]domain.Subscription, error) {
	if f.listFn != nil {
		return f.listFn(ctx, limit, offset)
	}
	return nil, nil
}

func (f *fakeSubscriptionRepo) Update(ctx context.Context, s *domain.Subscription) error {
	if f.updateFn != nil {
		return f.updateFn(ctx, s)
	}
	return nil
}

func (f *fakeSubscriptionRepo) Delete(ctx context.Context, id string) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, id)
	}
	return nil
}

type fakeResolver struct {
	getFn func(ctx context.Context, id string) (*domain.Subscription, error)
}

func (f *fakeResolver) Get(ctx context.Context, id string) (*domain.Subscription, error) {
	if f.getFn != nil {
		return f.getFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

type fakeInvalidator struct {
	invalidateFn func(ctx context.Context, id string) error
}

func (f *fakeInvalidator) Invalidate(ctx context.Context, id string) error {
	if f.invalidateFn != nil {
		return f.invalidateFn(ctx, id)
	}
	return nil
}

type fakeSender struct {
	sendFn func(ctx context.Context, req webhook.Request) (*webhook.Response, error)
}

func (f *fakeSender) Send(ctx context.Context, req webhook.Request) (*webhook.Response, error) {
	if f.sendFn != nil {
		return f.sendFn(ctx, req)
	}
	return &webhook.Response{StatusCode: 200}, nil
}

type fakeRateLimiter struct {
	allowFn func(ctx context.Context, subscriptionID string) (bool, error)
	waitFn  func(ctx context.Context, subscriptionID string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, subscriptionID string) (bool, error) {
	if f.allowFn != nil {
		return f.allowFn(ctx, subscriptionID)
	}
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, subscriptionID string) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, subscriptionID)
	}
	return nil
}

type fakePublisher struct {
	publishFn func(ctx context.Context, msg queue.DeliveryMessage) error
	closeFn   func() error
}

func (f *fakePublisher) Publish(ctx context.Context, msg queue.DeliveryMessage) error {
	if f.publishFn != nil {
		return f.publishFn(ctx, msg)
	}
	return nil
}

func (f *fakePublisher) Close() error {
	if f.closeFn != nil {
		return f.closeFn()
	}
	return nil
}
