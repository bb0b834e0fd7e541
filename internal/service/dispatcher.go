package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/hookrelay/internal/domain"
	"github.com/kursadbilgin/hookrelay/internal/observability"
	"github.com/kursadbilgin/hookrelay/internal/ratelimit"
	"github.com/kursadbilgin/hookrelay/internal/repository"
	"github.com/kursadbilgin/hookrelay/internal/retry"
	"github.com/kursadbilgin/hookrelay/internal/webhook"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	minWorkerConcurrency        = 1
	defaultDispatchBatchSize    = 10
	defaultDispatchPollInterval = time.Second
	maxRateLimitWait            = 5 * time.Second
)

// SubscriptionResolver looks subscriptions up on behalf of the engine, usually through the cache.
type SubscriptionResolver interface {
	Get(ctx context.Context, id string) (*domain.Subscription, error)
}

type DispatcherConfig struct {
	Concurrency  int
	BatchSize    int
	PollInterval time.Duration
}

// Dispatcher runs a fixed pool of workers that claim due deliveries and POST them.
type Dispatcher struct {
	deliveries    repository.DeliveryRepository
	subscriptions SubscriptionResolver
	sender        webhook.Sender
	policy        retry.Policy
	rateLimiter   ratelimit.RateLimiter
	logger        *zap.Logger
	metrics       *observability.Metrics

	concurrency  int
	batchSize    int
	pollInterval time.Duration
	wake         chan struct{}
	now          func() time.Time
}

func NewDispatcher(
	deliveries repository.DeliveryRepository,
	subscriptions SubscriptionResolver,
	sender webhook.Sender,
	policy retry.Policy,
	cfg DispatcherConfig,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if deliveries == nil {
		return nil, errors.New("delivery repository is required")
	}
	if subscriptions == nil {
		return nil, errors.New("subscription resolver is required")
	}
	if sender == nil {
		return nil, errors.New("webhook sender is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}

	if cfg.Concurrency < minWorkerConcurrency {
		cfg.Concurrency = minWorkerConcurrency
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultDispatchBatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultDispatchPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		deliveries:    deliveries,
		subscriptions: subscriptions,
		sender:        sender,
		policy:        policy,
		logger:        logger,
		concurrency:   cfg.Concurrency,
		batchSize:     cfg.BatchSize,
		pollInterval:  cfg.PollInterval,
		wake:          make(chan struct{}, cfg.Concurrency),
		now:           time.Now,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	d.metrics = metrics
}

// SetRateLimiter enables per-subscription throttling of outbound requests.
func (d *Dispatcher) SetRateLimiter(limiter ratelimit.RateLimiter) {
	d.rateLimiter = limiter
}

// Wake nudges one idle worker to poll immediately. It never blocks.
func (d *Dispatcher) Wake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Start runs the worker pool until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) error {
	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < d.concurrency; i++ {
		workerID := i + 1
		g.Go(func() error {
			d.logger.Info("dispatch worker started", zap.Int("workerId", workerID))
			d.runWorker(groupCtx, workerID)
			d.logger.Info("dispatch worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

func (d *Dispatcher) runWorker(ctx context.Context, workerID int) {
	timer := time.NewTimer(d.pollInterval)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		processed, err := d.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			d.logger.Error("dispatch poll failed", zap.Int("workerId", workerID), zap.Error(err))
		}
		if err == nil && processed > 0 {
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(d.pollInterval)

		select {
		case <-ctx.Done():
			return
		case <-d.wake:
		case <-timer.C:
		}
	}
}

// RunOnce claims one batch of due deliveries and dispatches them sequentially.
// It returns how many deliveries were claimed.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	claimed, err := d.deliveries.ClaimDue(ctx, d.batchSize, d.now())
	if err != nil {
		return 0, fmt.Errorf("failed to claim due deliveries: %w", err)
	}

	// A started attempt runs to completion so its result is recorded. Claimed
	// deliveries not yet started on shutdown are requeued by the sweeper.
	workCtx := context.WithoutCancel(ctx)
	for i := range claimed {
		if ctx.Err() != nil {
			d.logger.Info("shutdown with claimed deliveries pending",
				zap.Int("pending", len(claimed)-i),
			)
			break
		}
		d.dispatch(workCtx, claimed[i])
	}

	return len(claimed), nil
}

func (d *Dispatcher) dispatch(ctx context.Context, delivery domain.Delivery) {
	logger := d.logger.With(
		zap.String("deliveryId", delivery.ID),
		zap.String("subscriptionId", delivery.SubscriptionID),
	)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("dispatch panicked, delivery left for the sweeper", zap.Any("panic", r))
		}
	}()

	d.metrics.IncWorkerInFlight()
	defer d.metrics.DecWorkerInFlight()

	if delivery.ClaimToken == nil {
		logger.Error("claimed delivery has no claim token")
		return
	}

	attemptNumber := delivery.AttemptCount + 1
	startedAt := d.now().UTC()

	sub, err := d.subscriptions.Get(ctx, delivery.SubscriptionID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		attempt := failedAttempt(attemptNumber, startedAt, nil, "subscription not found")
		d.record(ctx, logger, delivery, attempt, domain.StatusFailedPermanent, nil, observability.ReasonSubscriptionMissing)
		return
	case err != nil:
		attempt := failedAttempt(attemptNumber, startedAt, nil, fmt.Sprintf("subscription lookup failed: %v", err))
		d.completeFailure(ctx, logger, delivery, attempt)
		return
	case !sub.Active:
		attempt := failedAttempt(attemptNumber, startedAt, nil, "subscription inactive")
		d.record(ctx, logger, delivery, attempt, domain.StatusFailedPermanent, nil, observability.ReasonSubscriptionInactive)
		return
	}

	if d.rateLimiter != nil {
		waitCtx, cancel := context.WithTimeout(ctx, maxRateLimitWait)
		err := d.rateLimiter.Wait(waitCtx, sub.ID)
		cancel()
		if err != nil {
			logger.Warn("rate limit wait abandoned, sending without throttling", zap.Error(err))
		}
	}

	// The claim may have sat in this batch longer than the stuck threshold.
	if err := d.deliveries.RenewClaim(ctx, delivery.ID, *delivery.ClaimToken, d.now()); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			d.metrics.IncOutcomeConflict()
			logger.Warn("claim lost before send, skipping delivery", zap.Error(err))
			return
		}
		logger.Error("failed to renew claim, delivery left for the sweeper", zap.Error(err))
		return
	}

	resp, sendErr := d.sender.Send(ctx, webhook.Request{
		URL:           sub.TargetURL,
		DeliveryID:    delivery.ID,
		AttemptNumber: attemptNumber,
		Payload:       delivery.Payload,
		Secret:        sub.SecretKey,
	})

	if sendErr == nil {
		attempt := attemptFromResponse(attemptNumber, startedAt, resp)
		attempt.Outcome = domain.OutcomeSuccess
		d.record(ctx, logger, delivery, attempt, domain.StatusSucceeded, nil, "")
		return
	}

	d.completeFailure(ctx, logger, delivery, failedAttempt(attemptNumber, startedAt, resp, sendErr.Error()))
}

// completeFailure applies the retry policy to a failed attempt.
func (d *Dispatcher) completeFailure(ctx context.Context, logger *zap.Logger, delivery domain.Delivery, attempt domain.Attempt) {
	decision := d.policy.Next(attempt.AttemptNumber, d.now())
	if decision.Exhausted {
		d.record(ctx, logger, delivery, attempt, domain.StatusFailedPermanent, nil, observability.ReasonExhausted)
		return
	}

	next := decision.NextAttemptAt
	d.record(ctx, logger, delivery, attempt, domain.StatusRetryScheduled, &next, "")
}

// record persists the attempt and transition. failReason labels FAILED_PERMANENT outcomes.
func (d *Dispatcher) record(
	ctx context.Context,
	logger *zap.Logger,
	delivery domain.Delivery,
	attempt domain.Attempt,
	status domain.Status,
	nextAttemptAt *time.Time,
	failReason string,
) {
	d.metrics.ObserveAttempt(attempt.Outcome.String(), time.Duration(attempt.LatencyMs)*time.Millisecond)

	err := d.deliveries.RecordOutcome(ctx, repository.OutcomeRecord{
		DeliveryID:    delivery.ID,
		ClaimToken:    *delivery.ClaimToken,
		Attempt:       attempt,
		Status:        status,
		NextAttemptAt: nextAttemptAt,
		RecordedAt:    d.now(),
	})
	if errors.Is(err, domain.ErrConflict) {
		d.metrics.IncOutcomeConflict()
		logger.Warn("attempt result discarded, claim no longer held",
			zap.Int("attempt", attempt.AttemptNumber),
			zap.Error(err),
		)
		return
	}
	if err != nil {
		logger.Error("failed to record attempt, delivery left for the sweeper",
			zap.Int("attempt", attempt.AttemptNumber),
			zap.Error(err),
		)
		return
	}

	fields := []zap.Field{
		zap.Int("attempt", attempt.AttemptNumber),
		zap.String("status", status.String()),
		zap.Int64("latencyMs", attempt.LatencyMs),
	}
	if attempt.ResponseStatus != nil {
		fields = append(fields, zap.Int("responseStatus", *attempt.ResponseStatus))
	}

	switch status {
	case domain.StatusSucceeded:
		d.metrics.IncSucceeded()
		logger.Info("delivery succeeded", fields...)
	case domain.StatusRetryScheduled:
		d.metrics.IncRetryScheduled()
		logger.Info("delivery attempt failed, retry scheduled", append(fields, zap.Time("nextAttemptAt", *nextAttemptAt))...)
	case domain.StatusFailedPermanent:
		d.metrics.IncFailedPermanent(failReason)
		logger.Warn("delivery failed permanently", append(fields, zap.String("reason", failReason))...)
	}
}

func attemptFromResponse(attemptNumber int, startedAt time.Time, resp *webhook.Response) domain.Attempt {
	attempt := domain.Attempt{
		ID:            uuid.NewString(),
		AttemptNumber: attemptNumber,
		StartedAt:     startedAt,
	}
	if resp == nil {
		return attempt
	}

	attempt.LatencyMs = resp.Latency.Milliseconds()
	if resp.StatusCode > 0 {
		status := resp.StatusCode
		attempt.ResponseStatus = &status
	}
	if resp.Body != "" {
		body := domain.TruncateExcerpt(resp.Body)
		attempt.ResponseExcerpt = &body
	}
	return attempt
}

func failedAttempt(attemptNumber int, startedAt time.Time, resp *webhook.Response, message string) domain.Attempt {
	attempt := attemptFromResponse(attemptNumber, startedAt, resp)
	attempt.Outcome = domain.OutcomeFailure
	msg := domain.TruncateExcerpt(message)
	attempt.Error = &msg
	return attempt
}
