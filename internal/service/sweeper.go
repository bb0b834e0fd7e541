package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/hookrelay/internal/observability"
	"github.com/kursadbilgin/hookrelay/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultSweepInterval  = 30 * time.Second
	defaultStuckThreshold = 30 * time.Second
)

// Sweeper returns deliveries whose claim has outlived the stuck threshold to RETRY_SCHEDULED.
type Sweeper struct {
	deliveries repository.DeliveryRepository
	logger     *zap.Logger
	metrics    *observability.Metrics
	interval   time.Duration
	threshold  time.Duration
	now        func() time.Time
}

func NewSweeper(
	deliveries repository.DeliveryRepository,
	interval time.Duration,
	threshold time.Duration,
	logger *zap.Logger,
) (*Sweeper, error) {
	if deliveries == nil {
		return nil, errors.New("delivery repository is required")
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if threshold <= 0 {
		threshold = defaultStuckThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Sweeper{
		deliveries: deliveries,
		logger:     logger,
		interval:   interval,
		threshold:  threshold,
		now:        time.Now,
	}, nil
}

func (s *Sweeper) SetMetrics(metrics *observability.Metrics) {
	s.metrics = metrics
}

func (s *Sweeper) Start(ctx context.Context) error {
	if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("stuck sweep initial run failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("stuck sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce requeues every IN_PROGRESS delivery claimed before now minus the threshold.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	cutoff := now.Add(-s.threshold)

	requeued, err := s.deliveries.RequeueStuck(ctx, cutoff, now)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stuck deliveries: %w", err)
	}
	if requeued > 0 {
		s.metrics.AddStuckRequeued(requeued)
		s.logger.Warn("requeued stuck deliveries",
			zap.Int64("count", requeued),
			zap.Time("claimedBefore", cutoff),
		)
	}

	return requeued, nil
}
