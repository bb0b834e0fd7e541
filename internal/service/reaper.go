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
	defaultReaperInterval  = time.Hour
	defaultReaperBatchSize = 500
	defaultRetention       = 72 * time.Hour
)

type ReaperConfig struct {
	Retention time.Duration
	Interval  time.Duration
	BatchSize int
}

// Reaper deletes terminal deliveries, with their attempts, once they fall outside the retention window.
type Reaper struct {
	deliveries repository.DeliveryRepository
	logger     *zap.Logger
	metrics    *observability.Metrics
	retention  time.Duration
	interval   time.Duration
	batchSize  int
	now        func() time.Time
}

func NewReaper(deliveries repository.DeliveryRepository, cfg ReaperConfig, logger *zap.Logger) (*Reaper, error) {
	if deliveries == nil {
		return nil, errors.New("delivery repository is required")
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultReaperInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultReaperBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Reaper{
		deliveries: deliveries,
		logger:     logger,
		retention:  cfg.Retention,
		interval:   cfg.Interval,
		batchSize:  cfg.BatchSize,
		now:        time.Now,
	}, nil
}

func (r *Reaper) SetMetrics(metrics *observability.Metrics) {
	r.metrics = metrics
}

func (r *Reaper) Start(ctx context.Context) error {
	r.tick(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Reaper) tick(ctx context.Context) {
	if _, err := r.ReapOnce(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("retention reap failed", zap.Error(err))
	}
	if err := r.refreshStatusGauge(ctx); err != nil && ctx.Err() == nil {
		r.logger.Warn("failed to refresh delivery status gauge", zap.Error(err))
	}
}

// ReapOnce purges in batches until a batch comes back short. Deliveries that are not
// terminal are never removed regardless of age.
func (r *Reaper) ReapOnce(ctx context.Context) (int64, error) {
	cutoff := r.now().UTC().Add(-r.retention)

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		purged, err := r.deliveries.PurgeOlderThan(ctx, cutoff, r.batchSize)
		if err != nil {
			return total, fmt.Errorf("failed to purge deliveries older than %s: %w", cutoff.Format(time.RFC3339), err)
		}
		total += purged
		r.metrics.AddReaped(purged)

		if purged < int64(r.batchSize) {
			break
		}
	}

	if total > 0 {
		r.logger.Info("reaped expired deliveries",
			zap.Int64("count", total),
			zap.Time("cutoff", cutoff),
		)
	}
	return total, nil
}

func (r *Reaper) refreshStatusGauge(ctx context.Context) error {
	if r.metrics == nil {
		return nil
	}

	counts, err := r.deliveries.CountByStatus(ctx)
	if err != nil {
		return err
	}

	labelled := make(map[string]int64, len(counts))
	for status, n := range counts {
		labelled[status.String()] = n
	}
	r.metrics.SetDeliveriesByStatus(labelled)
	return nil
}
