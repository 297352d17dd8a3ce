package forgeq

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/genforge/forgeq/metrics"
	"github.com/genforge/forgeq/store"
)

// ewmaAlpha weights the most recent completion in the rolling mean.
const ewmaAlpha = 0.1

// QueueStats is the on-demand snapshot served by the stats endpoint.
type QueueStats struct {
	Pending                  int64   `json:"pending"`
	Processing               int64   `json:"processing"`
	CompletedToday           int64   `json:"completed_today"`
	FailedToday              int64   `json:"failed_today"`
	AvgProcessingTimeMinutes float64 `json:"avg_processing_time_minutes"`
	EstimatedWaitMinutes     float64 `json:"estimated_wait_minutes"`
}

// Estimator derives queue depth, positions and wait estimates from the
// active indexes and the rolling processing-time mean.
//
// All reads are unsynchronized snapshots; the numbers are estimates, not
// invariants. The mean is shared through the store so every process
// converges on the same figure.
type Estimator struct {
	store   store.Store
	cfg     Config
	metrics *metrics.Collector
	log     *slog.Logger
}

// NewEstimator creates an estimator over the given store and configuration.
func NewEstimator(st store.Store, cfg Config, collector *metrics.Collector, log *slog.Logger) *Estimator {
	return &Estimator{
		store:   st,
		cfg:     cfg,
		metrics: collector,
		log:     log,
	}
}

// AvgSeconds returns the exponentially weighted mean processing time of
// recent completions, or the configured seed before any completion.
func (e *Estimator) AvgSeconds(ctx context.Context) float64 {
	raw, err := e.store.Get(ctx, keyAvgSeconds)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			e.log.Warn("cannot read processing-time mean", "err", err)
		}
		return e.cfg.Queue.AvgJobSecondsSeed
	}
	avg, err := strconv.ParseFloat(raw, 64)
	if err != nil || avg <= 0 {
		return e.cfg.Queue.AvgJobSecondsSeed
	}
	return avg
}

// Observe folds the duration of a completion into the rolling mean.
//
// The read-update-write is unsynchronized; concurrent completions may
// drop each other's sample, which is acceptable for an estimate.
func (e *Estimator) Observe(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	avg := e.AvgSeconds(ctx)
	next := (1-ewmaAlpha)*avg + ewmaAlpha*d.Seconds()
	value := strconv.FormatFloat(next, 'f', 3, 64)
	if err := e.store.Set(ctx, keyAvgSeconds, value, 0); err != nil {
		e.log.Warn("cannot update processing-time mean", "err", err)
	}
}

// Position returns the 1-indexed rank of a queued job in the pending
// index, or store.ErrNotFound when the job is not pending.
func (e *Estimator) Position(ctx context.Context, jobID string) (int64, error) {
	rank, err := e.store.ZRank(ctx, keyPending, jobID)
	if err != nil {
		return 0, err
	}
	return rank + 1, nil
}

// EstimatedStart projects when a job at the given queue position will be
// claimed, assuming the current mean processing time and full worker
// concurrency.
func (e *Estimator) EstimatedStart(ctx context.Context, position int64) time.Time {
	wait := e.waitSeconds(e.AvgSeconds(ctx), position)
	return time.Now().UTC().Add(seconds(wait)).Truncate(time.Millisecond)
}

// WaitMinutes estimates how long a newly admitted job would wait with the
// given backlog ahead of it.
func (e *Estimator) WaitMinutes(ctx context.Context, backlog int64) float64 {
	return e.waitSeconds(e.AvgSeconds(ctx), backlog) / 60
}

func (e *Estimator) waitSeconds(avg float64, backlog int64) float64 {
	concurrency := e.cfg.Queue.MaxConcurrentJobs
	if concurrency <= 0 {
		concurrency = 1
	}
	return float64(backlog) * avg / float64(concurrency)
}

// Stats materializes the queue snapshot and refreshes the depth gauges.
func (e *Estimator) Stats(ctx context.Context) (*QueueStats, error) {
	pending, err := e.store.ZCard(ctx, keyPending)
	if err != nil {
		return nil, err
	}
	processing, err := e.store.LLen(ctx, keyInflight)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	completedToday, err := e.dailyCount(ctx, dailyCompletedKey(now))
	if err != nil {
		return nil, err
	}
	failedToday, err := e.dailyCount(ctx, dailyFailedKey(now))
	if err != nil {
		return nil, err
	}
	avg := e.AvgSeconds(ctx)
	e.metrics.SetQueueDepth(pending, processing)
	return &QueueStats{
		Pending:                  pending,
		Processing:               processing,
		CompletedToday:           completedToday,
		FailedToday:              failedToday,
		AvgProcessingTimeMinutes: avg / 60,
		EstimatedWaitMinutes:     e.waitSeconds(avg, pending) / 60,
	}, nil
}

func (e *Estimator) dailyCount(ctx context.Context, key string) (int64, error) {
	raw, err := e.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}
