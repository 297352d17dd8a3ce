package forgeq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/genforge/forgeq/job"
	"github.com/genforge/forgeq/metrics"
	"github.com/genforge/forgeq/store"
)

// Admission gates submissions on global queue saturation and per-tenant
// monthly quotas, and resolves the scheduling priority from the tier
// table.
//
// Admission only reads shared state and mints the job value; persisting
// and enqueueing the admitted job is the Manager's job.
type Admission struct {
	store   store.Store
	cfg     Config
	metrics *metrics.Collector
	log     *slog.Logger
}

// NewAdmission creates an admission controller over the given store and
// configuration.
func NewAdmission(st store.Store, cfg Config, collector *metrics.Collector, log *slog.Logger) *Admission {
	return &Admission{
		store:   st,
		cfg:     cfg,
		metrics: collector,
		log:     log,
	}
}

// Admit validates a submission and returns a fully populated queued job.
//
// It rejects with:
//
//	ErrInvalidTier    when the tier is not in the tier table
//	ErrInvalidPayload when the payload is empty or not JSON
//	ErrQueueFull      when the pending index is at the global cap
//	ErrQuotaExceeded  when the user's monthly counter is at the tier limit
//
// On success the job carries a fresh identifier, the submission instant,
// and the priority derived from the tier. The monthly counter is not
// touched here; it moves only once the job is durably enqueued.
func (a *Admission) Admit(ctx context.Context, userID string, tier job.Tier, payload json.RawMessage) (*job.Job, error) {
	limits, ok := a.cfg.Tiers[tier]
	if !ok {
		a.metrics.JobRejected("invalid_tier")
		return nil, fmt.Errorf("%w: %s", ErrInvalidTier, tier)
	}
	if len(payload) == 0 || !json.Valid(payload) {
		a.metrics.JobRejected("invalid_payload")
		return nil, ErrInvalidPayload
	}
	depth, err := a.store.ZCard(ctx, keyPending)
	if err != nil {
		return nil, err
	}
	if depth >= a.cfg.Queue.MaxQueueSize {
		a.metrics.JobRejected("queue_full")
		a.log.Warn("submission rejected, queue full", "user_id", userID, "depth", depth)
		return nil, ErrQueueFull
	}
	if limits.MonthlyLimit != job.UnlimitedMonthly {
		used, err := a.monthlyCount(ctx, userID)
		if err != nil {
			return nil, err
		}
		if used >= limits.MonthlyLimit {
			a.metrics.JobRejected("quota_exceeded")
			a.log.Info("submission rejected, quota exceeded",
				"user_id", userID, "tier", tier, "used", used, "limit", limits.MonthlyLimit)
			return nil, ErrQuotaExceeded
		}
	}
	return job.New(userID, tier, limits.Priority, payload), nil
}

func (a *Admission) monthlyCount(ctx context.Context, userID string) (int64, error) {
	raw, err := a.store.Get(ctx, monthlyKey(userID, time.Now()))
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}
