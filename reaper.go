package forgeq

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/genforge/forgeq/internal"
	"github.com/genforge/forgeq/job"
	"github.com/genforge/forgeq/metrics"
	"github.com/genforge/forgeq/store"
)

// Reaper recovers jobs whose worker is presumed dead.
//
// Lease expiry is the sole authority on worker death: an in-flight entry
// without a lease key is treated as a crash. The job is returned to the
// pending index under its original priority-time score, or failed once
// its attempt budget is spent.
//
// A slower housekeeping sweep returns queued job records that are missing
// from every active index (remnants of a crash between transition steps)
// back to the queue once they are old enough.
//
// Both sweeps are idempotent and safe to run concurrently with workers
// and with other reaper instances: every decision re-reads the job record
// and leases are released with a compare-delete, so a just-completed or
// just-reclaimed job is never clobbered.
//
// Reaper has a strict lifecycle:
//   - Start may only be called once.
//   - Stop waits for the background tasks to finish or until the timeout
//     expires.
type Reaper struct {
	lcBase
	store     store.Store
	cfg       Config
	metrics   *metrics.Collector
	log       *slog.Logger
	sweep     internal.TimerTask
	housekeep internal.TimerTask
}

// NewReaper creates a reaper over the given store and configuration.
//
// The reaper is not started automatically. Call Start to begin periodic
// sweeps.
func NewReaper(st store.Store, cfg Config, collector *metrics.Collector, log *slog.Logger) *Reaper {
	return &Reaper{
		store:   st,
		cfg:     cfg,
		metrics: collector,
		log:     log,
	}
}

// Start begins the periodic sweep and housekeeping tasks.
//
// Start returns ErrDoubleStarted if the reaper has already been started.
// The provided context controls cancellation of the background tasks.
func (r *Reaper) Start(ctx context.Context) error {
	if err := r.tryStart(); err != nil {
		return err
	}
	r.sweep.Start(ctx, r.Sweep, r.cfg.Queue.ReaperInterval())
	r.housekeep.Start(ctx, r.Housekeep, r.cfg.Queue.HousekeepInterval())
	return nil
}

// Stop terminates the background tasks.
//
// Stop waits until both tasks finish or the specified timeout expires.
// Stop returns ErrDoubleStopped if the reaper is not running.
func (r *Reaper) Stop(timeout time.Duration) error {
	return r.tryStop(timeout, func() internal.DoneChan {
		return internal.Combine(r.sweep.Stop(), r.housekeep.Stop())
	})
}

// Sweep runs one pass over the in-flight list, recovering every entry
// whose lease has expired.
func (r *Reaper) Sweep(ctx context.Context) {
	ids, err := r.store.LRange(ctx, keyInflight, 0, -1)
	if err != nil {
		r.log.Error("cannot read in-flight list", "err", err)
		return
	}
	for _, id := range ids {
		leased, err := r.store.Exists(ctx, leaseKey(id))
		if err != nil {
			r.log.Error("cannot check lease", "job_id", id, "err", err)
			continue
		}
		if leased {
			continue
		}
		r.reap(ctx, id)
	}
}

func (r *Reaper) reap(ctx context.Context, id string) {
	fields, err := r.store.HGetAll(ctx, jobKey(id))
	if err != nil {
		r.log.Error("cannot read job record", "job_id", id, "err", err)
		return
	}
	if len(fields) == 0 {
		// Record already expired; drop the stale entry.
		r.dropInflight(ctx, id)
		return
	}
	j, err := job.Decode(fields)
	if err != nil {
		r.log.Error("cannot decode job record", "job_id", id, "err", err)
		return
	}
	if j.Status != job.Processing {
		// Completed, cancelled, or already returned by an earlier pass.
		r.dropInflight(ctx, id)
		return
	}
	owner := j.WorkerID
	if j.CancelRequested {
		// The client cancelled and the worker is gone; finish the cancel.
		j.Status = job.Cancelled
		j.CompletedAt = time.Now().UTC().Truncate(time.Millisecond)
		if err := r.store.HSet(ctx, jobKey(id), j.Encode()); err != nil {
			r.log.Error("cannot cancel expired job", "job_id", id, "err", err)
			return
		}
		r.dropInflight(ctx, id)
		r.releaseLease(ctx, id, owner)
		if _, err := r.store.Expire(ctx, jobKey(id), r.cfg.Queue.Retention()); err != nil {
			r.log.Warn("cannot set record retention", "job_id", id, "err", err)
		}
		r.metrics.JobCancelled()
		r.log.Info("cancelled job reaped", "job_id", id)
		return
	}
	if j.Attempt < r.cfg.Queue.MaxAttempts {
		j.Attempt++
		j.Status = job.Queued
		j.StartedAt = time.Time{}
		j.WorkerID = ""
		if err := r.store.HSet(ctx, jobKey(id), j.Encode()); err != nil {
			r.log.Error("cannot requeue expired job", "job_id", id, "err", err)
			return
		}
		if err := r.store.ZAdd(ctx, keyPending, j.Score(), id); err != nil {
			r.log.Error("cannot requeue expired job", "job_id", id, "err", err)
			return
		}
		r.dropInflight(ctx, id)
		r.releaseLease(ctx, id, owner)
		r.metrics.JobReaped()
		r.log.Warn("expired job returned to queue",
			"job_id", id, "worker_id", owner, "attempt", j.Attempt)
		return
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	j.Status = job.Failed
	j.ErrorMessage = "timed out"
	j.CompletedAt = now
	if err := r.store.HSet(ctx, jobKey(id), j.Encode()); err != nil {
		r.log.Error("cannot fail expired job", "job_id", id, "err", err)
		return
	}
	r.dropInflight(ctx, id)
	r.releaseLease(ctx, id, owner)
	if err := r.store.LPush(ctx, keyFailedRing, id); err != nil {
		r.log.Warn("cannot push failed ring", "job_id", id, "err", err)
	} else if err := r.store.LTrim(ctx, keyFailedRing, 0, r.cfg.Queue.RingCap-1); err != nil {
		r.log.Warn("cannot trim failed ring", "err", err)
	}
	if _, err := r.store.Incr(ctx, dailyFailedKey(now)); err != nil {
		r.log.Warn("cannot bump daily counter", "job_id", id, "err", err)
	} else if _, err := r.store.Expire(ctx, dailyFailedKey(now), dailyCounterTTL); err != nil {
		r.log.Warn("cannot set daily counter ttl", "job_id", id, "err", err)
	}
	if _, err := r.store.Expire(ctx, jobKey(id), r.cfg.Queue.Retention()); err != nil {
		r.log.Warn("cannot set record retention", "job_id", id, "err", err)
	}
	r.metrics.JobReaped()
	r.metrics.JobFailed()
	r.log.Error("expired job failed permanently",
		"job_id", id, "worker_id", owner, "attempt", j.Attempt)
}

// Housekeep returns orphaned queued records to the pending index.
//
// A queued record that sits in neither the pending index nor the
// in-flight list is a remnant of a crash mid-transition. Once it is older
// than the configured ghost age it is re-enqueued under its original
// score; processing it again is safe because the generation engine is
// restartable.
func (r *Reaper) Housekeep(ctx context.Context) {
	keys, err := r.store.Scan(ctx, jobKeyPattern)
	if err != nil {
		r.log.Error("cannot scan job records", "err", err)
		return
	}
	inflight, err := r.store.LRange(ctx, keyInflight, 0, -1)
	if err != nil {
		r.log.Error("cannot read in-flight list", "err", err)
		return
	}
	inflightSet := make(map[string]struct{}, len(inflight))
	for _, id := range inflight {
		inflightSet[id] = struct{}{}
	}
	cutoff := time.Now().Add(-r.cfg.Queue.GhostAge())
	for _, key := range keys {
		if strings.HasSuffix(key, leaseSuffix) {
			continue
		}
		id, ok := jobIDFromKey(key)
		if !ok {
			continue
		}
		r.housekeepOne(ctx, id.String(), inflightSet, cutoff)
	}
}

func (r *Reaper) housekeepOne(ctx context.Context, id string, inflight map[string]struct{}, cutoff time.Time) {
	fields, err := r.store.HGetAll(ctx, jobKey(id))
	if err != nil || len(fields) == 0 {
		return
	}
	j, err := job.Decode(fields)
	if err != nil {
		return
	}
	if j.Status != job.Queued || j.CreatedAt.After(cutoff) {
		return
	}
	if _, ok := inflight[id]; ok {
		return
	}
	if _, err := r.store.ZRank(ctx, keyPending, id); !errors.Is(err, store.ErrNotFound) {
		return
	}
	if err := r.store.ZAdd(ctx, keyPending, j.Score(), id); err != nil {
		r.log.Error("cannot requeue orphaned job", "job_id", id, "err", err)
		return
	}
	r.log.Warn("orphaned job returned to queue", "job_id", id, "age", time.Since(j.CreatedAt))
}

func (r *Reaper) dropInflight(ctx context.Context, id string) {
	if _, err := r.store.LRem(ctx, keyInflight, id); err != nil {
		r.log.Warn("cannot remove in-flight entry", "job_id", id, "err", err)
	}
}

func (r *Reaper) releaseLease(ctx context.Context, id, owner string) {
	if owner == "" {
		return
	}
	if _, err := r.store.DeleteIfValue(ctx, leaseKey(id), owner); err != nil {
		r.log.Warn("cannot release lease", "job_id", id, "err", err)
	}
}
