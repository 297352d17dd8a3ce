package forgeq

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/genforge/forgeq/job"
	"github.com/genforge/forgeq/metrics"
	"github.com/genforge/forgeq/store"
)

// Manager owns every job state transition.
//
// All mutations of the pending index, the in-flight list, the terminal
// rings and the job records flow through its methods; workers, the reaper
// and the API handlers never write to those structures directly. Each
// transition is composed from individually atomic store primitives in a
// fixed order, chosen so that a crash between calls leaves the system in
// a state the reaper or the housekeeping sweep can recover.
type Manager struct {
	store   store.Store
	cfg     Config
	est     *Estimator
	metrics *metrics.Collector
	log     *slog.Logger
}

// NewManager creates a queue manager over the given store.
//
// The estimator is consulted for position and ETA figures in status views
// and fed with completion durations.
func NewManager(st store.Store, cfg Config, est *Estimator, collector *metrics.Collector, log *slog.Logger) *Manager {
	return &Manager{
		store:   st,
		cfg:     cfg,
		est:     est,
		metrics: collector,
		log:     log,
	}
}

// Submit persists an admitted job and makes it claimable.
//
// Write order: job record first, pending index second, monthly counter
// last. The pending write is the commit point: a crash before it leaves
// an invisible record that housekeeping returns to the queue, and a crash
// after it can at worst under-count the quota, never inflate it.
func (m *Manager) Submit(ctx context.Context, j *job.Job) error {
	id := j.ID.String()
	if err := m.store.HSet(ctx, jobKey(id), j.Encode()); err != nil {
		return err
	}
	if err := m.store.ZAdd(ctx, keyPending, j.Score(), id); err != nil {
		return err
	}
	counter := monthlyKey(j.UserID, j.CreatedAt)
	if _, err := m.store.Incr(ctx, counter); err != nil {
		m.log.Warn("cannot bump monthly counter", "job_id", id, "err", err)
	} else if _, err := m.store.Expire(ctx, counter, monthlyCounterTTL); err != nil {
		m.log.Warn("cannot set monthly counter ttl", "job_id", id, "err", err)
	}
	m.metrics.JobSubmitted()
	m.log.Info("job submitted",
		"job_id", id, "user_id", j.UserID, "tier", j.Tier, "priority", j.Priority)
	return nil
}

// ClaimNext hands the lowest-scored pending job to the calling worker, or
// nil when the queue is empty or the in-flight list is at the concurrency
// cap.
//
// The claim is mutually exclusive: removal from the pending index reports
// whether this caller won, so two workers can never claim the same job.
// Losing the removal race, to another claim or to a cancel, moves on to
// the next head.
func (m *Manager) ClaimNext(ctx context.Context, workerID string) (*job.Job, error) {
	inflight, err := m.store.LLen(ctx, keyInflight)
	if err != nil {
		return nil, err
	}
	if inflight >= int64(m.cfg.Queue.MaxConcurrentJobs) {
		return nil, nil
	}
	for {
		heads, err := m.store.ZRange(ctx, keyPending, 0, 0)
		if err != nil {
			return nil, err
		}
		if len(heads) == 0 {
			return nil, nil
		}
		id := heads[0]
		won, err := m.store.ZRem(ctx, keyPending, id)
		if err != nil {
			return nil, err
		}
		if !won {
			continue
		}
		fields, err := m.store.HGetAll(ctx, jobKey(id))
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			m.log.Warn("pending entry without job record", "job_id", id)
			continue
		}
		j, err := job.Decode(fields)
		if err != nil {
			return nil, err
		}
		now := time.Now().UTC().Truncate(time.Millisecond)
		j.Status = job.Processing
		j.StartedAt = now
		j.WorkerID = workerID
		if err := m.store.LPush(ctx, keyInflight, id); err != nil {
			return nil, err
		}
		if err := m.store.HSet(ctx, jobKey(id), j.Encode()); err != nil {
			return nil, err
		}
		if _, err := m.store.SetIfAbsent(ctx, leaseKey(id), workerID, m.cfg.Queue.JobTimeout()); err != nil {
			return nil, err
		}
		m.log.Info("job claimed", "job_id", id, "worker_id", workerID, "attempt", j.Attempt)
		return j, nil
	}
}

// Complete records a successful generation.
//
// Completing a job that already reached a terminal state is a no-op
// success; completing a queued job is an illegal transition.
func (m *Manager) Complete(ctx context.Context, jobID uuid.UUID, resultHandle string) error {
	j, err := m.load(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Status.Terminal() {
		return nil
	}
	if j.Status != job.Processing {
		return ErrIllegalTransition
	}
	id := jobID.String()
	owner := j.WorkerID
	now := time.Now().UTC().Truncate(time.Millisecond)
	j.Status = job.Completed
	j.CompletedAt = now
	j.ResultHandle = resultHandle
	if err := m.store.HSet(ctx, jobKey(id), j.Encode()); err != nil {
		return err
	}
	m.finishInflight(ctx, id, owner)
	m.pushRing(ctx, keyCompletedRing, id)
	m.bumpDaily(ctx, dailyCompletedKey(now))
	m.retire(ctx, id)
	duration := j.Duration()
	m.est.Observe(ctx, duration)
	m.metrics.JobCompleted(duration)
	m.log.Info("job completed", "job_id", id, "duration", duration)
	return nil
}

// Fail records a generation failure.
//
// A retryable failure with attempts remaining returns the job to the
// pending index under its original priority-time score, so it keeps its
// place relative to peers submitted at the same instant. Otherwise the
// job is terminal: failed, or cancelled when a cancel request was the
// cause. Failing an already-terminal job is a no-op success.
func (m *Manager) Fail(ctx context.Context, jobID uuid.UUID, message string, retryable bool) error {
	j, err := m.load(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Status.Terminal() {
		return nil
	}
	if j.Status != job.Processing {
		return ErrIllegalTransition
	}
	id := jobID.String()
	owner := j.WorkerID
	if retryable && !j.CancelRequested && j.Attempt < m.cfg.Queue.MaxAttempts {
		j.Attempt++
		j.Status = job.Queued
		j.StartedAt = time.Time{}
		j.WorkerID = ""
		if err := m.store.HSet(ctx, jobKey(id), j.Encode()); err != nil {
			return err
		}
		if err := m.store.ZAdd(ctx, keyPending, j.Score(), id); err != nil {
			return err
		}
		m.finishInflight(ctx, id, owner)
		m.metrics.JobRetried()
		m.log.Warn("job returned for retry",
			"job_id", id, "attempt", j.Attempt, "err", message)
		return nil
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	j.CompletedAt = now
	if j.CancelRequested {
		j.Status = job.Cancelled
	} else {
		j.Status = job.Failed
		j.ErrorMessage = message
	}
	if err := m.store.HSet(ctx, jobKey(id), j.Encode()); err != nil {
		return err
	}
	m.finishInflight(ctx, id, owner)
	m.retire(ctx, id)
	if j.Status == job.Cancelled {
		m.metrics.JobCancelled()
		m.log.Info("job cancelled by worker", "job_id", id)
		return nil
	}
	m.pushRing(ctx, keyFailedRing, id)
	m.bumpDaily(ctx, dailyFailedKey(now))
	m.metrics.JobFailed()
	m.log.Warn("job failed", "job_id", id, "attempt", j.Attempt, "err", message)
	return nil
}

// Cancel cancels a queued or processing job.
//
// A queued job is cancelled immediately; winning the removal from the
// pending index decides a race against a concurrent claim. A processing
// job gets its cancellation flag set and its lease dropped; the worker
// observes the flag at the next heartbeat and abandons the generation.
// Cancelling a terminal job is an illegal transition.
func (m *Manager) Cancel(ctx context.Context, jobID uuid.UUID) (*job.Job, error) {
	j, err := m.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	id := jobID.String()
	if j.Status == job.Queued {
		won, err := m.store.ZRem(ctx, keyPending, id)
		if err != nil {
			return nil, err
		}
		if won {
			return m.markCancelled(ctx, j)
		}
		// Lost the race to a concurrent claim; re-read and fall through.
		if j, err = m.load(ctx, jobID); err != nil {
			return nil, err
		}
	}
	switch j.Status {
	case job.Processing:
		if err := m.store.HSet(ctx, jobKey(id), map[string]string{job.FieldCancelRequested: "1"}); err != nil {
			return nil, err
		}
		if err := m.store.Delete(ctx, leaseKey(id)); err != nil {
			return nil, err
		}
		j.CancelRequested = true
		m.log.Info("cancel requested", "job_id", id, "worker_id", j.WorkerID)
		return j, nil
	case job.Queued:
		// Not claimable and not claimed: a half-submitted record.
		return m.markCancelled(ctx, j)
	default:
		return nil, ErrIllegalTransition
	}
}

func (m *Manager) markCancelled(ctx context.Context, j *job.Job) (*job.Job, error) {
	id := j.ID.String()
	j.Status = job.Cancelled
	j.CompletedAt = time.Now().UTC().Truncate(time.Millisecond)
	if err := m.store.HSet(ctx, jobKey(id), j.Encode()); err != nil {
		return nil, err
	}
	m.retire(ctx, id)
	m.metrics.JobCancelled()
	m.log.Info("job cancelled", "job_id", id)
	return j, nil
}

// ExtendLease refreshes the lease TTL of a processing job on behalf of
// its worker. ErrLeaseLost is returned when the lease no longer exists,
// whether through expiry or a cancel request.
func (m *Manager) ExtendLease(ctx context.Context, jobID uuid.UUID) error {
	ok, err := m.store.Expire(ctx, leaseKey(jobID.String()), m.cfg.Queue.JobTimeout())
	if err != nil {
		return err
	}
	if !ok {
		return ErrLeaseLost
	}
	return nil
}

// CancelRequested reports whether a cancel request has been flagged on
// the job record.
func (m *Manager) CancelRequested(ctx context.Context, jobID uuid.UUID) (bool, error) {
	j, err := m.load(ctx, jobID)
	if err != nil {
		return false, err
	}
	return j.CancelRequested, nil
}

// GetStatus materializes the client-facing view of a job. Pure read.
func (m *Manager) GetStatus(ctx context.Context, jobID uuid.UUID) (*StatusView, error) {
	j, err := m.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return m.view(ctx, j), nil
}

// load reads and decodes a job record, mapping an absent hash to
// ErrJobNotFound.
func (m *Manager) load(ctx context.Context, jobID uuid.UUID) (*job.Job, error) {
	fields, err := m.store.HGetAll(ctx, jobKey(jobID.String()))
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrJobNotFound
	}
	return job.Decode(fields)
}

// finishInflight removes the job from the in-flight list and releases its
// lease. The compare-delete leaves a lease alone if another worker
// already reacquired it.
func (m *Manager) finishInflight(ctx context.Context, id, owner string) {
	if _, err := m.store.LRem(ctx, keyInflight, id); err != nil {
		m.log.Warn("cannot remove in-flight entry", "job_id", id, "err", err)
	}
	if owner == "" {
		return
	}
	if _, err := m.store.DeleteIfValue(ctx, leaseKey(id), owner); err != nil {
		m.log.Warn("cannot release lease", "job_id", id, "err", err)
	}
}

func (m *Manager) pushRing(ctx context.Context, ring, id string) {
	if err := m.store.LPush(ctx, ring, id); err != nil {
		m.log.Warn("cannot push terminal ring", "job_id", id, "err", err)
		return
	}
	if err := m.store.LTrim(ctx, ring, 0, m.cfg.Queue.RingCap-1); err != nil {
		m.log.Warn("cannot trim terminal ring", "ring", ring, "err", err)
	}
}

func (m *Manager) bumpDaily(ctx context.Context, key string) {
	if _, err := m.store.Incr(ctx, key); err != nil {
		m.log.Warn("cannot bump daily counter", "key", key, "err", err)
		return
	}
	if _, err := m.store.Expire(ctx, key, dailyCounterTTL); err != nil {
		m.log.Warn("cannot set daily counter ttl", "key", key, "err", err)
	}
}

// retire bounds how long a terminal record stays readable.
func (m *Manager) retire(ctx context.Context, id string) {
	if _, err := m.store.Expire(ctx, jobKey(id), m.cfg.Queue.Retention()); err != nil {
		m.log.Warn("cannot set record retention", "job_id", id, "err", err)
	}
}
