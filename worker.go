package forgeq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/genforge/forgeq/internal"
	"github.com/genforge/forgeq/job"
)

var (
	errCancelled = errors.New("cancelled")
)

type genResult struct {
	handle string
	err    error
}

// Fleet runs the configured number of worker pull loops.
//
// Each loop repeatedly claims the next eligible job, invokes the
// generation engine under a soft deadline, and reports the outcome
// through the Manager. While the engine runs, the loop heartbeats:
// it refreshes the job lease and polls the cancellation flag. An idle
// loop sleeps for the jittered poll interval.
//
// Workers are stateless; any loop may claim any job. The worker identity
// only names the lease owner and tags log lines.
//
// Fleet has a strict lifecycle:
//   - Start may only be called once.
//   - Stop gracefully shuts down the loops.
//   - Stop waits until in-flight generations finish or the timeout
//     expires.
type Fleet struct {
	lcBase
	manager *Manager
	gen     Generator
	group   *internal.RunGroup
	log     *slog.Logger

	count     int
	poll      time.Duration
	jitter    float64
	heartbeat time.Duration
	deadline  time.Duration
}

// NewFleet creates a worker fleet over the given manager and generation
// engine.
//
// The fleet is not started automatically. Call Start to begin claiming.
func NewFleet(manager *Manager, gen Generator, cfg Config, log *slog.Logger) *Fleet {
	leaseTTL := cfg.Queue.JobTimeout()
	deadline := leaseTTL - cfg.Workers.DeadlineMargin()
	if deadline <= 0 {
		deadline = leaseTTL
	}
	return &Fleet{
		manager:   manager,
		gen:       gen,
		group:     internal.NewRunGroup(log),
		log:       log,
		count:     cfg.Workers.Count,
		poll:      cfg.Workers.PollInterval(),
		jitter:    cfg.Workers.JitterFactor,
		heartbeat: leaseTTL / 3,
		deadline:  deadline,
	}
}

// Start launches the worker loops.
//
// Start returns ErrDoubleStarted if the fleet has already been started.
// When ctx is canceled, claiming stops and in-flight generations receive
// a canceled context.
func (f *Fleet) Start(ctx context.Context) error {
	if err := f.tryStart(); err != nil {
		return err
	}
	f.group.Start(ctx, f.count, f.run)
	return nil
}

// Stop initiates graceful shutdown of the fleet.
//
// If shutdown does not complete within the specified timeout,
// ErrStopTimeout is returned and loops may still be terminating in the
// background. Stop returns ErrDoubleStopped if the fleet is not running.
func (f *Fleet) Stop(timeout time.Duration) error {
	return f.tryStop(timeout, f.group.Stop)
}

func (f *Fleet) run(ctx context.Context, index int) {
	w := &worker{
		id:    fmt.Sprintf("worker-%d-%s", index, uuid.NewString()[:8]),
		fleet: f,
		log:   f.log.With("worker_id", fmt.Sprintf("worker-%d", index)),
	}
	for {
		claimed := w.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if claimed {
			continue
		}
		timer := time.NewTimer(jittered(f.poll, f.jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// jittered randomizes d by up to +/- factor so idle loops spread out.
func jittered(d time.Duration, factor float64) time.Duration {
	if factor <= 0 {
		return d
	}
	delta := factor * float64(d)
	return time.Duration(float64(d) - delta + rand.Float64()*2*delta)
}

type worker struct {
	id    string
	fleet *Fleet
	log   *slog.Logger
}

// runOnce claims and processes at most one job, reporting whether a job
// was claimed.
func (w *worker) runOnce(ctx context.Context) bool {
	j, err := w.fleet.manager.ClaimNext(ctx, w.id)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error("claim failed", "err", err)
		}
		return false
	}
	if j == nil {
		return false
	}
	w.process(ctx, j)
	return true
}

func (w *worker) process(ctx context.Context, j *job.Job) {
	genCtx, cancel := context.WithTimeout(ctx, w.fleet.deadline)
	defer cancel()
	handle, err := w.generate(genCtx, cancel, j)
	switch {
	case err == nil:
		if err := w.fleet.manager.Complete(ctx, j.ID, handle); err != nil {
			w.log.Error("cannot complete job", "job_id", j.ID, "err", err)
		}
	case errors.Is(err, errCancelled):
		if err := w.fleet.manager.Fail(ctx, j.ID, "cancelled", false); err != nil {
			w.log.Error("cannot record cancellation", "job_id", j.ID, "err", err)
		}
	case errors.Is(err, ErrLeaseLost):
		// The reaper or a cancel owns the job now.
		w.log.Warn("lease lost, abandoning job", "job_id", j.ID)
	default:
		retryable := !IsNonRetryable(err)
		if err := w.fleet.manager.Fail(ctx, j.ID, err.Error(), retryable); err != nil {
			w.log.Error("cannot fail job", "job_id", j.ID, "err", err)
		}
	}
}

// generate runs the engine and heartbeats until a result arrives.
//
// Each heartbeat tick polls the cancellation flag and refreshes the
// lease. Observing a cancel request or losing the lease cancels the
// engine context and reports the corresponding error.
func (w *worker) generate(ctx context.Context, cancel context.CancelFunc, j *job.Job) (string, error) {
	results := make(chan genResult, 1)
	go func() {
		handle, err := w.fleet.gen.Generate(ctx, j.Payload)
		results <- genResult{handle, err}
	}()
	ticker := time.NewTicker(w.fleet.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case res := <-results:
			return res.handle, res.err
		case <-ticker.C:
			requested, err := w.fleet.manager.CancelRequested(ctx, j.ID)
			if err != nil {
				w.log.Warn("cannot poll cancel flag", "job_id", j.ID, "err", err)
			} else if requested {
				cancel()
				<-results
				return "", errCancelled
			}
			if err := w.fleet.manager.ExtendLease(ctx, j.ID); err != nil {
				cancel()
				<-results
				if errors.Is(err, ErrLeaseLost) && requested {
					return "", errCancelled
				}
				return "", ErrLeaseLost
			}
		}
	}
}
