package forgeq

import (
	"context"
	"errors"
	"time"

	"github.com/genforge/forgeq/job"
	"github.com/genforge/forgeq/store"
)

// StatusView is the client-facing projection of a job.
//
// The base fields are always present; the rest vary by status. Queued
// jobs carry their position and estimates, processing jobs their worker
// and elapsed time, completed jobs the result handle and duration, and
// failed jobs the error.
type StatusView struct {
	JobID     string     `json:"job_id"`
	Status    job.Status `json:"status"`
	CreatedAt time.Time  `json:"created_at"`

	QueuePosition        int64      `json:"queue_position,omitempty"`
	EstimatedStart       *time.Time `json:"estimated_start,omitempty"`
	EstimatedWaitMinutes float64    `json:"estimated_wait_minutes,omitempty"`

	StartedAt      *time.Time `json:"started_at,omitempty"`
	ElapsedSeconds float64    `json:"elapsed_seconds,omitempty"`
	WorkerID       string     `json:"worker_id,omitempty"`

	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ResultHandle    string     `json:"result_handle,omitempty"`
	DurationSeconds float64    `json:"duration_seconds,omitempty"`

	Error string `json:"error,omitempty"`
}

func (m *Manager) view(ctx context.Context, j *job.Job) *StatusView {
	v := &StatusView{
		JobID:     j.ID.String(),
		Status:    j.Status,
		CreatedAt: j.CreatedAt,
	}
	switch j.Status {
	case job.Queued:
		pos, err := m.est.Position(ctx, j.ID.String())
		if err != nil {
			// A claim may be moving the job right now; serve the base view.
			if !errors.Is(err, store.ErrNotFound) {
				m.log.Warn("cannot rank pending job", "job_id", v.JobID, "err", err)
			}
			return v
		}
		v.QueuePosition = pos
		start := m.est.EstimatedStart(ctx, pos)
		v.EstimatedStart = &start
		v.EstimatedWaitMinutes = m.est.WaitMinutes(ctx, pos)
	case job.Processing:
		started := j.StartedAt
		v.StartedAt = &started
		v.ElapsedSeconds = time.Since(started).Seconds()
		v.WorkerID = j.WorkerID
	case job.Completed:
		completed := j.CompletedAt
		v.CompletedAt = &completed
		v.ResultHandle = j.ResultHandle
		v.DurationSeconds = j.Duration().Seconds()
	case job.Failed:
		completed := j.CompletedAt
		v.CompletedAt = &completed
		v.Error = j.ErrorMessage
	case job.Cancelled:
		completed := j.CompletedAt
		v.CompletedAt = &completed
	}
	return v
}
