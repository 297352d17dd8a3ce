package job

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// scoreShift separates priority bands in the pending index score.
// It exceeds any realistic epoch-seconds value, so jobs of a higher
// priority always sort below every job of a lower priority.
const scoreShift = 1e11

// Job represents a single project-generation request managed by the queue.
//
// ID is generated at admission and is opaque to clients. UserID names the
// tenant; Tier and Priority are fixed at submit time, Priority being derived
// from Tier and never recomputed afterwards.
//
// Payload carries the generation request untouched; the queue never
// inspects it beyond validating that it is a JSON document.
//
// CreatedAt records admission, StartedAt the most recent claim, and
// CompletedAt the terminal transition. All instants are UTC with
// millisecond precision. WorkerID is set by a claim and cleared when the
// job returns to the queue; terminal transitions do not clear it, so a
// finished record keeps the name of its last worker. ErrorMessage is populated only in Failed, ResultHandle only in
// Completed. Attempt starts at 1 and grows on every retry.
//
// Job instances should be treated as snapshots of storage state.
// Mutating fields directly does not change the underlying queue state;
// transitions must be performed through the Manager.
type Job struct {
	ID       uuid.UUID
	UserID   string
	Tier     Tier
	Priority int
	Payload  json.RawMessage

	Status      Status
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time

	WorkerID     string
	ErrorMessage string
	ResultHandle string
	Attempt      int

	CancelRequested bool
}

// New creates a Queued job for the given tenant with a freshly generated
// identifier and the current UTC time truncated to millisecond precision.
//
// The priority must already be resolved from the tier table.
func New(userID string, tier Tier, priority int, payload json.RawMessage) *Job {
	return &Job{
		ID:        uuid.New(),
		UserID:    userID,
		Tier:      tier,
		Priority:  priority,
		Payload:   payload,
		Status:    Queued,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		Attempt:   1,
	}
}

// Score computes the pending-index score of the job: the priority band
// shifted above the epoch-seconds range, plus the submission instant in
// epoch seconds with its millisecond fraction. Equal-priority jobs
// therefore order strictly by submission time.
//
// The score is stable across retries because it is derived from the
// original Priority and CreatedAt.
func (j *Job) Score() float64 {
	return float64(j.Priority)*scoreShift + float64(j.CreatedAt.UnixMilli())/1000
}

// Duration returns the processing time of a completed or failed job,
// or zero when the timestamps are not both set.
func (j *Job) Duration() time.Duration {
	if j.StartedAt.IsZero() || j.CompletedAt.IsZero() {
		return 0
	}
	return j.CompletedAt.Sub(j.StartedAt)
}
