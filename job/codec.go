package job

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Hash field names of the persisted job record.
const (
	fieldID           = "job_id"
	fieldUserID       = "user_id"
	fieldTier         = "tier"
	fieldPriority     = "priority"
	fieldPayload      = "payload"
	fieldStatus       = "status"
	fieldCreatedAt    = "created_at"
	fieldStartedAt    = "started_at"
	fieldCompletedAt  = "completed_at"
	fieldWorkerID     = "worker_id"
	fieldErrorMessage = "error_message"
	fieldResultHandle = "result_handle"
	fieldAttempt      = "attempt"
	fieldCancel       = "cancel_requested"
)

// FieldCancelRequested is the hash field flipped by a cancel request on a
// processing job. Workers poll it on every heartbeat tick.
const FieldCancelRequested = fieldCancel

// Encode serializes the job into the flat string map stored in the job
// hash. Timestamps are epoch milliseconds; unset instants encode as the
// empty string. The payload is embedded as its raw JSON text.
func (j *Job) Encode() map[string]string {
	return map[string]string{
		fieldID:           j.ID.String(),
		fieldUserID:       j.UserID,
		fieldTier:         string(j.Tier),
		fieldPriority:     strconv.Itoa(j.Priority),
		fieldPayload:      string(j.Payload),
		fieldStatus:       j.Status.String(),
		fieldCreatedAt:    encodeTime(j.CreatedAt),
		fieldStartedAt:    encodeTime(j.StartedAt),
		fieldCompletedAt:  encodeTime(j.CompletedAt),
		fieldWorkerID:     j.WorkerID,
		fieldErrorMessage: j.ErrorMessage,
		fieldResultHandle: j.ResultHandle,
		fieldAttempt:      strconv.Itoa(j.Attempt),
		fieldCancel:       encodeBool(j.CancelRequested),
	}
}

// Decode reconstructs a job from its hash representation.
//
// Decode is strict about the id, status and priority fields and tolerant
// about the rest: a missing attempt defaults to 1, missing timestamps
// stay zero.
func Decode(fields map[string]string) (*Job, error) {
	raw, ok := fields[fieldID]
	if !ok {
		return nil, fmt.Errorf("job hash missing %s", fieldID)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("bad %s: %w", fieldID, err)
	}
	status, err := ParseStatus(fields[fieldStatus])
	if err != nil {
		return nil, err
	}
	createdAt, err := decodeTime(fields[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("bad %s: %w", fieldCreatedAt, err)
	}
	startedAt, err := decodeTime(fields[fieldStartedAt])
	if err != nil {
		return nil, fmt.Errorf("bad %s: %w", fieldStartedAt, err)
	}
	completedAt, err := decodeTime(fields[fieldCompletedAt])
	if err != nil {
		return nil, fmt.Errorf("bad %s: %w", fieldCompletedAt, err)
	}
	priority, err := strconv.Atoi(fields[fieldPriority])
	if err != nil {
		return nil, fmt.Errorf("bad %s: %w", fieldPriority, err)
	}
	attempt := 1
	if raw := fields[fieldAttempt]; raw != "" {
		attempt, err = strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("bad %s: %w", fieldAttempt, err)
		}
	}
	return &Job{
		ID:              id,
		UserID:          fields[fieldUserID],
		Tier:            Tier(fields[fieldTier]),
		Priority:        priority,
		Payload:         []byte(fields[fieldPayload]),
		Status:          status,
		CreatedAt:       createdAt,
		StartedAt:       startedAt,
		CompletedAt:     completedAt,
		WorkerID:        fields[fieldWorkerID],
		ErrorMessage:    fields[fieldErrorMessage],
		ResultHandle:    fields[fieldResultHandle],
		Attempt:         attempt,
		CancelRequested: fields[fieldCancel] == "1",
	}, nil
}

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func decodeTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}

func encodeBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
