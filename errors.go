package forgeq

import "errors"

var (
	// ErrInvalidTier indicates that the submitted tier is not one of the
	// known tenant classes.
	ErrInvalidTier = errors.New("invalid tier")

	// ErrInvalidPayload indicates that the generation request is empty or
	// not a JSON document.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrQueueFull indicates that the pending index has reached the
	// configured global cap and no further submissions are admitted.
	ErrQueueFull = errors.New("queue full")

	// ErrQuotaExceeded indicates that the user has exhausted the monthly
	// admission quota of their tier.
	ErrQuotaExceeded = errors.New("monthly quota exceeded")

	// ErrJobNotFound indicates that no job record exists for the given
	// identifier. Records of finished jobs expire after the retention
	// window, so an old identifier eventually resolves to this error.
	ErrJobNotFound = errors.New("job not found")

	// ErrIllegalTransition indicates that the requested operation is not
	// permitted in the job's current state, for example cancelling a
	// completed job.
	ErrIllegalTransition = errors.New("illegal state transition")

	// ErrLeaseLost indicates that the worker no longer owns the lease of
	// the job it is processing.
	//
	// This happens when the lease TTL expires before a heartbeat refresh,
	// or when a cancel request drops the lease. The job is then owned by
	// the reaper or already re-claimed; the worker must abandon it.
	ErrLeaseLost = errors.New("lease lost")
)
