// Package forgeq implements a multi-tenant job queue for long-running
// project-generation requests, with at-least-once delivery semantics and
// lease-based worker ownership.
//
// # Overview
//
// forgeq orders jobs by tenant tier and submission time, dispatches them
// to a bounded pool of workers, and exposes status and wait estimates.
// It separates the data model (job.Job) from the storage primitives
// (store.Store) and from the orchestration components defined here:
//
//	Admission — per-tenant quota and saturation control
//	Manager   — all job state transitions
//	Reaper    — recovery of orphaned in-flight jobs
//	Fleet     — the worker pull loops
//	Estimator — queue depth, positions and ETAs
//
// # Delivery Semantics
//
// forgeq provides at-least-once processing guarantees.
//
// A job may be executed more than once if:
//
//   - a worker crashes before completing it
//   - the lease TTL expires mid-generation
//
// The generation engine must therefore be restartable with the same
// payload.
//
// # Ordering
//
// The pending index is a sorted set scored by a priority-time composite:
// jobs of a higher tier are always claimed before jobs of a lower tier,
// and jobs within a tier are claimed strictly in submission order. There
// is no starvation prevention; paid traffic preempts free indefinitely.
//
// # Lease Model
//
// When a job is claimed it transitions from queued to processing and a
// TTL-bounded lease key is created, naming the owning worker. The worker
// refreshes the lease while the generator runs. Lease expiry is the sole
// authority on "worker presumed dead": the Reaper returns expired jobs
// to the pending index or fails them once the attempt budget is spent.
//
// # State Machine
//
// Jobs follow this lifecycle:
//
//	queued     -> processing
//	queued     -> cancelled
//	processing -> completed
//	processing -> failed
//	processing -> queued     (timeout or retryable failure)
//	processing -> cancelled
//
// Terminal states are never left. Completing or failing a job that is
// already terminal is a no-op, never an error.
//
// # Cancellation
//
// Cancellation is cooperative. Cancelling a queued job removes it from
// the pending index directly. Cancelling a processing job flips a flag
// on the job record and drops the lease; the worker observes the flag at
// its next heartbeat and abandons the generation voluntarily.
//
// # Concurrency Model
//
// All shared mutation flows through the atomic primitives of
// store.Store; the core holds no in-process locks on shared state.
// Components receive their store, configuration and logger explicitly at
// construction, so multiple independent queues can coexist in one
// process and tests can substitute doubles.
//
// Start/Stop lifecycles are strict: a component must not be started
// twice, and Stop waits for in-flight work up to a caller-provided
// timeout.
package forgeq
