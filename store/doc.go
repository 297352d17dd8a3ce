// Package store provides the thin facade over the shared key-value store
// that the queue core depends on.
//
// The Store interface names the atomic primitives the queue is composed
// from: sorted-set operations for the pending index, list operations for
// the in-flight and terminal rings, hashes for job records, TTL counters
// for quotas and daily statistics, and the set-if-absent /
// delete-if-value pair that implements worker leases.
//
// Redis is the production implementation. Tests substitute an in-process
// server; any backend offering the same per-primitive atomicity can be
// plugged in without touching the queue logic.
package store
