package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates that the requested key or member does not exist.
//
// Read primitives return it instead of an empty value so that callers can
// distinguish "absent" from "present but empty".
var ErrNotFound = errors.New("key not found")

// Store exposes the atomic primitives the queue core is built on.
//
// Every method except Scan is individually atomic with respect to
// concurrent callers.
// Multi-key state transitions are composed from these primitives by the
// queue manager in a fixed order so that a crash between calls leaves the
// system in a recoverable state.
//
// Any method may block on I/O; the provided context bounds that wait.
type Store interface {

	// ZAdd inserts member into the sorted set at key with the given score,
	// or updates its score if already present.
	ZAdd(ctx context.Context, key string, score float64, member string) error

	// ZRange returns members of the sorted set in ascending score order,
	// between the start and stop ranks inclusive. Negative ranks count
	// from the end. A missing key yields an empty slice.
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// ZRem removes member from the sorted set and reports whether it was
	// present. Exactly one of any set of concurrent callers observes true;
	// the queue relies on this for mutually exclusive claims.
	ZRem(ctx context.Context, key, member string) (bool, error)

	// ZRank returns the zero-based ascending rank of member, or
	// ErrNotFound if the member is absent.
	ZRank(ctx context.Context, key, member string) (int64, error)

	// ZCard returns the cardinality of the sorted set.
	ZCard(ctx context.Context, key string) (int64, error)

	// LPush prepends value to the list at key.
	LPush(ctx context.Context, key, value string) error

	// LRem removes all occurrences of value from the list and returns the
	// number removed.
	LRem(ctx context.Context, key, value string) (int64, error)

	// LLen returns the length of the list.
	LLen(ctx context.Context, key string) (int64, error)

	// LRange returns list elements between the start and stop indexes
	// inclusive. Negative indexes count from the end.
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// LTrim truncates the list to the elements between start and stop
	// inclusive. Used to cap the terminal rings.
	LTrim(ctx context.Context, key string, start, stop int64) error

	// HSet writes the given fields into the hash at key, creating it if
	// absent. Fields not named are left untouched.
	HSet(ctx context.Context, key string, fields map[string]string) error

	// HGetAll returns every field of the hash. A missing key yields an
	// empty map, not an error.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// Incr atomically increments the integer at key, creating it at zero
	// first, and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets or refreshes the TTL of key. It reports false when the
	// key does not exist, which callers use to detect a lost lease.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Get returns the string value at key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set writes the string value at key. A zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetIfAbsent writes value at key only when the key does not exist and
	// reports whether the write happened. The lease-acquisition primitive.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// DeleteIfValue removes key only when its current value equals value,
	// atomically, and reports whether it did. The lease-release primitive:
	// an owner never deletes a lease that was reacquired by someone else.
	DeleteIfValue(ctx context.Context, key, value string) (bool, error)

	// Exists reports whether key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes key unconditionally. Deleting a missing key is not
	// an error.
	Delete(ctx context.Context, key string) error

	// Scan returns every key matching the glob pattern. Intended for
	// low-frequency housekeeping sweeps, not hot paths. It walks the
	// keyspace in several steps and is not atomic: keys written or
	// removed during the walk may or may not be returned.
	Scan(ctx context.Context, pattern string) ([]string, error)
}
