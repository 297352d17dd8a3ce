// Package job defines the stateful representation of a project-generation
// request within the queue lifecycle.
//
// A Job carries the tenant identity, the opaque generation payload, and the
// delivery metadata maintained by the queue: status, timestamps, attempt
// counter, worker ownership and the terminal outcome fields.
//
// The package also defines the Tier table from which scheduling priority
// and monthly quotas are derived, and the hash codec that maps a Job onto
// the flat field map persisted in the backing store.
//
// Job values are snapshots. Their fields reflect the authoritative state
// stored by the queue backend; transitions must be performed through the
// queue manager.
package job
