package forgeq

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Persisted key layout. Keys are hierarchical strings in the shared store:
//
//	queue:pending                 sorted set of job ids, priority-time scores
//	queue:inflight                list of job ids currently claimed
//	queue:completed, queue:failed capped terminal rings
//	job:{id}                      job record hash
//	job:{id}:lease                lease key, worker id value, TTL-bounded
//	user:{id}:jobs:{YYYY-MM}      monthly admission counter, 31-day TTL
//	stats:completed:{YYYY-MM-DD}  daily outcome counters, 48-hour TTL
//	stats:failed:{YYYY-MM-DD}
//	stats:avg_seconds             rolling mean of processing time
const (
	keyPending       = "queue:pending"
	keyInflight      = "queue:inflight"
	keyCompletedRing = "queue:completed"
	keyFailedRing    = "queue:failed"
	keyAvgSeconds    = "stats:avg_seconds"

	jobKeyPattern = "job:*"
	leaseSuffix   = ":lease"

	monthlyCounterTTL = 31 * 24 * time.Hour
	dailyCounterTTL   = 48 * time.Hour
)

func jobKey(id string) string {
	return "job:" + id
}

func leaseKey(id string) string {
	return "job:" + id + leaseSuffix
}

func monthlyKey(userID string, at time.Time) string {
	return fmt.Sprintf("user:%s:jobs:%s", userID, at.UTC().Format("2006-01"))
}

func dailyCompletedKey(at time.Time) string {
	return "stats:completed:" + at.UTC().Format("2006-01-02")
}

func dailyFailedKey(at time.Time) string {
	return "stats:failed:" + at.UTC().Format("2006-01-02")
}

func jobIDFromKey(key string) (uuid.UUID, bool) {
	if len(key) <= 4 || key[:4] != "job:" {
		return uuid.UUID{}, false
	}
	id, err := uuid.Parse(key[4:])
	if err != nil {
		return uuid.UUID{}, false
	}
	return id, true
}
