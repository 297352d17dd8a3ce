package forgeq_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/genforge/forgeq"
	"github.com/genforge/forgeq/job"
	"github.com/genforge/forgeq/metrics"
	"github.com/genforge/forgeq/store"
)

var testPayload = json.RawMessage(`{"name":"demo","template":"web-app"}`)

type testQueue struct {
	mr        *miniredis.Miniredis
	store     store.Store
	cfg       forgeq.Config
	collector *metrics.Collector
	admission *forgeq.Admission
	manager   *forgeq.Manager
	estimator *forgeq.Estimator
	log       *slog.Logger
}

func testConfig() forgeq.Config {
	cfg := forgeq.DefaultConfig()
	cfg.Queue.JobTimeoutSeconds = 60
	return cfg
}

func newTestQueue(t *testing.T, cfg forgeq.Config) *testQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	st := store.NewRedisFromClient(client)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	collector := metrics.New()
	estimator := forgeq.NewEstimator(st, cfg, collector, log)
	return &testQueue{
		mr:        mr,
		store:     st,
		cfg:       cfg,
		collector: collector,
		admission: forgeq.NewAdmission(st, cfg, collector, log),
		manager:   forgeq.NewManager(st, cfg, estimator, collector, log),
		estimator: estimator,
		log:       log,
	}
}

// submit admits and enqueues one job for the given user.
func (q *testQueue) submit(t *testing.T, userID string, tier job.Tier) *job.Job {
	t.Helper()
	ctx := context.Background()
	j, err := q.admission.Admit(ctx, userID, tier, testPayload)
	if err != nil {
		t.Fatal(err)
	}
	if err := q.manager.Submit(ctx, j); err != nil {
		t.Fatal(err)
	}
	return j
}

// submitAt enqueues a job with a pinned submission instant, so ordering
// tests do not depend on wall-clock timing.
func (q *testQueue) submitAt(t *testing.T, userID string, tier job.Tier, at time.Time) *job.Job {
	t.Helper()
	ctx := context.Background()
	j, err := q.admission.Admit(ctx, userID, tier, testPayload)
	if err != nil {
		t.Fatal(err)
	}
	j.CreatedAt = at.UTC().Truncate(time.Millisecond)
	if err := q.manager.Submit(ctx, j); err != nil {
		t.Fatal(err)
	}
	return j
}

func mustParse(t *testing.T, id string) uuid.UUID {
	t.Helper()
	parsed, err := uuid.Parse(id)
	if err != nil {
		t.Fatal(err)
	}
	return parsed
}

// waitStatus polls until the job reaches the wanted status or the
// deadline passes.
func (q *testQueue) waitStatus(t *testing.T, id string, want job.Status, deadline time.Duration) *forgeq.StatusView {
	t.Helper()
	ctx := context.Background()
	jid := mustParse(t, id)
	stop := time.Now().Add(deadline)
	for {
		view, err := q.manager.GetStatus(ctx, jid)
		if err == nil && view.Status == want {
			return view
		}
		if time.Now().After(stop) {
			if err != nil {
				t.Fatalf("job %s never reached %v: %v", id, want, err)
			}
			t.Fatalf("job %s never reached %v, last status %v", id, want, view.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
