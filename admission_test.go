package forgeq_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/genforge/forgeq"
	"github.com/genforge/forgeq/job"
)

func TestAdmitUnknownTier(t *testing.T) {
	q := newTestQueue(t, testConfig())

	_, err := q.admission.Admit(context.Background(), "user", job.Tier("platinum"), testPayload)
	if !errors.Is(err, forgeq.ErrInvalidTier) {
		t.Fatalf("expected ErrInvalidTier, got %v", err)
	}
}

func TestAdmitBadPayload(t *testing.T) {
	q := newTestQueue(t, testConfig())
	ctx := context.Background()

	if _, err := q.admission.Admit(ctx, "user", job.Pro, nil); !errors.Is(err, forgeq.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for empty payload, got %v", err)
	}
	if _, err := q.admission.Admit(ctx, "user", job.Pro, json.RawMessage("{broken")); !errors.Is(err, forgeq.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for bad JSON, got %v", err)
	}
}

func TestAdmitDerivesPriority(t *testing.T) {
	q := newTestQueue(t, testConfig())
	ctx := context.Background()

	expected := map[job.Tier]int{
		job.Enterprise: 0,
		job.Pro:        1,
		job.Indie:      2,
		job.Free:       3,
	}
	for tier, priority := range expected {
		j, err := q.admission.Admit(ctx, "user-"+string(tier), tier, testPayload)
		if err != nil {
			t.Fatal(err)
		}
		if j.Priority != priority {
			t.Fatalf("tier %s: expected priority %d, got %d", tier, priority, j.Priority)
		}
		if j.Status != job.Queued || j.Attempt != 1 {
			t.Fatalf("tier %s: unexpected initial state %+v", tier, j)
		}
	}
}

func TestAdmitQueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.Queue.MaxQueueSize = 2
	q := newTestQueue(t, cfg)
	ctx := context.Background()

	// One below the cap still admits.
	q.submit(t, "user-1", job.Pro)
	q.submit(t, "user-2", job.Pro)

	_, err := q.admission.Admit(ctx, "user-3", job.Pro, testPayload)
	if !errors.Is(err, forgeq.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull at the cap, got %v", err)
	}
}

func TestAdmitMonthlyQuota(t *testing.T) {
	q := newTestQueue(t, testConfig())
	ctx := context.Background()

	q.submit(t, "user-f", job.Free)

	_, err := q.admission.Admit(ctx, "user-f", job.Free, testPayload)
	if !errors.Is(err, forgeq.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded on the second free submission, got %v", err)
	}

	// Other users and paid tiers are unaffected.
	if _, err := q.admission.Admit(ctx, "user-g", job.Free, testPayload); err != nil {
		t.Fatal(err)
	}
	if _, err := q.admission.Admit(ctx, "user-f", job.Pro, testPayload); err != nil {
		t.Fatal(err)
	}
}

func TestAdmitQuotaSurvivesCancel(t *testing.T) {
	q := newTestQueue(t, testConfig())
	ctx := context.Background()

	j := q.submit(t, "user-f", job.Free)
	if _, err := q.manager.Cancel(ctx, j.ID); err != nil {
		t.Fatal(err)
	}

	_, err := q.admission.Admit(ctx, "user-f", job.Free, testPayload)
	if !errors.Is(err, forgeq.ErrQuotaExceeded) {
		t.Fatalf("cancel must not refund quota, got %v", err)
	}
}
