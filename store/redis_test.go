package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/genforge/forgeq/store"
)

func newTestStore(t *testing.T) (*miniredis.Miniredis, *store.Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, store.NewRedisFromClient(client)
}

func TestSortedSetOps(t *testing.T) {
	_, st := newTestStore(t)
	ctx := context.Background()

	if err := st.ZAdd(ctx, "zs", 3, "c"); err != nil {
		t.Fatal(err)
	}
	if err := st.ZAdd(ctx, "zs", 1, "a"); err != nil {
		t.Fatal(err)
	}
	if err := st.ZAdd(ctx, "zs", 2, "b"); err != nil {
		t.Fatal(err)
	}

	members, err := st.ZRange(ctx, "zs", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 1 || members[0] != "a" {
		t.Fatalf("expected lowest-score member a, got %v", members)
	}

	rank, err := st.ZRank(ctx, "zs", "b")
	if err != nil {
		t.Fatal(err)
	}
	if rank != 1 {
		t.Fatalf("expected rank 1, got %d", rank)
	}
	if _, err := st.ZRank(ctx, "zs", "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	removed, err := st.ZRem(ctx, "zs", "a")
	if err != nil {
		t.Fatal(err)
	}
	if !removed {
		t.Fatal("expected member removed")
	}
	removed, err = st.ZRem(ctx, "zs", "a")
	if err != nil {
		t.Fatal(err)
	}
	if removed {
		t.Fatal("second removal must report false")
	}

	card, err := st.ZCard(ctx, "zs")
	if err != nil {
		t.Fatal(err)
	}
	if card != 2 {
		t.Fatalf("expected cardinality 2, got %d", card)
	}
}

func TestListOps(t *testing.T) {
	_, st := newTestStore(t)
	ctx := context.Background()

	for _, v := range []string{"one", "two", "three"} {
		if err := st.LPush(ctx, "ring", v); err != nil {
			t.Fatal(err)
		}
	}

	length, err := st.LLen(ctx, "ring")
	if err != nil {
		t.Fatal(err)
	}
	if length != 3 {
		t.Fatalf("expected 3 entries, got %d", length)
	}

	entries, err := st.LRange(ctx, "ring", 0, -1)
	if err != nil {
		t.Fatal(err)
	}
	if entries[0] != "three" || entries[2] != "one" {
		t.Fatalf("unexpected order: %v", entries)
	}

	removed, err := st.LRem(ctx, "ring", "two")
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}

	if err := st.LTrim(ctx, "ring", 0, 0); err != nil {
		t.Fatal(err)
	}
	length, err = st.LLen(ctx, "ring")
	if err != nil {
		t.Fatal(err)
	}
	if length != 1 {
		t.Fatalf("expected trimmed length 1, got %d", length)
	}
}

func TestHashOps(t *testing.T) {
	_, st := newTestStore(t)
	ctx := context.Background()

	if err := st.HSet(ctx, "h", map[string]string{"a": "1", "b": "2"}); err != nil {
		t.Fatal(err)
	}
	// Partial updates leave other fields alone.
	if err := st.HSet(ctx, "h", map[string]string{"b": "3"}); err != nil {
		t.Fatal(err)
	}

	fields, err := st.HGetAll(ctx, "h")
	if err != nil {
		t.Fatal(err)
	}
	if fields["a"] != "1" || fields["b"] != "3" {
		t.Fatalf("unexpected fields: %v", fields)
	}

	empty, err := st.HGetAll(ctx, "missing")
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty map for missing hash, got %v", empty)
	}
}

func TestCounterOps(t *testing.T) {
	mr, st := newTestStore(t)
	ctx := context.Background()

	n, err := st.Incr(ctx, "counter")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1, got %d", n)
	}
	if _, err := st.Incr(ctx, "counter"); err != nil {
		t.Fatal(err)
	}

	ok, err := st.Expire(ctx, "counter", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected expire to apply")
	}
	ok, err = st.Expire(ctx, "missing", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expire on a missing key must report false")
	}

	raw, err := st.Get(ctx, "counter")
	if err != nil {
		t.Fatal(err)
	}
	if raw != "2" {
		t.Fatalf("expected 2, got %s", raw)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := st.Get(ctx, "counter"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestLeaseOps(t *testing.T) {
	mr, st := newTestStore(t)
	ctx := context.Background()

	acquired, err := st.SetIfAbsent(ctx, "lease", "w1", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if !acquired {
		t.Fatal("expected lease acquired")
	}
	acquired, err = st.SetIfAbsent(ctx, "lease", "w2", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if acquired {
		t.Fatal("second acquisition must fail while held")
	}

	deleted, err := st.DeleteIfValue(ctx, "lease", "w2")
	if err != nil {
		t.Fatal(err)
	}
	if deleted {
		t.Fatal("wrong owner must not release the lease")
	}
	deleted, err = st.DeleteIfValue(ctx, "lease", "w1")
	if err != nil {
		t.Fatal(err)
	}
	if !deleted {
		t.Fatal("owner must release the lease")
	}

	exists, err := st.Exists(ctx, "lease")
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Fatal("lease must be gone after release")
	}

	if _, err := st.SetIfAbsent(ctx, "lease", "w3", 50*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(100 * time.Millisecond)
	exists, err = st.Exists(ctx, "lease")
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Fatal("lease must expire with its TTL")
	}
}

func TestScan(t *testing.T) {
	_, st := newTestStore(t)
	ctx := context.Background()

	if err := st.Set(ctx, "job:1", "x", 0); err != nil {
		t.Fatal(err)
	}
	if err := st.Set(ctx, "job:2", "y", 0); err != nil {
		t.Fatal(err)
	}
	if err := st.Set(ctx, "other:1", "z", 0); err != nil {
		t.Fatal(err)
	}

	keys, err := st.Scan(ctx, "job:*")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}
}
