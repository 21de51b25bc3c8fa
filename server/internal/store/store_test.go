package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rich1707/Customer-Churn/pkg/types"
)

var derivedAt = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func batch(id string) *types.Batch {
	return &types.Batch{SourceID: id, SourceType: "csv", DerivedAt: derivedAt, Status: types.StatusOK}
}

// fixedClock returns a func() time.Time that always returns t.
func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestPutAndGet(t *testing.T) {
	st := New(5 * time.Minute)
	if !st.Put(batch("src-1")) {
		t.Fatal("Put: first batch rejected")
	}

	e, ok := st.Get("src-1")
	if !ok {
		t.Fatal("Get: expected entry, got none")
	}
	if e.Batch.SourceID != "src-1" {
		t.Errorf("SourceID: got %q, want src-1", e.Batch.SourceID)
	}
}

func TestGet_Missing(t *testing.T) {
	st := New(5 * time.Minute)
	_, ok := st.Get("unknown")
	if ok {
		t.Fatal("Get on empty store: expected false, got true")
	}
}

func TestPut_Overwrites(t *testing.T) {
	st := New(5 * time.Minute)
	b1 := batch("src")
	b2 := batch("src")
	b2.DerivedAt = derivedAt.Add(time.Minute)
	b2.Status = types.StatusFailed

	st.Put(b1)
	st.Put(b2)

	e, ok := st.Get("src")
	if !ok {
		t.Fatal("Get: expected entry after two Puts")
	}
	if e.Batch.Status != types.StatusFailed {
		t.Errorf("Status: got %q, want failed", e.Batch.Status)
	}
}

func TestPut_IgnoresOlderBatch(t *testing.T) {
	st := New(5 * time.Minute)
	newer := batch("src")
	newer.DerivedAt = derivedAt.Add(time.Hour)
	newer.ID = "newer"
	older := batch("src")
	older.ID = "older"

	st.Put(newer)
	if st.Put(older) {
		t.Error("Put: older batch accepted")
	}
	e, _ := st.Get("src")
	if e.Batch.ID != "newer" {
		t.Errorf("ID: got %q, want newer", e.Batch.ID)
	}
}

func TestList_ExcludesStaleAndSorts(t *testing.T) {
	base := time.Now()
	st := New(5 * time.Minute)

	st.now = fixedClock(base.Add(-10 * time.Minute)) // stale
	st.Put(batch("old"))

	st.now = fixedClock(base) // live
	st.Put(batch("zeta"))
	st.Put(batch("alpha"))

	entries := st.List()

	if len(entries) != 2 {
		t.Fatalf("List: got %d entries, want 2", len(entries))
	}
	if entries[0].Batch.SourceID != "alpha" || entries[1].Batch.SourceID != "zeta" {
		t.Errorf("List order: got %s, %s", entries[0].Batch.SourceID, entries[1].Batch.SourceID)
	}
}

func TestLive(t *testing.T) {
	base := time.Now()
	st := New(5 * time.Minute)

	st.now = fixedClock(base.Add(-10 * time.Minute))
	st.Put(batch("old"))
	st.now = fixedClock(base)
	st.Put(batch("new"))

	if _, ok := st.Live("old"); ok {
		t.Error("Live(old): stale entry reported live")
	}
	if _, ok := st.Get("old"); !ok {
		t.Error("Get(old): stale entry should still be held until eviction")
	}
	if _, ok := st.Live("new"); !ok {
		t.Error("Live(new): want live")
	}
}

func TestCount_IncludesStale(t *testing.T) {
	base := time.Now()
	st := New(5 * time.Minute)

	st.now = fixedClock(base.Add(-10 * time.Minute))
	st.Put(batch("old"))

	st.now = fixedClock(base)
	st.Put(batch("new"))

	if n := st.Count(); n != 2 {
		t.Errorf("Count: got %d, want 2", n)
	}
}

func TestEvict_RemovesStale(t *testing.T) {
	base := time.Now()
	st := New(5 * time.Minute)

	st.now = fixedClock(base.Add(-10 * time.Minute))
	st.Put(batch("old1"))
	st.Put(batch("old2"))

	st.now = fixedClock(base)
	st.Put(batch("live"))

	removed := st.Evict(base)
	if len(removed) != 2 || removed[0] != "old1" || removed[1] != "old2" {
		t.Errorf("Evict: removed %v, want [old1 old2]", removed)
	}
	if st.Count() != 1 {
		t.Errorf("Count after evict: got %d, want 1", st.Count())
	}
}

func TestEvict_NoOp_AllLive(t *testing.T) {
	base := time.Now()
	st := New(5 * time.Minute)

	st.now = fixedClock(base)
	st.Put(batch("src"))

	if removed := st.Evict(base); len(removed) != 0 {
		t.Errorf("Evict on live entry: removed %v, want none", removed)
	}
}

func TestPut_CountsReceived(t *testing.T) {
	st := New(5 * time.Minute)
	for i := 0; i < 3; i++ {
		b := batch("src")
		b.DerivedAt = derivedAt.Add(time.Duration(i) * time.Minute)
		st.Put(b)
	}
	st.Put(batch("src")) // older than the held batch, refused

	e, _ := st.Get("src")
	if e.Received != 3 {
		t.Errorf("Received: got %d, want 3", e.Received)
	}
}

func TestZeroTTL_NeverStale(t *testing.T) {
	base := time.Now()
	st := New(0)
	st.now = fixedClock(base.Add(-365 * 24 * time.Hour))
	st.Put(batch("ancient"))
	st.now = fixedClock(base)

	if _, ok := st.Live("ancient"); !ok {
		t.Error("Live: entry should never go stale with a zero TTL")
	}
	if removed := st.Evict(base); len(removed) != 0 {
		t.Errorf("Evict: removed %v, want none", removed)
	}

	done := make(chan struct{})
	go func() {
		st.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run with zero TTL should return immediately")
	}
}

func TestRun_CallsOnEvict(t *testing.T) {
	st := New(10 * time.Millisecond)
	st.now = fixedClock(time.Now().Add(-time.Hour))
	st.Put(batch("gone"))
	st.now = time.Now

	got := make(chan []string, 1)
	st.OnEvict(func(ids []string) { got <- ids })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go st.Run(ctx)

	select {
	case ids := <-got:
		if len(ids) != 1 || ids[0] != "gone" {
			t.Errorf("evicted: got %v, want [gone]", ids)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for eviction")
	}
}

func TestConcurrentPuts(t *testing.T) {
	st := New(5 * time.Minute)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			b := batch("concurrent")
			b.DerivedAt = derivedAt.Add(time.Duration(n) * time.Second)
			st.Put(b)
		}(i)
	}
	wg.Wait()

	if st.Count() != 1 {
		t.Errorf("Count after concurrent puts: got %d, want 1", st.Count())
	}
	e, _ := st.Get("concurrent")
	if want := derivedAt.Add(99 * time.Second); !e.Batch.DerivedAt.Equal(want) {
		t.Errorf("latest DerivedAt: got %v, want %v", e.Batch.DerivedAt, want)
	}
}

func TestConcurrentMixedOps(t *testing.T) {
	st := New(5 * time.Minute)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			st.Put(batch("src-a"))
		}()
		go func() {
			defer wg.Done()
			st.List()
		}()
	}
	wg.Wait()
}
