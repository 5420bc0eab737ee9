package ttlstore

import (
	"fmt"
	"testing"
	"time"
)

func TestPutGet(t *testing.T) {
	s := New[string](10)
	s.Put("a", "alpha", time.Now().Add(time.Minute))

	v, ok := s.Get("a")
	if !ok || v != "alpha" {
		t.Fatalf("Get: want (alpha, true), got (%q, %t)", v, ok)
	}
	if _, ok := s.Get("missing"); ok {
		t.Fatal("Get of missing key reported a hit")
	}
}

func TestExpiry(t *testing.T) {
	s := New[string](10)
	base := time.Now()
	s.now = func() time.Time { return base }
	s.Put("a", "alpha", base.Add(10*time.Minute))

	s.now = func() time.Time { return base.Add(10*time.Minute - time.Second) }
	if _, ok := s.Get("a"); !ok {
		t.Fatal("entry rejected before its expiry instant")
	}

	s.now = func() time.Time { return base.Add(10 * time.Minute) }
	if _, ok := s.Get("a"); ok {
		t.Fatal("entry accepted at its expiry instant")
	}
	// Deleted on sight: a second lookup misses the map entirely.
	if got := s.Len(); got != 0 {
		t.Fatalf("expired entry not deleted on sight: len=%d", got)
	}
}

func TestDeleteReportsRemoval(t *testing.T) {
	s := New[string](10)
	s.Put("a", "alpha", time.Now().Add(time.Minute))

	if !s.Delete("a") {
		t.Fatal("first Delete reported no removal")
	}
	if s.Delete("a") {
		t.Fatal("second Delete reported a removal")
	}
}

func TestCapacityEvictsOldestFirst(t *testing.T) {
	s := New[string](3)
	exp := time.Now().Add(time.Hour)
	for i := 0; i < 5; i++ {
		s.Put(fmt.Sprintf("k%d", i), "v", exp)
	}

	if got := s.Len(); got != 3 {
		t.Fatalf("len after overflow: want 3, got %d", got)
	}
	for _, gone := range []string{"k0", "k1"} {
		if _, ok := s.Get(gone); ok {
			t.Errorf("oldest entry %s survived eviction", gone)
		}
	}
	for _, kept := range []string{"k2", "k3", "k4"} {
		if _, ok := s.Get(kept); !ok {
			t.Errorf("recent entry %s was evicted", kept)
		}
	}
}

func TestReinsertRefreshesAge(t *testing.T) {
	s := New[string](2)
	exp := time.Now().Add(time.Hour)
	s.Put("a", "1", exp)
	s.Put("b", "2", exp)
	s.Put("a", "3", exp) // re-insert makes "a" the newest
	s.Put("c", "4", exp) // overflow must evict "b", not "a"

	if _, ok := s.Get("b"); ok {
		t.Error("expected b to be evicted as oldest")
	}
	if v, ok := s.Get("a"); !ok || v != "3" {
		t.Errorf("re-inserted entry lost: (%q, %t)", v, ok)
	}
}

func TestSweep(t *testing.T) {
	s := New[string](3)
	base := time.Now()
	s.now = func() time.Time { return base }

	s.Put("old1", "v", base.Add(time.Minute))
	s.Put("old2", "v", base.Add(time.Minute))
	s.Put("live1", "v", base.Add(time.Hour))

	s.now = func() time.Time { return base.Add(30 * time.Minute) }
	expired, evicted := s.Sweep()
	if expired != 2 || evicted != 0 {
		t.Fatalf("Sweep: want (2, 0), got (%d, %d)", expired, evicted)
	}

	// Refill past capacity with live entries; sweep enforces the ceiling.
	far := base.Add(2 * time.Hour)
	for i := 0; i < 5; i++ {
		s.Put(fmt.Sprintf("n%d", i), "v", far)
	}
	expired, evicted = s.Sweep()
	if expired != 0 {
		t.Fatalf("Sweep expired live entries: %d", expired)
	}
	if got := s.Len(); got != 3 {
		t.Fatalf("len after sweep: want 3, got %d", got)
	}
}
