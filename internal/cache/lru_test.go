// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package cache

import (
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"
)

// fakeClock lets tests move time without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestLRU[V any](capacity int, ttl time.Duration) (*LRU[V], *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRU[V](capacity, ttl)
	c.now = clock.Now
	return c, clock
}

func TestLRU_BasicOperations(t *testing.T) {
	t.Parallel()

	c := NewLRU[int](3, time.Minute)
	c.Add("phase-1|left", 120)
	c.Add("phase-1|right", 140)

	if v, ok := c.Get("phase-1|left"); !ok || v != 120 {
		t.Errorf("Get(phase-1|left) = %d, %v; want 120, true", v, ok)
	}
	if _, ok := c.Get("phase-2|left"); ok {
		t.Error("expected miss for unknown key")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}

	c.Add("phase-1|left", 125)
	if v, _ := c.Get("phase-1|left"); v != 125 {
		t.Errorf("expected refreshed value 125, got %d", v)
	}
}

func TestLRU_Eviction(t *testing.T) {
	t.Parallel()

	c := NewLRU[string](3, time.Minute)
	c.Add("a", "A")
	c.Add("b", "B")
	c.Add("c", "C")

	c.Get("a")
	c.Add("d", "D")

	if _, ok := c.Get("b"); ok {
		t.Error("expected 'b' to be evicted as least recently used")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("expected %q to be present", k)
		}
	}
}

func TestLRU_TTLExpiration(t *testing.T) {
	t.Parallel()

	c, clock := newTestLRU[string](10, time.Minute)
	c.Add("farm-1", "Europe/Amsterdam")

	if _, ok := c.Get("farm-1"); !ok {
		t.Fatal("expected hit before expiry")
	}

	clock.Advance(61 * time.Second)
	if _, ok := c.Get("farm-1"); ok {
		t.Error("expected miss after expiry")
	}
	if c.Len() != 0 {
		t.Errorf("expected expired entry to be removed, Len() = %d", c.Len())
	}
}

func TestLRU_CleanupExpired(t *testing.T) {
	t.Parallel()

	c, clock := newTestLRU[int](10, time.Minute)
	c.Add("old-1", 1)
	c.Add("old-2", 2)
	clock.Advance(30 * time.Second)
	c.Add("fresh", 3)
	clock.Advance(45 * time.Second)

	if n := c.CleanupExpired(); n != 2 {
		t.Errorf("CleanupExpired() = %d, want 2", n)
	}
	if _, ok := c.Get("fresh"); !ok {
		t.Error("expected fresh entry to survive cleanup")
	}
}

func TestLRU_GetOrLoad(t *testing.T) {
	t.Parallel()

	c := NewLRU[int](10, time.Minute)
	calls := 0
	load := func() (int, error) {
		calls++
		return 150, nil
	}

	v, hit, err := c.GetOrLoad("p|left", load)
	if err != nil || hit || v != 150 {
		t.Fatalf("first GetOrLoad = %d, %v, %v; want 150, false, nil", v, hit, err)
	}
	v, hit, err = c.GetOrLoad("p|left", load)
	if err != nil || !hit || v != 150 {
		t.Fatalf("second GetOrLoad = %d, %v, %v; want 150, true, nil", v, hit, err)
	}
	if calls != 1 {
		t.Errorf("loader called %d times, want 1", calls)
	}
}

func TestLRU_GetOrLoad_ErrorNotCached(t *testing.T) {
	t.Parallel()

	c := NewLRU[int](10, time.Minute)
	errLookup := errors.New("phase not found")

	if _, _, err := c.GetOrLoad("missing", func() (int, error) { return 0, errLookup }); !errors.Is(err, errLookup) {
		t.Fatalf("expected loader error, got %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("errors must not be cached, Len() = %d", c.Len())
	}
}

func TestLRU_RemoveClearStats(t *testing.T) {
	t.Parallel()

	c := NewLRU[int](10, time.Minute)
	c.Add("a", 1)
	c.Add("b", 2)
	c.Get("a")
	c.Get("zz")

	if !c.Remove("a") {
		t.Error("Remove(a) = false, want true")
	}
	if c.Remove("a") {
		t.Error("second Remove(a) = true, want false")
	}

	hits, misses, size := c.Stats()
	if hits != 1 || misses != 1 || size != 1 {
		t.Errorf("Stats() = %d, %d, %d; want 1, 1, 1", hits, misses, size)
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d", c.Len())
	}
}

func TestLRU_Defaults(t *testing.T) {
	t.Parallel()

	c := NewLRU[int](0, 0)
	if c.capacity != DefaultCapacity {
		t.Errorf("capacity = %d, want %d", c.capacity, DefaultCapacity)
	}
	if c.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", c.ttl, DefaultTTL)
	}
}

func TestLRU_Concurrent(t *testing.T) {
	t.Parallel()

	c := NewLRU[int](100, time.Minute)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := strconv.Itoa((g*500 + i) % 150)
				c.Add(key, i)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 100 {
		t.Errorf("Len() = %d exceeds capacity 100", c.Len())
	}
}
