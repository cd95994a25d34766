package tracker

import (
	"slices"
	"sync"
	"time"
)

type entry struct {
	mu         sync.Mutex
	timestamps []time.Time
	// set once the entry is no longer part of the map
	removed bool
}

type memory_impl struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

func (t *memory_impl) RecordAndCount(address string, timestamp time.Time, window time.Duration) (int, error) {
	for {
		e := t.acquire(address)
		e.mu.Lock()
		if e.removed {
			// compacted away between lookup and lock
			e.mu.Unlock()
			continue
		}
		e.timestamps = prune(e.timestamps, t.now().Add(-window))
		e.timestamps = append(e.timestamps, timestamp)
		cnt := len(e.timestamps)
		e.mu.Unlock()
		return cnt, nil
	}
}

func (t *memory_impl) Count(address string, window time.Duration) (int, error) {
	t.mu.RLock()
	e, ok := t.entries[address]
	t.mu.RUnlock()
	if !ok {
		return 0, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return 0, nil
	}
	e.timestamps = prune(e.timestamps, t.now().Add(-window))
	return len(e.timestamps), nil
}

func (t *memory_impl) Compact(window time.Duration) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	removed := 0
	for address, e := range t.entries {
		e.mu.Lock()
		e.timestamps = prune(e.timestamps, cutoff)
		if len(e.timestamps) == 0 {
			e.removed = true
			delete(t.entries, address)
			removed++
		}
		e.mu.Unlock()
	}
	return removed, nil
}

func (t *memory_impl) acquire(address string) *entry {
	t.mu.RLock()
	e, ok := t.entries[address]
	t.mu.RUnlock()
	if ok {
		return e
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok = t.entries[address]
	if !ok {
		e = &entry{}
		t.entries[address] = e
	}
	return e
}

// timestamps may arrive out of order, so filter instead of cutting a prefix
func prune(timestamps []time.Time, cutoff time.Time) []time.Time {
	return slices.DeleteFunc(timestamps, func(ts time.Time) bool {
		return ts.Before(cutoff)
	})
}
