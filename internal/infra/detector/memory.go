// Package detector provides the sliding-window backends the
// suspicious-activity scorer counts against.
package detector

import (
	"context"
	"sync"
	"time"
)

type observation struct {
	at     time.Time
	member string
}

// MemoryWindows keeps per-key observation lists under one mutex. Good
// for a single process; the redis backend shares windows across nodes.
type MemoryWindows struct {
	mu      sync.Mutex
	buckets map[string][]observation
	maxKeys int
}

func NewMemoryWindows(maxKeys int) *MemoryWindows {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	return &MemoryWindows{
		buckets: make(map[string][]observation),
		maxKeys: maxKeys,
	}
}

func (w *MemoryWindows) CountEvents(_ context.Context, key string, at time.Time, window time.Duration) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	kept := w.record(key, observation{at: at}, at.Add(-window))
	return len(kept), nil
}

func (w *MemoryWindows) CountDistinct(_ context.Context, key, member string, at time.Time, window time.Duration) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	kept := w.record(key, observation{at: at, member: member}, at.Add(-window))
	distinct := make(map[string]struct{}, len(kept))
	for _, obs := range kept {
		distinct[obs.member] = struct{}{}
	}
	return len(distinct), nil
}

// record appends the observation, drops everything before cutoff, and
// returns the surviving entries. Caller holds the mutex.
func (w *MemoryWindows) record(key string, obs observation, cutoff time.Time) []observation {
	entries := append(w.buckets[key], obs)
	kept := entries[:0]
	for _, e := range entries {
		if !e.at.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	w.buckets[key] = kept

	if len(w.buckets) > w.maxKeys {
		w.sweep(cutoff)
	}
	return kept
}

// sweep evicts buckets with no observation newer than cutoff. An evicted
// bucket only ever weakens detection for its key, never corrupts it.
func (w *MemoryWindows) sweep(cutoff time.Time) {
	for key, entries := range w.buckets {
		if len(entries) == 0 || entries[len(entries)-1].at.Before(cutoff) {
			delete(w.buckets, key)
		}
	}
}
