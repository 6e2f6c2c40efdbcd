// Package stats maintains per-key rolling sample windows with baseline
// statistics. The baseline for an update is always the pre-insert window, so
// downstream "baseline ready" gates see the sample count before the new value
// landed.
package stats

import (
	"context"
	"math"
	"sync"
	"time"
)

// Snapshot is the result of a rolling update: statistics over the window as
// it stood before the new sample was inserted.
type Snapshot struct {
	N    int     // pre-insert sample count
	Mean float64 // population mean of the baseline
	Std  float64 // population stddev of the baseline
	Z    float64 // (value - Mean) / Std, 0 when Std is 0
}

// RollingStore is the rolling-window contract. Update must be linearizable
// per key.
type RollingStore interface {
	Update(ctx context.Context, key string, value float64) (Snapshot, error)
	Close() error
}

// snapshot computes baseline statistics for value against window.
func snapshot(window []float64, value float64) Snapshot {
	n := len(window)
	if n == 0 {
		return Snapshot{}
	}
	var sum float64
	for _, v := range window {
		sum += v
	}
	mean := sum / float64(n)
	var ss float64
	for _, v := range window {
		d := v - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(n))
	z := 0.0
	if std > 0 {
		z = (value - mean) / std
	}
	return Snapshot{N: n, Mean: mean, Std: std, Z: z}
}

type memoryEntry struct {
	samples []float64 // newest at index 0
	expires time.Time
}

// MemoryStore is the in-process rolling store used by busless deployments
// and tests. A single mutex makes every update linearizable.
type MemoryStore struct {
	mu     sync.Mutex
	window int
	ttl    time.Duration
	now    func() time.Time
	keys   map[string]*memoryEntry
}

// NewMemoryStore creates a rolling store holding up to window samples per key,
// expiring idle keys after ttl.
func NewMemoryStore(window int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		window: window,
		ttl:    ttl,
		now:    time.Now,
		keys:   make(map[string]*memoryEntry),
	}
}

// Update records value for key and returns pre-insert baseline statistics.
func (s *MemoryStore) Update(_ context.Context, key string, value float64) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.keys[key]
	if !ok || now.After(e.expires) {
		e = &memoryEntry{}
		s.keys[key] = e
	}
	snap := snapshot(e.samples, value)
	e.samples = append([]float64{value}, e.samples...)
	if len(e.samples) > s.window {
		e.samples = e.samples[:s.window]
	}
	e.expires = now.Add(s.ttl)
	return snap, nil
}

// Close releases the key map.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = nil
	return nil
}
