package cache

import (
	"sync"
	"time"
)

// Stats tracks cache performance counters
type Stats struct {
	Hits        int64     `json:"hits"`
	Misses      int64     `json:"misses"`
	Sets        int64     `json:"sets"`
	HitRate     float64   `json:"hit_rate"`
	LastUpdated time.Time `json:"last_updated"`
}

// statsRecorder is the shared, goroutine-safe counter set behind Stats
type statsRecorder struct {
	mu    sync.RWMutex
	stats Stats
}

func (r *statsRecorder) hit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Hits++
	r.touch()
}

func (r *statsRecorder) miss() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Misses++
	r.touch()
}

func (r *statsRecorder) set() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Sets++
	r.stats.LastUpdated = time.Now()
}

// touch recomputes the hit rate; callers hold the lock
func (r *statsRecorder) touch() {
	total := r.stats.Hits + r.stats.Misses
	if total > 0 {
		r.stats.HitRate = float64(r.stats.Hits) / float64(total)
	}
	r.stats.LastUpdated = time.Now()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}
