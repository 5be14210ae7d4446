// Package concurrency provides the process-wide indexing concurrency
// governor (spec C12): a bounded semaphore sized off CPU/memory defaults,
// with in-flight/waiter counters for observability.
package concurrency

import (
	"context"
	"os"
	"runtime"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// EnvIndexConcurrency overrides the computed permit count. Legacy
// CONTEXT_FINDER_* aliases are accepted per spec.md §6.
const EnvIndexConcurrency = "CONTEXT_FINDER_INDEX_CONCURRENCY"

// Snapshot reports the governor's current state.
type Snapshot struct {
	Limit    int `json:"limit"`
	InFlight int `json:"in_flight"`
	Waiters  int `json:"waiters"`
}

// Governor gates concurrent indexing work with a weighted semaphore.
type Governor struct {
	sem      *semaphore.Weighted
	limit    int64
	inFlight int64
	waiters  int64
}

// New builds a Governor using the default permit formula, overridable by
// CONTEXT_FINDER_INDEX_CONCURRENCY (and its legacy aliases).
func New() *Governor {
	return NewWithLimit(DefaultLimit())
}

// NewWithLimit builds a Governor with an explicit permit count (clamped to
// [1, 32] per spec.md §4.13).
func NewWithLimit(limit int) *Governor {
	limit = clamp(limit, 1, 32)
	return &Governor{sem: semaphore.NewWeighted(int64(limit)), limit: int64(limit)}
}

// DefaultLimit computes clamp(min(cpuDefault(ncpu), memDefault(gib)), 1, 32),
// overridable by env.
func DefaultLimit() int {
	if v, ok := envOverride(); ok {
		return clamp(v, 1, 32)
	}
	n := cpuDefault(runtime.NumCPU())
	m := memDefault(memGiB())
	limit := n
	if m < limit {
		limit = m
	}
	return clamp(limit, 1, 32)
}

func envOverride() (int, bool) {
	if v := os.Getenv(EnvIndexConcurrency); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n, true
		}
	}
	return 0, false
}

func cpuDefault(ncpu int) int {
	switch {
	case ncpu <= 4:
		return 1
	case ncpu <= 12:
		return 2
	default:
		return 3
	}
}

func memDefault(gib float64) int {
	switch {
	case gib <= 8:
		return 1
	case gib <= 32:
		return 2
	default:
		return 3
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Acquire blocks until a permit is available or ctx is cancelled. Callers
// must call the returned release func exactly once.
func (g *Governor) Acquire(ctx context.Context) (release func(), err error) {
	atomic.AddInt64(&g.waiters, 1)
	err = g.sem.Acquire(ctx, 1)
	atomic.AddInt64(&g.waiters, -1)
	if err != nil {
		return nil, err
	}
	atomic.AddInt64(&g.inFlight, 1)
	released := false
	return func() {
		if released {
			return
		}
		released = true
		atomic.AddInt64(&g.inFlight, -1)
		g.sem.Release(1)
	}, nil
}

// TryAcquire attempts a non-blocking acquire, returning ok=false if the
// governor is at capacity (used by callers that must degrade instead of
// queue, per spec.md §5 backpressure policy for read tools).
func (g *Governor) TryAcquire() (release func(), ok bool) {
	if !g.sem.TryAcquire(1) {
		return nil, false
	}
	atomic.AddInt64(&g.inFlight, 1)
	released := false
	return func() {
		if released {
			return
		}
		released = true
		atomic.AddInt64(&g.inFlight, -1)
		g.sem.Release(1)
	}, true
}

// Snapshot reports the governor's current state for index_concurrency_snapshot.
func (g *Governor) Snapshot() Snapshot {
	return Snapshot{
		Limit:    int(g.limit),
		InFlight: int(atomic.LoadInt64(&g.inFlight)),
		Waiters:  int(atomic.LoadInt64(&g.waiters)),
	}
}
