package model

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// FuzzStats holds the mutable, process-wide counters for one fuzzing
// run. The counters are updated by several stages (seed, slice, HTTP,
// plugin, recursive, filter) through the methods below, always under
// mu, matching the spec's single-lock-protected-struct design
// (spec.md §4.4, §9); the cancelled flag is a separate atomic.
type FuzzStats struct {
	mu   sync.Mutex
	cond *sync.Cond

	PendingFuzz  int64
	Processed    int64
	Backfeed     int64
	Filtered     int64
	PendingSeeds int64
	TotalTime    time.Duration

	begin time.Time
	end   time.Time

	// cancelled is read far more often than written (every generator
	// next() call checks it), so it gets its own atomic rather than
	// sharing mu with the rest of the counters.
	cancelled atomic.Bool
}

// NewFuzzStats creates a FuzzStats with Begin set to now.
func NewFuzzStats() *FuzzStats {
	s := &FuzzStats{begin: time.Now()}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Cancelled reports whether the run has been cancelled.
func (s *FuzzStats) Cancelled() bool { return s.cancelled.Load() }

// Cancel marks the run cancelled. Idempotent.
func (s *FuzzStats) Cancel() { s.cancelled.Store(true) }

// IncPendingFuzz adjusts the in-flight HTTP request counter.
func (s *FuzzStats) IncPendingFuzz(delta int64) {
	s.mu.Lock()
	s.PendingFuzz += delta
	s.mu.Unlock()
}

// IncProcessed increments the count of dispatches the HTTP stage has
// completed (result or error), including ones a later postfilter drops.
func (s *FuzzStats) IncProcessed() {
	s.mu.Lock()
	s.Processed++
	s.mu.Unlock()
}

// IncBackfeed increments the count of backfeed items injected.
func (s *FuzzStats) IncBackfeed() {
	s.mu.Lock()
	s.Backfeed++
	s.mu.Unlock()
}

// IncFiltered increments the count of results dropped by FilterStage.
func (s *FuzzStats) IncFiltered() {
	s.mu.Lock()
	s.Filtered++
	s.mu.Unlock()
}

// SetPendingSeeds sets the count of seeds not yet drained by SeedStage.
func (s *FuzzStats) SetPendingSeeds(n int64) {
	s.mu.Lock()
	s.PendingSeeds = n
	s.cond.Broadcast()
	s.mu.Unlock()
}

// IncPendingSeeds adjusts the count of recursive seeds SeedStage has
// emitted but RecursiveStage has not yet resolved (spec.md §4.3:
// SeedStage can only originate its own terminal Poison once this
// reaches zero and its generator is exhausted). Wakes any goroutine
// blocked in WaitSeedsDrained.
func (s *FuzzStats) IncPendingSeeds(delta int64) {
	s.mu.Lock()
	s.PendingSeeds += delta
	s.cond.Broadcast()
	s.mu.Unlock()
}

// WaitSeedsDrained blocks until PendingSeeds reaches zero or ctx is
// done, mirroring queue.PriorityQueue's waitInterruptible idiom for
// making a sync.Cond wait responsive to context cancellation.
func (s *FuzzStats) WaitSeedsDrained(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.PendingSeeds > 0 {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.waitInterruptible(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// waitInterruptible waits on cond but wakes on ctx cancellation;
// sync.Cond has no native context support.
func (s *FuzzStats) waitInterruptible(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		case <-done:
		}
	}()
	s.cond.Wait()
	close(done)
}

// Finish marks the run complete and freezes TotalTime.
func (s *FuzzStats) Finish() {
	s.mu.Lock()
	s.end = time.Now()
	s.TotalTime = s.end.Sub(s.begin)
	s.mu.Unlock()
}

// Snapshot is a point-in-time, lock-free copy of the counters, safe to
// read after it is returned.
type Snapshot struct {
	PendingFuzz  int64
	Processed    int64
	Backfeed     int64
	Filtered     int64
	PendingSeeds int64
	Cancelled    bool
	TotalTime    time.Duration
	Begin        time.Time
	End          time.Time
}

// Snapshot merges the counters into a single read under mu, matching
// the spec's "get_stats merges per-stage counters... reads are
// lock-protected against the updating writer" contract (spec.md §4.4).
func (s *FuzzStats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		PendingFuzz:  s.PendingFuzz,
		Processed:    s.Processed,
		Backfeed:     s.Backfeed,
		Filtered:     s.Filtered,
		PendingSeeds: s.PendingSeeds,
		Cancelled:    s.cancelled.Load(),
		TotalTime:    s.TotalTime,
		Begin:        s.begin,
		End:          s.end,
	}
}
