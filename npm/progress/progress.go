// Package progress implements the lock-free counters (§3, §9) the
// downloader and orchestrator report through: per-phase totals for files
// and bytes, plus a current step index and label. Counters are plain
// atomics (SeqCst by default on amd64/arm64), matching original_source's
// AtomicU8/AtomicU64 design — no channel or mutex sits between a worker
// and the counter it updates.
package progress

import (
	"sync/atomic"
	"time"
)

// Part tracks one dimension (files or bytes) of progress within a phase.
type Part struct {
	total   atomic.Int64
	success atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64
}

// AddTotal increments the total counter, called when work is queued.
func (p *Part) AddTotal(n int64) { p.total.Add(n) }

// Success records n units of completed, verified work.
func (p *Part) Success(n int64) { p.success.Add(n) }

// Skipped records n units of work that did not need to run (cache hit,
// 404, or another ignorable condition per §4.6's error policy).
func (p *Part) Skipped(n int64) { p.skipped.Add(n) }

// Failed records n units of work that ended in an unrecoverable error.
func (p *Part) Failed(n int64) { p.failed.Add(n) }

// Snapshot is a point-in-time read of a Part's counters.
type Snapshot struct {
	Total, Success, Skipped, Failed int64
}

// Remaining is the transient, monotonically non-increasing quantity
// total − success − skipped − failed.
func (s Snapshot) Remaining() int64 {
	return s.Total - s.Success - s.Skipped - s.Failed
}

// Load reads the current values.
func (p *Part) Load() Snapshot {
	return Snapshot{
		Total:   p.total.Load(),
		Success: p.success.Load(),
		Skipped: p.skipped.Load(),
		Failed:  p.failed.Load(),
	}
}

// Progress is the full counter set for one phase, plus the orchestrator's
// current step index/label.
type Progress struct {
	Files Part
	Bytes Part

	step atomic.Int32
	// label is written only from the orchestrator goroutine (one writer),
	// read by the ticker; a mutex would be overkill for a single string
	// pointer swap so it's guarded with atomic.Pointer instead.
	label atomic.Pointer[string]
}

// New returns a zeroed Progress ready for phase 1.
func New() *Progress {
	p := &Progress{}
	empty := ""
	p.label.Store(&empty)
	return p
}

// SetStep starts a new step: it updates the current step index and label
// (e.g. step 1, "Direct deps") and zeroes the file and byte counters, so
// Files and Bytes always hold the current phase's totals.
func (p *Progress) SetStep(step int32, label string) {
	for _, part := range []*Part{&p.Files, &p.Bytes} {
		part.total.Store(0)
		part.success.Store(0)
		part.skipped.Store(0)
		part.failed.Store(0)
	}
	p.step.Store(step)
	p.label.Store(&label)
}

// Step returns the current step index and label.
func (p *Progress) Step() (int32, string) {
	return p.step.Load(), *p.label.Load()
}

// TickerInterval is the cadence original_source/progress.rs drives its
// renderer updates at; callers that render progress should poll at this
// interval rather than on every counter mutation.
const TickerInterval = 100 * time.Millisecond

// RunTicker calls fn every TickerInterval until ctx is done. It is the Go
// analogue of the Rust implementation's background ticker task — kept
// here as a reusable helper since the ticker cadence is part of the
// orchestrator's observable contract (SPEC_FULL.md §12), even though
// rendering itself is out of scope.
func (p *Progress) RunTicker(done <-chan struct{}, fn func(*Progress)) {
	ticker := time.NewTicker(TickerInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			fn(p)
		}
	}
}
