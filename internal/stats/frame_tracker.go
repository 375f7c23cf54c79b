// Package stats tracks frame production during acquisition.
//
// The capture collaborator has no progress stream; the only observable is
// the raw/ directory filling with frame files. The tracker samples that
// directory on a fixed cadence and derives counts, rates, and inter-frame
// interval percentiles (t-digest, ~10KB regardless of run length).
package stats

import (
	"os"
	"sync"
	"time"

	"github.com/influxdata/tdigest"
)

// defaultSampleInterval is the raw/ scan cadence.
const defaultSampleInterval = 1 * time.Second

// FrameSnapshot is a point-in-time view of frame production.
type FrameSnapshot struct {
	// Count is the number of frame files observed.
	Count int

	// RatePerSec is the average production rate since the first frame.
	RatePerSec float64

	// Inter-frame interval percentiles. Zero until two samples with
	// new frames have been observed.
	IntervalP50 time.Duration
	IntervalP95 time.Duration
	IntervalP99 time.Duration

	// LastFrameAt is when the newest frame was observed (sample time).
	LastFrameAt time.Time
}

// FrameTracker samples a directory for frame files.
//
// Intervals are estimated per sample window: a window that gained N
// frames contributes N points of window/N to the digest. That avoids
// stat-ing every file each second while still converging on the true
// distribution for steady capture.
type FrameTracker struct {
	dir      string
	interval time.Duration

	// onSample, if set, receives each snapshot (metrics bridge).
	onSample func(FrameSnapshot)

	mu         sync.Mutex
	digest     *tdigest.TDigest
	count      int
	firstSeen  time.Time
	lastSample time.Time
	lastFrame  time.Time

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewFrameTracker creates a tracker for the given directory. The
// directory may not exist yet; the capture collaborator creates it
// lazily.
func NewFrameTracker(dir string, onSample func(FrameSnapshot)) *FrameTracker {
	return &FrameTracker{
		dir:      dir,
		interval: defaultSampleInterval,
		onSample: onSample,
		digest:   tdigest.NewWithCompression(100),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins sampling in a goroutine.
func (t *FrameTracker) Start() {
	go func() {
		defer close(t.done)

		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				snap := t.sample()
				if t.onSample != nil {
					t.onSample(snap)
				}
			}
		}
	}()
}

// Stop halts sampling. Idempotent; blocks until the sampler has exited.
func (t *FrameTracker) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
	<-t.done
}

// sample scans the directory once and updates the digest.
func (t *FrameTracker) sample() FrameSnapshot {
	now := time.Now()
	count := t.countFrames()

	t.mu.Lock()
	defer t.mu.Unlock()

	delta := count - t.count
	if delta > 0 {
		if t.firstSeen.IsZero() {
			t.firstSeen = now
		} else if !t.lastSample.IsZero() {
			window := now.Sub(t.lastSample)
			per := window.Seconds() / float64(delta)
			t.digest.Add(per, float64(delta))
		}
		t.lastFrame = now
	}
	t.count = count
	t.lastSample = now

	return t.snapshotLocked()
}

// countFrames counts regular files in the watched directory.
func (t *FrameTracker) countFrames() int {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		// raw/ not created yet
		return 0
	}
	n := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			n++
		}
	}
	return n
}

// Snapshot returns the current view of frame production.
func (t *FrameTracker) Snapshot() FrameSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *FrameTracker) snapshotLocked() FrameSnapshot {
	snap := FrameSnapshot{
		Count:       t.count,
		LastFrameAt: t.lastFrame,
	}

	if !t.firstSeen.IsZero() && t.count > 0 {
		elapsed := t.lastFrame.Sub(t.firstSeen).Seconds()
		if elapsed > 0 {
			snap.RatePerSec = float64(t.count-1) / elapsed
		}
	}

	if t.digest.Count() > 0 {
		snap.IntervalP50 = secondsToDuration(t.digest.Quantile(0.50))
		snap.IntervalP95 = secondsToDuration(t.digest.Quantile(0.95))
		snap.IntervalP99 = secondsToDuration(t.digest.Quantile(0.99))
	}

	return snap
}

// RecordInterval feeds one observed inter-frame interval directly.
// Used by tests and by callers that track frames themselves.
func (t *FrameTracker) RecordInterval(d time.Duration) {
	t.mu.Lock()
	t.digest.Add(d.Seconds(), 1)
	t.mu.Unlock()
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
