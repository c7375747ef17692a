package reembed

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker prints a carriage-return status line while a maintenance
// run walks the chunk store. Chunks finished by an earlier, interrupted run
// count toward the total but not toward the rate.
type ProgressTracker struct {
	mu      sync.Mutex
	out     io.Writer
	unit    string
	total   int
	every   int
	resumed int
	done    int
	printed int
	started time.Time
	running bool
}

// NewProgressTracker prints a line every `every` units. A nil writer
// discards output.
func NewProgressTracker(out io.Writer, total, every int, unit string) *ProgressTracker {
	if out == nil {
		out = io.Discard
	}
	if unit == "" {
		unit = "items"
	}
	return &ProgressTracker{out: out, unit: unit, total: total, every: max(every, 1)}
}

// Start begins timing with resumed units already complete.
func (p *ProgressTracker) Start(resumed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resumed = min(resumed, p.total)
	p.done = p.resumed
	p.printed = p.done
	p.started = time.Now()
	p.running = true
}

// Increment records delta more units and prints when the interval is due.
func (p *ProgressTracker) Increment(delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.done = min(p.done+delta, p.total)
	if p.done-p.printed >= p.every {
		p.print()
		p.printed = p.done
	}
}

// Finish prints the final line, filled to the total, and ends it with a
// newline.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.done = p.total
	p.print()
	io.WriteString(p.out, "\n")
	p.running = false
}

func (p *ProgressTracker) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Elapsed is zero before Start.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started.IsZero() {
		return 0
	}
	return time.Since(p.started)
}

// Rate is units per second completed since Start.
func (p *ProgressTracker) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate()
}

func (p *ProgressTracker) rate() float64 {
	secs := time.Since(p.started).Seconds()
	if p.started.IsZero() || secs <= 0 {
		return 0
	}
	return float64(p.done-p.resumed) / secs
}

// print expects p.mu held.
func (p *ProgressTracker) print() {
	pct := 100.0
	if p.total > 0 {
		pct = float64(p.done) * 100 / float64(p.total)
	}
	fmt.Fprintf(p.out, "\r  %d/%d %s  %5.1f%%  %.1f %s/s", p.done, p.total, p.unit, pct, p.rate(), p.unit)
}
