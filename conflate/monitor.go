package conflate

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
)

// Monitor receives coarse progress reports from a matching run and is polled
// for cancellation between targets. Implementations used with a parallel
// finder must be safe for concurrent use.
type Monitor interface {
	Report(description string)
	ReportProgress(done, total int, unit string)
	IsCancelRequested() bool
}

// NopMonitor ignores reports and never requests cancellation.
type NopMonitor struct{}

func (NopMonitor) Report(string)                  {}
func (NopMonitor) ReportProgress(int, int, string) {}
func (NopMonitor) IsCancelRequested() bool         { return false }

// LogMonitor writes reports to the standard logger. Progress lines are
// emitted every Every items and on completion.
type LogMonitor struct {
	Prefix string
	Every  int

	mu     sync.Mutex
	cancel bool
}

// NewLogMonitor creates a LogMonitor that logs every 100 items.
func NewLogMonitor(prefix string) *LogMonitor {
	return &LogMonitor{Prefix: prefix, Every: 100}
}

func (m *LogMonitor) Report(description string) {
	log.Printf("%s %s", m.Prefix, description)
}

func (m *LogMonitor) ReportProgress(done, total int, unit string) {
	every := m.Every
	if every <= 0 {
		every = 1
	}
	if done == total || done%every == 0 {
		log.Printf("%s %d/%d %s", m.Prefix, done, total, unit)
	}
}

// Cancel requests cancellation of the run being monitored.
func (m *LogMonitor) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancel = true
}

func (m *LogMonitor) IsCancelRequested() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel
}

// ContextMonitor reports to an inner monitor and requests cancellation once
// ctx is done. It remembers whether a poll ever answered true, so a cancel
// that lands after the finder stopped polling does not mark a finished run.
type ContextMonitor struct {
	ctx      context.Context
	inner    Monitor
	observed atomic.Bool
}

// WithContext binds a monitor to ctx. A nil inner monitor discards reports.
func WithContext(ctx context.Context, inner Monitor) *ContextMonitor {
	if inner == nil {
		inner = NopMonitor{}
	}
	return &ContextMonitor{ctx: ctx, inner: inner}
}

func (m *ContextMonitor) Report(description string) { m.inner.Report(description) }

func (m *ContextMonitor) ReportProgress(done, total int, unit string) {
	m.inner.ReportProgress(done, total, unit)
}

func (m *ContextMonitor) IsCancelRequested() bool {
	if m.observed.Load() {
		return true
	}
	if m.ctx.Err() != nil || m.inner.IsCancelRequested() {
		m.observed.Store(true)
		return true
	}
	return false
}

// CancelObserved reports whether any IsCancelRequested call returned true.
func (m *ContextMonitor) CancelObserved() bool {
	return m.observed.Load()
}
