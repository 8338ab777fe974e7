package conflate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogMonitor_Cancel(t *testing.T) {
	m := NewLogMonitor("[MATCH]")
	assert.False(t, m.IsCancelRequested())

	m.Report("Finding matches")
	m.ReportProgress(100, 250, "features")
	m.Cancel()
	assert.True(t, m.IsCancelRequested())
}

func TestContextMonitor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	inner := &recordingMonitor{}
	m := WithContext(ctx, inner)

	m.Report("Finding matches")
	m.ReportProgress(1, 2, "features")
	assert.Equal(t, []string{"Finding matches"}, inner.reports)
	assert.Equal(t, 1, inner.progress)
	assert.False(t, m.IsCancelRequested())

	cancel()
	assert.True(t, m.IsCancelRequested())
}

func TestContextMonitor_InnerCancel(t *testing.T) {
	inner := NewLogMonitor("[TEST]")
	m := WithContext(context.Background(), inner)
	assert.False(t, m.IsCancelRequested())

	inner.Cancel()
	assert.True(t, m.IsCancelRequested())
}

func TestContextMonitor_NilInner(t *testing.T) {
	m := WithContext(context.Background(), nil)
	m.Report("ignored")
	m.ReportProgress(1, 1, "features")
	assert.False(t, m.IsCancelRequested())
}

func TestContextMonitor_CancelObserved(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := WithContext(ctx, nil)

	cancel()
	assert.False(t, m.CancelObserved(), "nothing polled yet")

	assert.True(t, m.IsCancelRequested())
	assert.True(t, m.CancelObserved())
}

func TestContextMonitor_CancelLatches(t *testing.T) {
	inner := &recordingMonitor{cancelAfter: 1}
	m := WithContext(context.Background(), inner)

	m.ReportProgress(1, 2, "features")
	assert.True(t, m.IsCancelRequested())

	inner.mu.Lock()
	inner.cancelAfter = 0
	inner.mu.Unlock()
	assert.True(t, m.IsCancelRequested(), "once cancelled, the run stays cancelled")
}
