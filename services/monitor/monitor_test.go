package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailpool/config"
	"github.com/customeros/mailpool/internal/logger"
)

func newTestMonitor() *PerformanceMonitor {
	return NewPerformanceMonitor(&config.MonitorConfig{RollupSchedule: "@every 1h"}, logger.NewNopLogger())
}

func TestRecordDuration(t *testing.T) {
	m := newTestMonitor()

	m.RecordDuration(Metric(EventPoolAcquire, "imap"), 10*time.Millisecond)
	m.RecordDuration(Metric(EventPoolAcquire, "imap"), 30*time.Millisecond)

	stats := m.GetStats()
	entry, ok := stats.Metrics["pool_acquire.imap"]
	require.True(t, ok)
	assert.Equal(t, int64(2), entry.Count)
	assert.Equal(t, 40.0, entry.TotalMs)
	assert.Equal(t, 20.0, entry.AvgMs)
	assert.Equal(t, 10.0, entry.MinMs)
	assert.Equal(t, 30.0, entry.MaxMs)
}

func TestRecordCount(t *testing.T) {
	m := newTestMonitor()

	m.RecordCount(Metric(EventCacheHit, "summary"), 1)
	m.RecordCount(Metric(EventCacheHit, "summary"), 2)
	m.RecordCount(Metric(EventCacheMiss, "summary"), 1)

	stats := m.GetStats()
	assert.Equal(t, int64(3), stats.Metrics["cache_hit.summary"].Count)
	assert.Equal(t, int64(1), stats.Metrics["cache_miss.summary"].Count)
	assert.Zero(t, stats.Metrics["cache_hit.summary"].AvgMs)
	assert.Equal(t, []string{"cache_hit.summary", "cache_miss.summary"}, m.MetricNames())
}

func TestMixedCountAndDurationAverageOverTimedSamples(t *testing.T) {
	m := newTestMonitor()
	name := Metric(EventOperation, "reply")

	m.RecordCount(name, 5)
	m.RecordDuration(name, 10*time.Millisecond)
	m.RecordDuration(name, 30*time.Millisecond)

	entry := m.GetStats().Metrics[name]
	assert.Equal(t, int64(7), entry.Count)
	assert.Equal(t, 40.0, entry.TotalMs)
	assert.Equal(t, 20.0, entry.AvgMs)
	assert.Equal(t, 10.0, entry.MinMs)
	assert.Equal(t, 30.0, entry.MaxMs)
}

func TestInvalidRecordsAreDropped(t *testing.T) {
	m := newTestMonitor()

	assert.NotPanics(t, func() {
		m.RecordCount("", 1)
		m.RecordCount("x", -1)
		m.RecordDuration("y", -time.Second)
	})

	stats := m.GetStats()
	assert.Empty(t, stats.Metrics)
	assert.Equal(t, int64(3), stats.DroppedRecords)
}

func TestNilMonitorIsSafe(t *testing.T) {
	var m *PerformanceMonitor

	assert.NotPanics(t, func() {
		m.RecordCount("x", 1)
		m.RecordDuration("x", time.Second)
		m.Reset()
		_ = m.GetStats()
	})
}

func TestRollupTracksWindowDeltas(t *testing.T) {
	m := newTestMonitor()
	current := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return current }
	m.Reset()

	m.RecordCount("cache_hit.summary", 3)
	current = current.Add(time.Minute)
	m.rollup()

	stats := m.GetStats()
	require.NotNil(t, stats.LastRollup)
	assert.Equal(t, time.Minute, stats.LastRollup.Window)
	assert.Equal(t, int64(3), stats.LastRollup.Counts["cache_hit.summary"])

	m.RecordCount("cache_hit.summary", 1)
	current = current.Add(time.Minute)
	m.rollup()

	stats = m.GetStats()
	assert.Equal(t, int64(1), stats.LastRollup.Counts["cache_hit.summary"])
	assert.Equal(t, int64(4), stats.Metrics["cache_hit.summary"].Count)
	assert.Equal(t, int64(2), stats.Rollups)
}

func TestReset(t *testing.T) {
	m := newTestMonitor()
	m.RecordCount("connection_failure.imap", 1)
	m.rollup()

	m.Reset()

	stats := m.GetStats()
	assert.Empty(t, stats.Metrics)
	assert.Nil(t, stats.LastRollup)
	assert.Zero(t, stats.Rollups)
}

func TestStartStopIdempotent(t *testing.T) {
	m := newTestMonitor()

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Start(context.Background()))
	assert.True(t, m.GetStats().Running)

	require.NoError(t, m.Stop())
	require.NoError(t, m.Stop())
	assert.False(t, m.GetStats().Running)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	m := NewPerformanceMonitor(&config.MonitorConfig{RollupSchedule: "not a schedule"}, logger.NewNopLogger())

	assert.Error(t, m.Start(context.Background()))
	assert.False(t, m.GetStats().Running)
}

func TestConcurrentRecording(t *testing.T) {
	m := newTestMonitor()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.RecordCount("operation.check", 1)
				m.RecordDuration("pool_acquire.smtp", time.Millisecond)
			}
		}()
	}
	wg.Wait()

	stats := m.GetStats()
	assert.Equal(t, int64(1000), stats.Metrics["operation.check"].Count)
	assert.Equal(t, int64(1000), stats.Metrics["pool_acquire.smtp"].Count)
}
