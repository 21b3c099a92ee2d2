package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	cronv3 "github.com/robfig/cron/v3"

	"github.com/customeros/mailpool/config"
	"github.com/customeros/mailpool/internal/logger"
	"github.com/customeros/mailpool/internal/tracing"
)

const (
	EventPoolAcquire        = "pool_acquire"
	EventPoolTimeout        = "pool_timeout"
	EventCacheHit           = "cache_hit"
	EventCacheMiss          = "cache_miss"
	EventCacheEviction      = "cache_eviction"
	EventConnectionFailure  = "connection_failure"
	EventHealthCheckFailure = "health_check_failure"
	EventOperation          = "operation"
)

const DefaultRollupSchedule = "@every 1m"

// Metric joins an event category with a label, e.g. cache_hit.summary.
func Metric(event, label string) string {
	if label == "" {
		return event
	}
	return event + "." + label
}

type metric struct {
	count int64
	// samples counts RecordDuration calls only; averages divide by it
	samples int64
	total   time.Duration
	min     time.Duration
	max     time.Duration
}

type MetricStats struct {
	Count   int64   `json:"count"`
	TotalMs float64 `json:"total_ms,omitempty"`
	AvgMs   float64 `json:"avg_ms,omitempty"`
	MinMs   float64 `json:"min_ms,omitempty"`
	MaxMs   float64 `json:"max_ms,omitempty"`
}

// Rollup is the activity seen between two consecutive rollups.
type Rollup struct {
	At     time.Time        `json:"at"`
	Window time.Duration    `json:"window"`
	Counts map[string]int64 `json:"counts"`
}

type MonitorStats struct {
	Running        bool                   `json:"running"`
	StartedAt      time.Time              `json:"started_at"`
	UptimeSeconds  float64                `json:"uptime_seconds"`
	Metrics        map[string]MetricStats `json:"metrics"`
	LastRollup     *Rollup                `json:"last_rollup,omitempty"`
	Rollups        int64                  `json:"rollups"`
	DroppedRecords int64                  `json:"dropped_records"`
}

// PerformanceMonitor collects counters and timers for pool and cache activity.
// It is purely observational: recording never fails the caller. A nil
// *PerformanceMonitor is valid and records nothing.
type PerformanceMonitor struct {
	cfg *config.MonitorConfig
	log logger.Logger
	now func() time.Time

	mu           sync.Mutex
	metrics      map[string]*metric
	lastCounts   map[string]int64
	lastRollup   *Rollup
	lastRollupAt time.Time
	rollups      int64
	dropped      int64
	startedAt    time.Time

	lifecycleMu sync.Mutex
	cron        *cronv3.Cron
}

func NewPerformanceMonitor(cfg *config.MonitorConfig, log logger.Logger) *PerformanceMonitor {
	if cfg == nil {
		cfg = &config.MonitorConfig{}
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	now := time.Now()
	return &PerformanceMonitor{
		cfg:          cfg,
		log:          log,
		now:          time.Now,
		metrics:      make(map[string]*metric),
		lastCounts:   make(map[string]int64),
		startedAt:    now,
		lastRollupAt: now,
	}
}

// Start schedules the periodic rollup. Calling Start on a running monitor is a no-op.
func (m *PerformanceMonitor) Start(ctx context.Context) error {
	span, _ := tracing.StartTracerSpan(ctx, "PerformanceMonitor.Start")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.cron != nil {
		return nil
	}

	schedule := m.cfg.RollupSchedule
	if schedule == "" {
		schedule = DefaultRollupSchedule
	}
	span.SetTag("schedule", schedule)

	c := cronv3.New(cronv3.WithChain(
		cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
		cronv3.Recover(cronv3.DefaultLogger),
	))
	_, err := c.AddFunc(schedule, func() {
		defer tracing.RecoverAndLogToJaeger(m.log)
		m.rollup()
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	c.Start()
	m.cron = c

	m.mu.Lock()
	m.startedAt = m.now()
	m.lastRollupAt = m.startedAt
	m.mu.Unlock()

	m.log.Infof("Performance monitor started with rollup schedule %s", schedule)
	return nil
}

// Stop halts the rollup schedule, waits for a running rollup and records a final one.
func (m *PerformanceMonitor) Stop() error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.cron == nil {
		return nil
	}
	stopCtx := m.cron.Stop()
	<-stopCtx.Done()
	m.cron = nil
	m.rollup()

	m.log.Info("Performance monitor stopped")
	return nil
}

func (m *PerformanceMonitor) RecordDuration(event string, d time.Duration) {
	if m == nil {
		return
	}
	defer m.recoverRecord(event)

	if event == "" || d < 0 {
		m.drop("invalid duration record %q: %v", event, d)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	entry := m.metricLocked(event)
	entry.count++
	entry.samples++
	entry.total += d
	if entry.samples == 1 || d < entry.min {
		entry.min = d
	}
	if d > entry.max {
		entry.max = d
	}
}

func (m *PerformanceMonitor) RecordCount(event string, n int64) {
	if m == nil {
		return
	}
	defer m.recoverRecord(event)

	if event == "" || n < 0 {
		m.drop("invalid count record %q: %d", event, n)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.metricLocked(event).count += n
}

// Reset clears all counters and rollups; the schedule keeps running.
func (m *PerformanceMonitor) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = make(map[string]*metric)
	m.lastCounts = make(map[string]int64)
	m.lastRollup = nil
	m.rollups = 0
	m.dropped = 0
	m.startedAt = m.now()
	m.lastRollupAt = m.startedAt
}

func (m *PerformanceMonitor) GetStats() MonitorStats {
	if m == nil {
		return MonitorStats{Metrics: map[string]MetricStats{}}
	}

	m.lifecycleMu.Lock()
	running := m.cron != nil
	m.lifecycleMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	stats := MonitorStats{
		Running:        running,
		StartedAt:      m.startedAt,
		UptimeSeconds:  m.now().Sub(m.startedAt).Seconds(),
		Metrics:        make(map[string]MetricStats, len(m.metrics)),
		Rollups:        m.rollups,
		DroppedRecords: m.dropped,
	}
	for name, entry := range m.metrics {
		stats.Metrics[name] = entry.stats()
	}
	if m.lastRollup != nil {
		rollup := *m.lastRollup
		rollup.Counts = make(map[string]int64, len(m.lastRollup.Counts))
		for k, v := range m.lastRollup.Counts {
			rollup.Counts[k] = v
		}
		stats.LastRollup = &rollup
	}
	return stats
}

// MetricNames lists recorded metrics in sorted order.
func (m *PerformanceMonitor) MetricNames() []string {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.metrics))
	for name := range m.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *PerformanceMonitor) rollup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	counts := make(map[string]int64)
	for name, entry := range m.metrics {
		delta := entry.count - m.lastCounts[name]
		if delta > 0 {
			counts[name] = delta
		}
		m.lastCounts[name] = entry.count
	}
	m.lastRollup = &Rollup{At: now, Window: now.Sub(m.lastRollupAt), Counts: counts}
	m.lastRollupAt = now
	m.rollups++
}

func (m *PerformanceMonitor) metricLocked(event string) *metric {
	entry, ok := m.metrics[event]
	if !ok {
		entry = &metric{}
		m.metrics[event] = entry
	}
	return entry
}

func (m *PerformanceMonitor) drop(template string, args ...interface{}) {
	m.mu.Lock()
	m.dropped++
	m.mu.Unlock()
	m.log.Warnf(template, args...)
}

func (m *PerformanceMonitor) recoverRecord(event string) {
	if r := recover(); r != nil {
		m.log.Errorf("Recovered while recording metric %s: %v", event, r)
	}
}

func (e *metric) stats() MetricStats {
	stats := MetricStats{Count: e.count}
	if e.samples == 0 {
		return stats
	}
	stats.TotalMs = toMillis(e.total)
	stats.AvgMs = toMillis(e.total / time.Duration(e.samples))
	stats.MinMs = toMillis(e.min)
	stats.MaxMs = toMillis(e.max)
	return stats
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
