package interfaces

import "time"

type PerformanceMonitor interface {
	RecordDuration(event string, d time.Duration)
	RecordCount(event string, n int64)
}
