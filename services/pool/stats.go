package pool

import "github.com/customeros/mailpool/internal/enum"

type KindStats struct {
	Max                 int   `json:"max"`
	Active              int   `json:"active"`
	Idle                int   `json:"idle"`
	InUse               int   `json:"in_use"`
	Acquires            int64 `json:"acquires"`
	Timeouts            int64 `json:"timeouts"`
	Created             int64 `json:"created"`
	Discarded           int64 `json:"discarded"`
	ConnectFailures     int64 `json:"connect_failures"`
	HealthCheckFailures int64 `json:"health_check_failures"`
}

type PoolStats struct {
	Running bool                        `json:"running"`
	Pools   map[enum.Protocol]KindStats `json:"pools"`
}

func (s PoolStats) Kind(kind enum.Protocol) KindStats {
	return s.Pools[kind]
}

func (kp *kindPool) stats() KindStats {
	kp.mu.Lock()
	defer kp.mu.Unlock()
	return KindStats{
		Max:                 kp.max,
		Active:              kp.live,
		Idle:                len(kp.idle),
		InUse:               len(kp.borrowed),
		Acquires:            kp.acquires,
		Timeouts:            kp.timeouts,
		Created:             kp.created,
		Discarded:           kp.discarded,
		ConnectFailures:     kp.connectFailures,
		HealthCheckFailures: kp.healthCheckFailures,
	}
}
