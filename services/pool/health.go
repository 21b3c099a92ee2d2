package pool

import (
	"context"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailpool/internal/tracing"
	"github.com/customeros/mailpool/services/monitor"
)

const (
	// a connection is closed after this many consecutive failed probes
	maxHealthCheckFailures = 2
	maxConcurrentProbes    = 5
)

func (p *ConnectionPool) runHealthChecks(ctx context.Context, interval time.Duration) {
	defer p.wg.Done()

	p.log.Infof("Starting connection health checks every %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.checkAllConnections(ctx)
		case <-ctx.Done():
			p.log.Info("Stopping connection health checks")
			return
		}
	}
}

// checkAllConnections evicts idle-expired connections and probes the ones
// that have been idle for more than half the idle timeout.
func (p *ConnectionPool) checkAllConnections(ctx context.Context) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ConnectionPool.checkAllConnections")
	defer span.Finish()
	tracing.SetDefaultPoolSpanTags(ctx, span)
	defer tracing.RecoverAndLogToJaeger(p.log)

	for _, kp := range p.pools {
		evicted, healthy, unhealthy := p.checkKind(ctx, kp)
		span.SetTag(kp.kind.String()+".evicted", evicted)
		span.SetTag(kp.kind.String()+".healthy", healthy)
		span.SetTag(kp.kind.String()+".unhealthy", unhealthy)
		if evicted+unhealthy > 0 {
			p.log.Infof("[%s] Health check completed - Evicted: %d, Healthy: %d, Unhealthy: %d",
				kp.kind, evicted, healthy, unhealthy)
		}
	}
}

func (p *ConnectionPool) checkKind(ctx context.Context, kp *kindPool) (evicted, healthy, unhealthy int) {
	now := p.now()
	probeAfter := p.cfg.ConnectionTimeout / 2

	kp.mu.Lock()
	if kp.stopped {
		kp.mu.Unlock()
		return 0, 0, 0
	}
	var expired, probes []*PooledConnection
	keep := kp.idle[:0]
	for _, conn := range kp.idle {
		idleFor := now.Sub(conn.lastUsed)
		switch {
		case idleFor > p.cfg.ConnectionTimeout:
			expired = append(expired, conn)
		case idleFor > probeAfter:
			kp.probing[conn.ID] = conn
			probes = append(probes, conn)
		default:
			keep = append(keep, conn)
		}
	}
	for i := len(keep); i < len(kp.idle); i++ {
		kp.idle[i] = nil
	}
	kp.idle = keep
	if len(expired) > 0 {
		kp.live -= len(expired)
		kp.discarded += int64(len(expired))
		kp.broadcast()
	}
	kp.mu.Unlock()

	p.closeAll(expired)
	evicted = len(expired)

	var wg sync.WaitGroup
	var countMu sync.Mutex
	semaphore := make(chan struct{}, maxConcurrentProbes)

	for _, conn := range probes {
		wg.Add(1)
		go func(conn *PooledConnection) {
			defer wg.Done()
			defer tracing.RecoverAndLogToJaeger(p.log)

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			ok := p.checkConnection(ctx, kp, conn)

			countMu.Lock()
			if ok {
				healthy++
			} else {
				unhealthy++
			}
			countMu.Unlock()
		}(conn)
	}
	wg.Wait()

	return evicted, healthy, unhealthy
}

// checkConnection sends a NOOP over a probed connection and puts it back or closes it.
func (p *ConnectionPool) checkConnection(ctx context.Context, kp *kindPool, conn *PooledConnection) bool {
	span, _ := opentracing.StartSpanFromContext(ctx, "ConnectionPool.checkConnection")
	defer span.Finish()
	tracing.TagProtocol(span, kp.kind.String())
	span.SetTag("connection.id", conn.ID)

	err := conn.session.Noop()
	if err != nil {
		tracing.TraceErr(span, err)
		p.recordCount(monitor.EventHealthCheckFailure, kp.kind)
	}

	kp.mu.Lock()
	if _, ok := kp.probing[conn.ID]; !ok {
		// force closed by Stop while probing
		kp.mu.Unlock()
		return err == nil
	}
	delete(kp.probing, conn.ID)
	conn.lastChecked = p.now()

	discard := kp.stopped
	if err != nil {
		conn.failures++
		kp.healthCheckFailures++
		if conn.failures >= maxHealthCheckFailures {
			discard = true
		}
	} else {
		conn.failures = 0
	}

	if discard {
		kp.live--
		kp.discarded++
		kp.broadcast()
		kp.mu.Unlock()
		if err != nil {
			p.log.Warnf("[%s] Closing connection %s after %d failed health checks: %v",
				kp.kind, conn.ID, conn.failures, err)
		}
		p.closeConn(conn)
		span.SetTag("status", "closed")
		return err == nil
	}

	kp.idle = append(kp.idle, conn)
	kp.broadcast()
	kp.mu.Unlock()

	if err != nil {
		p.log.Warnf("[%s] Health check failed for connection %s: %v", kp.kind, conn.ID, err)
		span.SetTag("status", "unhealthy")
		return false
	}
	span.SetTag("status", "healthy")
	return true
}
