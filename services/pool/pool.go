package pool

import (
	"context"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"golang.org/x/sync/errgroup"

	"github.com/customeros/mailpool/config"
	"github.com/customeros/mailpool/interfaces"
	"github.com/customeros/mailpool/internal/enum"
	mailerrors "github.com/customeros/mailpool/internal/errors"
	"github.com/customeros/mailpool/internal/logger"
	"github.com/customeros/mailpool/internal/tracing"
	"github.com/customeros/mailpool/services/monitor"
)

type poolState int

const (
	stateNew poolState = iota
	stateRunning
	stateStopped
)

// kindPool holds the connections of a single protocol.
type kindPool struct {
	kind      enum.Protocol
	max       int
	connector interfaces.Connector

	mu       sync.Mutex
	idle     []*PooledConnection
	borrowed map[string]*PooledConnection
	probing  map[string]*PooledConnection
	// live counts idle, borrowed, probing and in-flight dials
	live    int
	notify  chan struct{}
	stopped bool

	acquires            int64
	timeouts            int64
	created             int64
	discarded           int64
	connectFailures     int64
	healthCheckFailures int64
}

// broadcast wakes every waiter. Callers hold kp.mu.
func (kp *kindPool) broadcast() {
	close(kp.notify)
	kp.notify = make(chan struct{})
}

// ConnectionPool lends bounded numbers of IMAP and SMTP sessions to concurrent callers.
type ConnectionPool struct {
	cfg     *config.PoolConfig
	log     logger.Logger
	monitor interfaces.PerformanceMonitor
	pools   map[enum.Protocol]*kindPool
	now     func() time.Time

	stateMu sync.Mutex
	state   poolState
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewConnectionPool(cfg *config.PoolConfig, connectors map[enum.Protocol]interfaces.Connector,
	perf interfaces.PerformanceMonitor, log logger.Logger) (*ConnectionPool, error) {
	if cfg == nil {
		return nil, mailerrors.NewConfigurationError("pool config is required")
	}
	if cfg.ConnectionTimeout <= 0 {
		return nil, mailerrors.NewConfigurationError("pool connection timeout must be positive")
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	pools := make(map[enum.Protocol]*kindPool, len(connectors))
	for _, kind := range enum.Protocols() {
		connector, ok := connectors[kind]
		if !ok || connector == nil {
			return nil, mailerrors.Newf(mailerrors.KindConfiguration, "no connector configured for %s", kind)
		}
		max := cfg.MaxConnections(kind)
		if max <= 0 {
			return nil, mailerrors.Newf(mailerrors.KindConfiguration, "max %s connections must be positive", kind)
		}
		pools[kind] = &kindPool{
			kind:      kind,
			max:       max,
			connector: connector,
			borrowed:  make(map[string]*PooledConnection),
			probing:   make(map[string]*PooledConnection),
			notify:    make(chan struct{}),
		}
	}

	return &ConnectionPool{
		cfg:     cfg,
		log:     log,
		monitor: perf,
		pools:   pools,
		now:     time.Now,
	}, nil
}

// Start launches the background health check loop.
func (p *ConnectionPool) Start(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ConnectionPool.Start")
	defer span.Finish()
	tracing.SetDefaultPoolSpanTags(ctx, span)

	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	switch p.state {
	case stateRunning:
		return nil
	case stateStopped:
		err := mailerrors.Wrap(mailerrors.KindConnectionFailure, mailerrors.ErrPoolStopped, "cannot restart a stopped pool")
		tracing.TraceErr(span, err)
		return err
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.state = stateRunning

	if p.cfg.HealthCheckInterval > 0 {
		p.wg.Add(1)
		go p.runHealthChecks(p.ctx, p.cfg.HealthCheckInterval)
	}

	p.log.Infof("Connection pool started (imap=%d, smtp=%d, idle timeout %s)",
		p.pools[enum.ProtocolIMAP].max, p.pools[enum.ProtocolSMTP].max, p.cfg.ConnectionTimeout)
	return nil
}

// Stop closes idle connections, waits up to DrainTimeout for borrowed ones and
// force-closes whatever is left. Calling Stop more than once is a no-op.
func (p *ConnectionPool) Stop() error {
	p.stateMu.Lock()
	if p.state == stateStopped {
		p.stateMu.Unlock()
		return nil
	}
	p.state = stateStopped
	if p.cancel != nil {
		p.cancel()
	}
	p.stateMu.Unlock()

	p.wg.Wait()

	var g errgroup.Group
	for _, kp := range p.pools {
		kp := kp
		g.Go(func() error {
			return p.drain(kp)
		})
	}
	err := g.Wait()

	p.log.Info("Connection pool stopped")
	return err
}

// Acquire lends a connection of the given kind, creating one if the pool is
// below its limit, otherwise waiting until one is released or the wait times out.
func (p *ConnectionPool) Acquire(ctx context.Context, kind enum.Protocol) (*PooledConnection, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ConnectionPool.Acquire")
	defer span.Finish()
	tracing.SetDefaultPoolSpanTags(ctx, span)
	tracing.TagProtocol(span, kind.String())

	kp, ok := p.pools[kind]
	if !ok {
		err := mailerrors.NewValidationError("unknown connection kind " + kind.String())
		tracing.TraceErr(span, err)
		return nil, err
	}
	if err := p.checkRunning(); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	start := p.now()
	timer := time.NewTimer(p.cfg.WaitTimeout())
	defer timer.Stop()

	for {
		conn, wait, dial, expired, err := p.tryAcquire(kp)
		p.closeAll(expired)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		if conn != nil {
			p.recordDuration(monitor.EventPoolAcquire, kind, p.now().Sub(start))
			span.SetTag("connection.id", conn.ID)
			return conn, nil
		}
		if dial {
			conn, err = p.dial(ctx, kp)
			if err != nil {
				tracing.TraceErr(span, err)
				return nil, err
			}
			p.recordDuration(monitor.EventPoolAcquire, kind, p.now().Sub(start))
			span.SetTag("connection.id", conn.ID)
			span.SetTag("connection.new", true)
			return conn, nil
		}

		select {
		case <-wait:
		case <-timer.C:
			err = p.timeout(kp)
			tracing.TraceErr(span, err)
			return nil, err
		case <-ctx.Done():
			err = p.timeout(kp)
			tracing.TraceErr(span, err)
			return nil, err
		}
	}
}

// Release returns a borrowed connection. Unhealthy connections are closed and
// free a slot for a replacement.
func (p *ConnectionPool) Release(conn *PooledConnection, healthy bool) {
	if conn == nil {
		return
	}
	kp, ok := p.pools[conn.Kind]
	if !ok || conn.owner != kp {
		p.log.Warnf("Ignoring release of connection %s not owned by this pool", conn.ID)
		return
	}

	kp.mu.Lock()
	if kp.borrowed[conn.ID] != conn {
		kp.mu.Unlock()
		p.log.Warnf("[%s] Ignoring release of connection %s that is not borrowed", conn.Kind, conn.ID)
		return
	}
	delete(kp.borrowed, conn.ID)
	conn.inUse = false
	conn.lastUsed = p.now()

	if !healthy || kp.stopped {
		kp.live--
		kp.discarded++
		kp.broadcast()
		kp.mu.Unlock()
		if !healthy {
			p.log.Infof("[%s] Discarding unhealthy connection %s", conn.Kind, conn.ID)
		}
		p.closeConn(conn)
		return
	}

	conn.failures = 0
	kp.idle = append(kp.idle, conn)
	kp.broadcast()
	kp.mu.Unlock()
}

func (p *ConnectionPool) GetStats() PoolStats {
	p.stateMu.Lock()
	running := p.state == stateRunning
	p.stateMu.Unlock()

	stats := PoolStats{
		Running: running,
		Pools:   make(map[enum.Protocol]KindStats, len(p.pools)),
	}
	for kind, kp := range p.pools {
		stats.Pools[kind] = kp.stats()
	}
	return stats
}

func (p *ConnectionPool) checkRunning() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	switch p.state {
	case stateNew:
		return mailerrors.Wrap(mailerrors.KindConnectionFailure, mailerrors.ErrPoolNotStarted, "connection pool is not running")
	case stateStopped:
		return mailerrors.Wrap(mailerrors.KindConnectionFailure, mailerrors.ErrPoolStopped, "connection pool is not running")
	}
	return nil
}

// tryAcquire makes one attempt under the kind lock. It returns either a
// connection, a permission to dial (slot already reserved) or a channel to wait on.
func (p *ConnectionPool) tryAcquire(kp *kindPool) (conn *PooledConnection, wait <-chan struct{}, dial bool, expired []*PooledConnection, err error) {
	kp.mu.Lock()
	defer kp.mu.Unlock()

	if kp.stopped {
		return nil, nil, false, nil, mailerrors.Wrap(mailerrors.KindConnectionFailure, mailerrors.ErrPoolStopped, "connection pool is not running")
	}

	now := p.now()
	for len(kp.idle) > 0 {
		last := len(kp.idle) - 1
		candidate := kp.idle[last]
		kp.idle[last] = nil
		kp.idle = kp.idle[:last]

		if p.idleExpired(candidate, now) {
			kp.live--
			kp.discarded++
			expired = append(expired, candidate)
			continue
		}

		if len(expired) > 0 {
			kp.broadcast()
		}
		candidate.inUse = true
		candidate.lastUsed = now
		kp.borrowed[candidate.ID] = candidate
		kp.acquires++
		return candidate, nil, false, expired, nil
	}

	if len(expired) > 0 {
		kp.broadcast()
	}

	if kp.live < kp.max {
		kp.live++
		return nil, nil, true, expired, nil
	}

	return nil, kp.notify, false, expired, nil
}

// dial opens a new session for a slot reserved by tryAcquire.
func (p *ConnectionPool) dial(ctx context.Context, kp *kindPool) (*PooledConnection, error) {
	session, err := kp.connector.Connect(ctx)
	if err != nil {
		kp.mu.Lock()
		kp.live--
		kp.connectFailures++
		kp.broadcast()
		kp.mu.Unlock()

		p.recordCount(monitor.EventConnectionFailure, kp.kind)
		p.log.Warnf("[%s] Failed to open connection: %v", kp.kind, err)
		if mailerrors.IsKind(err, mailerrors.KindConnectionFailure) {
			return nil, err
		}
		return nil, mailerrors.NewConnectionFailureError(err, "failed to open "+kp.kind.String()+" connection")
	}

	kp.mu.Lock()
	conn := newPooledConnection(kp, session, p.now())
	if kp.stopped {
		kp.mu.Unlock()
		p.closeConn(conn)

		kp.mu.Lock()
		kp.live--
		kp.broadcast()
		kp.mu.Unlock()
		return nil, mailerrors.Wrap(mailerrors.KindConnectionFailure, mailerrors.ErrPoolStopped, "connection pool is not running")
	}
	conn.inUse = true
	kp.borrowed[conn.ID] = conn
	kp.created++
	kp.acquires++
	kp.mu.Unlock()

	p.log.Debugf("[%s] Opened connection %s", kp.kind, conn.ID)
	return conn, nil
}

func (p *ConnectionPool) timeout(kp *kindPool) error {
	kp.mu.Lock()
	kp.timeouts++
	kp.mu.Unlock()

	p.recordCount(monitor.EventPoolTimeout, kp.kind)
	return mailerrors.NewConnectionTimeoutError("timed out waiting for "+kp.kind.String()+" connection").
		With("protocol", kp.kind.String()).
		With("max_connections", kp.max)
}

func (p *ConnectionPool) idleExpired(conn *PooledConnection, now time.Time) bool {
	return now.Sub(conn.lastUsed) > p.cfg.ConnectionTimeout
}

// drain closes everything of one kind on shutdown.
func (p *ConnectionPool) drain(kp *kindPool) error {
	kp.mu.Lock()
	kp.stopped = true
	idle := kp.idle
	kp.idle = nil
	kp.live -= len(idle)
	kp.discarded += int64(len(idle))
	kp.broadcast()
	kp.mu.Unlock()

	p.closeAll(idle)

	deadline := time.NewTimer(p.cfg.DrainTimeout)
	defer deadline.Stop()

	// live also counts dials in flight; a dial that finishes after stop
	// closes its own session and broadcasts.
	expired := deadline.C
	for {
		kp.mu.Lock()
		live := kp.live
		wait := kp.notify
		kp.mu.Unlock()

		if live == 0 {
			return nil
		}

		select {
		case <-wait:
		case <-expired:
			p.forceClose(kp)
			expired = nil
		}
	}
}

func (p *ConnectionPool) forceClose(kp *kindPool) {
	kp.mu.Lock()
	remaining := make([]*PooledConnection, 0, len(kp.borrowed)+len(kp.probing))
	for id, conn := range kp.borrowed {
		remaining = append(remaining, conn)
		delete(kp.borrowed, id)
	}
	for id, conn := range kp.probing {
		remaining = append(remaining, conn)
		delete(kp.probing, id)
	}
	kp.live -= len(remaining)
	kp.discarded += int64(len(remaining))
	kp.broadcast()
	kp.mu.Unlock()

	if len(remaining) > 0 {
		p.log.Warnf("[%s] Force closing %d connections still in use after drain timeout", kp.kind, len(remaining))
	}
	p.closeAll(remaining)
}

func (p *ConnectionPool) closeAll(conns []*PooledConnection) {
	for _, conn := range conns {
		p.closeConn(conn)
	}
}

func (p *ConnectionPool) closeConn(conn *PooledConnection) {
	if err := conn.close(); err != nil {
		p.log.Debugf("[%s] Error closing connection %s: %v", conn.Kind, conn.ID, err)
	}
}

func (p *ConnectionPool) recordDuration(event string, kind enum.Protocol, d time.Duration) {
	if p.monitor != nil {
		p.monitor.RecordDuration(monitor.Metric(event, kind.String()), d)
	}
}

func (p *ConnectionPool) recordCount(event string, kind enum.Protocol) {
	if p.monitor != nil {
		p.monitor.RecordCount(monitor.Metric(event, kind.String()), 1)
	}
}
