package mail

import (
	"context"
	"time"

	"github.com/customeros/mailpool/config"
	"github.com/customeros/mailpool/interfaces"
	"github.com/customeros/mailpool/internal/enum"
	"github.com/customeros/mailpool/internal/logger"
	"github.com/customeros/mailpool/services/monitor"
	"github.com/customeros/mailpool/services/pool"
)

type connectionPool interface {
	Acquire(ctx context.Context, kind enum.Protocol) (*pool.PooledConnection, error)
	Release(conn *pool.PooledConnection, healthy bool)
}

// MailService runs the mailbox operations on top of the pool and cache.
type MailService struct {
	imapCfg *config.ImapConfig
	smtpCfg *config.SmtpConfig
	pool    connectionPool
	cache   interfaces.EmailCache
	monitor interfaces.PerformanceMonitor
	log     logger.Logger
	now     func() time.Time

	// set when the service runs in limited mode
	configErr error
}

func NewMailService(cfg *config.Config, connections connectionPool, cache interfaces.EmailCache,
	perf interfaces.PerformanceMonitor, log logger.Logger) *MailService {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &MailService{
		imapCfg: cfg.ImapConfig,
		smtpCfg: cfg.SmtpConfig,
		pool:    connections,
		cache:   cache,
		monitor: perf,
		log:     log,
		now:     time.Now,
	}
}

// NewLimitedMailService returns a service whose every operation fails with configErr.
func NewLimitedMailService(configErr error, log logger.Logger) *MailService {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &MailService{log: log, now: time.Now, configErr: configErr}
}

func (s *MailService) ConfigError() error {
	return s.configErr
}

func (s *MailService) recordOperation(name string, start time.Time) {
	if s.monitor != nil {
		s.monitor.RecordDuration(monitor.Metric(monitor.EventOperation, name), s.now().Sub(start))
	}
}
