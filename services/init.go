package services

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailpool/config"
	"github.com/customeros/mailpool/interfaces"
	"github.com/customeros/mailpool/internal/enum"
	"github.com/customeros/mailpool/internal/logger"
	"github.com/customeros/mailpool/internal/tracing"
	"github.com/customeros/mailpool/services/cache"
	"github.com/customeros/mailpool/services/imap"
	"github.com/customeros/mailpool/services/mail"
	"github.com/customeros/mailpool/services/monitor"
	"github.com/customeros/mailpool/services/pool"
	"github.com/customeros/mailpool/services/smtp"
)

const (
	StatusOK      = "ok"
	StatusLimited = "limited"
)

type Services struct {
	Config *config.Config
	// ConfigErr is set when configuration is invalid; the service then runs in
	// limited mode and every mail operation returns it.
	ConfigErr error

	Monitor     *monitor.PerformanceMonitor
	Pool        *pool.ConnectionPool
	Cache       *cache.EmailCache
	MailService interfaces.MailService

	log logger.Logger
}

type ServiceStats struct {
	Status      string                `json:"status"`
	ConfigError string                `json:"config_error,omitempty"`
	Pool        *pool.PoolStats       `json:"pool,omitempty"`
	Cache       *cache.CacheStats     `json:"cache,omitempty"`
	Monitor     *monitor.MonitorStats `json:"monitor,omitempty"`
}

func InitServices(cfg *config.Config, log logger.Logger) *Services {
	if log == nil {
		log = logger.NewNopLogger()
	}
	svcs := &Services{Config: cfg, log: log}

	if err := cfg.Validate(); err != nil {
		log.Errorf("Invalid configuration, running in limited mode: %v", err)
		return limited(svcs, err)
	}

	svcs.Monitor = monitor.NewPerformanceMonitor(cfg.MonitorConfig, log)

	connectors := map[enum.Protocol]interfaces.Connector{
		enum.ProtocolIMAP: imap.NewConnector(cfg.ImapConfig, log),
		enum.ProtocolSMTP: smtp.NewConnector(cfg.SmtpConfig, log),
	}
	connectionPool, err := pool.NewConnectionPool(cfg.PoolConfig, connectors, svcs.Monitor, log)
	if err != nil {
		log.Errorf("Invalid pool configuration, running in limited mode: %v", err)
		return limited(svcs, err)
	}
	emailCache, err := cache.NewEmailCache(cfg.CacheConfig, svcs.Monitor, log)
	if err != nil {
		log.Errorf("Invalid cache configuration, running in limited mode: %v", err)
		return limited(svcs, err)
	}

	svcs.Pool = connectionPool
	svcs.Cache = emailCache
	svcs.MailService = mail.NewMailService(cfg, connectionPool, emailCache, svcs.Monitor, log)
	return svcs
}

func limited(svcs *Services, err error) *Services {
	svcs.ConfigErr = err
	svcs.Monitor = nil
	svcs.Pool = nil
	svcs.Cache = nil
	svcs.MailService = mail.NewLimitedMailService(err, svcs.log)
	return svcs
}

// Start brings up the monitor, cache and pool. In limited mode it does nothing.
func (s *Services) Start(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Services.Start")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if s.ConfigErr != nil {
		span.SetTag("limited", true)
		return nil
	}
	if err := s.Monitor.Start(ctx); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if err := s.Cache.Start(ctx); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if err := s.Pool.Start(ctx); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// Stop shuts components down in reverse order and reports the first error.
func (s *Services) Stop() error {
	if s.ConfigErr != nil {
		return nil
	}
	var firstErr error
	if err := s.Pool.Stop(); err != nil {
		s.log.Errorf("Connection pool shutdown error: %v", err)
		firstErr = err
	}
	if err := s.Cache.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.Monitor.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (s *Services) GetStats() ServiceStats {
	if s.ConfigErr != nil {
		return ServiceStats{Status: StatusLimited, ConfigError: s.ConfigErr.Error()}
	}
	poolStats := s.Pool.GetStats()
	cacheStats := s.Cache.GetStats()
	monitorStats := s.Monitor.GetStats()
	return ServiceStats{
		Status:  StatusOK,
		Pool:    &poolStats,
		Cache:   &cacheStats,
		Monitor: &monitorStats,
	}
}

// TrustedSenders returns senders if given, otherwise the configured allow-list.
func (s *Services) TrustedSenders(senders []string) []string {
	if len(senders) > 0 || s.Config == nil || s.Config.TrustedSendersConfig == nil {
		return senders
	}
	return s.Config.TrustedSendersConfig.Senders
}
