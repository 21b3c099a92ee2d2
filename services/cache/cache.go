package cache

import (
	"context"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailpool/config"
	"github.com/customeros/mailpool/interfaces"
	mailerrors "github.com/customeros/mailpool/internal/errors"
	"github.com/customeros/mailpool/internal/logger"
	"github.com/customeros/mailpool/internal/models"
	"github.com/customeros/mailpool/internal/tracing"
)

const (
	TierSummary = "summary"
	TierContent = "content"
)

type CacheStats struct {
	Running bool      `json:"running"`
	Summary TierStats `json:"summary"`
	Content TierStats `json:"content"`
}

// EmailCache keeps recently seen message summaries and full contents so repeated
// scans and replies avoid IMAP round trips.
type EmailCache struct {
	cfg *config.CacheConfig
	log logger.Logger

	summaries *tier[*models.EmailSummary]
	contents  *tier[*models.EmailContent]

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func NewEmailCache(cfg *config.CacheConfig, monitor interfaces.PerformanceMonitor, log logger.Logger) (*EmailCache, error) {
	return newEmailCache(cfg, monitor, log, time.Now)
}

func newEmailCache(cfg *config.CacheConfig, monitor interfaces.PerformanceMonitor, log logger.Logger, now func() time.Time) (*EmailCache, error) {
	if cfg == nil {
		return nil, mailerrors.NewConfigurationError("cache config is required")
	}
	if cfg.MaxEmails <= 0 || cfg.MaxMessageContent <= 0 {
		return nil, mailerrors.NewConfigurationError("cache capacities must be positive")
	}
	if cfg.EmailTTL <= 0 || cfg.ContentTTL <= 0 {
		return nil, mailerrors.NewConfigurationError("cache ttls must be positive")
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	summaries, err := newTier[*models.EmailSummary](TierSummary, cfg.MaxEmails, cfg.EmailTTL, monitor, now)
	if err != nil {
		return nil, mailerrors.Wrap(mailerrors.KindConfiguration, err, "failed to create summary cache")
	}
	contents, err := newTier[*models.EmailContent](TierContent, cfg.MaxMessageContent, cfg.ContentTTL, monitor, now)
	if err != nil {
		return nil, mailerrors.Wrap(mailerrors.KindConfiguration, err, "failed to create content cache")
	}

	return &EmailCache{
		cfg:       cfg,
		log:       log,
		summaries: summaries,
		contents:  contents,
	}, nil
}

// Start launches the periodic expiry sweep. A zero SweepInterval disables it.
func (c *EmailCache) Start(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "EmailCache.Start")
	defer span.Finish()
	tracing.TagComponentCache(span)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.running = true

	if c.cfg.SweepInterval > 0 {
		c.wg.Add(1)
		go c.sweepLoop(c.ctx, c.cfg.SweepInterval)
	}

	c.log.Infof("Email cache started (summaries=%d/%s, contents=%d/%s)",
		c.cfg.MaxEmails, c.cfg.EmailTTL, c.cfg.MaxMessageContent, c.cfg.ContentTTL)
	return nil
}

// Stop cancels the sweep and clears both tiers. Safe to call more than once.
func (c *EmailCache) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.cancel()
	c.mu.Unlock()

	c.wg.Wait()
	c.summaries.purge()
	c.contents.purge()

	c.log.Info("Email cache stopped")
	return nil
}

func (c *EmailCache) GetSummary(id string) (*models.EmailSummary, bool) {
	return c.summaries.get(id)
}

func (c *EmailCache) PutSummary(id string, summary *models.EmailSummary) {
	if summary == nil {
		return
	}
	c.summaries.put(id, summary)
}

func (c *EmailCache) GetContent(id string) (*models.EmailContent, bool) {
	return c.contents.get(id)
}

func (c *EmailCache) PutContent(id string, content *models.EmailContent) {
	if content == nil {
		return
	}
	c.contents.put(id, content)
}

// Invalidate drops id from both tiers.
func (c *EmailCache) Invalidate(id string) {
	c.summaries.remove(id)
	c.contents.remove(id)
}

func (c *EmailCache) GetStats() CacheStats {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()

	return CacheStats{
		Running: running,
		Summary: c.summaries.stats(),
		Content: c.contents.stats(),
	}
}

func (c *EmailCache) sweepLoop(ctx context.Context, interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *EmailCache) sweep() int {
	defer tracing.RecoverAndLogToJaeger(c.log)

	removed := c.summaries.sweep() + c.contents.sweep()
	if removed > 0 {
		c.log.Debugf("Email cache sweep removed %d expired entries", removed)
	}
	return removed
}
