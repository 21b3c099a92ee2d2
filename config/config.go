package config

import (
	"time"

	"github.com/customeros/mailpool/internal/enum"
)

type AppConfig struct {
	APIPort string `env:"PORT" envDefault:"12222"`
	APIKey  string `env:"API_KEY"`
}

type ImapConfig struct {
	Host               string             `env:"IMAP_HOST"`
	Port               int                `env:"IMAP_PORT" envDefault:"993"`
	Username           string             `env:"IMAP_USERNAME"`
	Password           string             `env:"IMAP_PASSWORD"`
	Security           enum.EmailSecurity `env:"IMAP_SECURITY" envDefault:"tls"`
	InsecureSkipVerify bool               `env:"IMAP_INSECURE_SKIP_VERIFY" envDefault:"false"`
	Mailbox            string             `env:"IMAP_MAILBOX" envDefault:"INBOX"`
	DialTimeout        time.Duration      `env:"IMAP_DIAL_TIMEOUT" envDefault:"30s"`
	CommandTimeout     time.Duration      `env:"IMAP_COMMAND_TIMEOUT" envDefault:"30s"`
}

type SmtpConfig struct {
	Host               string             `env:"SMTP_HOST"`
	Port               int                `env:"SMTP_PORT" envDefault:"465"`
	Username           string             `env:"SMTP_USERNAME"`
	Password           string             `env:"SMTP_PASSWORD"`
	Security           enum.EmailSecurity `env:"SMTP_SECURITY" envDefault:"tls"`
	InsecureSkipVerify bool               `env:"SMTP_INSECURE_SKIP_VERIFY" envDefault:"false"`
	FromAddress        string             `env:"SMTP_FROM_ADDRESS"`
	FromName           string             `env:"SMTP_FROM_NAME"`
	DialTimeout        time.Duration      `env:"SMTP_DIAL_TIMEOUT" envDefault:"30s"`
	CommandTimeout     time.Duration      `env:"SMTP_COMMAND_TIMEOUT" envDefault:"30s"`
}

// Sender is the envelope and header From address for outgoing mail.
func (c *SmtpConfig) Sender() string {
	if c.FromAddress != "" {
		return c.FromAddress
	}
	return c.Username
}

type PoolConfig struct {
	MaxImapConnections  int           `env:"POOL_MAX_IMAP_CONNECTIONS" envDefault:"3"`
	MaxSmtpConnections  int           `env:"POOL_MAX_SMTP_CONNECTIONS" envDefault:"2"`
	ConnectionTimeout   time.Duration `env:"POOL_CONNECTION_TIMEOUT" envDefault:"5m"`
	AcquireTimeout      time.Duration `env:"POOL_ACQUIRE_TIMEOUT" envDefault:"0s"`
	HealthCheckInterval time.Duration `env:"POOL_HEALTH_CHECK_INTERVAL" envDefault:"1m"`
	DrainTimeout        time.Duration `env:"POOL_DRAIN_TIMEOUT" envDefault:"10s"`
}

// MaxConnections returns the configured capacity for a protocol.
func (c *PoolConfig) MaxConnections(kind enum.Protocol) int {
	switch kind {
	case enum.ProtocolIMAP:
		return c.MaxImapConnections
	case enum.ProtocolSMTP:
		return c.MaxSmtpConnections
	}
	return 0
}

// WaitTimeout is the bounded acquire wait, falling back to ConnectionTimeout.
func (c *PoolConfig) WaitTimeout() time.Duration {
	if c.AcquireTimeout > 0 {
		return c.AcquireTimeout
	}
	return c.ConnectionTimeout
}

type CacheConfig struct {
	MaxEmails         int           `env:"CACHE_MAX_EMAILS" envDefault:"1000"`
	MaxMessageContent int           `env:"CACHE_MAX_MESSAGE_CONTENT" envDefault:"500"`
	EmailTTL          time.Duration `env:"CACHE_EMAIL_TTL" envDefault:"30m"`
	ContentTTL        time.Duration `env:"CACHE_CONTENT_TTL" envDefault:"1h"`
	SweepInterval     time.Duration `env:"CACHE_SWEEP_INTERVAL" envDefault:"5m"`
}

type MonitorConfig struct {
	RollupSchedule string `env:"MONITOR_ROLLUP_SCHEDULE" envDefault:"@every 1m"`
}

type TrustedSendersConfig struct {
	Senders []string `env:"TRUSTED_SENDERS" envSeparator:","`
}
