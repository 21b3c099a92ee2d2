package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailpool/internal/enum"
	mailerrors "github.com/customeros/mailpool/internal/errors"
)

func validConfig() *Config {
	cfg := newConfig()
	cfg.ImapConfig = &ImapConfig{Host: "imap.example.com", Port: 993, Username: "bot", Password: "secret",
		Security: enum.EmailSecurityTLS, Mailbox: "INBOX"}
	cfg.SmtpConfig = &SmtpConfig{Host: "smtp.example.com", Port: 465, Username: "bot", Password: "secret",
		Security: enum.EmailSecurityTLS}
	cfg.PoolConfig = &PoolConfig{MaxImapConnections: 3, MaxSmtpConnections: 2,
		ConnectionTimeout: 5 * time.Minute, HealthCheckInterval: time.Minute}
	cfg.CacheConfig = &CacheConfig{MaxEmails: 1000, MaxMessageContent: 500, EmailTTL: 30 * time.Minute, ContentTTL: time.Hour}
	return cfg
}

func TestDefaults(t *testing.T) {
	t.Setenv("TRUSTED_SENDERS", "Boss <BOSS@example.com>, ops@example.com,,boss@example.com")

	cfg := newConfig()
	require.NoError(t, env.Parse(cfg))
	cfg.TrustedSendersConfig.Senders = normalizeSenders(cfg.TrustedSendersConfig.Senders)

	assert.Equal(t, "12222", cfg.AppConfig.APIPort)
	assert.Equal(t, 993, cfg.ImapConfig.Port)
	assert.Equal(t, enum.EmailSecurityTLS, cfg.ImapConfig.Security)
	assert.Equal(t, "INBOX", cfg.ImapConfig.Mailbox)
	assert.Equal(t, 3, cfg.PoolConfig.MaxImapConnections)
	assert.Equal(t, 2, cfg.PoolConfig.MaxSmtpConnections)
	assert.Equal(t, 5*time.Minute, cfg.PoolConfig.ConnectionTimeout)
	assert.Equal(t, time.Minute, cfg.PoolConfig.HealthCheckInterval)
	assert.Equal(t, 1000, cfg.CacheConfig.MaxEmails)
	assert.Equal(t, 500, cfg.CacheConfig.MaxMessageContent)
	assert.Equal(t, 30*time.Minute, cfg.CacheConfig.EmailTTL)
	assert.Equal(t, time.Hour, cfg.CacheConfig.ContentTTL)
	assert.Equal(t, "@every 1m", cfg.MonitorConfig.RollupSchedule)
	assert.Equal(t, []string{"boss@example.com", "ops@example.com"}, cfg.TrustedSendersConfig.Senders)
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_MissingCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.ImapConfig.Password = ""
	cfg.SmtpConfig.Host = ""

	err := cfg.Validate()

	require.Error(t, err)
	assert.Equal(t, mailerrors.KindConfiguration, mailerrors.KindOf(err))
	assert.Contains(t, err.Error(), "IMAP_PASSWORD is required")
	assert.Contains(t, err.Error(), "SMTP_HOST is required")
}

func TestValidate_PoolAndCacheBounds(t *testing.T) {
	cfg := validConfig()
	cfg.PoolConfig.MaxImapConnections = 0
	cfg.CacheConfig.MaxEmails = 0
	cfg.ImapConfig.Security = enum.EmailSecurity("plaintext")

	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "POOL_MAX_IMAP_CONNECTIONS")
	assert.Contains(t, err.Error(), "CACHE_MAX_EMAILS")
	assert.Contains(t, err.Error(), "IMAP_SECURITY")
}

func TestPoolConfig_WaitTimeout(t *testing.T) {
	cfg := &PoolConfig{ConnectionTimeout: time.Minute}
	assert.Equal(t, time.Minute, cfg.WaitTimeout())

	cfg.AcquireTimeout = 5 * time.Second
	assert.Equal(t, 5*time.Second, cfg.WaitTimeout())
}

func TestSmtpConfig_Sender(t *testing.T) {
	cfg := &SmtpConfig{Username: "bot@example.com"}
	assert.Equal(t, "bot@example.com", cfg.Sender())

	cfg.FromAddress = "assistant@example.com"
	assert.Equal(t, "assistant@example.com", cfg.Sender())
}
