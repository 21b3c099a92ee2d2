package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	mailerrors "github.com/customeros/mailpool/internal/errors"
	"github.com/customeros/mailpool/internal/logger"
	"github.com/customeros/mailpool/internal/tracing"
	"github.com/customeros/mailpool/internal/utils"
)

type Config struct {
	AppConfig            *AppConfig
	Logger               *logger.Config
	Tracing              *tracing.JaegerConfig
	ImapConfig           *ImapConfig
	SmtpConfig           *SmtpConfig
	PoolConfig           *PoolConfig
	CacheConfig          *CacheConfig
	MonitorConfig        *MonitorConfig
	TrustedSendersConfig *TrustedSendersConfig
}

func newConfig() *Config {
	return &Config{
		AppConfig:            &AppConfig{},
		Logger:               &logger.Config{},
		Tracing:              &tracing.JaegerConfig{},
		ImapConfig:           &ImapConfig{},
		SmtpConfig:           &SmtpConfig{},
		PoolConfig:           &PoolConfig{},
		CacheConfig:          &CacheConfig{},
		MonitorConfig:        &MonitorConfig{},
		TrustedSendersConfig: &TrustedSendersConfig{},
	}
}

// InitConfig loads .env (if present) and the process environment.
// Credentials are not checked here, see Validate.
func InitConfig() (*Config, error) {
	config := newConfig()

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		return nil, fmt.Errorf("error loading mailpool config: %w", err)
	}

	config.TrustedSendersConfig.Senders = normalizeSenders(config.TrustedSendersConfig.Senders)

	return config, nil
}

func normalizeSenders(senders []string) []string {
	normalized := make([]string, 0, len(senders))
	for _, sender := range senders {
		if address := utils.NormalizeEmailAddress(sender); address != "" {
			normalized = append(normalized, address)
		}
	}
	return utils.UniqueEmails(normalized)
}

// Validate reports every missing or invalid setting as one configuration error.
func (c *Config) Validate() error {
	var problems []string

	if c.ImapConfig == nil || c.SmtpConfig == nil || c.PoolConfig == nil || c.CacheConfig == nil {
		return mailerrors.NewConfigurationError("configuration is incomplete")
	}

	problems = append(problems, validateEndpoint("IMAP", c.ImapConfig.Host, c.ImapConfig.Port,
		c.ImapConfig.Username, c.ImapConfig.Password, c.ImapConfig.Security.IsValid())...)
	problems = append(problems, validateEndpoint("SMTP", c.SmtpConfig.Host, c.SmtpConfig.Port,
		c.SmtpConfig.Username, c.SmtpConfig.Password, c.SmtpConfig.Security.IsValid())...)
	if c.ImapConfig.Mailbox == "" {
		problems = append(problems, "IMAP_MAILBOX is required")
	}

	pool := c.PoolConfig
	if pool.MaxImapConnections < 1 {
		problems = append(problems, "POOL_MAX_IMAP_CONNECTIONS must be at least 1")
	}
	if pool.MaxSmtpConnections < 1 {
		problems = append(problems, "POOL_MAX_SMTP_CONNECTIONS must be at least 1")
	}
	if pool.ConnectionTimeout <= 0 {
		problems = append(problems, "POOL_CONNECTION_TIMEOUT must be positive")
	}
	if pool.HealthCheckInterval <= 0 {
		problems = append(problems, "POOL_HEALTH_CHECK_INTERVAL must be positive")
	}

	cache := c.CacheConfig
	if cache.MaxEmails < 1 || cache.MaxMessageContent < 1 {
		problems = append(problems, "CACHE_MAX_EMAILS and CACHE_MAX_MESSAGE_CONTENT must be at least 1")
	}
	if cache.EmailTTL <= 0 || cache.ContentTTL <= 0 {
		problems = append(problems, "CACHE_EMAIL_TTL and CACHE_CONTENT_TTL must be positive")
	}

	if len(problems) == 0 {
		return nil
	}
	return mailerrors.NewConfigurationError(strings.Join(problems, "; ")).With("problems", problems)
}

func validateEndpoint(name, host string, port int, username, password string, securityValid bool) []string {
	var problems []string
	if host == "" {
		problems = append(problems, name+"_HOST is required")
	}
	if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("%s_PORT %d is out of range", name, port))
	}
	if username == "" {
		problems = append(problems, name+"_USERNAME is required")
	}
	if password == "" {
		problems = append(problems, name+"_PASSWORD is required")
	}
	if !securityValid {
		problems = append(problems, name+"_SECURITY must be one of none, ssl, tls, startTLS")
	}
	return problems
}
