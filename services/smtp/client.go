package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailpool/config"
	"github.com/customeros/mailpool/interfaces"
	"github.com/customeros/mailpool/internal/enum"
	mailerrors "github.com/customeros/mailpool/internal/errors"
	"github.com/customeros/mailpool/internal/logger"
	"github.com/customeros/mailpool/internal/tracing"
)

// Connector opens authenticated SMTP sessions for the connection pool.
type Connector struct {
	cfg *config.SmtpConfig
	log logger.Logger
}

func NewConnector(cfg *config.SmtpConfig, log logger.Logger) *Connector {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Connector{cfg: cfg, log: log}
}

func (c *Connector) Connect(ctx context.Context) (interfaces.Session, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SMTPConnector.Connect")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagProtocol(span, enum.ProtocolSMTP.String())
	span.LogKV("smtp_server", c.cfg.Host)
	span.LogKV("smtp_port", c.cfg.Port)
	span.LogKV("smtp_username", c.cfg.Username)

	conn, err := c.dial(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, mailerrors.NewConnectionFailureError(err, "failed to connect to smtp server").
			With("server", c.address())
	}

	_ = conn.SetDeadline(commandDeadline(ctx, c.cfg.CommandTimeout))

	client, err := smtp.NewClient(conn, c.cfg.Host)
	if err != nil {
		_ = conn.Close()
		tracing.TraceErr(span, err)
		return nil, mailerrors.NewConnectionFailureError(err, "failed to create smtp client")
	}

	tlsConfig := &tls.Config{
		ServerName:         c.cfg.Host,
		InsecureSkipVerify: c.cfg.InsecureSkipVerify,
	}
	if c.cfg.Security == enum.EmailSecurityStartTLS {
		if err = client.StartTLS(tlsConfig); err != nil {
			_ = client.Close()
			tracing.TraceErr(span, err)
			return nil, mailerrors.NewConnectionFailureError(err, "failed to start TLS")
		}
	}

	if c.cfg.Username != "" {
		auth := smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)
		if err = client.Auth(auth); err != nil {
			_ = client.Close()
			tracing.TraceErr(span, err)
			return nil, mailerrors.NewConnectionFailureError(err, "smtp authentication failed").
				With("username", c.cfg.Username)
		}
	}

	_ = conn.SetDeadline(time.Time{})

	c.log.Debugf("Connected and authenticated to smtp server %s", c.address())
	span.SetTag("success", true)

	return newSession(client, conn, c.cfg, c.log), nil
}

func (c *Connector) dial(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{
		Timeout:   c.cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}

	if c.cfg.Security.Implicit() {
		tlsDialer := &tls.Dialer{
			NetDialer: dialer,
			Config: &tls.Config{
				ServerName:         c.cfg.Host,
				InsecureSkipVerify: c.cfg.InsecureSkipVerify,
			},
		}
		return tlsDialer.DialContext(ctx, "tcp", c.address())
	}
	return dialer.DialContext(ctx, "tcp", c.address())
}

func (c *Connector) address() string {
	return net.JoinHostPort(c.cfg.Host, fmt.Sprintf("%d", c.cfg.Port))
}

func commandDeadline(ctx context.Context, timeout time.Duration) time.Time {
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		return ctxDeadline
	}
	return deadline
}
