package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailpool/config"
	"github.com/customeros/mailpool/interfaces"
	"github.com/customeros/mailpool/internal/enum"
	mailerrors "github.com/customeros/mailpool/internal/errors"
	"github.com/customeros/mailpool/internal/logger"
	"github.com/customeros/mailpool/internal/tracing"
)

// Connector opens authenticated IMAP sessions for the connection pool.
type Connector struct {
	cfg *config.ImapConfig
	log logger.Logger
}

func NewConnector(cfg *config.ImapConfig, log logger.Logger) *Connector {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Connector{cfg: cfg, log: log}
}

func (c *Connector) Connect(ctx context.Context) (interfaces.Session, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPConnector.Connect")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagProtocol(span, enum.ProtocolIMAP.String())
	span.SetTag("server", c.cfg.Host)
	span.SetTag("port", c.cfg.Port)
	span.SetTag("security", c.cfg.Security.String())

	if err := ctx.Err(); err != nil {
		return nil, mailerrors.NewConnectionFailureError(err, "imap connect cancelled")
	}

	cl, err := c.dial(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, mailerrors.NewConnectionFailureError(err, "failed to connect to imap server").
			With("server", c.address())
	}

	loginSpan := opentracing.StartSpan(
		"IMAPConnector.login",
		opentracing.ChildOf(span.Context()),
	)
	loginSpan.SetTag("username", c.cfg.Username)

	cl.Timeout = c.cfg.CommandTimeout
	if err = cl.Login(c.cfg.Username, c.cfg.Password); err != nil {
		_ = cl.Logout()

		tracing.TraceErr(loginSpan, err)
		loginSpan.Finish()
		tracing.TraceErr(span, err)
		return nil, mailerrors.NewConnectionFailureError(err, fmt.Sprintf("failed to login as %s", c.cfg.Username)).
			With("server", c.address())
	}
	loginSpan.SetTag("success", true)
	loginSpan.Finish()

	c.log.Debugf("Connected and logged in to imap server %s", c.address())
	span.SetTag("success", true)

	return newSession(cl, c.cfg, c.log), nil
}

func (c *Connector) dial(ctx context.Context) (*client.Client, error) {
	dialer := &net.Dialer{
		Timeout:   c.cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	tlsConfig := &tls.Config{
		ServerName:         c.cfg.Host,
		InsecureSkipVerify: c.cfg.InsecureSkipVerify,
	}

	if c.cfg.Security.Implicit() {
		return client.DialWithDialerTLS(dialer, c.address(), tlsConfig)
	}

	cl, err := client.DialWithDialer(dialer, c.address())
	if err != nil {
		return nil, err
	}
	if c.cfg.Security == enum.EmailSecurityStartTLS {
		if err = cl.StartTLS(tlsConfig); err != nil {
			_ = cl.Terminate()
			return nil, err
		}
	}
	return cl, nil
}

func (c *Connector) address() string {
	return net.JoinHostPort(c.cfg.Host, fmt.Sprintf("%d", c.cfg.Port))
}
