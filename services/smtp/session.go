package smtp

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailpool/config"
	"github.com/customeros/mailpool/internal/enum"
	mailerrors "github.com/customeros/mailpool/internal/errors"
	"github.com/customeros/mailpool/internal/logger"
	"github.com/customeros/mailpool/internal/tracing"
)

// Session keeps one authenticated SMTP conversation open across sends.
type Session struct {
	client *smtp.Client
	conn   net.Conn
	cfg    *config.SmtpConfig
	log    logger.Logger

	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newSession(client *smtp.Client, conn net.Conn, cfg *config.SmtpConfig, log logger.Logger) *Session {
	return &Session{client: client, conn: conn, cfg: cfg, log: log}
}

func (s *Session) Protocol() enum.Protocol {
	return enum.ProtocolSMTP
}

func (s *Session) Noop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.conn.SetDeadline(time.Now().Add(s.cfg.CommandTimeout))
	defer s.conn.SetDeadline(time.Time{})

	return classify(s.client.Noop(), "smtp noop failed")
}

func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		_ = s.conn.SetDeadline(time.Now().Add(s.cfg.CommandTimeout))
		if err := s.client.Quit(); err != nil {
			s.closeErr = s.client.Close()
		}
	})
	return s.closeErr
}

// Send runs one MAIL/RCPT/DATA transaction. A rejected transaction is reset so
// the session stays usable; transport failures come back as connection failures.
func (s *Session) Send(ctx context.Context, from string, recipients []string, message []byte) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SMTPSession.Send")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("from_address", from)
	span.SetTag("recipients", len(recipients))

	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.conn.SetDeadline(commandDeadline(ctx, s.cfg.CommandTimeout))
	defer s.conn.SetDeadline(time.Time{})

	err := s.transaction(from, recipients, message)
	if err == nil {
		return nil
	}

	tracing.TraceErr(span, err)
	if isProtocolError(err) {
		if resetErr := s.client.Reset(); resetErr != nil {
			return classify(resetErr, "failed to reset smtp session")
		}
	}
	return err
}

func (s *Session) transaction(from string, recipients []string, message []byte) error {
	if err := s.client.Mail(from); err != nil {
		return classify(err, "SMTP MAIL command failed")
	}

	for _, recipient := range recipients {
		if err := s.client.Rcpt(recipient); err != nil {
			return classify(err, fmt.Sprintf("SMTP RCPT command failed for %s", recipient))
		}
	}

	dataWriter, err := s.client.Data()
	if err != nil {
		return classify(err, "SMTP DATA command failed")
	}
	if _, err = dataWriter.Write(message); err != nil {
		_ = dataWriter.Close()
		return classify(err, "failed to write email data")
	}
	if err = dataWriter.Close(); err != nil {
		return classify(err, "failed to close data writer")
	}
	return nil
}

// classify keeps server replies (4xx/5xx) as send errors and everything else
// as connection failures.
func classify(err error, message string) error {
	if err == nil {
		return nil
	}
	if isProtocolError(err) {
		return mailerrors.NewSendError(err, message)
	}
	return mailerrors.NewConnectionFailureError(err, message)
}

func isProtocolError(err error) bool {
	var protoErr *textproto.Error
	return stderrors.As(err, &protoErr)
}
