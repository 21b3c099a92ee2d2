package mail

import (
	"context"
	"strconv"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailpool/interfaces"
	"github.com/customeros/mailpool/internal/enum"
	mailerrors "github.com/customeros/mailpool/internal/errors"
	"github.com/customeros/mailpool/internal/models"
	"github.com/customeros/mailpool/internal/tracing"
	"github.com/customeros/mailpool/internal/utils"
)

// CheckTrustedEmails returns unread messages from the given senders, oldest first.
// Messages are read with BODY.PEEK[] so their read state is left untouched.
func (s *MailService) CheckTrustedEmails(ctx context.Context, senders []string) ([]*models.EmailSummary, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailService.CheckTrustedEmails")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	defer s.recordOperation("check_trusted_emails", s.now())

	if s.configErr != nil {
		return nil, s.configErr
	}

	allowed := trustedSet(senders)
	if len(allowed) == 0 {
		err := mailerrors.NewValidationError("at least one trusted sender is required")
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.SetTag("senders", len(allowed))

	conn, err := s.pool.Acquire(ctx, enum.ProtocolIMAP)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	healthy := true
	defer func() {
		s.pool.Release(conn, healthy)
	}()

	session, err := conn.IMAP()
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	emails, err := s.scanMailbox(ctx, session, allowed)
	if err != nil {
		healthy = !mailerrors.IsConnectionError(err)
		tracing.TraceErr(span, err)
		return nil, err
	}

	span.SetTag("matches", len(emails))
	return emails, nil
}

func (s *MailService) scanMailbox(ctx context.Context, session interfaces.IMAPSession, allowed map[string]struct{}) ([]*models.EmailSummary, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "MailService.scanMailbox")
	defer span.Finish()
	span.SetTag("mailbox", s.imapCfg.Mailbox)

	emails := make([]*models.EmailSummary, 0)

	if err := session.Select(s.imapCfg.Mailbox, true); err != nil {
		return nil, err
	}

	uids, err := session.SearchUnseen()
	if err != nil {
		return nil, err
	}
	span.SetTag("unseen", len(uids))
	if len(uids) == 0 {
		return emails, nil
	}

	envelopes, err := session.FetchEnvelopes(uids)
	if err != nil {
		return nil, err
	}

	for _, envelope := range envelopes {
		if _, ok := allowed[utils.NormalizeEmailAddress(envelope.FromAddress)]; !ok {
			continue
		}

		id := strconv.FormatUint(uint64(envelope.UID), 10)
		if summary, ok := s.cache.GetSummary(id); ok {
			emails = append(emails, summary)
			continue
		}

		fetched, err := session.FetchMessage(envelope.UID, false)
		if err != nil {
			if mailerrors.IsKind(err, mailerrors.KindNotFound) {
				// expunged between search and fetch
				s.log.Warnf("Message %s disappeared during scan", id)
				continue
			}
			return nil, err
		}

		s.cache.PutSummary(id, fetched.Summary)
		s.cache.PutContent(id, fetched.Content)
		emails = append(emails, fetched.Summary)
	}

	return emails, nil
}

func trustedSet(senders []string) map[string]struct{} {
	allowed := make(map[string]struct{}, len(senders))
	for _, sender := range senders {
		if normalized := utils.NormalizeEmailAddress(sender); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}
	return allowed
}
