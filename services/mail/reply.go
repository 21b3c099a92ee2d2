package mail

import (
	"bytes"
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/jhillyerd/enmime"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailpool/internal/enum"
	mailerrors "github.com/customeros/mailpool/internal/errors"
	"github.com/customeros/mailpool/internal/models"
	"github.com/customeros/mailpool/internal/tracing"
	"github.com/customeros/mailpool/internal/utils"
)

// ReplyToMessage sends a threaded reply to the message with the given UID.
func (s *MailService) ReplyToMessage(ctx context.Context, request models.ReplyRequest) (*models.ReplyResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailService.ReplyToMessage")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, request.MessageID)
	defer s.recordOperation("reply_to_message", s.now())

	if s.configErr != nil {
		return nil, s.configErr
	}

	uid, err := validateReply(request)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	// cache keys use the canonical decimal UID, as the scan stores them
	request.MessageID = strconv.FormatUint(uint64(uid), 10)

	original, err := s.resolveOriginal(ctx, request.MessageID, uid)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	// the original's read state and thread changed, drop whatever is cached
	defer s.cache.Invalidate(request.MessageID)

	message, result, err := s.buildReply(original, request)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	tracing.LogObjectAsJson(span, "reply", result)

	if err = s.send(ctx, result.To, message); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	s.log.Infof("Sent reply %s to %s for message %s", result.MessageID, result.To, request.MessageID)
	return result, nil
}

func validateReply(request models.ReplyRequest) (uint32, error) {
	id := strings.TrimSpace(request.MessageID)
	if id == "" {
		return 0, mailerrors.NewValidationError("message_id is required")
	}
	if strings.TrimSpace(request.Body) == "" {
		return 0, mailerrors.NewValidationError("body is required")
	}
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil || uid == 0 {
		return 0, mailerrors.NewValidationError("message_id must be a numeric IMAP UID").
			With("message_id", request.MessageID)
	}
	for _, path := range request.Attachments {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return 0, mailerrors.NewValidationError("attachment file not found").
				With("attachment", path)
		}
	}
	return uint32(uid), nil
}

// resolveOriginal returns the message being replied to, from cache when possible.
// Fetching marks the original as read.
func (s *MailService) resolveOriginal(ctx context.Context, id string, uid uint32) (*models.EmailContent, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailService.resolveOriginal")
	defer span.Finish()

	if content, ok := s.cache.GetContent(id); ok {
		span.SetTag("cache", "hit")
		return content, nil
	}
	span.SetTag("cache", "miss")

	conn, err := s.pool.Acquire(ctx, enum.ProtocolIMAP)
	if err != nil {
		return nil, err
	}
	healthy := true
	defer func() {
		s.pool.Release(conn, healthy)
	}()

	session, err := conn.IMAP()
	if err != nil {
		return nil, err
	}

	if err = session.Select(s.imapCfg.Mailbox, false); err != nil {
		healthy = !mailerrors.IsConnectionError(err)
		return nil, err
	}

	fetched, err := session.FetchMessage(uid, true)
	if err != nil {
		if mailerrors.IsKind(err, mailerrors.KindNotFound) {
			return nil, mailerrors.NewNotFoundError("message "+id+" not found").With("message_id", id)
		}
		healthy = !mailerrors.IsConnectionError(err)
		return nil, err
	}
	return fetched.Content, nil
}

func (s *MailService) buildReply(original *models.EmailContent, request models.ReplyRequest) ([]byte, *models.ReplyResult, error) {
	to := original.ReplyAddress()
	if to == "" {
		return nil, nil, mailerrors.NewValidationError("original message has no reply address").
			With("message_id", request.MessageID)
	}

	subject := utils.ReplySubject(original.Subject)
	if custom := strings.TrimSpace(utils.GetOrDefault(request.Subject, "")); custom != "" {
		subject = custom
	}

	sender := s.smtpCfg.Sender()
	domain := utils.ExtractDomainFromEmail(sender)
	if domain == "" {
		domain = s.smtpCfg.Host
	}
	messageID := utils.GenerateMessageID(domain, original.MessageID)
	inReplyTo := utils.AngleBracketed(original.MessageID)

	builder := enmime.Builder().
		From(s.smtpCfg.FromName, sender).
		To("", to).
		Subject(subject).
		Date(s.now()).
		Text([]byte(request.Body))

	if inReplyTo != "" {
		references := make([]string, 0, len(original.References)+1)
		for _, ref := range original.ThreadReferences() {
			references = append(references, utils.AngleBracketed(ref))
		}
		builder = builder.
			Header("In-Reply-To", inReplyTo).
			Header("References", strings.Join(references, " "))
	}

	for _, path := range request.Attachments {
		builder = builder.AddFileAttachment(path)
	}

	part, err := builder.Build()
	if err != nil {
		return nil, nil, mailerrors.Wrap(mailerrors.KindInternal, err, "failed to build reply")
	}
	part.Header.Set("Message-ID", messageID)
	var buffer bytes.Buffer
	if err = part.Encode(&buffer); err != nil {
		return nil, nil, mailerrors.Wrap(mailerrors.KindInternal, err, "failed to encode reply")
	}

	return buffer.Bytes(), &models.ReplyResult{
		Status:    enum.EmailStatusSent,
		MessageID: messageID,
		InReplyTo: inReplyTo,
		To:        to,
		Subject:   subject,
	}, nil
}

// send delivers the reply once; there is no retry.
func (s *MailService) send(ctx context.Context, to string, message []byte) error {
	conn, err := s.pool.Acquire(ctx, enum.ProtocolSMTP)
	if err != nil {
		return err
	}
	healthy := true
	defer func() {
		s.pool.Release(conn, healthy)
	}()

	session, err := conn.SMTP()
	if err != nil {
		return mailerrors.NewSendError(err, "failed to send reply").With("to", to)
	}

	if err = session.Send(ctx, s.smtpCfg.Sender(), []string{to}, message); err != nil {
		healthy = !mailerrors.IsConnectionError(err)
		return mailerrors.NewSendError(err, "failed to send reply").With("to", to)
	}
	return nil
}
