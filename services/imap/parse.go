package imap

import (
	"bytes"
	"fmt"
	"net/mail"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/jhillyerd/enmime"

	mailerrors "github.com/customeros/mailpool/internal/errors"
	"github.com/customeros/mailpool/internal/models"
	"github.com/customeros/mailpool/internal/utils"
)

func envelopeFromMessage(msg *imap.Message) *models.Envelope {
	envelope := &models.Envelope{
		UID:   msg.Uid,
		Flags: msg.Flags,
	}
	if msg.Envelope == nil {
		return envelope
	}

	envelope.Subject = msg.Envelope.Subject
	envelope.MessageID = utils.NormalizeMessageID(msg.Envelope.MessageId)
	envelope.Date = msg.Envelope.Date
	if len(msg.Envelope.From) > 0 && msg.Envelope.From[0] != nil {
		envelope.FromAddress = msg.Envelope.From[0].Address()
		envelope.FromName = msg.Envelope.From[0].PersonalName
	}
	return envelope
}

// parseMessage builds the summary and reply content for a fetched message.
// Headers come from the raw body; the IMAP envelope fills anything missing.
func parseMessage(msg *imap.Message, raw []byte, markSeen bool) (*models.FetchedMessage, error) {
	parsed, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, mailerrors.Wrap(mailerrors.KindInternal, err, fmt.Sprintf("failed to parse message %d", msg.Uid))
	}

	envelope := envelopeFromMessage(msg)
	id := fmt.Sprintf("%d", msg.Uid)

	from := firstAddress(parsed, "From")
	fromAddress, fromName := envelope.FromAddress, envelope.FromName
	if from != nil {
		fromAddress, fromName = from.Address, from.Name
	}

	subject := parsed.GetHeader("Subject")
	if subject == "" {
		subject = envelope.Subject
	}

	messageID := utils.NormalizeMessageID(parsed.GetHeader("Message-ID"))
	if messageID == "" {
		messageID = envelope.MessageID
	}

	date := envelope.Date
	if header := parsed.GetHeader("Date"); header != "" {
		if parsedDate, err := mail.ParseDate(header); err == nil {
			date = parsedDate
		}
	}

	replyTo := ""
	if address := firstAddress(parsed, "Reply-To"); address != nil {
		replyTo = address.Address
	}

	cc := addresses(parsed, "Cc")
	isRead := markSeen || hasFlag(msg.Flags, imap.SeenFlag)

	summary := &models.EmailSummary{
		ID:          id,
		UID:         msg.Uid,
		FromAddress: fromAddress,
		FromName:    fromName,
		Subject:     subject,
		BodyText:    parsed.Text,
		BodyHTML:    parsed.HTML,
		Attachments: attachments(parsed),
		Date:        date,
		CcAddresses: cc,
		IsRead:      isRead,
		MessageID:   messageID,
	}

	content := &models.EmailContent{
		ID:          id,
		UID:         msg.Uid,
		FromAddress: fromAddress,
		FromName:    fromName,
		ReplyTo:     replyTo,
		ToAddresses: addresses(parsed, "To"),
		CcAddresses: cc,
		Subject:     subject,
		MessageID:   messageID,
		InReplyTo:   utils.NormalizeMessageID(parsed.GetHeader("In-Reply-To")),
		References:  utils.SplitMessageIDs(parsed.GetHeader("References")),
		Date:        date,
		BodyText:    parsed.Text,
		BodyHTML:    parsed.HTML,
	}

	return &models.FetchedMessage{Summary: summary, Content: content}, nil
}

func firstAddress(parsed *enmime.Envelope, header string) *mail.Address {
	list, err := parsed.AddressList(header)
	if err != nil || len(list) == 0 {
		return nil
	}
	return list[0]
}

func addresses(parsed *enmime.Envelope, header string) []string {
	list, err := parsed.AddressList(header)
	if err != nil {
		return []string{}
	}
	result := make([]string, 0, len(list))
	for _, address := range list {
		result = append(result, address.Address)
	}
	return result
}

func attachments(parsed *enmime.Envelope) []*models.Attachment {
	result := make([]*models.Attachment, 0, len(parsed.Attachments))
	for _, part := range parsed.Attachments {
		result = append(result, &models.Attachment{
			FileName:    part.FileName,
			ContentType: part.ContentType,
			Size:        len(part.Content),
		})
	}
	for _, part := range parsed.Inlines {
		if part.FileName == "" {
			continue
		}
		result = append(result, &models.Attachment{
			FileName:    part.FileName,
			ContentType: part.ContentType,
			Size:        len(part.Content),
		})
	}
	return result
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, flag) {
			return true
		}
	}
	return false
}
