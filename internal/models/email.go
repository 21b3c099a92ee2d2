package models

import (
	"time"

	"github.com/customeros/mailpool/internal/enum"
)

// Envelope is the cheap per-message header fetch used to filter senders
// before any body is downloaded.
type Envelope struct {
	UID         uint32
	FromAddress string
	FromName    string
	Subject     string
	MessageID   string
	Date        time.Time
	Flags       []string
}

// EmailSummary is what a trusted-sender scan returns per message.
type EmailSummary struct {
	ID          string        `json:"id"`
	UID         uint32        `json:"uid"`
	FromAddress string        `json:"from"`
	FromName    string        `json:"from_name,omitempty"`
	Subject     string        `json:"subject"`
	BodyText    string        `json:"body_text"`
	BodyHTML    string        `json:"body_html"`
	Attachments []*Attachment `json:"attachments"`
	Date        time.Time     `json:"received_time"`
	CcAddresses []string      `json:"cc_addresses"`
	IsRead      bool          `json:"is_read"`
	MessageID   string        `json:"message_id"`
}

func (s *EmailSummary) AttachmentNames() []string {
	names := make([]string, 0, len(s.Attachments))
	for _, attachment := range s.Attachments {
		names = append(names, attachment.FileName)
	}
	return names
}

// EmailContent holds what a threaded reply needs from the original message.
type EmailContent struct {
	ID          string
	UID         uint32
	FromAddress string
	FromName    string
	ReplyTo     string
	ToAddresses []string
	CcAddresses []string
	Subject     string
	MessageID   string
	InReplyTo   string
	References  []string
	Date        time.Time
	BodyText    string
	BodyHTML    string
}

// ReplyAddress is where a reply to this message should go.
func (c *EmailContent) ReplyAddress() string {
	if c.ReplyTo != "" {
		return c.ReplyTo
	}
	return c.FromAddress
}

// ThreadReferences returns the References chain for a reply to this message.
func (c *EmailContent) ThreadReferences() []string {
	references := make([]string, 0, len(c.References)+1)
	references = append(references, c.References...)
	if c.MessageID != "" {
		found := false
		for _, ref := range references {
			if ref == c.MessageID {
				found = true
				break
			}
		}
		if !found {
			references = append(references, c.MessageID)
		}
	}
	return references
}

// FetchedMessage is one message parsed from a full body fetch.
type FetchedMessage struct {
	Summary *EmailSummary
	Content *EmailContent
}

type ReplyRequest struct {
	MessageID   string   `json:"message_id"`
	Body        string   `json:"body"`
	Subject     *string  `json:"subject,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

type ReplyResult struct {
	Status    enum.EmailStatus `json:"status"`
	MessageID string           `json:"message_id"`
	InReplyTo string           `json:"in_reply_to"`
	To        string           `json:"to"`
	Subject   string           `json:"subject"`
}
