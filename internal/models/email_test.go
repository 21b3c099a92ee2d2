package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmailContent_ReplyAddress(t *testing.T) {
	content := &EmailContent{FromAddress: "boss@example.com"}
	assert.Equal(t, "boss@example.com", content.ReplyAddress())

	content.ReplyTo = "assistant@example.com"
	assert.Equal(t, "assistant@example.com", content.ReplyAddress())
}

func TestEmailContent_ThreadReferences(t *testing.T) {
	content := &EmailContent{MessageID: "c@x", References: []string{"a@x", "b@x"}}
	assert.Equal(t, []string{"a@x", "b@x", "c@x"}, content.ThreadReferences())

	content.References = []string{"a@x", "c@x"}
	assert.Equal(t, []string{"a@x", "c@x"}, content.ThreadReferences())

	assert.Empty(t, (&EmailContent{}).ThreadReferences())
}

func TestEmailSummary_AttachmentNames(t *testing.T) {
	summary := &EmailSummary{Attachments: []*Attachment{{FileName: "a.pdf"}, {FileName: "b.png"}}}
	assert.Equal(t, []string{"a.pdf", "b.png"}, summary.AttachmentNames())
	assert.Empty(t, (&EmailSummary{}).AttachmentNames())
}
