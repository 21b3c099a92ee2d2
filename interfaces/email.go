package interfaces

import (
	"context"

	"github.com/customeros/mailpool/internal/models"
)

type EmailCache interface {
	GetSummary(id string) (*models.EmailSummary, bool)
	PutSummary(id string, summary *models.EmailSummary)
	GetContent(id string) (*models.EmailContent, bool)
	PutContent(id string, content *models.EmailContent)
	Invalidate(id string)
}

type MailService interface {
	CheckTrustedEmails(ctx context.Context, senders []string) ([]*models.EmailSummary, error)
	ReplyToMessage(ctx context.Context, request models.ReplyRequest) (*models.ReplyResult, error)
}
