package handlers

import (
	"github.com/customeros/mailpool/api/handlers/emails"
	"github.com/customeros/mailpool/services"
)

type APIHandlers struct {
	Emails *emails.EmailsHandler
}

func InitHandlers(s *services.Services) *APIHandlers {
	return &APIHandlers{
		Emails: emails.NewEmailsHandler(s.MailService, s.TrustedSenders),
	}
}
