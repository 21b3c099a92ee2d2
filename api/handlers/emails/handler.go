package emails

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/customeros/mailpool/interfaces"
	mailerrors "github.com/customeros/mailpool/internal/errors"
)

type EmailsHandler struct {
	mailService interfaces.MailService
	// trustedSenders resolves the allow-list when a request does not supply one
	trustedSenders func([]string) []string
}

func NewEmailsHandler(mailService interfaces.MailService, trustedSenders func([]string) []string) *EmailsHandler {
	if trustedSenders == nil {
		trustedSenders = func(senders []string) []string { return senders }
	}
	return &EmailsHandler{
		mailService:    mailService,
		trustedSenders: trustedSenders,
	}
}

// StatusCode maps an error kind to the HTTP status returned to the caller.
func StatusCode(err error) int {
	switch mailerrors.KindOf(err) {
	case mailerrors.KindValidation:
		return http.StatusBadRequest
	case mailerrors.KindNotFound:
		return http.StatusNotFound
	case mailerrors.KindConnectionTimeout:
		return http.StatusGatewayTimeout
	case mailerrors.KindConnectionFailure, mailerrors.KindSend:
		return http.StatusBadGateway
	case mailerrors.KindConfiguration:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	c.JSON(StatusCode(err), mailerrors.NewErrorResponse(err))
}
