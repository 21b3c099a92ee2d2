package emails

import (
	"net/http"

	"github.com/gin-gonic/gin"

	mailerrors "github.com/customeros/mailpool/internal/errors"
	"github.com/customeros/mailpool/internal/models"
	"github.com/customeros/mailpool/internal/tracing"
)

type CheckEmailsRequest struct {
	Senders []string `json:"senders"`
}

type CheckEmailsResponse struct {
	Success bool                   `json:"success"`
	Count   int                    `json:"count"`
	Emails  []*models.EmailSummary `json:"emails"`
}

// Check scans the inbox for unread mail from trusted senders
func (h *EmailsHandler) Check() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "EmailsHandler.Check", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		var request CheckEmailsRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&request); err != nil {
				err = mailerrors.Wrap(mailerrors.KindValidation, err, "invalid request body")
				tracing.TraceErr(span, err)
				respondError(c, err)
				return
			}
		}

		emails, err := h.mailService.CheckTrustedEmails(ctx, h.trustedSenders(request.Senders))
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, CheckEmailsResponse{
			Success: true,
			Count:   len(emails),
			Emails:  emails,
		})
	}
}
