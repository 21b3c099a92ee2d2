package emails

import (
	"net/http"

	"github.com/gin-gonic/gin"

	mailerrors "github.com/customeros/mailpool/internal/errors"
	"github.com/customeros/mailpool/internal/models"
	"github.com/customeros/mailpool/internal/tracing"
)

type ReplyEmailRequest struct {
	Body        string   `json:"body"`
	Subject     *string  `json:"subject"`
	Attachments []string `json:"attachments"`
}

type ReplyEmailResponse struct {
	Success bool `json:"success"`
	*models.ReplyResult
}

// Reply sends a threaded reply to the message identified by its IMAP UID
func (h *EmailsHandler) Reply() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "EmailsHandler.Reply", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)
		tracing.TagEntity(span, c.Param("id"))

		var request ReplyEmailRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			err = mailerrors.Wrap(mailerrors.KindValidation, err, "invalid request body")
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}

		result, err := h.mailService.ReplyToMessage(ctx, models.ReplyRequest{
			MessageID:   c.Param("id"),
			Body:        request.Body,
			Subject:     request.Subject,
			Attachments: request.Attachments,
		})
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, ReplyEmailResponse{Success: true, ReplyResult: result})
	}
}
