package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailpool/api/middleware"
	"github.com/customeros/mailpool/config"
	"github.com/customeros/mailpool/internal/enum"
	mailerrors "github.com/customeros/mailpool/internal/errors"
	"github.com/customeros/mailpool/internal/logger"
	"github.com/customeros/mailpool/internal/models"
	"github.com/customeros/mailpool/services"
)

const testAPIKey = "test-key"

type mockMailService struct {
	mock.Mock
}

func (m *mockMailService) CheckTrustedEmails(ctx context.Context, senders []string) ([]*models.EmailSummary, error) {
	args := m.Called(ctx, senders)
	emails, _ := args.Get(0).([]*models.EmailSummary)
	return emails, args.Error(1)
}

func (m *mockMailService) ReplyToMessage(ctx context.Context, request models.ReplyRequest) (*models.ReplyResult, error) {
	args := m.Called(ctx, request)
	result, _ := args.Get(0).(*models.ReplyResult)
	return result, args.Error(1)
}

func newTestRouter(t *testing.T, mailService *mockMailService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &services.Services{
		Config: &config.Config{
			TrustedSendersConfig: &config.TrustedSendersConfig{Senders: []string{"boss@example.com"}},
		},
		MailService: mailService,
	}
	r := gin.New()
	RegisterRoutes(context.Background(), r, s, testAPIKey)
	return r
}

func doRequest(r *gin.Engine, method, path string, body any, apiKey string) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set(middleware.APIKeyHeader, apiKey)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth_NoAPIKeyRequired(t *testing.T) {
	r := newTestRouter(t, &mockMailService{})

	w := doRequest(r, http.MethodGet, "/health", nil, "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestHealth_LimitedMode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := services.InitServices(&config.Config{}, logger.NewNopLogger())
	r := gin.New()
	RegisterRoutes(context.Background(), r, s, testAPIKey)

	w := doRequest(r, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"limited"`)

	w = doRequest(r, http.MethodPost, "/v1/check", nil, testAPIKey)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), string(mailerrors.KindConfiguration))
}

func TestAPIKey(t *testing.T) {
	mailService := &mockMailService{}
	r := newTestRouter(t, mailService)

	w := doRequest(r, http.MethodPost, "/v1/check", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(r, http.MethodPost, "/v1/check", nil, "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	mailService.AssertNotCalled(t, "CheckTrustedEmails", mock.Anything, mock.Anything)
}

func TestAPIKey_NotConfigured(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := &services.Services{MailService: &mockMailService{}}
	r := gin.New()
	RegisterRoutes(context.Background(), r, s, "")

	w := doRequest(r, http.MethodPost, "/v1/check", nil, "anything")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCheck_UsesConfiguredSenders(t *testing.T) {
	mailService := &mockMailService{}
	mailService.On("CheckTrustedEmails", mock.Anything, []string{"boss@example.com"}).
		Return([]*models.EmailSummary{{ID: "7", UID: 7, FromAddress: "boss@example.com", Subject: "Hi"}}, nil).
		Once()
	r := newTestRouter(t, mailService)

	w := doRequest(r, http.MethodPost, "/v1/check", nil, testAPIKey)

	require.Equal(t, http.StatusOK, w.Code)
	mailService.AssertExpectations(t)

	var response struct {
		Success bool                   `json:"success"`
		Count   int                    `json:"count"`
		Emails  []*models.EmailSummary `json:"emails"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.True(t, response.Success)
	assert.Equal(t, 1, response.Count)
	assert.Equal(t, "7", response.Emails[0].ID)
}

func TestCheck_RequestSendersOverride(t *testing.T) {
	mailService := &mockMailService{}
	mailService.On("CheckTrustedEmails", mock.Anything, []string{"ceo@example.com"}).
		Return([]*models.EmailSummary{}, nil).
		Once()
	r := newTestRouter(t, mailService)

	w := doRequest(r, http.MethodPost, "/v1/check", map[string]any{"senders": []string{"ceo@example.com"}}, testAPIKey)

	require.Equal(t, http.StatusOK, w.Code)
	mailService.AssertExpectations(t)
}

func TestCheck_Timeout(t *testing.T) {
	mailService := &mockMailService{}
	mailService.On("CheckTrustedEmails", mock.Anything, mock.Anything).
		Return(nil, mailerrors.NewConnectionTimeoutError("timed out waiting for imap connection"))
	r := newTestRouter(t, mailService)

	w := doRequest(r, http.MethodPost, "/v1/check", nil, testAPIKey)

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Contains(t, w.Body.String(), `"error_type":"connection_timeout"`)
}

func TestReply(t *testing.T) {
	mailService := &mockMailService{}
	mailService.On("ReplyToMessage", mock.Anything, mock.MatchedBy(func(request models.ReplyRequest) bool {
		return request.MessageID == "42" && request.Body == "Thanks" && request.Subject == nil
	})).Return(&models.ReplyResult{
		Status:    enum.EmailStatusSent,
		MessageID: "<abc@example.com>",
		InReplyTo: "<orig@example.com>",
		To:        "boss@example.com",
		Subject:   "Re: Hi",
	}, nil).Once()
	r := newTestRouter(t, mailService)

	w := doRequest(r, http.MethodPost, "/v1/emails/42/reply", map[string]any{"body": "Thanks"}, testAPIKey)

	require.Equal(t, http.StatusOK, w.Code)
	mailService.AssertExpectations(t)
	assert.Contains(t, w.Body.String(), `"status":"sent"`)
	assert.Contains(t, w.Body.String(), `"subject":"Re: Hi"`)
}

func TestReply_ErrorStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", mailerrors.NewValidationError("body is required"), http.StatusBadRequest},
		{"not found", mailerrors.NewNotFoundError("message 42 not found"), http.StatusNotFound},
		{"send", mailerrors.NewSendError(nil, "failed to send reply"), http.StatusBadGateway},
		{"internal", mailerrors.New(mailerrors.KindInternal, "boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mailService := &mockMailService{}
			mailService.On("ReplyToMessage", mock.Anything, mock.Anything).Return(nil, tc.err)
			r := newTestRouter(t, mailService)

			w := doRequest(r, http.MethodPost, "/v1/emails/42/reply", map[string]any{"body": "x"}, testAPIKey)

			assert.Equal(t, tc.status, w.Code)
			assert.Contains(t, w.Body.String(), `"success":false`)
		})
	}
}

func TestReply_MalformedBody(t *testing.T) {
	mailService := &mockMailService{}
	r := newTestRouter(t, mailService)

	req := httptest.NewRequest(http.MethodPost, "/v1/emails/42/reply", bytes.NewBufferString("{"))
	req.Header.Set(middleware.APIKeyHeader, testAPIKey)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mailService.AssertNotCalled(t, "ReplyToMessage", mock.Anything, mock.Anything)
}
