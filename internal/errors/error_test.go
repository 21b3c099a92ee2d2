package errors

import (
	"io"
	"net"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindValidation, KindOf(NewValidationError("body is required")))

	wrapped := errors.Wrap(NewNotFoundError("message 42 not found"), "reply")
	assert.Equal(t, KindNotFound, KindOf(wrapped))
}

func TestKindOf_OutermostWins(t *testing.T) {
	inner := NewConnectionFailureError(io.EOF, "fetch failed")
	outer := NewSendError(inner, "failed to send reply")

	assert.Equal(t, KindSend, KindOf(outer))
	assert.True(t, IsKind(outer, KindConnectionFailure))
	assert.True(t, IsKind(outer, KindSend))
	assert.False(t, IsKind(outer, KindValidation))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(KindSend, nil, "nothing"))
}

func TestIsConnectionError(t *testing.T) {
	assert.False(t, IsConnectionError(nil))
	assert.False(t, IsConnectionError(errors.New("NO [TRYCREATE] mailbox missing")))
	assert.True(t, IsConnectionError(io.EOF))
	assert.True(t, IsConnectionError(errors.Wrap(io.ErrUnexpectedEOF, "read")))
	assert.True(t, IsConnectionError(&net.OpError{Op: "read", Err: errors.New("reset")}))
	assert.True(t, IsConnectionError(NewConnectionFailureError(nil, "login failed")))
	assert.False(t, IsConnectionError(NewSendError(errors.New("550 rejected"), "send")))
}

func TestNewErrorResponse(t *testing.T) {
	err := NewNotFoundError("message 42 not found").With("message_id", "42")

	response := NewErrorResponse(err)

	assert.False(t, response.Success)
	assert.Equal(t, KindNotFound, response.ErrorType)
	assert.Equal(t, "message 42 not found", response.Message)
	require.NotNil(t, response.Context)
	assert.Equal(t, "42", response.Context["message_id"])
}

func TestNewErrorResponse_PlainError(t *testing.T) {
	response := NewErrorResponse(errors.New("unexpected"))

	assert.Equal(t, KindInternal, response.ErrorType)
	assert.Equal(t, "unexpected", response.Message)
}

func TestTimeoutErrorCause(t *testing.T) {
	err := NewConnectionTimeoutError("timed out waiting for imap connection")

	assert.True(t, errors.Is(err, ErrConnectionTimeout))
	assert.Contains(t, err.Error(), "connection_timeout")
}
