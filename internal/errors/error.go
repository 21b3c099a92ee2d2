package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/pkg/errors"
)

var (
	// common errors
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrPoolStopped       = errors.New("connection pool is stopped")
	ErrPoolNotStarted    = errors.New("connection pool is not started")

	// message errors
	ErrMessageNotFound = errors.New("message not found")
)

// Kind classifies every failure the service reports to its callers.
type Kind string

const (
	KindConfiguration     Kind = "configuration_error"
	KindConnectionTimeout Kind = "connection_timeout"
	KindConnectionFailure Kind = "connection_failure"
	KindValidation        Kind = "validation_error"
	KindNotFound          Kind = "not_found"
	KindSend              Kind = "send_error"
	KindInternal          Kind = "internal_error"
)

func (k Kind) String() string {
	return string(k)
}

// MailError is the single error type returned by the pool, cache and mail operations.
type MailError struct {
	Kind    Kind
	Message string
	Context map[string]any
	cause   error
}

func (e *MailError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
}

func (e *MailError) Unwrap() error {
	return e.cause
}

// Cause satisfies the pkg/errors causer interface.
func (e *MailError) Cause() error {
	return e.cause
}

// With attaches a context value and returns the same error for chaining.
func (e *MailError) With(key string, value any) *MailError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

func New(kind Kind, message string) *MailError {
	return &MailError{Kind: kind, Message: message, cause: errors.New(message)}
}

func Newf(kind Kind, format string, args ...any) *MailError {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap tags err with a kind. A nil err yields nil.
func Wrap(kind Kind, err error, message string) *MailError {
	if err == nil {
		return nil
	}
	return &MailError{Kind: kind, Message: message, cause: errors.WithStack(err)}
}

func NewConfigurationError(message string) *MailError {
	return New(KindConfiguration, message)
}

func NewValidationError(message string) *MailError {
	return New(KindValidation, message)
}

func NewNotFoundError(message string) *MailError {
	return &MailError{Kind: KindNotFound, Message: message, cause: errors.WithStack(ErrMessageNotFound)}
}

func NewConnectionTimeoutError(message string) *MailError {
	return &MailError{Kind: KindConnectionTimeout, Message: message, cause: errors.WithStack(ErrConnectionTimeout)}
}

func NewConnectionFailureError(err error, message string) *MailError {
	if err == nil {
		return New(KindConnectionFailure, message)
	}
	return Wrap(KindConnectionFailure, err, message)
}

func NewSendError(err error, message string) *MailError {
	if err == nil {
		return New(KindSend, message)
	}
	return Wrap(KindSend, err, message)
}

// KindOf returns the kind of the outermost MailError in the chain, or KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var mailErr *MailError
	if stderrors.As(err, &mailErr) {
		return mailErr.Kind
	}
	return KindInternal
}

// IsKind reports whether any MailError in the chain carries kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var mailErr *MailError
		if !stderrors.As(err, &mailErr) {
			return false
		}
		if mailErr.Kind == kind {
			return true
		}
		err = mailErr.cause
	}
	return false
}

// IsConnectionError reports whether err means the underlying session is no longer usable.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if IsKind(err, KindConnectionFailure) {
		return true
	}
	return IsNetworkError(err)
}

// IsNetworkError detects transport level failures surfaced by the protocol clients.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, io.EOF) || stderrors.Is(err, io.ErrUnexpectedEOF) ||
		stderrors.Is(err, net.ErrClosed) || stderrors.Is(err, syscall.ECONNRESET) ||
		stderrors.Is(err, syscall.EPIPE) || stderrors.Is(err, syscall.ECONNREFUSED) ||
		stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr)
}

// ErrorResponse is the structured outcome returned to callers on failure.
type ErrorResponse struct {
	Success   bool           `json:"success"`
	ErrorType Kind           `json:"error_type"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
}

func NewErrorResponse(err error) ErrorResponse {
	response := ErrorResponse{
		Success:   false,
		ErrorType: KindOf(err),
	}
	var mailErr *MailError
	if stderrors.As(err, &mailErr) {
		response.Message = mailErr.Message
		response.Context = mailErr.Context
		return response
	}
	if err != nil {
		response.Message = err.Error()
	}
	return response
}
