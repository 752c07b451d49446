package common

import (
	"errors"
	"fmt"
)

// Code classifies an application error so transports can map it to their own
// status vocabulary (gRPC codes, websocket error frames).
type Code string

const (
	CodeUnknown          Code = "UNKNOWN"
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeNotFound         Code = "NOT_FOUND"
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeUnauthenticated  Code = "UNAUTHENTICATED"
	CodeUnavailable      Code = "UNAVAILABLE"
	CodeInternal         Code = "INTERNAL"
)

// AppError is an error carrying a Code and an optional cause.
type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is reports whether target is an *AppError with the same code and message,
// so package-level AppError values work as sentinels with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == e.Message
}

func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func NotFound(msg string) error     { return New(CodeNotFound, msg) }
func Forbidden(msg string) error    { return New(CodePermissionDenied, msg) }
func InvalidArg(msg string) error   { return New(CodeInvalidArgument, msg) }
func Unauthorized(msg string) error { return New(CodeUnauthenticated, msg) }
func Internal(msg string) error     { return New(CodeInternal, msg) }

// CodeOf returns the Code of the first AppError in err's chain, CodeNotFound
// for ErrorNotFound, and CodeUnknown otherwise.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	if errors.Is(err, ErrorNotFound) {
		return CodeNotFound
	}
	return CodeUnknown
}

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Gateway errors.
	ErrChatNotFound    = NotFound("chat not found")
	ErrNotParticipant  = Forbidden("sender is not a participant of this chat")
	ErrSelfChat        = InvalidArg("a chat needs two distinct participants")
	ErrEmptyContent    = InvalidArg("message content is empty")
	ErrContentTooLong  = InvalidArg("message content is too long")
	ErrUnknownMsgType  = InvalidArg("unknown message type")
	ErrMissingIdentity = Unauthorized("missing or invalid access token")

	// ErrModerationUnavailable is returned when every moderation provider failed.
	ErrModerationUnavailable = New(CodeUnavailable, "moderation unavailable")

	// Auth errors (invalid, malformed or expired token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
