package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Code string

const (
	CodeValidation         Code = "VALIDATION"
	CodeUnauthenticated    Code = "UNAUTHENTICATED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeNotFound           Code = "NOT_FOUND"
	CodeContentNotFound    Code = "CONTENT_NOT_FOUND"
	CodeConflict           Code = "CONFLICT"
	CodeStale              Code = "STALE"
	CodeFailedPrecondition Code = "FAILED_PRECONDITION"
	CodeInternal           Code = "INTERNAL"
)

var code2http = map[Code]int{
	CodeValidation:         http.StatusBadRequest,
	CodeUnauthenticated:    http.StatusUnauthorized,
	CodeForbidden:          http.StatusForbidden,
	CodeNotFound:           http.StatusNotFound,
	CodeContentNotFound:    http.StatusNotFound,
	CodeConflict:           http.StatusConflict,
	CodeStale:              http.StatusConflict,
	CodeFailedPrecondition: http.StatusPreconditionFailed,
	CodeInternal:           http.StatusInternalServerError,
}

var code2grpc = map[Code]codes.Code{
	CodeValidation:         codes.InvalidArgument,
	CodeUnauthenticated:    codes.Unauthenticated,
	CodeForbidden:          codes.PermissionDenied,
	CodeNotFound:           codes.NotFound,
	CodeContentNotFound:    codes.NotFound,
	CodeConflict:           codes.Aborted,
	CodeStale:              codes.OutOfRange,
	CodeFailedPrecondition: codes.FailedPrecondition,
	CodeInternal:           codes.Internal,
}

var defaultMessages = map[Code]string{
	CodeValidation:         "invalid request",
	CodeUnauthenticated:    "unauthenticated",
	CodeForbidden:          "forbidden",
	CodeNotFound:           "not found",
	CodeContentNotFound:    "quiz content not found",
	CodeConflict:           "conflict",
	CodeStale:              "question is no longer current",
	CodeFailedPrecondition: "failed precondition",
	CodeInternal:           "internal error",
}

type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	err     error
}

func New(code Code, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Message: defaultMessages[code],
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

func (e *Error) Error() string {
	s := fmt.Sprintf("code: %s, message: %s", e.Code, e.Message)
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) GRPCStatus() *status.Status {
	c, ok := code2grpc[e.Code]
	if !ok {
		c = codes.Unknown
	}

	return status.New(c, e.Message)
}

func (e *Error) HTTPStatusCode() int {
	if c, ok := code2http[e.Code]; ok {
		return c
	}

	return http.StatusInternalServerError
}

// Convert returns err as *Error, wrapping unknown errors as internal.
func Convert(err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return Internal(err)
	}

	return e
}

func Internal(err error) *Error {
	return New(CodeInternal, WithCause(err))
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) {
	f(e)
}

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}
