package api

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	ErrorCodeInvalidFormat         = "InvalidFormat"
	ErrorCodeInvalidForm           = "InvalidForm"
	ErrorCodeValidation            = "ValidationError"
	ErrorCodeNotFound              = "NotFound"
	ErrorCodeMethodNotAllowed      = "MethodNotAllowed"
	ErrorCodeRequestEntityTooLarge = "RequestEntityTooLarge"
	ErrorCodeUnsupportedMediaType  = "UnsupportedMediaType"
	ErrorCodeRateLimited           = "RateLimited"
	ErrorCodeInternal              = "InternalError"
)

type Error struct {
	Code string
	Err  error
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
	}
	return e.Code
}

// StatusCode maps the error code to the HTTP status served to clients.
func (e *Error) StatusCode() int {
	switch e.Code {
	case ErrorCodeInvalidFormat, ErrorCodeInvalidForm, ErrorCodeValidation:
		return http.StatusBadRequest
	case ErrorCodeNotFound:
		return http.StatusNotFound
	case ErrorCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case ErrorCodeRequestEntityTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrorCodeUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	case ErrorCodeRateLimited:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func ErrWithCode(code string, err error) *Error {
	return &Error{
		Code: code,
		Err:  err,
	}
}

// AsError returns e as an *Error. Errors without a code are reported
// as internal errors wrapping the original.
func AsError(e error) *Error {
	var apiErr *Error
	if errors.As(e, &apiErr) {
		return apiErr
	}
	return ErrWithCode(ErrorCodeInternal, e)
}

// ErrorResponse is the body served for failed requests.
type ErrorResponse struct {
	Code      string `json:"code" xml:"Code"`
	Message   string `json:"message" xml:"Message"`
	RequestID string `json:"requestId" xml:"RequestID"`
}
