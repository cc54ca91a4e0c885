// Package errors defines the service error type shared by handlers and middleware.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a class of failure in API responses and logs.
type ErrorCode string

const (
	CodeBadRequest      ErrorCode = "BAD_REQUEST"
	CodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	CodeInvalidToken    ErrorCode = "INVALID_TOKEN"
	CodeForbidden       ErrorCode = "FORBIDDEN"
	CodeLimitReached    ErrorCode = "LIMIT_REACHED"
	CodeRateLimited     ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeUpstream        ErrorCode = "UPSTREAM_ERROR"
	CodeNotImplemented  ErrorCode = "NOT_IMPLEMENTED"
	CodeInternal        ErrorCode = "INTERNAL_ERROR"
	CodePayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"
)

// ServiceError is an error that knows how it should be rendered over HTTP.
type ServiceError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails returns the error with an extra detail attached.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newError(code ErrorCode, status int, message string, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// BadRequest reports invalid client input.
func BadRequest(message string) *ServiceError {
	return newError(CodeBadRequest, http.StatusBadRequest, message, nil)
}

// Unauthorized reports a missing or unusable session.
func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "Unauthorized: No active session."
	}
	return newError(CodeUnauthorized, http.StatusUnauthorized, message, nil)
}

// InvalidToken reports a session token that failed verification.
func InvalidToken(err error) *ServiceError {
	return newError(CodeInvalidToken, http.StatusUnauthorized, "Unauthorized: No active session.", err)
}

// Forbidden reports an authenticated caller that may not use a feature.
func Forbidden(message string) *ServiceError {
	return newError(CodeForbidden, http.StatusForbidden, message, nil)
}

// LimitReached reports an exhausted free-tier quota.
func LimitReached() *ServiceError {
	return newError(CodeLimitReached, http.StatusForbidden, "Limit reached. Please upgrade your plan to continue.", nil)
}

// RateLimitExceeded reports a caller that exceeded the request rate.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return newError(CodeRateLimited, http.StatusTooManyRequests, "Too many requests. Please slow down.", nil).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

// PayloadTooLarge reports an upload above the configured size.
func PayloadTooLarge(message string) *ServiceError {
	return newError(CodePayloadTooLarge, http.StatusBadRequest, message, nil)
}

// Upstream reports a failure of an external provider, preserving its status.
func Upstream(status int, message string, err error) *ServiceError {
	if status < 400 || status > 599 {
		status = http.StatusBadGateway
	}
	return newError(CodeUpstream, status, message, err)
}

// NotImplemented reports a feature the configured backend cannot serve.
func NotImplemented(message string, err error) *ServiceError {
	return newError(CodeNotImplemented, http.StatusNotImplemented, message, err)
}

// Internal reports an unexpected failure.
func Internal(message string, err error) *ServiceError {
	return newError(CodeInternal, http.StatusInternalServerError, message, err)
}

// GetServiceError returns the first ServiceError in err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

// HTTPStatus returns the status code err should be rendered with.
func HTTPStatus(err error) int {
	if se := GetServiceError(err); se != nil {
		return se.HTTPStatus
	}
	return http.StatusInternalServerError
}
