package models

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error codes for structured error handling.
const (
	ErrCodeAuth           = "AUTH_ERROR"
	ErrCodeForbidden      = "FORBIDDEN"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeDecryption     = "DECRYPTION_ERROR"
	ErrCodeNetwork        = "NETWORK_ERROR"
	ErrCodeStorage        = "STORAGE_ERROR"
	ErrCodeState          = "STATE_ERROR"
	ErrCodeConfig         = "CONFIG_ERROR"
	ErrCodeRateLimit      = "RATE_LIMIT"
	ErrCodeServerError    = "SERVER_ERROR"
)

// Sentinel errors
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotFound         = errors.New("not found")
	ErrRateLimited      = errors.New("rate limited")
	ErrServer           = errors.New("server error")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// ErrorResponse is the body the task API sends with non-2xx responses.
type ErrorResponse struct {
	Errors []struct {
		Message string `json:"message"`
		Help    string `json:"help,omitempty"`
	} `json:"errors"`
}

// APIError represents an error from the API.
type APIError struct {
	Code       string   `json:"code"`
	Messages   []string `json:"messages"`
	StatusCode int      `json:"status_code"`
	RequestID  string   `json:"request_id,omitempty"`
}

// NewAPIError builds an APIError from a status code and decoded body.
func NewAPIError(status int, body *ErrorResponse) *APIError {
	e := &APIError{
		Code:       CodeForStatus(status),
		StatusCode: status,
	}
	if body != nil {
		for _, m := range body.Errors {
			if m.Message != "" {
				e.Messages = append(e.Messages, m.Message)
			}
		}
	}
	if len(e.Messages) == 0 {
		e.Messages = []string{http.StatusText(status)}
	}
	return e
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d (%s): %s", e.StatusCode, e.Code, strings.Join(e.Messages, "; "))
}

// Unwrap maps the status code to a sentinel so callers can use errors.Is.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized, e.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case e.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.StatusCode >= 500:
		return ErrServer
	default:
		return nil
	}
}

// CodeForStatus returns the error code for an HTTP status.
func CodeForStatus(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return ErrCodeAuth
	case status == http.StatusForbidden:
		return ErrCodeForbidden
	case status == http.StatusNotFound:
		return ErrCodeNotFound
	case status == http.StatusTooManyRequests:
		return ErrCodeRateLimit
	case status >= 500:
		return ErrCodeServerError
	default:
		return ErrCodeInvalidRequest
	}
}

// TaskError provides detailed failure information for a task operation.
type TaskError struct {
	Code   string
	Op     string
	TaskID string
	Err    error
}

func (e *TaskError) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("%s [%s]: task %s: %v", e.Op, e.Code, e.TaskID, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Code, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// DecryptError represents a decryption failure of one field of one record.
type DecryptError struct {
	Field  string
	ID     string
	Reason string
	Err    error
}

func (e *DecryptError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("decrypt %s of %s: %s: %v", e.Field, e.ID, e.Reason, e.Err)
	}
	return fmt.Sprintf("decrypt %s: %s: %v", e.Field, e.Reason, e.Err)
}

func (e *DecryptError) Unwrap() error {
	return e.Err
}
