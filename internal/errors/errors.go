// Package errors implements the error taxonomy for the DAG conversation
// engine.
//
// The engine's public HTTP surface always returns 200 for business errors,
// embedding a small integer `code` in the envelope (spec §6). StatusCode()
// maps each code to a conventional HTTP status but no response or log path
// calls it; the non-200 responses (unknown route, other non-AppError
// failures) take their status from the Fiber error itself.
package errors

import (
	"fmt"
	"net/http"
	"time"
)

// ErrorCode is one kind from the engine's error taxonomy (spec §7).
type ErrorCode string

const (
	ErrInvalidRequest       ErrorCode = "INVALID_REQUEST"
	ErrUnknownConversation  ErrorCode = "UNKNOWN_CONVERSATION"
	ErrUnknownMessage       ErrorCode = "UNKNOWN_MESSAGE"
	ErrUnknownModel         ErrorCode = "UNKNOWN_MODEL"
	ErrInvalidDag           ErrorCode = "INVALID_DAG"
	ErrAdapterError         ErrorCode = "ADAPTER_ERROR"
	ErrStoreError           ErrorCode = "STORE_ERROR"
	ErrClientCanceled       ErrorCode = "CLIENT_CANCELED"
	ErrPartialWrite         ErrorCode = "PARTIAL_WRITE"
	ErrInternalServer       ErrorCode = "INTERNAL_SERVER_ERROR"
)

// envelopeCodes maps each ErrorCode to the small positive integer carried
// in the JSON envelope's `code` field (spec §6). Zero is reserved for
// success and never appears here.
var envelopeCodes = map[ErrorCode]int{
	ErrInvalidRequest:      1001,
	ErrUnknownConversation: 1002,
	ErrUnknownMessage:      1003,
	ErrUnknownModel:        1004,
	ErrInvalidDag:          1005,
	ErrAdapterError:        1006,
	ErrStoreError:          1007,
	ErrClientCanceled:      1008,
	ErrPartialWrite:        1009,
	ErrInternalServer:      1000,
}

// statusCodes maps each ErrorCode to its conventional HTTP status; it is
// never used to pick the status of a JSON-envelope response.
var statusCodes = map[ErrorCode]int{
	ErrInvalidRequest:      http.StatusBadRequest,
	ErrUnknownConversation: http.StatusNotFound,
	ErrUnknownMessage:      http.StatusNotFound,
	ErrUnknownModel:        http.StatusBadRequest,
	ErrInvalidDag:          http.StatusInternalServerError,
	ErrAdapterError:        http.StatusBadGateway,
	ErrStoreError:          http.StatusInternalServerError,
	ErrClientCanceled:      http.StatusRequestTimeout,
	ErrPartialWrite:        http.StatusInternalServerError,
	ErrInternalServer:      http.StatusInternalServerError,
}

// AppError is a structured application error carrying a taxonomy code,
// a message, and optional structured details.
type AppError struct {
	Code      ErrorCode   `json:"error"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// StatusCode returns the HTTP status associated with this error's code.
// It is never used for the always-200 JSON envelope.
func (e *AppError) StatusCode() int {
	if code, ok := statusCodes[e.Code]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// EnvelopeCode returns the small positive integer carried in the
// envelope's `code` field for this error.
func (e *AppError) EnvelopeCode() int {
	if code, ok := envelopeCodes[e.Code]; ok {
		return code
	}
	return envelopeCodes[ErrInternalServer]
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, Timestamp: time.Now()}
}

func NewWithDetails(code ErrorCode, message string, details interface{}) *AppError {
	return &AppError{Code: code, Message: message, Details: details, Timestamp: time.Now()}
}

func (e *AppError) WithRequestID(requestID string) *AppError {
	e.RequestID = requestID
	return e
}

// Wrap converts a standard error into an AppError with the given code,
// leaving an already-wrapped AppError untouched.
func Wrap(err error, code ErrorCode) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return New(code, err.Error())
}

func IsAppError(err error) (*AppError, bool) {
	appErr, ok := err.(*AppError)
	return appErr, ok
}
