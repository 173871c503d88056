package http

import (
	"fmt"
	"net/http"
)

// AppError is a handler failure reported to the caller in the response
// envelope. Status is the HTTP status written into the body.
type AppError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Status  int                    `json:"-"`
	Err     error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{Code: code, Field: field, Message: message, Status: status}
}

func (e *AppError) WithParam(key string, value interface{}) *AppError {
	if e.Params == nil {
		e.Params = make(map[string]interface{})
	}
	e.Params[key] = value
	return e
}

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// InvalidParamError rejects a request field that passed struct validation
// but names something the server does not know.
func InvalidParamError(field, format string, a ...interface{}) *AppError {
	return NewAppError("ERR_INVALID_PARAM", field, fmt.Sprintf(format, a...), http.StatusBadRequest)
}

// UnavailableError reports a backing store the handler could not read.
func UnavailableError(message string) *AppError {
	return NewAppError("ERR_UNAVAILABLE", "", message, http.StatusServiceUnavailable)
}
