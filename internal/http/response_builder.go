// Package http provides the JSON API server and its handlers.
//
// This file implements the builder used for every response so status codes,
// headers and error bodies stay consistent across handlers.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"dairyflow/internal/core"
	"dairyflow/internal/log"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	data       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Created sets 201 and the Location of the new resource.
func (b *JSONResponseBuilder) Created(location string) *JSONResponseBuilder {
	b.statusCode = http.StatusCreated
	if location != "" {
		b.headers["Location"] = location
	}
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Data sets the value encoded as the response body.
func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.data = v
	return b
}

// Write sends the built response to the http.ResponseWriter. 204 responses
// carry no body.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.statusCode == http.StatusNoContent || b.data == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	body, err := json.Marshal(b.data)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"encode response","code":"internal_error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(body)
	_, _ = w.Write([]byte("\n"))
}

// ErrorResponse creates a standard JSON error response.
func ErrorResponse(statusCode int, code, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Data(ErrorBody{Error: message, Code: code})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, log.ErrorTypeValidation, message)
}

// UnprocessableEntityError creates a 422 error response for a rejected field.
func UnprocessableEntityError(field, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(http.StatusUnprocessableEntity).
		Data(ErrorBody{Error: message, Code: log.ErrorTypeValidation, Field: field})
}

// ConflictError creates a 409 Conflict error response.
func ConflictError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusConflict, log.ErrorTypeConflict, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, log.ErrorTypeInternal, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, log.ErrorTypeNotFound, message)
}

// ErrorFor maps a domain error to its response: rejected input is 422,
// conflicting state is 409, a missing record is 404 and anything else is a
// 500 that still surfaces the error text.
func ErrorFor(err error) *JSONResponseBuilder {
	var ve *core.ValidationError
	var be *badRequest
	switch {
	case errors.As(err, &be):
		return BadRequestError(be.msg).Status(be.status)
	case errors.As(err, &ve):
		return UnprocessableEntityError(ve.Field, ve.Error())
	case errors.Is(err, core.ErrNoEntries):
		return UnprocessableEntityError("", err.Error())
	case errors.Is(err, core.ErrDuplicateBill),
		errors.Is(err, core.ErrConflict),
		errors.Is(err, core.ErrAlreadyPaid):
		return ConflictError(err.Error())
	case errors.Is(err, core.ErrNotFound):
		return NotFoundError(err.Error())
	}
	return InternalServerError(err.Error())
}
