// Package http exposes the ledger as a JSON API.
//
// This file implements the builder used by every handler to write JSON
// responses, and the single mapping from ledger errors to status codes.

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"ledger/internal/core"
	"ledger/internal/log"
)

// Error kinds carried in the "kind" field of error bodies.
const (
	KindMonthClosed       = log.ErrorTypeConflict
	KindAlreadyGenerated  = log.ErrorTypeDuplicate
	KindInvalidInput      = log.ErrorTypeValidation
	KindNotFound          = log.ErrorTypeNotFound
	KindInconsistentGroup = log.ErrorTypeCorruption
	KindInternal          = log.ErrorTypeInternal
	KindBadRequest        = "bad_request"
	KindRateLimited       = "rate_limited"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	data       any
	hasData    bool
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Data sets the value encoded as the response body.
func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.data = v
	b.hasData = true
	return b
}

// Write sends the built response. Encoding happens before the status line
// so a marshal failure still yields a clean 500.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if !b.hasData || b.statusCode == http.StatusNoContent {
		w.WriteHeader(b.statusCode)
		return
	}

	body, err := json.Marshal(b.data)
	if err != nil {
		slog.Error("Response encoding failed", log.FieldError, err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal error","kind":"internal_error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(body, '\n'))
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, kind, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Data(ErrorBody{Error: message, Kind: kind})
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, KindBadRequest, message)
}

func UnprocessableEntityError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, KindInvalidInput, message)
}

func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, KindNotFound, message)
}

func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, KindInternal, message)
}

// classify maps a ledger error to its HTTP status and kind.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrMonthClosed), errors.Is(err, core.ErrMonthAlreadyClosed):
		return http.StatusConflict, KindMonthClosed
	case errors.Is(err, core.ErrDuplicateMaterialization):
		return http.StatusConflict, KindAlreadyGenerated
	case core.IsInvalidInput(err):
		return http.StatusUnprocessableEntity, KindInvalidInput
	case core.IsNotFound(err):
		return http.StatusNotFound, KindNotFound
	case errors.Is(err, core.ErrInconsistentGroup):
		return http.StatusInternalServerError, KindInconsistentGroup
	default:
		return http.StatusInternalServerError, KindInternal
	}
}

// writeServiceError writes the response for an error returned by the
// ledger. Internal failures are logged and their text is not exposed.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := classify(err)
	message := err.Error()

	logger := log.FromContext(r.Context())
	fields := log.NewFields().
		WithError(err).
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent())
	fields[log.FieldErrorKind] = kind

	switch {
	case kind == KindInconsistentGroup:
		logger.ErrorContext(r.Context(), "Inconsistent installment group", fields.ToSlice()...)
	case status >= http.StatusInternalServerError:
		logger.ErrorContext(r.Context(), "Ledger operation failed", fields.ToSlice()...)
		message = "internal error"
	default:
		logger.DebugContext(r.Context(), "Ledger operation rejected", fields.ToSlice()...)
	}

	ErrorResponse(status, kind, message).Write(w)
}
