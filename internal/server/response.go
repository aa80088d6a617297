package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/KaramelBytes/datalens/internal/analysis"
	"github.com/KaramelBytes/datalens/internal/charts"
	"github.com/KaramelBytes/datalens/internal/dataset"
	"github.com/KaramelBytes/datalens/internal/export"
	"github.com/KaramelBytes/datalens/internal/narrative"
	"github.com/KaramelBytes/datalens/internal/store"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error. The body is
// encoded before the header is sent, so an encoding failure becomes a 500.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to encode response")
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, err = w.Write(append(body, '\n'))
	return err
}

// classify maps a domain error to an HTTP status and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errBadParam):
		return http.StatusBadRequest, "invalid_parameter"
	case errors.Is(err, store.ErrInvalidID):
		return http.StatusBadRequest, "invalid_id"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, dataset.ErrParse):
		return http.StatusBadRequest, "parse_failure"
	case errors.Is(err, analysis.ErrColumnNotFound):
		return http.StatusBadRequest, "column_not_found"
	case errors.Is(err, analysis.ErrUnknownMethod):
		return http.StatusBadRequest, "unknown_method"
	case errors.Is(err, analysis.ErrInsufficientColumns):
		return http.StatusUnprocessableEntity, "insufficient_columns"
	case errors.Is(err, analysis.ErrEmptyColumn):
		return http.StatusUnprocessableEntity, "empty_column"
	case errors.Is(err, analysis.ErrNotNumeric):
		return http.StatusUnprocessableEntity, "not_numeric"
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "unsupported_format"
	case errors.Is(err, charts.ErrInvalidColor), errors.Is(err, charts.ErrUnknownTheme), errors.Is(err, charts.ErrUnknownFormat),
		errors.Is(err, charts.ErrInvalidSize), errors.Is(err, charts.ErrUnknownColormap):
		return http.StatusBadRequest, "invalid_chart_options"
	case errors.Is(err, charts.ErrNoData):
		return http.StatusUnprocessableEntity, "no_data"
	case errors.Is(err, narrative.ErrPromptTooLarge):
		return http.StatusRequestEntityTooLarge, "prompt_too_large"
	case errors.Is(err, narrative.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "service_unavailable"
	}
	return http.StatusInternalServerError, "internal_error"
}

// Section is one independently computed part of a report: Data on success,
// otherwise Error and Message.
type Section struct {
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func section(data any, err error) Section {
	if err != nil {
		_, code := classify(err)
		return Section{Error: code, Message: err.Error()}
	}
	return Section{Data: data}
}
