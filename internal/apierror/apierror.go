// Package apierror maps domain errors onto HTTP responses.
package apierror

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/domain"
)

// Response is the body of every non-2xx response
type Response struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// mapping pairs a sentinel with its HTTP status and stable code
type mapping struct {
	sentinel error
	status   int
	code     string
}

// Timeout is checked before the generic upstream failure
var mappings = []mapping{
	{domain.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{domain.ErrDataUnavailable, http.StatusBadRequest, "data_unavailable"},
	{domain.ErrEmptyResult, http.StatusBadRequest, "empty_result"},
	{domain.ErrOptimization, http.StatusUnprocessableEntity, "optimization_failed"},
	{domain.ErrUpstreamTimeout, http.StatusGatewayTimeout, "upstream_timeout"},
	{domain.ErrMalformedData, http.StatusBadGateway, "malformed_data"},
	{domain.ErrUpstream, http.StatusBadGateway, "upstream_failure"},
}

const (
	internalMessage = "internal server error"
	internalCode    = "internal_error"
)

// Classify returns the status and client-safe body for err. Client errors
// carry the wrapped detail; server errors carry only the sentinel text.
func Classify(err error) (int, Response) {
	for _, m := range mappings {
		if errors.Is(err, m.sentinel) {
			msg := m.sentinel.Error()
			if m.status < http.StatusInternalServerError {
				msg = PublicMessage(err, m.sentinel)
			}
			return m.status, Response{Error: msg, Code: m.code}
		}
	}
	return http.StatusInternalServerError, Response{Error: internalMessage, Code: internalCode}
}

// Write logs err with its full chain and writes the sanitised response
func Write(w http.ResponseWriter, log zerolog.Logger, err error) {
	status, resp := Classify(err)

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Str("code", resp.Code).Msg("Request failed")
	} else {
		log.Warn().Err(err).Int("status", status).Str("code", resp.Code).Msg("Request rejected")
	}

	WriteJSON(w, log, status, resp)
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, log zerolog.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// PublicMessage strips the sentinel prefix so clients see only the detail,
// e.g. "invalid input: Invalid category. ..." becomes "Invalid category. ...".
func PublicMessage(err error, sentinel error) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		return msg[i+len(prefix):]
	}
	return msg
}
