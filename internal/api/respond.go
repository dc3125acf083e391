package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/stepherg/sentinel/internal/telemetry"
)

// FieldError is one entry of an error response's errors list.
type FieldError struct {
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
}

type errorResponse struct {
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string, errs ...FieldError) {
	writeJSON(w, statusCode, errorResponse{Message: message, Errors: errs})
}

// writeInvalid reports err as a 400 when it is a validation error and as a
// generic 500 otherwise.
func writeInvalid(w http.ResponseWriter, message string, err error) {
	var ve *telemetry.ValidationError
	if errors.As(err, &ve) {
		writeError(w, http.StatusBadRequest, message, FieldError{Field: ve.Field, Reason: ve.Reason})
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}

// decodeStrict decodes a JSON body into v, rejecting unknown fields.
func decodeStrict(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &telemetry.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}

// queryLimit parses ?limit=. Missing, malformed or non-positive values yield
// def.
func queryLimit(r *http.Request, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
