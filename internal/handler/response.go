package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/efreitasn/depotbroker/internal/domain"
)

// WriteJSON writes a JSON response with the given status code and data.
// Sets Content-Type to application/json before writing the status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// errorResponse is the standard error response format.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a standard error response with the given status code,
// error code, and human-readable message.
func WriteError(w http.ResponseWriter, status int, errorCode, message string) {
	WriteJSON(w, status, errorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// ParseJSON decodes the request body as JSON into v, rejecting unknown
// fields.
func ParseJSON(r *http.Request, v any) error {
	return parseJSON(r, v, true)
}

// ParseLenientJSON decodes the request body as JSON into v and ignores
// unknown fields. Used for venue callbacks, whose payloads may grow.
func ParseLenientJSON(r *http.Request, v any) error {
	return parseJSON(r, v, false)
}

func parseJSON(r *http.Request, v any, strict bool) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	dec := json.NewDecoder(r.Body)
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}
	return nil
}

// errorCodes names the sentinel errors in responses.
var errorCodes = []struct {
	err    error
	status int
}{
	{domain.ErrSessionNotFound, http.StatusUnauthorized},
	{domain.ErrSessionExpired, http.StatusUnauthorized},
	{domain.ErrJobNotFound, http.StatusNotFound},
	{domain.ErrOrderNotFound, http.StatusNotFound},
	{domain.ErrDepotNotFound, http.StatusNotFound},
	{domain.ErrShareNotFound, http.StatusNotFound},
	{domain.ErrJobTerminated, http.StatusConflict},
	{domain.ErrJobConflict, http.StatusConflict},
	{domain.ErrDuplicateOrder, http.StatusConflict},
	{domain.ErrOrderNotCancellable, http.StatusConflict},
	{domain.ErrInsufficientHoldings, http.StatusConflict},
}

// writeServiceError maps a service or engine error to its HTTP response.
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		WriteError(w, http.StatusBadRequest, "validation_error", verr.Message)
		return
	}

	var nerr *domain.NotAuthorizedError
	if errors.As(err, &nerr) {
		WriteError(w, http.StatusForbidden, "not_authorized", nerr.Error())
		return
	}

	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			WriteError(w, c.status, c.err.Error(), err.Error())
			return
		}
	}

	var uerr *domain.UpstreamError
	if errors.As(err, &uerr) {
		WriteError(w, http.StatusBadGateway, "upstream_error", uerr.Error())
		return
	}

	WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
}
