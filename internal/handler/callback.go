package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/depotbroker/internal/engine"
)

// CallbackHandler receives the exchange's order callbacks. Payload field
// names are fixed by the venue.
type CallbackHandler struct {
	lifecycle *engine.JobLifecycle
}

// NewCallbackHandler creates a new CallbackHandler.
func NewCallbackHandler(lifecycle *engine.JobLifecycle) *CallbackHandler {
	return &CallbackHandler{lifecycle: lifecycle}
}

// venueTime accepts either an RFC 3339 string or Unix milliseconds.
type venueTime struct {
	time.Time
}

func (t *venueTime) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
		t.Time = parsed
		return nil
	}
	ms, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("timestamp must be RFC 3339 or Unix milliseconds: %w", err)
	}
	t.Time = time.UnixMilli(ms)
	return nil
}

// or returns the timestamp, or fallback when the venue sent none.
func (t venueTime) or(fallback time.Time) time.Time {
	if t.IsZero() {
		return fallback
	}
	return t.Time
}

type placeCallback struct {
	JobID string `json:"jobId"`
	ID    string `json:"id"`
}

type matchCallback struct {
	OrderID   string          `json:"orderId"`
	Amount    int64           `json:"amount"`
	Price     decimal.Decimal `json:"price"`
	Timestamp venueTime       `json:"timestamp"`
}

type completeCallback struct {
	OrderID   string    `json:"orderId"`
	Timestamp venueTime `json:"timestamp"`
}

type deleteCallback struct {
	OrderID   string    `json:"orderId"`
	Timestamp venueTime `json:"timestamp"`
	Remaining int64     `json:"remaining"`
}

// OnPlace handles POST /callbacks/place.
func (h *CallbackHandler) OnPlace(w http.ResponseWriter, r *http.Request) {
	var req placeCallback
	if err := ParseLenientJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.JobID == "" {
		WriteError(w, http.StatusBadRequest, "validation_error", "jobId is required")
		return
	}

	h.respond(w, h.lifecycle.OnPlace(r.Context(), req.JobID, req.ID))
}

// OnMatch handles POST /callbacks/match.
func (h *CallbackHandler) OnMatch(w http.ResponseWriter, r *http.Request) {
	var req matchCallback
	if err := ParseLenientJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.OrderID == "" {
		WriteError(w, http.StatusBadRequest, "validation_error", "orderId is required")
		return
	}

	err := h.lifecycle.OnMatch(r.Context(), req.OrderID, req.Amount, req.Price, req.Timestamp.or(time.Now()))
	h.respond(w, err)
}

// OnComplete handles POST /callbacks/complete.
func (h *CallbackHandler) OnComplete(w http.ResponseWriter, r *http.Request) {
	var req completeCallback
	if err := ParseLenientJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.OrderID == "" {
		WriteError(w, http.StatusBadRequest, "validation_error", "orderId is required")
		return
	}

	h.respond(w, h.lifecycle.OnComplete(r.Context(), req.OrderID, req.Timestamp.or(time.Now())))
}

// OnDelete handles POST /callbacks/delete.
func (h *CallbackHandler) OnDelete(w http.ResponseWriter, r *http.Request) {
	var req deleteCallback
	if err := ParseLenientJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.OrderID == "" {
		WriteError(w, http.StatusBadRequest, "validation_error", "orderId is required")
		return
	}

	err := h.lifecycle.OnDelete(r.Context(), req.OrderID, req.Timestamp.or(time.Now()), req.Remaining)
	h.respond(w, err)
}

// respond acknowledges a callback. Callbacks for jobs that already finished
// get 409 job_terminated, unknown ids 404.
func (h *CallbackHandler) respond(w http.ResponseWriter, err error) {
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
