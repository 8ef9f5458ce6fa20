package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/depotbroker/internal/domain"
	"github.com/efreitasn/depotbroker/internal/service"
)

// DepotHandler handles the customer-facing depot and order endpoints.
type DepotHandler struct {
	brokerage *service.BrokerageService
}

// NewDepotHandler creates a new DepotHandler.
func NewDepotHandler(brokerage *service.BrokerageService) *DepotHandler {
	return &DepotHandler{brokerage: brokerage}
}

// placeOrderRequest is the JSON request body for POST /depots/{depot_id}/orders.
type placeOrderRequest struct {
	OrderID   string           `json:"order_id"`
	DepotID   string           `json:"depot_id"`
	ShareID   string           `json:"share_id"`
	Amount    int64            `json:"amount"`
	Side      string           `json:"side"`
	Detail    string           `json:"detail"`
	Limit     *decimal.Decimal `json:"limit"`
	Stop      *decimal.Decimal `json:"stop"`
	StopLimit *decimal.Decimal `json:"stop_limit"`
	Validity  *string          `json:"validity"`
}

// jobResponse is one job in order and listing responses. Prices are decimal
// strings.
type jobResponse struct {
	JobID           string           `json:"job_id"`
	OrderID         string           `json:"order_id"`
	DepotID         string           `json:"depot_id"`
	ShareID         string           `json:"share_id"`
	Amount          int64            `json:"amount"`
	FilledAmount    int64            `json:"filled_amount"`
	Side            string           `json:"side"`
	Detail          string           `json:"detail"`
	Limit           *decimal.Decimal `json:"limit"`
	Stop            *decimal.Decimal `json:"stop"`
	StopLimit       *decimal.Decimal `json:"stop_limit"`
	Validity        *string          `json:"validity"`
	ExchangeOrderID *string          `json:"exchange_order_id"`
	State           string           `json:"state"`
	CancelRequested bool             `json:"cancel_requested"`
	CreatedAt       string           `json:"created_at"`
}

// placeOrderResponse lists the jobs created for one order. Failed is set
// only when some sub-orders of a split could not be placed.
type placeOrderResponse struct {
	OrderID string        `json:"order_id"`
	Jobs    []jobResponse `json:"jobs"`
	Failed  int           `json:"failed,omitempty"`
	Message string        `json:"message,omitempty"`
}

type positionResponse struct {
	ShareID          string          `json:"share_id"`
	Amount           int64           `json:"amount"`
	CostValue        decimal.Decimal `json:"cost_value"`
	CurrentValue     decimal.Decimal `json:"current_value"`
	PercentageChange decimal.Decimal `json:"percentage_change"`
}

type summaryResponse struct {
	TotalValue       decimal.Decimal `json:"total_value"`
	CostValue        decimal.Decimal `json:"cost_value"`
	PercentageChange decimal.Decimal `json:"percentage_change"`
}

type snapshotResponse struct {
	DepotID   string             `json:"depot_id"`
	Positions []positionResponse `json:"positions"`
	Summary   summaryResponse    `json:"summary"`
}

// PlaceOrder handles POST /depots/{depot_id}/orders.
func (h *DepotHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	depotID := chi.URLParam(r, "depot_id")

	var req placeOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var validity *time.Time
	if req.Validity != nil {
		t, err := time.Parse(time.RFC3339, *req.Validity)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "validity must be a valid RFC 3339 timestamp")
			return
		}
		validity = &t
	}

	jobs, err := h.brokerage.PlaceOrder(r.Context(), depotID, sessionFrom(r.Context()), domain.Order{
		OrderID:   req.OrderID,
		DepotID:   req.DepotID,
		ShareID:   req.ShareID,
		Amount:    req.Amount,
		Side:      domain.OrderSide(req.Side),
		Detail:    domain.OrderDetail(req.Detail),
		Limit:     req.Limit,
		Stop:      req.Stop,
		StopLimit: req.StopLimit,
		Validity:  validity,
	})

	var perr *domain.PartialPlacementError
	if errors.As(err, &perr) {
		WriteJSON(w, http.StatusMultiStatus, placeOrderResponse{
			OrderID: req.OrderID,
			Jobs:    buildJobResponses(perr.Placed),
			Failed:  perr.Failed,
			Message: perr.Error(),
		})
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, placeOrderResponse{
		OrderID: req.OrderID,
		Jobs:    buildJobResponses(jobs),
	})
}

// ListPendingJobs handles GET /depots/{depot_id}/orders.
func (h *DepotHandler) ListPendingJobs(w http.ResponseWriter, r *http.Request) {
	depotID := chi.URLParam(r, "depot_id")

	jobs, err := h.brokerage.ListPendingJobs(r.Context(), depotID, sessionFrom(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"depot_id": depotID,
		"jobs":     buildJobResponses(jobs),
	})
}

// GetSnapshot handles GET /depots/{depot_id}.
func (h *DepotHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	depotID := chi.URLParam(r, "depot_id")

	snap, err := h.brokerage.GetDepotSnapshot(r.Context(), depotID, sessionFrom(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	positions := make([]positionResponse, len(snap.Positions))
	for i, p := range snap.Positions {
		positions[i] = positionResponse{
			ShareID:          p.ShareID,
			Amount:           p.Amount,
			CostValue:        p.CostValue,
			CurrentValue:     p.CurrentValue,
			PercentageChange: p.PercentageChange,
		}
	}

	WriteJSON(w, http.StatusOK, snapshotResponse{
		DepotID:   snap.DepotID,
		Positions: positions,
		Summary: summaryResponse{
			TotalValue:       snap.Summary.TotalValue,
			CostValue:        snap.Summary.CostValue,
			PercentageChange: snap.Summary.PercentageChange,
		},
	})
}

// CancelOrder handles DELETE /orders/{order_id}. The exchange confirms
// deletion through the delete callback, so success is 202.
func (h *DepotHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "order_id")

	if err := h.brokerage.CancelOrder(r.Context(), orderID, sessionFrom(r.Context())); err != nil {
		writeServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]string{
		"order_id": orderID,
		"status":   "cancel_requested",
	})
}

func buildJobResponses(jobs []*domain.Job) []jobResponse {
	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, buildJobResponse(j))
	}
	return out
}

func buildJobResponse(j *domain.Job) jobResponse {
	resp := jobResponse{
		JobID:           j.JobID,
		OrderID:         j.Order.OrderID,
		DepotID:         j.DepotID,
		ShareID:         j.Order.ShareID,
		Amount:          j.Order.Amount,
		FilledAmount:    j.FilledAmount(),
		Side:            string(j.Order.Side),
		Detail:          string(j.Order.Detail),
		Limit:           j.Order.Limit,
		Stop:            j.Order.Stop,
		StopLimit:       j.Order.StopLimit,
		State:           string(j.State),
		CancelRequested: j.CancelRequested,
		CreatedAt:       j.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if j.Order.Validity != nil {
		v := j.Order.Validity.UTC().Format(time.RFC3339)
		resp.Validity = &v
	}
	if j.ExchangeOrderID != "" {
		id := j.ExchangeOrderID
		resp.ExchangeOrderID = &id
	}
	return resp
}
