package exchange

import (
	"fmt"
	"time"

	"github.com/efreitasn/depotbroker/internal/domain"
	"github.com/shopspring/decimal"
)

// CallKind names the exchange endpoint an order is routed to.
type CallKind string

const (
	CallBuyMarket     CallKind = "buy/market"
	CallBuyLimit      CallKind = "buy/limit"
	CallBuyStop       CallKind = "buy/stop"
	CallBuyStopLimit  CallKind = "buy/stoplimit"
	CallSellMarket    CallKind = "sell/market"
	CallSellLimit     CallKind = "sell/limit"
	CallSellStop      CallKind = "sell/stop"
	CallSellStopLimit CallKind = "sell/stoplimit"
)

// Call is the typed description of one placement request.
type Call struct {
	Kind     CallKind
	ShareID  string
	Amount   int64
	Limit    *decimal.Decimal
	Stop     *decimal.Decimal
	Validity *time.Time
}

// Describe maps an order's (side, detail) pair to its placement call.
// For stop-limit orders the stopLimit price travels as the call's limit.
func Describe(o domain.Order) (Call, error) {
	call := Call{
		ShareID:  o.ShareID,
		Amount:   o.Amount,
		Validity: o.Validity,
	}

	switch o.Side {
	case domain.OrderSideBuy:
		switch o.Detail {
		case domain.OrderDetailMarket:
			call.Kind = CallBuyMarket
		case domain.OrderDetailLimit:
			call.Kind, call.Limit = CallBuyLimit, o.Limit
		case domain.OrderDetailStop:
			call.Kind, call.Stop = CallBuyStop, o.Stop
		case domain.OrderDetailStopLimit:
			call.Kind, call.Stop, call.Limit = CallBuyStopLimit, o.Stop, o.StopLimit
		default:
			return Call{}, unknownCall(o)
		}
	case domain.OrderSideSell:
		switch o.Detail {
		case domain.OrderDetailMarket:
			call.Kind = CallSellMarket
		case domain.OrderDetailLimit:
			call.Kind, call.Limit = CallSellLimit, o.Limit
		case domain.OrderDetailStop:
			call.Kind, call.Stop = CallSellStop, o.Stop
		case domain.OrderDetailStopLimit:
			call.Kind, call.Stop, call.Limit = CallSellStopLimit, o.Stop, o.StopLimit
		default:
			return Call{}, unknownCall(o)
		}
	default:
		return Call{}, unknownCall(o)
	}

	return call, nil
}

func unknownCall(o domain.Order) error {
	return &domain.ValidationError{
		Message: fmt.Sprintf("no exchange call for side %q and detail %q", o.Side, o.Detail),
	}
}
