package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide indicates whether an order buys or sells shares.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderDetail selects the execution style of an order.
type OrderDetail string

const (
	OrderDetailMarket    OrderDetail = "market"
	OrderDetailLimit     OrderDetail = "limit"
	OrderDetailStop      OrderDetail = "stop"
	OrderDetailStopLimit OrderDetail = "stopLimit"
)

// Order is a customer instruction to buy or sell shares of one company for a
// depot. Sub-orders produced by a split keep the parent's OrderID.
type Order struct {
	OrderID   string
	DepotID   string
	ShareID   string
	Amount    int64
	Side      OrderSide
	Detail    OrderDetail
	Limit     *decimal.Decimal
	Stop      *decimal.Decimal
	StopLimit *decimal.Decimal
	Validity  *time.Time // nil means good till cancelled
}

// Validate checks the order fields that do not depend on stored state.
func (o Order) Validate(now time.Time) error {
	if o.OrderID == "" {
		return &ValidationError{Message: "orderId is required"}
	}
	if o.ShareID == "" {
		return &ValidationError{Message: "shareId is required"}
	}
	if o.Amount <= 0 {
		return &ValidationError{Message: "amount must be a positive integer"}
	}
	if o.Side != OrderSideBuy && o.Side != OrderSideSell {
		return &ValidationError{Message: fmt.Sprintf("Unknown side: %s. Must be one of: buy, sell", o.Side)}
	}

	switch o.Detail {
	case OrderDetailMarket:
		if o.Limit != nil || o.Stop != nil || o.StopLimit != nil {
			return &ValidationError{Message: "market orders must not include limit, stop or stopLimit"}
		}
	case OrderDetailLimit:
		if err := requirePrice("limit", o.Limit); err != nil {
			return err
		}
		if o.Stop != nil || o.StopLimit != nil {
			return &ValidationError{Message: "limit orders must not include stop or stopLimit"}
		}
	case OrderDetailStop:
		if err := requirePrice("stop", o.Stop); err != nil {
			return err
		}
		if o.Limit != nil || o.StopLimit != nil {
			return &ValidationError{Message: "stop orders must not include limit or stopLimit"}
		}
	case OrderDetailStopLimit:
		if err := requirePrice("stop", o.Stop); err != nil {
			return err
		}
		if err := requirePrice("stopLimit", o.StopLimit); err != nil {
			return err
		}
		if o.Limit != nil {
			return &ValidationError{Message: "stopLimit orders must not include limit"}
		}
	default:
		return &ValidationError{
			Message: fmt.Sprintf("Unknown detail: %s. Must be one of: market, limit, stop, stopLimit", o.Detail),
		}
	}

	if o.Validity != nil && !o.Validity.After(now) {
		return &ValidationError{Message: "validity must be a future timestamp"}
	}
	return nil
}

// Expired reports whether the order's validity has elapsed at now.
// Good-till-cancelled orders never expire.
func (o Order) Expired(now time.Time) bool {
	return o.Validity != nil && !o.Validity.After(now)
}

func requirePrice(field string, p *decimal.Decimal) error {
	if p == nil {
		return &ValidationError{Message: field + " is required"}
	}
	if !p.IsPositive() {
		return &ValidationError{Message: field + " must be greater than 0"}
	}
	return nil
}
