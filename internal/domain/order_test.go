package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func validOrder() Order {
	return Order{
		OrderID: "o-1",
		DepotID: "d-1",
		ShareID: "ACME",
		Amount:  10,
		Side:    OrderSideBuy,
		Detail:  OrderDetailMarket,
	}
}

func TestOrder_Validate(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name    string
		mutate  func(o *Order)
		wantErr bool
	}{
		{"market", func(o *Order) {}, false},
		{"limit", func(o *Order) { o.Detail = OrderDetailLimit; o.Limit = price("12.5") }, false},
		{"stop", func(o *Order) { o.Detail = OrderDetailStop; o.Stop = price("9") }, false},
		{"stop limit", func(o *Order) {
			o.Detail = OrderDetailStopLimit
			o.Stop = price("9")
			o.StopLimit = price("8.5")
		}, false},
		{"future validity", func(o *Order) { o.Validity = &future }, false},
		{"sell", func(o *Order) { o.Side = OrderSideSell }, false},
		{"missing order id", func(o *Order) { o.OrderID = "" }, true},
		{"missing share", func(o *Order) { o.ShareID = "" }, true},
		{"zero amount", func(o *Order) { o.Amount = 0 }, true},
		{"negative amount", func(o *Order) { o.Amount = -5 }, true},
		{"unknown side", func(o *Order) { o.Side = "hold" }, true},
		{"unknown detail", func(o *Order) { o.Detail = "iceberg" }, true},
		{"market with limit", func(o *Order) { o.Limit = price("1") }, true},
		{"limit without price", func(o *Order) { o.Detail = OrderDetailLimit }, true},
		{"limit zero price", func(o *Order) { o.Detail = OrderDetailLimit; o.Limit = price("0") }, true},
		{"limit with stop", func(o *Order) {
			o.Detail = OrderDetailLimit
			o.Limit = price("1")
			o.Stop = price("1")
		}, true},
		{"stop negative", func(o *Order) { o.Detail = OrderDetailStop; o.Stop = price("-1") }, true},
		{"stop limit missing stopLimit", func(o *Order) { o.Detail = OrderDetailStopLimit; o.Stop = price("9") }, true},
		{"past validity", func(o *Order) { o.Validity = &past }, true},
		{"validity now", func(o *Order) { o.Validity = &now }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := validOrder()
			tt.mutate(&o)
			err := o.Validate(now)
			if tt.wantErr {
				var vErr *ValidationError
				if !errors.As(err, &vErr) {
					t.Fatalf("Validate() = %v, want ValidationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestOrder_Expired(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	o := validOrder()
	if o.Expired(now) {
		t.Error("good-till-cancelled order should never expire")
	}
	o.Validity = &future
	if o.Expired(now) {
		t.Error("order with future validity should not be expired")
	}
	o.Validity = &past
	if !o.Expired(now) {
		t.Error("order with past validity should be expired")
	}
	o.Validity = &now
	if !o.Expired(now) {
		t.Error("order whose validity equals now should be expired")
	}
}
