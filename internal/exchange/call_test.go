package exchange

import (
	"errors"
	"testing"

	"github.com/efreitasn/depotbroker/internal/domain"
	"github.com/shopspring/decimal"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestDescribe(t *testing.T) {
	limit, stop, stopLimit := dec("10.5"), dec("9"), dec("8.75")

	tests := []struct {
		side      domain.OrderSide
		detail    domain.OrderDetail
		wantKind  CallKind
		wantLimit *decimal.Decimal
		wantStop  *decimal.Decimal
	}{
		{domain.OrderSideBuy, domain.OrderDetailMarket, CallBuyMarket, nil, nil},
		{domain.OrderSideBuy, domain.OrderDetailLimit, CallBuyLimit, limit, nil},
		{domain.OrderSideBuy, domain.OrderDetailStop, CallBuyStop, nil, stop},
		{domain.OrderSideBuy, domain.OrderDetailStopLimit, CallBuyStopLimit, stopLimit, stop},
		{domain.OrderSideSell, domain.OrderDetailMarket, CallSellMarket, nil, nil},
		{domain.OrderSideSell, domain.OrderDetailLimit, CallSellLimit, limit, nil},
		{domain.OrderSideSell, domain.OrderDetailStop, CallSellStop, nil, stop},
		{domain.OrderSideSell, domain.OrderDetailStopLimit, CallSellStopLimit, stopLimit, stop},
	}

	for _, tt := range tests {
		t.Run(string(tt.side)+"/"+string(tt.detail), func(t *testing.T) {
			o := domain.Order{ShareID: "ACME", Amount: 7, Side: tt.side, Detail: tt.detail}
			switch tt.detail {
			case domain.OrderDetailLimit:
				o.Limit = limit
			case domain.OrderDetailStop:
				o.Stop = stop
			case domain.OrderDetailStopLimit:
				o.Stop, o.StopLimit = stop, stopLimit
			}

			call, err := Describe(o)
			if err != nil {
				t.Fatalf("Describe() unexpected error: %v", err)
			}
			if call.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", call.Kind, tt.wantKind)
			}
			if call.ShareID != "ACME" || call.Amount != 7 {
				t.Errorf("got share %q amount %d, want ACME 7", call.ShareID, call.Amount)
			}
			if call.Limit != tt.wantLimit {
				t.Errorf("Limit = %v, want %v", call.Limit, tt.wantLimit)
			}
			if call.Stop != tt.wantStop {
				t.Errorf("Stop = %v, want %v", call.Stop, tt.wantStop)
			}
		})
	}
}

func TestDescribe_UnknownPair(t *testing.T) {
	tests := []domain.Order{
		{Side: "hold", Detail: domain.OrderDetailMarket},
		{Side: domain.OrderSideBuy, Detail: "iceberg"},
		{Side: domain.OrderSideSell, Detail: ""},
	}
	for _, o := range tests {
		_, err := Describe(o)
		var vErr *domain.ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("Describe(%q, %q) = %v, want ValidationError", o.Side, o.Detail, err)
		}
	}
}
