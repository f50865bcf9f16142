package cart

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/ticketeer/boxoffice/core/item"
	"github.com/ticketeer/boxoffice/core/voucher"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestExpiredAt(t *testing.T) {
	now := time.Date(2026, time.July, 1, 12, 0, 0, 0, time.UTC)

	p := Position{Expires: now.Add(time.Minute)}
	if p.ExpiredAt(now) {
		t.Fatal("position with future expiry reported expired")
	}

	p.Expires = now.Add(-time.Minute)
	if !p.ExpiredAt(now) {
		t.Fatal("position with past expiry reported live")
	}

	// The boundary instant still holds the unit.
	p.Expires = now
	if p.ExpiredAt(now) {
		t.Fatal("position expiring exactly now reported expired")
	}
}

func TestInitialPrice(t *testing.T) {
	base := item.Item{DefaultPrice: dec("23.00")}
	free := item.Item{DefaultPrice: dec("23.00"), FreePrice: true}
	override := dec("12.00")

	amount := func(s string) *string { return &s }

	tests := []struct {
		name    string
		it      item.Item
		vch     *voucher.Voucher
		given   *string
		want    string
		wantErr bool
	}{
		{"base price", base, nil, nil, "23.00", false},
		{"voucher override", base, &voucher.Voucher{Price: &override}, nil, "12.00", false},
		{"free price above base", free, nil, amount("42.00"), "42.00", false},
		{"free price at base", free, nil, amount("23.00"), "23.00", false},
		{"free price below base", free, nil, amount("10.00"), "", true},
		{"free price garbage", free, nil, amount("lots"), "", true},
		{"free price omitted", free, nil, nil, "23.00", false},
		{"price ignored without free price", base, nil, amount("42.00"), "23.00", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := initialPrice(tt.it, nil, tt.vch, tt.given)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected an error, got price %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(dec(tt.want)) {
				t.Fatalf("expected price %s, got %s", tt.want, got)
			}
		})
	}
}
