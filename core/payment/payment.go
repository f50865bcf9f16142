// Package payment models the payment providers the checkout can hand an
// order to. Providers are looked up in a registry by identifier string;
// the checkout core only ever sees the Provider interface.
package payment

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/ticketeer/boxoffice/core/order"
)

// SessionData is the provider-specific slice of the checkout session:
// whatever the provider stored during Prepare and needs back at confirm
// time.
type SessionData map[string]string

type Provider interface {
	Identifier() string

	// CalculateFee returns the fee added to the order total when this
	// provider is chosen, given the total before fees.
	CalculateFee(price decimal.Decimal) decimal.Decimal

	// IsValidSession reports whether the session still carries
	// everything the provider needs to perform the payment.
	IsValidSession(data SessionData) bool

	// Prepare is called when the user selects the provider. It may
	// store provider state into the returned session data.
	Prepare(ctx context.Context, data SessionData, total decimal.Decimal) (SessionData, error)

	// Perform initiates the payment for a freshly created order. A
	// non-empty return value is a redirect URL for the buyer.
	Perform(ctx context.Context, ord order.Order) (string, error)
}

type Registry map[string]Provider

func NewRegistry(providers ...Provider) Registry {
	r := make(Registry, len(providers))
	for _, p := range providers {
		r[p.Identifier()] = p
	}
	return r
}

func (r Registry) Get(id string) (Provider, bool) {
	p, ok := r[id]
	return p, ok
}

// FeePolicy is the additive payment fee: an absolute part plus a
// percentage of the pre-fee total.
type FeePolicy struct {
	Abs     decimal.Decimal
	Percent decimal.Decimal
}

func (f FeePolicy) Fee(price decimal.Decimal) decimal.Decimal {
	return price.Mul(f.Percent).Div(decimal.NewFromInt(100)).Add(f.Abs).Round(2)
}

// base carries the parts every provider shares.
type base struct {
	id   string
	fees FeePolicy
}

func (b base) Identifier() string { return b.id }

func (b base) CalculateFee(price decimal.Decimal) decimal.Decimal {
	return b.fees.Fee(price)
}
