package payment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
	"github.com/ticketeer/boxoffice/core/order"
)

type Stripe struct {
	base
	client     *stripecl.API
	successURL string
	cancelURL  string
}

func NewStripe(client *stripecl.API, fees FeePolicy, successURL, cancelURL string) *Stripe {
	return &Stripe{
		base:       base{id: "stripe", fees: fees},
		client:     client,
		successURL: successURL,
		cancelURL:  cancelURL,
	}
}

func (p *Stripe) IsValidSession(data SessionData) bool {
	// Stripe's hosted checkout is entered after the order exists, so
	// there is no per-session state to lose.
	return true
}

func (p *Stripe) Prepare(ctx context.Context, data SessionData, total decimal.Decimal) (SessionData, error) {
	return data, nil
}

func (p *Stripe) Perform(ctx context.Context, ord order.Order) (string, error) {
	params := &stripe.CheckoutSessionParams{
		SuccessURL:        stripe.String(p.successURL),
		CancelURL:         stripe.String(p.cancelURL),
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(ord.Code),

		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),

			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String("eur"),
				UnitAmount: stripe.Int64(ord.Total.Mul(decimal.NewFromInt(100)).IntPart()),

				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(fmt.Sprintf("Order %s", ord.Code)),
				},
			},
		}},
	}

	s, err := p.client.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("creating stripe session for order[%s]: %w", ord.Code, err)
	}

	return s.URL, nil
}
