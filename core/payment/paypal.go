package payment

import (
	"context"
	"fmt"

	"github.com/plutov/paypal/v4"
	"github.com/shopspring/decimal"
	"github.com/ticketeer/boxoffice/core/order"
)

type Paypal struct {
	base
	client *paypal.Client
}

func NewPaypal(client *paypal.Client, fees FeePolicy) *Paypal {
	return &Paypal{
		base:   base{id: "paypal", fees: fees},
		client: client,
	}
}

func (p *Paypal) IsValidSession(data SessionData) bool { return true }

func (p *Paypal) Prepare(ctx context.Context, data SessionData, total decimal.Decimal) (SessionData, error) {
	return data, nil
}

func (p *Paypal) Perform(ctx context.Context, ord order.Order) (string, error) {
	units := []paypal.PurchaseUnitRequest{{
		ReferenceID: ord.Code,
		Amount: &paypal.PurchaseUnitAmount{
			Currency: "EUR",
			Value:    ord.Total.StringFixed(2),
		},
	}}

	pord, err := p.client.CreateOrder(ctx, paypal.OrderIntentCapture, units, nil, nil)
	if err != nil {
		return "", fmt.Errorf("creating paypal order for order[%s]: %w", ord.Code, err)
	}

	for _, l := range pord.Links {
		if l.Rel == "approve" {
			return l.Href, nil
		}
	}
	return "", nil
}
