package payment

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/ticketeer/boxoffice/core/order"
)

// BankTransfer is the no-op provider: the order is created pending and
// the buyer wires the money manually.
type BankTransfer struct {
	base
}

func NewBankTransfer(fees FeePolicy) *BankTransfer {
	return &BankTransfer{base{id: "banktransfer", fees: fees}}
}

func (p *BankTransfer) IsValidSession(data SessionData) bool { return true }

func (p *BankTransfer) Prepare(ctx context.Context, data SessionData, total decimal.Decimal) (SessionData, error) {
	return data, nil
}

func (p *BankTransfer) Perform(ctx context.Context, ord order.Order) (string, error) {
	return "", nil
}
