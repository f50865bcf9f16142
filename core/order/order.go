package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/ticketeer/boxoffice/core/question"
	"github.com/ticketeer/boxoffice/random"
)

type Status string

const (
	Pending  Status = "pending"
	Paid     Status = "paid"
	Canceled Status = "canceled"
	Expired  Status = "expired"
)

// Order is immutable once committed, except for status transitions
// driven by payment events outside the checkout core.
type Order struct {
	ID         string          `json:"id" db:"order_id"`
	Code       string          `json:"code" db:"code"`
	EventID    string          `json:"eventId" db:"event_id"`
	CartID     string          `json:"-" db:"cart_id"`
	Email      string          `json:"email" db:"email"`
	Status     Status          `json:"status" db:"status"`
	Payment    string          `json:"payment" db:"payment"`
	PaymentFee decimal.Decimal `json:"paymentFee" db:"payment_fee"`
	Total      decimal.Decimal `json:"total" db:"total"`
	Expires    time.Time       `json:"expires" db:"expires"`
	CreatedAt  time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time       `json:"updatedAt" db:"updated_at"`
}

// Position freezes what was sold: the price at commit time, the voucher
// used, the attendee name and the answers given.
type Position struct {
	ID           string            `json:"id" db:"position_id"`
	OrderID      string            `json:"-" db:"order_id"`
	ItemID       string            `json:"itemId" db:"item_id"`
	VariationID  *string           `json:"variationId" db:"variation_id"`
	VoucherID    *string           `json:"voucherId" db:"voucher_id"`
	Price        decimal.Decimal   `json:"price" db:"price"`
	AttendeeName *string           `json:"attendeeName" db:"attendee_name"`
	Answers      []question.Answer `json:"answers" db:"-"`
}

type StatusUp struct {
	ID        string    `db:"order_id"`
	Status    Status    `db:"status"`
	UpdatedAt time.Time `db:"updated_at"`
}

// GenerateCode builds the short human-facing order code printed on
// tickets and used in payment references.
func GenerateCode() string {
	return strings.ToUpper(random.String(5))
}

// Commit persists the order and its frozen positions. It performs no
// business validation; the checkout has already decided everything.
// Must run inside the confirm transaction so any storage failure rolls
// the whole attempt back.
func Commit(ctx context.Context, tx sqlx.ExtContext, ord Order, positions []Position) error {
	const insOrder = `
	INSERT INTO orders
		(order_id, code, event_id, cart_id, email, status, payment, payment_fee, total, expires, created_at, updated_at)
	VALUES
		(:order_id, :code, :event_id, :cart_id, :email, :status, :payment, :payment_fee, :total, :expires, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, tx, insOrder, ord); err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}

	const insPosition = `
	INSERT INTO order_positions
		(position_id, order_id, item_id, variation_id, voucher_id, price, attendee_name)
	VALUES
		(:position_id, :order_id, :item_id, :variation_id, :voucher_id, :price, :attendee_name)`

	const insAnswer = `
	INSERT INTO order_answers (position_id, question_id, answer)
	VALUES ($1, $2, $3)`

	for _, p := range positions {
		if _, err := sqlx.NamedExecContext(ctx, tx, insPosition, p); err != nil {
			return fmt.Errorf("inserting order position: %w", err)
		}
		for _, a := range p.Answers {
			if _, err := tx.ExecContext(ctx, insAnswer, p.ID, a.QuestionID, a.Answer); err != nil {
				return fmt.Errorf("inserting order answer: %w", err)
			}
		}
	}

	return nil
}

var ErrNotFound = errors.New("order not found")

func FetchByCode(ctx context.Context, db sqlx.ExtContext, code string) (Order, error) {
	const q = `SELECT * FROM orders WHERE code = $1`

	var ord Order
	if err := sqlx.GetContext(ctx, db, &ord, q, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("selecting order[%s]: %w", code, err)
	}
	return ord, nil
}

func FetchPositions(ctx context.Context, db sqlx.ExtContext, orderID string) ([]Position, error) {
	const q = `SELECT * FROM order_positions WHERE order_id = $1 ORDER BY position_id`

	var rows []Position
	if err := sqlx.SelectContext(ctx, db, &rows, q, orderID); err != nil {
		return nil, fmt.Errorf("selecting positions of order[%s]: %w", orderID, err)
	}
	return rows, nil
}

// UpdateStatus applies a payment-driven transition.
func UpdateStatus(ctx context.Context, tx sqlx.ExtContext, up StatusUp) error {
	const q = `UPDATE orders SET status = :status, updated_at = :updated_at WHERE order_id = :order_id`

	if _, err := sqlx.NamedExecContext(ctx, tx, q, up); err != nil {
		return fmt.Errorf("updating status of order[%s]: %w", up.ID, err)
	}
	return nil
}
