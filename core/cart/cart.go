package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Position is a tentative, time-limited hold on one unit of an item for
// a given shopping session. Past its expiry the hold stops counting
// against quotas, but the position itself stays until it is confirmed,
// removed, or loses a quota re-check.
type Position struct {
	ID           string          `json:"id" db:"position_id"`
	EventID      string          `json:"eventId" db:"event_id"`
	CartID       string          `json:"-" db:"cart_id"`
	ItemID       string          `json:"itemId" db:"item_id"`
	VariationID  *string         `json:"variationId" db:"variation_id"`
	Price        decimal.Decimal `json:"price" db:"price"`
	VoucherID    *string         `json:"voucherId" db:"voucher_id"`
	Expires      time.Time       `json:"expires" db:"expires"`
	AttendeeName *string         `json:"attendeeName" db:"attendee_name"`
	CreatedAt    time.Time       `json:"createdAt" db:"created_at"`
}

func (p Position) ExpiredAt(now time.Time) bool {
	return p.Expires.Before(now)
}

type PositionNew struct {
	ItemID      string  `json:"itemId" validate:"required,uuid"`
	VariationID *string `json:"variationId" validate:"omitempty,uuid"`
	VoucherCode *string `json:"voucherCode"`
	Price       *string `json:"price"`
}

// FetchByCart returns the cart's positions in creation order. That
// order is the deterministic tie-breaker everywhere a confirm attempt
// has to pick winners.
func FetchByCart(ctx context.Context, db sqlx.ExtContext, cartID string) ([]Position, error) {
	const q = `SELECT * FROM cart_positions WHERE cart_id = $1 ORDER BY created_at, position_id`

	var rows []Position
	if err := sqlx.SelectContext(ctx, db, &rows, q, cartID); err != nil {
		return nil, fmt.Errorf("selecting positions of cart[%s]: %w", cartID, err)
	}
	return rows, nil
}

func Insert(ctx context.Context, db sqlx.ExtContext, p Position) error {
	const q = `
	INSERT INTO cart_positions
		(position_id, event_id, cart_id, item_id, variation_id, price, voucher_id, expires, attendee_name, created_at)
	VALUES
		(:position_id, :event_id, :cart_id, :item_id, :variation_id, :price, :voucher_id, :expires, :attendee_name, :created_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, p); err != nil {
		return fmt.Errorf("inserting position: %w", err)
	}
	return nil
}

// UpdatePrice corrects the stored price of a position to the
// authoritative value. The position survives; the user resubmits.
func UpdatePrice(ctx context.Context, tx sqlx.ExtContext, positionID string, price decimal.Decimal) error {
	const q = `UPDATE cart_positions SET price = $2 WHERE position_id = $1`

	if _, err := tx.ExecContext(ctx, q, positionID, price); err != nil {
		return fmt.Errorf("updating price of position[%s]: %w", positionID, err)
	}
	return nil
}

func UpdateAttendeeName(ctx context.Context, db sqlx.ExtContext, positionID string, name *string) error {
	const q = `UPDATE cart_positions SET attendee_name = $2 WHERE position_id = $1`

	if _, err := db.ExecContext(ctx, q, positionID, name); err != nil {
		return fmt.Errorf("updating attendee name of position[%s]: %w", positionID, err)
	}
	return nil
}

// DetachVoucher strips the voucher from a position, leaving the
// position itself in place as an unvouchered hold.
func DetachVoucher(ctx context.Context, tx sqlx.ExtContext, positionID string) error {
	const q = `UPDATE cart_positions SET voucher_id = NULL WHERE position_id = $1`

	if _, err := tx.ExecContext(ctx, q, positionID); err != nil {
		return fmt.Errorf("detaching voucher from position[%s]: %w", positionID, err)
	}
	return nil
}

func Delete(ctx context.Context, tx sqlx.ExtContext, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	const q = `DELETE FROM cart_positions WHERE position_id = ANY($1)`

	if _, err := tx.ExecContext(ctx, q, pq.Array(ids)); err != nil {
		return fmt.Errorf("deleting positions: %w", err)
	}
	return nil
}

func DeleteOne(ctx context.Context, db sqlx.ExtContext, cartID string, positionID string) error {
	const q = `DELETE FROM cart_positions WHERE cart_id = $1 AND position_id = $2`

	if _, err := db.ExecContext(ctx, q, cartID, positionID); err != nil {
		return fmt.Errorf("deleting position[%s]: %w", positionID, err)
	}
	return nil
}
