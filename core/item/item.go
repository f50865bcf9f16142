package item

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type Item struct {
	ID             string          `json:"id" db:"item_id"`
	EventID        string          `json:"eventId" db:"event_id"`
	Name           string          `json:"name" db:"name"`
	Active         bool            `json:"active" db:"active"`
	DefaultPrice   decimal.Decimal `json:"defaultPrice" db:"default_price"`
	FreePrice      bool            `json:"freePrice" db:"free_price"`
	RequireVoucher bool            `json:"requireVoucher" db:"require_voucher"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time       `json:"updatedAt" db:"updated_at"`
}

type Variation struct {
	ID     string           `json:"id" db:"variation_id"`
	ItemID string           `json:"itemId" db:"item_id"`
	Name   string           `json:"name" db:"name"`
	Price  *decimal.Decimal `json:"price" db:"price"`
}

// BasePrice is the authoritative price before voucher overrides and
// free-price entries: the variation price when the position carries one,
// the item default otherwise.
func (i Item) BasePrice(v *Variation) decimal.Decimal {
	if v != nil && v.Price != nil {
		return *v.Price
	}
	return i.DefaultPrice
}

var ErrNotFound = errors.New("item not found")

func Fetch(ctx context.Context, db sqlx.ExtContext, id string) (Item, error) {
	const q = `SELECT * FROM items WHERE item_id = $1`

	var it Item
	if err := sqlx.GetContext(ctx, db, &it, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		return Item{}, fmt.Errorf("selecting item[%s]: %w", id, err)
	}
	return it, nil
}

func FetchBatch(ctx context.Context, db sqlx.ExtContext, ids []string) (map[string]Item, error) {
	items := make(map[string]Item, len(ids))
	if len(ids) == 0 {
		return items, nil
	}

	const q = `SELECT * FROM items WHERE item_id = ANY($1)`

	var rows []Item
	if err := sqlx.SelectContext(ctx, db, &rows, q, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("selecting items: %w", err)
	}

	for _, it := range rows {
		items[it.ID] = it
	}
	return items, nil
}

func FetchVariations(ctx context.Context, db sqlx.ExtContext, ids []string) (map[string]Variation, error) {
	vars := make(map[string]Variation, len(ids))
	if len(ids) == 0 {
		return vars, nil
	}

	const q = `SELECT * FROM item_variations WHERE variation_id = ANY($1)`

	var rows []Variation
	if err := sqlx.SelectContext(ctx, db, &rows, q, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("selecting variations: %w", err)
	}

	for _, v := range rows {
		vars[v.ID] = v
	}
	return vars, nil
}

func FetchByEvent(ctx context.Context, db sqlx.ExtContext, eventID string) ([]Item, error) {
	const q = `SELECT * FROM items WHERE event_id = $1 ORDER BY created_at`

	var rows []Item
	if err := sqlx.SelectContext(ctx, db, &rows, q, eventID); err != nil {
		return nil, fmt.Errorf("selecting items of event[%s]: %w", eventID, err)
	}
	return rows, nil
}
