// Package quota tracks finite inventory. Availability is always computed
// on demand from the current consumers of a quota, never denormalized.
package quota

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Quota struct {
	ID        string    `json:"id" db:"quota_id"`
	EventID   string    `json:"eventId" db:"event_id"`
	Name      string    `json:"name" db:"name"`
	Size      *int64    `json:"size" db:"size"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// FetchForItems returns the quotas covering each of the given items.
// An item missing from the result is covered by no quota at all and
// must be treated as unavailable.
func FetchForItems(ctx context.Context, db sqlx.ExtContext, itemIDs []string) (map[string][]Quota, error) {
	byItem := make(map[string][]Quota, len(itemIDs))
	if len(itemIDs) == 0 {
		return byItem, nil
	}

	const q = `
	SELECT qi.item_id, q.*
	FROM quota_items qi
	JOIN quotas q ON q.quota_id = qi.quota_id
	WHERE qi.item_id = ANY($1)`

	rows, err := db.QueryxContext(ctx, q, pq.Array(itemIDs))
	if err != nil {
		return nil, fmt.Errorf("selecting quotas for items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row struct {
			ItemID string `db:"item_id"`
			Quota
		}
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("scanning quota row: %w", err)
		}
		byItem[row.ItemID] = append(byItem[row.ItemID], row.Quota)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating quota rows: %w", err)
	}

	return byItem, nil
}

// Lock acquires row locks on the given quotas in ascending id order, so
// two attempts touching overlapping quota sets cannot deadlock. The
// caller bounds the wait via database.LockTimeout on the transaction.
func Lock(ctx context.Context, tx sqlx.ExtContext, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	const q = `SELECT quota_id FROM quotas WHERE quota_id = ANY($1) ORDER BY quota_id FOR UPDATE`

	rows, err := tx.QueryxContext(ctx, q, pq.Array(sorted))
	if err != nil {
		return fmt.Errorf("locking quotas: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scanning locked quota: %w", err)
		}
	}
	return rows.Err()
}

// FetchDemand counts, per quota, the consumers that irrevocably hold a
// unit at the given instant: positions of placed orders, valid blocking
// vouchers, and non-expired cart positions. A cart position whose
// voucher is itself an active blocker is not counted twice; the voucher
// side carries the unit. Positions riding an allow_ignore_quota voucher
// never count at all. Must run inside the same transaction that holds
// the quota locks.
func FetchDemand(ctx context.Context, tx sqlx.ExtContext, quotaIDs []string, now time.Time) (map[string]Demand, error) {
	demand := make(map[string]Demand, len(quotaIDs))
	if len(quotaIDs) == 0 {
		return demand, nil
	}
	for _, id := range quotaIDs {
		demand[id] = Demand{}
	}

	const orderQ = `
	SELECT qi.quota_id, COUNT(*) AS n
	FROM order_positions op
	JOIN orders o ON o.order_id = op.order_id
	JOIN quota_items qi ON qi.item_id = op.item_id
	WHERE qi.quota_id = ANY($1) AND o.status IN ('pending', 'paid')
	GROUP BY qi.quota_id`

	if err := countInto(ctx, tx, demand, orderQ, func(d *Demand, n int64) { d.Orders = n }, pq.Array(quotaIDs)); err != nil {
		return nil, fmt.Errorf("counting order positions: %w", err)
	}

	const voucherQ = `
	SELECT q.quota_id, COUNT(*) AS n
	FROM quotas q
	JOIN vouchers v
	  ON v.quota_id = q.quota_id
	  OR v.item_id IN (SELECT item_id FROM quota_items WHERE quota_id = q.quota_id)
	WHERE q.quota_id = ANY($1)
	  AND v.block_quota AND NOT v.redeemed
	  AND (v.valid_until IS NULL OR v.valid_until >= $2)
	GROUP BY q.quota_id`

	if err := countInto(ctx, tx, demand, voucherQ, func(d *Demand, n int64) { d.BlockingVouchers = n }, pq.Array(quotaIDs), now); err != nil {
		return nil, fmt.Errorf("counting blocking vouchers: %w", err)
	}

	const cartQ = `
	SELECT qi.quota_id, COUNT(*) AS n
	FROM cart_positions cp
	JOIN quota_items qi ON qi.item_id = cp.item_id
	LEFT JOIN vouchers v ON v.voucher_id = cp.voucher_id
	WHERE qi.quota_id = ANY($1) AND cp.expires >= $2
	  AND (cp.voucher_id IS NULL
	       OR NOT (v.allow_ignore_quota
	               OR (v.block_quota AND NOT v.redeemed AND (v.valid_until IS NULL OR v.valid_until >= $2))))
	GROUP BY qi.quota_id`

	if err := countInto(ctx, tx, demand, cartQ, func(d *Demand, n int64) { d.LiveCarts = n }, pq.Array(quotaIDs), now); err != nil {
		return nil, fmt.Errorf("counting live cart positions: %w", err)
	}

	return demand, nil
}

func countInto(ctx context.Context, tx sqlx.ExtContext, demand map[string]Demand, query string, set func(*Demand, int64), args ...interface{}) error {
	rows, err := tx.QueryxContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var n int64
		if err := rows.Scan(&id, &n); err != nil {
			return err
		}
		d := demand[id]
		set(&d, n)
		demand[id] = d
	}
	return rows.Err()
}
