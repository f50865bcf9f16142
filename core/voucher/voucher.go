package voucher

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

// Voucher is a code granting a price override and/or special quota
// behavior. It is bound to exactly one item or one quota and can be
// redeemed at most once.
type Voucher struct {
	ID               string           `json:"id" db:"voucher_id"`
	EventID          string           `json:"eventId" db:"event_id"`
	Code             string           `json:"code" db:"code"`
	ItemID           *string          `json:"itemId" db:"item_id"`
	QuotaID          *string          `json:"quotaId" db:"quota_id"`
	Price            *decimal.Decimal `json:"price" db:"price"`
	ValidUntil       *time.Time       `json:"validUntil" db:"valid_until"`
	Redeemed         bool             `json:"redeemed" db:"redeemed"`
	BlockQuota       bool             `json:"blockQuota" db:"block_quota"`
	AllowIgnoreQuota bool             `json:"allowIgnoreQuota" db:"allow_ignore_quota"`
	CreatedAt        time.Time        `json:"createdAt" db:"created_at"`
}

type Status int

const (
	Valid Status = iota
	Expired
	AlreadyRedeemed
)

// Validate checks the redeemability rules in their fixed order: the
// validity window first, then the redemption state.
func (v Voucher) Validate(now time.Time) Status {
	if v.ValidUntil != nil && now.After(*v.ValidUntil) {
		return Expired
	}
	if v.Redeemed {
		return AlreadyRedeemed
	}
	return Valid
}

// BlocksQuota reports whether the voucher currently reserves a unit of
// the quotas it touches. Redeemed or expired vouchers reserve nothing.
func (v Voucher) BlocksQuota(now time.Time) bool {
	return v.BlockQuota && v.Validate(now) == Valid
}

// Touches reports whether the voucher's reservation applies to the
// given quota: either it is bound to the quota directly, or it is bound
// to an item the quota covers.
func (v Voucher) Touches(quotaID string, itemID string) bool {
	if v.QuotaID != nil {
		return *v.QuotaID == quotaID
	}
	return v.ItemID != nil && *v.ItemID == itemID
}

var ErrNotFound = errors.New("voucher not found")

func FetchByCode(ctx context.Context, db sqlx.ExtContext, eventID string, code string) (Voucher, error) {
	const q = `SELECT * FROM vouchers WHERE event_id = $1 AND code = $2`

	var v Voucher
	if err := sqlx.GetContext(ctx, db, &v, q, eventID, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Voucher{}, ErrNotFound
		}
		return Voucher{}, fmt.Errorf("selecting voucher[%s]: %w", code, err)
	}
	return v, nil
}

func FetchBatch(ctx context.Context, db sqlx.ExtContext, ids []string) (map[string]Voucher, error) {
	vouchers := make(map[string]Voucher, len(ids))
	if len(ids) == 0 {
		return vouchers, nil
	}

	const q = `SELECT * FROM vouchers WHERE voucher_id = ANY($1)`

	var rows []Voucher
	if err := sqlx.SelectContext(ctx, db, &rows, q, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("selecting vouchers: %w", err)
	}

	for _, v := range rows {
		vouchers[v.ID] = v
	}
	return vouchers, nil
}

// Redeem marks the vouchers as used. It must run inside the same
// transaction that creates the order, so a failed confirm never burns a
// voucher.
func Redeem(ctx context.Context, tx sqlx.ExtContext, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	const q = `UPDATE vouchers SET redeemed = TRUE WHERE voucher_id = ANY($1)`

	if _, err := tx.ExecContext(ctx, q, pq.Array(ids)); err != nil {
		return fmt.Errorf("redeeming vouchers: %w", err)
	}
	return nil
}

// Release reverts the redemption of the vouchers. Used only when an
// order they were redeemed for is canceled or expires.
func Release(ctx context.Context, tx sqlx.ExtContext, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	const q = `UPDATE vouchers SET redeemed = FALSE WHERE voucher_id = ANY($1)`

	if _, err := tx.ExecContext(ctx, q, pq.Array(ids)); err != nil {
		return fmt.Errorf("releasing vouchers: %w", err)
	}
	return nil
}
