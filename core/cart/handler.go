package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/ticketeer/boxoffice/api/web"
	"github.com/ticketeer/boxoffice/api/weberr"
	"github.com/ticketeer/boxoffice/core/event"
	"github.com/ticketeer/boxoffice/core/item"
	"github.com/ticketeer/boxoffice/core/quota"
	"github.com/ticketeer/boxoffice/core/voucher"
	"github.com/ticketeer/boxoffice/database"
	"github.com/ticketeer/boxoffice/validate"
)

const sessionCartKey = "cart_id"

// CartID returns the visitor's cart identifier, creating one on first
// use.
func CartID(ctx context.Context, sm *scs.SessionManager) string {
	id := sm.GetString(ctx, sessionCartKey)
	if id == "" {
		id = validate.GenerateID()
		sm.Put(ctx, sessionCartKey, id)
	}
	return id
}

func HandleShow(db *sqlx.DB, sm *scs.SessionManager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		positions, err := FetchByCart(ctx, db, CartID(ctx, sm))
		if err != nil {
			return fmt.Errorf("loading cart: %w", err)
		}

		return web.Respond(ctx, w, positions, http.StatusOK)
	}
}

// HandleAddPosition places a new hold for one unit of an item. The hold
// is checked against the quota ledger under the same locks the confirm
// step uses, so a sold-out item is rejected up front.
func HandleAddPosition(db *sqlx.DB, sm *scs.SessionManager, holdDuration time.Duration, lockTimeout time.Duration) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var in PositionNew
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("decoding position input: %w", err))
		}
		if err := validate.Check(in); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		ev, err := event.FetchBySlug(ctx, db, web.Param(r, "slug"))
		if err != nil {
			return weberr.NotFound(err)
		}

		now := time.Now().UTC()
		if !ev.PresaleOpen(now) {
			err := errors.New("the presale period for this event is over")
			return weberr.NewError(err, err.Error(), http.StatusConflict)
		}

		it, err := item.Fetch(ctx, db, in.ItemID)
		if err != nil {
			if errors.Is(err, item.ErrNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}
		if it.EventID != ev.ID || !it.Active {
			return weberr.NotFound(errors.New("item is not available"))
		}

		var vch *voucher.Voucher
		if in.VoucherCode != nil {
			v, err := voucher.FetchByCode(ctx, db, ev.ID, *in.VoucherCode)
			if err != nil {
				if errors.Is(err, voucher.ErrNotFound) {
					return weberr.NotFound(err)
				}
				return err
			}
			if v.Validate(now) != voucher.Valid {
				err := errors.New("this voucher is expired or has already been used")
				return weberr.NewError(err, err.Error(), http.StatusConflict)
			}
			vch = &v
		}

		if it.RequireVoucher && vch == nil {
			err := fmt.Errorf("the product %s can only be bought using a voucher", it.Name)
			return weberr.NewError(err, err.Error(), http.StatusConflict)
		}

		var va *item.Variation
		if in.VariationID != nil {
			vars, err := item.FetchVariations(ctx, db, []string{*in.VariationID})
			if err != nil {
				return err
			}
			found, ok := vars[*in.VariationID]
			if !ok || found.ItemID != it.ID {
				return weberr.NotFound(errors.New("variation is not available"))
			}
			va = &found
		}

		price, err := initialPrice(it, va, vch, in.Price)
		if err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		pos := Position{
			ID:          validate.GenerateID(),
			EventID:     ev.ID,
			CartID:      CartID(ctx, sm),
			ItemID:      it.ID,
			VariationID: in.VariationID,
			Price:       price,
			Expires:     now.Add(holdDuration),
			CreatedAt:   now,
		}
		if vch != nil {
			id := vch.ID
			pos.VoucherID = &id
		}

		err = database.Transaction(db, func(tx sqlx.ExtContext) error {
			if err := database.LockTimeout(ctx, tx, lockTimeout); err != nil {
				return err
			}
			if err := checkAvailability(ctx, tx, it, vch, now); err != nil {
				return err
			}
			return Insert(ctx, tx, pos)
		})
		if err != nil {
			if database.IsLockTimeout(err) {
				return weberr.NewError(err, "the shop is very busy right now, please try again", http.StatusServiceUnavailable)
			}
			return err
		}

		return web.Respond(ctx, w, pos, http.StatusCreated)
	}
}

func HandleDeletePosition(db *sqlx.DB, sm *scs.SessionManager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.BadRequest(err)
		}

		if err := DeleteOne(ctx, db, CartID(ctx, sm), id); err != nil {
			return err
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

// initialPrice decides what a fresh position costs: the voucher price
// when one is set, the buyer's amount for free-price items (at or above
// the base price), the base price otherwise.
func initialPrice(it item.Item, va *item.Variation, vch *voucher.Voucher, submitted *string) (decimal.Decimal, error) {
	if vch != nil && vch.Price != nil {
		return *vch.Price, nil
	}

	base := it.BasePrice(va)
	if it.FreePrice && submitted != nil {
		given, err := decimal.NewFromString(*submitted)
		if err != nil {
			return decimal.Zero, errors.New("the price entered is not a valid amount")
		}
		if given.LessThan(base) {
			return decimal.Zero, fmt.Errorf("the minimum price for this product is %s", base.StringFixed(2))
		}
		return given, nil
	}
	return base, nil
}

// checkAvailability rejects a new hold when every unit of one of the
// item's quotas is already consumed. Must run with the quotas locked.
func checkAvailability(ctx context.Context, tx sqlx.ExtContext, it item.Item, vch *voucher.Voucher, now time.Time) error {
	if vch != nil && vch.AllowIgnoreQuota {
		return nil
	}

	quotasByItem, err := quota.FetchForItems(ctx, tx, []string{it.ID})
	if err != nil {
		return err
	}
	quotas := quotasByItem[it.ID]
	if len(quotas) == 0 {
		return soldOut(it)
	}

	quotaIDs := make([]string, 0, len(quotas))
	for _, q := range quotas {
		quotaIDs = append(quotaIDs, q.ID)
	}
	if err := quota.Lock(ctx, tx, quotaIDs); err != nil {
		return err
	}

	demand, err := quota.FetchDemand(ctx, tx, quotaIDs, now)
	if err != nil {
		return err
	}

	for _, q := range quotas {
		if vch != nil && vch.BlocksQuota(now) && vch.Touches(q.ID, it.ID) {
			continue
		}
		if quota.Compute(q.Size, demand[q.ID]).Exhausted() {
			return soldOut(it)
		}
	}
	return nil
}

func soldOut(it item.Item) error {
	err := fmt.Errorf("the product %s is sold out", it.Name)
	return weberr.NewError(err, err.Error(), http.StatusConflict)
}
