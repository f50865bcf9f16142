package checkout

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/ticketeer/boxoffice/core/cart"
	"github.com/ticketeer/boxoffice/core/item"
	"github.com/ticketeer/boxoffice/core/quota"
	"github.com/ticketeer/boxoffice/core/voucher"
)

// Snapshot is everything a confirm attempt knows about the world,
// loaded at one consistent instant while the quota locks are held.
// Positions must be in creation order; that order decides who wins
// when capacity runs out.
type Snapshot struct {
	Now        time.Time
	Positions  []cart.Position
	Items      map[string]item.Item
	Variations map[string]item.Variation
	Vouchers   map[string]voucher.Voucher

	// QuotasByItem maps each item to the quotas covering it. An item
	// with no entry is covered by no quota and cannot be sold.
	QuotasByItem map[string][]quota.Quota

	// Demand holds, per quota id, the competing consumption counted at
	// Now. The attempt's own expired positions are not part of it.
	Demand map[string]quota.Demand
}

// Decision is one surviving position with its final, frozen price.
type Decision struct {
	Position cart.Position
	Price    decimal.Decimal
	Voucher  *voucher.Voucher
}

// Plan is the outcome of validating a whole cart. Its corrections
// (removals, reprices, voucher detachments) are applied even when the
// attempt aborts, so the next submission starts from a consistent cart.
type Plan struct {
	Failures []Failure
	Remove   []string
	Reprice  map[string]decimal.Decimal
	Detach   []string
	Commit   []Decision
}

func (p Plan) OK() bool { return len(p.Failures) == 0 }

// BuildPlan runs every position through the cart, voucher and quota
// rules without short-circuiting, so the buyer sees every problem at
// once. It is pure: all effects are returned, none applied.
func BuildPlan(s Snapshot) Plan {
	plan := Plan{Reprice: make(map[string]decimal.Decimal)}

	// A voucher may be used by at most one live position per checkout.
	// The earliest-created position keeps it; later duplicates are
	// stripped and the attempt is rejected so the user can retry with
	// the corrected cart.
	detached := make(map[string]bool)
	seenVoucher := make(map[string]string)
	for _, pos := range s.Positions {
		if pos.VoucherID == nil {
			continue
		}
		if _, dup := seenVoucher[*pos.VoucherID]; dup {
			detached[pos.ID] = true
			plan.Detach = append(plan.Detach, pos.ID)
			plan.Failures = append(plan.Failures, fail(
				VoucherDuplicateInCart, pos.ID,
				"The same voucher cannot be used for multiple positions in your cart.",
			))
			continue
		}
		seenVoucher[*pos.VoucherID] = pos.ID
	}

	removed := make(map[string]bool)
	usable := make(map[string]*voucher.Voucher)

	for _, pos := range s.Positions {
		it, ok := s.Items[pos.ItemID]
		if !ok || !it.Active {
			removed[pos.ID] = true
			plan.Remove = append(plan.Remove, pos.ID)
			plan.Failures = append(plan.Failures, fail(
				ItemInactive, pos.ID,
				fmt.Sprintf("The product %s is no longer available.", it.Name),
			))
			continue
		}

		v := positionVoucher(s, pos, detached)
		if v != nil {
			switch v.Validate(s.Now) {
			case voucher.Expired:
				plan.Failures = append(plan.Failures, fail(
					VoucherExpired, pos.ID,
					"The voucher used for one of your positions has expired.",
				))
				v = nil
			case voucher.AlreadyRedeemed:
				plan.Failures = append(plan.Failures, fail(
					VoucherAlreadyRedeemed, pos.ID,
					"The voucher used for one of your positions has already been used.",
				))
				v = nil
			}
		}
		usable[pos.ID] = v

		// A voucher that failed validation counts as missing here.
		if it.RequireVoucher && v == nil {
			removed[pos.ID] = true
			plan.Remove = append(plan.Remove, pos.ID)
			plan.Failures = append(plan.Failures, fail(
				RequiresVoucherMissing, pos.ID,
				fmt.Sprintf("The product %s can only be bought using a voucher.", it.Name),
			))
			continue
		}

		price := effectivePrice(it, variationOf(s, pos), v, pos.Price)
		if !price.Equal(pos.Price) {
			plan.Reprice[pos.ID] = price
			plan.Failures = append(plan.Failures, fail(
				PriceChanged, pos.ID,
				fmt.Sprintf("The price of the product %s has changed since you added it to your cart.", it.Name),
			))
		}
	}

	// Quota re-check. A non-expired position still holds its unit (it
	// is part of the counted demand), so only expired positions have to
	// compete for what is left. Remaining capacity is handed out in
	// creation order.
	remaining := make(map[string]quota.Availability, len(s.Demand))
	for _, quotas := range s.QuotasByItem {
		for _, q := range quotas {
			if _, ok := remaining[q.ID]; !ok {
				remaining[q.ID] = quota.Compute(q.Size, s.Demand[q.ID])
			}
		}
	}

	for _, pos := range s.Positions {
		if removed[pos.ID] || !pos.ExpiredAt(s.Now) {
			continue
		}

		v := usable[pos.ID]
		if v != nil && v.AllowIgnoreQuota {
			continue
		}

		quotas := s.QuotasByItem[pos.ItemID]
		if len(quotas) == 0 {
			removed[pos.ID] = true
			plan.Remove = append(plan.Remove, pos.ID)
			plan.Failures = append(plan.Failures, fail(
				QuotaUnavailable, pos.ID,
				fmt.Sprintf("The product %s is sold out.", s.Items[pos.ItemID].Name),
			))
			continue
		}

		// Quotas the position's blocking voucher already reserved a
		// unit of don't need free capacity; everything else does.
		needed := make([]string, 0, len(quotas))
		ok := true
		for _, q := range quotas {
			if v != nil && v.BlocksQuota(s.Now) && v.Touches(q.ID, pos.ItemID) {
				continue
			}
			if remaining[q.ID].Exhausted() {
				ok = false
				break
			}
			needed = append(needed, q.ID)
		}

		if !ok {
			removed[pos.ID] = true
			plan.Remove = append(plan.Remove, pos.ID)
			plan.Failures = append(plan.Failures, fail(
				QuotaUnavailable, pos.ID,
				fmt.Sprintf("The product %s is sold out.", s.Items[pos.ItemID].Name),
			))
			continue
		}

		for _, id := range needed {
			a := remaining[id]
			if !a.Unlimited {
				a.Count--
				remaining[id] = a
			}
		}
	}

	if !plan.OK() {
		return plan
	}

	for _, pos := range s.Positions {
		v := usable[pos.ID]
		price := pos.Price
		if corrected, ok := plan.Reprice[pos.ID]; ok {
			price = corrected
		}
		plan.Commit = append(plan.Commit, Decision{Position: pos, Price: price, Voucher: v})
	}

	return plan
}

func positionVoucher(s Snapshot, pos cart.Position, detached map[string]bool) *voucher.Voucher {
	if pos.VoucherID == nil || detached[pos.ID] {
		return nil
	}
	v, ok := s.Vouchers[*pos.VoucherID]
	if !ok {
		return nil
	}
	return &v
}

func variationOf(s Snapshot, pos cart.Position) *item.Variation {
	if pos.VariationID == nil {
		return nil
	}
	v, ok := s.Variations[*pos.VariationID]
	if !ok {
		return nil
	}
	return &v
}

// effectivePrice is the authoritative price of a position right now: a
// voucher override wins over everything; a free-price item accepts any
// stored amount at or above the current base price; otherwise the base
// price is mandatory.
func effectivePrice(it item.Item, va *item.Variation, v *voucher.Voucher, stored decimal.Decimal) decimal.Decimal {
	if v != nil && v.Price != nil {
		return *v.Price
	}

	base := it.BasePrice(va)
	if it.FreePrice && stored.GreaterThanOrEqual(base) {
		return stored
	}
	return base
}
