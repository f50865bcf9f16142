package checkout

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/ticketeer/boxoffice/core/cart"
	"github.com/ticketeer/boxoffice/core/item"
	"github.com/ticketeer/boxoffice/core/quota"
	"github.com/ticketeer/boxoffice/core/voucher"
)

var now = time.Date(2026, time.July, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func strp(s string) *string { return &s }

func sized(n int64) *int64 { return &n }

func ticket() item.Item {
	return item.Item{ID: "item-ticket", Name: "Early-bird ticket", Active: true, DefaultPrice: dec("23.00")}
}

// livePos still holds its unit; expiredPos has to win its unit back.
func livePos(id string, itemID string, price string) cart.Position {
	return cart.Position{
		ID:        id,
		ItemID:    itemID,
		Price:     dec(price),
		Expires:   now.Add(10 * time.Minute),
		CreatedAt: now.Add(-time.Hour),
	}
}

func expiredPos(id string, itemID string, price string) cart.Position {
	return cart.Position{
		ID:        id,
		ItemID:    itemID,
		Price:     dec(price),
		Expires:   now.Add(-10 * time.Minute),
		CreatedAt: now.Add(-time.Hour),
	}
}

// snapshot wires one item covered by one quota of the given size, with
// the given competing demand already counted against it.
func snapshot(it item.Item, size *int64, demand quota.Demand, positions ...cart.Position) Snapshot {
	return Snapshot{
		Now:          now,
		Positions:    positions,
		Items:        map[string]item.Item{it.ID: it},
		Variations:   map[string]item.Variation{},
		Vouchers:     map[string]voucher.Voucher{},
		QuotasByItem: map[string][]quota.Quota{it.ID: {{ID: "quota-1", Size: size}}},
		Demand:       map[string]quota.Demand{"quota-1": demand},
	}
}

func kinds(fs []Failure) []Kind {
	ks := make([]Kind, 0, len(fs))
	for _, f := range fs {
		ks = append(ks, f.Kind)
	}
	return ks
}

func TestBuildPlanConfirmInTime(t *testing.T) {
	it := ticket()

	// The live position is part of the demand already; no capacity has
	// to be left over for it.
	s := snapshot(it, sized(1), quota.Demand{LiveCarts: 1}, livePos("p1", it.ID, "23.00"))

	plan := BuildPlan(s)
	if !plan.OK() {
		t.Fatalf("expected plan to pass, got failures %v", plan.Failures)
	}
	if len(plan.Commit) != 1 || plan.Commit[0].Position.ID != "p1" {
		t.Fatalf("expected p1 committed, got %+v", plan.Commit)
	}
	if !plan.Commit[0].Price.Equal(dec("23.00")) {
		t.Fatalf("expected price 23.00, got %s", plan.Commit[0].Price)
	}
}

func TestBuildPlanLivePositionSkipsQuotaRecheck(t *testing.T) {
	it := ticket()

	// Size zero would fail any re-check, but a non-expired hold is never
	// re-checked.
	s := snapshot(it, sized(0), quota.Demand{}, livePos("p1", it.ID, "23.00"))

	plan := BuildPlan(s)
	if !plan.OK() {
		t.Fatalf("expected plan to pass, got failures %v", plan.Failures)
	}
}

func TestBuildPlanExpiredStillAvailable(t *testing.T) {
	it := ticket()

	s := snapshot(it, sized(3), quota.Demand{Orders: 1}, expiredPos("p1", it.ID, "23.00"))

	plan := BuildPlan(s)
	if !plan.OK() {
		t.Fatalf("expected plan to pass, got failures %v", plan.Failures)
	}
	if len(plan.Remove) != 0 {
		t.Fatalf("expected no removals, got %v", plan.Remove)
	}
}

func TestBuildPlanExpiredSoldOut(t *testing.T) {
	it := ticket()

	s := snapshot(it, sized(2), quota.Demand{Orders: 2}, expiredPos("p1", it.ID, "23.00"))

	plan := BuildPlan(s)
	if diff := cmp.Diff([]Kind{QuotaUnavailable}, kinds(plan.Failures)); diff != "" {
		t.Fatalf("failures mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"p1"}, plan.Remove); diff != "" {
		t.Fatalf("removals mismatch (-want +got):\n%s", diff)
	}
	if len(plan.Commit) != 0 {
		t.Fatalf("expected no commit on failed plan, got %+v", plan.Commit)
	}
}

func TestBuildPlanExpiredPartialEarliestWins(t *testing.T) {
	it := ticket()

	first := expiredPos("p1", it.ID, "23.00")
	second := expiredPos("p2", it.ID, "23.00")
	second.CreatedAt = first.CreatedAt.Add(time.Minute)

	// One unit left for two contenders: creation order decides.
	s := snapshot(it, sized(3), quota.Demand{Orders: 2}, first, second)

	plan := BuildPlan(s)
	if diff := cmp.Diff([]string{"p2"}, plan.Remove); diff != "" {
		t.Fatalf("removals mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Kind{QuotaUnavailable}, kinds(plan.Failures)); diff != "" {
		t.Fatalf("failures mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPlanPriceChanged(t *testing.T) {
	it := ticket()
	it.DefaultPrice = dec("24.00")

	s := snapshot(it, sized(5), quota.Demand{}, livePos("p1", it.ID, "23.00"))

	plan := BuildPlan(s)
	if diff := cmp.Diff([]Kind{PriceChanged}, kinds(plan.Failures)); diff != "" {
		t.Fatalf("failures mismatch (-want +got):\n%s", diff)
	}
	if got, ok := plan.Reprice["p1"]; !ok || !got.Equal(dec("24.00")) {
		t.Fatalf("expected reprice to 24.00, got %v", plan.Reprice)
	}
	if len(plan.Remove) != 0 {
		t.Fatalf("a price change must keep the position, got removals %v", plan.Remove)
	}
}

func TestBuildPlanVariationPriceChanged(t *testing.T) {
	it := ticket()

	pos := livePos("p1", it.ID, "12.00")
	pos.VariationID = strp("var-1")

	s := snapshot(it, sized(5), quota.Demand{}, pos)
	price := dec("14.00")
	s.Variations["var-1"] = item.Variation{ID: "var-1", ItemID: it.ID, Price: &price}

	plan := BuildPlan(s)
	if diff := cmp.Diff([]Kind{PriceChanged}, kinds(plan.Failures)); diff != "" {
		t.Fatalf("failures mismatch (-want +got):\n%s", diff)
	}
	if got := plan.Reprice["p1"]; !got.Equal(dec("14.00")) {
		t.Fatalf("expected reprice to variation price 14.00, got %s", got)
	}
}

func TestBuildPlanFreePriceKept(t *testing.T) {
	it := ticket()
	it.FreePrice = true

	s := snapshot(it, sized(5), quota.Demand{}, livePos("p1", it.ID, "42.00"))

	plan := BuildPlan(s)
	if !plan.OK() {
		t.Fatalf("expected plan to pass, got failures %v", plan.Failures)
	}
	if !plan.Commit[0].Price.Equal(dec("42.00")) {
		t.Fatalf("expected the voluntary 42.00 kept, got %s", plan.Commit[0].Price)
	}
}

func TestBuildPlanFreePriceBelowNewBase(t *testing.T) {
	it := ticket()
	it.FreePrice = true
	it.DefaultPrice = dec("30.00")

	s := snapshot(it, sized(5), quota.Demand{}, livePos("p1", it.ID, "23.00"))

	plan := BuildPlan(s)
	if diff := cmp.Diff([]Kind{PriceChanged}, kinds(plan.Failures)); diff != "" {
		t.Fatalf("failures mismatch (-want +got):\n%s", diff)
	}
	if got := plan.Reprice["p1"]; !got.Equal(dec("30.00")) {
		t.Fatalf("expected reprice to new floor 30.00, got %s", got)
	}
}

func TestBuildPlanVoucherPriceWins(t *testing.T) {
	it := ticket()
	it.DefaultPrice = dec("24.00")

	price := dec("12.00")
	v := voucher.Voucher{ID: "v1", Code: "HALFOFF", Price: &price}

	pos := livePos("p1", it.ID, "12.00")
	pos.VoucherID = strp("v1")

	// The base price moved, but the voucher override still holds.
	s := snapshot(it, sized(5), quota.Demand{}, pos)
	s.Vouchers["v1"] = v

	plan := BuildPlan(s)
	if !plan.OK() {
		t.Fatalf("expected plan to pass, got failures %v", plan.Failures)
	}
	if !plan.Commit[0].Price.Equal(dec("12.00")) {
		t.Fatalf("expected voucher price 12.00, got %s", plan.Commit[0].Price)
	}
	if plan.Commit[0].Voucher == nil || plan.Commit[0].Voucher.ID != "v1" {
		t.Fatalf("expected voucher v1 on the decision, got %+v", plan.Commit[0].Voucher)
	}
}

func TestBuildPlanVoucherPriceChanged(t *testing.T) {
	it := ticket()

	price := dec("15.00")
	v := voucher.Voucher{ID: "v1", Code: "DISCOUNT", Price: &price}

	pos := livePos("p1", it.ID, "12.00")
	pos.VoucherID = strp("v1")

	s := snapshot(it, sized(5), quota.Demand{}, pos)
	s.Vouchers["v1"] = v

	plan := BuildPlan(s)
	if diff := cmp.Diff([]Kind{PriceChanged}, kinds(plan.Failures)); diff != "" {
		t.Fatalf("failures mismatch (-want +got):\n%s", diff)
	}
	if got := plan.Reprice["p1"]; !got.Equal(dec("15.00")) {
		t.Fatalf("expected reprice to voucher price 15.00, got %s", got)
	}
}

func TestBuildPlanVoucherExpired(t *testing.T) {
	it := ticket()

	price := dec("12.00")
	until := now.Add(-time.Hour)
	v := voucher.Voucher{ID: "v1", Code: "TOOLATE", Price: &price, ValidUntil: &until}

	pos := livePos("p1", it.ID, "12.00")
	pos.VoucherID = strp("v1")

	s := snapshot(it, sized(5), quota.Demand{}, pos)
	s.Vouchers["v1"] = v

	plan := BuildPlan(s)

	// The dead voucher also takes its discount with it.
	if diff := cmp.Diff([]Kind{VoucherExpired, PriceChanged}, kinds(plan.Failures)); diff != "" {
		t.Fatalf("failures mismatch (-want +got):\n%s", diff)
	}
	if got := plan.Reprice["p1"]; !got.Equal(dec("23.00")) {
		t.Fatalf("expected reprice back to base 23.00, got %s", got)
	}
	if len(plan.Remove) != 0 {
		t.Fatalf("an expired voucher must keep the position, got removals %v", plan.Remove)
	}
}

func TestBuildPlanVoucherAlreadyRedeemed(t *testing.T) {
	it := ticket()

	v := voucher.Voucher{ID: "v1", Code: "USED", Redeemed: true}

	pos := livePos("p1", it.ID, "23.00")
	pos.VoucherID = strp("v1")

	s := snapshot(it, sized(5), quota.Demand{}, pos)
	s.Vouchers["v1"] = v

	plan := BuildPlan(s)
	if diff := cmp.Diff([]Kind{VoucherAlreadyRedeemed}, kinds(plan.Failures)); diff != "" {
		t.Fatalf("failures mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPlanRequireVoucherMissing(t *testing.T) {
	it := ticket()
	it.RequireVoucher = true

	s := snapshot(it, sized(5), quota.Demand{}, livePos("p1", it.ID, "23.00"))

	plan := BuildPlan(s)
	if diff := cmp.Diff([]Kind{RequiresVoucherMissing}, kinds(plan.Failures)); diff != "" {
		t.Fatalf("failures mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"p1"}, plan.Remove); diff != "" {
		t.Fatalf("removals mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPlanRequireVoucherExpiredVoucher(t *testing.T) {
	it := ticket()
	it.RequireVoucher = true

	until := now.Add(-time.Hour)
	v := voucher.Voucher{ID: "v1", Code: "TOOLATE", ValidUntil: &until}

	pos := livePos("p1", it.ID, "23.00")
	pos.VoucherID = strp("v1")

	s := snapshot(it, sized(5), quota.Demand{}, pos)
	s.Vouchers["v1"] = v

	// A voucher that fails validation counts as missing for a
	// voucher-only product.
	plan := BuildPlan(s)
	if diff := cmp.Diff([]Kind{VoucherExpired, RequiresVoucherMissing}, kinds(plan.Failures)); diff != "" {
		t.Fatalf("failures mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"p1"}, plan.Remove); diff != "" {
		t.Fatalf("removals mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPlanDuplicateVoucherDetached(t *testing.T) {
	it := ticket()

	v := voucher.Voucher{ID: "v1", Code: "ONCE"}

	first := livePos("p1", it.ID, "23.00")
	first.VoucherID = strp("v1")
	second := livePos("p2", it.ID, "23.00")
	second.VoucherID = strp("v1")
	second.CreatedAt = first.CreatedAt.Add(time.Minute)

	s := snapshot(it, sized(5), quota.Demand{}, first, second)
	s.Vouchers["v1"] = v

	plan := BuildPlan(s)
	if diff := cmp.Diff([]Kind{VoucherDuplicateInCart}, kinds(plan.Failures)); diff != "" {
		t.Fatalf("failures mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"p2"}, plan.Detach); diff != "" {
		t.Fatalf("detachments mismatch (-want +got):\n%s", diff)
	}
	if len(plan.Remove) != 0 {
		t.Fatalf("a duplicate voucher must keep the position, got removals %v", plan.Remove)
	}
	if len(plan.Commit) != 0 {
		t.Fatalf("expected abort on duplicate voucher, got commit %+v", plan.Commit)
	}
}

func TestBuildPlanIgnoreQuota(t *testing.T) {
	it := ticket()

	v := voucher.Voucher{ID: "v1", Code: "VIP", AllowIgnoreQuota: true}

	pos := expiredPos("p1", it.ID, "23.00")
	pos.VoucherID = strp("v1")

	s := snapshot(it, sized(0), quota.Demand{}, pos)
	s.Vouchers["v1"] = v

	plan := BuildPlan(s)
	if !plan.OK() {
		t.Fatalf("expected the quota bypass to pass, got failures %v", plan.Failures)
	}
}

func TestBuildPlanBlockingVoucherBypassesItsQuota(t *testing.T) {
	it := ticket()

	v := voucher.Voucher{ID: "v1", Code: "RESERVED", ItemID: strp(it.ID), BlockQuota: true}

	pos := expiredPos("p1", it.ID, "23.00")
	pos.VoucherID = strp("v1")

	// The only unit is held by the voucher's own reservation; the
	// position riding that voucher gets it back.
	s := snapshot(it, sized(1), quota.Demand{BlockingVouchers: 1}, pos)
	s.Vouchers["v1"] = v

	plan := BuildPlan(s)
	if !plan.OK() {
		t.Fatalf("expected the blocked unit to serve its voucher, got failures %v", plan.Failures)
	}
}

func TestBuildPlanForeignBlockerBlocks(t *testing.T) {
	it := ticket()

	// Someone else's blocking voucher holds the last unit; an expired
	// unvouchered position cannot take it.
	s := snapshot(it, sized(1), quota.Demand{BlockingVouchers: 1}, expiredPos("p1", it.ID, "23.00"))

	plan := BuildPlan(s)
	if diff := cmp.Diff([]Kind{QuotaUnavailable}, kinds(plan.Failures)); diff != "" {
		t.Fatalf("failures mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPlanNonBlockingVoucherNoPrivilege(t *testing.T) {
	it := ticket()

	v := voucher.Voucher{ID: "v1", Code: "PLAIN", ItemID: strp(it.ID)}

	pos := expiredPos("p1", it.ID, "23.00")
	pos.VoucherID = strp("v1")

	s := snapshot(it, sized(2), quota.Demand{Orders: 2}, pos)
	s.Vouchers["v1"] = v

	plan := BuildPlan(s)
	if diff := cmp.Diff([]Kind{QuotaUnavailable}, kinds(plan.Failures)); diff != "" {
		t.Fatalf("failures mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPlanItemInactive(t *testing.T) {
	it := ticket()
	it.Active = false

	s := snapshot(it, sized(5), quota.Demand{}, livePos("p1", it.ID, "23.00"))

	plan := BuildPlan(s)
	if diff := cmp.Diff([]Kind{ItemInactive}, kinds(plan.Failures)); diff != "" {
		t.Fatalf("failures mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"p1"}, plan.Remove); diff != "" {
		t.Fatalf("removals mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPlanNoCoveringQuota(t *testing.T) {
	it := ticket()

	s := snapshot(it, sized(5), quota.Demand{}, expiredPos("p1", it.ID, "23.00"))
	s.QuotasByItem = map[string][]quota.Quota{}

	plan := BuildPlan(s)
	if diff := cmp.Diff([]Kind{QuotaUnavailable}, kinds(plan.Failures)); diff != "" {
		t.Fatalf("failures mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPlanUnlimitedQuota(t *testing.T) {
	it := ticket()

	s := snapshot(it, nil, quota.Demand{Orders: 100000}, expiredPos("p1", it.ID, "23.00"))

	plan := BuildPlan(s)
	if !plan.OK() {
		t.Fatalf("expected an unlimited quota to pass, got failures %v", plan.Failures)
	}
}

func TestBuildPlanSecondQuotaExhausted(t *testing.T) {
	it := ticket()

	s := snapshot(it, sized(10), quota.Demand{}, expiredPos("p1", it.ID, "23.00"))
	s.QuotasByItem[it.ID] = append(s.QuotasByItem[it.ID], quota.Quota{ID: "quota-2", Size: sized(1)})
	s.Demand["quota-2"] = quota.Demand{Orders: 1}

	// Every covering quota must have room, not just one.
	plan := BuildPlan(s)
	if diff := cmp.Diff([]Kind{QuotaUnavailable}, kinds(plan.Failures)); diff != "" {
		t.Fatalf("failures mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPlanSharedQuotaContention(t *testing.T) {
	a := ticket()
	b := item.Item{ID: "item-b", Name: "Workshop addon", Active: true, DefaultPrice: dec("12.00")}

	first := expiredPos("p1", a.ID, "23.00")
	second := expiredPos("p2", b.ID, "12.00")
	second.CreatedAt = first.CreatedAt.Add(time.Minute)

	q := quota.Quota{ID: "shared", Size: sized(1)}
	s := Snapshot{
		Now:        now,
		Positions:  []cart.Position{first, second},
		Items:      map[string]item.Item{a.ID: a, b.ID: b},
		Variations: map[string]item.Variation{},
		Vouchers:   map[string]voucher.Voucher{},
		QuotasByItem: map[string][]quota.Quota{
			a.ID: {q},
			b.ID: {q},
		},
		Demand: map[string]quota.Demand{"shared": {}},
	}

	plan := BuildPlan(s)
	if diff := cmp.Diff([]string{"p2"}, plan.Remove); diff != "" {
		t.Fatalf("removals mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPlanCommitKeepsCreationOrder(t *testing.T) {
	it := ticket()

	first := livePos("p1", it.ID, "23.00")
	second := livePos("p2", it.ID, "23.00")
	second.CreatedAt = first.CreatedAt.Add(time.Minute)

	s := snapshot(it, sized(5), quota.Demand{LiveCarts: 2}, first, second)

	plan := BuildPlan(s)
	if !plan.OK() {
		t.Fatalf("expected plan to pass, got failures %v", plan.Failures)
	}

	got := []string{plan.Commit[0].Position.ID, plan.Commit[1].Position.ID}
	if diff := cmp.Diff([]string{"p1", "p2"}, got); diff != "" {
		t.Fatalf("commit order mismatch (-want +got):\n%s", diff)
	}
}
