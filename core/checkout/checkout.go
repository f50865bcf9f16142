package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/ticketeer/boxoffice/core/cart"
	"github.com/ticketeer/boxoffice/core/event"
	"github.com/ticketeer/boxoffice/core/item"
	"github.com/ticketeer/boxoffice/core/order"
	"github.com/ticketeer/boxoffice/core/payment"
	"github.com/ticketeer/boxoffice/core/question"
	"github.com/ticketeer/boxoffice/core/quota"
	"github.com/ticketeer/boxoffice/core/voucher"
	"github.com/ticketeer/boxoffice/database"
	"github.com/ticketeer/boxoffice/validate"
)

// Config carries the knobs of a confirm attempt. It is resolved once
// per request and passed in; the core reads no global state.
type Config struct {
	// LockTimeout bounds the wait for the quota locks. Exceeding it
	// surfaces as a retryable error, never a hang.
	LockTimeout time.Duration

	// PaymentTerm is how long a committed order waits for its payment
	// before it may expire.
	PaymentTerm time.Duration
}

type Result struct {
	OK       bool         `json:"ok"`
	Order    *order.Order `json:"order,omitempty"`
	Failures []Failure    `json:"errors,omitempty"`
}

// Sentinel outcomes of the pre-checks gating entry into the confirm
// step. They are not business failures; the HTTP layer turns them into
// redirects to the step that still needs input.
var (
	ErrCartEmpty           = errors.New("cart is empty")
	ErrQuestionsIncomplete = errors.New("required answers are missing")
	ErrPaymentRequired     = errors.New("no payment method selected")
)

// Confirm drives one confirm attempt for the session's cart: validate
// every position, re-check quotas under lock for contested holds, and
// either commit an order atomically or abort with the full list of
// problems while the cart (minus hard-removed positions) stays intact.
func Confirm(ctx context.Context, db *sqlx.DB, reg payment.Registry, cfg Config, sess *Session, now time.Time) (Result, error) {
	positions, err := cart.FetchByCart(ctx, db, sess.CartID)
	if err != nil {
		return Result{}, fmt.Errorf("loading cart: %w", err)
	}

	// A cart whose positions are gone was either never filled or
	// already committed. Either way, confirming again must not create
	// anything.
	if len(positions) == 0 {
		return Result{}, ErrCartEmpty
	}

	ev, err := event.Fetch(ctx, db, positions[0].EventID)
	if err != nil {
		return Result{}, fmt.Errorf("loading event: %w", err)
	}

	if !ev.PresaleOpen(now) {
		return Result{Failures: []Failure{fail(
			PresaleClosed, "",
			"The presale period for this event is over.",
		)}}, nil
	}

	settings, err := event.FetchSettings(ctx, db, ev.ID)
	if err != nil {
		return Result{}, fmt.Errorf("loading event settings: %w", err)
	}

	if err := checkQuestions(ctx, db, settings, sess, positions); err != nil {
		return Result{}, err
	}

	if sess.Payment == "" {
		return Result{}, ErrPaymentRequired
	}

	prov, ok := reg.Get(sess.Payment)
	if !ok || !prov.IsValidSession(sess.PaymentData) {
		return Result{Failures: []Failure{fail(
			InvalidSession, "",
			"Your payment session is no longer valid. Please select a payment method again.",
		)}}, nil
	}

	var res Result
	err = database.Transaction(db, func(tx sqlx.ExtContext) error {
		if err := database.LockTimeout(ctx, tx, cfg.LockTimeout); err != nil {
			return err
		}

		plan, snap, err := loadAndPlan(ctx, tx, sess.CartID, now)
		if err != nil {
			return err
		}
		if len(snap.Positions) == 0 {
			return ErrCartEmpty
		}

		// Corrections are persisted even when the attempt aborts: the
		// repaired cart is what makes a plain resubmission succeed.
		for id, price := range plan.Reprice {
			if err := cart.UpdatePrice(ctx, tx, id, price); err != nil {
				return err
			}
		}
		for _, id := range plan.Detach {
			if err := cart.DetachVoucher(ctx, tx, id); err != nil {
				return err
			}
		}
		if err := cart.Delete(ctx, tx, plan.Remove); err != nil {
			return err
		}

		if !plan.OK() {
			res = Result{Failures: plan.Failures}
			return nil
		}

		ord, err := commit(ctx, tx, ev, prov, cfg, sess, plan, now)
		if err != nil {
			return err
		}

		res = Result{OK: true, Order: &ord}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	return res, nil
}

// loadAndPlan assembles the consistent snapshot for the cart with all
// affected quotas locked, then runs the pure planner over it.
func loadAndPlan(ctx context.Context, tx sqlx.ExtContext, cartID string, now time.Time) (Plan, Snapshot, error) {
	positions, err := cart.FetchByCart(ctx, tx, cartID)
	if err != nil {
		return Plan{}, Snapshot{}, err
	}
	if len(positions) == 0 {
		return Plan{}, Snapshot{}, nil
	}

	itemIDs := make([]string, 0, len(positions))
	variationIDs := make([]string, 0)
	voucherIDs := make([]string, 0)
	seenItem := make(map[string]bool)
	for _, p := range positions {
		if !seenItem[p.ItemID] {
			seenItem[p.ItemID] = true
			itemIDs = append(itemIDs, p.ItemID)
		}
		if p.VariationID != nil {
			variationIDs = append(variationIDs, *p.VariationID)
		}
		if p.VoucherID != nil {
			voucherIDs = append(voucherIDs, *p.VoucherID)
		}
	}

	quotasByItem, err := quota.FetchForItems(ctx, tx, itemIDs)
	if err != nil {
		return Plan{}, Snapshot{}, err
	}

	quotaIDs := make([]string, 0)
	seenQuota := make(map[string]bool)
	for _, quotas := range quotasByItem {
		for _, q := range quotas {
			if !seenQuota[q.ID] {
				seenQuota[q.ID] = true
				quotaIDs = append(quotaIDs, q.ID)
			}
		}
	}

	// The lock scope makes the availability snapshot and the commit one
	// critical section; without it two attempts could both observe the
	// last unit as free.
	if err := quota.Lock(ctx, tx, quotaIDs); err != nil {
		return Plan{}, Snapshot{}, err
	}

	items, err := item.FetchBatch(ctx, tx, itemIDs)
	if err != nil {
		return Plan{}, Snapshot{}, err
	}
	variations, err := item.FetchVariations(ctx, tx, variationIDs)
	if err != nil {
		return Plan{}, Snapshot{}, err
	}
	vouchers, err := voucher.FetchBatch(ctx, tx, voucherIDs)
	if err != nil {
		return Plan{}, Snapshot{}, err
	}
	demand, err := quota.FetchDemand(ctx, tx, quotaIDs, now)
	if err != nil {
		return Plan{}, Snapshot{}, err
	}

	snap := Snapshot{
		Now:          now,
		Positions:    positions,
		Items:        items,
		Variations:   variations,
		Vouchers:     vouchers,
		QuotasByItem: quotasByItem,
		Demand:       demand,
	}

	return BuildPlan(snap), snap, nil
}

// commit is the all-or-nothing step: redeem the vouchers, persist the
// order with frozen prices and answers, and drop the cart positions.
func commit(ctx context.Context, tx sqlx.ExtContext, ev event.Event, prov payment.Provider, cfg Config, sess *Session, plan Plan, now time.Time) (order.Order, error) {
	positionIDs := make([]string, 0, len(plan.Commit))
	for _, d := range plan.Commit {
		positionIDs = append(positionIDs, d.Position.ID)
	}

	answers, err := question.FetchAnswers(ctx, tx, positionIDs)
	if err != nil {
		return order.Order{}, err
	}

	total := decimal.Zero
	for _, d := range plan.Commit {
		total = total.Add(d.Price)
	}
	fee := prov.CalculateFee(total)

	ord := order.Order{
		ID:         validate.GenerateID(),
		Code:       order.GenerateCode(),
		EventID:    ev.ID,
		CartID:     sess.CartID,
		Email:      sess.Email,
		Status:     order.Pending,
		Payment:    prov.Identifier(),
		PaymentFee: fee,
		Total:      total.Add(fee),
		Expires:    now.Add(cfg.PaymentTerm),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	orderPositions := make([]order.Position, 0, len(plan.Commit))
	voucherIDs := make([]string, 0)
	for _, d := range plan.Commit {
		op := order.Position{
			ID:           validate.GenerateID(),
			OrderID:      ord.ID,
			ItemID:       d.Position.ItemID,
			VariationID:  d.Position.VariationID,
			Price:        d.Price,
			AttendeeName: d.Position.AttendeeName,
			Answers:      answers[d.Position.ID],
		}
		if d.Voucher != nil {
			id := d.Voucher.ID
			op.VoucherID = &id
			voucherIDs = append(voucherIDs, id)
		}
		orderPositions = append(orderPositions, op)
	}

	if err := voucher.Redeem(ctx, tx, voucherIDs); err != nil {
		return order.Order{}, err
	}
	if err := order.Commit(ctx, tx, ord, orderPositions); err != nil {
		return order.Order{}, err
	}
	if err := cart.Delete(ctx, tx, positionIDs); err != nil {
		return order.Order{}, err
	}

	return ord, nil
}

// checkQuestions gates entry into the confirm step: a contact email,
// all required question answers, and attendee names where the event
// demands them.
func checkQuestions(ctx context.Context, db sqlx.ExtContext, settings event.Settings, sess *Session, positions []cart.Position) error {
	contact := struct {
		Email string `validate:"required,email"`
	}{Email: sess.Email}
	if err := validate.Check(contact); err != nil {
		return ErrQuestionsIncomplete
	}

	itemIDs := make([]string, 0, len(positions))
	positionIDs := make([]string, 0, len(positions))
	positionItems := make(map[string]string, len(positions))
	for _, p := range positions {
		itemIDs = append(itemIDs, p.ItemID)
		positionIDs = append(positionIDs, p.ID)
		positionItems[p.ID] = p.ItemID

		if settings.AttendeeNamesRequired && (p.AttendeeName == nil || *p.AttendeeName == "") {
			return ErrQuestionsIncomplete
		}
	}

	questions, err := question.FetchForItems(ctx, db, itemIDs)
	if err != nil {
		return fmt.Errorf("loading questions: %w", err)
	}
	answers, err := question.FetchAnswers(ctx, db, positionIDs)
	if err != nil {
		return fmt.Errorf("loading answers: %w", err)
	}

	if missing := question.MissingRequired(questions, answers, positionItems); len(missing) > 0 {
		return ErrQuestionsIncomplete
	}

	return nil
}
