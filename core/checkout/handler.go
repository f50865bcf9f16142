package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/ticketeer/boxoffice/api/background"
	"github.com/ticketeer/boxoffice/api/web"
	"github.com/ticketeer/boxoffice/api/weberr"
	"github.com/ticketeer/boxoffice/core/cart"
	"github.com/ticketeer/boxoffice/core/order"
	"github.com/ticketeer/boxoffice/core/payment"
	"github.com/ticketeer/boxoffice/core/question"
	"github.com/ticketeer/boxoffice/database"
	"github.com/ticketeer/boxoffice/validate"
)

// Mailer sends the order confirmation. Dispatch happens off-request;
// failures are logged, never surfaced to the buyer.
type Mailer interface {
	SendOrderConfirmation(to string, code string, total decimal.Decimal) error
}

type questionsInput struct {
	Email     string `json:"email" validate:"required,email"`
	Positions []struct {
		ID           string            `json:"id" validate:"required,uuid"`
		AttendeeName *string           `json:"attendeeName"`
		Answers      []question.Answer `json:"answers"`
	} `json:"positions"`
}

// HandleQuestions stores the buyer's contact email, attendee names and
// question answers for the cart.
func HandleQuestions(db *sqlx.DB, sm *scs.SessionManager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		sess := FromHTTP(ctx, sm)
		if sess.CartID == "" {
			return weberr.NotFound(errors.New("no cart in session"))
		}

		var in questionsInput
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("decoding questions input: %w", err))
		}
		if err := validate.Check(in); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		positions, err := cart.FetchByCart(ctx, db, sess.CartID)
		if err != nil {
			return fmt.Errorf("loading cart: %w", err)
		}

		owned := make(map[string]bool, len(positions))
		for _, p := range positions {
			owned[p.ID] = true
		}

		for _, pi := range in.Positions {
			if !owned[pi.ID] {
				return weberr.NotFound(fmt.Errorf("position[%s] not in cart", pi.ID))
			}
			if pi.AttendeeName != nil {
				if err := cart.UpdateAttendeeName(ctx, db, pi.ID, pi.AttendeeName); err != nil {
					return err
				}
			}
			for _, a := range pi.Answers {
				a.PositionID = pi.ID
				if err := question.SaveAnswer(ctx, db, a); err != nil {
					return err
				}
			}
		}

		sess.Email = in.Email
		if err := sess.Save(ctx, sm); err != nil {
			return fmt.Errorf("saving session: %w", err)
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

type paymentInput struct {
	Provider string `json:"provider" validate:"required"`
}

// HandlePayment records the chosen payment method and lets the provider
// prepare its share of the session.
func HandlePayment(db *sqlx.DB, sm *scs.SessionManager, reg payment.Registry) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		sess := FromHTTP(ctx, sm)
		if sess.CartID == "" {
			return weberr.NotFound(errors.New("no cart in session"))
		}

		var in paymentInput
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("decoding payment input: %w", err))
		}
		if err := validate.Check(in); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		prov, ok := reg.Get(in.Provider)
		if !ok {
			return weberr.NotFound(fmt.Errorf("unknown payment provider[%s]", in.Provider))
		}

		positions, err := cart.FetchByCart(ctx, db, sess.CartID)
		if err != nil {
			return fmt.Errorf("loading cart: %w", err)
		}

		total := decimal.Zero
		for _, p := range positions {
			total = total.Add(p.Price)
		}
		total = total.Add(prov.CalculateFee(total))

		data, err := prov.Prepare(ctx, sess.PaymentData, total)
		if err != nil {
			return fmt.Errorf("preparing payment[%s]: %w", in.Provider, err)
		}

		sess.Payment = in.Provider
		sess.PaymentData = data
		if err := sess.Save(ctx, sm); err != nil {
			return fmt.Errorf("saving session: %w", err)
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

type confirmResponse struct {
	OK          bool         `json:"ok"`
	Order       *order.Order `json:"order,omitempty"`
	RedirectURL string       `json:"redirectUrl,omitempty"`
	Errors      []Failure    `json:"errors,omitempty"`
}

// HandleConfirm runs the confirm attempt and renders either the placed
// order or the full list of problems.
func HandleConfirm(db *sqlx.DB, sm *scs.SessionManager, reg payment.Registry, cfg Config, log logrus.FieldLogger, bg *background.Background, mail Mailer) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		sess := FromHTTP(ctx, sm)
		if sess.CartID == "" {
			return weberr.NotFound(errors.New("no cart in session"))
		}

		res, err := Confirm(ctx, db, reg, cfg, sess, time.Now().UTC())
		switch {
		case errors.Is(err, ErrCartEmpty):
			return weberr.NotFound(err)

		case errors.Is(err, ErrQuestionsIncomplete):
			return weberr.NewError(err, "please complete the required information first", http.StatusUnprocessableEntity)

		case errors.Is(err, ErrPaymentRequired):
			return weberr.NewError(err, "please choose a payment method first", http.StatusUnprocessableEntity)

		case database.IsLockTimeout(err):
			return weberr.NewError(err, "the shop is very busy right now, please try again", http.StatusServiceUnavailable)

		case err != nil:
			// Storage trouble: the whole attempt was rolled back and the
			// buyer gets a generic failure, not a business error.
			body := confirmResponse{OK: false, Errors: []Failure{fail(
				StorageFailure, "",
				"We were unable to process your order. Please try again.",
			)}}
			return weberr.Wrap(fmt.Errorf("confirming cart[%s]: %w", sess.CartID, err),
				weberr.WithResponse(body, http.StatusInternalServerError))
		}

		if !res.OK {
			return web.Respond(ctx, w, confirmResponse{OK: false, Errors: res.Failures}, http.StatusConflict)
		}

		ord := *res.Order

		prov, _ := reg.Get(ord.Payment)
		redirect, err := prov.Perform(ctx, ord)
		if err != nil {
			// The order exists and stays pending; payment can be retried
			// from the order page.
			log.WithFields(logrus.Fields{
				"order":   ord.Code,
				"message": err,
			}).Error("payment perform failed")
		}

		bg.Add(func() error {
			if err := mail.SendOrderConfirmation(ord.Email, ord.Code, ord.Total); err != nil {
				return fmt.Errorf("sending confirmation for order[%s]: %w", ord.Code, err)
			}
			return nil
		})

		return web.Respond(ctx, w, confirmResponse{OK: true, Order: &ord, RedirectURL: redirect}, http.StatusOK)
	}
}
