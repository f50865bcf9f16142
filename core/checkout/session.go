package checkout

import (
	"context"
	"encoding/json"

	"github.com/alexedwards/scs/v2"
	"github.com/ticketeer/boxoffice/core/payment"
)

// Session is the explicit state of an in-progress checkout. It is
// passed by reference through the pipeline instead of being read from
// implicit per-request storage; the HTTP layer persists it between
// steps.
type Session struct {
	CartID      string              `json:"-"`
	Email       string              `json:"email"`
	Payment     string              `json:"payment"`
	PaymentData payment.SessionData `json:"paymentData,omitempty"`
}

const (
	sessionCartKey     = "cart_id"
	sessionCheckoutKey = "checkout"
)

// FromHTTP loads the checkout session of the current visitor. The cart
// identifier doubles as the session identity and is created on first
// use by the cart handlers.
func FromHTTP(ctx context.Context, sm *scs.SessionManager) *Session {
	s := Session{
		CartID:      sm.GetString(ctx, sessionCartKey),
		PaymentData: payment.SessionData{},
	}

	if raw := sm.GetString(ctx, sessionCheckoutKey); raw != "" {
		// A corrupt blob resets the checkout progress; the cart is
		// unaffected.
		_ = json.Unmarshal([]byte(raw), &s)
	}
	return &s
}

func (s *Session) Save(ctx context.Context, sm *scs.SessionManager) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	sm.Put(ctx, sessionCheckoutKey, string(raw))
	return nil
}
