package api

import (
	"context"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/ticketeer/boxoffice/api/background"
	"github.com/ticketeer/boxoffice/api/middleware"
	"github.com/ticketeer/boxoffice/api/web"
	"github.com/ticketeer/boxoffice/core/cart"
	"github.com/ticketeer/boxoffice/core/checkout"
	"github.com/ticketeer/boxoffice/core/event"
	"github.com/ticketeer/boxoffice/core/order"
	"github.com/ticketeer/boxoffice/core/payment"
	"github.com/ticketeer/boxoffice/rate"
)

type APIConfig struct {
	CorsOrigin     string
	Log            logrus.FieldLogger
	DB             *sqlx.DB
	Session        *scs.SessionManager
	Background     *background.Background
	Mailer         checkout.Mailer
	Providers      payment.Registry
	Checkout       checkout.Config
	HoldDuration   time.Duration
	ConfirmLimiter *rate.Limiter
}

type api struct {
	*mux.Router
	mw  []web.Middleware
	log logrus.FieldLogger
}

func APIMux(cfg APIConfig) http.Handler {
	a := &api{
		Router: mux.NewRouter(),
		log:    cfg.Log,
	}

	a.mw = append(a.mw, middleware.LoadAndSave(cfg.Session))
	a.mw = append(a.mw, middleware.RequestID())
	a.mw = append(a.mw, middleware.Logger(cfg.Log))
	a.mw = append(a.mw, middleware.Errors(cfg.Log))
	a.mw = append(a.mw, middleware.Panics())

	if cfg.CorsOrigin != "" {
		a.mw = append(a.mw, middleware.Cors(cfg.CorsOrigin))

		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			w.WriteHeader(http.StatusNoContent)
			return nil
		}

		a.Handle(http.MethodOptions, "/{path:.*}", h)
	}

	confirmLimit := middleware.RateLimit(cfg.ConfirmLimiter)

	a.Handle(http.MethodGet, "/events/{slug}", event.HandleShow(cfg.DB))

	a.Handle(http.MethodGet, "/cart", cart.HandleShow(cfg.DB, cfg.Session))
	a.Handle(http.MethodPost, "/events/{slug}/cart/positions", cart.HandleAddPosition(cfg.DB, cfg.Session, cfg.HoldDuration, cfg.Checkout.LockTimeout))
	a.Handle(http.MethodDelete, "/cart/positions/{id}", cart.HandleDeletePosition(cfg.DB, cfg.Session))

	a.Handle(http.MethodPost, "/checkout/questions", checkout.HandleQuestions(cfg.DB, cfg.Session))
	a.Handle(http.MethodPost, "/checkout/payment", checkout.HandlePayment(cfg.DB, cfg.Session, cfg.Providers))
	a.Handle(http.MethodPost, "/checkout/confirm", checkout.HandleConfirm(cfg.DB, cfg.Session, cfg.Providers, cfg.Checkout, cfg.Log, cfg.Background, cfg.Mailer), confirmLimit)

	a.Handle(http.MethodGet, "/orders/{code}", order.HandleShow(cfg.DB))

	return a.Router
}

func (a *api) Handle(method string, path string, handler web.Handler, mw ...web.Middleware) {

	handler = web.WrapMiddleware(mw, handler)

	handler = web.WrapMiddleware(a.mw, handler)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		ctx := r.Context()

		if err := handler(ctx, w, r); err != nil {

			a.log.WithFields(logrus.Fields{
				"req_id":  middleware.ContextRequestID(ctx),
				"message": err,
			}).Error("ERROR")
		}
	})

	a.Router.Handle(path, h).Methods(method)
}
