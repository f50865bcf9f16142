package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/ardanlabs/conf/v3"
	"github.com/plutov/paypal/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	stripecl "github.com/stripe/stripe-go/v74/client"
	"github.com/ticketeer/boxoffice/api"
	"github.com/ticketeer/boxoffice/api/background"
	"github.com/ticketeer/boxoffice/config"
	"github.com/ticketeer/boxoffice/core/checkout"
	"github.com/ticketeer/boxoffice/core/payment"
	"github.com/ticketeer/boxoffice/database"
	"github.com/ticketeer/boxoffice/email"
	"github.com/ticketeer/boxoffice/rate"
)

func main() {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if err := Run(log); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func Run(logger *logrus.Logger) error {
	logger.Infof("starting server")
	defer logger.Info("shutdown complete")

	const prefix = "BOXOFFICE"
	var cfg config.Config
	if _, err := conf.Parse(prefix, &cfg); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	lw := logger.Writer()
	defer lw.Close()
	errLog := log.New(lw, "", 0)

	db, err := database.Open(cfg.Database())
	if err != nil {
		return fmt.Errorf("failed to open db connection: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	sessionManager := scs.New()
	sessionManager.Lifetime = 24 * time.Hour

	mail := email.New(cfg.Email.Address, cfg.Email.Password, cfg.Email.Host, cfg.Email.Port, cfg.Email.OrderURL)

	bg := background.New(logger)

	pp, err := paypal.NewClient(
		cfg.Paypal.ClientID,
		cfg.Paypal.Secret,
		cfg.Paypal.URL,
	)
	if err != nil {
		return fmt.Errorf("failed to build the paypal client: %w", err)
	}

	if _, err = pp.GetAccessToken(context.TODO()); err != nil {
		return fmt.Errorf("failed to get the first paypal access token: %w", err)
	}

	strp := &stripecl.API{}
	strp.Init(cfg.Stripe.APISecret, nil)

	stripeFees, err := feePolicy(cfg.Stripe.FeeAbs, cfg.Stripe.FeePercent)
	if err != nil {
		return fmt.Errorf("parsing stripe fee policy: %w", err)
	}
	paypalFees, err := feePolicy(cfg.Paypal.FeeAbs, cfg.Paypal.FeePercent)
	if err != nil {
		return fmt.Errorf("parsing paypal fee policy: %w", err)
	}

	providers := payment.NewRegistry(
		payment.NewBankTransfer(payment.FeePolicy{}),
		payment.NewStripe(strp, stripeFees, cfg.Stripe.SuccessURL, cfg.Stripe.CancelURL),
		payment.NewPaypal(pp, paypalFees),
	)

	confirmLimiter := rate.NewLimiter(
		cfg.Checkout.ConfirmBurst,
		15,
		rate.Every(cfg.Checkout.ConfirmInterval),
	)

	mux := api.APIMux(api.APIConfig{
		CorsOrigin: cfg.Cors.Origin,
		Log:        logger,
		DB:         db,
		Session:    sessionManager,
		Background: bg,
		Mailer:     mail,
		Providers:  providers,
		Checkout: checkout.Config{
			LockTimeout: cfg.Checkout.LockTimeout,
			PaymentTerm: cfg.Checkout.PaymentTerm,
		},
		HoldDuration:   cfg.Cart.HoldDuration,
		ConfirmLimiter: confirmLimiter,
	})

	api := http.Server{
		Handler:      mux,
		Addr:         cfg.Web.Address,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     errLog,
	}

	serverErrors := make(chan error, 1)

	go func() {
		logger.Infof("starting api router at %s", api.Addr)
		serverErrors <- api.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Infof("shutting down: signal %s", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := api.Shutdown(ctx); err != nil {
			api.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}

		if err := bg.Shutdown(ctx); err != nil {
			return fmt.Errorf("could not complete all background tasks: %w", err)
		}
	}
	return nil
}

func feePolicy(abs string, percent string) (payment.FeePolicy, error) {
	a, err := decimal.NewFromString(abs)
	if err != nil {
		return payment.FeePolicy{}, fmt.Errorf("invalid absolute fee %q: %w", abs, err)
	}
	p, err := decimal.NewFromString(percent)
	if err != nil {
		return payment.FeePolicy{}, fmt.Errorf("invalid percent fee %q: %w", percent, err)
	}
	return payment.FeePolicy{Abs: a, Percent: p}, nil
}
