package config

import (
	"time"

	"github.com/ticketeer/boxoffice/database"
)

type Config struct {
	Web      Web
	DB       DB
	Cors     Cors
	Cart     Cart
	Checkout Checkout
	Email    Email
	Stripe   Stripe
	Paypal   Paypal
}

type Web struct {
	Address         string        `conf:"default:0.0.0.0:8000"`
	ReadTimeout     time.Duration `conf:"default:5s"`
	WriteTimeout    time.Duration `conf:"default:10s"`
	IdleTimeout     time.Duration `conf:"default:120s"`
	ShutdownTimeout time.Duration `conf:"default:20s"`
}

type DB struct {
	User       string `conf:"default:postgres"`
	Password   string `conf:"default:postgres,mask"`
	Host       string `conf:"default:localhost"`
	Name       string `conf:"default:boxoffice"`
	DisableTLS bool   `conf:"default:true"`
}

type Cors struct {
	Origin string
}

type Cart struct {
	// How long a cart position reserves its unit before the hold
	// becomes contestable again.
	HoldDuration time.Duration `conf:"default:30m"`
}

type Checkout struct {
	// Upper bound on waiting for quota row locks during a confirm
	// attempt. Exceeding it aborts the attempt as retryable.
	LockTimeout time.Duration `conf:"default:5s"`

	// How long a committed order waits for its payment before it may
	// expire.
	PaymentTerm time.Duration `conf:"default:336h"`

	// Rate limit applied per client on the confirm endpoint.
	ConfirmBurst    int           `conf:"default:5"`
	ConfirmInterval time.Duration `conf:"default:1s"`
}

type Email struct {
	Address  string
	Password string `conf:"mask"`
	Host     string
	Port     string `conf:"default:587"`
	OrderURL string `conf:"default:http://localhost:3000/orders"`
}

type Stripe struct {
	APISecret  string `conf:"mask"`
	SuccessURL string `conf:"default:http://localhost:3000/thank-you"`
	CancelURL  string `conf:"default:http://localhost:3000/checkout"`
	FeeAbs     string `conf:"default:0.00"`
	FeePercent string `conf:"default:0"`
}

type Paypal struct {
	ClientID   string
	Secret     string `conf:"mask"`
	URL        string `conf:"default:https://api.sandbox.paypal.com"`
	FeeAbs     string `conf:"default:0.00"`
	FeePercent string `conf:"default:0"`
}

func (c Config) Database() database.Config {
	return database.Config{
		User:       c.DB.User,
		Password:   c.DB.Password,
		Host:       c.DB.Host,
		Name:       c.DB.Name,
		DisableTLS: c.DB.DisableTLS,
	}
}
