package email

import (
	"fmt"
	"net/smtp"

	"github.com/shopspring/decimal"
)

type Mailer struct {
	from     string
	password string
	host     string
	port     string
	orderURL string
}

func New(from string, password string, host string, port string, orderURL string) *Mailer {
	return &Mailer{
		from:     from,
		password: password,
		host:     host,
		port:     port,
		orderURL: orderURL,
	}
}

func (m *Mailer) SendOrderConfirmation(to string, code string, total decimal.Decimal) error {
	subject := fmt.Sprintf("Your order %s", code)
	body := fmt.Sprintf(
		"Thank you for your order!\r\n\r\n"+
			"Order code: %s\r\n"+
			"Total: %s\r\n\r\n"+
			"You can review your order at %s/%s\r\n",
		code, total.StringFixed(2), m.orderURL, code,
	)
	return m.send(to, subject, body)
}

func (m *Mailer) send(to string, subject string, body string) error {
	msg := []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", m.from, to, subject, body,
	))

	auth := smtp.PlainAuth("", m.from, m.password, m.host)
	addr := m.host + ":" + m.port

	if err := smtp.SendMail(addr, auth, m.from, []string{to}, msg); err != nil {
		return fmt.Errorf("sending mail to %s: %w", to, err)
	}
	return nil
}
