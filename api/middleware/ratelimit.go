package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/ticketeer/boxoffice/api/web"
	"github.com/ticketeer/boxoffice/api/weberr"
	"github.com/ticketeer/boxoffice/rate"
)

// RateLimit throttles a route per client IP. Confirm attempts are the
// intended target: each one takes the quota locks, so a single client
// hammering the endpoint must not starve everyone else.
func RateLimit(lm *rate.Limiter) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}

			if !lm.Check(ip) {
				err := errors.New("too many requests")
				return weberr.NewError(err, "you are going too fast, please slow down", http.StatusTooManyRequests)
			}

			return handler(ctx, w, r)
		}
		return h
	}
	return m
}
