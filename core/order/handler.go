package order

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/ticketeer/boxoffice/api/web"
	"github.com/ticketeer/boxoffice/api/weberr"
)

type orderResponse struct {
	Order     Order      `json:"order"`
	Positions []Position `json:"positions"`
}

// HandleShow returns an order with its frozen positions. The order code
// plus the contact email act as the access secret; there is no account
// to log into.
func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		code := strings.ToUpper(web.Param(r, "code"))

		ord, err := FetchByCode(ctx, db, code)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}

		if !strings.EqualFold(r.URL.Query().Get("email"), ord.Email) {
			return weberr.NotFound(ErrNotFound)
		}

		positions, err := FetchPositions(ctx, db, ord.ID)
		if err != nil {
			return fmt.Errorf("loading positions for order[%s]: %w", code, err)
		}

		return web.Respond(ctx, w, orderResponse{Order: ord, Positions: positions}, http.StatusOK)
	}
}
