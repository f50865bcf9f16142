package event

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/ticketeer/boxoffice/api/web"
	"github.com/ticketeer/boxoffice/api/weberr"
	"github.com/ticketeer/boxoffice/core/item"
)

type eventResponse struct {
	Event       Event       `json:"event"`
	PresaleOpen bool        `json:"presaleOpen"`
	Items       []item.Item `json:"items"`
}

// HandleShow returns the shop page data: the event itself and its
// active products.
func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		ev, err := FetchBySlug(ctx, db, web.Param(r, "slug"))
		if err != nil {
			return weberr.NotFound(err)
		}

		items, err := item.FetchByEvent(ctx, db, ev.ID)
		if err != nil {
			return fmt.Errorf("loading items for event[%s]: %w", ev.ID, err)
		}

		res := eventResponse{
			Event:       ev,
			PresaleOpen: ev.PresaleOpen(time.Now().UTC()),
			Items:       items,
		}
		return web.Respond(ctx, w, res, http.StatusOK)
	}
}
