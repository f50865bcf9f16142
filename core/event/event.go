package event

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

type Event struct {
	ID           string     `json:"id" db:"event_id"`
	Organizer    string     `json:"organizer" db:"organizer"`
	Name         string     `json:"name" db:"name"`
	Slug         string     `json:"slug" db:"slug"`
	Live         bool       `json:"live" db:"live"`
	Currency     string     `json:"currency" db:"currency"`
	PresaleStart *time.Time `json:"presaleStart" db:"presale_start"`
	PresaleEnd   *time.Time `json:"presaleEnd" db:"presale_end"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt" db:"updated_at"`
}

// Settings are the per-event flags the checkout needs. They are resolved
// once per request and passed down explicitly.
type Settings struct {
	EventID               string `db:"event_id"`
	AttendeeNamesAsked    bool   `db:"attendee_names_asked"`
	AttendeeNamesRequired bool   `db:"attendee_names_required"`
}

// PresaleOpen reports whether orders may be placed at the given time.
func (e Event) PresaleOpen(now time.Time) bool {
	if e.PresaleStart != nil && now.Before(*e.PresaleStart) {
		return false
	}
	if e.PresaleEnd != nil && now.After(*e.PresaleEnd) {
		return false
	}
	return true
}

func Fetch(ctx context.Context, db sqlx.ExtContext, id string) (Event, error) {
	const q = `SELECT * FROM events WHERE event_id = $1`

	var ev Event
	if err := sqlx.GetContext(ctx, db, &ev, q, id); err != nil {
		return Event{}, fmt.Errorf("selecting event[%s]: %w", id, err)
	}
	return ev, nil
}

func FetchBySlug(ctx context.Context, db sqlx.ExtContext, slug string) (Event, error) {
	const q = `SELECT * FROM events WHERE slug = $1`

	var ev Event
	if err := sqlx.GetContext(ctx, db, &ev, q, slug); err != nil {
		return Event{}, fmt.Errorf("selecting event[slug=%s]: %w", slug, err)
	}
	return ev, nil
}

func FetchSettings(ctx context.Context, db sqlx.ExtContext, eventID string) (Settings, error) {
	const q = `SELECT * FROM event_settings WHERE event_id = $1`

	var s Settings
	if err := sqlx.GetContext(ctx, db, &s, q, eventID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Settings{EventID: eventID}, nil
		}
		return Settings{}, fmt.Errorf("selecting settings for event[%s]: %w", eventID, err)
	}
	return s, nil
}
