// Package question handles the per-position questions buyers answer
// before checkout. Required answers gate entry into the confirm step;
// they are not part of the confirm validation itself.
package question

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	TypeString = "S"
	TypeNumber = "N"
	TypeBool   = "B"
)

type Question struct {
	ID       string `json:"id" db:"question_id"`
	EventID  string `json:"eventId" db:"event_id"`
	Question string `json:"question" db:"question"`
	Type     string `json:"type" db:"type"`
	Required bool   `json:"required" db:"required"`
}

type Answer struct {
	PositionID string `json:"-" db:"position_id"`
	QuestionID string `json:"questionId" db:"question_id"`
	Answer     string `json:"answer" db:"answer"`
}

// FetchForItems returns the questions attached to each of the given
// items.
func FetchForItems(ctx context.Context, db sqlx.ExtContext, itemIDs []string) (map[string][]Question, error) {
	byItem := make(map[string][]Question, len(itemIDs))
	if len(itemIDs) == 0 {
		return byItem, nil
	}

	const q = `
	SELECT iq.item_id, qu.*
	FROM item_questions iq
	JOIN questions qu ON qu.question_id = iq.question_id
	WHERE iq.item_id = ANY($1)`

	rows, err := db.QueryxContext(ctx, q, pq.Array(itemIDs))
	if err != nil {
		return nil, fmt.Errorf("selecting questions for items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row struct {
			ItemID string `db:"item_id"`
			Question
		}
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("scanning question row: %w", err)
		}
		byItem[row.ItemID] = append(byItem[row.ItemID], row.Question)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating question rows: %w", err)
	}

	return byItem, nil
}

// FetchAnswers returns the stored answers per cart position.
func FetchAnswers(ctx context.Context, db sqlx.ExtContext, positionIDs []string) (map[string][]Answer, error) {
	byPosition := make(map[string][]Answer, len(positionIDs))
	if len(positionIDs) == 0 {
		return byPosition, nil
	}

	const q = `SELECT * FROM cart_answers WHERE position_id = ANY($1)`

	var rows []Answer
	if err := sqlx.SelectContext(ctx, db, &rows, q, pq.Array(positionIDs)); err != nil {
		return nil, fmt.Errorf("selecting answers: %w", err)
	}

	for _, a := range rows {
		byPosition[a.PositionID] = append(byPosition[a.PositionID], a)
	}
	return byPosition, nil
}

// SaveAnswer stores or replaces one answer. Empty answers to optional
// questions are dropped instead of stored.
func SaveAnswer(ctx context.Context, db sqlx.ExtContext, a Answer) error {
	if a.Answer == "" {
		const del = `DELETE FROM cart_answers WHERE position_id = $1 AND question_id = $2`
		if _, err := db.ExecContext(ctx, del, a.PositionID, a.QuestionID); err != nil {
			return fmt.Errorf("clearing answer: %w", err)
		}
		return nil
	}

	const q = `
	INSERT INTO cart_answers (position_id, question_id, answer)
	VALUES ($1, $2, $3)
	ON CONFLICT (position_id, question_id) DO UPDATE SET answer = EXCLUDED.answer`

	if _, err := db.ExecContext(ctx, q, a.PositionID, a.QuestionID, a.Answer); err != nil {
		return fmt.Errorf("saving answer: %w", err)
	}
	return nil
}

// MissingRequired returns, per position id, the questions that are
// required for the position's item but not answered yet.
func MissingRequired(questions map[string][]Question, answers map[string][]Answer, positionItems map[string]string) map[string][]Question {
	missing := make(map[string][]Question)

	for posID, itemID := range positionItems {
		answered := make(map[string]bool)
		for _, a := range answers[posID] {
			answered[a.QuestionID] = true
		}

		for _, qu := range questions[itemID] {
			if qu.Required && !answered[qu.ID] {
				missing[posID] = append(missing[posID], qu)
			}
		}
	}

	return missing
}
