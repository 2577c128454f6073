package store

import (
	"time"

	"moscowboard/api/internal/board"
)

type User struct {
	ID        string    `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type Functionality struct {
	Seq              int64          `db:"seq" json:"-"`
	ID               string         `db:"id" json:"id"`
	Text             string         `db:"text" json:"text"`
	Justification    string         `db:"justification" json:"justification"`
	ProposerID       string         `db:"proposer_id" json:"proposerId"`
	ProposerUsername string         `db:"proposer_username" json:"proposerUsername"`
	Priority         board.Priority `db:"priority" json:"priority"`
	CreatedAt        time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updatedAt"`
}

func (f Functionality) Card() board.Card {
	return board.Card{ID: f.ID, Text: f.Text, Priority: f.Priority}
}

// ChangeLogEntry is one immutable history record. FromPriority is empty for
// created entries.
type ChangeLogEntry struct {
	Seq               int64            `db:"seq" json:"-"`
	ID                string           `db:"id" json:"id"`
	FunctionalityID   string           `db:"functionality_id" json:"functionalityId"`
	FunctionalityText string           `db:"functionality_text" json:"functionalityText"`
	UserID            string           `db:"user_id" json:"userId"`
	Username          string           `db:"username" json:"username"`
	ChangeType        board.ChangeType `db:"change_type" json:"changeType"`
	FromPriority      board.Priority   `db:"from_priority" json:"fromPriority,omitempty"`
	ToPriority        board.Priority   `db:"to_priority" json:"toPriority,omitempty"`
	Justification     string           `db:"justification" json:"justification,omitempty"`
	Timestamp         time.Time        `db:"occurred_at" json:"timestamp"`
}
