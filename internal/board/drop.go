package board

import "errors"

// ErrCardNotFound is returned by a CardLookup when the dragged card is gone.
var ErrCardNotFound = errors.New("card not found")

type Position struct {
	Priority Priority `json:"priority"`
	Index    int      `json:"index"`
}

// Drop is a finished drag gesture. Destination is nil when the card was
// released outside any column.
type Drop struct {
	CardID      string    `json:"cardId"`
	Source      Position  `json:"source"`
	Destination *Position `json:"destination,omitempty"`
}

type Card struct {
	ID       string
	Text     string
	Priority Priority
}

type CardLookup func(id string) (Card, error)

type DropAction string

const (
	DropNone    DropAction = "none"
	DropReorder DropAction = "reorder"
	DropConfirm DropAction = "confirm"
)

// PendingMove is what the client has to confirm, with a justification,
// before anything is written.
type PendingMove struct {
	CardID   string   `json:"functionalityId"`
	CardText string   `json:"functionalityText"`
	From     Priority `json:"fromPriority"`
	To       Priority `json:"toPriority"`
}

type DropOutcome struct {
	Action DropAction   `json:"action"`
	Move   *PendingMove `json:"move,omitempty"`
}

// ResolveDrop turns a gesture into an outcome. It never writes; reordering
// inside a column is reported but not persisted. lookup is only consulted
// for cross-column drops.
func ResolveDrop(d Drop, lookup CardLookup) (DropOutcome, error) {
	dest := d.Destination
	if dest == nil {
		return DropOutcome{Action: DropNone}, nil
	}
	if dest.Priority == d.Source.Priority {
		if dest.Index == d.Source.Index {
			return DropOutcome{Action: DropNone}, nil
		}
		return DropOutcome{Action: DropReorder}, nil
	}
	if !dest.Priority.Valid() {
		return DropOutcome{}, invalid("destination", CodeInvalidPriority, "unknown destination column")
	}

	card, err := lookup(d.CardID)
	if err != nil {
		return DropOutcome{}, err
	}
	if card.Priority == dest.Priority {
		return DropOutcome{Action: DropNone}, nil
	}
	return DropOutcome{
		Action: DropConfirm,
		Move: &PendingMove{
			CardID:   card.ID,
			CardText: card.Text,
			From:     card.Priority,
			To:       dest.Priority,
		},
	}, nil
}
