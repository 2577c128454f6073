// Package board holds the MoSCoW domain rules that do not touch storage:
// the priority buckets, input validation for add and move intents, and the
// resolution of drag-and-drop gestures into either nothing or a move that
// still has to be confirmed.
package board

import (
	"strings"
	"unicode/utf8"
)

type Priority string

const (
	Must   Priority = "must"
	Should Priority = "should"
	Could  Priority = "could"
	Wont   Priority = "wont"
)

// Priorities is the column order of the board.
var Priorities = []Priority{Must, Should, Could, Wont}

func (p Priority) Valid() bool {
	switch p {
	case Must, Should, Could, Wont:
		return true
	}
	return false
}

func (p Priority) String() string { return string(p) }

// ParsePriority accepts the four bucket names, ignoring case and surrounding space.
func ParsePriority(raw string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(raw)))
	if !p.Valid() {
		return "", invalid("priority", CodeInvalidPriority, "priority must be one of must, should, could, wont")
	}
	return p, nil
}

type ChangeType string

const (
	ChangeCreated ChangeType = "created"
	ChangeMoved   ChangeType = "moved"
	// ChangeEdited is accepted when rendering history; no operation emits it.
	ChangeEdited ChangeType = "edited"
)

const (
	shortTextLimit = 30
	shortTextKeep  = 27
)

// ShortText shortens card text for one-line history descriptions.
func ShortText(text string) string {
	if utf8.RuneCountInString(text) <= shortTextLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:shortTextKeep]) + "..."
}

// Column is one priority bucket with its cards in creation order.
type Column[T any] struct {
	Priority Priority `json:"priority"`
	Count    int      `json:"count"`
	Cards    []T      `json:"cards"`
}

// GroupByPriority splits items into the four columns, preserving input order
// within each column. Items with an unknown priority are dropped.
func GroupByPriority[T any](items []T, priorityOf func(T) Priority) []Column[T] {
	columns := make([]Column[T], len(Priorities))
	index := make(map[Priority]int, len(Priorities))
	for i, p := range Priorities {
		columns[i] = Column[T]{Priority: p, Cards: []T{}}
		index[p] = i
	}
	for _, item := range items {
		i, ok := index[priorityOf(item)]
		if !ok {
			continue
		}
		columns[i].Cards = append(columns[i].Cards, item)
		columns[i].Count++
	}
	return columns
}
