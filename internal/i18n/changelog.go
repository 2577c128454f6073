package i18n

import (
	"math"
	"time"

	"github.com/dustin/go-humanize"

	"moscowboard/api/internal/board"
)

// Change is the part of a change-log entry needed to describe it.
type Change struct {
	Type          board.ChangeType
	Username      string
	Text          string
	From          board.Priority
	To            board.Priority
	Justification string
}

// Describe renders one change-log line, e.g. `ana moved "Export to PDF" from
// Must Have to Could Have`. Long card text is shortened.
func (c *Catalog) Describe(locale string, change Change) string {
	params := map[string]string{
		"username":      change.Username,
		"cardTextShort": board.ShortText(change.Text),
		"fromPriority":  c.PriorityLabel(locale, change.From),
		"toPriority":    c.PriorityLabel(locale, change.To),
	}
	switch change.Type {
	case board.ChangeCreated:
		return c.T(locale, "changelog.created", params)
	case board.ChangeMoved:
		return c.T(locale, "changelog.moved", params)
	case board.ChangeEdited:
		return c.T(locale, "changelog.edited", params)
	default:
		return c.T(locale, "changelog.unknown", params)
	}
}

// Reason renders the justification line under a change, or "" when there is none.
func (c *Catalog) Reason(locale string, change Change) string {
	if change.Justification == "" {
		return ""
	}
	prefix := "changelog.justificationPrefix"
	switch change.Type {
	case board.ChangeCreated, board.ChangeMoved:
		prefix = "changelog.reasonPrefix"
	case board.ChangeEdited:
		prefix = "changelog.detailsPrefix"
	}
	return c.T(locale, prefix, nil) + " " + change.Justification
}

var spanishMagnitudes = []humanize.RelTimeMagnitude{
	{D: time.Second, Format: "ahora", DivBy: time.Second},
	{D: 2 * time.Second, Format: "%s 1 segundo", DivBy: 1},
	{D: time.Minute, Format: "%s %d segundos", DivBy: time.Second},
	{D: 2 * time.Minute, Format: "%s 1 minuto", DivBy: 1},
	{D: time.Hour, Format: "%s %d minutos", DivBy: time.Minute},
	{D: 2 * time.Hour, Format: "%s 1 hora", DivBy: 1},
	{D: humanize.Day, Format: "%s %d horas", DivBy: time.Hour},
	{D: 2 * humanize.Day, Format: "%s 1 día", DivBy: 1},
	{D: humanize.Week, Format: "%s %d días", DivBy: humanize.Day},
	{D: 2 * humanize.Week, Format: "%s 1 semana", DivBy: 1},
	{D: humanize.Month, Format: "%s %d semanas", DivBy: humanize.Week},
	{D: 2 * humanize.Month, Format: "%s 1 mes", DivBy: 1},
	{D: humanize.Year, Format: "%s %d meses", DivBy: humanize.Month},
	{D: 18 * humanize.Month, Format: "%s 1 año", DivBy: 1},
	{D: 2 * humanize.Year, Format: "%s 2 años", DivBy: 1},
	{D: humanize.LongTime, Format: "%s %d años", DivBy: humanize.Year},
	{D: math.MaxInt64, Format: "%s mucho tiempo", DivBy: 1},
}

// RelativeTime renders then relative to now ("3 minutes ago", "hace 3 minutos").
func (c *Catalog) RelativeTime(locale string, then, now time.Time) string {
	if locale == Spanish {
		return humanize.CustomRelTime(then, now, "hace", "dentro de", spanishMagnitudes)
	}
	return humanize.RelTime(then, now, "ago", "from now")
}
