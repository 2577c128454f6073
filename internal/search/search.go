package search

import (
	"context"
	"time"

	"moscowboard/api/internal/board"
	"moscowboard/api/internal/store"
)

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultFunctionality ResultType = "functionality"
	ResultChange        ResultType = "change"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type            ResultType     `json:"type"`
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	Snippet         string         `json:"snippet"`
	FunctionalityID string         `json:"functionalityId"`
	Priority        board.Priority `json:"priority,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Engine  string   `json:"engine"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Engine is a dedicated search backend that also accepts index updates.
type Engine interface {
	Searcher
	IndexFunctionalities(records []FunctionalityRecord) error
	IndexChanges(records []ChangeRecord) error
	Close()
}

// FunctionalityRecord is the data we index for a card.
type FunctionalityRecord struct {
	ID               string `json:"id"`
	Text             string `json:"text"`
	Justification    string `json:"justification"`
	Priority         string `json:"priority"`
	ProposerUsername string `json:"proposerUsername"`
}

// ChangeRecord is the data we index for a change-log entry.
type ChangeRecord struct {
	ID                string `json:"id"`
	FunctionalityID   string `json:"functionalityId"`
	FunctionalityText string `json:"functionalityText"`
	Username          string `json:"username"`
	ChangeType        string `json:"changeType"`
	FromPriority      string `json:"fromPriority"`
	ToPriority        string `json:"toPriority"`
	Justification     string `json:"justification"`
	Timestamp         string `json:"timestamp"`
}

func FunctionalityRecordFrom(f store.Functionality) FunctionalityRecord {
	return FunctionalityRecord{
		ID:               f.ID,
		Text:             f.Text,
		Justification:    f.Justification,
		Priority:         string(f.Priority),
		ProposerUsername: f.ProposerUsername,
	}
}

func ChangeRecordFrom(e store.ChangeLogEntry) ChangeRecord {
	return ChangeRecord{
		ID:                e.ID,
		FunctionalityID:   e.FunctionalityID,
		FunctionalityText: e.FunctionalityText,
		Username:          e.Username,
		ChangeType:        string(e.ChangeType),
		FromPriority:      string(e.FromPriority),
		ToPriority:        string(e.ToPriority),
		Justification:     e.Justification,
		Timestamp:         e.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}
