package search

import (
	"context"
	"fmt"
	"strings"

	"moscowboard/api/internal/store"
)

// RecordSource is the part of the store search needs: the LIKE fallback and
// full listings for reindexing.
type RecordSource interface {
	SearchText(ctx context.Context, text string, limit int) ([]store.Functionality, error)
	ListFunctionalities(ctx context.Context) ([]store.Functionality, error)
	ListChangeLog(ctx context.Context, limit int) ([]store.ChangeLogEntry, error)
}

// SQLSearch matches card text and justification with LIKE. It only returns
// functionality results.
type SQLSearch struct {
	source RecordSource
}

func NewSQLSearch(source RecordSource) *SQLSearch {
	return &SQLSearch{source: source}
}

// Healthy always returns true; without the database the board is down anyway.
func (p *SQLSearch) Healthy() bool {
	return true
}

func (p *SQLSearch) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	if q.FilterType != "" && q.FilterType != ResultFunctionality {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	matches, err := p.source.SearchText(ctx, q.Text, limit+offset)
	if err != nil {
		return nil, 0, fmt.Errorf("sql search: %w", err)
	}
	total := len(matches)
	if offset >= len(matches) {
		return nil, total, nil
	}

	results := make([]Result, 0, len(matches)-offset)
	for _, f := range matches[offset:] {
		results = append(results, Result{
			Type:            ResultFunctionality,
			ID:              f.ID,
			Title:           f.Text,
			Snippet:         f.Justification,
			FunctionalityID: f.ID,
			Priority:        f.Priority,
		})
	}
	return results, total, nil
}

// LoadAllRecords reads every card and change-log entry for reindexing.
func (p *SQLSearch) LoadAllRecords(ctx context.Context) ([]FunctionalityRecord, []ChangeRecord, error) {
	functionalities, err := p.source.ListFunctionalities(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load functionalities: %w", err)
	}
	entries, err := p.source.ListChangeLog(ctx, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("load change log: %w", err)
	}

	cards := make([]FunctionalityRecord, 0, len(functionalities))
	for _, f := range functionalities {
		cards = append(cards, FunctionalityRecordFrom(f))
	}
	changes := make([]ChangeRecord, 0, len(entries))
	for _, e := range entries {
		changes = append(changes, ChangeRecordFrom(e))
	}
	return cards, changes, nil
}
