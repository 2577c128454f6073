package search

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moscowboard/api/internal/board"
	"moscowboard/api/internal/logging"
	"moscowboard/api/internal/store"
)

type fakeSource struct {
	functionalities []store.Functionality
	entries         []store.ChangeLogEntry
	searchErr       error
	lastLimit       int
}

func (f *fakeSource) SearchText(_ context.Context, _ string, limit int) ([]store.Functionality, error) {
	f.lastLimit = limit
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if limit < len(f.functionalities) {
		return f.functionalities[:limit], nil
	}
	return f.functionalities, nil
}

func (f *fakeSource) ListFunctionalities(context.Context) ([]store.Functionality, error) {
	return f.functionalities, nil
}

func (f *fakeSource) ListChangeLog(context.Context, int) ([]store.ChangeLogEntry, error) {
	return f.entries, nil
}

type fakeEngine struct {
	mu        sync.Mutex
	healthy   bool
	searchErr error
	results   []Result
	cards     []FunctionalityRecord
	changes   []ChangeRecord
}

func (e *fakeEngine) Search(context.Context, Query) ([]Result, int, error) {
	if e.searchErr != nil {
		return nil, 0, e.searchErr
	}
	return e.results, len(e.results), nil
}

func (e *fakeEngine) Healthy() bool { return e.healthy }

func (e *fakeEngine) IndexFunctionalities(records []FunctionalityRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cards = append(e.cards, records...)
	return nil
}

func (e *fakeEngine) IndexChanges(records []ChangeRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.changes = append(e.changes, records...)
	return nil
}

func (e *fakeEngine) Close() {}

func (e *fakeEngine) counts() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cards), len(e.changes)
}

func sampleSource() *fakeSource {
	return &fakeSource{
		functionalities: []store.Functionality{
			{ID: "fn_1", Text: "Dark mode", Justification: "users asked", Priority: board.Should},
			{ID: "fn_2", Text: "Dark reader", Justification: "a11y", Priority: board.Could},
		},
		entries: []store.ChangeLogEntry{
			{ID: "log_1", FunctionalityID: "fn_1", ChangeType: board.ChangeCreated, ToPriority: board.Should, Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		},
	}
}

func TestSearchFallsBackToSQLWithoutEngine(t *testing.T) {
	svc := NewService(nil, NewSQLSearch(sampleSource()), logging.Discard())

	resp := svc.Search(context.Background(), Query{Text: "dark"})
	assert.Equal(t, "sql", resp.Engine)
	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, ResultFunctionality, resp.Results[0].Type)
	assert.Equal(t, "fn_1", resp.Results[0].FunctionalityID)
	assert.Equal(t, board.Should, resp.Results[0].Priority)
}

func TestSearchFallsBackWhenEngineErrors(t *testing.T) {
	engine := &fakeEngine{healthy: true, searchErr: errors.New("boom")}
	svc := NewService(engine, NewSQLSearch(sampleSource()), logging.Discard())

	resp := svc.Search(context.Background(), Query{Text: "dark"})
	assert.Equal(t, "sql", resp.Engine)
	assert.Len(t, resp.Results, 2)
}

func TestSearchUsesHealthyEngine(t *testing.T) {
	engine := &fakeEngine{healthy: true, results: []Result{{Type: ResultChange, ID: "log_1"}}}
	svc := NewService(engine, NewSQLSearch(sampleSource()), logging.Discard())

	resp := svc.Search(context.Background(), Query{Text: "dark"})
	assert.Equal(t, "meilisearch", resp.Engine)
	assert.Equal(t, []Result{{Type: ResultChange, ID: "log_1"}}, resp.Results)
}

func TestSearchDegradesToEmptyOnSQLError(t *testing.T) {
	source := sampleSource()
	source.searchErr = errors.New("db down")
	svc := NewService(nil, NewSQLSearch(source), logging.Discard())

	resp := svc.Search(context.Background(), Query{Text: "dark"})
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
}

func TestSQLSearchPagingAndFilters(t *testing.T) {
	source := sampleSource()
	sql := NewSQLSearch(source)

	results, total, err := sql.Search(context.Background(), Query{Text: "dark", Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, source.lastLimit)
	assert.Equal(t, 2, total)
	require.Len(t, results, 1)
	assert.Equal(t, "fn_2", results[0].ID)

	results, _, err = sql.Search(context.Background(), Query{Text: "dark", FilterType: ResultChange})
	require.NoError(t, err)
	assert.Empty(t, results)

	results, _, err = sql.Search(context.Background(), Query{Text: "   "})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIndexingIsSkippedWhenEngineUnhealthy(t *testing.T) {
	engine := &fakeEngine{healthy: false}
	svc := NewService(engine, NewSQLSearch(sampleSource()), logging.Discard())

	svc.IndexFunctionality(FunctionalityRecord{ID: "fn_1"})
	_, _, err := svc.ReindexAll(context.Background())
	assert.ErrorIs(t, err, ErrEngineUnavailable)

	cards, changes := engine.counts()
	assert.Zero(t, cards)
	assert.Zero(t, changes)
}

func TestIndexAndReindex(t *testing.T) {
	engine := &fakeEngine{healthy: true}
	svc := NewService(engine, NewSQLSearch(sampleSource()), logging.Discard())

	svc.IndexChange(ChangeRecord{ID: "log_9"})
	assert.Eventually(t, func() bool {
		_, changes := engine.counts()
		return changes == 1
	}, time.Second, 10*time.Millisecond)

	cards, changes, err := svc.ReindexAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, cards)
	assert.Equal(t, 1, changes)
	assert.Equal(t, "2026-01-02T03:04:05Z", engine.changes[1].Timestamp)
}

func TestHitToResult(t *testing.T) {
	hit := meili.Hit{
		"id":                json.RawMessage(`"log_1"`),
		"functionalityId":   json.RawMessage(`"fn_1"`),
		"functionalityText": json.RawMessage(`"Dark mode"`),
		"toPriority":        json.RawMessage(`"must"`),
		"_formatted":        json.RawMessage(`{"functionalityText":"<mark>Dark</mark> mode","seq":3}`),
	}
	r := hitToResult(hit, ResultChange)
	assert.Equal(t, "log_1", r.ID)
	assert.Equal(t, "fn_1", r.FunctionalityID)
	assert.Equal(t, "<mark>Dark</mark> mode", r.Title)
	assert.Equal(t, board.Must, r.Priority)
	assert.Equal(t, ResultChange, indexToResultType(idxChanges))
}
