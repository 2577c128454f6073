package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/sirupsen/logrus"

	"moscowboard/api/internal/board"
)

const (
	idxFunctionalities = "moscow_functionalities"
	idxChanges         = "moscow_changelog"
)

// Meili implements Engine via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
	logger  logrus.FieldLogger
}

// NewMeili creates a Meilisearch client and configures indexes. An
// unreachable server is not an error: the health loop keeps probing and
// callers fall back to SQL search meanwhile.
func NewMeili(url, apiKey string, logger logrus.FieldLogger) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
		logger: logger.WithField("component", "search.meili"),
	}

	if _, err := client.Health(); err != nil {
		m.logger.WithError(err).WithField("url", url).Warn("meilisearch unavailable")
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		filterable []string
		searchable []string
		sortable   []string
	}{
		{
			uid:        idxFunctionalities,
			filterable: []string{"priority"},
			searchable: []string{"text", "justification", "proposerUsername"},
		},
		{
			uid:        idxChanges,
			filterable: []string{"functionalityId", "changeType", "toPriority"},
			searchable: []string{"functionalityText", "justification", "username"},
			sortable:   []string{"timestamp"},
		},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: "id",
		}); err != nil {
			m.logger.WithError(err).WithField("index", idx.uid).Debug("create index (may already exist)")
		}

		index := m.client.Index(idx.uid)
		filterableInterface := make([]interface{}, len(idx.filterable))
		for i, v := range idx.filterable {
			filterableInterface[i] = v
		}
		if _, err := index.UpdateFilterableAttributes(&filterableInterface); err != nil {
			m.logger.WithError(err).WithField("index", idx.uid).Warn("update filterable attributes")
		}
		if _, err := index.UpdateSearchableAttributes(&idx.searchable); err != nil {
			m.logger.WithError(err).WithField("index", idx.uid).Warn("update searchable attributes")
		}
		if len(idx.sortable) > 0 {
			if _, err := index.UpdateSortableAttributes(&idx.sortable); err != nil {
				m.logger.WithError(err).WithField("index", idx.uid).Warn("update sortable attributes")
			}
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.logger.Info("meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries both indexes (or the filtered one) in a single multi-search.
func (m *Meili) Search(_ context.Context, q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	var queries []*meili.SearchRequest
	for _, ti := range []struct {
		uid  string
		rtyp ResultType
	}{
		{idxFunctionalities, ResultFunctionality},
		{idxChanges, ResultChange},
	} {
		if q.FilterType != "" && q.FilterType != ti.rtyp {
			continue
		}
		queries = append(queries, &meili.SearchRequest{
			IndexUID:              ti.uid,
			Query:                 q.Text,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
		})
	}
	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{Queries: queries})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, rtyp))
		}
	}
	return results, total, nil
}

func indexToResultType(uid string) ResultType {
	switch uid {
	case idxFunctionalities:
		return ResultFunctionality
	case idxChanges:
		return ResultChange
	default:
		return ""
	}
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{Type: rtyp, ID: decodeString(hit, "id")}
	switch rtyp {
	case ResultFunctionality:
		r.FunctionalityID = r.ID
		r.Title = firstNonBlank(decodeFormattedString(hit, "text"), decodeString(hit, "text"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "justification"), decodeString(hit, "justification"))
		r.Priority = board.Priority(decodeString(hit, "priority"))
	case ResultChange:
		r.FunctionalityID = decodeString(hit, "functionalityId")
		r.Title = firstNonBlank(decodeFormattedString(hit, "functionalityText"), decodeString(hit, "functionalityText"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "justification"), decodeString(hit, "justification"))
		r.Priority = board.Priority(decodeString(hit, "toPriority"))
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]any
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	value, _ := formatted[key].(string)
	return strings.TrimSpace(value)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexFunctionalities adds or replaces cards in the index.
func (m *Meili) IndexFunctionalities(records []FunctionalityRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxFunctionalities).AddDocuments(records, nil)
	return err
}

// IndexChanges adds change-log entries to the index.
func (m *Meili) IndexChanges(records []ChangeRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxChanges).AddDocuments(records, nil)
	return err
}
