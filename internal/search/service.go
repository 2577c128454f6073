package search

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

var ErrEngineUnavailable = errors.New("search engine unavailable")

// Service is the facade that tries the engine first and falls back to SQL.
type Service struct {
	engine   Engine
	fallback *SQLSearch
	logger   logrus.FieldLogger
}

// NewService creates a search service. engine may be nil if Meilisearch is
// not configured.
func NewService(engine Engine, fallback *SQLSearch, logger logrus.FieldLogger) *Service {
	return &Service{engine: engine, fallback: fallback, logger: logger.WithField("component", "search")}
}

func (s *Service) engineReady() bool {
	return s.engine != nil && s.engine.Healthy()
}

// Search tries the engine if healthy, otherwise falls back to SQL. Errors
// degrade to an empty response.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.engineReady() {
		results, total, err := s.engine.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: "meilisearch"}
		}
		s.logger.WithError(err).Warn("meilisearch error, falling back to sql")
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.WithError(err).Error("sql search failed")
		return Response{Results: []Result{}, Total: 0, Query: q.Text, Engine: "sql"}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: "sql"}
}

// IndexFunctionality indexes a card (fire-and-forget).
func (s *Service) IndexFunctionality(record FunctionalityRecord) {
	if !s.engineReady() {
		return
	}
	go func() {
		if err := s.engine.IndexFunctionalities([]FunctionalityRecord{record}); err != nil {
			s.logger.WithError(err).WithField("functionality_id", record.ID).Warn("index functionality")
		}
	}()
}

// IndexChange indexes a change-log entry (fire-and-forget).
func (s *Service) IndexChange(record ChangeRecord) {
	if !s.engineReady() {
		return
	}
	go func() {
		if err := s.engine.IndexChanges([]ChangeRecord{record}); err != nil {
			s.logger.WithError(err).WithField("change_id", record.ID).Warn("index change")
		}
	}()
}

// ReindexAll rebuilds the engine indexes from the database and reports how
// many cards and changes were pushed.
func (s *Service) ReindexAll(ctx context.Context) (int, int, error) {
	if !s.engineReady() {
		return 0, 0, ErrEngineUnavailable
	}
	cards, changes, err := s.fallback.LoadAllRecords(ctx)
	if err != nil {
		return 0, 0, err
	}
	if err := s.engine.IndexFunctionalities(cards); err != nil {
		return 0, 0, err
	}
	if err := s.engine.IndexChanges(changes); err != nil {
		return len(cards), 0, err
	}
	s.logger.WithFields(logrus.Fields{"functionalities": len(cards), "changes": len(changes)}).Info("reindex complete")
	return len(cards), len(changes), nil
}

func (s *Service) Close() {
	if s.engine != nil {
		s.engine.Close()
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
