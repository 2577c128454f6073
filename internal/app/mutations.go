package app

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"moscowboard/api/internal/board"
	"moscowboard/api/internal/feed"
	"moscowboard/api/internal/metrics"
	"moscowboard/api/internal/search"
	"moscowboard/api/internal/store"
	"moscowboard/api/internal/util"
)

type AddResult struct {
	Functionality store.Functionality  `json:"functionality"`
	Entry         store.ChangeLogEntry `json:"changeLogEntry"`
}

type MoveResult struct {
	Functionality store.Functionality  `json:"functionality"`
	Entry         store.ChangeLogEntry `json:"changeLogEntry"`
}

// AddFunctionality creates a card and its "created" log entry in one batch.
// Invalid input is rejected before anything is written.
func (s *Service) AddFunctionality(ctx context.Context, session Session, input board.AddInput) (AddResult, error) {
	in, err := input.Normalize()
	if err != nil {
		metrics.RecordMutation("add", "invalid")
		return AddResult{}, err
	}

	f := store.Functionality{
		ID:               util.NewID("fn"),
		Text:             in.Text,
		Justification:    in.Justification,
		ProposerID:       session.UserID,
		ProposerUsername: session.Username,
		Priority:         in.Priority,
	}
	batch := store.NewBatch().
		CreateFunctionality(f).
		AppendLog(store.ChangeLogEntry{
			ID:                util.NewID("log"),
			FunctionalityID:   f.ID,
			FunctionalityText: f.Text,
			UserID:            session.UserID,
			Username:          session.Username,
			ChangeType:        board.ChangeCreated,
			ToPriority:        f.Priority,
			Justification:     f.Justification,
		})

	log := s.logger.WithFields(logrus.Fields{
		"op":               "add",
		"functionality_id": f.ID,
		"user_id":          session.UserID,
		"priority":         f.Priority,
	})
	if err := s.store.Commit(ctx, batch); err != nil {
		log.WithError(err).Error("add functionality failed")
		metrics.RecordMutation("add", "failed")
		return AddResult{}, writeFailure(CodeAddFailed, "Could not add functionality", err)
	}
	metrics.RecordMutation("add", "ok")
	log.Info("functionality added")

	result := AddResult{Functionality: batch.Functionalities()[0], Entry: batch.Entries()[0]}
	s.publish(feed.EventFunctionalityCreated, feed.TopicFunctionalities, result.Functionality)
	s.publish(feed.EventChangeLogAppended, feed.TopicChangeLog, result.Entry)
	if s.search != nil {
		s.search.IndexFunctionality(search.FunctionalityRecordFrom(result.Functionality))
		s.search.IndexChange(search.ChangeRecordFrom(result.Entry))
	}
	return result, nil
}

// ResolveDrop interprets a finished drag. It never writes: cross-column
// drops come back as a move awaiting confirmation.
func (s *Service) ResolveDrop(ctx context.Context, drop board.Drop) (board.DropOutcome, error) {
	return board.ResolveDrop(drop, func(id string) (board.Card, error) {
		f, err := s.store.GetFunctionality(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return board.Card{}, board.ErrCardNotFound
		}
		if err != nil {
			return board.Card{}, err
		}
		return f.Card(), nil
	})
}

// MoveFunctionality applies a confirmed move: the priority update and its
// "moved" log entry commit together. A From that no longer matches the
// stored priority, or a concurrent move that lands first, is a conflict.
func (s *Service) MoveFunctionality(ctx context.Context, session Session, functionalityID string, input board.MoveInput) (MoveResult, error) {
	in, err := input.Normalize()
	if err != nil {
		metrics.RecordMutation("move", "invalid")
		return MoveResult{}, err
	}

	current, err := s.store.GetFunctionality(ctx, functionalityID)
	if err != nil {
		metrics.RecordMutation("move", "invalid")
		return MoveResult{}, err
	}
	if in.From != "" && in.From != current.Priority {
		metrics.RecordMutation("move", "conflict")
		return MoveResult{}, store.ErrStalePriority
	}
	if current.Priority == in.To {
		metrics.RecordMutation("move", "invalid")
		return MoveResult{}, board.NoChange(in.To)
	}

	from := current.Priority
	batch := store.NewBatch().
		MovePriority(current.ID, from, in.To).
		AppendLog(store.ChangeLogEntry{
			ID:                util.NewID("log"),
			FunctionalityID:   current.ID,
			FunctionalityText: current.Text,
			UserID:            session.UserID,
			Username:          session.Username,
			ChangeType:        board.ChangeMoved,
			FromPriority:      from,
			ToPriority:        in.To,
			Justification:     in.Justification,
		})

	log := s.logger.WithFields(logrus.Fields{
		"op":               "move",
		"functionality_id": current.ID,
		"user_id":          session.UserID,
		"from":             from,
		"to":               in.To,
	})
	if err := s.store.Commit(ctx, batch); err != nil {
		if errors.Is(err, store.ErrStalePriority) || errors.Is(err, store.ErrNotFound) {
			log.WithError(err).Warn("move lost a race")
			metrics.RecordMutation("move", "conflict")
			return MoveResult{}, err
		}
		log.WithError(err).Error("move functionality failed")
		metrics.RecordMutation("move", "failed")
		return MoveResult{}, writeFailure(CodeMoveFailed, "Could not move functionality", err)
	}
	metrics.RecordMutation("move", "ok")
	log.Info("functionality moved")

	moved := current
	moved.Priority = in.To
	moved.UpdatedAt = batch.CommittedAt()
	result := MoveResult{Functionality: moved, Entry: batch.Entries()[0]}

	s.publish(feed.EventFunctionalityMoved, feed.TopicFunctionalities, result.Functionality)
	s.publish(feed.EventChangeLogAppended, feed.TopicChangeLog, result.Entry)
	if s.search != nil {
		s.search.IndexFunctionality(search.FunctionalityRecordFrom(result.Functionality))
		s.search.IndexChange(search.ChangeRecordFrom(result.Entry))
	}
	return result, nil
}

func (s *Service) publish(eventType feed.EventType, topic string, data any) {
	event, err := feed.NewEvent(eventType, topic, data)
	if err != nil {
		s.logger.WithError(err).WithField("event", eventType).Error("build feed event")
		return
	}
	s.publisher.Publish(event)
	metrics.RecordFeedEvent(string(eventType))
}
