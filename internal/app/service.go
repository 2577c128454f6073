package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"moscowboard/api/internal/auth"
	"moscowboard/api/internal/board"
	"moscowboard/api/internal/config"
	"moscowboard/api/internal/export"
	"moscowboard/api/internal/feed"
	"moscowboard/api/internal/i18n"
	"moscowboard/api/internal/search"
	"moscowboard/api/internal/store"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Username     string
	JTI          string
	ExpiresAt    time.Time
}

// DataStore is the board storage the service runs against.
type DataStore interface {
	Ping(ctx context.Context) error
	CreateUser(context.Context, store.User) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	ListFunctionalities(context.Context) ([]store.Functionality, error)
	GetFunctionality(context.Context, string) (store.Functionality, error)
	ListChangeLog(context.Context, int) ([]store.ChangeLogEntry, error)
	ListChangeLogFor(context.Context, string) ([]store.ChangeLogEntry, error)
	Commit(context.Context, *store.Batch) error
}

// SessionStore keeps refresh sessions and revoked access tokens, in Redis or SQL.
type SessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
}

type Searcher interface {
	Search(context.Context, search.Query) search.Response
	IndexFunctionality(search.FunctionalityRecord)
	IndexChange(search.ChangeRecord)
}

type Exporter interface {
	Export(context.Context, export.Request) (*export.Result, error)
}

type Archiver interface {
	Archive(context.Context) (export.ArchiveInfo, error)
}

// Deps wires the service. Search, Exporter and Archiver are optional.
type Deps struct {
	Store     DataStore
	Sessions  SessionStore
	Publisher feed.Publisher
	Catalog   *i18n.Catalog
	Search    Searcher
	Exporter  Exporter
	Archiver  Archiver
	Logger    logrus.FieldLogger
}

type Service struct {
	cfg       config.Config
	store     DataStore
	sessions  SessionStore
	signer    *auth.Signer
	publisher feed.Publisher
	catalog   *i18n.Catalog
	search    Searcher
	exporter  Exporter
	archiver  Archiver
	logger    logrus.FieldLogger
	now       func() time.Time
}

func New(cfg config.Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	sessions := deps.Sessions
	if sessions == nil {
		if s, ok := deps.Store.(SessionStore); ok {
			sessions = s
		}
	}
	catalog := deps.Catalog
	if catalog == nil {
		catalog = i18n.MustLoad(cfg.DefaultLocale)
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = feed.NewMemoryPublisher()
	}
	return &Service{
		cfg:       cfg,
		store:     deps.Store,
		sessions:  sessions,
		signer:    auth.NewSigner(cfg.JWTSecret, cfg.AccessTTL),
		publisher: publisher,
		catalog:   catalog,
		search:    deps.Search,
		exporter:  deps.Exporter,
		archiver:  deps.Archiver,
		logger:    logger.WithField("component", "app"),
		now:       time.Now,
	}
}

func (s *Service) Catalog() *i18n.Catalog { return s.catalog }

func (s *Service) Publisher() feed.Publisher { return s.publisher }

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) ListFunctionalities(ctx context.Context) ([]store.Functionality, error) {
	items, err := s.store.ListFunctionalities(ctx)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []store.Functionality{}
	}
	return items, nil
}

type BoardColumn struct {
	Priority board.Priority        `json:"priority"`
	Label    string                `json:"label"`
	Count    int                   `json:"count"`
	Cards    []store.Functionality `json:"cards"`
}

// Board returns the four columns in MoSCoW order, cards oldest first.
func (s *Service) Board(ctx context.Context, locale string) ([]BoardColumn, error) {
	items, err := s.store.ListFunctionalities(ctx)
	if err != nil {
		return nil, err
	}
	grouped := board.GroupByPriority(items, func(f store.Functionality) board.Priority { return f.Priority })
	columns := make([]BoardColumn, 0, len(grouped))
	for _, column := range grouped {
		columns = append(columns, BoardColumn{
			Priority: column.Priority,
			Label:    s.catalog.PriorityLabel(locale, column.Priority),
			Count:    column.Count,
			Cards:    column.Cards,
		})
	}
	return columns, nil
}

// ChangeLogView is a log entry with its rendered description.
type ChangeLogView struct {
	store.ChangeLogEntry
	Description  string `json:"description"`
	Reason       string `json:"reason,omitempty"`
	RelativeTime string `json:"relativeTime"`
}

func (s *Service) describe(locale string, entries []store.ChangeLogEntry) []ChangeLogView {
	now := s.now()
	views := make([]ChangeLogView, 0, len(entries))
	for _, e := range entries {
		change := i18n.Change{
			Type:          e.ChangeType,
			Username:      e.Username,
			Text:          e.FunctionalityText,
			From:          e.FromPriority,
			To:            e.ToPriority,
			Justification: e.Justification,
		}
		views = append(views, ChangeLogView{
			ChangeLogEntry: e,
			Description:    s.catalog.Describe(locale, change),
			Reason:         s.catalog.Reason(locale, change),
			RelativeTime:   s.catalog.RelativeTime(locale, e.Timestamp, now),
		})
	}
	return views
}

// ChangeLog returns the newest entries first. limit <= 0 returns all.
func (s *Service) ChangeLog(ctx context.Context, locale string, limit int) ([]ChangeLogView, error) {
	entries, err := s.store.ListChangeLog(ctx, limit)
	if err != nil {
		return nil, err
	}
	return s.describe(locale, entries), nil
}

// History returns one card with its own change log, newest first.
func (s *Service) History(ctx context.Context, locale, functionalityID string) (store.Functionality, []ChangeLogView, error) {
	f, err := s.store.GetFunctionality(ctx, functionalityID)
	if err != nil {
		return store.Functionality{}, nil, err
	}
	entries, err := s.store.ListChangeLogFor(ctx, functionalityID)
	if err != nil {
		return store.Functionality{}, nil, err
	}
	return f, s.describe(locale, entries), nil
}

// Snapshot serves the live feed: cards by creation time, log newest first.
func (s *Service) Snapshot(ctx context.Context, topic string) (any, error) {
	switch topic {
	case feed.TopicFunctionalities:
		return s.ListFunctionalities(ctx)
	case feed.TopicChangeLog:
		entries, err := s.store.ListChangeLog(ctx, 0)
		if err != nil {
			return nil, err
		}
		if entries == nil {
			entries = []store.ChangeLogEntry{}
		}
		return entries, nil
	}
	return nil, fmt.Errorf("unknown topic %q", topic)
}

func (s *Service) Explanation(locale string) i18n.Explanation {
	return s.catalog.Explanation(locale)
}

func (s *Service) Search(ctx context.Context, text string, filter search.ResultType, limit, offset int) search.Response {
	q := search.Query{Text: text, FilterType: filter, Limit: limit, Offset: offset}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}
	}
	return s.search.Search(ctx, q)
}

func (s *Service) Export(ctx context.Context, format export.Format, locale string) (*export.Result, error) {
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, CodeExportUnavailable, "Export not configured", nil)
	}
	return s.exporter.Export(ctx, export.Request{Format: format, Locale: locale})
}

func (s *Service) Archive(ctx context.Context) (export.ArchiveInfo, error) {
	if s.archiver == nil {
		return export.ArchiveInfo{}, export.ErrArchiveUnavailable
	}
	info, err := s.archiver.Archive(ctx)
	if err != nil {
		s.logger.WithError(err).Error("archive failed")
		return export.ArchiveInfo{}, err
	}
	return info, nil
}
