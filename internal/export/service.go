package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"moscowboard/api/internal/board"
	"moscowboard/api/internal/i18n"
	"moscowboard/api/internal/store"
)

// DataStore defines the reads an export needs.
type DataStore interface {
	ListFunctionalities(ctx context.Context) ([]store.Functionality, error)
	ListChangeLog(ctx context.Context, limit int) ([]store.ChangeLogEntry, error)
}

type pdfRenderer func(ctx context.Context, html string) ([]byte, error)

// Service renders board exports
type Service struct {
	store   DataStore
	catalog *i18n.Catalog
	pdf     pdfRenderer
	now     func() time.Time
}

func NewService(store DataStore, catalog *i18n.Catalog) *Service {
	return &Service{store: store, catalog: catalog, pdf: renderPDF, now: time.Now}
}

// PDFAvailable reports whether PDF exports can be produced on this host.
func (s *Service) PDFAvailable() bool {
	return chromiumAvailable()
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	locale := req.Locale
	if locale == "" {
		locale = s.catalog.DefaultLocale()
	}

	functionalities, err := s.store.ListFunctionalities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list functionalities: %w", err)
	}
	entries, err := s.store.ListChangeLog(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("list change log: %w", err)
	}

	now := s.now().UTC()
	base := "moscow-board-" + now.Format("20060102-150405")

	switch req.Format {
	case FormatJSON, "":
		data, err := json.MarshalIndent(Document{
			GeneratedAt: now,
			Locale:      locale,
			Columns:     board.GroupByPriority(functionalities, func(f store.Functionality) board.Priority { return f.Priority }),
			ChangeLog:   entries,
		}, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode board: %w", err)
		}
		return &Result{Data: data, Filename: base + ".json", MimeType: "application/json"}, nil
	case FormatHTML, FormatPDF:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}

	title := s.catalog.T(locale, "export.title", nil)
	html, err := RenderBoardHTML(s.templateData(locale, title, now, functionalities, entries))
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	if req.Format == FormatHTML {
		return &Result{Data: []byte(html), Filename: base + ".html", MimeType: "text/html; charset=utf-8"}, nil
	}

	pdf, err := s.pdf(ctx, html)
	if err != nil {
		return nil, err
	}
	return &Result{Data: pdf, Filename: sanitizeFilename(title) + "-" + now.Format("20060102") + ".pdf", MimeType: "application/pdf"}, nil
}

func (s *Service) templateData(locale, title string, now time.Time, functionalities []store.Functionality, entries []store.ChangeLogEntry) TemplateData {
	data := TemplateData{
		Lang:        locale,
		Title:       title,
		Generated:   s.catalog.T(locale, "export.generatedAt", map[string]string{"time": now.Format("2006-01-02 15:04 MST")}),
		LogTitle:    s.catalog.T(locale, "changelog.title", nil),
		EmptyColumn: s.catalog.T(locale, "export.emptyColumn", nil),
		EmptyLog:    s.catalog.T(locale, "changelog.empty", nil),
	}

	columns := board.GroupByPriority(functionalities, func(f store.Functionality) board.Priority { return f.Priority })
	for _, column := range columns {
		tc := TemplateColumn{
			Priority: string(column.Priority),
			Label:    s.catalog.PriorityLabel(locale, column.Priority),
			Count:    column.Count,
		}
		for _, f := range column.Cards {
			tc.Cards = append(tc.Cards, TemplateCard{
				Text:          f.Text,
				Justification: f.Justification,
				ProposedBy:    s.catalog.T(locale, "export.proposedBy", map[string]string{"username": f.ProposerUsername}),
			})
		}
		data.Columns = append(data.Columns, tc)
	}

	for _, e := range entries {
		change := i18n.Change{
			Type:          e.ChangeType,
			Username:      e.Username,
			Text:          e.FunctionalityText,
			From:          e.FromPriority,
			To:            e.ToPriority,
			Justification: e.Justification,
		}
		data.ChangeLog = append(data.ChangeLog, TemplateEntry{
			Type:        string(e.ChangeType),
			Description: s.catalog.Describe(locale, change),
			Reason:      s.catalog.Reason(locale, change),
			When:        s.catalog.RelativeTime(locale, e.Timestamp, now),
		})
	}
	return data
}
