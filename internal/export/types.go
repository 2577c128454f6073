// Package export renders the board and its change log as JSON, HTML or PDF
// and archives snapshots to object storage.
package export

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"moscowboard/api/internal/board"
	"moscowboard/api/internal/store"
)

// Format represents the export output format
type Format string

const (
	FormatJSON Format = "json"
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatHTML, FormatPDF:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, raw)
	}
}

// Request contains parameters for an export operation
type Request struct {
	Format Format
	Locale string
}

// Document is the JSON export: the board grouped by priority and the full
// change log, newest first.
type Document struct {
	GeneratedAt time.Time                            `json:"generatedAt"`
	Locale      string                               `json:"locale"`
	Columns     []board.Column[store.Functionality] `json:"columns"`
	ChangeLog   []store.ChangeLogEntry               `json:"changeLog"`
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrArchiveUnavailable indicates no object storage is configured.
	ErrArchiveUnavailable = errors.New("archive storage not configured")
)
