package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moscowboard/api/internal/board"
	"moscowboard/api/internal/i18n"
	"moscowboard/api/internal/logging"
	"moscowboard/api/internal/store"
)

var fixedNow = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

type fakeStore struct {
	functionalities []store.Functionality
	entries         []store.ChangeLogEntry
	err             error
}

func (f fakeStore) ListFunctionalities(context.Context) ([]store.Functionality, error) {
	return f.functionalities, f.err
}

func (f fakeStore) ListChangeLog(context.Context, int) ([]store.ChangeLogEntry, error) {
	return f.entries, f.err
}

func sampleStore() fakeStore {
	return fakeStore{
		functionalities: []store.Functionality{
			{ID: "fn_1", Text: "Offline mode", Justification: "field teams", ProposerUsername: "ana", Priority: board.Must},
			{ID: "fn_2", Text: "<script>alert(1)</script>", Justification: "xss probe", ProposerUsername: "eve", Priority: board.Wont},
		},
		entries: []store.ChangeLogEntry{
			{ID: "log_2", FunctionalityID: "fn_1", FunctionalityText: "Offline mode", Username: "luis", ChangeType: board.ChangeMoved,
				FromPriority: board.Should, ToPriority: board.Must, Justification: "customers", Timestamp: fixedNow.Add(-5 * time.Minute)},
			{ID: "log_1", FunctionalityID: "fn_1", FunctionalityText: "Offline mode", Username: "ana", ChangeType: board.ChangeCreated,
				ToPriority: board.Should, Justification: "field teams", Timestamp: fixedNow.Add(-2 * time.Hour)},
		},
	}
}

func newTestService(t *testing.T, ds DataStore) *Service {
	t.Helper()
	catalog, err := i18n.Load(i18n.English)
	require.NoError(t, err)
	svc := NewService(ds, catalog)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		raw     string
		want    Format
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{" html ", FormatHTML, false},
		{"pdf", FormatPDF, false},
		{"docx", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.raw)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnsupportedFormat)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestExportJSON(t *testing.T) {
	svc := newTestService(t, sampleStore())
	result, err := svc.Export(context.Background(), Request{Format: FormatJSON, Locale: "es"})
	require.NoError(t, err)
	assert.Equal(t, "application/json", result.MimeType)
	assert.Equal(t, "moscow-board-20260504-103000.json", result.Filename)

	var doc struct {
		Locale  string `json:"locale"`
		Columns []struct {
			Priority string `json:"priority"`
			Count    int    `json:"count"`
		} `json:"columns"`
		ChangeLog []map[string]any `json:"changeLog"`
	}
	require.NoError(t, json.Unmarshal(result.Data, &doc))
	assert.Equal(t, "es", doc.Locale)
	require.Len(t, doc.Columns, 4)
	assert.Equal(t, "must", doc.Columns[0].Priority)
	assert.Equal(t, 1, doc.Columns[0].Count)
	assert.Equal(t, 0, doc.Columns[1].Count)
	assert.Equal(t, 1, doc.Columns[3].Count)
	assert.Len(t, doc.ChangeLog, 2)
}

func TestExportHTMLIsLocalizedAndEscaped(t *testing.T) {
	svc := newTestService(t, sampleStore())
	result, err := svc.Export(context.Background(), Request{Format: FormatHTML, Locale: "en"})
	require.NoError(t, err)
	html := string(result.Data)

	assert.Contains(t, html, "Must Have (1)")
	assert.Contains(t, html, "Should Have (0)")
	assert.Contains(t, html, `luis moved &#34;Offline mode&#34; from Should Have to Must Have`)
	assert.Contains(t, html, "Reason: customers")
	assert.Contains(t, html, "5 minutes ago")
	assert.Contains(t, html, "No functionalities.")
	assert.NotContains(t, html, "<script>alert(1)</script>")
}

func TestExportPDFUsesRenderer(t *testing.T) {
	svc := newTestService(t, sampleStore())
	var rendered string
	svc.pdf = func(_ context.Context, html string) ([]byte, error) {
		rendered = html
		return []byte("%PDF-1.4"), nil
	}

	result, err := svc.Export(context.Background(), Request{Format: FormatPDF})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.MimeType)
	assert.Equal(t, "MoSCoW-Board-export-20260504.pdf", result.Filename)
	assert.True(t, strings.HasPrefix(string(result.Data), "%PDF"))
	assert.Contains(t, rendered, "<h1>MoSCoW Board export</h1>")
}

func TestExportPDFMissingChromium(t *testing.T) {
	svc := newTestService(t, sampleStore())
	svc.pdf = func(context.Context, string) ([]byte, error) {
		return nil, ErrPDFDependencyMissing
	}
	_, err := svc.Export(context.Background(), Request{Format: FormatPDF})
	assert.ErrorIs(t, err, ErrPDFDependencyMissing)
}

func TestExportStoreError(t *testing.T) {
	svc := newTestService(t, fakeStore{err: errors.New("db down")})
	_, err := svc.Export(context.Background(), Request{Format: FormatHTML})
	assert.ErrorContains(t, err, "db down")
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "Q3-roadmap_v2", sanitizeFilename("Q3 roadmap_v2!"))
	assert.Equal(t, "board", sanitizeFilename("¿?"))
	assert.Len(t, sanitizeFilename(strings.Repeat("a", 80)), 50)
}

func TestPercentEncodeForDataURL(t *testing.T) {
	assert.Equal(t, "a%20b%3C%2F%3E%C3%B1", percentEncodeForDataURL("a b</>ñ"))
}

type fakeObjects struct {
	exists  bool
	made    []string
	putKey  string
	putBody []byte
	putErr  error
}

func (f *fakeObjects) BucketExists(context.Context, string) (bool, error) { return f.exists, nil }

func (f *fakeObjects) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.made = append(f.made, bucket)
	f.exists = true
	return nil
}

func (f *fakeObjects) PutObject(_ context.Context, _, key string, reader io.Reader, size int64, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return minio.UploadInfo{}, err
	}
	f.putKey = key
	f.putBody = buf.Bytes()
	return minio.UploadInfo{Key: key, Size: size, ETag: "etag-1"}, nil
}

func TestArchiverUploadsJSONExport(t *testing.T) {
	objects := &fakeObjects{}
	archiver := NewArchiver(objects, "moscow-archive", newTestService(t, sampleStore()), logging.Discard())
	archiver.now = func() time.Time { return fixedNow }

	info, err := archiver.Archive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"moscow-archive"}, objects.made)
	assert.Equal(t, "boards/2026/05/04/board-20260504T103000Z.json", info.Key)
	assert.Equal(t, info.Key, objects.putKey)
	assert.Equal(t, int64(len(objects.putBody)), info.Size)
	assert.True(t, json.Valid(objects.putBody))

	_, err = archiver.Archive(context.Background())
	require.NoError(t, err)
	assert.Len(t, objects.made, 1)
}

func TestArchiverUploadFailure(t *testing.T) {
	objects := &fakeObjects{exists: true, putErr: errors.New("access denied")}
	archiver := NewArchiver(objects, "moscow-archive", newTestService(t, sampleStore()), logging.Discard())

	_, err := archiver.Archive(context.Background())
	assert.ErrorContains(t, err, "access denied")
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	_, err := NewScheduler("every tuesday", nil, logging.Discard())
	assert.Error(t, err)

	s, err := NewScheduler("@daily", nil, logging.Discard())
	require.NoError(t, err)
	assert.True(t, s.Next().IsZero())
}
