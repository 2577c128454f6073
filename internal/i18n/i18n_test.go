package i18n

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moscowboard/api/internal/board"
)

func newCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Load(English)
	require.NoError(t, err)
	return c
}

func TestLoadFallsBackToEnglish(t *testing.T) {
	c, err := Load("fr")
	require.NoError(t, err)
	assert.Equal(t, English, c.DefaultLocale())
	assert.Equal(t, []string{English, Spanish}, c.Supported())
}

func TestCatalogsHaveSameKeys(t *testing.T) {
	c := newCatalog(t)
	for key := range c.messages[English] {
		assert.True(t, c.Has(Spanish, key), "es missing %s", key)
	}
	for key := range c.messages[Spanish] {
		assert.True(t, c.Has(English, key), "en missing %s", key)
	}
}

func TestResolve(t *testing.T) {
	c := newCatalog(t)
	tests := []struct {
		name     string
		explicit string
		accept   string
		want     string
	}{
		{"default", "", "", English},
		{"explicit wins", "es", "en-US", Spanish},
		{"accept language", "", "es-MX,es;q=0.9,en;q=0.5", Spanish},
		{"unsupported explicit falls through", "de", "es", Spanish},
		{"unsupported everything", "de", "ja", English},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Resolve(tt.explicit, tt.accept))
		})
	}
}

func TestTFillsPlaceholdersAndFallsBack(t *testing.T) {
	c := newCatalog(t)
	assert.Equal(t, "Welcome, ana!", c.T(English, "app.welcome", map[string]string{"username": "ana"}))
	assert.Equal(t, "Must Have", c.T("fr", "priorities.must", nil))
	assert.Equal(t, "missing.key", c.T(English, "missing.key", nil))
}

func TestNotify(t *testing.T) {
	c := newCatalog(t)
	n := c.Notify(Spanish, "JUSTIFICATION_REQUIRED", VariantDestructive, nil)
	assert.Equal(t, "Falta la justificación", n.Title)
	assert.Equal(t, VariantDestructive, n.Variant)

	added := c.Notify(English, "FUNCTIONALITY_ADDED", VariantDefault, map[string]string{
		"text":          "Dark mode",
		"priorityLabel": c.PriorityLabel(English, board.Should),
	})
	assert.Equal(t, `"Dark mode" was added to Should Have.`, added.Description)

	unknown := c.Notify(English, "WHAT", VariantDestructive, nil)
	assert.Equal(t, "Something went wrong", unknown.Title)
}

func TestDescribe(t *testing.T) {
	c := newCatalog(t)
	long := "Allow exporting the whole board as a PDF report"

	moved := c.Describe(English, Change{
		Type: board.ChangeMoved, Username: "ana", Text: long, From: board.Must, To: board.Could,
	})
	assert.Equal(t, `ana moved "Allow exporting the whole b..." from Must Have to Could Have`, moved)

	created := c.Describe(Spanish, Change{Type: board.ChangeCreated, Username: "luis", Text: "Modo oscuro", To: board.Wont})
	assert.Equal(t, `luis creó "Modo oscuro" en No se hará`, created)

	assert.Equal(t, `ana edited "x"`, c.Describe(English, Change{Type: board.ChangeEdited, Username: "ana", Text: "x"}))
	assert.Equal(t, `ana changed "x"`, c.Describe(English, Change{Type: "renamed", Username: "ana", Text: "x"}))
}

func TestReason(t *testing.T) {
	c := newCatalog(t)
	assert.Equal(t, "", c.Reason(English, Change{Type: board.ChangeMoved}))
	assert.Equal(t, "Reason: users asked", c.Reason(English, Change{Type: board.ChangeMoved, Justification: "users asked"}))
	assert.Equal(t, "Detalles: typo", c.Reason(Spanish, Change{Type: board.ChangeEdited, Justification: "typo"}))
}

func TestRelativeTime(t *testing.T) {
	c := newCatalog(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "3 minutes ago", c.RelativeTime(English, now.Add(-3*time.Minute), now))
	assert.Equal(t, "hace 3 minutos", c.RelativeTime(Spanish, now.Add(-3*time.Minute), now))
	assert.Equal(t, "hace 2 días", c.RelativeTime(Spanish, now.Add(-50*time.Hour), now))
	assert.Equal(t, "ahora", c.RelativeTime(Spanish, now, now))
}

func TestExplanation(t *testing.T) {
	c := newCatalog(t)
	e := c.Explanation(Spanish)
	require.Len(t, e.Buckets, 4)
	assert.Equal(t, board.Must, e.Buckets[0].Priority)
	assert.Equal(t, "Imprescindible", e.Buckets[0].Label)
	assert.NotEmpty(t, e.Intro)
}
