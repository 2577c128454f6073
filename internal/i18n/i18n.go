// Package i18n renders user-facing text: priority labels, notifications,
// change-log descriptions and relative timestamps in English or Spanish.
package i18n

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"moscowboard/api/internal/board"
)

//go:embed locales/*.yaml
var localeFS embed.FS

const (
	English = "en"
	Spanish = "es"
)

// Variants understood by the notification renderer on the client.
const (
	VariantDefault     = "default"
	VariantDestructive = "destructive"
)

type Notification struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Variant     string `json:"variant"`
}

type Catalog struct {
	defaultLocale string
	messages      map[string]map[string]string
	supported     []string
	matcher       language.Matcher
}

// Load parses the embedded catalogs. An unknown default locale falls back to English.
func Load(defaultLocale string) (*Catalog, error) {
	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}

	c := &Catalog{messages: make(map[string]map[string]string)}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != ".yaml" {
			continue
		}
		raw, err := localeFS.ReadFile("locales/" + name)
		if err != nil {
			return nil, fmt.Errorf("read locale %s: %w", name, err)
		}
		var tree map[string]any
		if err := yaml.Unmarshal(raw, &tree); err != nil {
			return nil, fmt.Errorf("parse locale %s: %w", name, err)
		}
		flat := make(map[string]string)
		flatten("", tree, flat)
		c.messages[strings.TrimSuffix(name, ".yaml")] = flat
	}

	// English first so the matcher prefers it on ties.
	c.supported = make([]string, 0, len(c.messages))
	for locale := range c.messages {
		c.supported = append(c.supported, locale)
	}
	sort.Slice(c.supported, func(i, j int) bool {
		if c.supported[i] == English {
			return true
		}
		if c.supported[j] == English {
			return false
		}
		return c.supported[i] < c.supported[j]
	})
	tags := make([]language.Tag, 0, len(c.supported))
	for _, locale := range c.supported {
		tags = append(tags, language.Make(locale))
	}
	c.matcher = language.NewMatcher(tags)

	c.defaultLocale = English
	if _, ok := c.messages[defaultLocale]; ok {
		c.defaultLocale = defaultLocale
	}
	return c, nil
}

// MustLoad is Load for callers that cannot continue without translations.
func MustLoad(defaultLocale string) *Catalog {
	c, err := Load(defaultLocale)
	if err != nil {
		panic(err)
	}
	return c
}

func flatten(prefix string, node map[string]any, out map[string]string) {
	for key, value := range node {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		switch v := value.(type) {
		case map[string]any:
			flatten(full, v, out)
		case string:
			out[full] = v
		case nil:
		default:
			out[full] = fmt.Sprint(v)
		}
	}
}

func (c *Catalog) DefaultLocale() string { return c.defaultLocale }

func (c *Catalog) Supported() []string {
	return append([]string(nil), c.supported...)
}

// Resolve picks the response locale: an explicit supported locale wins,
// then the best Accept-Language match, then the default.
func (c *Catalog) Resolve(explicit, acceptLanguage string) string {
	if explicit != "" {
		if locale, ok := c.match(explicit); ok {
			return locale
		}
	}
	if acceptLanguage != "" {
		if locale, ok := c.match(acceptLanguage); ok {
			return locale
		}
	}
	return c.defaultLocale
}

func (c *Catalog) match(value string) (string, bool) {
	tags, _, err := language.ParseAcceptLanguage(value)
	if err != nil || len(tags) == 0 {
		return "", false
	}
	_, index, confidence := c.matcher.Match(tags...)
	if confidence == language.No {
		return "", false
	}
	return c.supported[index], true
}

// T looks up key in locale, then in the default locale, and returns the key
// itself when neither has it. {name} placeholders are filled from params.
func (c *Catalog) T(locale, key string, params map[string]string) string {
	message, ok := c.messages[locale][key]
	if !ok {
		message, ok = c.messages[c.defaultLocale][key]
	}
	if !ok {
		return key
	}
	if len(params) == 0 {
		return message
	}
	pairs := make([]string, 0, len(params)*2)
	for name, value := range params {
		pairs = append(pairs, "{"+name+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(message)
}

func (c *Catalog) Has(locale, key string) bool {
	_, ok := c.messages[locale][key]
	return ok
}

func (c *Catalog) PriorityLabel(locale string, p board.Priority) string {
	if !p.Valid() {
		return string(p)
	}
	return c.T(locale, "priorities."+string(p), nil)
}

// PriorityLabels returns the labels in column order.
func (c *Catalog) PriorityLabels(locale string) map[board.Priority]string {
	labels := make(map[board.Priority]string, len(board.Priorities))
	for _, p := range board.Priorities {
		labels[p] = c.PriorityLabel(locale, p)
	}
	return labels
}

// Notify renders the notification for a result code. Unknown codes render
// the generic server error text.
func (c *Catalog) Notify(locale, code, variant string, params map[string]string) Notification {
	key := "notifications." + code
	if !c.Has(locale, key+".title") && !c.Has(c.defaultLocale, key+".title") {
		key = "notifications.SERVER_ERROR"
	}
	return Notification{
		Title:       c.T(locale, key+".title", params),
		Description: c.T(locale, key+".description", params),
		Variant:     variant,
	}
}

// Explanation is the MoSCoW method summary shown next to the board.
type Explanation struct {
	Locale  string              `json:"locale"`
	Title   string              `json:"title"`
	Intro   string              `json:"intro"`
	Buckets []ExplanationBucket `json:"buckets"`
}

type ExplanationBucket struct {
	Priority    board.Priority `json:"priority"`
	Label       string         `json:"label"`
	Description string         `json:"description"`
}

func (c *Catalog) Explanation(locale string) Explanation {
	out := Explanation{
		Locale: locale,
		Title:  c.T(locale, "moscow.title", nil),
		Intro:  c.T(locale, "moscow.intro", nil),
	}
	for _, p := range board.Priorities {
		out.Buckets = append(out.Buckets, ExplanationBucket{
			Priority:    p,
			Label:       c.PriorityLabel(locale, p),
			Description: c.T(locale, "moscow."+string(p), nil),
		})
	}
	return out
}
