package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

var boardTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
	}

	templateContent, err := templateFS.ReadFile("templates/board.html")
	if err != nil {
		boardTemplate = template.Must(template.New("board").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}
	boardTemplate = template.Must(template.New("board").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds the localized board for rendering.
type TemplateData struct {
	Lang        string
	Title       string
	Generated   string
	LogTitle    string
	EmptyColumn string
	EmptyLog    string
	Columns     []TemplateColumn
	ChangeLog   []TemplateEntry
}

type TemplateColumn struct {
	Priority string
	Label    string
	Count    int
	Cards    []TemplateCard
}

type TemplateCard struct {
	Text          string
	Justification string
	ProposedBy    string
}

type TemplateEntry struct {
	Type        string
	Description string
	Reason      string
	When        string
}

// RenderBoardHTML renders the board template with provided data
func RenderBoardHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := boardTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html lang="{{.Lang}}">
<head><meta charset="UTF-8"><title>{{.Title}}</title></head>
<body>
  <h1>{{.Title}}</h1>
  <p>{{.Generated}}</p>
  {{range .Columns}}<h2>{{.Label}} ({{.Count}})</h2><ul>{{range .Cards}}<li>{{.Text}}</li>{{end}}</ul>{{end}}
  <h2>{{.LogTitle}}</h2>
  <ul>{{range .ChangeLog}}<li>{{.Description}} ({{.When}})</li>{{end}}</ul>
</body>
</html>`
