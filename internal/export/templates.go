package export

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

var documentTemplate = template.Must(template.New("document").Funcs(template.FuncMap{
	"date": func(t time.Time) string {
		return t.UTC().Format("Jan 2, 2006")
	},
}).Parse(pageTemplate))

// TemplateData is what the export page shows around the rendered content.
type TemplateData struct {
	Title          string
	Summary        string
	DocumentNumber int64
	Version        int
	UpdatedAt      time.Time
	ContentHTML    template.HTML
}

func RenderDocumentHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute page template: %w", err)
	}
	return buf.String(), nil
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    @page { size: letter; margin: 0.75in; }
    body { font-family: "Helvetica Neue", Arial, sans-serif; line-height: 1.6; color: #1f2328; max-width: 760px; margin: 2rem auto; }
    header { border-bottom: 1px solid #d0d7de; margin-bottom: 1.5rem; }
    header h1 { margin: 0 0 0.25rem; }
    .number { color: #57606a; font-weight: normal; }
    .summary { font-size: 1.05em; color: #424a53; }
    .meta { color: #6e7781; font-size: 0.85em; padding-bottom: 0.75rem; }
    img { max-width: 100%; }
    pre { background: #f6f8fa; padding: 1rem; overflow-x: auto; }
    blockquote { border-left: 3px solid #d0d7de; margin-left: 0; padding-left: 1rem; color: #57606a; }
    table { border-collapse: collapse; }
    td, th { border: 1px solid #d0d7de; padding: 0.25rem 0.5rem; }
    @media print { body { margin: 0; max-width: none; } }
  </style>
</head>
<body>
  <header>
    <h1>{{if .DocumentNumber}}<span class="number">#{{.DocumentNumber}}</span> {{end}}{{.Title}}</h1>
    {{if .Summary}}<p class="summary">{{.Summary}}</p>{{end}}
    <div class="meta">{{if .Version}}Revision {{.Version}}{{end}}{{if and .Version (not .UpdatedAt.IsZero)}} | {{end}}{{if not .UpdatedAt.IsZero}}Updated {{date .UpdatedAt}}{{end}}</div>
  </header>
  <main>{{.ContentHTML}}</main>
</body>
</html>`
