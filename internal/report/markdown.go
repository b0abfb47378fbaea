package report

import (
	"fmt"
	"io"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"
)

var funcs = template.FuncMap{
	"bytes": func(n int64) string { return humanize.Bytes(uint64(n)) },
	"comma": func(n any) string {
		switch v := n.(type) {
		case int:
			return humanize.Comma(int64(v))
		case int64:
			return humanize.Comma(v)
		}
		return ""
	},
	"ago":  humanize.Time,
	"ts":   func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
	"pct":  func(f float64) string { return fmt.Sprintf("%.1f%%", f) },
	"orNA": orNA,
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}

var markdown = template.Must(template.New("report").Funcs(funcs).Parse(
	`# Charging Station Report

Generated {{ ts .GeneratedAt }} from ` + "`{{ .DBPath }}`" + ` ({{ bytes .DBSize }}).

## Tables

| Table | Rows |
|-------|-----:|
{{- range .Tables }}
| {{ .Table }} | {{ comma .Rows }} |
{{- end }}

## Locations

- Locations: {{ comma .Locations }}
- With more than one revision: {{ comma .MultiRevision }}
{{- if not .LatestRevisionAt.IsZero }}
- Newest revision timestamp: {{ ts .LatestRevisionAt }} ({{ ago .LatestRevisionAt }})
{{- end }}

## Connector Groups by Speed

{{ if .Speeds -}}
| Speed | Locations | Groups | Connectors |
|-------|----------:|-------:|-----------:|
{{- range .Speeds }}
| {{ orNA .Speed }} | {{ comma .Locations }} | {{ comma .Groups }} | {{ comma .Connectors }} |
{{- end }}
{{- else -}}
No connector groups.
{{- end }}

## Availability

{{ if .Availability -}}
| Speed | Available | Total | Share | As of |
|-------|----------:|------:|------:|-------|
{{- range .Availability }}
| {{ orNA .Speed }} | {{ comma .Available }} | {{ comma .Total }} | {{ pct .Ratio }} | {{ ts .AsOf }} |
{{- end }}
{{- else -}}
No availability aggregates.
{{- end }}

## Prices

- Price groups: {{ comma .PriceGroups }} ({{ comma .UnresolvedGroups }} unresolved, {{ comma .MixedGroups }} mixed)
- Time slots: {{ comma .PriceTimeSlots }} ({{ comma .CurrentTimeSlots }} current)
`))

// WriteMarkdown renders data as Markdown.
func WriteMarkdown(w io.Writer, data *Data) error {
	return markdown.Execute(w, data)
}
