package digest

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// EmailData is the template context for rendering one digest email.
type EmailData struct {
	DateRange    string
	Ready        []readyRow
	TotalReady   int
	DashboardURL string
	Year         int
}

type readyRow struct {
	PageTitle   string
	Lang        string
	RevID       uint64
	MaxPercent  float64
	SourceCount int
	RevUserText string
}

// RenderDigestEmail renders the HTML body and subject line for summary.
func RenderDigestEmail(summary *Summary, dashboardURL string) (subject, htmlBody string, err error) {
	td := EmailData{
		DateRange:    fmt.Sprintf("%s – %s", summary.PeriodStart.Format("Jan 2"), summary.PeriodEnd.Format("Jan 2, 2006")),
		TotalReady:   len(summary.Ready),
		DashboardURL: dashboardURL,
		Year:         summary.PeriodEnd.Year(),
	}
	for _, d := range summary.Ready {
		var maxPct float64
		for _, src := range d.Sources {
			if src.Percent > maxPct {
				maxPct = src.Percent
			}
		}
		td.Ready = append(td.Ready, readyRow{
			PageTitle:   d.PageTitle,
			Lang:        d.Lang,
			RevID:       d.RevID,
			MaxPercent:  maxPct,
			SourceCount: len(d.Sources),
			RevUserText: d.RevUserText,
		})
	}

	subject = buildSubjectLine(td.TotalReady)

	tmpl, err := template.New("digest").Funcs(templateFuncs()).Parse(digestTemplate)
	if err != nil {
		return "", "", fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, td); err != nil {
		return "", "", fmt.Errorf("render template: %w", err)
	}
	return subject, buf.String(), nil
}

func buildSubjectLine(count int) string {
	if count == 0 {
		return "copypatrol daily digest: nothing new"
	}
	if count == 1 {
		return "copypatrol daily digest: 1 diff ready for review"
	}
	return fmt.Sprintf("copypatrol daily digest: %d diffs ready for review", count)
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatPercent": func(p float64) string {
			return fmt.Sprintf("%.0f%%", p)
		},
		"now": func() string {
			return time.Now().Format(time.RFC1123)
		},
	}
}

const digestTemplate = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; max-width: 640px; margin: 0 auto;">
  <h2>copypatrol daily digest</h2>
  <p>{{.DateRange}} &mdash; {{.TotalReady}} diff(s) ready for review</p>
  {{if .Ready}}
  <table style="width:100%; border-collapse: collapse;">
    <tr>
      <th align="left">Page</th>
      <th align="left">Lang</th>
      <th align="left">Editor</th>
      <th align="left">Top match</th>
      <th align="left">Sources</th>
    </tr>
    {{range .Ready}}
    <tr>
      <td>{{.PageTitle}}</td>
      <td>{{.Lang}}</td>
      <td>{{.RevUserText}}</td>
      <td>{{formatPercent .MaxPercent}}</td>
      <td>{{.SourceCount}}</td>
    </tr>
    {{end}}
  </table>
  {{if .DashboardURL}}<p><a href="{{.DashboardURL}}">Open review queue</a></p>{{end}}
  {{else}}
  <p>No diffs reached the review queue in this period.</p>
  {{end}}
  <p style="color:#888; font-size: 0.8em;">&copy; {{.Year}} copypatrol</p>
</body>
</html>`
