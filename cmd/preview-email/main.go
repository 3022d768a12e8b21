// Quick preview tool — renders the digest email with mock data and serves it.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/copypatrol/copypatrol-go/internal/digest"
	"github.com/copypatrol/copypatrol-go/internal/models"
)

func mockSummary() *digest.Summary {
	now := time.Now()
	mkURL := func(s string) *string { return &s }

	return &digest.Summary{
		PeriodStart: now.Add(-24 * time.Hour),
		PeriodEnd:   now,
		Ready: []*models.Diff{
			{
				Project: "wikipedia", Lang: "en", PageTitle: "2025_Turkish_earthquake",
				RevID: 1234567, RevUserText: "SomeEditor", RevTimestamp: now.Add(-3 * time.Hour),
				Sources: []models.Source{
					{Description: "news site", URL: mkURL("https://example-news.test/earthquake"), Percent: 91.4},
				},
			},
			{
				Project: "wikipedia", Lang: "en", PageTitle: "Pope_Francis",
				RevID: 1234999, RevUserText: "AnotherEditor", RevTimestamp: now.Add(-5 * time.Hour),
				Sources: []models.Source{
					{Description: "biography page", URL: mkURL("https://example-bio.test/francis"), Percent: 68.0},
				},
			},
			{
				Project: "wikipedia", Lang: "de", PageTitle: "OpenAI",
				RevID: 1235500, RevUserText: "DritterEditor", RevTimestamp: now.Add(-8 * time.Hour),
				Sources: []models.Source{
					{Description: "press release", URL: mkURL("https://example-press.test/openai"), Percent: 87.28},
				},
			},
		},
	}
}

func main() {
	summary := mockSummary()
	_, html, err := digest.RenderDigestEmail(summary, "https://copypatrol.example/queue")
	if err != nil {
		fmt.Fprintf(os.Stderr, "render error: %v\n", err)
		os.Exit(1)
	}

	empty := &digest.Summary{PeriodStart: time.Now().Add(-24 * time.Hour), PeriodEnd: time.Now()}
	_, emptyHTML, err := digest.RenderDigestEmail(empty, "https://copypatrol.example/queue")
	if err != nil {
		fmt.Fprintf(os.Stderr, "render empty error: %v\n", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, html)
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, emptyHTML)
	})

	fmt.Println("digest preview server running:")
	fmt.Println("   With diffs → http://localhost:9999")
	fmt.Println("   Empty      → http://localhost:9999/empty")
	if err := http.ListenAndServe(":9999", mux); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
