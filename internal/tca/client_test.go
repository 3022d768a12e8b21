package tca

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/copypatrol/copypatrol-go/internal/resilience"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	return &Client{
		baseURL:    srv.URL,
		httpClient: srv.Client(),
		key:        "test-key",
		logger:     zerolog.Nop(),
		breaker:    resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: t.Name()}, zerolog.Nop()),
	}
}

func TestCreateSubmission(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/submissions", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "11111111-1111-1111-1111-111111111111"})
	})
	c := newTestClient(t, srv)

	id, err := c.CreateSubmission(context.Background(), "en.wikipedia.org", "Revision 1 of Test", ":system:", time.Now())
	require.NoError(t, err)
	require.Equal(t, "11111111-1111-1111-1111-111111111111", id.String())
}

func TestReportSources_NotComplete(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "PENDING"})
	})
	c := newTestClient(t, srv)

	sources, err := c.ReportSources(context.Background(), mustUUID())
	require.NoError(t, err)
	require.Nil(t, sources)
}

func TestReportSources_NoMatches(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "COMPLETE", "top_source_largest_matched_word_count": 0,
		})
	})
	c := newTestClient(t, srv)

	sources, err := c.ReportSources(context.Background(), mustUUID())
	require.NoError(t, err)
	require.Empty(t, sources)
	require.NotNil(t, sources)
}

func TestReportSources_ExcludesFlaggedSources(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/similarity") {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "COMPLETE", "top_source_largest_matched_word_count": 50,
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"match_aggregates": []map[string]any{
				{
					"is_excluded": false,
					"match_sources": []map[string]any{
						{"is_excluded": false, "description": "Example Site", "link": "https://example.com", "percent": 80.0},
						{"is_excluded": true, "description": "Excluded Site", "percent": 99.0},
					},
				},
				{
					"is_excluded": true,
					"match_sources": []map[string]any{
						{"is_excluded": false, "description": "Whole Aggregate Excluded", "percent": 50.0},
					},
				},
			},
		})
	})
	c := newTestClient(t, srv)

	sources, err := c.ReportSources(context.Background(), mustUUID())
	require.NoError(t, err)
	require.Len(t, sources, 1)
	require.Equal(t, "Example Site", sources[0].Description)
}

func mustUUID() uuid.UUID { return uuid.New() }
