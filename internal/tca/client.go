// Package tca is a client for the similarity-checking service's submission
// API (§4.3 of the specification): EULA acceptance, submission creation,
// text upload, report generation and source retrieval. Named after the
// vendor API the original tool integrated with.
package tca

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	backoff "gopkg.in/cenkalti/backoff.v1"

	"github.com/copypatrol/copypatrol-go/internal/models"
	"github.com/copypatrol/copypatrol-go/internal/obsv"
	"github.com/copypatrol/copypatrol-go/internal/resilience"
)

// Client talks to the similarity service's REST API over HTTPS.
type Client struct {
	baseURL    string
	httpClient *http.Client
	key        string
	logger     zerolog.Logger
	breaker    *resilience.CircuitBreaker
}

// NewClient builds a Client against domain, authenticating with key. The
// EULA is accepted on construction, matching the vendor API's requirement
// that every integration accept the latest EULA before submitting content.
func NewClient(ctx context.Context, domain, key string, logger zerolog.Logger) (*Client, error) {
	c := &Client{
		baseURL:    fmt.Sprintf("https://%s/api/v1", domain),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		key:        key,
		logger:     logger.With().Str("component", "tca").Logger(),
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "similarity-service",
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		}, logger),
	}
	version, err := c.latestEULAVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch eula version: %w", err)
	}
	if err := c.acceptEULA(ctx, version); err != nil {
		return nil, fmt.Errorf("accept eula: %w", err)
	}
	return c, nil
}

func (c *Client) latestEULAVersion(ctx context.Context) (string, error) {
	var out struct {
		Version string `json:"version"`
	}
	if err := c.do(ctx, "GET", "/eula/latest?lang=en-US", nil, &out); err != nil {
		return "", err
	}
	return out.Version, nil
}

func (c *Client) acceptEULA(ctx context.Context, version string) error {
	body := map[string]any{
		"version":            version,
		"user_id":            ":system:",
		"accepted_timestamp": time.Now().UTC().Format(time.RFC3339),
		"language":           "en-US",
	}
	return c.do(ctx, "POST", "/eula/"+version+"/accept", body, nil)
}

// CreateSubmission creates a submission for a revision and returns its id
// (§4.3 step 1).
func (c *Client) CreateSubmission(ctx context.Context, site, title, owner string, timestamp time.Time) (uuid.UUID, error) {
	c.logger.Debug().Str("title", title).Msg("creating submission")
	body := map[string]any{
		"owner":     owner,
		"title":     title,
		"submitter": ":system:",
		"metadata": map[string]any{
			"group": map[string]any{
				"id":   site,
				"name": site,
				"type": "FOLDER",
			},
			"original_submitted_time": timestamp.UTC().Format(time.RFC3339),
		},
		"owner_default_permission_set":     "USER",
		"submitter_default_permission_set": "ADMINISTRATOR",
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, "POST", "/submissions", body, &out); err != nil {
		obsv.TCARequestErrorsTotal.WithLabelValues("create_submission").Inc()
		return uuid.UUID{}, err
	}
	obsv.SubmissionsCreatedTotal.WithLabelValues().Inc()
	return uuid.Parse(out.ID)
}

// UploadSubmission uploads the added-prose text for a submission (§4.3 step 2).
func (c *Client) UploadSubmission(ctx context.Context, sid uuid.UUID, text string) error {
	url := fmt.Sprintf("%s/submissions/%s/original", c.baseURL, sid)
	return c.breaker.Call(func() error {
		return c.retry(ctx, func() error {
			req, err := http.NewRequestWithContext(ctx, "PUT", url, bytes.NewBufferString(text))
			if err != nil {
				return backoff.Permanent(err)
			}
			req.Header.Set("Content-Type", "binary/octet-stream")
			req.Header.Set("Content-Disposition", fmt.Sprintf("inline; filename='%s.txt'", sid))
			req.Header.Set("Authorization", "Bearer "+c.key)
			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return statusError(resp)
		})
	})
}

// SubmissionInfo fetches a submission's current status (§4.3 step 3,
// used by the pipeline's GenerateReports, in the "reports" action, to
// decide when to move UPLOADED -> PENDING).
func (c *Client) SubmissionInfo(ctx context.Context, sid uuid.UUID) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, "GET", "/submissions/"+sid.String(), nil, &out); err != nil {
		obsv.TCARequestErrorsTotal.WithLabelValues("submission_info").Inc()
		return nil, err
	}
	return out, nil
}

// GenerateReport requests a similarity report for a submission (§4.3 step 4).
func (c *Client) GenerateReport(ctx context.Context, sid uuid.UUID, priority string) error {
	if priority == "" {
		priority = "LOW"
	}
	body := map[string]any{
		"generation_settings": map[string]any{
			"search_repositories": []string{
				"INTERNET", "SUBMITTED_WORK", "PUBLICATION", "CROSSREF", "CROSSREF_POSTED_CONTENT",
			},
			"priority": priority,
		},
	}
	return c.do(ctx, "PUT", "/submissions/"+sid.String()+"/similarity", body, nil)
}

type reportInfo struct {
	Status                        string `json:"status"`
	TopSourceLargestMatchedWords  int    `json:"top_source_largest_matched_word_count"`
}

// ReportSources returns the sources found in a submission's similarity
// report, nil if the report isn't complete yet, or an empty slice if it
// completed with no meaningful match (§4.3 step 5).
func (c *Client) ReportSources(ctx context.Context, sid uuid.UUID) ([]models.Source, error) {
	var info reportInfo
	if err := c.do(ctx, "GET", "/submissions/"+sid.String()+"/similarity", nil, &info); err != nil {
		obsv.TCARequestErrorsTotal.WithLabelValues("report_info").Inc()
		return nil, err
	}
	if info.Status != "COMPLETE" {
		return nil, nil
	}
	if info.TopSourceLargestMatchedWords == 0 {
		return []models.Source{}, nil
	}

	var data struct {
		MatchAggregates []struct {
			IsExcluded   bool `json:"is_excluded"`
			MatchSources []struct {
				IsExcluded  bool    `json:"is_excluded"`
				Description string  `json:"description"`
				Link        *string `json:"link"`
				Percent     float64 `json:"percent"`
			} `json:"match_sources"`
		} `json:"match_aggregates"`
	}
	if err := c.do(ctx, "GET", "/submissions/"+sid.String()+"/similarity/view/sources", nil, &data); err != nil {
		obsv.TCARequestErrorsTotal.WithLabelValues("report_sources").Inc()
		return nil, err
	}

	var sources []models.Source
	for _, agg := range data.MatchAggregates {
		if agg.IsExcluded {
			continue
		}
		for _, src := range agg.MatchSources {
			if src.IsExcluded {
				continue
			}
			sources = append(sources, models.Source{
				SubmissionID: sid.String(),
				Description:  src.Description,
				URL:          src.Link,
				Percent:      src.Percent,
			})
		}
	}
	return sources, nil
}

// do performs one JSON request/response round trip with retry on 429/5xx.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(data)
	}

	var respBody []byte
	err := c.breaker.Call(func() error {
		return c.retry(ctx, func() error {
			req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
			if err != nil {
				return backoff.Permanent(err)
			}
			req.Header.Set("Authorization", "Bearer "+c.key)
			if body != nil {
				req.Header.Set("Content-Type", "application/json")
			}
			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if err := statusError(resp); err != nil {
				return err
			}
			respBody, err = io.ReadAll(resp.Body)
			return err
		})
	})
	if err != nil {
		return err
	}
	if out != nil && len(respBody) > 0 {
		return json.Unmarshal(respBody, out)
	}
	return nil
}

// retry runs fn with exponential backoff for up to 30 seconds. statusError
// marks 429 and 5xx responses as retryable and other error statuses as
// permanent.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second
	return backoff.Retry(func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return fn()
	}, b)
}

type retryableStatus struct {
	status int
}

func (e *retryableStatus) Error() string {
	return fmt.Sprintf("similarity service returned status %d", e.status)
}

func statusError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	err := &retryableStatus{status: resp.StatusCode}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return err
	}
	return backoff.Permanent(err)
}
