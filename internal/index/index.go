// Package index mirrors a Diff into Elasticsearch once it reaches the
// READY state, so the human review queue can search and filter it by
// source, percent match and language. It is a domain-stack addition, not
// part of the reviewed diff lifecycle: indexing runs after the status
// transition commits and never rolls it back on failure.
package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/rs/zerolog"

	"github.com/copypatrol/copypatrol-go/internal/models"
	"github.com/copypatrol/copypatrol-go/internal/obsv"
)

const indexName = "copypatrol-diffs"

// Document is the Elasticsearch representation of a READY diff.
type Document struct {
	RevID        uint64    `json:"rev_id"`
	Project      string    `json:"project"`
	Lang         string    `json:"lang"`
	PageTitle    string    `json:"page_title"`
	RevTimestamp time.Time `json:"rev_timestamp"`
	RevUserText  string    `json:"rev_user_text"`
	SubmissionID string    `json:"submission_id"`
	MaxPercent   float64   `json:"max_percent"`
	SourceURLs   []string  `json:"source_urls"`
}

// Indexer wraps the official Elasticsearch client with the single
// operation the pipeline needs: indexing a diff document.
type Indexer struct {
	client *elasticsearch.Client
	logger zerolog.Logger
}

// NewIndexer builds an Indexer against the cluster at url.
func NewIndexer(url string, logger zerolog.Logger) (*Indexer, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     []string{url},
		RetryOnStatus: []int{502, 503, 504, 429},
		MaxRetries:    3,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	idx := &Indexer{client: client, logger: logger.With().Str("component", "index").Logger()}
	if err := idx.ensureTemplate(context.Background()); err != nil {
		logger.Warn().Err(err).Msg("failed to install index template")
	}
	return idx, nil
}

// ensureTemplate installs the index mapping once at startup, matching the
// teacher's SetupILM approach of a date-agnostic single index (diffs are
// low enough volume that date-partitioned indices aren't worth the
// operational overhead retention policies bring).
func (idx *Indexer) ensureTemplate(ctx context.Context) error {
	template := map[string]any{
		"index_patterns": []string{indexName},
		"template": map[string]any{
			"mappings": map[string]any{
				"properties": map[string]any{
					"rev_id":        map[string]any{"type": "long"},
					"project":       map[string]any{"type": "keyword"},
					"lang":          map[string]any{"type": "keyword"},
					"page_title":    map[string]any{"type": "text"},
					"rev_timestamp": map[string]any{"type": "date"},
					"rev_user_text": map[string]any{"type": "keyword"},
					"submission_id": map[string]any{"type": "keyword"},
					"max_percent":   map[string]any{"type": "float"},
					"source_urls":   map[string]any{"type": "keyword"},
				},
			},
		},
	}
	body, err := json.Marshal(template)
	if err != nil {
		return err
	}
	req := esapi.IndicesPutIndexTemplateRequest{Name: "copypatrol-diffs", Body: bytes.NewReader(body)}
	res, err := req.Do(ctx, idx.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 400 {
		return fmt.Errorf("put index template: status %s", res.Status())
	}
	return nil
}

// Index sends d (now READY, with Sources populated) to Elasticsearch.
// Failure is reported to the caller but is expected to be logged and
// swallowed, not treated as a reason to undo the READY transition.
func (idx *Indexer) Index(ctx context.Context, d *models.Diff) error {
	doc := toDocument(d)

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: fmt.Sprintf("%d", doc.RevID),
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, idx.client)
	if err != nil {
		obsv.IndexErrorsTotal.WithLabelValues().Inc()
		return fmt.Errorf("index request: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		obsv.IndexErrorsTotal.WithLabelValues().Inc()
		return fmt.Errorf("index failed: status %s", res.Status())
	}
	return nil
}

func toDocument(d *models.Diff) Document {
	doc := Document{
		RevID:        d.RevID,
		Project:      d.Project,
		Lang:         d.Lang,
		PageTitle:    d.PageTitle,
		RevTimestamp: d.RevTimestamp,
		RevUserText:  d.RevUserText,
	}
	if d.SubmissionID != nil {
		doc.SubmissionID = *d.SubmissionID
	}
	for _, src := range d.Sources {
		if src.Percent > doc.MaxPercent {
			doc.MaxPercent = src.Percent
		}
		if src.URL != nil {
			doc.SourceURLs = append(doc.SourceURLs, *src.URL)
		}
	}
	return doc
}
