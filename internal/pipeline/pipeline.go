// Package pipeline implements the three periodic batch stages of the
// specification (§4.4): checking stored diffs and uploading them for
// similarity comparison, generating reports once uploads finish
// processing, and turning completed reports into READY diffs (or deleting
// diffs with nothing worth reporting). This mirrors cli.py's
// _check_changes/_generate_reports/_check_reports control flow exactly,
// just split across Go methods instead of module-level functions.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/copypatrol/copypatrol-go/internal/diffextract"
	"github.com/copypatrol/copypatrol-go/internal/models"
	"github.com/copypatrol/copypatrol-go/internal/obsv"
	"github.com/copypatrol/copypatrol-go/internal/store"
	"github.com/copypatrol/copypatrol-go/internal/wikiapi"
)

// Indexer is the subset of internal/index's Indexer the pipeline calls
// after a diff goes READY. nil disables indexing entirely.
type Indexer interface {
	Index(ctx context.Context, d *models.Diff) error
}

// SimilarityService is the subset of the similarity-service client the
// pipeline stages call. Narrowed to an interface so tests can substitute a
// fake instead of driving the real HTTP client.
type SimilarityService interface {
	CreateSubmission(ctx context.Context, site, title, owner string, timestamp time.Time) (uuid.UUID, error)
	UploadSubmission(ctx context.Context, sid uuid.UUID, text string) error
	SubmissionInfo(ctx context.Context, sid uuid.UUID) (map[string]any, error)
	GenerateReport(ctx context.Context, sid uuid.UUID, priority string) error
	ReportSources(ctx context.Context, sid uuid.UUID) ([]models.Source, error)
}

// Pipeline wires the store, the diff checker and the similarity client
// together to run the batch stages.
type Pipeline struct {
	store   *store.Store
	checker *diffextract.Checker
	tca     SimilarityService
	wiki    wikiapi.Client
	index   Indexer
	ops     *obsv.OpsFeed
	logger  zerolog.Logger
}

// New builds a Pipeline. index may be nil to disable Elasticsearch indexing.
func New(st *store.Store, checker *diffextract.Checker, tcaClient SimilarityService, wiki wikiapi.Client, logger zerolog.Logger) *Pipeline {
	return &Pipeline{store: st, checker: checker, tca: tcaClient, wiki: wiki, logger: logger.With().Str("component", "pipeline").Logger()}
}

// WithIndexer attaches an Indexer, returning p for chaining.
func (p *Pipeline) WithIndexer(idx Indexer) *Pipeline {
	p.index = idx
	return p
}

// WithOpsFeed attaches an OpsFeed that status transitions are broadcast to,
// returning p for chaining.
func (p *Pipeline) WithOpsFeed(feed *obsv.OpsFeed) *Pipeline {
	p.ops = feed
	return p
}

func (p *Pipeline) publish(domain string, revID uint64, status models.Status) {
	if p.ops == nil {
		return
	}
	p.ops.Publish(obsv.TransitionEvent{RevID: revID, Domain: domain, Status: status.String(), Timestamp: time.Now()})
}

// CheckChanges implements the "check-changes" CLI action: run the diff
// checker over every UNSUBMITTED/CREATED diff, deleting the ones with
// nothing worth reviewing, and submit/upload the rest to the similarity
// service (§4.2, §4.3 step 1-2).
func (p *Pipeline) CheckChanges(ctx context.Context, domain string) error {
	diffs, err := p.diffsByStatuses(models.StatusUnsubmitted, models.StatusCreated)
	if err != nil {
		return err
	}

	for _, d := range diffs {
		if err := p.checkOne(ctx, domain, d); err != nil {
			p.logger.Error().Err(err).Uint64("rev_id", d.RevID).Msg("check-changes failed for revision")
		}
	}
	return nil
}

func (p *Pipeline) checkOne(ctx context.Context, domain string, d *models.Diff) error {
	page := wikiapi.PageRef{Domain: domain, Namespace: d.PageNamespace, Title: d.PageTitle}

	start := time.Now()
	text, ok, err := p.checker.Check(ctx, domain, page, d.RevParentID, d.RevID)
	obsv.CheckDuration.WithLabelValues().Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("check diff: %w", err)
	}
	if !ok {
		obsv.DiffsCheckedTotal.WithLabelValues("skipped").Inc()
		return p.store.RemoveRevision(d.RevID)
	}

	if d.SubmissionID == nil {
		title, err := p.wiki.PageTitle(ctx, domain, page)
		if err != nil {
			return fmt.Errorf("page title: %w", err)
		}
		sid, err := p.tca.CreateSubmission(ctx, domain, fmt.Sprintf("Revision %d of %s", d.RevID, title), d.RevUserText, d.RevTimestamp)
		if err != nil {
			return fmt.Errorf("create submission: %w", err)
		}
		if err := p.store.SetSubmissionID(d.RevID, sid.String()); err != nil {
			return fmt.Errorf("save submission id: %w", err)
		}
		if err := p.store.UpdateStatus(d.RevID, models.StatusCreated, "", time.Now()); err != nil {
			return fmt.Errorf("save created status: %w", err)
		}
		d.SubmissionID = strPtr(sid.String())
	}

	sid, err := parseSubmissionID(*d.SubmissionID)
	if err != nil {
		return err
	}
	if err := p.tca.UploadSubmission(ctx, sid, text); err != nil {
		return fmt.Errorf("upload submission: %w", err)
	}
	obsv.DiffsCheckedTotal.WithLabelValues("submitted").Inc()
	return p.store.UpdateStatus(d.RevID, models.StatusUploaded, "", time.Now())
}

// GenerateReports implements the "reports" CLI action's first half: for
// every UPLOADED diff, ask the similarity service whether the submission
// has finished processing and, if so, request the similarity report
// (§4.3 step 3-4).
func (p *Pipeline) GenerateReports(ctx context.Context) error {
	diffs, err := p.store.DiffsByStatus(models.StatusUploaded)
	if err != nil {
		return err
	}

	for _, d := range diffs {
		if err := p.generateOne(ctx, d); err != nil {
			p.logger.Error().Err(err).Uint64("rev_id", d.RevID).Msg("generate-reports failed for revision")
		}
	}
	return nil
}

func (p *Pipeline) generateOne(ctx context.Context, d *models.Diff) error {
	sid, err := parseSubmissionID(*d.SubmissionID)
	if err != nil {
		return err
	}
	info, err := p.tca.SubmissionInfo(ctx, sid)
	if err != nil {
		return fmt.Errorf("submission info: %w", err)
	}

	status, _ := info["status"].(string)
	switch status {
	case "COMPLETE":
		if err := p.tca.GenerateReport(ctx, sid, "LOW"); err != nil {
			return fmt.Errorf("generate report: %w", err)
		}
		return p.store.UpdateStatus(d.RevID, models.StatusPending, "", time.Now())
	case "ERROR":
		errorCode, _ := info["error_code"].(string)
		p.logger.Warn().Str("error_code", errorCode).Uint64("rev_id", d.RevID).Msg("submission errored")
		if errorCode == "PROCESSING_ERROR" {
			if err := p.store.SetSubmissionID(d.RevID, ""); err != nil {
				return err
			}
			return p.store.UpdateStatus(d.RevID, models.StatusUnsubmitted, "", time.Now())
		}
		return p.store.RemoveRevision(d.RevID)
	case "PROCESSING":
		return nil
	default:
		p.logger.Warn().Str("status", status).Uint64("rev_id", d.RevID).Msg("unhandled submission status")
		return nil
	}
}

// CheckReports implements the "reports" CLI action's second half: for every
// PENDING diff, fetch the completed report's sources, drop the ones below
// the percent floor or matching the ignore list, and either mark the diff
// READY (submitting it to page triage if configured) or delete it if
// nothing survives (§4.3 step 5, §4.4, §4.5).
func (p *Pipeline) CheckReports(ctx context.Context, domain string, ignore *IgnoreList, pagetriageNamespaces []int) error {
	diffs, err := p.store.DiffsByStatus(models.StatusPending)
	if err != nil {
		return err
	}

	for _, d := range diffs {
		if err := p.checkReportOne(ctx, domain, d, ignore, pagetriageNamespaces); err != nil {
			p.logger.Error().Err(err).Uint64("rev_id", d.RevID).Msg("check-reports failed for revision")
		}
	}
	return nil
}

func (p *Pipeline) checkReportOne(ctx context.Context, domain string, d *models.Diff, ignore *IgnoreList, pagetriageNamespaces []int) error {
	sid, err := parseSubmissionID(*d.SubmissionID)
	if err != nil {
		return err
	}
	sources, err := p.tca.ReportSources(ctx, sid)
	if err != nil {
		return fmt.Errorf("report sources: %w", err)
	}
	if sources == nil {
		return nil // not complete yet
	}

	kept := make([]models.Source, 0, len(sources))
	for _, src := range sources {
		if src.Percent <= 50 {
			continue
		}
		if src.URL != nil && ignore.Matches(*src.URL) {
			continue
		}
		kept = append(kept, src)
	}

	if len(kept) == 0 {
		obsv.DiffsCheckedTotal.WithLabelValues("skipped_no_sources").Inc()
		return p.store.RemoveRevision(d.RevID)
	}

	if err := p.store.AddSources(*d.SubmissionID, kept); err != nil {
		return err
	}
	if err := p.store.UpdateStatus(d.RevID, models.StatusReady, "", time.Now()); err != nil {
		return err
	}
	obsv.ReportsReadyTotal.WithLabelValues().Inc()
	p.publish(domain, d.RevID, models.StatusReady)

	if p.index != nil {
		d.Sources = kept
		if err := p.index.Index(ctx, d); err != nil {
			p.logger.Error().Err(err).Uint64("rev_id", d.RevID).Msg("failed to index ready diff")
		}
	}

	if containsInt(pagetriageNamespaces, d.PageNamespace) {
		page := wikiapi.PageRef{Domain: domain, Namespace: d.PageNamespace, Title: d.PageTitle}
		missing, err := p.wiki.PageTriageMissingMetadata(ctx, domain, page.PageID)
		if err != nil {
			return fmt.Errorf("page triage lookup: %w", err)
		}
		if !missing {
			if err := p.wiki.SubmitPageTriage(ctx, domain, d.RevID); err != nil {
				p.logger.Error().Err(err).Uint64("rev_id", d.RevID).Msg("failed to submit page triage")
			} else {
				obsv.PageTriageSubmittedTotal.WithLabelValues(domain).Inc()
			}
		}
	}
	return nil
}

func (p *Pipeline) diffsByStatuses(statuses ...models.Status) ([]*models.Diff, error) {
	var all []*models.Diff
	for _, s := range statuses {
		diffs, err := p.store.DiffsByStatus(s)
		if err != nil {
			return nil, err
		}
		all = append(all, diffs...)
	}
	return all, nil
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func strPtr(s string) *string { return &s }
