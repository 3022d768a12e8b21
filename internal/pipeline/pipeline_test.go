package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/copypatrol/copypatrol-go/internal/diffextract"
	"github.com/copypatrol/copypatrol-go/internal/models"
	"github.com/copypatrol/copypatrol-go/internal/store"
	"github.com/copypatrol/copypatrol-go/internal/wikiapi"
	"github.com/copypatrol/copypatrol-go/internal/wikitext"
)

type fakeTCA struct {
	createdSID    uuid.UUID
	uploadedText  string
	submissionInfo map[string]any
	reportSources []models.Source
}

func (f *fakeTCA) CreateSubmission(_ context.Context, _, _, _ string, _ time.Time) (uuid.UUID, error) {
	f.createdSID = uuid.New()
	return f.createdSID, nil
}

func (f *fakeTCA) UploadSubmission(_ context.Context, _ uuid.UUID, text string) error {
	f.uploadedText = text
	return nil
}

func (f *fakeTCA) SubmissionInfo(_ context.Context, _ uuid.UUID) (map[string]any, error) {
	return f.submissionInfo, nil
}

func (f *fakeTCA) GenerateReport(_ context.Context, _ uuid.UUID, _ string) error { return nil }

func (f *fakeTCA) ReportSources(_ context.Context, _ uuid.UUID) ([]models.Source, error) {
	return f.reportSources, nil
}

type fakeWiki struct {
	missingMetadata bool
}

func (f *fakeWiki) FetchRevisions(_ context.Context, _ string, revIDs []uint64) (map[uint64]wikiapi.Revision, error) {
	out := map[uint64]wikiapi.Revision{}
	for _, id := range revIDs {
		out[id] = wikiapi.Revision{RevID: id, Text: longText()}
	}
	return out, nil
}
func (f *fakeWiki) PageExists(_ context.Context, _, _ string) (wikiapi.PageRef, bool, error) {
	return wikiapi.PageRef{}, false, nil
}
func (f *fakeWiki) PageRevisions(_ context.Context, _ string, _ wikiapi.PageRef, _ int) ([]wikiapi.Revision, error) {
	return nil, nil
}
func (f *fakeWiki) Namespaces(_ context.Context, _ string) (wikitext.Site, error) {
	return wikitext.EnglishWikipedia, nil
}
func (f *fakeWiki) PageTitle(_ context.Context, _ string, page wikiapi.PageRef) (string, error) {
	return page.Title, nil
}
func (f *fakeWiki) HasExtension(_ context.Context, _, _ string) (bool, error) { return true, nil }
func (f *fakeWiki) HasRight(_ context.Context, _, _ string) (bool, error)     { return true, nil }
func (f *fakeWiki) PageTriageMissingMetadata(_ context.Context, _ string, _ int64) (bool, error) {
	return f.missingMetadata, nil
}
func (f *fakeWiki) SubmitPageTriage(_ context.Context, _ string, _ uint64) error { return nil }

func longText() string {
	out := ""
	for i := 0; i < 20; i++ {
		out += "brand new added prose content goes here for the test case "
	}
	return out
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "copypatrol.db"))
	require.NoError(t, err)
	require.NoError(t, s.CreateTables())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCheckChanges_CreationPathSubmitsAndUploads(t *testing.T) {
	st := openTestStore(t)
	d := &models.Diff{Project: "wikipedia", Lang: "en", PageTitle: "Test", RevID: 1, RevTimestamp: time.Now()}
	require.NoError(t, st.AddRevision(d))

	wiki := &fakeWiki{}
	checker := diffextract.NewChecker(wiki, zerolog.Nop())
	tcaFake := &fakeTCA{}
	p := New(st, checker, tcaFake, wiki, zerolog.Nop())

	require.NoError(t, p.CheckChanges(context.Background(), "en.wikipedia.org"))

	diffs, err := st.DiffsByStatus(models.StatusUploaded)
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	require.NotEmpty(t, tcaFake.uploadedText)
}

func TestGenerateReports_CompleteMovesToPending(t *testing.T) {
	st := openTestStore(t)
	d := &models.Diff{Project: "wikipedia", Lang: "en", PageTitle: "Test", RevID: 2, RevTimestamp: time.Now()}
	require.NoError(t, st.AddRevision(d))
	require.NoError(t, st.SetSubmissionID(2, uuid.New().String()))
	require.NoError(t, st.UpdateStatus(2, models.StatusUploaded, "", time.Now()))

	wiki := &fakeWiki{}
	checker := diffextract.NewChecker(wiki, zerolog.Nop())
	tcaFake := &fakeTCA{submissionInfo: map[string]any{"status": "COMPLETE"}}
	p := New(st, checker, tcaFake, wiki, zerolog.Nop())

	require.NoError(t, p.GenerateReports(context.Background()))

	diffs, err := st.DiffsByStatus(models.StatusPending)
	require.NoError(t, err)
	require.Len(t, diffs, 1)
}

func TestGenerateReports_ProcessingErrorRetriesAsNewSubmission(t *testing.T) {
	st := openTestStore(t)
	d := &models.Diff{Project: "wikipedia", Lang: "en", PageTitle: "Test", RevID: 3, RevTimestamp: time.Now()}
	require.NoError(t, st.AddRevision(d))
	require.NoError(t, st.SetSubmissionID(3, uuid.New().String()))
	require.NoError(t, st.UpdateStatus(3, models.StatusUploaded, "", time.Now()))

	wiki := &fakeWiki{}
	checker := diffextract.NewChecker(wiki, zerolog.Nop())
	tcaFake := &fakeTCA{submissionInfo: map[string]any{"status": "ERROR", "error_code": "PROCESSING_ERROR"}}
	p := New(st, checker, tcaFake, wiki, zerolog.Nop())

	require.NoError(t, p.GenerateReports(context.Background()))

	diffs, err := st.DiffsByStatus(models.StatusUnsubmitted)
	require.NoError(t, err)
	require.Len(t, diffs, 1)
}

func TestCheckReports_LowPercentSourceDropsDiff(t *testing.T) {
	st := openTestStore(t)
	d := &models.Diff{Project: "wikipedia", Lang: "en", PageTitle: "Test", RevID: 4, RevTimestamp: time.Now()}
	require.NoError(t, st.AddRevision(d))
	require.NoError(t, st.SetSubmissionID(4, uuid.New().String()))
	require.NoError(t, st.UpdateStatus(4, models.StatusPending, "", time.Now()))

	wiki := &fakeWiki{}
	checker := diffextract.NewChecker(wiki, zerolog.Nop())
	tcaFake := &fakeTCA{reportSources: []models.Source{{Percent: 10}}}
	p := New(st, checker, tcaFake, wiki, zerolog.Nop())

	ignore := ParseIgnoreList("")
	require.NoError(t, p.CheckReports(context.Background(), "en.wikipedia.org", ignore, nil))

	diffs, err := st.DiffsByStatus(models.StatusPending)
	require.NoError(t, err)
	require.Empty(t, diffs)
}

func TestCheckReports_GoodSourceMarksReady(t *testing.T) {
	st := openTestStore(t)
	d := &models.Diff{Project: "wikipedia", Lang: "en", PageTitle: "Test", RevID: 5, RevTimestamp: time.Now()}
	require.NoError(t, st.AddRevision(d))
	require.NoError(t, st.SetSubmissionID(5, uuid.New().String()))
	require.NoError(t, st.UpdateStatus(5, models.StatusPending, "", time.Now()))

	url := "https://example.com/stolen"
	wiki := &fakeWiki{}
	checker := diffextract.NewChecker(wiki, zerolog.Nop())
	tcaFake := &fakeTCA{reportSources: []models.Source{{Percent: 80, URL: &url}}}
	p := New(st, checker, tcaFake, wiki, zerolog.Nop())

	ignore := ParseIgnoreList("")
	require.NoError(t, p.CheckReports(context.Background(), "en.wikipedia.org", ignore, nil))

	diffs, err := st.DiffsByStatus(models.StatusReady)
	require.NoError(t, err)
	require.Len(t, diffs, 1)
}

type fakeIndexer struct {
	indexed []*models.Diff
}

func (f *fakeIndexer) Index(_ context.Context, d *models.Diff) error {
	f.indexed = append(f.indexed, d)
	return nil
}

func TestCheckReports_GoodSourceIndexesDiff(t *testing.T) {
	st := openTestStore(t)
	d := &models.Diff{Project: "wikipedia", Lang: "en", PageTitle: "Test", RevID: 9, RevTimestamp: time.Now()}
	require.NoError(t, st.AddRevision(d))
	require.NoError(t, st.SetSubmissionID(9, uuid.New().String()))
	require.NoError(t, st.UpdateStatus(9, models.StatusPending, "", time.Now()))

	url := "https://example.com/stolen"
	wiki := &fakeWiki{}
	checker := diffextract.NewChecker(wiki, zerolog.Nop())
	tcaFake := &fakeTCA{reportSources: []models.Source{{Percent: 80, URL: &url}}}
	idx := &fakeIndexer{}
	p := New(st, checker, tcaFake, wiki, zerolog.Nop()).WithIndexer(idx)

	ignore := ParseIgnoreList("")
	require.NoError(t, p.CheckReports(context.Background(), "en.wikipedia.org", ignore, nil))

	require.Len(t, idx.indexed, 1)
	require.Equal(t, uint64(9), idx.indexed[0].RevID)
}

func TestCheckReports_IgnoreListExcludesURL(t *testing.T) {
	st := openTestStore(t)
	d := &models.Diff{Project: "wikipedia", Lang: "en", PageTitle: "Test", RevID: 6, RevTimestamp: time.Now()}
	require.NoError(t, st.AddRevision(d))
	require.NoError(t, st.SetSubmissionID(6, uuid.New().String()))
	require.NoError(t, st.UpdateStatus(6, models.StatusPending, "", time.Now()))

	url := "https://mirror.example.org/stolen"
	wiki := &fakeWiki{}
	checker := diffextract.NewChecker(wiki, zerolog.Nop())
	tcaFake := &fakeTCA{reportSources: []models.Source{{Percent: 80, URL: &url}}}
	p := New(st, checker, tcaFake, wiki, zerolog.Nop())

	ignore := ParseIgnoreList(`mirror\.example\.org`)
	require.NoError(t, p.CheckReports(context.Background(), "en.wikipedia.org", ignore, nil))

	diffs, err := st.DiffsByStatus(models.StatusPending)
	require.NoError(t, err)
	require.Empty(t, diffs)
}
