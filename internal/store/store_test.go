package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/copypatrol/copypatrol-go/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "copypatrol.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.CreateTables())
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleDiff(revID uint64) *models.Diff {
	return &models.Diff{
		Project:      "wikipedia",
		Lang:         "en",
		PageTitle:    "Test_Page",
		RevID:        revID,
		RevTimestamp: time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC),
		RevUserText:  "SomeUser",
	}
}

func TestAddRevision_SetsUnsubmittedStatus(t *testing.T) {
	s := openTestStore(t)
	d := sampleDiff(1)
	require.NoError(t, s.AddRevision(d))
	require.NotZero(t, d.ID)

	diffs, err := s.DiffsByStatus(models.StatusUnsubmitted)
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	require.Equal(t, uint64(1), diffs[0].RevID)
}

func TestUpdateStatus(t *testing.T) {
	s := openTestStore(t)
	d := sampleDiff(2)
	require.NoError(t, s.AddRevision(d))

	now := time.Now().UTC()
	require.NoError(t, s.UpdateStatus(2, models.StatusCreated, "bot", now))

	diffs, err := s.DiffsByStatus(models.StatusCreated)
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	require.NotNil(t, diffs[0].StatusUserText)
	require.Equal(t, "bot", *diffs[0].StatusUserText)
}

func TestSetSubmissionID(t *testing.T) {
	s := openTestStore(t)
	d := sampleDiff(3)
	require.NoError(t, s.AddRevision(d))
	require.NoError(t, s.SetSubmissionID(3, "sub-123"))

	diffs, err := s.DiffsByStatus(models.StatusUnsubmitted)
	require.NoError(t, err)
	require.NotNil(t, diffs[0].SubmissionID)
	require.Equal(t, "sub-123", *diffs[0].SubmissionID)
}

func TestRemoveRevision(t *testing.T) {
	s := openTestStore(t)
	d := sampleDiff(4)
	require.NoError(t, s.AddRevision(d))
	require.NoError(t, s.RemoveRevision(4))

	diffs, err := s.DiffsByStatus(models.StatusUnsubmitted)
	require.NoError(t, err)
	require.Empty(t, diffs)
}

func TestRemoveRevision_NotFound(t *testing.T) {
	s := openTestStore(t)
	require.Error(t, s.RemoveRevision(999))
}

func TestAddRevision_SameRevIDDifferentSiteAllowed(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.AddRevision(sampleDiff(42)))

	other := sampleDiff(42)
	other.Project = "wikipedia"
	other.Lang = "de"
	require.NoError(t, s.AddRevision(other))

	diffs, err := s.DiffsByStatus(models.StatusUnsubmitted)
	require.NoError(t, err)
	require.Len(t, diffs, 2)
}

func TestAddRevision_DuplicateWithinSameSiteRejected(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.AddRevision(sampleDiff(43)))
	require.Error(t, s.AddRevision(sampleDiff(43)))
}

func TestSetSubmissionID_DuplicateRejected(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.AddRevision(sampleDiff(44)))
	require.NoError(t, s.AddRevision(sampleDiff(45)))

	require.NoError(t, s.SetSubmissionID(44, "sub-dup"))
	require.Error(t, s.SetSubmissionID(45, "sub-dup"))
}

func TestAddSourcesAndFetch(t *testing.T) {
	s := openTestStore(t)
	url := "https://example.com/article"
	sources := []models.Source{
		{SourceID: 1, SubmissionID: "sub-1", Description: "Example", URL: &url, Percent: 42.5},
	}
	require.NoError(t, s.AddSources("sub-1", sources))

	got, err := s.SourcesBySubmission("sub-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 42.5, got[0].Percent)
}

func TestReadyDiffsSince(t *testing.T) {
	s := openTestStore(t)
	d := sampleDiff(6)
	require.NoError(t, s.AddRevision(d))

	cutoff := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, s.UpdateStatus(6, models.StatusReady, "", time.Now().UTC()))

	diffs, err := s.ReadyDiffsSince(cutoff)
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	require.Equal(t, uint64(6), diffs[0].RevID)

	diffs, err = s.ReadyDiffsSince(time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.Empty(t, diffs)
}

func TestRemoveSubmission_CascadesSources(t *testing.T) {
	s := openTestStore(t)
	d := sampleDiff(5)
	require.NoError(t, s.AddRevision(d))
	require.NoError(t, s.SetSubmissionID(5, "sub-5"))
	require.NoError(t, s.AddSources("sub-5", []models.Source{{SourceID: 1, SubmissionID: "sub-5", Percent: 10}}))

	require.NoError(t, s.RemoveSubmission("sub-5"))

	sources, err := s.SourcesBySubmission("sub-5")
	require.NoError(t, err)
	require.Empty(t, sources)
}
