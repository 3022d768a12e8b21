package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/copypatrol/copypatrol-go/internal/models"
)

func TestToDocument_PicksMaxPercentAndCollectsURLs(t *testing.T) {
	subID := "f47ac10b-58cc-0372-8567-0e02b2c3d479"
	urlA := "https://example.com/a"
	urlB := "https://example.org/b"
	d := &models.Diff{
		RevID:        42,
		Project:      "wikipedia",
		Lang:         "en",
		PageTitle:    "Go_(programming_language)",
		RevTimestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		RevUserText:  "SomeEditor",
		SubmissionID: &subID,
		Sources: []models.Source{
			{Percent: 60, URL: &urlA},
			{Percent: 91, URL: &urlB},
		},
	}

	doc := toDocument(d)

	assert.Equal(t, uint64(42), doc.RevID)
	assert.Equal(t, subID, doc.SubmissionID)
	assert.Equal(t, 91.0, doc.MaxPercent)
	assert.ElementsMatch(t, []string{urlA, urlB}, doc.SourceURLs)
}

func TestToDocument_NoSubmissionIDLeavesEmptyString(t *testing.T) {
	d := &models.Diff{RevID: 7}
	doc := toDocument(d)
	assert.Equal(t, "", doc.SubmissionID)
	assert.Equal(t, 0.0, doc.MaxPercent)
	assert.Nil(t, doc.SourceURLs)
}
