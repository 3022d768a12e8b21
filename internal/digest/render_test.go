package digest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copypatrol/copypatrol-go/internal/models"
)

func TestRenderDigestEmail_EmptySummary(t *testing.T) {
	summary := &Summary{PeriodStart: time.Now().Add(-24 * time.Hour), PeriodEnd: time.Now()}
	subject, body, err := RenderDigestEmail(summary, "https://copypatrol.example/queue")
	require.NoError(t, err)
	assert.Contains(t, subject, "nothing new")
	assert.Contains(t, body, "No diffs reached the review queue")
}

func TestRenderDigestEmail_WithReadyDiffs(t *testing.T) {
	url := "https://example.com/stolen"
	d := &models.Diff{
		PageTitle:   "Go_(programming_language)",
		Lang:        "en",
		RevID:       42,
		RevUserText: "SomeEditor",
		Sources:     []models.Source{{Percent: 87, URL: &url}},
	}
	summary := &Summary{PeriodStart: time.Now().Add(-24 * time.Hour), PeriodEnd: time.Now(), Ready: []*models.Diff{d}}

	subject, body, err := RenderDigestEmail(summary, "https://copypatrol.example/queue")
	require.NoError(t, err)
	assert.Contains(t, subject, "1 diff ready for review")
	assert.True(t, strings.Contains(body, "Go_(programming_language)"))
	assert.True(t, strings.Contains(body, "87%"))
}
