// Package digest sends operators a daily summary email of diffs that
// reached READY in the last 24 hours (§4.6 of the expanded pipeline
// scope). Adapted from the teacher's per-user watchlist digest: there is
// no end-user audience to personalize for here, so the collector is
// reduced to a single global query against the diff store instead of a
// CollectGlobal/PersonalizeForUser/ShouldSendToUser pipeline over Redis
// alert streams.
package digest

import (
	"context"
	"time"

	"github.com/copypatrol/copypatrol-go/internal/models"
	"github.com/copypatrol/copypatrol-go/internal/store"
)

// Summary is the data one digest email is rendered from.
type Summary struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	Ready       []*models.Diff
}

// Collector gathers the diffs a digest run should report on.
type Collector struct {
	store *store.Store
}

// NewCollector builds a Collector over a diff store.
func NewCollector(st *store.Store) *Collector {
	return &Collector{store: st}
}

// Collect returns the Summary covering the `since` window ending at now.
func (c *Collector) Collect(_ context.Context, now time.Time, since time.Duration) (*Summary, error) {
	start := now.Add(-since)
	ready, err := c.store.ReadyDiffsSince(start)
	if err != nil {
		return nil, err
	}
	var inWindow []*models.Diff
	for _, d := range ready {
		if d.StatusTimestamp == nil || !d.StatusTimestamp.After(now) {
			inWindow = append(inWindow, d)
		}
	}
	return &Summary{PeriodStart: start, PeriodEnd: now, Ready: inWindow}, nil
}
