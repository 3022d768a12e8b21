package diffextract

import (
	"context"
	"fmt"
	"strings"

	"github.com/copypatrol/copypatrol-go/internal/wikiapi"
	"github.com/copypatrol/copypatrol-go/internal/wikitext"
	"github.com/rs/zerolog"
)

// undoTags are the undo-style tags; any one of them marks a revision as a
// revert, as do mw-rollback and mw-reverted (§4.2 step 3).
var undoTags = map[string]bool{"mw-undo": true, "twinkle": true}

// Checker runs the diff-extraction procedure of §4.2 against a live (or
// faked) wiki client.
type Checker struct {
	client wikiapi.Client
	logger zerolog.Logger
}

// NewChecker builds a Checker over client.
func NewChecker(client wikiapi.Client, logger zerolog.Logger) *Checker {
	return &Checker{client: client, logger: logger.With().Str("component", "diffextract").Logger()}
}

// Check runs the §4.2 procedure for one revision of page. It returns
// (text, true) when the revision has added prose worth reviewing, and
// (\"\", false) when the caller should skip (delete) the row.
func (c *Checker) Check(ctx context.Context, domain string, page wikiapi.PageRef, oldRevID, newRevID uint64) (string, bool, error) {
	site, err := c.client.Namespaces(ctx, domain)
	if err != nil {
		return "", false, fmt.Errorf("fetch namespaces: %w", err)
	}

	revIDs := []uint64{newRevID}
	if oldRevID > 0 {
		revIDs = append(revIDs, oldRevID)
	}
	revs, err := c.client.FetchRevisions(ctx, domain, revIDs)
	if err != nil {
		return "", false, fmt.Errorf("fetch revisions: %w", err)
	}

	newRev, ok := revs[newRevID]
	if !ok {
		return "", false, fmt.Errorf("revision %d not returned by wiki API", newRevID)
	}
	if c.tooSmall(newRev.Text, newRevID, page) {
		return "", false, nil
	}

	var addedText string
	if oldRevID > 0 {
		oldRev, ok := revs[oldRevID]
		if !ok {
			return "", false, fmt.Errorf("revision %d not returned by wiki API", oldRevID)
		}
		if isRevert(newRev.Tags) {
			c.logger.Info().Uint64("rev_id", newRevID).Str("page", page.Title).Msg("revision was a revert, skipping")
			return "", false, nil
		}
		addedText = AddedText(wikitext.Clean(oldRev.Text, site), wikitext.Clean(newRev.Text, site))
	} else {
		addedText = wikitext.Clean(newRev.Text, site)
	}
	if c.tooSmall(addedText, newRevID, page) {
		return "", false, nil
	}

	if !newRev.CommentHidden && newRev.Comment != "" {
		addedText, err = c.excludeLinkedCopies(ctx, domain, site, newRev.Comment, addedText)
		if err != nil {
			return "", false, fmt.Errorf("exclude linked copies: %w", err)
		}
		if c.tooSmall(addedText, newRevID, page) {
			return "", false, nil
		}
	}

	return addedText, true, nil
}

func isRevert(tags []string) bool {
	for _, t := range tags {
		if t == "mw-rollback" || t == "mw-reverted" || undoTags[t] {
			return true
		}
	}
	return false
}

func (c *Checker) tooSmall(text string, revID uint64, page wikiapi.PageRef) bool {
	if len([]rune(text)) < MinRawLen {
		c.logger.Info().Uint64("rev_id", revID).Str("page", page.Title).Msg("too small to compare")
		return true
	}
	return false
}

// excludeLinkedCopies implements §4.2 step 7: for every wikilink target in
// the edit comment that resolves to an existing page, drop any line of
// addedText that appears verbatim in either of that page's last two cleaned
// revisions. Blank lines are always kept.
func (c *Checker) excludeLinkedCopies(ctx context.Context, domain string, site wikitext.Site, comment, addedText string) (string, error) {
	for _, target := range wikitext.WikilinkTargets(comment) {
		linkedPage, exists, err := c.client.PageExists(ctx, domain, target)
		if err != nil {
			return "", err
		}
		if !exists {
			continue
		}
		revisions, err := c.client.PageRevisions(ctx, domain, linkedPage, 2)
		if err != nil {
			return "", err
		}
		for _, rev := range revisions {
			linkedClean := wikitext.Clean(rev.Text, site)
			addedText = dropCopiedLines(addedText, linkedClean)
		}
	}
	return addedText, nil
}

func dropCopiedLines(addedText, linkedClean string) string {
	lines := strings.Split(addedText, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			kept = append(kept, line)
			continue
		}
		if strings.Contains(linkedClean, line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
