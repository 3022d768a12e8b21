// Package wikiapi is the wiki API collaborator: revision fetching, page
// existence, edit tokens and page-triage submission. Client is the narrow
// interface the pipeline depends on; MediaWikiClient in mediawiki.go is the
// concrete implementation talking to the MediaWiki action API over HTTPS.
package wikiapi

import (
	"context"

	"github.com/copypatrol/copypatrol-go/internal/wikitext"
)

// Revision is the subset of a MediaWiki revision the pipeline needs: raw
// wikitext content plus the metadata used for revert detection and the
// edit-summary exclusion step.
type Revision struct {
	RevID         uint64
	Text          string
	Tags          []string
	CommentHidden bool
	Comment       string
}

// PageRef identifies a page on a site.
type PageRef struct {
	Domain    string
	Namespace int
	Title     string // underscore form, no namespace prefix
	PageID    int64
}

// Client is the narrow external interface to a wiki's action API. Tests
// substitute a fake implementation; nothing in this module depends on a
// specific transport.
type Client interface {
	// FetchRevisions fetches the main-slot content of the given revision
	// ids on domain in a single request. revIDs never includes 0.
	FetchRevisions(ctx context.Context, domain string, revIDs []uint64) (map[uint64]Revision, error)

	// PageExists resolves a wikilink target to a page, reporting whether
	// it exists and its page id.
	PageExists(ctx context.Context, domain, linkTarget string) (PageRef, bool, error)

	// PageRevisions fetches the most recent `total` revisions (with
	// content) of page, newest first.
	PageRevisions(ctx context.Context, domain string, page PageRef, total int) ([]Revision, error)

	// Namespaces returns the category/file namespace aliases and known
	// file extensions for domain, used by the wikitext cleaner.
	Namespaces(ctx context.Context, domain string) (wikitext.Site, error)

	// PageTitle renders a page's canonical display title, e.g. for the
	// TCA submission title "Revision {rev_id} of {title}" (§4.4).
	PageTitle(ctx context.Context, domain string, page PageRef) (string, error)

	// HasExtension reports whether the named MediaWiki extension is
	// enabled on domain (§4.5 page-triage precondition).
	HasExtension(ctx context.Context, domain, extension string) (bool, error)

	// HasRight reports whether the authenticated user holds the named
	// user right on domain (§4.5 page-triage precondition).
	HasRight(ctx context.Context, domain, right string) (bool, error)

	// PageTriageMissingMetadata reports whether pageID is in the "missing metadata"
	// bucket of domain's page-triage queue (§4.5).
	PageTriageMissingMetadata(ctx context.Context, domain string, pageID int64) (bool, error)

	// SubmitPageTriage tags revID as a copyright-violation candidate in
	// the page-triage queue (§4.5).
	SubmitPageTriage(ctx context.Context, domain string, revID uint64) error
}
