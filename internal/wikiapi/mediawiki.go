package wikiapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	backoff "gopkg.in/cenkalti/backoff.v1"

	"github.com/copypatrol/copypatrol-go/internal/wikitext"
)

// DefaultUserAgent is sent on every request absent an operator override,
// per MediaWiki's API etiquette policy of identifying automated clients.
const DefaultUserAgent = "copypatrol-go/1.0 (https://github.com/copypatrol/copypatrol-go)"

// MediaWikiClient is the real Client implementation, talking to a wiki's
// action API (api.php) over HTTPS with an injected *http.Client. This is
// the "fulfilled by a real implementation hitting the MediaWiki action
// API" collaborator spec.md declares out of scope for behavior
// specification, still needed for the CLI to run end to end.
type MediaWikiClient struct {
	httpClient *http.Client
	userAgent  string
	logger     zerolog.Logger
}

// NewMediaWikiClient builds a MediaWikiClient.
func NewMediaWikiClient(httpClient *http.Client, userAgent string, logger zerolog.Logger) *MediaWikiClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &MediaWikiClient{httpClient: httpClient, userAgent: userAgent, logger: logger.With().Str("component", "wikiapi").Logger()}
}

func (c *MediaWikiClient) apiGet(ctx context.Context, domain string, params url.Values, out any) error {
	params.Set("format", "json")
	params.Set("formatversion", "2")
	reqURL := fmt.Sprintf("https://%s/w/api.php?%s", domain, params.Encode())

	return c.retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("mediawiki api returned status %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("mediawiki api returned status %d", resp.StatusCode))
		}
		return backoff.Permanent(json.NewDecoder(resp.Body).Decode(out))
	})
}

func (c *MediaWikiClient) retry(ctx context.Context, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 15 * time.Second
	return backoff.Retry(func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return fn()
	}, b)
}

// FetchRevisions fetches main-slot wikitext plus tags/comment for revIDs.
func (c *MediaWikiClient) FetchRevisions(ctx context.Context, domain string, revIDs []uint64) (map[uint64]Revision, error) {
	ids := make([]string, len(revIDs))
	for i, id := range revIDs {
		ids[i] = strconv.FormatUint(id, 10)
	}

	var out struct {
		Query struct {
			Pages []struct {
				Revisions []struct {
					RevID         uint64 `json:"revid"`
					Tags          []string `json:"tags"`
					CommentHidden bool   `json:"commenthidden"`
					Comment       string `json:"comment"`
					Slots         struct {
						Main struct {
							Content string `json:"content"`
						} `json:"main"`
					} `json:"slots"`
				} `json:"revisions"`
			} `json:"pages"`
		} `json:"query"`
	}

	params := url.Values{
		"action":  {"query"},
		"prop":    {"revisions"},
		"revids":  {strings.Join(ids, "|")},
		"rvprop":  {"ids|content|tags|comment"},
		"rvslots": {"main"},
	}
	if err := c.apiGet(ctx, domain, params, &out); err != nil {
		return nil, fmt.Errorf("fetch revisions: %w", err)
	}

	result := make(map[uint64]Revision, len(revIDs))
	for _, page := range out.Query.Pages {
		for _, rev := range page.Revisions {
			result[rev.RevID] = Revision{
				RevID:         rev.RevID,
				Text:          rev.Slots.Main.Content,
				Tags:          rev.Tags,
				CommentHidden: rev.CommentHidden,
				Comment:       rev.Comment,
			}
		}
	}
	return result, nil
}

// PageExists resolves linkTarget to a page via the action API.
func (c *MediaWikiClient) PageExists(ctx context.Context, domain, linkTarget string) (PageRef, bool, error) {
	var out struct {
		Query struct {
			Pages []struct {
				PageID  int64  `json:"pageid"`
				Ns      int    `json:"ns"`
				Title   string `json:"title"`
				Missing bool   `json:"missing"`
			} `json:"pages"`
		} `json:"query"`
	}
	params := url.Values{"action": {"query"}, "titles": {linkTarget}}
	if err := c.apiGet(ctx, domain, params, &out); err != nil {
		return PageRef{}, false, fmt.Errorf("page exists: %w", err)
	}
	if len(out.Query.Pages) == 0 || out.Query.Pages[0].Missing {
		return PageRef{}, false, nil
	}
	p := out.Query.Pages[0]
	return PageRef{Domain: domain, Namespace: p.Ns, Title: strings.ReplaceAll(p.Title, " ", "_"), PageID: p.PageID}, true, nil
}

// PageRevisions fetches the most recent `total` revisions of page.
func (c *MediaWikiClient) PageRevisions(ctx context.Context, domain string, page PageRef, total int) ([]Revision, error) {
	var out struct {
		Query struct {
			Pages []struct {
				Revisions []struct {
					RevID   uint64 `json:"revid"`
					Comment string `json:"comment"`
					Slots   struct {
						Main struct {
							Content string `json:"content"`
						} `json:"main"`
					} `json:"slots"`
				} `json:"revisions"`
			} `json:"pages"`
		} `json:"query"`
	}
	params := url.Values{
		"action":  {"query"},
		"titles":  {page.Title},
		"prop":    {"revisions"},
		"rvprop":  {"ids|content|comment"},
		"rvslots": {"main"},
		"rvlimit": {strconv.Itoa(total)},
	}
	if err := c.apiGet(ctx, domain, params, &out); err != nil {
		return nil, fmt.Errorf("page revisions: %w", err)
	}
	var revs []Revision
	for _, p := range out.Query.Pages {
		for _, rev := range p.Revisions {
			revs = append(revs, Revision{RevID: rev.RevID, Text: rev.Slots.Main.Content, Comment: rev.Comment})
		}
	}
	return revs, nil
}

// Namespaces fetches the category/file namespace aliases and file
// extensions configured on domain.
func (c *MediaWikiClient) Namespaces(ctx context.Context, domain string) (wikitext.Site, error) {
	var out struct {
		Query struct {
			Namespaces map[string]struct {
				ID   int    `json:"id"`
				Name string `json:"name"`
			} `json:"namespaces"`
			NamespaceAliases []struct {
				ID    int    `json:"id"`
				Alias string `json:"alias"`
			} `json:"namespacealiases"`
			FileExtensions []struct {
				Ext string `json:"ext"`
			} `json:"fileextensions"`
		} `json:"query"`
	}
	params := url.Values{"action": {"query"}, "meta": {"siteinfo"}, "siprop": {"namespaces|namespacealiases|fileextensions"}}
	if err := c.apiGet(ctx, domain, params, &out); err != nil {
		return nil, fmt.Errorf("namespaces: %w", err)
	}

	var categoryAliases, fileAliases []string
	for _, ns := range out.Query.Namespaces {
		switch ns.ID {
		case 6:
			fileAliases = append(fileAliases, ns.Name)
		case 14:
			categoryAliases = append(categoryAliases, ns.Name)
		}
	}
	for _, alias := range out.Query.NamespaceAliases {
		switch alias.ID {
		case 6:
			fileAliases = append(fileAliases, alias.Alias)
		case 14:
			categoryAliases = append(categoryAliases, alias.Alias)
		}
	}
	var extensions []string
	for _, ext := range out.Query.FileExtensions {
		extensions = append(extensions, ext.Ext)
	}

	return wikitext.StaticSite{
		CategoryAliases: categoryAliases,
		FileAliases:     fileAliases,
		Extensions:      extensions,
	}, nil
}

// PageTitle returns the page's display title, "Namespace:Title" form.
func (c *MediaWikiClient) PageTitle(ctx context.Context, domain string, page PageRef) (string, error) {
	var out struct {
		Query struct {
			Pages []struct {
				Title string `json:"title"`
			} `json:"pages"`
		} `json:"query"`
	}
	params := url.Values{"action": {"query"}, "pageids": {strconv.FormatInt(page.PageID, 10)}}
	if page.PageID == 0 {
		params = url.Values{"action": {"query"}, "titles": {page.Title}}
	}
	if err := c.apiGet(ctx, domain, params, &out); err != nil {
		return "", fmt.Errorf("page title: %w", err)
	}
	if len(out.Query.Pages) == 0 {
		return page.Title, nil
	}
	return out.Query.Pages[0].Title, nil
}

// HasExtension reports whether a MediaWiki extension is enabled on domain.
func (c *MediaWikiClient) HasExtension(ctx context.Context, domain, extension string) (bool, error) {
	var out struct {
		Query struct {
			Extensions []struct {
				Name string `json:"name"`
			} `json:"extensions"`
		} `json:"query"`
	}
	params := url.Values{"action": {"query"}, "meta": {"siteinfo"}, "siprop": {"extensions"}}
	if err := c.apiGet(ctx, domain, params, &out); err != nil {
		return false, fmt.Errorf("has extension: %w", err)
	}
	for _, ext := range out.Query.Extensions {
		if strings.EqualFold(ext.Name, extension) {
			return true, nil
		}
	}
	return false, nil
}

// HasRight reports whether the authenticated user holds right on domain.
func (c *MediaWikiClient) HasRight(ctx context.Context, domain, right string) (bool, error) {
	var out struct {
		Query struct {
			UserInfo struct {
				Rights []string `json:"rights"`
			} `json:"userinfo"`
		} `json:"query"`
	}
	params := url.Values{"action": {"query"}, "meta": {"userinfo"}, "uiprop": {"rights"}}
	if err := c.apiGet(ctx, domain, params, &out); err != nil {
		return false, fmt.Errorf("has right: %w", err)
	}
	for _, r := range out.Query.UserInfo.Rights {
		if r == right {
			return true, nil
		}
	}
	return false, nil
}

// PageTriageMissingMetadata reports whether pageID sits in the PageTriage
// "missing metadata" queue.
func (c *MediaWikiClient) PageTriageMissingMetadata(ctx context.Context, domain string, pageID int64) (bool, error) {
	var out struct {
		PagesTriageList struct {
			Pages []struct {
				PageID int64 `json:"pageid"`
			} `json:"pages"`
		} `json:"pagetriagelist"`
	}
	params := url.Values{
		"action":       {"pagetriagelist"},
		"showmetadata": {"1"},
	}
	if err := c.apiGet(ctx, domain, params, &out); err != nil {
		return false, fmt.Errorf("page triage missing metadata: %w", err)
	}
	for _, p := range out.PagesTriageList.Pages {
		if p.PageID == pageID {
			return true, nil
		}
	}
	return false, nil
}

// SubmitPageTriage tags revID as a copyright-violation candidate in the
// PageTriage queue, fetching a CSRF token first as the write requires.
func (c *MediaWikiClient) SubmitPageTriage(ctx context.Context, domain string, revID uint64) error {
	token, err := c.csrfToken(ctx, domain)
	if err != nil {
		return fmt.Errorf("csrf token: %w", err)
	}

	form := url.Values{
		"action":        {"pagetriagetagcopyvio"},
		"revid":         {fmt.Sprintf("%d", revID)},
		"token":         {token},
		"format":        {"json"},
		"formatversion": {"2"},
	}
	reqURL := fmt.Sprintf("https://%s/w/api.php", domain)

	return c.retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, "POST", reqURL, strings.NewReader(form.Encode()))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("User-Agent", c.userAgent)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("mediawiki api returned status %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("mediawiki api returned status %d", resp.StatusCode))
		}
		return nil
	})
}

func (c *MediaWikiClient) csrfToken(ctx context.Context, domain string) (string, error) {
	var out struct {
		Query struct {
			Tokens struct {
				CSRFToken string `json:"csrftoken"`
			} `json:"tokens"`
		} `json:"query"`
	}
	params := url.Values{"action": {"query"}, "meta": {"tokens"}, "type": {"csrf"}}
	if err := c.apiGet(ctx, domain, params, &out); err != nil {
		return "", err
	}
	return out.Query.Tokens.CSRFToken, nil
}
