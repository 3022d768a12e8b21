package wikitext

import "strings"

// Site narrows the out-of-core wiki API client down to the handful of
// per-site facts the cleaner needs: category/file namespace aliases and
// known file extensions. A live implementation fills this from
// site.namespaces / site.siteinfo["fileextensions"]; tests supply a static
// value.
type Site interface {
	CategoryNamespaceAliases() []string
	FileNamespaceAliases() []string
	FileExtensions() []string
}

// StaticSite is a Site with fixed values, used by tests and by any
// deployment that prefers to hardcode namespace aliases instead of querying
// the wiki on every clean call.
type StaticSite struct {
	CategoryAliases []string
	FileAliases     []string
	Extensions      []string
}

func (s StaticSite) CategoryNamespaceAliases() []string { return s.CategoryAliases }
func (s StaticSite) FileNamespaceAliases() []string      { return s.FileAliases }
func (s StaticSite) FileExtensions() []string            { return s.Extensions }

// EnglishWikipedia is the default namespace/extension set used when no
// site-specific configuration is available.
var EnglishWikipedia = StaticSite{
	CategoryAliases: []string{"Category"},
	FileAliases:     []string{"File", "Image"},
	Extensions: []string{
		"png", "gif", "jpg", "jpeg", "webp", "xcf", "pdf", "mid", "ogg", "ogv",
		"svg", "djvu", "tiff", "tif", "oga", "flac", "opus", "wav", "webm", "mp3",
	},
}

func namespacePattern(aliases []string) string {
	return strings.Join(aliases, "|")
}
