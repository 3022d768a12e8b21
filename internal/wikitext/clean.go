// Package wikitext normalizes raw wikitext into the plain "added prose"
// candidate that diffextract compares (§4.2.1 of the specification). There
// is no Go wikitext-parsing library in wide use, so cleaning is done with a
// small regex/balanced-brace renderer instead of a full AST, the same
// practical trade-off a non-strict parse makes upstream.
package wikitext

import (
	"regexp"
	"strings"
)

var (
	htmlComment  = regexp.MustCompile(`(?s)<!--.*?-->`)
	shortQuote   = regexp.MustCompile(`".*?"`)
	wikilink     = regexp.MustCompile(`\[\[([^\]|]+)(?:\|([^\]]*))?\]\]`)
	externalLink = regexp.MustCompile(`\[(https?://[^\s\]]+)(?:\s+([^\]]*))?\]`)
	spacesRun    = regexp.MustCompile(` {2,}`)
	blankRuns    = regexp.MustCompile(`(?: ?\n){3,}`)
	templateOnly = regexp.MustCompile(`\{\{([^{}]*)\}\}`)
)

// Clean normalizes wikitext the way check_diff's _clean_wikitext does:
// strip bold/italic markup, drop category links, drop short inline quotes,
// render templates/external links/wikilinks to plain text, drop file
// references, then collapse whitespace. Clean is deterministic and
// idempotent: Clean(Clean(t)) == Clean(t).
func Clean(text string, site Site) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	text = stripBoldItalic(text)
	text = stripCategoryLinks(text, site)
	text = stripShortQuotes(text)
	text = renderWikicode(text)
	text = stripFileReferences(text, site)
	text = collapseWhitespace(text)

	return strings.TrimSpace(text)
}

// stripBoldItalic replaces '' or ''' wrapped runs with their inner content.
// Go's regexp (RE2) has no backreferences, so the 3-apostrophe and
// 2-apostrophe cases are handled as two non-overlapping passes, widest
// delimiter first, mirroring what the single backreferenced Python regex
// matches in the overwhelming majority of real wikitext.
func stripBoldItalic(text string) string {
	bold := regexp.MustCompile(`'{3}(.+?)'{3}`)
	italic := regexp.MustCompile(`'{2}(.+?)'{2}`)
	text = bold.ReplaceAllString(text, "$1")
	text = italic.ReplaceAllString(text, "$1")
	return text
}

func stripCategoryLinks(text string, site Site) string {
	aliases := site.CategoryNamespaceAliases()
	if len(aliases) == 0 {
		return text
	}
	re := regexp.MustCompile(`(?i)\[\[\s*:?\s*(?:` + namespacePattern(aliases) + `)\s*:[^\]]+?\]\]\s*`)
	return re.ReplaceAllString(text, "")
}

// stripShortQuotes removes every double-quoted substring whose word count
// (whitespace-split) is below 50. Quotes never span a newline, matching the
// Python regex's default (non-DOTALL) behavior.
func stripShortQuotes(text string) string {
	for _, quote := range findAllOnOneLine(text) {
		if len(strings.Fields(quote)) < 50 {
			text = strings.ReplaceAll(text, quote, "")
		}
	}
	return text
}

func findAllOnOneLine(text string) []string {
	var quotes []string
	for _, line := range strings.Split(text, "\n") {
		quotes = append(quotes, shortQuote.FindAllString(line, -1)...)
	}
	return quotes
}

// renderWikicode collapses templates, external links and wikilinks to
// plain text, the rough equivalent of mwparserfromhell's
// strip_code(keep_template_params=True) after pre-replacing external links
// with their display titles.
func renderWikicode(text string) string {
	text = htmlComment.ReplaceAllString(text, "")
	text = stripTemplates(text)
	text = externalLink.ReplaceAllStringFunc(text, func(m string) string {
		groups := externalLink.FindStringSubmatch(m)
		return groups[2]
	})
	text = wikilink.ReplaceAllStringFunc(text, func(m string) string {
		groups := wikilink.FindStringSubmatch(m)
		if groups[2] != "" {
			return groups[2]
		}
		return groups[1]
	})
	return text
}

// stripTemplates repeatedly collapses the innermost {{...}} template,
// keeping only its parameter values (space-joined), until no templates
// remain — handling nesting from the inside out.
func stripTemplates(text string) string {
	for {
		loc := templateOnly.FindStringSubmatchIndex(text)
		if loc == nil {
			return text
		}
		inner := text[loc[2]:loc[3]]
		text = text[:loc[0]] + templateParamValues(inner) + text[loc[1]:]
	}
}

func templateParamValues(inner string) string {
	parts := strings.Split(inner, "|")
	if len(parts) <= 1 {
		return ""
	}
	var values []string
	for _, part := range parts[1:] {
		if idx := strings.Index(part, "="); idx >= 0 {
			values = append(values, strings.TrimSpace(part[idx+1:]))
		} else {
			values = append(values, strings.TrimSpace(part))
		}
	}
	return strings.Join(values, " ")
}

func stripFileReferences(text string, site Site) string {
	aliases := site.FileNamespaceAliases()
	exts := site.FileExtensions()
	if len(aliases) == 0 || len(exts) == 0 {
		return text
	}
	re := regexp.MustCompile(`(?i)(?:` + namespacePattern(aliases) + `)\s*:.+?\.(?:` + namespacePattern(exts) + `)`)
	return re.ReplaceAllString(text, "")
}

// WikilinkTargets returns the link targets ([[target]] or [[target|display]])
// found in a short piece of wikitext such as an edit comment. Used by the
// edit-summary exclusion step (§4.2 step 7) to find pages whose content may
// have been copied verbatim into the revision under review.
func WikilinkTargets(text string) []string {
	matches := wikilink.FindAllStringSubmatch(text, -1)
	targets := make([]string, 0, len(matches))
	for _, m := range matches {
		target := strings.TrimSpace(m[1])
		if target != "" {
			targets = append(targets, target)
		}
	}
	return targets
}

func collapseWhitespace(text string) string {
	text = spacesRun.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")

	text = blankRuns.ReplaceAllString(text, "\n\n")
	return text
}
