// Package diffextract implements the central algorithm of the pipeline:
// turning two cleaned revision texts into the "added prose" string that is
// worth a plagiarism check, or a signal to skip the revision entirely
// (§4.2 of the specification).
package diffextract

import (
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	// MinRawLen is the character-count floor below which a revision's raw
	// text, or the added text extracted from it, is not worth comparing
	// (§4.2 step 2/6).
	MinRawLen = 500
	// minSpanRunes is the character-count floor an insert/replace run
	// must exceed to be considered added prose (§4.2.2).
	minSpanRunes = 50
)

// AddedText computes the added-prose string for a non-creation edit by
// diffing the two cleaned texts and concatenating every insertion/replacement
// run whose new-side span exceeds minSpanRunes characters and does not
// already appear verbatim in oldClean (§4.2.2).
//
// Every opcode difflib would tag "insert" or "replace" corresponds to one
// diffmatchpatch Insert token: a "replace" is exactly a Delete immediately
// followed by an Insert, and the delete contributes nothing to the new-side
// span, so the two opcode kinds collapse into "consider every Insert token".
// Ties in diff alignment are resolved however diffmatchpatch resolves them;
// nothing here depends on a specific tie-break.
func AddedText(oldClean, newClean string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldClean, newClean, false)

	var pieces []string
	for _, d := range diffs {
		if d.Type != diffmatchpatch.DiffInsert {
			continue
		}
		if utf8.RuneCountInString(d.Text) <= minSpanRunes {
			continue
		}
		if strings.Contains(oldClean, d.Text) {
			continue
		}
		pieces = append(pieces, strings.Trim(d.Text, " "))
	}

	return strings.TrimSpace(strings.Join(pieces, "\n"))
}
