// Package scanner implements the matching-and-enrichment pipeline:
// deriving a search key from a filename, resolving it against the
// catalog, normalizing the catalog records and writing the sidecar
// document plus artwork next to the video file.
package scanner

import (
	"fmt"
	"regexp"
	"strings"
)

// yearStamp matches a plausible 4-digit release year.
var yearStamp = regexp.MustCompile(`(19|20)\d{2}`)

// splitters are the separator characters replaced with spaces when
// cleaning a raw title.
var splitters = regexp.MustCompile(`[_.()]`)

var whitespaceRuns = regexp.MustCompile(`\s+`)

// SearchKey is the normalized (title, year) pair derived from a
// filename. Year is always exactly 4 digits.
type SearchKey struct {
	Title string
	Year  string
}

// NoYearError means a filename carries no recognizable release year,
// so the file cannot be matched against the catalog.
type NoYearError struct {
	FileName string
}

func (e *NoYearError) Error() string {
	return fmt.Sprintf("no release year found in file name %q", e.FileName)
}

// ExtractKey derives a search key from a raw file name (without
// extension). The first 4-digit run looking like a year wins; the
// text before it becomes the title with separators replaced by
// spaces and whitespace collapsed.
//
// A title containing an earlier year-like digit run is a known
// ambiguity: the first match is taken unconditionally since the
// filename alone cannot disambiguate.
func ExtractKey(rawFileName string) (SearchKey, error) {
	loc := yearStamp.FindStringIndex(rawFileName)
	if loc == nil {
		return SearchKey{}, &NoYearError{FileName: rawFileName}
	}

	year := rawFileName[loc[0]:loc[1]]
	rawTitle := rawFileName[:loc[0]]
	title := splitters.ReplaceAllString(rawTitle, " ")
	title = strings.TrimSpace(whitespaceRuns.ReplaceAllString(title, " "))

	return SearchKey{Title: title, Year: year}, nil
}

// HasSidecar reports whether files contains a sidecar named
// baseName plus the sidecar extension.
func HasSidecar(baseName string, files []string, sidecarExt string) bool {
	want := baseName + sidecarExt
	for _, f := range files {
		if f == want {
			return true
		}
	}
	return false
}
