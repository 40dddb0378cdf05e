package scanner

import (
	"fmt"

	"github.com/pbelyaev/kinoscribe/internal/catalog"
)

// CandidateResult is the outcome of resolving search results to a
// single catalog identifier. YearMatched=false marks a degraded
// match: no candidate carried the requested year, so the most
// recently released candidate was used instead. The message must be
// surfaced to the user in that case.
type CandidateResult struct {
	FilmID      int64
	YearMatched bool
	Message     string
}

// NoCandidatesError means the keyword search returned an empty film
// list, leaving nothing to resolve.
type NoCandidatesError struct {
	Title string
	Year  string
}

func (e *NoCandidatesError) Error() string {
	return fmt.Sprintf("search for %s (%s) returned no candidates", e.Title, e.Year)
}

// MalformedYearError means a candidate's year field is not exactly 4
// digits. One bad record invalidates the whole batch.
type MalformedYearError struct {
	Value string
}

func (e *MalformedYearError) Error() string {
	return fmt.Sprintf("candidate year %q is not a 4-digit year", e.Value)
}

// ResolveCandidate picks the catalog identifier best matching the
// requested year. An exact year match wins immediately; otherwise
// the candidate with the numerically largest year is returned as a
// degraded match (ties broken by first occurrence).
func ResolveCandidate(key SearchKey, results []catalog.SearchResult) (CandidateResult, error) {
	if len(results) == 0 {
		return CandidateResult{}, &NoCandidatesError{Title: key.Title, Year: key.Year}
	}

	// One malformed year invalidates the batch, regardless of where
	// an exact match would have been found.
	for _, film := range results {
		if len(film.Year) != 4 || !isDigits(film.Year) {
			return CandidateResult{}, &MalformedYearError{Value: film.Year}
		}
	}

	latestYear := "0000"
	latestIdx := 0
	for idx, film := range results {
		if film.Year > latestYear {
			latestYear = film.Year
			latestIdx = idx
		}
		if film.Year == key.Year {
			return CandidateResult{
				FilmID:      film.FilmID,
				YearMatched: true,
				Message:     fmt.Sprintf("Matched %s (%s) by exact release year.", film.Title, key.Year),
			}, nil
		}
	}

	return CandidateResult{
		FilmID:      results[latestIdx].FilmID,
		YearMatched: false,
		Message: fmt.Sprintf("No candidate for %s (%s) matched the release year; "+
			"kept the most recently released candidate (%s).", key.Title, key.Year, latestYear),
	}, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
