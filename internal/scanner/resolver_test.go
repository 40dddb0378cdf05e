package scanner

import (
	"errors"
	"testing"

	"github.com/pbelyaev/kinoscribe/internal/catalog"
)

func TestResolveCandidate_ExactYearMatch(t *testing.T) {
	// Inception.2010 scenario: two candidates, second matches
	key := SearchKey{Title: "Inception", Year: "2010"}
	results := []catalog.SearchResult{
		{FilmID: 1, Year: "2009"},
		{FilmID: 2, Year: "2010"},
	}

	got, err := ResolveCandidate(key, results)
	if err != nil {
		t.Fatalf("ResolveCandidate failed: %v", err)
	}
	if !got.YearMatched {
		t.Error("Expected YearMatched=true")
	}
	if got.FilmID != 2 {
		t.Errorf("FilmID = %d, want 2", got.FilmID)
	}
}

func TestResolveCandidate_ExactMatchRegardlessOfOrder(t *testing.T) {
	key := SearchKey{Title: "X", Year: "2010"}

	orders := [][]catalog.SearchResult{
		{{FilmID: 2, Year: "2010"}, {FilmID: 1, Year: "2009"}},
		{{FilmID: 1, Year: "2009"}, {FilmID: 2, Year: "2010"}},
		{{FilmID: 3, Year: "2015"}, {FilmID: 2, Year: "2010"}, {FilmID: 1, Year: "2009"}},
	}

	for i, results := range orders {
		got, err := ResolveCandidate(key, results)
		if err != nil {
			t.Fatalf("Order %d: ResolveCandidate failed: %v", i, err)
		}
		if !got.YearMatched || got.FilmID != 2 {
			t.Errorf("Order %d: got (%v, %d), want (true, 2)", i, got.YearMatched, got.FilmID)
		}
	}
}

func TestResolveCandidate_FallbackToLatestYear(t *testing.T) {
	// OldMovie.1950 scenario: no exact match, latest year wins
	key := SearchKey{Title: "OldMovie", Year: "1950"}
	results := []catalog.SearchResult{
		{FilmID: 5, Year: "1999"},
		{FilmID: 6, Year: "2005"},
	}

	got, err := ResolveCandidate(key, results)
	if err != nil {
		t.Fatalf("ResolveCandidate failed: %v", err)
	}
	if got.YearMatched {
		t.Error("Expected YearMatched=false for degraded match")
	}
	if got.FilmID != 6 {
		t.Errorf("FilmID = %d, want 6 (latest year)", got.FilmID)
	}
	if got.Message == "" {
		t.Error("Degraded match must carry a message for the summary")
	}
}

func TestResolveCandidate_LatestYearTieBrokenByFirst(t *testing.T) {
	key := SearchKey{Title: "X", Year: "1950"}
	results := []catalog.SearchResult{
		{FilmID: 10, Year: "2005"},
		{FilmID: 20, Year: "2005"},
	}

	got, err := ResolveCandidate(key, results)
	if err != nil {
		t.Fatalf("ResolveCandidate failed: %v", err)
	}
	if got.FilmID != 10 {
		t.Errorf("FilmID = %d, want 10 (first occurrence wins ties)", got.FilmID)
	}
}

func TestResolveCandidate_Idempotent(t *testing.T) {
	key := SearchKey{Title: "X", Year: "1980"}
	results := []catalog.SearchResult{
		{FilmID: 1, Year: "1999"},
		{FilmID: 2, Year: "1985"},
		{FilmID: 3, Year: "1992"},
	}

	first, err := ResolveCandidate(key, results)
	if err != nil {
		t.Fatalf("ResolveCandidate failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := ResolveCandidate(key, results)
		if err != nil {
			t.Fatalf("Repeat %d failed: %v", i, err)
		}
		if again.FilmID != first.FilmID || again.YearMatched != first.YearMatched {
			t.Errorf("Resolution not idempotent: got (%d, %v), want (%d, %v)",
				again.FilmID, again.YearMatched, first.FilmID, first.YearMatched)
		}
	}
}

func TestResolveCandidate_MalformedYear(t *testing.T) {
	key := SearchKey{Title: "X", Year: "2010"}

	tests := []struct {
		name    string
		results []catalog.SearchResult
	}{
		{"too short", []catalog.SearchResult{{FilmID: 1, Year: "201"}}},
		{"too long", []catalog.SearchResult{{FilmID: 1, Year: "20105"}}},
		{"non numeric", []catalog.SearchResult{{FilmID: 1, Year: "20x0"}}},
		{"empty", []catalog.SearchResult{{FilmID: 1, Year: ""}}},
		{"malformed after exact match", []catalog.SearchResult{
			{FilmID: 2, Year: "2010"},
			{FilmID: 3, Year: "bad!"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveCandidate(key, tt.results)
			var malformed *MalformedYearError
			if !errors.As(err, &malformed) {
				t.Errorf("Expected MalformedYearError, got %v", err)
			}
		})
	}
}

func TestResolveCandidate_EmptyList(t *testing.T) {
	key := SearchKey{Title: "Nothing", Year: "2010"}

	_, err := ResolveCandidate(key, nil)
	var noCandidates *NoCandidatesError
	if !errors.As(err, &noCandidates) {
		t.Fatalf("Expected NoCandidatesError for empty list, got %v", err)
	}
	if noCandidates.Title != "Nothing" {
		t.Errorf("Error title = %q, want %q", noCandidates.Title, "Nothing")
	}
}
