package scanner

import (
	"errors"
	"testing"
)

func TestExtractKey(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantTitle string
		wantYear  string
	}{
		{"dot separated", "Inception.2010.1080p", "Inception", "2010"},
		{"underscore separated", "The_Matrix_1999", "The Matrix", "1999"},
		{"parenthesized year", "Heat (1995)", "Heat", "1995"},
		{"spaces only", "Blade Runner 1982", "Blade Runner", "1982"},
		{"mixed separators", "Some._Movie.(2020)", "Some Movie", "2020"},
		{"year at start", "2012.Disaster.Movie", "", "2012"},
		{"first year wins", "Movie.2001.Release.2019", "Movie", "2001"},
		{"trailing junk after year", "OldMovie.1950.avi-rip", "OldMovie", "1950"},
		{"collapses whitespace", "A__Very...Long__Name_2005", "A Very Long Name", "2005"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := ExtractKey(tt.input)
			if err != nil {
				t.Fatalf("ExtractKey(%q) failed: %v", tt.input, err)
			}
			if key.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", key.Title, tt.wantTitle)
			}
			if key.Year != tt.wantYear {
				t.Errorf("Year = %q, want %q", key.Year, tt.wantYear)
			}
		})
	}
}

func TestExtractKey_NoYear(t *testing.T) {
	tests := []string{
		"SomeMovie",
		"Movie.108p",        // digits but not a year pattern
		"Film.1899.Edition", // 18xx is not a recognized year
		"",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := ExtractKey(input)
			if err == nil {
				t.Fatalf("ExtractKey(%q) should fail without a year", input)
			}
			var noYear *NoYearError
			if !errors.As(err, &noYear) {
				t.Errorf("Expected NoYearError, got %T: %v", err, err)
			}
		})
	}
}

func TestExtractKey_TitleHasNoSeparators(t *testing.T) {
	key, err := ExtractKey("One_Two.Three(Four)2018")
	if err != nil {
		t.Fatalf("ExtractKey failed: %v", err)
	}
	for _, r := range key.Title {
		switch r {
		case '_', '.', '(', ')':
			t.Errorf("Title %q still contains separator %q", key.Title, r)
		}
	}
}

func TestHasSidecar(t *testing.T) {
	files := []string{"Inception.2010.mkv", "Inception.2010.nfo", "notes.txt"}

	if !HasSidecar("Inception.2010", files, ".nfo") {
		t.Error("Expected sidecar to be detected")
	}
	if HasSidecar("Heat.1995", files, ".nfo") {
		t.Error("Expected no sidecar for different base name")
	}
	if HasSidecar("Inception.2010", files, ".xml") {
		t.Error("Expected no sidecar for different extension")
	}
}
