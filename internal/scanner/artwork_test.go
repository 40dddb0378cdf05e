package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type fakeFetcher struct {
	responses map[string][]byte
	failures  map[string]error
	calls     []string
}

func (f *fakeFetcher) FetchImage(_ context.Context, imageURL string) ([]byte, error) {
	f.calls = append(f.calls, imageURL)
	if err, ok := f.failures[imageURL]; ok {
		return nil, err
	}
	if data, ok := f.responses[imageURL]; ok {
		return data, nil
	}
	return []byte("jpeg-bytes"), nil
}

func TestFetchArtwork_PosterAndCover(t *testing.T) {
	dir := t.TempDir()
	fetcher := &fakeFetcher{
		responses: map[string][]byte{
			"http://img/p.jpg": []byte("poster-data"),
			"http://img/c.jpg": []byte("cover-data"),
		},
	}
	images := ImageURLs{Poster: "http://img/p.jpg", Cover: "http://img/c.jpg"}

	if err := FetchArtwork(context.Background(), fetcher, images, nil, dir, "Inception.2010"); err != nil {
		t.Fatalf("FetchArtwork failed: %v", err)
	}

	poster, err := os.ReadFile(filepath.Join(dir, "Inception.2010-poster.jpg"))
	if err != nil {
		t.Fatalf("Poster not written: %v", err)
	}
	if string(poster) != "poster-data" {
		t.Errorf("Poster content = %q", poster)
	}

	cover, err := os.ReadFile(filepath.Join(dir, "Inception.2010-cover.jpg"))
	if err != nil {
		t.Fatalf("Cover not written: %v", err)
	}
	if string(cover) != "cover-data" {
		t.Errorf("Cover content = %q", cover)
	}
}

func TestFetchArtwork_ActorPhotos(t *testing.T) {
	dir := t.TempDir()
	fetcher := &fakeFetcher{}
	photos := map[string]string{
		"Леонардо ДиКаприо":    "http://img/1.jpg",
		"Joseph Gordon-Levitt": "http://img/2.jpg",
	}

	if err := FetchArtwork(context.Background(), fetcher, ImageURLs{}, photos, dir, "Inception.2010"); err != nil {
		t.Fatalf("FetchArtwork failed: %v", err)
	}

	// Spaces in display names become underscores in file names
	for _, name := range []string{"Леонардо_ДиКаприо.jpg", "Joseph_Gordon-Levitt.jpg"} {
		path := filepath.Join(dir, ".actors", name)
		if _, err := os.Stat(path); err != nil {
			t.Errorf("Expected actor photo %s: %v", name, err)
		}
	}
}

func TestFetchArtwork_SkipsEmptyURLs(t *testing.T) {
	dir := t.TempDir()
	fetcher := &fakeFetcher{}

	if err := FetchArtwork(context.Background(), fetcher, ImageURLs{}, nil, dir, "Film.1999"); err != nil {
		t.Fatalf("FetchArtwork failed: %v", err)
	}

	if len(fetcher.calls) != 0 {
		t.Errorf("Expected no downloads for empty URLs, got %v", fetcher.calls)
	}
	if _, err := os.Stat(filepath.Join(dir, ".actors")); !os.IsNotExist(err) {
		t.Error("Actors directory must not be created without photos")
	}
}

func TestFetchArtwork_RecoversPerDownload(t *testing.T) {
	dir := t.TempDir()
	fetcher := &fakeFetcher{
		failures: map[string]error{
			"http://img/p.jpg": errors.New("connection reset"),
		},
	}
	images := ImageURLs{Poster: "http://img/p.jpg", Cover: "http://img/c.jpg"}
	photos := map[string]string{"Some Actor": "http://img/a.jpg"}

	err := FetchArtwork(context.Background(), fetcher, images, photos, dir, "Film.2005")
	if err == nil {
		t.Fatal("Expected summarizing error after a failed download")
	}

	// The poster failure must not stop the cover or photo downloads
	if _, statErr := os.Stat(filepath.Join(dir, "Film.2005-cover.jpg")); statErr != nil {
		t.Errorf("Cover should still be saved: %v", statErr)
	}
	if _, statErr := os.Stat(filepath.Join(dir, ".actors", "Some_Actor.jpg")); statErr != nil {
		t.Errorf("Actor photo should still be saved: %v", statErr)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "Film.2005-poster.jpg")); !os.IsNotExist(statErr) {
		t.Error("Failed poster must not leave a file behind")
	}
}
