package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pbelyaev/kinoscribe/internal/logger"
)

// actorsDirName is the hidden per-directory folder holding cast
// photos, the layout media-library front-ends expect.
const actorsDirName = ".actors"

// ImageFetcher downloads a single image URL.
type ImageFetcher interface {
	FetchImage(ctx context.Context, imageURL string) ([]byte, error)
}

// FetchArtwork downloads the poster/cover images as
// {baseName}-poster.jpg / {baseName}-cover.jpg inside dir, and each
// cast photo into the hidden actors subdirectory with spaces in the
// display name replaced by underscores. Every download failure is
// recovered locally: the remaining artwork is still attempted and
// partial results are acceptable. The returned error summarizes how
// many downloads failed, if any.
func FetchArtwork(ctx context.Context, fetcher ImageFetcher, images ImageURLs, photos map[string]string, dir, baseName string) error {
	failed := 0

	save := func(url, path string) {
		if url == "" {
			return
		}
		data, err := fetcher.FetchImage(ctx, url)
		if err != nil {
			logger.Warnf("Artwork: failed to download %s: %v", url, err)
			failed++
			return
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			logger.Warnf("Artwork: failed to write %s: %v", path, err)
			failed++
		}
	}

	save(images.Poster, filepath.Join(dir, baseName+"-poster.jpg"))
	save(images.Cover, filepath.Join(dir, baseName+"-cover.jpg"))

	if len(photos) > 0 {
		actorsDir := filepath.Join(dir, actorsDirName)
		if err := os.MkdirAll(actorsDir, 0755); err != nil {
			return fmt.Errorf("failed to create actors directory: %w", err)
		}
		for name, url := range photos {
			fileName := strings.ReplaceAll(name, " ", "_") + ".jpg"
			save(url, filepath.Join(actorsDir, fileName))
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d artwork download(s) failed", failed)
	}
	return nil
}
