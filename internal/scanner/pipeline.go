package scanner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pbelyaev/kinoscribe/internal/catalog"
	"github.com/pbelyaev/kinoscribe/internal/logger"
)

// Catalog is the subset of the catalog client the pipeline needs.
type Catalog interface {
	SearchByKeyword(ctx context.Context, title string) ([]catalog.SearchResult, bool, error)
	FilmDetail(ctx context.Context, filmID int64) (map[string]interface{}, bool, error)
	StaffDetail(ctx context.Context, filmID int64, maxActors int) (*catalog.Staff, bool, error)
	FetchImage(ctx context.Context, imageURL string) ([]byte, error)
}

// FileOutcome is the per-file result of one pipeline pass, consumed
// by the scan-history recorder and the event publishers.
type FileOutcome struct {
	FilePath       string
	FilmID         int64
	Title          string
	Year           string
	YearMatched    bool
	Enriched       bool
	SidecarWritten bool
	ArtworkSaved   bool
	Message        string
}

// FolderResult accumulates the outcomes of processing one directory.
type FolderResult struct {
	FilesProcessed int
	FilesFailed    int
	Summary        string
	Files          []FileOutcome
}

// FolderPipeline enriches every unprocessed video file in a
// directory, sequentially and in listing order. One file's failure
// is fatal for that file only; credential and quota failures abort
// the whole pass since no later file can succeed either.
type FolderPipeline struct {
	catalog     Catalog
	isVideoFile func(name string) bool
	sidecarExt  string
	maxActors   int
}

// NewFolderPipeline builds a pipeline. isVideoFile classifies
// directory entries by name; sidecarExt includes the leading dot.
func NewFolderPipeline(cat Catalog, isVideoFile func(string) bool, sidecarExt string, maxActors int) *FolderPipeline {
	return &FolderPipeline{
		catalog:     cat,
		isVideoFile: isVideoFile,
		sidecarExt:  sidecarExt,
		maxActors:   maxActors,
	}
}

// systemic reports errors that cannot succeed on a later file either
// and must abort the whole scan cycle.
func systemic(err error) bool {
	return errors.Is(err, catalog.ErrUnauthorized) ||
		errors.Is(err, catalog.ErrQuotaExceeded) ||
		errors.Is(err, catalog.ErrRateLimited)
}

// ProcessFolder runs the enrichment pipeline for each eligible video
// file in dir. files is the directory listing; files already
// accompanied by a sidecar are skipped entirely.
func (p *FolderPipeline) ProcessFolder(ctx context.Context, dir string, files []string) (*FolderResult, error) {
	result := &FolderResult{}

	for _, file := range files {
		ext := filepath.Ext(file)
		if !p.isVideoFile(file) {
			continue
		}
		baseName := strings.TrimSuffix(file, ext)
		if HasSidecar(baseName, files, p.sidecarExt) {
			continue
		}

		outcome, err := p.processFile(ctx, dir, baseName)
		outcome.FilePath = filepath.Join(dir, file)
		if err != nil {
			if systemic(err) {
				return result, err
			}
			outcome.Enriched = false
			outcome.Message = err.Error()
			result.FilesFailed++
			result.Files = append(result.Files, outcome)
			result.Summary += fmt.Sprintf("**** %s:\n- %s\n\n", baseName, err.Error())
			logger.Warnf("Pipeline: %s: %v", baseName, err)
			continue
		}

		result.FilesProcessed++
		result.Files = append(result.Files, outcome)
		result.Summary += fmt.Sprintf("**** %s (%s):%s\n\n", outcome.Title, outcome.Year, outcome.Message)
	}

	return result, nil
}

// processFile runs extraction, resolution, normalization and output
// for a single video file.
func (p *FolderPipeline) processFile(ctx context.Context, dir, baseName string) (FileOutcome, error) {
	var outcome FileOutcome

	key, err := ExtractKey(baseName)
	if err != nil {
		return outcome, err
	}
	outcome.Title = key.Title
	outcome.Year = key.Year

	results, found, err := p.catalog.SearchByKeyword(ctx, key.Title)
	if err != nil {
		return outcome, err
	}
	if !found {
		return outcome, fmt.Errorf("no catalog entry found for %s (%s)", key.Title, key.Year)
	}

	candidate, err := ResolveCandidate(key, results)
	if err != nil {
		return outcome, err
	}
	outcome.FilmID = candidate.FilmID
	outcome.YearMatched = candidate.YearMatched

	raw, found, err := p.catalog.FilmDetail(ctx, candidate.FilmID)
	if err != nil {
		return outcome, err
	}
	if !found {
		return outcome, fmt.Errorf("no film record found for catalog id %d", candidate.FilmID)
	}

	staff, found, err := p.catalog.StaffDetail(ctx, candidate.FilmID, p.maxActors)
	if err != nil {
		return outcome, err
	}
	if !found {
		return outcome, fmt.Errorf("no staff record found for catalog id %d", candidate.FilmID)
	}

	doc, images, emptyFields := NormalizeFilm(raw)
	if len(emptyFields) > 0 {
		logger.Debugf("Pipeline: %s: empty catalog fields: %s", baseName, strings.Join(emptyFields, ", "))
	}
	if title, ok := doc.Get("title"); ok {
		outcome.Title = title
	}
	if year, ok := doc.Get("year"); ok {
		outcome.Year = year
	}

	roster, photos, emptyPhotos := NormalizeStaff(staff)
	if len(emptyPhotos) > 0 {
		logger.Debugf("Pipeline: %s: staff without photos: %s", baseName, strings.Join(emptyPhotos, ", "))
	}

	var messages []string
	if err := WriteSidecar(doc, roster, dir, baseName, p.sidecarExt); err != nil {
		logger.Warnf("Pipeline: %s (%s): %v", key.Title, key.Year, err)
		messages = append(messages, err.Error())
	} else {
		logger.Infof("Pipeline: %s (%s): sidecar written", key.Title, key.Year)
		outcome.SidecarWritten = true
		messages = append(messages, "sidecar file created")
	}

	if err := FetchArtwork(ctx, p.catalog, images, photos, dir, baseName); err != nil {
		logger.Warnf("Pipeline: %s (%s): %v", key.Title, key.Year, err)
		messages = append(messages, err.Error())
	} else {
		logger.Infof("Pipeline: %s (%s): artwork saved", key.Title, key.Year)
		outcome.ArtworkSaved = true
		messages = append(messages, "artwork saved")
	}

	if !candidate.YearMatched {
		logger.Warnf("Pipeline: %s", candidate.Message)
		messages = append(messages, candidate.Message)
	}

	outcome.Enriched = true
	outcome.Message = "\n- " + strings.Join(messages, "\n- ")
	return outcome, nil
}
