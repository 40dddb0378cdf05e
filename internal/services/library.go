package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pbelyaev/kinoscribe/internal/db"
	"github.com/pbelyaev/kinoscribe/internal/domain"
	"github.com/pbelyaev/kinoscribe/internal/eventbus"
	"github.com/pbelyaev/kinoscribe/internal/logger"
	"github.com/pbelyaev/kinoscribe/internal/scanner"
)

// FolderProcessor enriches the video files of a single directory.
type FolderProcessor interface {
	ProcessFolder(ctx context.Context, dir string, files []string) (*scanner.FolderResult, error)
}

// LibraryScanner walks the media root, runs the enrichment pipeline on
// every folder and records the outcome as a scan in the database.
// Only one scan runs at a time; an overlapping trigger is skipped.
type LibraryScanner struct {
	repo       *db.Repository
	bus        eventbus.Publisher
	pipeline   FolderProcessor
	mediaRoot  string
	tvShowsDir string

	mu      sync.Mutex
	running bool

	shutdownCh chan struct{}
	wg         sync.WaitGroup
}

func NewLibraryScanner(repo *db.Repository, bus eventbus.Publisher, pipeline FolderProcessor, mediaRoot, tvShowsDir string) *LibraryScanner {
	return &LibraryScanner{
		repo:       repo,
		bus:        bus,
		pipeline:   pipeline,
		mediaRoot:  mediaRoot,
		tvShowsDir: tvShowsDir,
		shutdownCh: make(chan struct{}),
	}
}

// IsScanning reports whether a scan pass is currently in progress.
func (s *LibraryScanner) IsScanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// TriggerAsync starts a scan in the background and returns its ID.
// Returns an error when a scan is already in progress.
func (s *LibraryScanner) TriggerAsync() (string, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return "", fmt.Errorf("a scan is already in progress")
	}
	s.running = true
	s.mu.Unlock()

	scanID := uuid.New().String()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.clearRunning()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-s.shutdownCh:
				cancel()
			case <-ctx.Done():
			}
		}()
		if _, err := s.runScan(ctx, scanID); err != nil {
			logger.Errorf("Scan %s failed: %v", scanID, err)
		}
	}()
	return scanID, nil
}

// RunScan executes a full library pass synchronously. Used by the
// scheduler; overlapping invocations are skipped with a log line.
func (s *LibraryScanner) RunScan(ctx context.Context) (*db.Scan, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		logger.Debugf("Scan already in progress, skipping this cycle")
		return nil, nil
	}
	s.running = true
	s.mu.Unlock()
	defer s.clearRunning()

	return s.runScan(ctx, uuid.New().String())
}

func (s *LibraryScanner) clearRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *LibraryScanner) runScan(ctx context.Context, scanID string) (*db.Scan, error) {
	startedAt := time.Now().UTC()
	if err := s.repo.CreateScan(scanID, startedAt); err != nil {
		return nil, err
	}
	s.publish(domain.Event{
		AggregateType: domain.AggregateScan,
		AggregateID:   scanID,
		EventType:     domain.ScanStarted,
		EventData:     map[string]interface{}{"scan_id": scanID, "media_root": s.mediaRoot},
	})

	folders, err := s.listFolders()
	if err != nil {
		s.failScan(scanID, err)
		return nil, err
	}

	var (
		processed int
		failed    int
		summary   strings.Builder
	)

	for _, folder := range folders {
		select {
		case <-ctx.Done():
			err := ctx.Err()
			s.failScan(scanID, err)
			return nil, err
		default:
		}

		result, err := s.pipeline.ProcessFolder(ctx, folder.path, folder.files)
		if result != nil {
			processed += result.FilesProcessed
			failed += result.FilesFailed
			summary.WriteString(result.Summary)
			s.recordOutcomes(scanID, result.Files)
		}
		if err != nil {
			// Credential, quota and rate-limit failures cannot succeed
			// on any later folder either; abort the pass.
			s.failScan(scanID, err)
			return nil, err
		}
	}

	scanSummary := ""
	if processed > 0 {
		scanSummary = fmt.Sprintf("New films in the library - %d.\n\n%s", processed, summary.String())
	} else if failed > 0 {
		scanSummary = summary.String()
	}

	if err := s.repo.CompleteScan(scanID, db.ScanStatusCompleted, processed, failed, scanSummary, ""); err != nil {
		logger.Errorf("Failed to finalize scan %s: %v", scanID, err)
	}
	s.publish(domain.Event{
		AggregateType: domain.AggregateScan,
		AggregateID:   scanID,
		EventType:     domain.ScanCompleted,
		EventData: map[string]interface{}{
			"scan_id":         scanID,
			"files_processed": processed,
			"files_failed":    failed,
			"summary":         scanSummary,
		},
	})
	if processed > 0 || failed > 0 {
		logger.Infof("Scan %s complete: %d enriched, %d failed", scanID, processed, failed)
	}

	scan, _, err := s.repo.GetScan(scanID)
	if err != nil {
		return nil, err
	}
	return &scan, nil
}

func (s *LibraryScanner) failScan(scanID string, scanErr error) {
	if err := s.repo.CompleteScan(scanID, db.ScanStatusFailed, 0, 0, "", scanErr.Error()); err != nil {
		logger.Errorf("Failed to mark scan %s failed: %v", scanID, err)
	}
	s.publish(domain.Event{
		AggregateType: domain.AggregateScan,
		AggregateID:   scanID,
		EventType:     domain.ScanFailed,
		EventData:     map[string]interface{}{"scan_id": scanID, "reason": scanErr.Error()},
	})
}

// recordOutcomes persists per-file rows and fans out file-level events.
func (s *LibraryScanner) recordOutcomes(scanID string, outcomes []scanner.FileOutcome) {
	for _, o := range outcomes {
		status := db.FileStatusEnriched
		if !o.Enriched {
			status = db.FileStatusFailed
		}
		if err := s.repo.RecordScanFile(db.ScanFile{
			ScanID:      scanID,
			FilePath:    o.FilePath,
			FilmID:      o.FilmID,
			Title:       o.Title,
			Year:        o.Year,
			YearMatched: o.YearMatched,
			Status:      status,
			Message:     o.Message,
		}); err != nil {
			logger.Errorf("Failed to record scan file %s: %v", o.FilePath, err)
		}

		if !o.Enriched {
			s.publish(domain.Event{
				AggregateType: domain.AggregateFile,
				AggregateID:   o.FilePath,
				EventType:     domain.FileFailed,
				EventData:     map[string]interface{}{"file_path": o.FilePath, "reason": o.Message},
			})
			continue
		}

		s.publish(domain.Event{
			AggregateType: domain.AggregateFile,
			AggregateID:   o.FilePath,
			EventType:     domain.FileEnriched,
			EventData: map[string]interface{}{
				"file_path":    o.FilePath,
				"film_id":      o.FilmID,
				"title":        o.Title,
				"year":         o.Year,
				"year_matched": o.YearMatched,
			},
		})
		if o.SidecarWritten {
			s.publish(domain.Event{
				AggregateType: domain.AggregateFile,
				AggregateID:   o.FilePath,
				EventType:     domain.SidecarWritten,
				EventData:     map[string]interface{}{"file_path": o.FilePath, "film_id": o.FilmID},
			})
		}
		if o.ArtworkSaved {
			s.publish(domain.Event{
				AggregateType: domain.AggregateFile,
				AggregateID:   o.FilePath,
				EventType:     domain.ArtworkSaved,
				EventData:     map[string]interface{}{"file_path": o.FilePath, "film_id": o.FilmID},
			})
		}
		if !o.YearMatched {
			s.publish(domain.Event{
				AggregateType: domain.AggregateFile,
				AggregateID:   o.FilePath,
				EventType:     domain.MatchDegraded,
				EventData: map[string]interface{}{
					"file_path": o.FilePath,
					"film_id":   o.FilmID,
					"title":     o.Title,
					"year":      o.Year,
				},
			})
		}
	}
}

func (s *LibraryScanner) publish(event domain.Event) {
	if err := s.bus.Publish(event); err != nil {
		logger.Errorf("Failed to publish %s event: %v", event.EventType, err)
	}
}

type libraryFolder struct {
	path  string
	files []string
}

// listFolders walks the media root depth-first and returns every
// directory together with its file names. The TV shows directory and
// hidden directories (including per-folder actor photo caches) are
// pruned from the walk.
func (s *LibraryScanner) listFolders() ([]libraryFolder, error) {
	var folders []libraryFolder

	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("failed to read library directory %s: %w", dir, err)
		}

		var files []string
		var subdirs []string
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() {
				if strings.HasPrefix(name, ".") || name == s.tvShowsDir {
					continue
				}
				subdirs = append(subdirs, name)
				continue
			}
			files = append(files, name)
		}
		sort.Strings(files)
		sort.Strings(subdirs)

		folders = append(folders, libraryFolder{path: dir, files: files})
		for _, sub := range subdirs {
			if err := walk(filepath.Join(dir, sub)); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(s.mediaRoot); err != nil {
		return nil, err
	}
	return folders, nil
}

// Shutdown cancels any in-flight scan and waits for it to stop.
func (s *LibraryScanner) Shutdown() {
	close(s.shutdownCh)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warnf("Scanner: timeout waiting for active scan to stop")
	}
}
