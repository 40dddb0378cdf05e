package db

import (
	"database/sql"
	"fmt"
	"time"
)

// Scan is a single library scan cycle.
type Scan struct {
	ID             string     `json:"id"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	Status         string     `json:"status"`
	FilesProcessed int        `json:"files_processed"`
	FilesFailed    int        `json:"files_failed"`
	Summary        string     `json:"summary"`
	Error          string     `json:"error,omitempty"`
}

// ScanFile is the per-file outcome recorded during a scan.
type ScanFile struct {
	ID          int64     `json:"id"`
	ScanID      string    `json:"scan_id"`
	FilePath    string    `json:"file_path"`
	FilmID      int64     `json:"film_id,omitempty"`
	Title       string    `json:"title"`
	Year        string    `json:"year"`
	YearMatched bool      `json:"year_matched"`
	Status      string    `json:"status"`
	Message     string    `json:"message,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Scan statuses.
const (
	ScanStatusRunning   = "running"
	ScanStatusCompleted = "completed"
	ScanStatusFailed    = "failed"
)

// Scan file statuses.
const (
	FileStatusEnriched = "enriched"
	FileStatusFailed   = "failed"
)

// CreateScan inserts a new running scan record.
func (r *Repository) CreateScan(id string, startedAt time.Time) error {
	_, err := ExecWithRetry(r.DB,
		`INSERT INTO scans (id, started_at, status) VALUES (?, ?, ?)`,
		id, startedAt.UTC(), ScanStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to create scan record: %w", err)
	}
	return nil
}

// CompleteScan finalizes a scan record with its outcome.
func (r *Repository) CompleteScan(id, status string, filesProcessed, filesFailed int, summary, errMsg string) error {
	_, err := ExecWithRetry(r.DB,
		`UPDATE scans SET completed_at = ?, status = ?, files_processed = ?, files_failed = ?, summary = ?, error = ? WHERE id = ?`,
		time.Now().UTC(), status, filesProcessed, filesFailed, summary, errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to complete scan record: %w", err)
	}
	return nil
}

// RecordScanFile inserts a per-file outcome row for a scan.
func (r *Repository) RecordScanFile(f ScanFile) error {
	_, err := ExecWithRetry(r.DB,
		`INSERT INTO scan_files (scan_id, file_path, film_id, title, year, year_matched, status, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ScanID, f.FilePath, f.FilmID, f.Title, f.Year, f.YearMatched, f.Status, f.Message, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record scan file: %w", err)
	}
	return nil
}

// ListScans returns a page of scans, newest first.
func (r *Repository) ListScans(limit, offset int) ([]Scan, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := QueryWithRetry(r.DB,
		`SELECT id, started_at, completed_at, status, files_processed, files_failed, summary, error
		 FROM scans ORDER BY started_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	var scans []Scan
	for rows.Next() {
		var s Scan
		var completedAt sql.NullTime
		if err := rows.Scan(&s.ID, &s.StartedAt, &completedAt, &s.Status,
			&s.FilesProcessed, &s.FilesFailed, &s.Summary, &s.Error); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if completedAt.Valid {
			t := completedAt.Time
			s.CompletedAt = &t
		}
		scans = append(scans, s)
	}
	return scans, rows.Err()
}

// CountScans returns the total number of scan records.
func (r *Repository) CountScans() (int, error) {
	var count int
	if err := r.DB.QueryRow(`SELECT COUNT(*) FROM scans`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count scans: %w", err)
	}
	return count, nil
}

// GetScan returns a single scan by ID.
func (r *Repository) GetScan(id string) (Scan, bool, error) {
	var s Scan
	var completedAt sql.NullTime
	err := r.DB.QueryRow(
		`SELECT id, started_at, completed_at, status, files_processed, files_failed, summary, error
		 FROM scans WHERE id = ?`, id).
		Scan(&s.ID, &s.StartedAt, &completedAt, &s.Status,
			&s.FilesProcessed, &s.FilesFailed, &s.Summary, &s.Error)
	if err == sql.ErrNoRows {
		return Scan{}, false, nil
	}
	if err != nil {
		return Scan{}, false, fmt.Errorf("failed to get scan: %w", err)
	}
	if completedAt.Valid {
		t := completedAt.Time
		s.CompletedAt = &t
	}
	return s, true, nil
}

// ListScanFiles returns the per-file outcomes for a scan in insertion order.
func (r *Repository) ListScanFiles(scanID string) ([]ScanFile, error) {
	rows, err := QueryWithRetry(r.DB,
		`SELECT id, scan_id, file_path, COALESCE(film_id, 0), title, year, year_matched, status, message, created_at
		 FROM scan_files WHERE scan_id = ? ORDER BY id`, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan files: %w", err)
	}
	defer rows.Close()

	var files []ScanFile
	for rows.Next() {
		var f ScanFile
		if err := rows.Scan(&f.ID, &f.ScanID, &f.FilePath, &f.FilmID, &f.Title,
			&f.Year, &f.YearMatched, &f.Status, &f.Message, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// GetSetting reads a value from the settings table.
// Returns false when the key is not present.
func (r *Repository) GetSetting(key string) (string, bool, error) {
	var value string
	err := r.DB.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, true, nil
}

// SetSetting upserts a value in the settings table.
func (r *Repository) SetSetting(key, value string) error {
	_, err := ExecWithRetry(r.DB,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// CountEvents returns the total number of persisted events.
func (r *Repository) CountEvents() (int, error) {
	var count int
	if err := r.DB.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// EventRow is a persisted event as stored in the events table.
type EventRow struct {
	ID            int64     `json:"id"`
	AggregateType string    `json:"aggregate_type"`
	AggregateID   string    `json:"aggregate_id"`
	EventType     string    `json:"event_type"`
	EventData     string    `json:"event_data"`
	CreatedAt     time.Time `json:"created_at"`
}

// ListEvents returns a page of persisted events, newest first.
func (r *Repository) ListEvents(limit, offset int) ([]EventRow, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := QueryWithRetry(r.DB,
		`SELECT id, aggregate_type, aggregate_id, event_type, event_data, created_at
		 FROM events ORDER BY id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.EventData, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
