package testutil

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pbelyaev/kinoscribe/internal/domain"
	_ "modernc.org/sqlite"
)

// NewTestDB creates an in-memory SQLite database with the kinoscribe schema.
// Returns a database handle that should be closed by the caller.
func NewTestDB() (*sql.DB, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}

	if err := initializeSchema(db); err != nil {
		_ = db.Close() // Ignore close error since we're already returning an error
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// initializeSchema creates all required tables for testing.
func initializeSchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	// Events table (source of truth for the event bus)
	_, err := db.Exec(`
		CREATE TABLE events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			aggregate_type TEXT NOT NULL,
			aggregate_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			event_data JSON NOT NULL,
			event_version INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create events table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX idx_aggregate ON events(aggregate_type, aggregate_id)`)
	if err != nil {
		return fmt.Errorf("failed to create aggregate index: %w", err)
	}
	_, err = db.Exec(`CREATE INDEX idx_event_type ON events(event_type)`)
	if err != nil {
		return fmt.Errorf("failed to create event_type index: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE scans (
			id TEXT PRIMARY KEY,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP,
			status TEXT NOT NULL DEFAULT 'running',
			files_processed INTEGER NOT NULL DEFAULT 0,
			files_failed INTEGER NOT NULL DEFAULT 0,
			summary TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create scans table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE scan_files (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			scan_id TEXT NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
			file_path TEXT NOT NULL,
			film_id INTEGER,
			title TEXT NOT NULL DEFAULT '',
			year TEXT NOT NULL DEFAULT '',
			year_matched INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create scan_files table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create settings table: %w", err)
	}

	return nil
}

// SeedEvent inserts a single event into the test database.
func SeedEvent(db *sql.DB, event domain.Event) (int64, error) {
	eventDataJSON, err := json.Marshal(event.EventData)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event data: %w", err)
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	if event.EventVersion == 0 {
		event.EventVersion = 1
	}

	result, err := db.Exec(`
		INSERT INTO events (aggregate_type, aggregate_id, event_type, event_data, event_version, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, event.AggregateType, event.AggregateID, event.EventType, eventDataJSON, event.EventVersion, event.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get inserted ID: %w", err)
	}
	return id, nil
}

// SeedEvents inserts multiple events into the test database.
func SeedEvents(db *sql.DB, events []domain.Event) error {
	for _, event := range events {
		if _, err := SeedEvent(db, event); err != nil {
			return err
		}
	}
	return nil
}

// SeedScan inserts a completed scan record into the test database.
func SeedScan(db *sql.DB, id string, status string, filesProcessed, filesFailed int, summary string) error {
	now := time.Now().UTC()
	_, err := db.Exec(`
		INSERT INTO scans (id, started_at, completed_at, status, files_processed, files_failed, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, now, now, status, filesProcessed, filesFailed, summary)
	return err
}

// GetEventsByAggregate retrieves all events for a given aggregate ID.
func GetEventsByAggregate(db *sql.DB, aggregateID string) ([]domain.Event, error) {
	rows, err := db.Query(`
		SELECT id, aggregate_type, aggregate_id, event_type, event_data, event_version, created_at
		FROM events WHERE aggregate_id = ? ORDER BY id ASC
	`, aggregateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var eventDataJSON string
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &eventDataJSON, &e.EventVersion, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(eventDataJSON), &e.EventData); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountEventsByType counts events of a given type.
func CountEventsByType(db *sql.DB, eventType domain.EventType) (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM events WHERE event_type = ?", eventType).Scan(&count)
	return count, err
}

// ClearEvents removes all events from the database.
func ClearEvents(db *sql.DB) error {
	_, err := db.Exec("DELETE FROM events")
	return err
}

// ClearAllTables removes all data from all tables.
func ClearAllTables(db *sql.DB) error {
	tables := []string{"events", "scan_files", "scans", "settings"}
	for _, table := range tables {
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}
