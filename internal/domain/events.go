package domain

import (
	"time"
)

type EventType string

const (
	ScanStarted        EventType = "ScanStarted"
	ScanCompleted      EventType = "ScanCompleted"
	ScanFailed         EventType = "ScanFailed"
	FileEnriched       EventType = "FileEnriched"
	FileFailed         EventType = "FileFailed"
	MatchDegraded      EventType = "MatchDegraded"
	SidecarWritten     EventType = "SidecarWritten"
	ArtworkSaved       EventType = "ArtworkSaved"
	NotificationSent   EventType = "NotificationSent"
	NotificationFailed EventType = "NotificationFailed"
)

// Aggregate types used when persisting events.
const (
	AggregateScan         = "scan"
	AggregateFile         = "file"
	AggregateNotification = "notification"
)

type Event struct {
	ID            int64                  `json:"id"`
	AggregateType string                 `json:"aggregate_type"`
	AggregateID   string                 `json:"aggregate_id"`
	EventType     EventType              `json:"event_type"`
	EventData     map[string]interface{} `json:"event_data"`
	EventVersion  int                    `json:"event_version"`
	CreatedAt     time.Time              `json:"created_at"`
}

// =============================================================================
// Type-safe event data accessors
// These helpers provide compile-time safety when extracting data from events.
// =============================================================================

// GetString safely extracts a string field from EventData.
// Returns the value and true if found and is a string, otherwise empty string and false.
func (e *Event) GetString(key string) (string, bool) {
	if e.EventData == nil {
		return "", false
	}
	v, ok := e.EventData[key].(string)
	return v, ok
}

// GetStringOr extracts a string field or returns the default value.
func (e *Event) GetStringOr(key, defaultVal string) string {
	if v, ok := e.GetString(key); ok {
		return v
	}
	return defaultVal
}

// GetInt64 safely extracts an int64 field from EventData.
// Handles both int64 and float64 (JSON unmarshaling produces float64).
func (e *Event) GetInt64(key string) (int64, bool) {
	if e.EventData == nil {
		return 0, false
	}
	switch v := e.EventData[key].(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// GetInt64Or extracts an int64 field or returns the default value.
func (e *Event) GetInt64Or(key string, defaultVal int64) int64 {
	if v, ok := e.GetInt64(key); ok {
		return v
	}
	return defaultVal
}

// GetBool safely extracts a bool field from EventData.
func (e *Event) GetBool(key string) (bool, bool) {
	if e.EventData == nil {
		return false, false
	}
	v, ok := e.EventData[key].(bool)
	return v, ok
}

// GetBoolOr extracts a bool field or returns the default value.
func (e *Event) GetBoolOr(key string, defaultVal bool) bool {
	if v, ok := e.GetBool(key); ok {
		return v
	}
	return defaultVal
}

// GetStringSlice safely extracts a string slice from EventData.
func (e *Event) GetStringSlice(key string) ([]string, bool) {
	if e.EventData == nil {
		return nil, false
	}
	// Handle []string directly
	if v, ok := e.EventData[key].([]string); ok {
		return v, true
	}
	// Handle []interface{} (from JSON unmarshaling)
	if v, ok := e.EventData[key].([]interface{}); ok {
		result := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result, true
	}
	return nil, false
}

// =============================================================================
// Typed event data structures for common events
// =============================================================================

// FileEnrichedEventData contains data for FileEnriched events.
type FileEnrichedEventData struct {
	FilePath    string `json:"file_path"`
	FilmID      int64  `json:"film_id"`
	Title       string `json:"title"`
	Year        string `json:"year"`
	YearMatched bool   `json:"year_matched"`
}

// ParseFileEnrichedEventData extracts typed enrichment data from an event.
func (e *Event) ParseFileEnrichedEventData() (FileEnrichedEventData, bool) {
	filePath, ok := e.GetString("file_path")
	if !ok {
		return FileEnrichedEventData{}, false
	}
	return FileEnrichedEventData{
		FilePath:    filePath,
		FilmID:      e.GetInt64Or("film_id", 0),
		Title:       e.GetStringOr("title", ""),
		Year:        e.GetStringOr("year", ""),
		YearMatched: e.GetBoolOr("year_matched", false),
	}, true
}

// FileFailedEventData contains data for FileFailed events.
type FileFailedEventData struct {
	FilePath string `json:"file_path"`
	Reason   string `json:"reason"`
}

// ParseFileFailedEventData extracts typed failure data from an event.
func (e *Event) ParseFileFailedEventData() (FileFailedEventData, bool) {
	filePath, ok := e.GetString("file_path")
	if !ok {
		return FileFailedEventData{}, false
	}
	return FileFailedEventData{
		FilePath: filePath,
		Reason:   e.GetStringOr("reason", ""),
	}, true
}

// ScanCompletedEventData contains data for ScanCompleted events.
type ScanCompletedEventData struct {
	ScanID         string `json:"scan_id"`
	FilesProcessed int64  `json:"files_processed"`
	FilesFailed    int64  `json:"files_failed"`
	Summary        string `json:"summary"`
}

// ParseScanCompletedEventData extracts typed scan completion data from an event.
func (e *Event) ParseScanCompletedEventData() (ScanCompletedEventData, bool) {
	scanID, ok := e.GetString("scan_id")
	if !ok {
		return ScanCompletedEventData{}, false
	}
	return ScanCompletedEventData{
		ScanID:         scanID,
		FilesProcessed: e.GetInt64Or("files_processed", 0),
		FilesFailed:    e.GetInt64Or("files_failed", 0),
		Summary:        e.GetStringOr("summary", ""),
	}, true
}
