package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/pbelyaev/kinoscribe/internal/domain"
)

// EventOption is a functional option for configuring test events.
type EventOption func(*domain.Event)

// WithAggregateID sets a specific aggregate ID.
func WithAggregateID(id string) EventOption {
	return func(e *domain.Event) {
		e.AggregateID = id
	}
}

// WithCreatedAt sets the event creation time.
func WithCreatedAt(t time.Time) EventOption {
	return func(e *domain.Event) {
		e.CreatedAt = t
	}
}

// WithEventData merges additional data into EventData.
func WithEventData(data map[string]interface{}) EventOption {
	return func(e *domain.Event) {
		if e.EventData == nil {
			e.EventData = make(map[string]interface{})
		}
		for k, v := range data {
			e.EventData[k] = v
		}
	}
}

// NewFileEnrichedEvent creates a FileEnriched event for testing.
func NewFileEnrichedEvent(filePath string, filmID int64, opts ...EventOption) domain.Event {
	event := domain.Event{
		AggregateType: domain.AggregateFile,
		AggregateID:   uuid.New().String(),
		EventType:     domain.FileEnriched,
		EventVersion:  1,
		CreatedAt:     time.Now(),
		EventData: map[string]interface{}{
			"file_path":    filePath,
			"film_id":      filmID,
			"title":        "Test Movie",
			"year":         "2024",
			"year_matched": true,
		},
	}

	for _, opt := range opts {
		opt(&event)
	}

	return event
}

// NewFileFailedEvent creates a FileFailed event for testing.
func NewFileFailedEvent(filePath, reason string, opts ...EventOption) domain.Event {
	event := domain.Event{
		AggregateType: domain.AggregateFile,
		AggregateID:   uuid.New().String(),
		EventType:     domain.FileFailed,
		EventVersion:  1,
		CreatedAt:     time.Now(),
		EventData: map[string]interface{}{
			"file_path": filePath,
			"reason":    reason,
		},
	}

	for _, opt := range opts {
		opt(&event)
	}

	return event
}

// NewScanCompletedEvent creates a ScanCompleted event for testing.
func NewScanCompletedEvent(scanID string, filesProcessed int, summary string, opts ...EventOption) domain.Event {
	event := domain.Event{
		AggregateType: domain.AggregateScan,
		AggregateID:   scanID,
		EventType:     domain.ScanCompleted,
		EventVersion:  1,
		CreatedAt:     time.Now(),
		EventData: map[string]interface{}{
			"scan_id":         scanID,
			"files_processed": filesProcessed,
			"files_failed":    0,
			"summary":         summary,
		},
	}

	for _, opt := range opts {
		opt(&event)
	}

	return event
}

// NewScanFailedEvent creates a ScanFailed event for testing.
func NewScanFailedEvent(scanID, errMsg string, opts ...EventOption) domain.Event {
	event := domain.Event{
		AggregateType: domain.AggregateScan,
		AggregateID:   scanID,
		EventType:     domain.ScanFailed,
		EventVersion:  1,
		CreatedAt:     time.Now(),
		EventData: map[string]interface{}{
			"scan_id": scanID,
			"reason":  errMsg,
		},
	}

	for _, opt := range opts {
		opt(&event)
	}

	return event
}

// TestFilePaths provides common test file paths.
var TestFilePaths = struct {
	Movie1 string
	Movie2 string
	NoYear string
}{
	Movie1: "/media/movies/Inception.2010/Inception.2010.mkv",
	Movie2: "/media/movies/Another Film (2023)/Another Film (2023).mp4",
	NoYear: "/media/movies/SomeMovie/SomeMovie.mkv",
}

// TestScanFlow returns a sequence of events representing a full scan cycle.
func TestScanFlow(scanID, filePath string, filmID int64) []domain.Event {
	baseTime := time.Now()

	return []domain.Event{
		{
			AggregateType: domain.AggregateScan,
			AggregateID:   scanID,
			EventType:     domain.ScanStarted,
			EventVersion:  1,
			CreatedAt:     baseTime,
			EventData: map[string]interface{}{
				"scan_id": scanID,
			},
		},
		{
			AggregateType: domain.AggregateFile,
			AggregateID:   uuid.New().String(),
			EventType:     domain.FileEnriched,
			EventVersion:  1,
			CreatedAt:     baseTime.Add(1 * time.Second),
			EventData: map[string]interface{}{
				"file_path":    filePath,
				"film_id":      filmID,
				"year_matched": true,
			},
		},
		{
			AggregateType: domain.AggregateScan,
			AggregateID:   scanID,
			EventType:     domain.ScanCompleted,
			EventVersion:  1,
			CreatedAt:     baseTime.Add(2 * time.Second),
			EventData: map[string]interface{}{
				"scan_id":         scanID,
				"files_processed": 1,
				"files_failed":    0,
			},
		},
	}
}
