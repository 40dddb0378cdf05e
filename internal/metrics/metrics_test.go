package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pbelyaev/kinoscribe/internal/domain"
	"github.com/pbelyaev/kinoscribe/internal/testutil"
)

func newTestMetrics(t *testing.T) (*MetricsService, *testutil.MockEventBus) {
	t.Helper()
	bus := testutil.NewMockEventBus()
	m := NewMetricsService(bus)
	m.Start()
	return m, bus
}

// scrape renders the /metrics endpoint to a string.
func scrape(t *testing.T, m *MetricsService) string {
	t.Helper()
	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("Failed to scrape metrics: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read metrics body: %v", err)
	}
	return string(body)
}

func assertMetric(t *testing.T, body, line string) {
	t.Helper()
	if !strings.Contains(body, line) {
		t.Errorf("Metrics output missing %q", line)
	}
}

func TestMetrics_FileCounters(t *testing.T) {
	m, bus := newTestMetrics(t)

	bus.Publish(testutil.NewFileEnrichedEvent("/media/movies/Inception.2010.mkv", 447301))
	bus.Publish(testutil.NewFileEnrichedEvent("/media/movies/Heat.1995.mkv", 535))
	bus.Publish(testutil.NewFileFailedEvent("/media/movies/Broken.mkv", "no year found"))

	body := scrape(t, m)
	assertMetric(t, body, "kinoscribe_files_enriched_total 2")
	assertMetric(t, body, "kinoscribe_files_failed_total 1")
}

func TestMetrics_OutputCounters(t *testing.T) {
	m, bus := newTestMetrics(t)

	for _, eventType := range []domain.EventType{
		domain.SidecarWritten,
		domain.ArtworkSaved,
		domain.MatchDegraded,
	} {
		bus.Publish(domain.Event{
			AggregateType: domain.AggregateFile,
			AggregateID:   "/media/movies/Inception.2010.mkv",
			EventType:     eventType,
			EventData:     map[string]interface{}{"file_path": "/media/movies/Inception.2010.mkv"},
		})
	}

	body := scrape(t, m)
	assertMetric(t, body, "kinoscribe_sidecars_written_total 1")
	assertMetric(t, body, "kinoscribe_artwork_saved_total 1")
	assertMetric(t, body, "kinoscribe_matches_degraded_total 1")
}

func TestMetrics_ScanOutcomes(t *testing.T) {
	m, bus := newTestMetrics(t)

	bus.Publish(testutil.NewScanCompletedEvent("scan-1", 3, "summary"))
	bus.Publish(testutil.NewScanCompletedEvent("scan-2", 0, ""))
	bus.Publish(testutil.NewScanFailedEvent("scan-3", "catalog: API unreachable"))

	body := scrape(t, m)
	assertMetric(t, body, `kinoscribe_scans_total{outcome="completed"} 2`)
	assertMetric(t, body, `kinoscribe_scans_total{outcome="failed"} 1`)
}

func TestMetrics_ScanInProgressGauge(t *testing.T) {
	m, bus := newTestMetrics(t)

	bus.Publish(domain.Event{
		AggregateType: domain.AggregateScan,
		AggregateID:   "scan-1",
		EventType:     domain.ScanStarted,
		EventData:     map[string]interface{}{"scan_id": "scan-1"},
	})
	assertMetric(t, scrape(t, m), "kinoscribe_scan_in_progress 1")

	bus.Publish(testutil.NewScanCompletedEvent("scan-1", 0, ""))
	assertMetric(t, scrape(t, m), "kinoscribe_scan_in_progress 0")
}

func TestMetrics_ScanDurationObserved(t *testing.T) {
	m, bus := newTestMetrics(t)

	bus.Publish(domain.Event{
		AggregateType: domain.AggregateScan,
		AggregateID:   "scan-1",
		EventType:     domain.ScanStarted,
		EventData:     map[string]interface{}{"scan_id": "scan-1"},
	})
	bus.Publish(testutil.NewScanCompletedEvent("scan-1", 1, "summary"))

	assertMetric(t, scrape(t, m), "kinoscribe_scan_duration_seconds_count 1")

	m.mu.Lock()
	remaining := len(m.scanStarts)
	m.mu.Unlock()
	if remaining != 0 {
		t.Errorf("Scan start tracking not cleaned up: %d entries", remaining)
	}
}

func TestMetrics_UntrackedScanCompletionIgnored(t *testing.T) {
	m, bus := newTestMetrics(t)

	// Completion without a matching start must not observe a duration
	bus.Publish(testutil.NewScanCompletedEvent("scan-unknown", 0, ""))

	assertMetric(t, scrape(t, m), "kinoscribe_scan_duration_seconds_count 0")
}

func TestMetrics_NotificationOutcomes(t *testing.T) {
	m, bus := newTestMetrics(t)

	for i := 0; i < 2; i++ {
		bus.Publish(domain.Event{
			AggregateType: domain.AggregateNotification,
			AggregateID:   "NotificationSent",
			EventType:     domain.NotificationSent,
			EventData:     map[string]interface{}{"message": "New films in the library - 1."},
		})
	}
	bus.Publish(domain.Event{
		AggregateType: domain.AggregateNotification,
		AggregateID:   "NotificationFailed",
		EventType:     domain.NotificationFailed,
		EventData:     map[string]interface{}{"reason": "telegram unreachable"},
	})

	body := scrape(t, m)
	assertMetric(t, body, `kinoscribe_notifications_total{outcome="sent"} 2`)
	assertMetric(t, body, `kinoscribe_notifications_total{outcome="failed"} 1`)
}

func TestMetrics_IndependentInstances(t *testing.T) {
	m1, bus1 := newTestMetrics(t)
	m2, _ := newTestMetrics(t)

	bus1.Publish(testutil.NewFileEnrichedEvent("/media/movies/Inception.2010.mkv", 447301))

	assertMetric(t, scrape(t, m1), "kinoscribe_files_enriched_total 1")
	assertMetric(t, scrape(t, m2), "kinoscribe_files_enriched_total 0")
}
