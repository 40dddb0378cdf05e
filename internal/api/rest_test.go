package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/pbelyaev/kinoscribe/internal/config"
	"github.com/pbelyaev/kinoscribe/internal/db"
	"github.com/pbelyaev/kinoscribe/internal/eventbus"
	"github.com/pbelyaev/kinoscribe/internal/metrics"
	"github.com/pbelyaev/kinoscribe/internal/testutil"
)

// fakeScanner implements ScanTrigger for handler tests.
type fakeScanner struct {
	scanID   string
	err      error
	scanning bool
	triggers int
}

func (f *fakeScanner) TriggerAsync() (string, error) {
	f.triggers++
	return f.scanID, f.err
}

func (f *fakeScanner) IsScanning() bool { return f.scanning }

type testServer struct {
	server  *RESTServer
	repo    *db.Repository
	bus     *eventbus.EventBus
	scanner *fakeScanner
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	gin.SetMode(gin.TestMode)

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	cfg := config.NewTestConfig()
	cfg.DatabasePath = dbPath
	cfg.LogDir = filepath.Join(tmpDir, "logs")
	config.SetForTesting(cfg)

	repo, err := db.NewRepository(dbPath)
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}

	bus := eventbus.NewEventBus(repo.DB)
	scanner := &fakeScanner{scanID: "scan-123"}
	m := metrics.NewMetricsService(bus)

	s := NewRESTServer(ServerDeps{
		Repo:     repo,
		EventBus: bus,
		Scanner:  scanner,
		Metrics:  m,
	})

	t.Cleanup(func() {
		s.hub.Shutdown()
		bus.Shutdown()
		repo.Close()
	})

	return &testServer{server: s, repo: repo, bus: bus, scanner: scanner}
}

func (ts *testServer) request(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()

	req, err := http.NewRequest(method, path, nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	w := httptest.NewRecorder()
	ts.server.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	return body
}

func seedScan(t *testing.T, repo *db.Repository, id, status string) {
	t.Helper()

	if err := repo.CreateScan(id, time.Now()); err != nil {
		t.Fatalf("Failed to create scan: %v", err)
	}
	if status != db.ScanStatusRunning {
		if err := repo.CompleteScan(id, status, 1, 0, "New films in the library - 1.", ""); err != nil {
			t.Fatalf("Failed to complete scan: %v", err)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	w := ts.request(t, "GET", "/api/health")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeJSON(t, w)
	if body["status"] != "healthy" {
		t.Errorf("Expected status healthy, got %v", body["status"])
	}
	if body["scan_in_progress"] != false {
		t.Errorf("Expected scan_in_progress=false, got %v", body["scan_in_progress"])
	}
}

func TestHealthEndpoint_ReportsActiveScan(t *testing.T) {
	ts := setupTestServer(t)
	ts.scanner.scanning = true

	body := decodeJSON(t, ts.request(t, "GET", "/api/health"))
	if body["scan_in_progress"] != true {
		t.Errorf("Expected scan_in_progress=true, got %v", body["scan_in_progress"])
	}
}

func TestTriggerScan(t *testing.T) {
	ts := setupTestServer(t)

	w := ts.request(t, "POST", "/api/scans")
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeJSON(t, w)
	if body["scan_id"] != "scan-123" {
		t.Errorf("Expected scan_id scan-123, got %v", body["scan_id"])
	}
	if body["status"] != "started" {
		t.Errorf("Expected status started, got %v", body["status"])
	}
	if ts.scanner.triggers != 1 {
		t.Errorf("Expected 1 trigger, got %d", ts.scanner.triggers)
	}
}

func TestTriggerScan_Conflict(t *testing.T) {
	ts := setupTestServer(t)
	ts.scanner.err = errors.New("a scan is already in progress")

	w := ts.request(t, "POST", "/api/scans")
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected status 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestListScans(t *testing.T) {
	ts := setupTestServer(t)
	seedScan(t, ts.repo, "scan-a", db.ScanStatusCompleted)
	seedScan(t, ts.repo, "scan-b", db.ScanStatusFailed)

	w := ts.request(t, "GET", "/api/scans")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeJSON(t, w)
	scans, ok := body["scans"].([]interface{})
	if !ok {
		t.Fatalf("Expected scans array, got %T", body["scans"])
	}
	if len(scans) != 2 {
		t.Errorf("Expected 2 scans, got %d", len(scans))
	}

	pagination, ok := body["pagination"].(map[string]interface{})
	if !ok {
		t.Fatal("Expected pagination object")
	}
	if pagination["total"] != float64(2) {
		t.Errorf("Expected total=2, got %v", pagination["total"])
	}
}

func TestListScans_Pagination(t *testing.T) {
	ts := setupTestServer(t)
	seedScan(t, ts.repo, "scan-a", db.ScanStatusCompleted)
	seedScan(t, ts.repo, "scan-b", db.ScanStatusCompleted)
	seedScan(t, ts.repo, "scan-c", db.ScanStatusCompleted)

	body := decodeJSON(t, ts.request(t, "GET", "/api/scans?page=2&limit=2"))
	scans := body["scans"].([]interface{})
	if len(scans) != 1 {
		t.Errorf("Expected 1 scan on page 2, got %d", len(scans))
	}

	pagination := body["pagination"].(map[string]interface{})
	if pagination["total_pages"] != float64(2) {
		t.Errorf("Expected total_pages=2, got %v", pagination["total_pages"])
	}
}

func TestGetScan(t *testing.T) {
	ts := setupTestServer(t)
	seedScan(t, ts.repo, "scan-a", db.ScanStatusCompleted)

	w := ts.request(t, "GET", "/api/scans/scan-a")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeJSON(t, w)
	if body["id"] != "scan-a" {
		t.Errorf("Expected id scan-a, got %v", body["id"])
	}
	if body["status"] != db.ScanStatusCompleted {
		t.Errorf("Expected status completed, got %v", body["status"])
	}
}

func TestGetScan_NotFound(t *testing.T) {
	ts := setupTestServer(t)

	w := ts.request(t, "GET", "/api/scans/no-such-scan")
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", w.Code)
	}

	body := decodeJSON(t, w)
	if body["error"] != "Scan not found" {
		t.Errorf("Expected 'Scan not found', got %v", body["error"])
	}
}

func TestGetScanFiles(t *testing.T) {
	ts := setupTestServer(t)
	seedScan(t, ts.repo, "scan-a", db.ScanStatusCompleted)

	files := []db.ScanFile{
		{ScanID: "scan-a", FilePath: "/media/Inception.2010.mkv", FilmID: 447301, Title: "Начало", Year: "2010", YearMatched: true, Status: db.FileStatusEnriched},
		{ScanID: "scan-a", FilePath: "/media/Broken.mkv", Status: db.FileStatusFailed, Message: "no catalog entry"},
	}
	for _, f := range files {
		if err := ts.repo.RecordScanFile(f); err != nil {
			t.Fatalf("Failed to record scan file: %v", err)
		}
	}

	w := ts.request(t, "GET", "/api/scans/scan-a/files")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeJSON(t, w)
	got, ok := body["files"].([]interface{})
	if !ok {
		t.Fatalf("Expected files array, got %T", body["files"])
	}
	if len(got) != 2 {
		t.Errorf("Expected 2 files, got %d", len(got))
	}
}

func TestGetScanFiles_UnknownScan(t *testing.T) {
	ts := setupTestServer(t)

	w := ts.request(t, "GET", "/api/scans/no-such-scan/files")
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", w.Code)
	}
}

func TestListEvents(t *testing.T) {
	ts := setupTestServer(t)

	if err := ts.bus.Publish(testutil.NewFileEnrichedEvent("/media/Inception.2010.mkv", 447301)); err != nil {
		t.Fatalf("Failed to publish event: %v", err)
	}
	if err := ts.bus.Publish(testutil.NewFileFailedEvent("/media/Broken.mkv", "no catalog entry")); err != nil {
		t.Fatalf("Failed to publish event: %v", err)
	}

	w := ts.request(t, "GET", "/api/events")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeJSON(t, w)
	events, ok := body["events"].([]interface{})
	if !ok {
		t.Fatalf("Expected events array, got %T", body["events"])
	}
	if len(events) != 2 {
		t.Errorf("Expected 2 events, got %d", len(events))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	w := ts.request(t, "GET", "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "kinoscribe_") {
		t.Error("Expected kinoscribe metrics in scrape output")
	}
}

func TestRecentLogs_NoLogFile(t *testing.T) {
	ts := setupTestServer(t)

	w := ts.request(t, "GET", "/api/logs/recent")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("Expected empty array, got %s", w.Body.String())
	}
}

func TestUnknownRoute(t *testing.T) {
	ts := setupTestServer(t)

	w := ts.request(t, "GET", "/api/does-not-exist")
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", w.Code)
	}

	body := decodeJSON(t, w)
	if body["error"] != "endpoint not found" {
		t.Errorf("Expected 'endpoint not found', got %v", body["error"])
	}
}

func TestRequestIDHeader(t *testing.T) {
	ts := setupTestServer(t)

	req, _ := http.NewRequest("GET", "/api/health", nil)
	req.Header.Set("X-Request-ID", "custom-id-123")
	w := httptest.NewRecorder()
	ts.server.router.ServeHTTP(w, req)

	if w.Header().Get("X-Request-ID") != "custom-id-123" {
		t.Errorf("Expected X-Request-ID 'custom-id-123', got %s", w.Header().Get("X-Request-ID"))
	}

	// Missing header gets a generated ID
	req2, _ := http.NewRequest("GET", "/api/health", nil)
	w2 := httptest.NewRecorder()
	ts.server.router.ServeHTTP(w2, req2)

	if w2.Header().Get("X-Request-ID") == "" {
		t.Error("Expected generated X-Request-ID header")
	}
}

func TestWebSocketConnection(t *testing.T) {
	ts := setupTestServer(t)

	srv := httptest.NewServer(ts.server.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to dial WebSocket: %v", err)
	}
	defer conn.Close()

	// The hub sends an initial ping message after registration
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]interface{}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Failed to read initial message: %v", err)
	}
	if msg["type"] != "ping" {
		t.Errorf("Expected initial ping message, got %v", msg["type"])
	}

	// Registration is async relative to the dial
	deadline := time.Now().Add(time.Second)
	for ts.server.hub.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := ts.server.hub.ClientCount(); got != 1 {
		t.Errorf("Expected 1 connected client, got %d", got)
	}
}

func TestWebSocketBroadcastsEvents(t *testing.T) {
	ts := setupTestServer(t)

	srv := httptest.NewServer(ts.server.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to dial WebSocket: %v", err)
	}
	defer conn.Close()

	// Drain the initial ping
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ping map[string]interface{}
	if err := conn.ReadJSON(&ping); err != nil {
		t.Fatalf("Failed to read initial ping: %v", err)
	}

	// Wait for registration before publishing
	deadline := time.Now().Add(time.Second)
	for ts.server.hub.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if err := ts.bus.Publish(testutil.NewFileEnrichedEvent("/media/Inception.2010.mkv", 447301)); err != nil {
		t.Fatalf("Failed to publish event: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]interface{}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Failed to read broadcast: %v", err)
	}
	if msg["type"] != "event" {
		t.Errorf("Expected event message, got %v", msg["type"])
	}
}
