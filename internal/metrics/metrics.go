package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pbelyaev/kinoscribe/internal/domain"
	"github.com/pbelyaev/kinoscribe/internal/eventbus"
	"github.com/pbelyaev/kinoscribe/internal/logger"
)

// MetricsService exposes Prometheus metrics fed by the event bus.
type MetricsService struct {
	eventBus eventbus.Publisher
	registry *prometheus.Registry

	// Counters
	filesEnriched      prometheus.Counter
	filesFailed        prometheus.Counter
	sidecarsWritten    prometheus.Counter
	artworkSaved       prometheus.Counter
	matchesDegraded    prometheus.Counter
	scansTotal         *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec

	// Gauges
	scanInProgress prometheus.Gauge

	// Histograms
	scanDuration prometheus.Histogram

	// Scan start times keyed by scan ID, for duration observation
	mu         sync.Mutex
	scanStarts map[string]time.Time
}

// NewMetricsService creates the service and registers its metrics on
// its own registry, so the process can run several test instances
// without collisions.
func NewMetricsService(eb eventbus.Publisher) *MetricsService {
	m := &MetricsService{
		eventBus:   eb,
		registry:   prometheus.NewRegistry(),
		scanStarts: make(map[string]time.Time),

		filesEnriched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kinoscribe_files_enriched_total",
			Help: "Total number of video files enriched with metadata",
		}),

		filesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kinoscribe_files_failed_total",
			Help: "Total number of video files that failed enrichment",
		}),

		sidecarsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kinoscribe_sidecars_written_total",
			Help: "Total number of metadata sidecar files written",
		}),

		artworkSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kinoscribe_artwork_saved_total",
			Help: "Total number of files whose artwork was downloaded",
		}),

		matchesDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kinoscribe_matches_degraded_total",
			Help: "Total number of catalog matches without an exact release year",
		}),

		scansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kinoscribe_scans_total",
				Help: "Total number of library scans by outcome",
			},
			[]string{"outcome"}, // completed, failed
		),

		notificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kinoscribe_notifications_total",
				Help: "Total number of notifications by outcome",
			},
			[]string{"outcome"}, // sent, failed
		),

		scanInProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kinoscribe_scan_in_progress",
			Help: "Whether a library scan is currently running (0 or 1)",
		}),

		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kinoscribe_scan_duration_seconds",
			Help:    "Duration of library scans in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to ~13min
		}),
	}

	m.registry.MustRegister(
		m.filesEnriched,
		m.filesFailed,
		m.sidecarsWritten,
		m.artworkSaved,
		m.matchesDegraded,
		m.scansTotal,
		m.notificationsTotal,
		m.scanInProgress,
		m.scanDuration,
	)

	return m
}

// Start subscribes to the events that drive the metrics.
func (m *MetricsService) Start() {
	m.eventBus.Subscribe(domain.ScanStarted, m.handleScanStarted)
	m.eventBus.Subscribe(domain.ScanCompleted, m.handleScanCompleted)
	m.eventBus.Subscribe(domain.ScanFailed, m.handleScanFailed)
	m.eventBus.Subscribe(domain.FileEnriched, m.handleFileEnriched)
	m.eventBus.Subscribe(domain.FileFailed, m.handleFileFailed)
	m.eventBus.Subscribe(domain.SidecarWritten, m.handleSidecarWritten)
	m.eventBus.Subscribe(domain.ArtworkSaved, m.handleArtworkSaved)
	m.eventBus.Subscribe(domain.MatchDegraded, m.handleMatchDegraded)
	m.eventBus.Subscribe(domain.NotificationSent, m.handleNotificationSent)
	m.eventBus.Subscribe(domain.NotificationFailed, m.handleNotificationFailed)

	logger.Infof("Metrics service started")
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (m *MetricsService) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Event handlers

func (m *MetricsService) handleScanStarted(event domain.Event) {
	m.scanInProgress.Set(1)

	if scanID, ok := event.GetString("scan_id"); ok {
		m.mu.Lock()
		m.scanStarts[scanID] = time.Now()
		m.mu.Unlock()
	}
}

func (m *MetricsService) handleScanCompleted(event domain.Event) {
	m.scansTotal.WithLabelValues("completed").Inc()
	m.scanInProgress.Set(0)
	m.observeScanDuration(event)
}

func (m *MetricsService) handleScanFailed(event domain.Event) {
	m.scansTotal.WithLabelValues("failed").Inc()
	m.scanInProgress.Set(0)
	m.observeScanDuration(event)
}

func (m *MetricsService) observeScanDuration(event domain.Event) {
	scanID, ok := event.GetString("scan_id")
	if !ok {
		return
	}
	m.mu.Lock()
	start, tracked := m.scanStarts[scanID]
	delete(m.scanStarts, scanID)
	m.mu.Unlock()
	if tracked {
		m.scanDuration.Observe(time.Since(start).Seconds())
	}
}

func (m *MetricsService) handleFileEnriched(event domain.Event) {
	m.filesEnriched.Inc()
}

func (m *MetricsService) handleFileFailed(event domain.Event) {
	m.filesFailed.Inc()
}

func (m *MetricsService) handleSidecarWritten(event domain.Event) {
	m.sidecarsWritten.Inc()
}

func (m *MetricsService) handleArtworkSaved(event domain.Event) {
	m.artworkSaved.Inc()
}

func (m *MetricsService) handleMatchDegraded(event domain.Event) {
	m.matchesDegraded.Inc()
}

func (m *MetricsService) handleNotificationSent(event domain.Event) {
	m.notificationsTotal.WithLabelValues("sent").Inc()
}

func (m *MetricsService) handleNotificationFailed(event domain.Event) {
	m.notificationsTotal.WithLabelValues("failed").Inc()
}
