package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pbelyaev/kinoscribe/internal/api"
	"github.com/pbelyaev/kinoscribe/internal/catalog"
	"github.com/pbelyaev/kinoscribe/internal/config"
	"github.com/pbelyaev/kinoscribe/internal/db"
	"github.com/pbelyaev/kinoscribe/internal/eventbus"
	"github.com/pbelyaev/kinoscribe/internal/logger"
	"github.com/pbelyaev/kinoscribe/internal/metrics"
	"github.com/pbelyaev/kinoscribe/internal/notifier"
	"github.com/pbelyaev/kinoscribe/internal/scanner"
	"github.com/pbelyaev/kinoscribe/internal/services"
)

func main() {
	// Define command line flags (these override environment variables)
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.BoolVar(showVersion, "v", false, "Print version and exit (shorthand)")

	// Configuration flags - all can also be set via environment variables (KINOSCRIBE_*)
	flagMediaRoot := flag.String("media-root", "", "Library directory to scan (env: KINOSCRIBE_MEDIA_ROOT)")
	flagAPIKey := flag.String("api-key", "", "Catalog API key (env: KINOSCRIBE_API_KEY)")
	flagAPIBaseURL := flag.String("api-base-url", "", "Catalog API base URL (env: KINOSCRIBE_API_BASE_URL)")
	flagNotifyURL := flag.String("notify-url", "", "Shoutrrr notification URL (env: KINOSCRIBE_NOTIFY_URL)")
	flagScanSchedule := flag.String("scan-schedule", "", "Cron spec for library scans (env: KINOSCRIBE_SCAN_SCHEDULE, default: @every 10s)")
	flagPort := flag.String("port", "", "HTTP server port (env: KINOSCRIBE_PORT, default: 3090)")
	flagLogLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (env: KINOSCRIBE_LOG_LEVEL, default: info)")
	flagMaxActors := flag.Int("max-actors", 0, "Actor roster cap per film (env: KINOSCRIBE_MAX_ACTORS, default: 10)")
	flagDataDir := flag.String("data-dir", "", "Data directory path (env: KINOSCRIBE_DATA_DIR)")
	flagDatabasePath := flag.String("database-path", "", "Database file path (env: KINOSCRIBE_DATABASE_PATH)")

	flag.Parse()

	if *showVersion {
		fmt.Printf("kinoscribe %s\n", config.Version)
		os.Exit(0)
	}

	// Load configuration from environment variables, then apply flag overrides
	config.Load()
	config.ApplyFlags(config.FlagOverrides{
		MediaRoot:    flagMediaRoot,
		APIKey:       flagAPIKey,
		APIBaseURL:   flagAPIBaseURL,
		NotifyURL:    flagNotifyURL,
		ScanSchedule: flagScanSchedule,
		Port:         flagPort,
		LogLevel:     flagLogLevel,
		MaxActors:    flagMaxActors,
		DataDir:      flagDataDir,
		DatabasePath: flagDatabasePath,
	})
	cfg := config.Get()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger with configured log directory and level
	logger.Init(cfg.LogDir)
	logger.SetLevel(cfg.LogLevel)

	logger.Infof("========================================")
	logger.Infof("Starting kinoscribe %s...", config.Version)
	logger.Infof("NFO sidecar and artwork enrichment for film libraries")
	logger.Infof("========================================")

	logger.Infof("Configuration:")
	logger.Infof("  Media Root: %s", cfg.MediaRoot)
	logger.Infof("  Catalog API: %s", cfg.APIBaseURL)
	logger.Infof("  Scan Schedule: %s", cfg.ScanSchedule)
	logger.Infof("  Port: %s", cfg.Port)
	logger.Infof("  Log Level: %s", cfg.LogLevel)
	logger.Infof("  Data Directory: %s", cfg.DataDir)
	logger.Infof("  Database: %s", cfg.DatabasePath)
	logger.Infof("  Max Actors: %d", cfg.MaxActors)
	if cfg.RetentionDays > 0 {
		logger.Infof("  Data Retention: %d days", cfg.RetentionDays)
	} else {
		logger.Infof("  Data Retention: disabled (no automatic pruning)")
	}

	// Initialize Database
	logger.Infof("Initializing database: %s", cfg.DatabasePath)
	repo, err := db.NewRepository(cfg.DatabasePath)
	if err != nil {
		logger.Errorf("Failed to initialize database: %v", err)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Infof("✓ Database initialized successfully")

	// Create a database backup on startup
	if backupPath, err := repo.Backup(cfg.DatabasePath); err != nil {
		logger.Errorf("Failed to create startup backup: %v", err)
	} else {
		logger.Infof("✓ Database backup created: %s", backupPath)
	}

	// WAL checkpoints keep the sidecar files small between restarts
	stopCheckpoint := repo.StartPeriodicCheckpoint(5 * time.Minute)
	defer stopCheckpoint()

	// Start scheduled maintenance goroutine (daily at 3 AM local time)
	go func() {
		retentionDays := cfg.RetentionDays
		for {
			now := time.Now()
			next3AM := time.Date(now.Year(), now.Month(), now.Day(), 3, 0, 0, 0, now.Location())
			if now.After(next3AM) {
				next3AM = next3AM.Add(24 * time.Hour)
			}
			sleepDuration := next3AM.Sub(now)
			logger.Debugf("Next database maintenance scheduled in %v", sleepDuration)

			time.Sleep(sleepDuration)

			if err := repo.RunMaintenance(retentionDays); err != nil {
				logger.Errorf("Scheduled maintenance failed: %v", err)
			}
		}
	}()

	// Initialize Event Bus
	logger.Infof("Initializing Event Bus...")
	eb := eventbus.NewEventBus(repo.DB)
	logger.Infof("✓ Event Bus initialized")

	// Catalog client with response cache
	logger.Infof("Initializing Catalog Client (%s)...", cfg.APIBaseURL)
	catalogClient := catalog.NewClient(cfg.APIBaseURL, cfg.APIKey, cfg.HTTPTimeout, cfg.CacheSize, cfg.CacheTTL, nil)
	logger.Infof("✓ Catalog Client initialized (cache: %d entries, TTL: %s)", cfg.CacheSize, cfg.CacheTTL)

	// Initialize Services
	logger.Infof("Initializing core services...")
	pipeline := scanner.NewFolderPipeline(catalogClient, cfg.IsVideoFile, cfg.SidecarExt, cfg.MaxActors)
	logger.Infof("✓ Folder Pipeline (sidecar and artwork enrichment)")

	libraryScanner := services.NewLibraryScanner(repo, eb, pipeline, cfg.MediaRoot, cfg.TVShowsDir)
	logger.Infof("✓ Library Scanner (walks the media root for unenriched films)")

	scheduler := services.NewScheduler(libraryScanner, cfg.ScanSchedule)
	logger.Infof("✓ Scheduler (cron-based scans: %s)", cfg.ScanSchedule)

	// Initialize Notifier Service
	logger.Infof("Initializing Notification Service...")
	notifyURL := cfg.NotifyURL
	if notifyURL == "" {
		notifyURL = notifier.BuildTelegramURL(cfg.TelegramToken, cfg.TelegramChatID)
	}
	notifyURL, err = notifier.NormalizeURL(notifyURL)
	if err != nil {
		logger.Errorf("Invalid notification URL: %v", err)
		os.Exit(1)
	}
	notifierService := notifier.NewNotifier(repo, eb, notifyURL)
	if err := notifierService.Start(); err != nil {
		logger.Errorf("Failed to start notification service: %v", err)
		// Non-fatal - continue without notifications
	} else {
		logger.Infof("✓ Notification Service (scan summaries and failures)")
	}

	// Initialize Metrics Service (Prometheus metrics)
	logger.Infof("Initializing Metrics Service...")
	metricsService := metrics.NewMetricsService(eb)
	metricsService.Start()
	logger.Infof("✓ Metrics Service (Prometheus endpoint at /metrics)")

	// Start the scan scheduler
	logger.Infof("Starting background services...")
	if err := scheduler.Start(); err != nil {
		logger.Errorf("Failed to start scheduler: %v", err)
		os.Exit(1)
	}
	logger.Infof("✓ All background services started")

	// Start API Server
	logger.Infof("Initializing REST API and WebSocket server...")
	apiServer := api.NewRESTServer(api.ServerDeps{
		Repo:     repo,
		EventBus: eb,
		Scanner:  libraryScanner,
		Metrics:  metricsService,
	})
	go func() {
		addr := ":" + cfg.Port
		if err := apiServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Failed to start API server: %v", err)
			os.Exit(1)
		}
	}()

	logger.Infof("========================================")
	logger.Infof("✓ kinoscribe %s started successfully", config.Version)
	logger.Infof("✓ Server listening on port %s", cfg.Port)
	logger.Infof("========================================")

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Infof("========================================")
	logger.Infof("Received signal %v, initiating graceful shutdown...", sig)
	logger.Infof("========================================")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Shutdown in reverse order of startup
	logger.Infof("Stopping Scheduler...")
	scheduler.Stop()
	logger.Infof("✓ Scheduler stopped")

	logger.Infof("Stopping Library Scanner (waiting for in-flight scan)...")
	libraryScanner.Shutdown()
	logger.Infof("✓ Library Scanner stopped")

	logger.Infof("Stopping Notification Service...")
	notifierService.Stop()
	logger.Infof("✓ Notification Service stopped")

	logger.Infof("Stopping Event Bus...")
	eb.Shutdown()
	logger.Infof("✓ Event Bus stopped")

	logger.Infof("Stopping API Server...")
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API Server shutdown error: %v", err)
	} else {
		logger.Infof("✓ API Server stopped")
	}

	logger.Infof("Closing database connection...")
	if err := repo.GracefulClose(); err != nil {
		logger.Errorf("Failed to close database connection: %v", err)
	} else {
		logger.Infof("✓ Database connection closed")
	}

	logger.Infof("========================================")
	logger.Infof("✓ kinoscribe shutdown complete")
	logger.Infof("========================================")
}
