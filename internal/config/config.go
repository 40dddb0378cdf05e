package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Version is set at build time via -ldflags
// Default "dev" is used for development builds
var Version = "dev"

// Config holds all application configuration loaded from environment variables.
// All fields except the required credentials have sensible defaults.
type Config struct {
	// MediaRoot is the library directory scanned for video files (required)
	MediaRoot string

	// APIKey is the catalog API key sent as the x-api-key header (required)
	APIKey string

	// APIBaseURL is the catalog API base URL (default: https://kinopoiskapiunofficial.tech)
	APIBaseURL string

	// NotifyURL is the shoutrrr notification URL, e.g.
	// telegram://token@telegram?chats=chat_id. Required unless the
	// Telegram credentials below are set instead.
	NotifyURL string

	// TelegramToken and TelegramChatID are an alternative to NotifyURL
	// for the common Telegram setup; the URL is assembled from them.
	TelegramToken  string
	TelegramChatID string

	// ScanSchedule is the cron spec for library scans (default: "@every 10s")
	ScanSchedule string

	// TVShowsDir is the directory name pruned from the library walk (default: "tvshows")
	TVShowsDir string

	// VideoExts is the set of file extensions treated as video files,
	// lowercase with leading dot (default: .mp4 .mkv .avi .mov)
	VideoExts []string

	// SidecarExt is the metadata sidecar extension (default: ".nfo")
	SidecarExt string

	// MaxActors caps the actor roster taken from staff responses (default: 10)
	MaxActors int

	// CacheSize is the catalog response cache capacity in entries (default: 100)
	CacheSize int

	// CacheTTL is the catalog response cache entry lifetime (default: 24h)
	CacheTTL time.Duration

	// HTTPTimeout is the per-request timeout for catalog and artwork downloads (default: 30s)
	HTTPTimeout time.Duration

	// Port is the HTTP server listen port (default: 3090)
	Port string

	// LogLevel controls logging verbosity: "debug", "info", "warn", "error" (default: "info")
	LogLevel string

	// RetentionDays is the number of days to keep old events and scan history (default: 90)
	// Set to 0 to disable automatic pruning
	RetentionDays int

	// DataDir is the directory for persistent data (database, logs)
	// Default: /config in Docker, ./config locally
	DataDir string

	// DatabasePath is the SQLite database file path (default: <DataDir>/kinoscribe.db)
	DatabasePath string

	// LogDir is the directory for log files (default: <DataDir>/logs)
	LogDir string
}

// Global singleton
var cfg *Config

// Load reads configuration from environment variables with sensible defaults.
// Should be called once at application startup.
func Load() *Config {
	// DataDir is where all persistent data lives.
	// In Docker /config is created automatically.
	dataDir := getEnvOrDefault("KINOSCRIBE_DATA_DIR", "")
	if dataDir == "" {
		if info, err := os.Stat("/config"); err == nil && info.IsDir() {
			dataDir = "/config"
		} else {
			if execPath, err := os.Executable(); err == nil {
				dataDir = filepath.Join(filepath.Dir(execPath), "config")
			} else if cwd, err := os.Getwd(); err == nil {
				dataDir = filepath.Join(cwd, "config")
			} else {
				dataDir = "./config"
			}
		}
	}
	if absDataDir, err := filepath.Abs(dataDir); err == nil {
		dataDir = absDataDir
	}
	os.MkdirAll(dataDir, 0755)

	dbPath := getEnvOrDefault("KINOSCRIBE_DATABASE_PATH", "")
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, "kinoscribe.db")
	}

	logDir := filepath.Join(dataDir, "logs")
	os.MkdirAll(logDir, 0755)

	cfg = &Config{
		MediaRoot:      getEnvOrDefault("KINOSCRIBE_MEDIA_ROOT", ""),
		APIKey:         getEnvOrDefault("KINOSCRIBE_API_KEY", ""),
		APIBaseURL:     strings.TrimSuffix(getEnvOrDefault("KINOSCRIBE_API_BASE_URL", "https://kinopoiskapiunofficial.tech"), "/"),
		NotifyURL:      getEnvOrDefault("KINOSCRIBE_NOTIFY_URL", ""),
		TelegramToken:  getEnvOrDefault("KINOSCRIBE_TELEGRAM_TOKEN", ""),
		TelegramChatID: getEnvOrDefault("KINOSCRIBE_TELEGRAM_CHAT_ID", ""),
		ScanSchedule:   getEnvOrDefault("KINOSCRIBE_SCAN_SCHEDULE", "@every 10s"),
		TVShowsDir:     getEnvOrDefault("KINOSCRIBE_TVSHOWS_DIR", "tvshows"),
		VideoExts:      parseExtList(getEnvOrDefault("KINOSCRIBE_VIDEO_EXT", ".mp4,.mkv,.avi,.mov")),
		SidecarExt:     ".nfo",
		MaxActors:      getEnvIntOrDefault("KINOSCRIBE_MAX_ACTORS", 10),
		CacheSize:      getEnvIntOrDefault("KINOSCRIBE_CACHE_SIZE", 100),
		CacheTTL:       getEnvDurationOrDefault("KINOSCRIBE_CACHE_TTL", 24*time.Hour),
		HTTPTimeout:    getEnvDurationOrDefault("KINOSCRIBE_HTTP_TIMEOUT", 30*time.Second),
		Port:           getEnvOrDefault("KINOSCRIBE_PORT", "3090"),
		LogLevel:       strings.ToLower(getEnvOrDefault("KINOSCRIBE_LOG_LEVEL", "info")),
		RetentionDays:  getEnvIntOrDefault("KINOSCRIBE_RETENTION_DAYS", 90),
		DataDir:        dataDir,
		DatabasePath:   dbPath,
		LogDir:         logDir,
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
		// Valid
	default:
		cfg.LogLevel = "info"
	}

	return cfg
}

// Validate checks that all required settings are present. Every missing
// variable is reported in a single error so operators can fix them in one go.
func (c *Config) Validate() error {
	var missing []string
	if c.MediaRoot == "" {
		missing = append(missing, "KINOSCRIBE_MEDIA_ROOT")
	}
	if c.APIKey == "" {
		missing = append(missing, "KINOSCRIBE_API_KEY")
	}
	if c.NotifyURL == "" && (c.TelegramToken == "" || c.TelegramChatID == "") {
		missing = append(missing, "KINOSCRIBE_NOTIFY_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

// IsVideoFile reports whether the filename carries a configured video extension.
func (c *Config) IsVideoFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range c.VideoExts {
		if ext == e {
			return true
		}
	}
	return false
}

// parseExtList splits a comma-separated extension list, lowercases each entry
// and guarantees a leading dot. Empty entries are dropped.
func parseExtList(raw string) []string {
	var exts []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if !strings.HasPrefix(part, ".") {
			part = "." + part
		}
		exts = append(exts, part)
	}
	return exts
}

// Get returns the current configuration. Panics if Load() hasn't been called.
func Get() *Config {
	if cfg == nil {
		panic("config.Load() must be called before config.Get()")
	}
	return cfg
}

// SetForTesting allows tests to set the global config without calling Load().
// This should ONLY be used in test code.
func SetForTesting(c *Config) {
	cfg = c
}

// NewTestConfig returns a minimal Config suitable for unit tests.
func NewTestConfig() *Config {
	return &Config{
		MediaRoot:     "/tmp/kinoscribe-test/media",
		APIKey:        "test-key",
		APIBaseURL:    "https://kinopoiskapiunofficial.tech",
		NotifyURL:     "telegram://token@telegram?chats=1",
		ScanSchedule:  "@every 10s",
		TVShowsDir:    "tvshows",
		VideoExts:     []string{".mp4", ".mkv", ".avi", ".mov"},
		SidecarExt:    ".nfo",
		MaxActors:     10,
		CacheSize:     100,
		CacheTTL:      24 * time.Hour,
		HTTPTimeout:   30 * time.Second,
		Port:          "8080",
		LogLevel:      "debug",
		RetentionDays: 90,
		DataDir:       "/tmp/kinoscribe-test",
		DatabasePath:  "/tmp/kinoscribe-test/kinoscribe.db",
		LogDir:        "/tmp/kinoscribe-test/logs",
	}
}

// getEnvOrDefault returns the environment variable value or the default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault returns the environment variable as an int or the default if not set/invalid.
func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault returns the environment variable as a duration or the default if not set/invalid.
// Accepts Go duration strings like "30s", "5m", "24h".
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// FlagOverrides holds command-line flag values that can override environment variables
type FlagOverrides struct {
	MediaRoot    *string
	APIKey       *string
	APIBaseURL   *string
	NotifyURL    *string
	ScanSchedule *string
	Port         *string
	LogLevel     *string
	MaxActors    *int
	DataDir      *string
	DatabasePath *string
}

// ApplyFlags applies command-line flag overrides to the configuration.
// Should be called after Load() and after flag parsing.
// Only non-nil values with non-default flag values will override.
func ApplyFlags(flags FlagOverrides) {
	if cfg == nil {
		return
	}

	if flags.MediaRoot != nil && *flags.MediaRoot != "" {
		cfg.MediaRoot = *flags.MediaRoot
	}
	if flags.APIKey != nil && *flags.APIKey != "" {
		cfg.APIKey = *flags.APIKey
	}
	if flags.APIBaseURL != nil && *flags.APIBaseURL != "" {
		cfg.APIBaseURL = strings.TrimSuffix(*flags.APIBaseURL, "/")
	}
	if flags.NotifyURL != nil && *flags.NotifyURL != "" {
		cfg.NotifyURL = *flags.NotifyURL
	}
	if flags.ScanSchedule != nil && *flags.ScanSchedule != "" {
		cfg.ScanSchedule = *flags.ScanSchedule
	}
	if flags.Port != nil && *flags.Port != "" {
		cfg.Port = *flags.Port
	}
	if flags.LogLevel != nil && *flags.LogLevel != "" {
		cfg.LogLevel = strings.ToLower(*flags.LogLevel)
	}
	if flags.MaxActors != nil && *flags.MaxActors != 0 {
		cfg.MaxActors = *flags.MaxActors
	}
	if flags.DataDir != nil && *flags.DataDir != "" {
		cfg.DataDir = *flags.DataDir
	}
	if flags.DatabasePath != nil && *flags.DatabasePath != "" {
		cfg.DatabasePath = *flags.DatabasePath
	}
}
