// Package api provides the REST API and server for kinoscribe. It
// exposes scan history, the persisted event log, health and metrics,
// plus a WebSocket stream of live events and log lines.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pbelyaev/kinoscribe/internal/db"
	"github.com/pbelyaev/kinoscribe/internal/eventbus"
	"github.com/pbelyaev/kinoscribe/internal/logger"
	"github.com/pbelyaev/kinoscribe/internal/metrics"
	"github.com/pbelyaev/kinoscribe/internal/services"
)

// ScanTrigger starts a scan on demand and reports scan activity.
type ScanTrigger interface {
	TriggerAsync() (string, error)
	IsScanning() bool
}

type RESTServer struct {
	router     *gin.Engine
	httpServer *http.Server
	repo       *db.Repository
	eventBus   eventbus.Publisher
	scanner    ScanTrigger
	metrics    *metrics.MetricsService
	hub        *WebSocketHub
	startTime  time.Time
}

// ServerDeps contains all dependencies required for the REST server.
type ServerDeps struct {
	Repo     *db.Repository
	EventBus eventbus.Publisher
	Scanner  ScanTrigger
	Metrics  *metrics.MetricsService
}

// Compile-time assertion that the library scanner satisfies ScanTrigger.
var _ ScanTrigger = (*services.LibraryScanner)(nil)

func NewRESTServer(deps ServerDeps) *RESTServer {
	// Release mode suppresses gin's debug warnings in production
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Request ID middleware for correlation/tracing
	r.Use(func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = fmt.Sprintf("%d-%d", time.Now().UnixNano(), c.Request.ContentLength)
		}
		c.Set("request_id", reqID)
		c.Header("X-Request-ID", reqID)
		c.Next()
	})

	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		reqID := c.GetString("request_id")
		logger.Errorf("[PANIC RECOVERY] request_id=%s path=%s method=%s error=%v",
			reqID, c.Request.URL.Path, c.Request.Method, recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":      "Internal server error",
			"request_id": reqID,
		})
	}))

	// CORS middleware - configurable via KINOSCRIBE_CORS_ORIGIN.
	// Unset means same-origin only.
	corsOrigins := os.Getenv("KINOSCRIBE_CORS_ORIGIN")
	allowedOrigins := make(map[string]bool)
	if corsOrigins != "" {
		for _, origin := range strings.Split(corsOrigins, ",") {
			allowedOrigins[strings.TrimSpace(origin)] = true
		}
	}

	r.Use(func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		if corsOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" && allowedOrigins[origin] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Vary", "Origin")
		}

		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	s := &RESTServer{
		router:    r,
		repo:      deps.Repo,
		eventBus:  deps.EventBus,
		scanner:   deps.Scanner,
		metrics:   deps.Metrics,
		hub:       NewWebSocketHub(deps.EventBus),
		startTime: time.Now(),
	}

	s.setupRoutes()

	return s
}

func (s *RESTServer) setupRoutes() {
	// Prometheus endpoint at root level, standard scrape convention
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := s.router.Group("/api")
	{
		api.GET("/health", s.handleHealth)

		api.GET("/scans", s.listScans)
		api.POST("/scans", ScanLimiter.Middleware(), s.triggerScan)
		api.GET("/scans/:scan_id", s.getScan)
		api.GET("/scans/:scan_id/files", s.getScanFiles)

		api.GET("/events", s.listEvents)

		api.GET("/logs/recent", s.handleRecentLogs)
		api.GET("/logs/download", DownloadLimiter.Middleware(), s.handleDownloadLogs)

		api.GET("/ws", func(c *gin.Context) {
			s.hub.HandleConnection(c)
		})
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})
}

func (s *RESTServer) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *RESTServer) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
