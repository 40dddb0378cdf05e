package api

import (
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/pbelyaev/kinoscribe/internal/domain"
	"github.com/pbelyaev/kinoscribe/internal/eventbus"
	"github.com/pbelyaev/kinoscribe/internal/logger"
)

// getWebSocketUpgrader returns an upgrader with origin validation
// based on the KINOSCRIBE_CORS_ORIGIN environment variable.
func getWebSocketUpgrader() websocket.Upgrader {
	corsOrigins := os.Getenv("KINOSCRIBE_CORS_ORIGIN")
	allowedOrigins := make(map[string]bool)
	if corsOrigins != "" && corsOrigins != "*" {
		for _, origin := range strings.Split(corsOrigins, ",") {
			allowedOrigins[strings.TrimSpace(origin)] = true
		}
	}

	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if corsOrigins == "*" {
				return true
			}
			if corsOrigins == "" {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true // No origin header = same-origin request
				}
				return strings.Contains(origin, r.Host)
			}
			return allowedOrigins[r.Header.Get("Origin")]
		},
	}
}

var upgrader = getWebSocketUpgrader()

// WebSocketHub streams domain events and log lines to connected
// clients.
type WebSocketHub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan interface{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.Mutex
	eventBus   eventbus.Publisher
	done       chan struct{}
}

func NewWebSocketHub(eventBus eventbus.Publisher) *WebSocketHub {
	h := &WebSocketHub{
		broadcast:  make(chan interface{}, 64),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		clients:    make(map[*websocket.Conn]bool),
		eventBus:   eventBus,
		done:       make(chan struct{}),
	}

	// Subscribe to the events clients care about
	types := []domain.EventType{
		domain.ScanStarted,
		domain.ScanCompleted,
		domain.ScanFailed,
		domain.FileEnriched,
		domain.FileFailed,
		domain.MatchDegraded,
		domain.SidecarWritten,
		domain.ArtworkSaved,
		domain.NotificationSent,
		domain.NotificationFailed,
	}

	for _, t := range types {
		eventBus.Subscribe(t, func(e domain.Event) {
			select {
			case h.broadcast <- map[string]interface{}{"type": "event", "data": e}:
			case <-h.done:
			}
		})
	}

	// Subscribe to logs
	logCh := logger.Subscribe()
	go func() {
		for entry := range logCh {
			select {
			case h.broadcast <- map[string]interface{}{"type": "log", "data": entry}:
			case <-h.done:
				return
			}
		}
	}()

	go h.run()
	return h
}

func (h *WebSocketHub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			logger.Debugf("WebSocket client connected (Total: %d)", len(h.clients))
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				if err := client.Close(); err != nil {
					logger.Debugf("WebSocket close error: %v", err)
				}
				logger.Debugf("WebSocket client disconnected")
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if err := client.WriteJSON(message); err != nil {
					logger.Errorf("WebSocket error: %v", err)
					if closeErr := client.Close(); closeErr != nil {
						logger.Debugf("WebSocket close error during broadcast: %v", closeErr)
					}
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *WebSocketHub) HandleConnection(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Errorf("Failed to upgrade to WebSocket: %v", err)
		return
	}
	h.register <- ws

	// Initial ping verifies the connection before the ping loop starts
	h.mu.Lock()
	if err := ws.WriteJSON(gin.H{"type": "ping", "timestamp": time.Now()}); err != nil {
		logger.Debugf("Failed to send initial ping: %v", err)
	}
	h.mu.Unlock()

	const (
		pongWait   = 60 * time.Second
		pingPeriod = (pongWait * 9) / 10
	)

	if err := ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Debugf("Failed to set initial read deadline: %v", err)
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	go func() {
		for range ticker.C {
			h.mu.Lock()
			_, exists := h.clients[ws]
			if !exists {
				h.mu.Unlock()
				return
			}
			// Write while holding the mutex to avoid racing broadcasts
			err := ws.WriteMessage(websocket.PingMessage, nil)
			h.mu.Unlock()
			if err != nil {
				logger.Errorf("WebSocket ping error: %v", err)
				h.unregister <- ws
				return
			}
		}
	}()

	defer func() {
		h.unregister <- ws
		logger.Debugf("WebSocket client handler exited")
	}()

	// The read loop keeps the connection open; the pong handler
	// refreshes the deadline.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
}

// Shutdown stops the hub loop and disconnects all clients.
func (h *WebSocketHub) Shutdown() {
	close(h.done)
}

// ClientCount returns the number of connected WebSocket clients.
func (h *WebSocketHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
