package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/stokerbuild/stoker/internal/detect"
	"github.com/stokerbuild/stoker/internal/domain"
	"github.com/stokerbuild/stoker/internal/domain/events"
	"github.com/stokerbuild/stoker/internal/domain/ports"
	"github.com/stokerbuild/stoker/internal/hub"
	"github.com/stokerbuild/stoker/internal/pairing"
)

// refreshTimeout caps a client-triggered refresh cycle.
const refreshTimeout = 5 * time.Minute

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Local tool, trusted network. Validate origin before exposing
		// the server beyond a tunnel you control.
		return true
	},
}

// Pipeline is the surface of the refresh pipeline the server exposes.
// RefreshNow serializes cycles internally; the server may call it from
// concurrent requests.
type Pipeline interface {
	RefreshNow(ctx context.Context) (*detect.Result, error)
	Entries(ctx context.Context) ([]domain.Entry, error)
	Info() PipelineInfo
}

// PipelineInfo is runtime state reported by /api/status and heartbeats.
type PipelineInfo struct {
	State        string    `json:"state"`
	Root         string    `json:"root"`
	Driver       string    `json:"driver"`
	Watermark    time.Time `json:"watermark"`
	EntryCount   int       `json:"entry_count"`
	RefreshCount int64     `json:"refresh_count"`
	LastCycleID  string    `json:"last_cycle_id,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

// StatusResponse is the full status document served to clients.
type StatusResponse struct {
	PipelineInfo
	ServerID      string `json:"server_id"`
	Clients       int    `json:"clients"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Version       string `json:"version"`
}

// Server is the combined HTTP/WebSocket server.
type Server struct {
	host     string
	port     int
	addr     string
	version  string
	serverID string
	external string

	pipeline Pipeline
	hub      ports.EventHub

	httpServer *http.Server

	mu      sync.RWMutex
	clients map[string]*Client
	filters map[string]*hub.FilteredSubscriber

	heartbeatDone chan struct{}
	heartbeatSeq  int64
	startTime     time.Time
}

// New creates a server for the given pipeline and event hub.
func New(host string, port int, version string, pipeline Pipeline, eventHub ports.EventHub) *Server {
	return &Server{
		host:          host,
		port:          port,
		addr:          fmt.Sprintf("%s:%d", host, port),
		version:       version,
		serverID:      uuid.New().String(),
		pipeline:      pipeline,
		hub:           eventHub,
		clients:       make(map[string]*Client),
		filters:       make(map[string]*hub.FilteredSubscriber),
		heartbeatDone: make(chan struct{}),
		startTime:     time.Now(),
	}
}

// SetExternalURL sets the public URL advertised in connection info.
func (s *Server) SetExternalURL(url string) {
	s.external = url
}

// ServerID returns this instance's unique identifier.
func (s *Server) ServerID() string {
	return s.serverID
}

// Handler returns the server's HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.router())
}

func (s *Server) router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/entries", s.handleEntries).Methods("GET")
	api.HandleFunc("/refresh", s.handleRefresh).Methods("POST")
	api.HandleFunc("/connection", s.handleConnection).Methods("GET")

	router.HandleFunc("/ws", s.handleWebSocket)

	return router
}

// Start starts the server and its heartbeat loop.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
		// No ReadTimeout/WriteTimeout: they would apply to the upgraded
		// WebSocket connections too and sever long-lived streams. The
		// read/write pumps manage their own deadlines.
		IdleTimeout: 120 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Server starting")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Server error")
		}
	}()

	go s.heartbeatLoop()

	return nil
}

// Stop gracefully stops the server and disconnects all clients.
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Server stopping")

	close(s.heartbeatDone)

	s.mu.Lock()
	for _, client := range s.clients {
		client.Close()
	}
	s.clients = make(map[string]*Client)
	s.filters = make(map[string]*hub.FilteredSubscriber)
	s.mu.Unlock()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"service":   "stoker",
		"version":   s.version,
		"timestamp": time.Now().Unix(),
	})
}

// handleStatus handles GET /api/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.statusResponse())
}

// handleEntries handles GET /api/entries.
func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.pipeline.Entries(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, domain.ErrCodeRegistryError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// handleRefresh handles POST /api/refresh.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	result, err := s.pipeline.RefreshNow(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, domain.ErrCodeRefreshFailed, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

// handleConnection handles GET /api/connection.
func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	info := s.pipeline.Info()
	gen := pairing.NewGenerator(s.host, s.port, s.serverID, filepath.Base(info.Root))
	if s.external != "" {
		gen.SetExternalURL(s.external)
	}
	s.respondJSON(w, http.StatusOK, gen.Info())
}

// handleWebSocket handles WebSocket upgrade requests on /ws.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	client := NewClient(conn, s.handleCommand, func(id string) {
		if s.hub != nil {
			s.hub.Unsubscribe(id)
		}
		s.removeClient(id)
	})

	filtered := hub.NewFilteredSubscriber(NewClientSubscriber(client))

	s.mu.Lock()
	s.clients[client.ID()] = client
	s.filters[client.ID()] = filtered
	s.mu.Unlock()

	if s.hub != nil {
		s.hub.Subscribe(filtered)
	}

	log.Info().
		Str("client_id", client.ID()).
		Str("remote_addr", conn.RemoteAddr().String()).
		Msg("Client connected")

	client.Start()
}

func (s *Server) removeClient(id string) {
	s.mu.Lock()
	delete(s.clients, id)
	delete(s.filters, id)
	s.mu.Unlock()
	log.Info().Str("client_id", id).Msg("Client disconnected")
}

// Broadcast sends a raw message to all connected clients.
func (s *Server) Broadcast(message []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, client := range s.clients {
		client.Send(message)
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) statusResponse() StatusResponse {
	return StatusResponse{
		PipelineInfo:  s.pipeline.Info(),
		ServerID:      s.serverID,
		Clients:       s.ClientCount(),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Version:       s.version,
	}
}

// heartbeatLoop broadcasts periodic heartbeat events so clients can
// monitor liveness above WebSocket ping/pong.
func (s *Server) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.heartbeatDone:
			return
		case <-ticker.C:
			s.broadcastHeartbeat()
		}
	}
}

func (s *Server) broadcastHeartbeat() {
	if s.ClientCount() == 0 {
		return
	}

	seq := atomic.AddInt64(&s.heartbeatSeq, 1)
	heartbeat := events.NewHeartbeatEvent(seq, s.pipeline.Info().State, int64(time.Since(s.startTime).Seconds()))

	data, err := heartbeat.ToJSON()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to serialize heartbeat")
		return
	}

	s.Broadcast(data)
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// respondError sends an error response.
func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, map[string]interface{}{
		"error": message,
		"code":  code,
	})
}

// corsMiddleware adds CORS headers so browser dashboards can call the API.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
