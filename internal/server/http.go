package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/emotibit-sync/internal/config"
	"github.com/skypro1111/emotibit-sync/internal/metrics"
	"github.com/skypro1111/emotibit-sync/internal/stream"
	"github.com/skypro1111/emotibit-sync/internal/timesync"
)

const serviceName = "emotibit-sync"

// HTTPServer provides HTTP API endpoints for monitoring
type HTTPServer struct {
	server     *http.Server
	logger     *slog.Logger
	config     *config.Config
	sessionMgr *stream.Manager
	udpServer  *UDPServer
	metrics    *metrics.Metrics
	gatherer   prometheus.Gatherer

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server. Metrics are served from
// gatherer.
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, appConfig *config.Config,
	sessionMgr *stream.Manager, udpServer *UDPServer, m *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPServer {

	h := &HTTPServer{
		logger:     logger,
		config:     appConfig,
		sessionMgr: sessionMgr,
		udpServer:  udpServer,
		metrics:    m,
		gatherer:   gatherer,
		startTime:  time.Now(),
	}

	h.server = &http.Server{
		Addr:         cfg.GetAddress(),
		Handler:      h.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the routed API handler
func (h *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	h.setupRoutes(mux)
	return mux
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Session monitoring endpoints
	mux.HandleFunc("/sessions", h.withMetrics("/sessions", h.handleSessions))
	mux.HandleFunc("/sessions/", h.withMetrics("/sessions/{source}", h.handleSessionDetail))

	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (not instrumented itself)
	mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		if h.metrics == nil {
			return
		}

		duration := time.Since(startTime).Seconds()
		h.metrics.RecordHTTPRequest(r.Method, endpoint, fmt.Sprintf("%d", ww.statusCode), duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server", slog.String("address", h.server.Addr))

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

func (h *HTTPServer) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("Failed to encode response", slog.String("error", err.Error()))
	}
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	udpStats := h.udpServer.GetStatistics()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    serviceName,
			"version": timesync.FormatVersion,
		},
		"components": map[string]interface{}{
			"udp_server": map[string]interface{}{
				"status":             "running",
				"datagrams_received": udpStats.DatagramsReceived,
				"records_decoded":    udpStats.RecordsDecoded,
				"decode_errors":      udpStats.DecodeErrors,
				"queue_size":         udpStats.QueueSize,
			},
			"session_manager": map[string]interface{}{
				"status":          "running",
				"active_sessions": udpStats.ActiveSessions,
			},
		},
	}

	h.writeJSON(w, health)
}

// handleSessions implements the /sessions endpoint
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessions := h.sessionMgr.GetAllSessions()
	infos := make([]stream.SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		infos = append(infos, session.GetSessionInfo())
	}

	h.writeJSON(w, map[string]interface{}{
		"total_sessions": len(infos),
		"timestamp":      time.Now().UTC(),
		"sessions":       infos,
	})
}

// SessionDetail is the /sessions/{source} response
type SessionDetail struct {
	stream.SessionInfo
	Synced  bool              `json:"synced"`
	SyncMap *timesync.SyncMap `json:"sync_map,omitempty"`
	SyncErr string            `json:"sync_error,omitempty"`
}

// handleSessionDetail implements the /sessions/{source} endpoint
func (h *HTTPServer) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	source, err := url.PathUnescape(r.URL.Path[len("/sessions/"):])
	if err != nil || source == "" {
		http.Error(w, "Session source required", http.StatusBadRequest)
		return
	}

	session, exists := h.sessionMgr.GetSession(source)
	if !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	detail := SessionDetail{SessionInfo: session.GetSessionInfo()}
	syncMap, err := h.sessionMgr.SyncMap(source)
	if err != nil {
		detail.SyncErr = err.Error()
	} else {
		detail.Synced = true
		detail.SyncMap = &syncMap
	}

	h.writeJSON(w, detail)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, map[string]interface{}{
		"server": map[string]interface{}{
			"udp_port":        h.config.Server.UDPPort,
			"bind_address":    h.config.Server.BindAddress,
			"buffer_size":     h.config.Server.BufferSize,
			"workers":         h.config.Server.Workers,
			"queue_size":      h.config.Server.QueueSize,
			"session_timeout": h.config.Server.SessionTimeout,
		},
		"sync": map[string]interface{}{
			"min_sync_packets": h.config.Sync.MinSyncPackets,
			"timezone":         h.config.Sync.Timezone,
		},
		"export": map[string]interface{}{
			"output_dir":      h.config.Export.OutputDir,
			"write_errors":    h.config.Export.WriteErrors,
			"write_timesyncs": h.config.Export.WriteTimeSyncs,
			"binary":          h.config.Export.Binary,
			"compress":        h.config.Export.Compress,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	})
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"udp":       h.udpServer.GetStatistics(),
		"sessions": map[string]interface{}{
			"active_count": h.sessionMgr.GetActiveSessionCount(),
		},
	})
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	h.writeJSON(w, map[string]interface{}{
		"service": "EmotiBit Telemetry Service",
		"version": timesync.FormatVersion,
		"endpoints": map[string]interface{}{
			"GET /":                  "API documentation",
			"GET /health":            "Service health check",
			"GET /sessions":          "List active device sessions",
			"GET /sessions/{source}": "Session details with live sync map",
			"GET /config":            "Get service configuration",
			"GET /stats":             "Get service statistics",
			"GET /metrics":           "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	})
}
