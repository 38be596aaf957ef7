package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gif-squeeze-go/internal/compressor"
	"gif-squeeze-go/internal/config"
	"gif-squeeze-go/internal/history"
	"gif-squeeze-go/internal/runner"
	"gif-squeeze-go/internal/statistics"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Server exposes batch compression over HTTP with WebSocket progress events.
type Server struct {
	cfg        *config.Config
	log        *logrus.Logger
	hist       *history.Store
	router     *mux.Router
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	wsMutex    sync.RWMutex

	// Current operation state
	operationMutex sync.RWMutex
	isRunning      bool
	cancelRun      context.CancelFunc
	currentStats   *statistics.Statistics
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type CompressRequest struct {
	SourceDirectory string `json:"source_directory"`
	TargetDirectory string `json:"target_directory,omitempty"`
	DryRun          bool   `json:"dry_run"`
}

type GifFileInfo struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	SizeHuman    string `json:"size_human"`
	ModifiedTime string `json:"modified_time"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// NewServer returns a configured Server. The history store may be nil.
func NewServer(cfg *config.Config, log *logrus.Logger, hist *history.Store) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log,
		hist:      hist,
		router:    mux.NewRouter(),
		wsClients: make(map[*websocket.Conn]bool),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
		},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// API routes
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/files", s.handleListFiles).Methods("GET")
	api.HandleFunc("/scan", s.handleScan).Methods("POST")
	api.HandleFunc("/compress", s.handleCompress).Methods("POST")
	api.HandleFunc("/stop", s.handleStop).Methods("POST")
	api.HandleFunc("/statistics", s.handleGetStatistics).Methods("GET")
	api.HandleFunc("/history", s.handleGetHistory).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Static files
	s.router.PathPrefix("/static/").Handler(
		http.StripPrefix("/static/", http.FileServer(http.Dir("web/static/"))),
	)

	// Main page
	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://localhost%s", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, "web/templates/index.html")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	running := s.isRunning
	stats := s.currentStats
	s.operationMutex.RUnlock()

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"running":    running,
			"statistics": statsData(stats),
		},
	})
}

// handleListFiles returns the GIF files that would be processed in the
// given (or configured) directory.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	dir := r.URL.Query().Get("path")
	if dir == "" {
		dir = s.cfg.SourceDirectory
	}

	// Prevent directory traversal
	dir = filepath.Clean(dir)
	if strings.Contains(dir, "..") {
		s.writeError(w, "Invalid path", http.StatusBadRequest)
		return
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.gif"))
	if err != nil {
		s.writeError(w, fmt.Sprintf("Failed to list files: %v", err), http.StatusInternalServerError)
		return
	}

	var files []GifFileInfo
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, GifFileInfo{
			Path:         path,
			Name:         filepath.Base(path),
			Size:         info.Size(),
			SizeHuman:    statistics.FormatBytes(info.Size()),
			ModifiedTime: info.ModTime().Format(time.RFC3339),
		})
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    files,
	})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req CompressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.DryRun = true
	s.startRun(w, req, "scan")
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	var req CompressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	s.startRun(w, req, "compress")
}

// startRun validates the request, claims the single-run slot, and launches
// the batch asynchronously.
func (s *Server) startRun(w http.ResponseWriter, req CompressRequest, kind string) {
	if req.SourceDirectory == "" {
		req.SourceDirectory = s.cfg.SourceDirectory
	}
	if _, err := os.Stat(req.SourceDirectory); os.IsNotExist(err) {
		s.writeError(w, "Source directory does not exist", http.StatusBadRequest)
		return
	}

	s.operationMutex.Lock()
	if s.isRunning {
		s.operationMutex.Unlock()
		s.writeError(w, "Operation already in progress", http.StatusConflict)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.isRunning = true
	s.cancelRun = cancel
	s.currentStats = statistics.NewStatistics()
	s.operationMutex.Unlock()

	go s.runAsync(ctx, req, kind)

	message := "Compression started"
	if kind == "scan" {
		message = "Scan started"
	}
	s.writeJSON(w, APIResponse{
		Success: true,
		Message: message,
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.Lock()
	if s.cancelRun != nil {
		s.cancelRun()
	}
	s.operationMutex.Unlock()

	s.broadcastWSMessage("operation_stopped", map[string]interface{}{
		"message": "Operation stopped by user",
	})

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Operation stopped",
	})
}

func (s *Server) handleGetStatistics(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	stats := s.currentStats
	s.operationMutex.RUnlock()

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    statsData(stats),
	})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.hist == nil {
		s.writeError(w, "History store is not enabled", http.StatusNotFound)
		return
	}

	records, err := s.hist.Recent(100)
	if err != nil {
		s.writeError(w, fmt.Sprintf("Failed to load history: %v", err), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    records,
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = true
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	// Remove client on disconnect
	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	// Keep connection alive
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

func (s *Server) runAsync(ctx context.Context, req CompressRequest, kind string) {
	s.broadcastWSMessage(kind+"_started", map[string]interface{}{
		"source_directory": req.SourceDirectory,
		"target_directory": req.TargetDirectory,
		"dry_run":          req.DryRun,
	})

	// Run against a copy so concurrent requests cannot see partial state.
	cfg := *s.cfg
	cfg.SourceDirectory = req.SourceDirectory
	if req.TargetDirectory != "" {
		cfg.TargetDirectory = &req.TargetDirectory
	}
	cfg.Security.DryRun = req.DryRun

	s.operationMutex.RLock()
	stats := s.currentStats
	s.operationMutex.RUnlock()

	comp := compressor.NewGifsicle(compressor.Params{
		OptimizeLevel: cfg.Compression.OptimizeLevel,
		Lossy:         cfg.Compression.Lossy,
		Colors:        cfg.Compression.Colors,
		SkipLarger:    cfg.Compression.SkipLarger,
	}, s.log)

	br := runner.NewBatchRunnerWithOutput(&cfg, s.log, stats, comp, io.Discard)
	if s.hist != nil && !req.DryRun {
		br.SetHistory(s.hist)
	}

	err := comp.Check()
	if err == nil {
		err = br.CompressFiles(ctx)
	}

	s.operationMutex.Lock()
	s.isRunning = false
	s.cancelRun = nil
	s.operationMutex.Unlock()

	if err != nil {
		s.broadcastWSMessage(kind+"_error", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		s.broadcastWSMessage(kind+"_completed", map[string]interface{}{
			"statistics": stats.GetSummary(),
		})
	}
}

func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	message := WSMessage{
		Type: messageType,
		Data: data,
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	s.wsMutex.RLock()
	defer s.wsMutex.RUnlock()

	for conn := range s.wsClients {
		err := conn.WriteMessage(websocket.TextMessage, msgBytes)
		if err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			// Remove failed connection
			go func(c *websocket.Conn) {
				s.wsMutex.Lock()
				delete(s.wsClients, c)
				s.wsMutex.Unlock()
				c.Close()
			}(conn)
		}
	}
}

func statsData(stats *statistics.Statistics) interface{} {
	if stats == nil {
		return nil
	}
	return map[string]interface{}{
		"summary": stats.GetSummary(),
		"files": map[string]interface{}{
			"found":      atomic.LoadInt64(&stats.FilesFound),
			"processed":  atomic.LoadInt64(&stats.FilesProcessed),
			"compressed": atomic.LoadInt64(&stats.FilesCompressed),
			"skipped":    atomic.LoadInt64(&stats.FilesSkipped),
			"failed":     atomic.LoadInt64(&stats.FilesFailed),
		},
		"bytes": map[string]interface{}{
			"original":   atomic.LoadInt64(&stats.BytesOriginal),
			"compressed": atomic.LoadInt64(&stats.BytesCompressed),
			"saved":      stats.BytesSaved(),
		},
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}
