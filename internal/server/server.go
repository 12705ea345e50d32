// Package server exposes a virtual disk over a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ha1tch/blockalloc/internal/logging/audit"
	"github.com/ha1tch/blockalloc/internal/metrics"
	"github.com/ha1tch/blockalloc/pkg/vdisk"
)

// Config holds the HTTP settings of the server.
type Config struct {
	Listen            string
	AuditDisplayLimit int      // Events returned by /logs; 0 returns all
	AllowedOrigins    []string // CORS origins
	MaxUploadBytes    int64    // 0 limits uploads to the disk capacity
}

// Server serves the disk API.
type Server struct {
	cfg      Config
	engine   *vdisk.Engine
	mux      *http.ServeMux
	registry *prometheus.Registry
	metrics  *metrics.DiskMetrics
	audit    *audit.Logger
	log      zerolog.Logger
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewServer creates a server for engine with its own metrics registry.
func NewServer(cfg Config, engine *vdisk.Engine, logger zerolog.Logger) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = engine.Geometry().CapacityBytes()
	}

	registry := prometheus.NewRegistry()
	srv := &Server{
		cfg:      cfg,
		engine:   engine,
		mux:      http.NewServeMux(),
		registry: registry,
		metrics:  metrics.NewDiskMetrics(registry),
		audit:    audit.NewLogger(logger.With().Str("component", "audit").Logger()),
		log:      logger.With().Str("component", "server").Logger(),
	}
	srv.metrics.Observe(engine.Stats())
	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /stats", s.handleStats)
	s.mux.HandleFunc("GET /files", s.handleListFiles)
	s.mux.HandleFunc("GET /files/{id}", s.handleFile)
	s.mux.HandleFunc("POST /files/{id}/compress", s.handleCompress)
	s.mux.HandleFunc("GET /blocks", s.handleBlocks)
	s.mux.HandleFunc("POST /upload", s.handleUpload)
	s.mux.HandleFunc("DELETE /delete/{id}", s.handleDelete)
	s.mux.HandleFunc("POST /defragment", s.handleDefragment)
	s.mux.HandleFunc("POST /optimize", s.handleOptimize)
	s.mux.HandleFunc("GET /fragmentation", s.handleFragmentation)
	s.mux.HandleFunc("GET /housekeeping", s.handleHousekeeping)
	s.mux.HandleFunc("GET /recommendations", s.handleRecommendations)
	s.mux.HandleFunc("GET /logs", s.handleLogs)
	s.mux.HandleFunc("POST /init", s.handleInit)
	s.mux.Handle("GET /metrics", s.metricsHandler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if origin := r.Header.Get("Origin"); origin != "" && slices.Contains(s.cfg.AllowedOrigins, origin) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		h.Add("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpSrv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("listen", ln.Addr().String()).Msg("starting disk API server")
		errCh <- httpSrv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Info().Msg("shutting down disk API server")
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) metricsHandler() http.Handler {
	h := promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Observe(s.engine.Stats())
		h.ServeHTTP(w, r)
	})
}

// track starts timing a mutating operation. The returned func records the
// outcome in the audit log and metrics.
func (s *Server) track(operation string, r *http.Request) func(fileID vdisk.FileID, err error) {
	start := time.Now()
	return func(fileID vdisk.FileID, err error) {
		status, result, details := "ok", audit.ResultOK, ""
		if err != nil {
			status, result, details = errorCode(err), audit.ResultFailed, err.Error()
		}
		s.audit.LogDiskOp(operation, int64(fileID), result, details, clientIP(r))
		s.metrics.RecordOperation(operation, status, time.Since(start))
		s.metrics.Observe(s.engine.Stats())
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// errorCode maps engine errors to the machine-readable code of a response.
func errorCode(err error) string {
	switch {
	case errors.Is(err, vdisk.ErrInsufficientContiguousSpace):
		return "insufficient_contiguous_space"
	case errors.Is(err, vdisk.ErrInsufficientSpace):
		return "insufficient_space"
	case errors.Is(err, vdisk.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, vdisk.ErrNotFound):
		return "not_found"
	case errors.Is(err, vdisk.ErrBusy):
		return "busy"
	}
	return "internal"
}

func statusFor(code string) int {
	switch code {
	case "invalid_input", "insufficient_space", "insufficient_contiguous_space":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "busy":
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug().Err(err).Msg("failed to write response")
	}
}

func (s *Server) jsonError(w http.ResponseWriter, message, code string, status int) {
	s.writeJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Code:    code,
		Message: message,
	})
}

// engineError writes err with the status its kind maps to.
func (s *Server) engineError(w http.ResponseWriter, err error) {
	code := errorCode(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("disk operation failed")
	}
	s.jsonError(w, err.Error(), code, status)
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (vdisk.FileID, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.jsonError(w, fmt.Sprintf("invalid file id %q", r.PathValue("id")), "invalid_input", http.StatusBadRequest)
		return 0, false
	}
	return vdisk.FileID(id), true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Stats())
}

func (s *Server) handleListFiles(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.ListFiles())
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	detail, err := s.engine.File(id)
	if err != nil {
		s.engineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleBlocks(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"blocks": s.engine.ListBlocks()})
}

// UploadResponse is the file created by an upload together with its blocks.
type UploadResponse struct {
	vdisk.FileView
	Blocks []int `json:"blocks"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	done := s.track("upload", r)

	view, err := s.upload(w, r)
	if err != nil {
		done(0, err)
		s.engineError(w, err)
		return
	}
	done(view.ID, nil)

	resp := UploadResponse{FileView: view}
	if detail, err := s.engine.File(view.ID); err == nil {
		resp.Blocks = detail.Blocks
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) (vdisk.FileView, error) {
	// Room for the multipart envelope on top of the largest file
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return vdisk.FileView{}, &vdisk.ValidationError{Field: "file", Message: err.Error()}
	}

	allocType := vdisk.Contiguous
	if v := r.FormValue("allocation_type"); v != "" {
		var err error
		if allocType, err = vdisk.ParseAllocationType(v); err != nil {
			return vdisk.FileView{}, err
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return vdisk.FileView{}, &vdisk.ValidationError{Field: "file", Message: "no file part"}
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return vdisk.FileView{}, fmt.Errorf("read upload: %w", err)
	}
	return s.engine.Upload(header.Filename, content, allocType)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	done := s.track("delete", r)

	err := s.engine.Delete(id)
	done(id, err)
	if err != nil {
		s.engineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("File %d deleted", id)})
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	compressed := r.URL.Query().Get("compressed") != "false"
	done := s.track("compress", r)

	view, err := s.engine.SetCompressed(id, compressed)
	done(id, err)
	if err != nil {
		s.engineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleDefragment(w http.ResponseWriter, r *http.Request) {
	done := s.track("defragment", r)

	report, err := s.engine.Defragment()
	done(0, err)
	if err != nil {
		s.engineError(w, err)
		return
	}

	resp := map[string]interface{}{
		"message":         "Defragmentation complete",
		"files_relocated": report.FilesRelocated,
		"blocks_moved":    report.BlocksMoved,
	}
	if report.NoOp {
		resp["message"] = "Nothing to defragment"
		resp["warning"] = "No files to defragment"
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	done := s.track("optimize", r)

	report, err := s.engine.Optimize()
	done(0, err)
	if err != nil {
		s.engineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleFragmentation(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]float64{"fragmentation": s.engine.Fragmentation()})
}

func (s *Server) handleHousekeeping(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Scan())
}

func (s *Server) handleRecommendations(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Recommendations())
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.AuditDisplayLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.jsonError(w, fmt.Sprintf("invalid limit %q", v), "invalid_input", http.StatusBadRequest)
			return
		}
		limit = n
	}
	s.writeJSON(w, http.StatusOK, s.engine.AuditLog(limit))
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	done := s.track("reset", r)

	err := s.engine.Reset()
	done(0, err)
	if err != nil {
		s.engineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
