package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qvvonk/smart-replays/internal/domain"
	"github.com/qvvonk/smart-replays/internal/usecase"
)

// ControlConfig wires the control socket to the running daemon.
type ControlConfig struct {
	SocketPath string
	Saver      Saver
	Scheduler  *RestartScheduler
	Reload     func() // queues a reload on the watcher loop; may be nil
	Daemon     domain.DaemonInfo
	Logger     *zap.Logger
	Now        func() time.Time
}

// SaveRequest asks for one save. An empty mode uses the configured default.
type SaveRequest struct {
	Mode   string `json:"mode,omitempty"`
	Source string `json:"source,omitempty"`
}

// SaveResponse describes a saved clip.
type SaveResponse struct {
	ID         string `json:"id"`
	Mode       string `json:"mode"`
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
	Path       string `json:"path"`
	SizeBytes  int64  `json:"size_bytes"`
}

// HealthResponse reports daemon liveness and the restart schedule.
type HealthResponse struct {
	Status       string    `json:"status"`
	PID          int       `json:"pid"`
	Version      string    `json:"version"`
	UptimeS      int64     `json:"uptime_s"`
	RestartState string    `json:"restart_state"`
	NextRestart  time.Time `json:"next_restart,omitempty"`
	Restarts     int       `json:"restarts"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type contextKey string

const requestIDKey contextKey = "request_id"

// NewControlRouter builds the control API.
func NewControlRouter(cfg ControlConfig) *chi.Mux {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	r := chi.NewRouter()

	r.Use(requestIDMiddleware())
	r.Use(recoveryMiddleware(cfg.Logger))
	r.Use(loggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))
	r.Post("/save", saveHandler(cfg))
	r.Post("/restart", restartHandler(cfg))
	r.Post("/reload", reloadHandler(cfg))

	return r
}

func healthHandler(cfg ControlConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:  "ok",
			PID:     cfg.Daemon.PID,
			Version: cfg.Daemon.AppVersion,
			UptimeS: int64(cfg.Now().Sub(cfg.Daemon.StartedAt).Seconds()),
		}
		if cfg.Scheduler != nil {
			resp.RestartState = string(cfg.Scheduler.State())
			resp.NextRestart = cfg.Scheduler.NextCheck()
			resp.Restarts, _ = cfg.Scheduler.Stats()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func saveHandler(cfg ControlConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SaveRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
				return
			}
		}

		trigger := domain.SaveTrigger{Source: req.Source}
		if trigger.Source == "" {
			trigger.Source = "control"
		}
		if req.Mode != "" {
			mode, err := domain.ParseClipNamingMode(req.Mode)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error(), "BAD_MODE")
				return
			}
			trigger.ForcedMode = &mode
		}

		result, err := cfg.Saver.Save(r.Context(), trigger)
		switch {
		case errors.Is(err, usecase.ErrSaveInProgress):
			writeError(w, http.StatusConflict, err.Error(), "SAVE_IN_PROGRESS")
			return
		case errors.Is(err, usecase.ErrBufferInactive):
			writeError(w, http.StatusServiceUnavailable, err.Error(), "BUFFER_INACTIVE")
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error(), "SAVE_FAILED")
			return
		}

		writeJSON(w, http.StatusOK, SaveResponse{
			ID:         result.Context.ID,
			Mode:       string(result.Context.Mode),
			Identifier: result.Context.RawIdentifier,
			Name:       result.Context.ResolvedName,
			Path:       result.Path,
			SizeBytes:  result.SizeBytes,
		})
	}
}

func restartHandler(cfg ControlConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Scheduler == nil {
			writeError(w, http.StatusServiceUnavailable, "restart scheduler not configured", "UNAVAILABLE")
			return
		}
		err := cfg.Scheduler.RestartNow(r.Context(), cfg.Now())
		switch {
		case errors.Is(err, ErrSaveInFlight), errors.Is(err, ErrRestartInProgress):
			writeError(w, http.StatusConflict, err.Error(), "BUSY")
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error(), "RESTART_FAILED")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func reloadHandler(cfg ControlConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Reload == nil {
			writeError(w, http.StatusServiceUnavailable, "reload not supported", "UNAVAILABLE")
			return
		}
		cfg.Reload()
		w.WriteHeader(http.StatusAccepted)
	}
}

func requestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := uuid.NewString()[:8]
			ctx := context.WithValue(r.Context(), requestIDKey, requestID)
			w.Header().Set("X-Request-ID", requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func recoveryMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					requestID, _ := r.Context().Value(requestIDKey).(string)
					logger.Error("panic recovered in control handler",
						zap.Any("error", err),
						zap.String("request_id", requestID))
					writeError(w, http.StatusInternalServerError, "internal error", "INTERNAL_ERROR")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			requestID, _ := r.Context().Value(requestIDKey).(string)
			logger.Debug("control request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", wrapped.status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", requestID))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// ControlServer serves the control API on a unix socket only the owner can reach.
type ControlServer struct {
	httpServer *http.Server
	socketPath string
	logger     *zap.Logger
}

// NewControlServer creates a server for cfg.SocketPath.
func NewControlServer(cfg ControlConfig) *ControlServer {
	return &ControlServer{
		httpServer: &http.Server{
			Handler:           NewControlRouter(cfg),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		socketPath: cfg.SocketPath,
		logger:     cfg.Logger,
	}
}

// Start listens on the socket and serves in the background. A stale socket
// left by a crashed daemon is replaced.
func (s *ControlServer) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0700); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to restrict socket permissions: %w", err)
	}

	s.logger.Info("control socket listening", zap.String("socket", s.socketPath))
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("control server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown waits for in-flight requests and removes the socket.
func (s *ControlServer) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if rerr := os.Remove(s.socketPath); rerr != nil && !os.IsNotExist(rerr) && err == nil {
		err = rerr
	}
	return err
}
