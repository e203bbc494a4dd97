package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"voice-agent/internal/application"
)

// TurnController is the part of the controller the HTTP surface drives.
type TurnController interface {
	RequestStart()
	RequestStop()
	Press()
	View() application.View
}

// Server lets another process press the record button, e.g. a hotkey daemon
// or a hardware push-to-talk switch, and read the current view.
type Server struct {
	addr       string
	controller TurnController
	server     *http.Server
	logger     *slog.Logger
	mux        *http.ServeMux

	mu      sync.Mutex
	running bool
}

func NewServer(addr string, controller TurnController, logger *slog.Logger) *Server {
	s := &Server{
		addr:       addr,
		controller: controller,
		logger:     logger,
		mux:        http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /press", s.handlePress)
	s.mux.HandleFunc("POST /start", s.handleStart)
	s.mux.HandleFunc("POST /stop", s.handleStop)
	s.mux.HandleFunc("GET /state", s.handleState)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.logger.Info("control server starting", "addr", s.addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("control server error", "error", err)
		}
	}()

	s.running = true
	return nil
}

func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("graceful shutdown failed, forcing close", "error", err)
		if err := s.server.Close(); err != nil {
			return fmt.Errorf("closing server: %w", err)
		}
	}

	s.running = false
	return nil
}

func (s *Server) handlePress(w http.ResponseWriter, _ *http.Request) {
	s.controller.Press()
	s.accepted(w, "press")
}

func (s *Server) handleStart(w http.ResponseWriter, _ *http.Request) {
	s.controller.RequestStart()
	s.accepted(w, "start")
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.controller.RequestStop()
	s.accepted(w, "stop")
}

func (s *Server) accepted(w http.ResponseWriter, action string) {
	s.logger.Debug("control request", "action", action)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintf(w, `{"status":"accepted","action":%q}`, action)
}

type stateResponse struct {
	State      string `json:"state"`
	Status     string `json:"status"`
	Enabled    bool   `json:"enabled"`
	Transcript string `json:"transcript,omitempty"`
	Notice     string `json:"notice,omitempty"`
	SessionID  string `json:"session_id"`
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	v := s.controller.View()
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(stateResponse{
		State:      string(v.State),
		Status:     v.Status,
		Enabled:    v.Enabled,
		Transcript: v.Transcript,
		Notice:     v.Notice,
		SessionID:  v.SessionID,
	})
	if err != nil {
		s.logger.Warn("encoding state response", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	status := "ok"
	statusCode := http.StatusOK
	if !running {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	fmt.Fprintf(w, `{"status":"%s","running":%t}`, status, running)
}
