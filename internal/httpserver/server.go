// Package httpserver exposes the internal operability surface: health
// check, a JSON status snapshot, and Prometheus exposition. Grounded on the
// teacher's cmd/api chi usage, trimmed to the operational surface this core
// needs (no templates, no public API, no TLS).
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/brightloom/sentiment-ingest/internal/jetstreammanager"
)

// Server wraps the internal HTTP surface.
type Server struct {
	router  *chi.Mux
	manager *jetstreammanager.Manager
	http    *http.Server
}

// New builds a Server bound to addr, serving /healthz, /status, /metrics.
func New(addr string, manager *jetstreammanager.Manager, reg http.Handler) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	s := &Server{router: r, manager: manager}

	r.Get("/healthz", s.handleHealthz)
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", reg)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe starts the server, blocking until it stops or errors.
func (s *Server) ListenAndServe() error {
	log.Printf("[INFO] httpserver: listening on %s", s.http.Addr)
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server, waiting up to 5 seconds for
// in-flight requests to finish.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"ok"}`)
}

type statusResponse struct {
	ConnectionStatus    string `json:"connectionStatus"`
	IsListening         bool   `json:"isListening"`
	ActiveJobs          int    `json:"activeJobs"`
	MaxReconnectExhaust bool   `json:"maxReconnectExhausted"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.manager.GetStatus()
	resp := statusResponse{
		ConnectionStatus:    status.ConnectionStatus.String(),
		IsListening:         status.IsListening,
		ActiveJobs:          status.ActiveJobs,
		MaxReconnectExhaust: status.MaxReconnectExhaus,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("[ERROR] httpserver: encode status response: %v", err)
	}
}
