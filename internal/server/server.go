// Package server exposes dialog sessions over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/erentorlak/todv2/internal/catalog"
	"github.com/erentorlak/todv2/internal/orchestrator"
	"github.com/erentorlak/todv2/internal/state"
	"github.com/erentorlak/todv2/pkg/models"
)

// maxBodyBytes caps turn request bodies.
const maxBodyBytes = 64 << 10

// Dialog is the engine surface the HTTP handlers drive.
type Dialog interface {
	NewSession() (*models.Session, error)
	Session(id string) (*models.Session, error)
	Turn(ctx context.Context, sessionID, utterance string) (orchestrator.Reply, error)
	DeleteSession(id string) error
	ListSessions() ([]state.SessionInfo, error)
	Catalog() catalog.Describer
}

var _ Dialog = (*orchestrator.Engine)(nil)

// Server routes HTTP requests to a Dialog.
type Server struct {
	dialog   Dialog
	gatherer prometheus.Gatherer
	timeout  time.Duration
}

// New creates a server. A nil gatherer serves the default Prometheus registry.
func New(d Dialog, gatherer prometheus.Gatherer, requestTimeout time.Duration) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}
	return &Server{dialog: d, gatherer: gatherer, timeout: requestTimeout}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Use(chiMiddleware.Timeout(s.timeout))
		r.Get("/intents", s.listIntents)
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.listSessions)
			r.Post("/", s.createSession)
			r.Get("/{id}", s.getSession)
			r.Delete("/{id}", s.deleteSession)
			r.Post("/{id}/turns", s.postTurn)
		})
	})
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[server] listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
	}

	log.Printf("[server] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

type turnRequest struct {
	Text string `json:"text"`
}

type intentView struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tools       []string `json:"tools"`
	Parameters  []string `json:"parameters"`
}

func (s *Server) listIntents(w http.ResponseWriter, _ *http.Request) {
	intents := s.dialog.Catalog().Intents()
	out := make([]intentView, 0, len(intents))
	for _, in := range intents {
		params := make([]string, 0, len(in.Parameters))
		for _, p := range in.Parameters {
			params = append(params, p.Name)
		}
		out = append(out, intentView{Name: in.Name, Description: in.Description, Tools: in.Tools, Parameters: params})
	}
	JSON(w, http.StatusOK, map[string]any{"intents": out})
}

func (s *Server) listSessions(w http.ResponseWriter, _ *http.Request) {
	infos, err := s.dialog.ListSessions()
	if err != nil {
		log.Printf("[server] list sessions: %v", err)
		Error(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"sessions": infos})
}

func (s *Server) createSession(w http.ResponseWriter, _ *http.Request) {
	sess, err := s.dialog.NewSession()
	if err != nil {
		log.Printf("[server] create session: %v", err)
		Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	JSON(w, http.StatusCreated, map[string]string{"session_id": sess.ID})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.dialog.Session(chi.URLParam(r, "id"))
	if err != nil {
		writeDialogError(w, err)
		return
	}
	JSON(w, http.StatusOK, sess)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.dialog.DeleteSession(chi.URLParam(r, "id")); err != nil {
		log.Printf("[server] delete session: %v", err)
		Error(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) postTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	reply, err := s.dialog.Turn(r.Context(), chi.URLParam(r, "id"), req.Text)
	if err != nil {
		writeDialogError(w, err)
		return
	}
	JSON(w, http.StatusOK, reply)
}

func writeDialogError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrSessionNotFound):
		Error(w, http.StatusNotFound, "session not found")
	case errors.Is(err, orchestrator.ErrEmptyUtterance):
		Error(w, http.StatusBadRequest, "text must not be empty")
	case errors.Is(err, orchestrator.ErrSessionEnded):
		Error(w, http.StatusConflict, "session has ended")
	default:
		log.Printf("[server] %v", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}

// JSON writes v as a JSON response.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[server] encode response: %v", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
