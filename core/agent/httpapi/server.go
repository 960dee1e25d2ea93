// Package httpapi exposes the agent over HTTP: a /search endpoint for
// clients and an /a2a endpoint peers call during federation.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/akfldk1028/ARR-sub002/core/agent"
	"github.com/akfldk1028/ARR-sub002/core/collab"
	"github.com/akfldk1028/ARR-sub002/core/graph"
	"github.com/akfldk1028/ARR-sub002/core/search"
)

// SearchRequest is the client-facing query payload.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server routes HTTP traffic to an agent engine.
type Server struct {
	engine *agent.Engine
	logger *slog.Logger
	router chi.Router
}

// NewServer builds the HTTP surface over the engine.
func NewServer(engine *agent.Engine) *Server {
	s := &Server{
		engine: engine,
		logger: slog.Default().With("component", "http-api"),
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Post("/search", s.handleSearch)
	r.Post("/expand", s.handleExpand)
	r.Post("/a2a", s.handleA2A)

	s.router = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"latency", time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if req.Query == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query is required"})
		return
	}

	resp, err := s.engine.Search(r.Context(), req.Query, req.Limit)
	if err != nil {
		s.writeSearchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExpand(w http.ResponseWriter, r *http.Request) {
	var req agent.ExpandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if req.Seed == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "seed is required"})
		return
	}

	resp, err := s.engine.Expand(r.Context(), req)
	if err != nil {
		if errors.Is(err, graph.ErrNodeNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
			return
		}
		s.writeSearchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleA2A(w http.ResponseWriter, r *http.Request) {
	var q collab.PeerQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if q.Query == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query is required"})
		return
	}

	results, err := s.engine.SearchLocal(r.Context(), q.Query, q.Limit)
	if err != nil {
		s.logger.Error("a2a search failed", "query", q.Query, "err", err)
		writeJSON(w, http.StatusOK, collab.PeerResponse{Status: collab.StatusError})
		return
	}
	writeJSON(w, http.StatusOK, collab.PeerResponse{Status: collab.StatusSuccess, Results: results})
}

func (s *Server) writeSearchError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch search.KindOf(err) {
	case search.KindNotFound:
		status = http.StatusNotFound
	case search.KindTotalFailure:
		status = http.StatusServiceUnavailable
	}
	if errors.Is(err, context.Canceled) {
		status = 499
	}
	s.logger.Error("search failed", "err", err, "status", status)
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
